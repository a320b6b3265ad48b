// Package montagesvc delegates composite jobs to the remote montage
// microservice and monitors them to completion.
package montagesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"montage/internal/jobs"
	"montage/internal/services"
)

// StatusResponse is the remote service's view of a delegated video.
type StatusResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Remote status values.
const (
	RemoteStatusProcessing = "processing"
	RemoteStatusCompleted  = "completed"
	RemoteStatusFailed     = "failed"
)

// Client talks to the montage microservice over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type circlePayload struct {
	BackgroundURL    string  `json:"video_background_url"`
	CircleURL        string  `json:"video_circle_url"`
	BackgroundVolume float64 `json:"background_volume"`
	CircleVolume     float64 `json:"circle_volume"`
	CirclePosition   string  `json:"circle_position,omitempty"`
}

type overlayPayload struct {
	BackgroundURL    string  `json:"video_background_url"`
	OverlayURL       string  `json:"video_overlay_url"`
	BackgroundVolume float64 `json:"background_volume"`
	OverlayVolume    float64 `json:"overlay_volume"`
	Position         string  `json:"position,omitempty"`
}

// Submit posts the composite request and returns the remote video id.
func (c *Client) Submit(ctx context.Context, kind jobs.Kind, req jobs.CompositeRequest) (string, error) {
	var (
		endpoint string
		payload  any
	)
	switch kind {
	case jobs.KindCircleOverlay:
		endpoint = "/video-circle"
		payload = circlePayload{
			BackgroundURL:    req.BackgroundURL,
			CircleURL:        req.OverlayURL,
			BackgroundVolume: req.BackgroundVolume,
			CircleVolume:     req.OverlayVolume,
			CirclePosition:   req.Position,
		}
	case jobs.KindOverlay:
		endpoint = "/video-overlay"
		payload = overlayPayload{
			BackgroundURL:    req.BackgroundURL,
			OverlayURL:       req.OverlayURL,
			BackgroundVolume: req.BackgroundVolume,
			OverlayVolume:    req.OverlayVolume,
			Position:         req.Position,
		}
	default:
		return "", services.Wrap(services.ErrValidation, "delegate", "submit", fmt.Sprintf("kind %q cannot be delegated", kind), nil)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrRemoteService, "delegate", "submit", "encode payload", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrRemoteService, "delegate", "submit", endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", services.Wrap(services.ErrRemoteService, "delegate", "submit", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", services.Wrap(services.ErrRemoteService, "delegate", "submit",
			fmt.Sprintf("%s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(text))), nil)
	}

	var result struct {
		VideoID string `json:"video_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", services.Wrap(services.ErrRemoteService, "delegate", "submit", "decode response", err)
	}
	if result.VideoID == "" {
		return "", services.Wrap(services.ErrRemoteService, "delegate", "submit", "response missing video_id", nil)
	}
	return result.VideoID, nil
}

// Status fetches the remote processing state for videoID.
func (c *Client) Status(ctx context.Context, videoID string) (StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+videoID, nil)
	if err != nil {
		return StatusResponse{}, services.Wrap(services.ErrRemoteService, "monitor", "status", videoID, err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return StatusResponse{}, services.Wrap(services.ErrRemoteService, "monitor", "status", videoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// A 4xx means the remote does not know this video; polling again
		// cannot resolve it.
		marker := services.ErrRemoteService
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			marker = services.ErrValidation
		}
		return StatusResponse{}, services.Wrap(marker, "monitor", "status",
			fmt.Sprintf("%s returned %d", videoID, resp.StatusCode), nil)
	}
	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return StatusResponse{}, services.Wrap(services.ErrRemoteService, "monitor", "status", "decode response", err)
	}
	return status, nil
}

// Download streams the finished video to destPath.
func (c *Client) Download(ctx context.Context, videoID, destPath string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/"+videoID, nil)
	if err != nil {
		return services.Wrap(services.ErrRemoteService, "monitor", "download", videoID, err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrRemoteService, "monitor", "download", videoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrRemoteService, "monitor", "download",
			fmt.Sprintf("%s returned %d", videoID, resp.StatusCode), nil)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return services.Wrap(services.ErrRemoteService, "monitor", "download", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(destPath)
		return services.Wrap(services.ErrRemoteService, "monitor", "download", destPath, err)
	}
	return out.Close()
}
