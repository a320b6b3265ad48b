// Package motion integrates the remote AI motion provider: task submission
// at dispatch time and webhook correlation when the provider calls back.
package motion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"montage/internal/jobs"
	"montage/internal/services"
)

const createTaskPath = "/api/v1/jobs/createTask"

// Client submits motion generation tasks to the provider.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	callbackURL string
	http        *http.Client
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL string
	APIKey  string
	// Model is the default generation model for requests that do not name
	// one.
	Model string
	// CallbackURL is where the provider posts its completion notice.
	CallbackURL string
}

// NewClient builds a provider client.
func NewClient(opts ClientOptions) *Client {
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		callbackURL: opts.CallbackURL,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

type createTaskPayload struct {
	Model       string    `json:"model"`
	CallBackURL string    `json:"callBackUrl"`
	Input       taskInput `json:"input"`
}

type taskInput struct {
	Prompt               string   `json:"prompt"`
	InputURLs            []string `json:"input_urls"`
	VideoURLs            []string `json:"video_urls"`
	CharacterOrientation string   `json:"character_orientation"`
	Mode                 string   `json:"mode"`
}

type createTaskResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// Dispatch submits the motion request and returns the provider's task id.
func (c *Client) Dispatch(ctx context.Context, jobID string, req jobs.MotionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload := createTaskPayload{
		Model:       model,
		CallBackURL: c.callbackURL,
		Input: taskInput{
			Prompt:               "Change man on video.",
			InputURLs:            []string{req.AvatarURL},
			VideoURLs:            []string{req.ReferenceURL},
			CharacterOrientation: "video",
			Mode:                 "720p",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrRemoteService, "motion", "create task", "encode payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createTaskPath, bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrRemoteService, "motion", "create task", jobID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", services.Wrap(services.ErrRemoteService, "motion", "create task", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", services.Wrap(services.ErrRemoteService, "motion", "create task",
			fmt.Sprintf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(text))), nil)
	}

	var result createTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", services.Wrap(services.ErrRemoteService, "motion", "create task", "decode response", err)
	}
	if result.Code != http.StatusOK {
		return "", services.Wrap(services.ErrRemoteService, "motion", "create task",
			fmt.Sprintf("provider rejected the task: %s", result.Msg), nil)
	}
	if result.Data.TaskID == "" {
		return "", services.Wrap(services.ErrRemoteService, "motion", "create task", "response missing taskId", nil)
	}
	return result.Data.TaskID, nil
}
