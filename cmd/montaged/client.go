package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"montage/internal/api"
	"montage/internal/config"
)

var apiHTTPClient = &http.Client{Timeout: 10 * time.Second}

func apiURL(cfg *config.Config, path string) string {
	return "http://" + cfg.Paths.APIBind + path
}

func submitJob(ctx context.Context, cfg *config.Config, body []byte) (api.JobAccepted, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(cfg, "/api/jobs"), bytes.NewReader(body))
	if err != nil {
		return api.JobAccepted{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Paths.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Paths.APIToken)
	}

	resp, err := apiHTTPClient.Do(req)
	if err != nil {
		return api.JobAccepted{}, fmt.Errorf("reach daemon at %s (is it running?): %w", cfg.Paths.APIBind, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return api.JobAccepted{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return api.JobAccepted{}, fmt.Errorf("daemon rejected request (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var accepted api.JobAccepted
	if err := json.Unmarshal(payload, &accepted); err != nil {
		return api.JobAccepted{}, fmt.Errorf("decode response: %w", err)
	}
	return accepted, nil
}

func daemonHealthy(ctx context.Context, cfg *config.Config) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL(cfg, "/api/health"), nil)
	if err != nil {
		return false
	}
	resp, err := apiHTTPClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
