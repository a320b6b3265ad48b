// Package fetch retrieves remote media into a job-scoped working area.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"montage/internal/services"
)

// Options configures a Client.
type Options struct {
	MaxBytes int64
	Timeout  time.Duration
	// AllowedContentTypes is matched by prefix against the response
	// Content-Type; empty means any type is accepted.
	AllowedContentTypes []string
	HTTPClient          *http.Client
}

// Client downloads source media with a payload size cap, streaming to disk
// rather than buffering the whole body.
type Client struct {
	http     *http.Client
	maxBytes int64
	allowed  []string
}

// New constructs a fetch client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		http:     httpClient,
		maxBytes: opts.MaxBytes,
		allowed:  opts.AllowedContentTypes,
	}
}

// Fetch streams url to destPath and returns destPath. Failures are tagged
// services.ErrDownload: non-success status, size violation, disallowed
// content type, or transport error.
func (c *Client) Fetch(ctx context.Context, url, destPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", services.Wrap(services.ErrDownload, "fetch", url, "build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrDownload, "fetch", url, "transport", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", services.Wrap(services.ErrDownload, "fetch", url,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := c.checkContentType(resp.Header.Get("Content-Type")); err != nil {
		return "", services.Wrap(services.ErrDownload, "fetch", url, err.Error(), nil)
	}
	if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
		return "", services.Wrap(services.ErrDownload, "fetch", url,
			fmt.Sprintf("payload %d bytes exceeds limit %d", resp.ContentLength, c.maxBytes), nil)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return "", services.Wrap(services.ErrDownload, "fetch", url, "create destination", err)
	}
	defer out.Close()

	reader := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		// Read one byte past the cap so an oversized stream without a
		// Content-Length header is still rejected.
		reader = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	written, err := io.Copy(out, reader)
	if err != nil {
		_ = os.Remove(destPath)
		return "", services.Wrap(services.ErrDownload, "fetch", url, "stream to disk", err)
	}
	if c.maxBytes > 0 && written > c.maxBytes {
		_ = os.Remove(destPath)
		return "", services.Wrap(services.ErrDownload, "fetch", url,
			fmt.Sprintf("payload exceeds limit %d bytes", c.maxBytes), nil)
	}
	return destPath, nil
}

func (c *Client) checkContentType(contentType string) error {
	if len(c.allowed) == 0 {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(normalized, ';'); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	if normalized == "" {
		// Some object stores omit the header; treat as octet-stream.
		normalized = "application/octet-stream"
	}
	for _, prefix := range c.allowed {
		if strings.HasPrefix(normalized, strings.ToLower(prefix)) {
			return nil
		}
	}
	return fmt.Errorf("content type %q not allowed", contentType)
}
