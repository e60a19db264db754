// Package client is the Go consumer of the REST API: a typed HTTP client
// plus a reconciler that maintains a stable task list across polls.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/italolelis/cloudleecher/internal/logbuf"
	"github.com/italolelis/cloudleecher/internal/status"
)

var (
	// ErrUnauthorized means the API key was rejected. Not retryable; polling
	// stops and surfaces the error.
	ErrUnauthorized = errors.New("api key rejected")

	// ErrQueueBusy means another download already occupies the queue slot.
	ErrQueueBusy = errors.New("another download is already in progress")
)

// Client talks to the server's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// DriveInfo mirrors the server's durable storage capacity report:
// total/used/free are byte counts, the *_human keys carry renderings.
type DriveInfo struct {
	Total       uint64 `json:"total"`
	Used        uint64 `json:"used"`
	Free        uint64 `json:"free"`
	TotalHuman  string `json:"total_human"`
	UsedHuman   string `json:"used_human"`
	FreeHuman   string `json:"free_human"`
	UsedPercent int    `json:"used_percent"`
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) AddMagnet(ctx context.Context, magnet string) (string, error) {
	var resp struct {
		GID string `json:"gid"`
	}

	err := c.do(ctx, http.MethodPost, "/api/download/magnet", map[string]string{"magnet": magnet}, &resp)

	return resp.GID, err
}

func (c *Client) AddFile(ctx context.Context, torrent []byte) (string, error) {
	var resp struct {
		GID string `json:"gid"`
	}

	payload := map[string]string{"torrent": base64.StdEncoding.EncodeToString(torrent)}

	err := c.do(ctx, http.MethodPost, "/api/download/file", payload, &resp)

	return resp.GID, err
}

func (c *Client) Status(ctx context.Context) (status.Snapshot, error) {
	var snap status.Snapshot

	err := c.do(ctx, http.MethodGet, "/api/status", nil, &snap)

	return snap, err
}

func (c *Client) Pause(ctx context.Context, gid string) error {
	return c.do(ctx, http.MethodPost, "/api/control/pause", map[string]string{"gid": gid}, nil)
}

func (c *Client) Resume(ctx context.Context, gid string) error {
	return c.do(ctx, http.MethodPost, "/api/control/resume", map[string]string{"gid": gid}, nil)
}

func (c *Client) Remove(ctx context.Context, gid string) error {
	return c.do(ctx, http.MethodPost, "/api/control/remove", map[string]string{"gid": gid}, nil)
}

func (c *Client) DriveInfo(ctx context.Context) (DriveInfo, error) {
	var info DriveInfo

	err := c.do(ctx, http.MethodGet, "/api/drive/info", nil, &info)

	return info, err
}

func (c *Client) Logs(ctx context.Context) ([]logbuf.Entry, error) {
	var resp struct {
		Logs []logbuf.Entry `json:"logs"`
	}

	err := c.do(ctx, http.MethodGet, "/api/logs", nil, &resp)

	return resp.Logs, err
}

func (c *Client) Cleanup(ctx context.Context) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}

	err := c.do(ctx, http.MethodPost, "/api/cleanup", nil, &resp)

	return resp.Removed, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		return ErrQueueBusy
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error string `json:"error"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("api error: status %d", resp.StatusCode)
		}

		return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
