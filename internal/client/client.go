// Package client provides the HTTP and WebSocket client for the reviewkit
// server, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tkohari/reviewkit/internal/metrics"
	"github.com/tkohari/reviewkit/internal/models"
	"github.com/tkohari/reviewkit/internal/notify"
)

// Client talks to the reviewkit server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses REVIEWKIT_SERVER_URL env var or defaults to localhost:8080.
// Timeout can be configured via REVIEWKIT_CLIENT_TIMEOUT env var (default 10m for batch operations).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("REVIEWKIT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := 10 * time.Minute // Default: 10 minutes for batch LLM operations
	if t := os.Getenv("REVIEWKIT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// do sends one JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return apiError(resp.StatusCode, raw)
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func apiError(status int, raw []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{StatusCode: status, Message: payload.Error}
}

// IndexJobInput is the submission payload for an index job.
type IndexJobInput struct {
	Owner      string `json:"owner"`
	IndustryID string `json:"industry_id"`
	SourcePath string `json:"source_path"`
	Mode       string `json:"mode"`
}

// ClassificationJobInput is the submission payload for a classification job.
type ClassificationJobInput struct {
	Owner      string `json:"owner"`
	IndustryID string `json:"industry_id"`
	SourcePath string `json:"source_path"`
	UseIndex   bool   `json:"use_index"`
}

// IndustryInput is the creation payload for an industry.
type IndustryInput struct {
	Owner      string   `json:"owner"`
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// SubmitIndexJob starts an index build job and returns the pending job.
func (c *Client) SubmitIndexJob(ctx context.Context, input IndexJobInput) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodPost, "/api/index-jobs", input, &job)
	return job, err
}

// SubmitClassificationJob starts a classification job and returns the pending job.
func (c *Client) SubmitClassificationJob(ctx context.Context, input ClassificationJobInput) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodPost, "/api/classification-jobs", input, &job)
	return job, err
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

// ListJobs returns jobs, newest first, optionally filtered by owner.
func (c *Client) ListJobs(ctx context.Context, owner string) ([]models.Job, error) {
	path := "/api/jobs"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var jobs []models.Job
	err := c.do(ctx, http.MethodGet, path, nil, &jobs)
	return jobs, err
}

// CancelJob cancels an active job and returns its final state.
func (c *Client) CancelJob(ctx context.Context, id string) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &job)
	return job, err
}

// CreateIndustry registers a classification target with its categories.
func (c *Client) CreateIndustry(ctx context.Context, input IndustryInput) (models.Industry, error) {
	var industry models.Industry
	err := c.do(ctx, http.MethodPost, "/api/industries", input, &industry)
	return industry, err
}

// GetIndustry retrieves an industry by ID.
func (c *Client) GetIndustry(ctx context.Context, id string) (models.Industry, error) {
	var industry models.Industry
	err := c.do(ctx, http.MethodGet, "/api/industries/"+url.PathEscape(id), nil, &industry)
	return industry, err
}

// ListIndustries returns industries, optionally filtered by owner.
func (c *Client) ListIndustries(ctx context.Context, owner string) ([]models.Industry, error) {
	path := "/api/industries"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var industries []models.Industry
	err := c.do(ctx, http.MethodGet, path, nil, &industries)
	return industries, err
}

// GetIndexRecord returns the index record behind an industry, or an APIError
// with status 404 when no index has been built.
func (c *Client) GetIndexRecord(ctx context.Context, industryID string) (models.IndexRecord, error) {
	var rec models.IndexRecord
	err := c.do(ctx, http.MethodGet, "/api/industries/"+url.PathEscape(industryID)+"/index", nil, &rec)
	return rec, err
}

// Stats returns the server's in-memory runtime statistics.
func (c *Client) Stats(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &snap)
	return snap, err
}

// WatchJob streams status events for one job over WebSocket, invoking
// onEvent per change until the job reaches a terminal state. Returning an
// error from onEvent aborts the stream.
func (c *Client) WatchJob(ctx context.Context, jobID string, onEvent func(notify.Event) error) error {
	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	u, err := url.Parse(wsURL + "/ws/jobs/" + url.PathEscape(jobID))
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		// A rejected handshake carries the server's JSON error (404 for an
		// unknown job); surface it instead of the bare websocket error.
		if resp != nil {
			defer resp.Body.Close()
			if raw, readErr := io.ReadAll(resp.Body); readErr == nil && len(raw) > 0 {
				return apiError(resp.StatusCode, raw)
			}
		}
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Close the connection when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev notify.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
		if ev.Status.IsTerminal() {
			return nil
		}
	}
}
