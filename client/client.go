// Package client is the HTTP client for the upstream orchestrator. It
// opens run event streams and fetches persisted history, implementing both
// graph.Orchestrator and history.Source.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/runlens/runlens/graph"
	"github.com/runlens/runlens/graph/history"
)

// Client talks to one orchestrator deployment.
//
// Streams are newline-delimited frames terminated by the literal [DONE]
// token; the caller (normally a graph.Engine) owns closing them. History
// calls are plain request/response. The client performs no retries: a
// dropped stream is terminal for that stream by design.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The default has a
// 30-second timeout on history calls; stream requests always run without a
// client timeout so long runs are not cut off.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the zap logger. Default: zap.NewNop().
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the orchestrator at baseURL, for example
// "http://localhost:8080".
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type startRunRequest struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Input     json.RawMessage `json:"input,omitempty"`
}

type resumeRunRequest struct {
	UserID string `json:"user_id"`
	graph.ResumeRequest
}

// StartRun begins a fresh execution and returns its event stream.
func (c *Client) StartRun(ctx context.Context, sessionID, userID string, input json.RawMessage) (io.ReadCloser, error) {
	body := startRunRequest{SessionID: sessionID, UserID: userID, Input: input}
	c.logger.Info("starting run", zap.String("session_id", sessionID))
	return c.openStream(ctx, c.endpoint("v1", "runs"), body)
}

// ResumeRun reopens a session, to answer an interrupt or to branch from a
// checkpoint, and returns the new event stream.
func (c *Client) ResumeRun(ctx context.Context, sessionID, userID string, req graph.ResumeRequest) (io.ReadCloser, error) {
	body := resumeRunRequest{UserID: userID, ResumeRequest: req}
	c.logger.Info("resuming run",
		zap.String("session_id", sessionID),
		zap.String("checkpoint_id", req.CheckpointID))
	return c.openStream(ctx, c.endpoint("v1", "runs", sessionID, "resume"), body)
}

// FetchStepHistory returns the session's persisted step-log rows.
func (c *Client) FetchStepHistory(ctx context.Context, sessionID string) ([]history.StepLog, error) {
	var rows []history.StepLog
	if err := c.getJSON(ctx, c.endpoint("v1", "sessions", sessionID, "steps"), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchTopology returns the session's persisted checkpoint registrations.
func (c *Client) FetchTopology(ctx context.Context, sessionID string) ([]history.TopologyRecord, error) {
	var recs []history.TopologyRecord
	if err := c.getJSON(ctx, c.endpoint("v1", "sessions", sessionID, "topology"), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// openStream POSTs the request and hands back the response body as the
// event stream. A per-request client without timeout is used so the stream
// can outlive the history-call deadline.
func (c *Client) openStream(ctx context.Context, endpoint string, body interface{}) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	streamClient := &http.Client{Transport: c.http.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case http.StatusNotFound:
		return history.ErrNotFound
	default:
		return c.statusError(resp)
	}
}

func (c *Client) statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.logger.Warn("orchestrator returned error status",
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", snippet))
	return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, snippet)
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	out := c.baseURL
	for _, p := range escaped {
		out += "/" + p
	}
	return out
}
