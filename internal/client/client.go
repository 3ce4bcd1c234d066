// Package client talks to a running ragchat server over HTTP.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const maxEventSize = 1 << 20

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status         int
	Code           string
	Message        string
	IngestedChunks int
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("ragchat: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("ragchat: %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// StreamError is an error event received mid-stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "ragchat: stream error: " + e.Message }

// ErrStreamTruncated means the connection closed before the done event.
var ErrStreamTruncated = errors.New("ragchat: stream ended without done event")

// Client is a ragchat API client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as a Bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: streams stay open as long as the model writes.
		http: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 2 * time.Minute,
		}},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// HistoryItem is a prior conversation turn.
type HistoryItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of /chat and /chat/stream. Every field is sent.
type ChatRequest struct {
	Message      string        `json:"message"`
	SystemPrompt string        `json:"system_prompt"`
	Temperature  float64       `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
	UseRAG       bool          `json:"use_rag"`
	TopK         int           `json:"top_k"`
	History      []HistoryItem `json:"history"`
}

// IngestResult is the answer of /ingest.
type IngestResult struct {
	IngestedChunks int
	RunID          string
}

// Health is the answer of /health.
type Health struct {
	Status string
	Checks map[string]string
	Chunks int // -1 when the server did not report it
}

// Chat sends a synchronous chat turn and returns the answer.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/chat", req)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "text").String(), nil
}

// ChatStream sends a streaming chat turn. The sequence yields text deltas;
// an error ends it. Breaking out of the loop closes the connection.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.send(ctx, http.MethodPost, "/chat/stream", req, "text/event-stream")
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
		for sc.Scan() {
			payload, ok := strings.CutPrefix(sc.Text(), "data:")
			if !ok {
				continue
			}
			payload = strings.TrimSpace(payload)
			if !gjson.Valid(payload) {
				continue
			}
			ev := gjson.Parse(payload)
			switch {
			case ev.Get("event").String() == "done":
				return
			case ev.Get("error").Exists():
				yield("", &StreamError{Message: ev.Get("error").String()})
				return
			case ev.Get("token").Exists():
				if !yield(ev.Get("token").String(), nil) {
					return
				}
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("ragchat: read stream: %w", err))
			return
		}
		yield("", ErrStreamTruncated)
	}
}

// Ingest asks the server to index its knowledge folder.
func (c *Client) Ingest(ctx context.Context) (IngestResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/ingest", nil)
	if err != nil {
		return IngestResult{}, err
	}
	r := gjson.ParseBytes(body)
	return IngestResult{
		IngestedChunks: int(r.Get("ingested_chunks").Int()),
		RunID:          r.Get("run_id").String(),
	}, nil
}

// Health returns the server health report. A degraded server is not an error.
func (c *Client) Health(ctx context.Context) (Health, error) {
	resp, err := c.send(ctx, http.MethodGet, "/health", nil, "application/json")
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
			return Health{}, err
		}
		return parseHealth([]byte(apiErr.Message)), nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Health{}, fmt.Errorf("ragchat: read health: %w", err)
	}
	return parseHealth(body), nil
}

func parseHealth(body []byte) Health {
	r := gjson.ParseBytes(body)
	h := Health{Status: r.Get("status").String(), Checks: map[string]string{}, Chunks: -1}
	r.Get("checks").ForEach(func(k, v gjson.Result) bool {
		h.Checks[k.String()] = v.String()
		return true
	})
	if c := r.Get("chunks"); c.Exists() {
		h.Chunks = int(c.Int())
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	resp, err := c.send(ctx, method, path, in, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ragchat: read %s: %w", path, err)
	}
	return body, nil
}

// send performs the request and turns non-2xx answers into *APIError.
func (c *Client) send(ctx context.Context, method, path string, in any, accept string) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("ragchat: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("ragchat: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ragchat: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxEventSize))
	return nil, parseAPIError(resp.StatusCode, raw)
}

func parseAPIError(status int, raw []byte) *APIError {
	e := &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	if !gjson.ValidBytes(raw) {
		return e
	}
	r := gjson.ParseBytes(raw)
	if status == http.StatusServiceUnavailable && r.Get("status").Exists() {
		// health reports keep their body so the caller can parse it
		return e
	}
	if m := r.Get("message"); m.Exists() {
		e.Code = r.Get("code").String()
		e.Message = m.String()
	}
	e.IngestedChunks = int(r.Get("ingested_chunks").Int())
	return e
}
