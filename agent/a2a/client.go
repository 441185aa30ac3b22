package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
)

const (
	defaultSubmitTimeout = 60 * time.Second
	maxResponseBytes     = 4 << 20
)

// ClientOption customizes Client.
type ClientOption func(*Client)

func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClientHTTP(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client talks to one remote agent. The base URL comes from configuration or
// from another agent's card.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("agent base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid agent base URL: %w", err)
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		timeout: defaultSubmitTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// FetchCard retrieves the agent's capability manifest.
func (c *Client) FetchCard(ctx context.Context) (contractx.AgentCard, error) {
	var card contractx.AgentCard
	if err := c.do(ctx, http.MethodGet, AgentCardPath, nil, &card); err != nil {
		return contractx.AgentCard{}, err
	}
	return card, nil
}

// Submit sends a message and blocks until the remote agent parks the task in
// a resting state. A non-empty taskID resumes an input-required task.
func (c *Client) Submit(ctx context.Context, taskID, message string) (*taskx.Task, error) {
	body := SubmitRequest{TaskID: taskID, Message: message}
	var t taskx.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask polls a task's current state.
func (c *Client) GetTask(ctx context.Context, id string) (*taskx.Task, error) {
	var t taskx.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Cancel asks the remote agent to stop a task. Safe to call on tasks the
// remote has already finished; the resulting fault is returned, not fatal.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/cancel", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return contractx.NewFault(contractx.KindTimeout, "%s %s timed out", method, path)
		}
		return contractx.NewFault(contractx.KindUpstream, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return contractx.NewFault(contractx.KindUpstream, "read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeFault(raw, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return contractx.NewFault(contractx.KindUpstream, "decode response: %v", err)
	}
	return nil
}

func decodeFault(raw []byte, status int) error {
	var payload struct {
		Error *contractx.Fault `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != nil {
		return payload.Error
	}
	return contractx.NewFault(contractx.KindUpstream, "agent returned status %d", status)
}
