package gateway

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

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

const (
	defaultCallTimeout = 15 * time.Second
	maxReadRetries     = 2
	retryBaseBackoff   = 150 * time.Millisecond
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

func WithClientHTTP(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// Client invokes gateway operations over HTTP. Idempotent reads are retried
// a bounded number of times with backoff; writes never are, so a slow
// create_ticket cannot turn into a duplicate ticket.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

var _ contractx.ToolInvoker = (*Client)(nil)

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    defaultCallTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) Invoke(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	attempts := 1
	if ReadOnlyOps[req.Tool] {
		attempts += maxReadRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := retryBaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return contractx.ToolResult{}, faultForCtx(ctx, req.Tool)
			case <-time.After(backoff):
			}
			log.Debug().Str("tool", req.Tool).Int("attempt", attempt+1).Msg("retrying tool invocation")
		}

		result, err := c.invokeOnce(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// A structured fault from the gateway is a definitive answer, not a
		// transport hiccup; retrying would return the same thing.
		var fault *contractx.Fault
		if errors.As(err, &fault) && fault.Kind != contractx.KindTimeout {
			return contractx.ToolResult{Tool: req.Tool, Error: fault}, nil
		}
		if ctx.Err() != nil {
			return contractx.ToolResult{}, faultForCtx(ctx, req.Tool)
		}
	}

	return contractx.ToolResult{}, fmt.Errorf("invoke %s: %w", req.Tool, lastErr)
}

func (c *Client) invokeOnce(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req.Args)
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("marshal args: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.baseURL+"/tools/"+url.PathEscape(req.Tool), bytes.NewReader(body))
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return contractx.ToolResult{}, contractx.NewFault(contractx.KindTimeout,
				"tool %s timed out after %s", req.Tool, c.timeout)
		}
		return contractx.ToolResult{}, fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error *contractx.Fault `json:"error"`
		}
		if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != nil {
			return contractx.ToolResult{}, payload.Error
		}
		return contractx.ToolResult{}, fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result contractx.ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return contractx.ToolResult{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if result.Tool == "" {
		result.Tool = req.Tool
	}
	return result, nil
}

func faultForCtx(ctx context.Context, tool string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return contractx.NewFault(contractx.KindTimeout, "tool %s deadline exceeded", tool)
	}
	return ctx.Err()
}

const maxResponseBytes = 4 << 20
