// Package upstream implements the TypingMind agent chat client. The
// upstream is consumed as a unary request/response; the caller translates
// status codes and body shapes into proxy responses.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/agentfront/agentfront/internal/config"
	"github.com/agentfront/agentfront/internal/telemetry"

	"github.com/google/uuid"
)

// ErrTimeout is returned when the upstream call exceeds its deadline.
var ErrTimeout = errors.New("upstream request timed out")

// Client calls the TypingMind agent chat endpoint.
type Client struct {
	host       string
	defaultKey string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Client from the upstream configuration.
func New(cfg config.UpstreamConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		host:       strings.TrimRight(cfg.APIHost, "/"),
		defaultKey: cfg.APIKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Response is the raw upstream outcome. Body is returned as-is; the
// caller decides whether it parses.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Chat forwards a message list to the agent's chat endpoint with the
// configured deadline attached. apiKey overrides the process-wide default
// credential when non-empty. Returns ErrTimeout on deadline expiry.
func (c *Client) Chat(ctx context.Context, agentID, apiKey string, messages json.RawMessage) (*Response, error) {
	payload, err := json.Marshal(struct {
		Messages json.RawMessage `json:"messages"`
	}{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/v2/agents/%s/chat", c.host, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}

	key := apiKey
	if key == "" {
		key = c.defaultKey
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", key)
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	telemetry.UpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("upstream: call agent %q: %w", agentID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("upstream: read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
