package comdirect

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	headerRequestInfo = "x-http-request-info"
	headerAuthInfo    = "x-once-authentication-info"
	maxBodySize       = 10 << 20
)

// Client talks to the comdirect REST API on behalf of a single account.
// It carries the account's client session id and its own circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
	breaker    *gobreaker.CircuitBreaker
	sessionID  string
	log        zerolog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithSessionID pins the client session id sent in x-http-request-info.
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryPolicy(),
		sessionID:  uuid.New().String(),
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "comdirect-" + c.sessionID,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	return c
}

// SessionID returns the client session id.
func (c *Client) SessionID() string {
	return c.sessionID
}

type request struct {
	method string
	path   string // relative to baseURL, or absolute
	query  url.Values
	form   url.Values
	body   any
	token  string
	header map[string]string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do executes req with retries on network errors and retryable statuses.
// Non-retryable error statuses are returned as *HTTPError without retrying.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.Delay(attempt - 1)
			c.log.Debug().Str("path", req.path).Int("attempt", attempt+1).Dur("backoff", delay).Err(lastErr).Msg("Retrying request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.execute(ctx, req)
		if err == nil {
			if resp.status < 300 {
				return resp, nil
			}
			httpErr := decodeError(resp)
			if !retryableStatus(resp.status) {
				return resp, httpErr
			}
			lastErr = httpErr
			continue
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, c.retry.MaxAttempts, lastErr)
}

// execute runs one round trip through the breaker. Retryable statuses count as
// breaker failures, other responses as successes.
func (c *Client) execute(ctx context.Context, req request) (*response, error) {
	var resp *response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		r, err := c.roundTrip(ctx, req)
		if err != nil {
			return nil, err
		}
		resp = r
		if retryableStatus(r.status) {
			return nil, fmt.Errorf("status %d", r.status)
		}
		return nil, nil
	})
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

func (c *Client) roundTrip(ctx context.Context, req request) (*response, error) {
	target := req.path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + req.path
	}
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	httpReq.Header.Set(headerRequestInfo, c.requestInfo())
	for k, v := range req.header {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}, nil
}

// requestInfo builds the x-http-request-info header value. The request id is
// nine digits derived from the current time.
func (c *Client) requestInfo() string {
	info := struct {
		ClientRequestID struct {
			SessionID string `json:"sessionId"`
			RequestID string `json:"requestId"`
		} `json:"clientRequestId"`
	}{}
	info.ClientRequestID.SessionID = c.sessionID
	info.ClientRequestID.RequestID = fmt.Sprintf("%09d", c.now().UnixMilli()%1_000_000_000)

	data, _ := json.Marshal(info)
	return string(data)
}

func decodeError(resp *response) *HTTPError {
	var body errorBody
	_ = json.Unmarshal(resp.body, &body)
	return body.toHTTPError(resp.status, http.StatusText(resp.status))
}

func decodeJSON(resp *response, v any) error {
	if err := json.Unmarshal(resp.body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
