package predict

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 10 * time.Second

	maxBodySize     = 4 << 20
	fallbackMessage = "Error from prediction service"
)

// Client posts payloads to a prediction endpoint. It is safe for concurrent
// use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetries allows n extra attempts after a transport failure or a
// 502/503/504, waiting backoff, 2*backoff, ... between them.
func WithRetries(n int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
		c.backoff = backoff
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithRootCAs trusts pool when the endpoint is https.
func WithRootCAs(pool *x509.CertPool) ClientOption {
	return func(c *Client) {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		c.httpClient.Transport = t
	}
}

// NewClient returns a client posting to endpoint. A non-positive timeout
// means DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServiceEndpoint is the predict URL of a prediction service at baseURL.
func ServiceEndpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/predict"
}

// Predict sends p and returns the response body, which is guaranteed to be
// valid JSON.
func (c *Client) Predict(ctx context.Context, p Payload) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	for attempt := 0; ; attempt++ {
		out, err := c.do(ctx, body)
		if err == nil {
			return out, nil
		}
		if attempt >= c.maxRetries || !retryable(err) {
			return nil, err
		}

		wait := c.backoff << attempt
		c.log.Warn("prediction attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, &UnavailableError{Err: ctx.Err()}
		case <-t.C:
		}
	}
}

func (c *Client) do(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if !json.Valid(data) {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: "invalid JSON in prediction service response"}
	}
	return data, nil
}

// errorMessage extracts a readable message from an error body. It understands
// {"detail": "..."}, the list form {"detail": [{"msg": "..."}]}, and this
// proxy's own {"error": "..."}.
func errorMessage(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return fallbackMessage
	}

	var s string
	if json.Unmarshal(e.Detail, &s) == nil && s != "" {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(e.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	if e.Error != "" {
		return e.Error
	}
	return fallbackMessage
}
