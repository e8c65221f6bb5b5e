// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/jeranaias/freechat-tui/internal/logging"
)

// Configuration constants.
const (
	// DefaultMaxRetries is the default number of retry attempts for transient errors.
	DefaultMaxRetries = 2

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// streamBuffer is how many content fragments may queue ahead of the reader.
	streamBuffer = 16
)

// Shared transport with connection pooling. No client timeout: streaming
// requests are bounded by their context.
var defaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// Request is one chat completion call.
type Request struct {
	// Endpoint is the full chat completions URL.
	Endpoint string
	// Credential is sent as a bearer token when non-empty.
	Credential string
	// Model is the provider-side model identifier.
	Model     string
	Messages  []openai.ChatCompletionMessage
	MaxTokens int
}

func (r Request) validate() (*url.URL, error) {
	if strings.TrimSpace(r.Model) == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	u, err := url.Parse(strings.TrimSpace(r.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint: %v", ErrInvalidRequest, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint must be an absolute http(s) URL", ErrInvalidRequest)
	}
	return u, nil
}

func (r Request) chatRequest() openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:     r.Model,
		Messages:  r.Messages,
		MaxTokens: r.MaxTokens,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends chat completion requests. It is safe for concurrent use;
// endpoint and credential travel with each Request.
type Client struct {
	httpClient *http.Client
	referer    string
	appTitle   string
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the shared pooled transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAppHeaders sets the HTTP-Referer and X-Title attribution headers.
func WithAppHeaders(referer, title string) Option {
	return func(c *Client) {
		c.referer = referer
		c.appTitle = title
	}
}

// WithRequestsPerMinute throttles outgoing requests. Zero disables throttling.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// WithMaxRetries sets how many times a retryable failure is repeated.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.OrDiscard(l) }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: defaultHTTPClient,
		maxRetries: DefaultMaxRetries,
		retryDelay: retryBaseDelay,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpointDoer pins every request go-openai builds to one exact URL and
// adds the attribution headers.
type endpointDoer struct {
	next     *http.Client
	endpoint *url.URL
	referer  string
	title    string
}

func (d *endpointDoer) Do(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	u := *d.endpoint
	out.URL = &u
	out.Host = ""
	if d.referer != "" {
		out.Header.Set("HTTP-Referer", d.referer)
	}
	if d.title != "" {
		out.Header.Set("X-Title", d.title)
	}
	if out.Header.Get("Authorization") == "Bearer " {
		out.Header.Del("Authorization")
	}
	return d.next.Do(out)
}

func (c *Client) clientFor(req Request, endpoint *url.URL) *openai.Client {
	cfg := openai.DefaultConfig(req.Credential)
	cfg.HTTPClient = &endpointDoer{
		next:     c.httpClient,
		endpoint: endpoint,
		referer:  c.referer,
		title:    c.appTitle,
	}
	return openai.NewClientWithConfig(cfg)
}

// Stream sends req with streaming enabled. Content fragments arrive on the
// first channel, which is closed when the reply ends. The second channel then
// yields nil on success, the context error on cancellation, or the failure.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	out := make(chan string, streamBuffer)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(out)
		errc <- c.stream(ctx, req, out)
	}()
	return out, errc
}

func (c *Client) stream(ctx context.Context, req Request, out chan<- string) error {
	endpoint, err := req.validate()
	if err != nil {
		return err
	}
	client := c.clientFor(req, endpoint)

	var stream *openai.ChatCompletionStream
	err = c.withRetry(ctx, func() error {
		s, err := client.CreateChatCompletionStream(ctx, req.chatRequest())
		if err != nil {
			return classify(err)
		}
		stream = s
		return nil
	})
	if err != nil {
		c.logger.Debug("stream_open_failed", "model", req.Model, "host", endpoint.Host, "error", err)
		return err
	}
	defer stream.Close()

	c.logger.Debug("stream_opened", "model", req.Model, "host", endpoint.Host)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		select {
		case out <- delta:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Complete sends req without streaming and returns the reply text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	endpoint, err := req.validate()
	if err != nil {
		return "", err
	}
	client := c.clientFor(req, endpoint)

	var text string
	err = c.withRetry(ctx, func() error {
		resp, err := client.CreateChatCompletion(ctx, req.chatRequest())
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		c.logger.Debug("completion_failed", "model", req.Model, "host", endpoint.Host, "error", err)
		return "", err
	}
	return text, nil
}

// withRetry runs fn, waiting on the limiter before each attempt and backing
// off between retryable failures.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt - 1)
			c.logger.Debug("request_retry", "attempt", attempt, "delay", delay, "error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		lastErr = fn()
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// calculateBackoff returns the delay to wait before the next retry.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := c.retryDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
