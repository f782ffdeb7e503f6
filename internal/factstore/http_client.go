package factstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jaineelmodi11/KingsHacks/internal/circuitbreaker"
	"github.com/jaineelmodi11/KingsHacks/internal/metrics"
	"github.com/jaineelmodi11/KingsHacks/internal/retry"
)

// DefaultBaseURL is the hosted memory service.
const DefaultBaseURL = "https://app.backboard.io/api"

const maxResponseBytes = 4 << 20

// Config configures the HTTP client.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration // per HTTP request
	MaxAttempts int           // per candidate endpoint, transport errors and 5xx only
	RetryDelay  time.Duration
}

// HTTPClient is the Client backed by the remote memory service.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

// NewHTTPClient creates a client. Zero-valued Config fields take defaults.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    circuitbreaker.New("factstore", 5, 30*time.Second),
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger.
func (c *HTTPClient) WithLogger(l *slog.Logger) *HTTPClient {
	c.logger = l
	return c
}

// WithBreaker replaces the circuit breaker guarding the base URL.
func (c *HTTPClient) WithBreaker(b *circuitbreaker.Breaker) *HTTPClient {
	c.breaker = b
	return c
}

// BreakerState reports the state of the circuit guarding the upstream.
func (c *HTTPClient) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

func (c *HTTPClient) CreateAssistant(ctx context.Context, name string) (string, error) {
	body := map[string]any{"name": name, "display_name": name}
	paths := []string{"assistants", "v1/assistants", "api/v1/assistants", "api/assistants"}
	data, err := c.requestWithFallback(ctx, "create_assistant", http.MethodPost, paths, jsonBody(body))
	if err != nil {
		return "", err
	}
	id := identifier(data, "id", "assistant_id", "assistantId", "data.id")
	if id == "" {
		return "", fmt.Errorf("%w: assistant", ErrMissingID)
	}
	return id, nil
}

func (c *HTTPClient) CreateThread(ctx context.Context, assistantID string) (string, error) {
	body := map[string]any{"assistant_id": assistantID, "assistantId": assistantID}
	paths := []string{
		"assistants/" + assistantID + "/threads",
		"v1/assistants/" + assistantID + "/threads",
		"api/v1/assistants/" + assistantID + "/threads",
		"threads",
		"v1/threads",
	}
	data, err := c.requestWithFallback(ctx, "create_thread", http.MethodPost, paths, jsonBody(body))
	if err != nil {
		return "", err
	}
	id := identifier(data, "id", "thread_id", "threadId", "data.id")
	if id == "" {
		return "", fmt.Errorf("%w: thread", ErrMissingID)
	}
	return id, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, h Handle, message string, mode MemoryMode) ([]byte, error) {
	form := url.Values{}
	form.Set("thread_id", h.ThreadID)
	form.Set("threadId", h.ThreadID)
	form.Set("content", message)
	form.Set("stream", "false")
	form.Set("send_to_llm", "true")
	form.Set("memory", string(mode))

	paths := []string{
		"threads/" + h.ThreadID + "/messages",
		"v1/threads/" + h.ThreadID + "/messages",
		"api/v1/threads/" + h.ThreadID + "/messages",
	}
	if h.AssistantID != "" {
		for _, prefix := range []string{"assistants", "api/assistants", "v1/assistants", "api/v1/assistants"} {
			paths = append(paths, prefix+"/"+h.AssistantID+"/threads/"+h.ThreadID+"/messages")
		}
	}
	paths = append(paths, "messages", "v1/messages", "api/v1/messages")

	return c.requestWithFallback(ctx, "send_message", http.MethodPost, paths, requestBody{form: form})
}

func (c *HTTPClient) Add(ctx context.Context, h Handle, text string, metadata map[string]any) error {
	body := map[string]any{"content": text}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	_, err := c.requestWithFallback(ctx, "add", http.MethodPost, memoryPaths(h.AssistantID), jsonBody(body))
	return err
}

func (c *HTTPClient) List(ctx context.Context, h Handle) ([]Record, error) {
	data, err := c.requestWithFallback(ctx, "list", http.MethodGet, memoryPaths(h.AssistantID), requestBody{})
	if err != nil {
		return nil, err
	}
	return NormalizeMemories(data), nil
}

// Retrieve asks the assistant for the memories relevant to query via a
// throwaway message, falling back to a full listing when the response does
// not echo the retrieved memories.
func (c *HTTPClient) Retrieve(ctx context.Context, h Handle, query string, topK int) ([]Record, error) {
	prompt := "Memory lookup. Reply only with 'OK'.\n" +
		"Query: " + query + "\n" +
		"Do not store this message as a user memory."

	payload, err := c.SendMessage(ctx, h, prompt, MemoryOff)
	if IsStatus(err, http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusUnprocessableEntity) {
		payload, err = c.SendMessage(ctx, h, prompt, MemoryAuto)
	}
	if err != nil {
		return nil, err
	}

	records := ExtractRetrieved(payload)
	if len(records) == 0 {
		records, err = c.List(ctx, h)
		if err != nil {
			return nil, err
		}
	}
	return preferTagged(records, topK), nil
}

func memoryPaths(assistantID string) []string {
	return []string{
		"assistants/" + assistantID + "/memories",
		"v1/assistants/" + assistantID + "/memories",
		"api/v1/assistants/" + assistantID + "/memories",
		"api/assistants/" + assistantID + "/memories",
	}
}

type requestBody struct {
	json any
	form url.Values
}

func jsonBody(v any) requestBody { return requestBody{json: v} }

// requestWithFallback tries each candidate path in order. Transport errors
// and 5xx are retried on the same path, then the next path is tried; 404/405
// move straight on. Auth failures and other 4xx end the walk.
func (c *HTTPClient) requestWithFallback(ctx context.Context, op, method string, paths []string, body requestBody) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if !c.breaker.Allow() {
		metrics.FactstoreRequestsTotal.WithLabelValues(op, "circuit_open").Inc()
		return nil, ErrCircuitOpen
	}

	tried := make([]string, 0, len(paths))
	for _, p := range paths {
		u := c.cfg.BaseURL + "/" + strings.TrimLeft(p, "/")

		var status int
		var data []byte
		err := c.retryPolicy(op).Do(ctx, func() error {
			var err error
			status, data, err = c.do(ctx, method, u, body)
			if err != nil {
				return err
			}
			if status >= 500 {
				return fmt.Errorf("status %d", status)
			}
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if errors.Is(ctxErr, context.DeadlineExceeded) {
					c.breaker.Failure()
				}
				metrics.FactstoreRequestsTotal.WithLabelValues(op, "timeout").Inc()
				return nil, ctxErr
			}
			tried = append(tried, fmt.Sprintf("%s: %v", u, err))
			continue
		}

		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			c.breaker.Success()
			metrics.FactstoreRequestsTotal.WithLabelValues(op, "unauthorized").Inc()
			return nil, ErrUnauthorized
		case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
			tried = append(tried, fmt.Sprintf("%s: %d", u, status))
			continue
		case status >= 400:
			c.breaker.Success()
			metrics.FactstoreRequestsTotal.WithLabelValues(op, "rejected").Inc()
			return nil, &StatusError{Code: status, Body: truncate(string(data), 512)}
		}

		c.breaker.Success()
		if !gjson.ValidBytes(data) {
			metrics.FactstoreRequestsTotal.WithLabelValues(op, "non_json").Inc()
			return nil, ErrNonJSON
		}
		metrics.FactstoreRequestsTotal.WithLabelValues(op, "ok").Inc()
		return data, nil
	}

	c.breaker.Failure()
	metrics.FactstoreRequestsTotal.WithLabelValues(op, "unavailable").Inc()
	c.logger.Warn("fact store endpoints exhausted", "op", op, "tried", len(tried))
	return nil, fmt.Errorf("%w: tried %s", ErrUnavailable, strings.Join(tried, "; "))
}

func (c *HTTPClient) retryPolicy(op string) retry.Policy {
	return retry.Policy{
		MaxAttempts: c.cfg.MaxAttempts,
		BaseDelay:   c.cfg.RetryDelay,
		MaxDelay:    2 * time.Second,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Debug("retrying fact store request", "op", op, "attempt", attempt, "wait", wait, "error", err)
		},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, u string, body requestBody) (int, []byte, error) {
	var reader io.Reader
	var contentType string
	switch {
	case body.json != nil:
		data, err := json.Marshal(body.json)
		if err != nil {
			return 0, nil, retry.Permanent(fmt.Errorf("marshal request body: %w", err))
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	case body.form != nil:
		reader = strings.NewReader(body.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Client = (*HTTPClient)(nil)
