package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for reaching a TravelProof API.
type Config struct {
	APIURL    string // Base URL, e.g. "http://localhost:8080"
	APIKey    string // Optional bearer token for a fronting gateway
	SessionID string // Cardholder session the tools act on
}

// Client is a thin HTTP client for the TravelProof /v1 API, scoped to
// one cardholder session.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client for the configured session.
func NewClient(cfg Config) *Client {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) sessionPath(suffix string) string {
	return "/v1/sessions/" + url.PathEscape(c.cfg.SessionID) + suffix
}

// doRequest makes an HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// Preview scores purchases without persisting anything.
func (c *Client) Preview(ctx context.Context, purchases []map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, c.sessionPath("/purchase/preview"), nil,
		map[string]any{"purchases": purchases})
}

// Authorize runs an authorization for cardID.
func (c *Client) Authorize(ctx context.Context, cardID string, purchase map[string]any) (json.RawMessage, error) {
	body := make(map[string]any, len(purchase)+1)
	for k, v := range purchase {
		body[k] = v
	}
	body["card_id"] = cardID
	return c.doRequest(ctx, http.MethodPost, c.sessionPath("/payment/authorize"), nil, body)
}

// VerifyChallenge answers a pending challenge with APPROVE or DENY.
func (c *Client) VerifyChallenge(ctx context.Context, challengeID, action string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, c.sessionPath("/payment/challenge/verify"), nil,
		map[string]string{"challenge_id": challengeID, "action": action})
}

// ListCards returns the session's cards.
func (c *Client) ListCards(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, c.sessionPath("/cards"), nil, nil)
}

// Personalization returns the extracted profile view.
func (c *Client) Personalization(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, c.sessionPath("/personalization"), nil, nil)
}

// ListPayments returns recent payment attempts, newest first.
func (c *Client) ListPayments(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, c.sessionPath("/payments"), q, nil)
}
