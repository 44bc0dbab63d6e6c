package defai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 60 * time.Second

// Client wraps the HTTP interactions with the DeFAI Agent REST API. A Client
// tracks the session identifier assigned by the server so that consecutive
// Chat calls stay within the same conversation.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string

	mu        sync.RWMutex
	sessionID string
}

// ChatRequest represents one user message sent to the agent.
type ChatRequest struct {
	Message       string `json:"message"`
	WalletAddress string `json:"wallet_address,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}

// ChatResponse is the agent's reply for one turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// HistoryRecord is one past turn of the conversation.
type HistoryRecord struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// Balance reports the native-token balance of an address.
type Balance struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("defai api error (%d): %s", e.StatusCode, e.Message)
}

// Option customises client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithAPIKey sets the bearer token attached to every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// NewClient instantiates a client for the DeFAI Agent API.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Chat sends one message and returns the agent's reply. The session
// identifier returned by the server is remembered for the next call.
func (c *Client) Chat(ctx context.Context, message, walletAddress string) (ChatResponse, error) {
	req := ChatRequest{
		Message:       message,
		WalletAddress: walletAddress,
		SessionID:     c.SessionID(),
	}
	var resp ChatResponse
	if err := c.post(ctx, "/api/v1/chat", req, &resp); err != nil {
		return ChatResponse{}, err
	}
	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.mu.Unlock()
	return resp, nil
}

// History fetches the most recent turns of the current session.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryRecord, error) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return nil, nil
	}
	endpoint := fmt.Sprintf("/api/v1/history?session_id=%s", url.QueryEscape(sessionID))
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	var records []HistoryRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// BalanceOf fetches the native-token balance of the address.
func (c *Client) BalanceOf(ctx context.Context, address string) (Balance, error) {
	endpoint := fmt.Sprintf("/api/v1/balance?address=%s", url.QueryEscape(address))
	var balance Balance
	if err := c.get(ctx, endpoint, &balance); err != nil {
		return Balance{}, err
	}
	return balance, nil
}

// SessionID returns the session identifier assigned by the server, if any.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// SetSessionID overrides the tracked session identifier.
func (c *Client) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parts := bytes.SplitN([]byte(endpoint), []byte("?"), 2)
	rel := &url.URL{Path: path.Join(c.baseURL.Path, string(parts[0]))}
	if len(parts) == 2 {
		rel.RawQuery = string(parts[1])
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(data)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
