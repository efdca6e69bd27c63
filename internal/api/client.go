// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/pinewire/internal/types"
)

// Client talks to the Pine service's REST API. The websocket link carries
// session frames; everything else (session CRUD, tasks, payment links)
// goes through here.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a REST client for the given base URL and API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Identity is the authenticated account behind the API key.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Plan   string `json:"plan,omitempty"`
}

// createSessionRequest is the session creation body.
type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// startTaskRequest is the task start body.
type startTaskRequest struct {
	SessionID types.SessionID `json:"session_id"`
	Prompt    string          `json:"prompt"`
}

// TaskReceipt acknowledges a started background task.
type TaskReceipt struct {
	TaskID    string          `json:"task_id"`
	SessionID types.SessionID `json:"session_id"`
	State     string          `json:"state"`
}

// paymentLinkRequest is the payment link generation body.
type paymentLinkRequest struct {
	Plan string `json:"plan,omitempty"`
}

// PaymentLink is a checkout URL for upgrading the account.
type PaymentLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// listSessionsResponse wraps the session list endpoint's body.
type listSessionsResponse struct {
	Sessions []*types.SessionInfo `json:"sessions"`
}

// Me verifies the API key and returns the account it belongs to.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// CreateSession opens a new session on the service.
func (c *Client) CreateSession(ctx context.Context, title string) (*types.SessionInfo, error) {
	var info types.SessionInfo
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", createSessionRequest{Title: title}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListSessions returns the account's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]*types.SessionInfo, error) {
	var resp listSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSession returns one session's current state. Satisfies
// types.SessionStater for the multiplexer's pre-listen check.
func (c *Client) GetSession(ctx context.Context, id types.SessionID) (*types.SessionInfo, error) {
	var info types.SessionInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+string(id), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StartTask kicks off a background task in the given session.
func (c *Client) StartTask(ctx context.Context, sessionID types.SessionID, prompt string) (*TaskReceipt, error) {
	var receipt TaskReceipt
	req := startTaskRequest{SessionID: sessionID, Prompt: prompt}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// CreatePaymentLink generates a checkout URL for the given plan.
func (c *Client) CreatePaymentLink(ctx context.Context, plan string) (*PaymentLink, error) {
	var link PaymentLink
	if err := c.do(ctx, http.MethodPost, "/api/v1/payment-links", paymentLinkRequest{Plan: plan}, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// do issues one JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	// Correlates client requests with server-side traces.
	req.Header.Set("X-Request-ID", string(types.NewRequestID()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}

// NotFound reports whether the error is a 404 API response.
func NotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}
