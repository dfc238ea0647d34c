// Package registry implements the dynamic agent registration and
// heartbeat client: a plain net/http collaborator following the
// teacher's request/response correlation-id pattern, talking to an
// externally operated registry service this module never implements.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request is the JSON body sent for every registry operation, carrying
// a RequestID for correlation the way the teacher's StorageRequest does.
type Request struct {
	RequestID string         `json:"request_id"`
	AgentID   string         `json:"agent_id"`
	AgentType string         `json:"agent_type,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Response is the JSON body the registry service returns.
type Response struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
}

// Client talks to the registry's register/heartbeat/unregister endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client. baseURL is the registry's address, e.g.
// "http://registry.internal:8080"; operations POST to
// "<baseURL>/register", "/heartbeat", "/unregister".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ErrRegistry wraps a registry failure. It is never fatal to the caller:
// the runtime logs it. A failed heartbeat is sent again on the next
// heartbeat tick; a failed registration or unregistration is not retried.
type ErrRegistry struct {
	Op     string
	Reason string
}

func (e *ErrRegistry) Error() string {
	return fmt.Sprintf("registry %s failed: %s", e.Op, e.Reason)
}

// RegisterAgent registers agentID with the registry.
func (c *Client) RegisterAgent(ctx context.Context, agentID, agentType string, metadata map[string]any) error {
	return c.post(ctx, "register", Request{
		RequestID: uuid.New().String(),
		AgentID:   agentID,
		AgentType: agentType,
		Metadata:  metadata,
	})
}

// Heartbeat reports agentID is still alive.
func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	return c.post(ctx, "heartbeat", Request{
		RequestID: uuid.New().String(),
		AgentID:   agentID,
	})
}

// UnregisterAgent removes agentID from the registry.
func (c *Client) UnregisterAgent(ctx context.Context, agentID string) error {
	return c.post(ctx, "unregister", Request{
		RequestID: uuid.New().String(),
		AgentID:   agentID,
	})
}

func (c *Client) post(ctx context.Context, op string, reqBody Request) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ErrRegistry{Op: op, Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return &ErrRegistry{Op: op, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ErrRegistry{Op: op, Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ErrRegistry{Op: op, Reason: err.Error()}
	}

	if looksLikeError(string(raw)) || len(raw) == 0 {
		return &ErrRegistry{Op: op, Reason: string(raw)}
	}

	var parsed Response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &ErrRegistry{Op: op, Reason: "malformed response: " + err.Error()}
	}
	if !parsed.OK {
		return &ErrRegistry{Op: op, Reason: parsed.Message}
	}
	return nil
}

// looksLikeError detects a registry failure by prefix-matching the
// response body, the way the original runtime's _looks_like_error does:
// the registry has no structured error envelope of its own, so a
// response beginning with one of these phrases (case-insensitive) is
// treated as a failure regardless of HTTP status.
func looksLikeError(body string) bool {
	lower := strings.ToLower(strings.TrimSpace(body))
	for _, prefix := range []string{"registry request failed", "unable to reach"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
