package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterAgentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.AgentID != "agent-1" {
			t.Fatalf("unexpected agent id %q", req.AgentID)
		}
		_ = json.NewEncoder(w).Encode(Response{RequestID: req.RequestID, OK: true})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.RegisterAgent(context.Background(), "agent-1", "agent", nil); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
}

func TestHeartbeatDetectsErrorByPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Registry request failed: upstream unavailable"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Heartbeat(context.Background(), "agent-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := err.(*ErrRegistry); !ok {
		t.Fatalf("expected *ErrRegistry, got %T", err)
	}
}

func TestUnregisterEmptyResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.UnregisterAgent(context.Background(), "agent-1"); err == nil {
		t.Fatalf("expected error for empty response")
	}
}

func TestRegisterAgentOKFalseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{OK: false, Message: "duplicate agent id"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.RegisterAgent(context.Background(), "agent-1", "agent", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
}
