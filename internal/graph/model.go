package graph

import (
	"context"
	"time"

	"github.com/quadracode/runtime/internal/chatmsg"
)

// ToolSpec is how a tool advertises itself to a Model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Model is the out-of-scope LLM collaborator: something that takes a
// conversation and the tools available and returns the next turn. The
// runtime never constructs a concrete Model; callers supply one.
type Model interface {
	Invoke(ctx context.Context, messages []chatmsg.Turn, tools []ToolSpec) (chatmsg.Turn, error)
	// Timeout bounds a single Invoke call; the runtime derives its
	// overall per-dispatch deadline from it.
	Timeout() time.Duration
}

// StubModel is a deterministic Model for tests and local development:
// it never calls out to anything, always answers with a fixed turn or
// one supplied by Responses in order.
type StubModel struct {
	Responses      []chatmsg.Turn
	DefaultContent string
	next           int
}

func (m *StubModel) Invoke(_ context.Context, _ []chatmsg.Turn, _ []ToolSpec) (chatmsg.Turn, error) {
	if m.next < len(m.Responses) {
		t := m.Responses[m.next]
		m.next++
		return t, nil
	}
	return chatmsg.Turn{Role: chatmsg.RoleAssistant, Content: m.DefaultContent}, nil
}

func (m *StubModel) Timeout() time.Duration {
	return 5 * time.Second
}
