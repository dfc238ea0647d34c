package graph

import (
	"context"
	"fmt"

	"github.com/quadracode/runtime/internal/chatmsg"
)

// Tool is something the driver node can dispatch a tool call to. The
// concrete tool set is supplied by the embedding application; this
// package only defines the registry and the unknown-tool fallback.
type Tool interface {
	Name() string
	Schema() map[string]any
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// ToolSet resolves tool calls by name.
type ToolSet struct {
	tools map[string]Tool
}

// NewToolSet builds a ToolSet from tools, last one wins on name clash.
func NewToolSet(tools ...Tool) *ToolSet {
	ts := &ToolSet{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		ts.tools[t.Name()] = t
	}
	return ts
}

// Specs returns the ToolSpec advertisement for every registered tool, in
// the order they were registered is not guaranteed (map iteration).
func (ts *ToolSet) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(ts.tools))
	for _, t := range ts.tools {
		specs = append(specs, ToolSpec{Name: t.Name(), Schema: t.Schema()})
	}
	return specs
}

// Invoke runs the named tool and returns the resulting tool turn. An
// unknown tool name does not error the graph: it returns a tool turn
// carrying "error: unknown tool <name>", matching spec.md's
// UnknownTool handling (surfaced as a turn, the graph continues).
func (ts *ToolSet) Invoke(ctx context.Context, call chatmsg.ToolCall) chatmsg.Turn {
	tool, ok := ts.tools[call.Name]
	if !ok {
		return chatmsg.Turn{
			Role:       chatmsg.RoleTool,
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("error: unknown tool %s", call.Name),
			IsError:    true,
		}
	}

	result, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		return chatmsg.Turn{
			Role:       chatmsg.RoleTool,
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("error: %v", err),
			IsError:    true,
		}
	}
	return chatmsg.Turn{Role: chatmsg.RoleTool, ToolCallID: call.ID, Content: result}
}
