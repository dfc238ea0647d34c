// Package graph implements the bounded reasoning state machine: a tiny
// driver/tools loop (START -> driver -> tools -> driver -> END) the
// runtime invokes once per dispatched envelope, backed by a pluggable
// Checkpointer for per-thread history.
package graph

import (
	"context"
	"fmt"

	"github.com/quadracode/runtime/internal/chatmsg"
)

// DefaultLoopCap bounds the driver<->tools cycle count to prevent a
// runaway tool-calling loop from never reaching END.
const DefaultLoopCap = 32

// ErrLoopCapExceeded is returned when a single Invoke exceeds its
// configured cycle cap without the driver producing a final turn.
type ErrLoopCapExceeded struct {
	Cap int
}

func (e *ErrLoopCapExceeded) Error() string {
	return fmt.Sprintf("reasoning graph exceeded %d driver/tools cycles", e.Cap)
}

// Graph wires a Model and a ToolSet into the driver/tools loop. SystemBase
// is the owning profile's base system prompt (spec.md §4.5 step 1),
// composed fresh with the per-dispatch Outline/SkillMetadata on every
// Invoke call, since Graph is "parameterized only by the profile's system
// prompt and the ambient tool set".
type Graph struct {
	Model      Model
	Tools      *ToolSet
	LoopCap    int
	SystemBase string
}

// New constructs a Graph. loopCap <= 0 uses DefaultLoopCap.
func New(model Model, tools *ToolSet, loopCap int, systemBase string) *Graph {
	if loopCap <= 0 {
		loopCap = DefaultLoopCap
	}
	if tools == nil {
		tools = NewToolSet()
	}
	return &Graph{Model: model, Tools: tools, LoopCap: loopCap, SystemBase: systemBase}
}

// Invoke runs the driver/tools loop starting from messages (the thread's
// prior history plus the newly seeded turn(s) for this dispatch) until the
// driver produces an assistant turn with no pending tool calls, or the
// cycle cap is hit.
//
// Before the loop starts, the system prompt is composed from SystemBase
// plus outline and skills (spec.md §4.5's five-section framing) and
// applied as messages' first turn, replacing any prior system turn in
// place; when the composed prompt is empty (no base, outline, or skills)
// messages is left untouched.
//
// Invoke returns two slices: all is the full history including the
// framing turn, suitable for checkpoint persistence; newMessages is just
// the turns this call produced (what a response payload serializes and
// what the response body is read from), excluding the input and framing.
func (g *Graph) Invoke(ctx context.Context, messages []chatmsg.Turn, outline *Outline, skills []SkillMetadata) (all []chatmsg.Turn, newMessages []chatmsg.Turn, err error) {
	current := append([]chatmsg.Turn(nil), messages...)
	if prompt := ComposeSystemPrompt(g.SystemBase, outline, skills); prompt != "" {
		current = ApplySystemPrompt(current, prompt)
	}
	base := len(current)

	for cycle := 0; cycle < g.LoopCap; cycle++ {
		turn, derr := g.driver(ctx, current)
		current = append(current, turn)
		if derr != nil {
			// A model error still leaves the error-marked turn in the
			// history; the graph stops here rather than looping on a
			// broken model.
			return current, current[base:], nil
		}

		if !turn.HasPendingToolCalls() {
			return current, current[base:], nil
		}

		for _, call := range turn.ToolCalls {
			current = append(current, g.Tools.Invoke(ctx, call))
		}
	}

	return current, current[base:], &ErrLoopCapExceeded{Cap: g.LoopCap}
}

// driver calls the model once and turns a timeout/model error into an
// error-marked assistant turn, returned together with the error, per
// spec.md's ModelTimeout/ModelError handling: Invoke ends the loop on it
// but does not return the error, so the dispatch is not aborted.
func (g *Graph) driver(ctx context.Context, messages []chatmsg.Turn) (chatmsg.Turn, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout := g.Model.Timeout(); timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	turn, err := g.Model.Invoke(callCtx, messages, g.Tools.Specs())
	if err != nil {
		return chatmsg.Turn{
			Role:    chatmsg.RoleAssistant,
			Content: fmt.Sprintf("error: model invocation failed: %v", err),
			IsError: true,
		}, err
	}
	return turn, nil
}
