// Package runtime implements the poll/dispatch/publish/acknowledge loop
// a runtime process runs once it has adopted a profile and claimed an
// identity, following the lifecycle sequencing of the teacher's
// AgentFramework.Run: initialize, connect, process, shut down on signal.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/quadracode/runtime/internal/chatmsg"
	"github.com/quadracode/runtime/internal/envelope"
	"github.com/quadracode/runtime/internal/graph"
	"github.com/quadracode/runtime/internal/logx"
	"github.com/quadracode/runtime/internal/messaging"
	"github.com/quadracode/runtime/internal/metrics"
	"github.com/quadracode/runtime/internal/registry"
	"github.com/quadracode/runtime/internal/routing"
)

// DispatchHook lets an embedding application observe or adjust the
// messages of a single dispatch: PreDispatch receives the graph's full
// input (prior history plus the newly seeded turns), PostDispatch the
// turns the graph produced. Both MUST return a history that is at least
// the input appended to; the runtime does not enforce this, it is a
// caller contract.
type DispatchHook func(messages []chatmsg.Turn) []chatmsg.Turn

// Options configures a Runner.
type Options struct {
	Identity        string
	Profile         *routing.Profile
	Messaging       *messaging.Client
	Graph           *graph.Graph
	Checkpointer    graph.Checkpointer
	PollInterval    time.Duration
	BatchSize       int
	Registry        *registry.Client
	HeartbeatPeriod time.Duration
	Metrics         metrics.Hook
	PreDispatch     DispatchHook
	PostDispatch    DispatchHook
}

// Runner is a single runtime instance: one identity, one profile, one
// poll loop, processing its batch strictly sequentially.
type Runner struct {
	opts Options
	log  *logx.Logger
}

// New constructs a Runner. Identity and Profile are required.
func New(opts Options) (*Runner, error) {
	if opts.Identity == "" {
		return nil, fmt.Errorf("runtime: missing identity")
	}
	if opts.Profile == nil {
		return nil, fmt.Errorf("runtime: missing profile")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop
	}
	return &Runner{opts: opts, log: logx.New("runtime " + opts.Identity)}, nil
}

// Run blocks, polling the identity's mailbox until ctx is cancelled. It
// also starts the registry heartbeat loop when the profile registers.
func (r *Runner) Run(ctx context.Context) error {
	if r.opts.Profile.RegistersWithRegistry && r.opts.Registry != nil {
		go r.heartbeatLoop(ctx)
		if err := r.opts.Registry.RegisterAgent(ctx, r.opts.Identity, r.opts.Profile.Name, nil); err != nil {
			r.log.Error("initial registration failed: %v", err)
		}
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.log.Info("started, polling every %s in batches of %d", r.opts.PollInterval, r.opts.BatchSize)

	for {
		select {
		case <-ctx.Done():
			r.shutdown(ctx)
			return nil
		case <-ticker.C:
			if err := r.pollOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Error("poll iteration failed: %v", err)
			}
		}
	}
}

func (r *Runner) shutdown(ctx context.Context) {
	if r.opts.Profile.RegistersWithRegistry && r.opts.Registry != nil {
		if err := r.opts.Registry.UnregisterAgent(context.Background(), r.opts.Identity); err != nil {
			r.log.Error("unregister failed: %v", err)
		}
	}
	r.log.Info("shutting down gracefully")
}

func (r *Runner) heartbeatLoop(ctx context.Context) {
	period := r.opts.HeartbeatPeriod
	if period <= 0 {
		period = time.Duration(routing.HeartbeatPeriod()) * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.opts.Registry.Heartbeat(ctx, r.opts.Identity); err != nil {
				// RegistryError is never fatal: log and retry next tick.
				r.log.Error("heartbeat failed: %v", err)
			}
		}
	}
}

// pollOnce fetches one batch and processes its entries strictly
// sequentially, in the order they were read.
func (r *Runner) pollOnce(ctx context.Context) error {
	batch, err := r.opts.Messaging.FetchBatch(ctx, r.opts.Identity, r.opts.BatchSize)
	if err != nil {
		return err
	}
	r.opts.Metrics("poll_iterations", 1, nil)

	for _, delivered := range batch {
		r.handleEntry(ctx, delivered)
	}
	return nil
}

// handleEntry processes one delivered envelope end to end, following
// spec.md §4.3's handle_entry algorithm: resolve the thread id, build the
// graph's input state, invoke the graph, assemble the response payload,
// resolve recipients, publish one envelope per recipient, and delete the
// inbound entry regardless of publish success. A panic anywhere in
// processing is caught and logged so one poison entry never blocks the
// rest of the mailbox; the entry is still deleted afterward either way.
func (r *Runner) handleEntry(ctx context.Context, delivered messaging.Delivered) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("runtime error for message %s: %v", delivered.ID, rec)
		}
		if err := r.opts.Messaging.Acknowledge(ctx, r.opts.Identity, delivered.ID); err != nil {
			r.log.Error("failed to acknowledge message %s: %v", delivered.ID, err)
		}
	}()

	env := delivered.Envelope
	threadID := threadIDFor(env, r.opts.Identity)

	priorHistory, err := r.opts.Checkpointer.Get(ctx, threadID)
	if err != nil {
		r.log.Error("checkpoint lookup failed for thread %s: %v", threadID, err)
		priorHistory = nil
	}

	userTurn := chatmsg.Turn{Role: chatmsg.RoleUser, Content: env.Message}

	// When no checkpoint exists yet, the seed state is the payload's own
	// declared history (preferring payload.state.messages, then
	// payload.messages) plus the new turn; when a checkpoint already
	// exists it supplies the history, so the seed is just the new turn.
	var seed []chatmsg.Turn
	if len(priorHistory) > 0 {
		seed = []chatmsg.Turn{userTurn}
	} else {
		seed = append(historyFromPayload(env.Payload), userTurn)
	}

	graphInput := append(append([]chatmsg.Turn(nil), priorHistory...), seed...)
	if r.opts.PreDispatch != nil {
		graphInput = r.opts.PreDispatch(graphInput)
	}

	outline := outlineFromPayload(env.Payload)
	skills := skillsFromPayload(env.Payload)

	deadline := r.opts.Graph.Model.Timeout() * 10
	dispatchCtx, cancel := context.WithTimeout(ctx, deadline)
	all, newMessages, err := r.opts.Graph.Invoke(dispatchCtx, graphInput, outline, skills)
	cancel()
	if err != nil {
		r.log.Error("graph invocation capped out for thread %s: %v", threadID, err)
	}

	if r.opts.PostDispatch != nil {
		hooked := r.opts.PostDispatch(newMessages)
		prefix := all[:len(all)-len(newMessages)]
		all = append(append([]chatmsg.Turn(nil), prefix...), hooked...)
		newMessages = hooked
	}

	if err := r.opts.Checkpointer.Put(ctx, threadID, all); err != nil {
		r.log.Error("checkpoint write failed for thread %s: %v", threadID, err)
	}

	response := chatmsg.LastAssistantContent(newMessages)
	responsePayload := buildResponsePayload(env.Payload, threadID, newMessages)

	recipients := r.opts.Profile.ResolveRecipients(env.Sender, env.Payload)
	for _, recipient := range recipients {
		out := envelope.New(r.opts.Identity, recipient, response, clonePayload(responsePayload))
		if err := r.opts.Messaging.Publish(ctx, out); err != nil {
			r.log.Error("failed to publish response to %s: %v", recipient, err)
			continue
		}
		r.opts.Metrics("envelopes_processed", 1, map[string]string{"recipient": recipient})
	}
}

// threadIDFor resolves the thread id per spec.md §4.3 step 1's precedence
// list: chat_id, thread_id, session_id, ticket_id, then the envelope's own
// sender, then finally this runtime's own identity.
func threadIDFor(env *envelope.Envelope, identity string) string {
	for _, key := range []string{"chat_id", "thread_id", "session_id", "ticket_id"} {
		if v, ok := env.Payload[key].(string); ok && v != "" {
			return v
		}
	}
	if env.Sender != "" {
		return env.Sender
	}
	return identity
}

// historyFromPayload implements spec.md §4.3 step 2's history_from:
// preferring payload.state.messages, then payload.messages, else empty.
func historyFromPayload(payload map[string]any) []chatmsg.Turn {
	if state, ok := payload["state"].(map[string]any); ok {
		if msgs, ok := state["messages"]; ok {
			return chatmsg.FromPayloadMessages(msgs)
		}
	}
	if msgs, ok := payload["messages"]; ok {
		return chatmsg.FromPayloadMessages(msgs)
	}
	return nil
}

// buildResponsePayload implements spec.md §4.3 step 4: copy the inbound
// payload, drop reply_to/messages/state, then set messages, chat_id, and
// thread_id.
func buildResponsePayload(payload map[string]any, threadID string, newMessages []chatmsg.Turn) map[string]any {
	out := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		if k == "reply_to" || k == "messages" || k == "state" {
			continue
		}
		out[k] = v
	}
	out["messages"] = chatmsg.ToPayload(newMessages)
	out["chat_id"] = threadID
	out["thread_id"] = threadID
	return out
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func outlineFromPayload(payload map[string]any) *graph.Outline {
	raw, ok := payload["outline"].(map[string]any)
	if !ok {
		return nil
	}
	outline := &graph.Outline{}
	if s, ok := raw["system"].(string); ok {
		outline.System = s
	}
	if f, ok := raw["focus"]; ok {
		outline.Focus = f
	}
	if segs, ok := raw["ordered_segments"].([]any); ok {
		for _, s := range segs {
			if str, ok := s.(string); ok {
				outline.OrderedSegments = append(outline.OrderedSegments, str)
			}
		}
	}
	return outline
}

func skillsFromPayload(payload map[string]any) []graph.SkillMetadata {
	raw, ok := payload["active_skills_metadata"].([]any)
	if !ok {
		return nil
	}
	out := make([]graph.SkillMetadata, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		skill := graph.SkillMetadata{}
		if name, ok := m["name"].(string); ok {
			skill.Name = name
		}
		if desc, ok := m["description"].(string); ok {
			skill.Description = desc
		}
		out = append(out, skill)
	}
	return out
}
