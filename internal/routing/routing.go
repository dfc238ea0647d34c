// Package routing implements the profile and recipient-resolution engine:
// which identities a response gets addressed to, keyed by the runtime's
// adopted profile.
package routing

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Well-known symbolic identities, kept as exported constants the way the
// original runtime keeps module-level recipient constants.
const (
	HumanRecipient        = "human"
	OrchestratorRecipient = "orchestrator"
	HumanCloneRecipient   = "human-clone"
)

// ErrUnknownProfile is returned by Load for a profile name the runtime
// does not recognize. Treated as a fatal startup error by the caller.
type ErrUnknownProfile struct {
	Name string
}

func (e *ErrUnknownProfile) Error() string {
	return fmt.Sprintf("unknown profile %q", e.Name)
}

// Directive is the routing instruction a dispatch may carry in
// payload.autonomous. Only DeliverToHuman and Escalate influence recipient
// selection; Recipient/Reason/RecoveryAttempts are informational and are
// round-tripped through the response payload like any other field, not
// consulted by the resolver.
type Directive struct {
	DeliverToHuman   bool
	Escalate         bool
	Recipient        string
	Reason           string
	RecoveryAttempts []string
}

// ParseDirective extracts payload.autonomous from an envelope's payload,
// if present. A missing or malformed directive is not an error: it just
// yields a zero-value Directive, since routing falls back to the
// resolver's normal fallback behavior in that case.
func ParseDirective(payload map[string]any) Directive {
	raw, ok := payload["autonomous"].(map[string]any)
	if !ok {
		return Directive{}
	}
	d := Directive{}
	if v, ok := raw["deliver_to_human"].(bool); ok {
		d.DeliverToHuman = v
	}
	if v, ok := raw["escalate"].(bool); ok {
		d.Escalate = v
	}
	if v, ok := raw["recipient"].(string); ok {
		d.Recipient = v
	}
	if v, ok := raw["reason"].(string); ok {
		d.Reason = v
	}
	if list, ok := raw["recovery_attempts"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				d.RecoveryAttempts = append(d.RecoveryAttempts, s)
			}
		}
	}
	return d
}

// ParseReplyTo reads payload.reply_to, coercing a bare string to a
// one-element list and dropping empty entries, matching spec.md §3's
// "string or ordered list of strings" field shape.
func ParseReplyTo(payload map[string]any) []string {
	switch v := payload["reply_to"].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return dedupe(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return dedupe(out)
	default:
		return nil
	}
}

// dedupe keeps the first occurrence of each non-empty entry, preserving
// order.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, id := range items {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// removeAll returns items with every occurrence of target stripped out.
func removeAll(items []string, target string) []string {
	out := make([]string, 0, len(items))
	for _, id := range items {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func contains(items []string, target string) bool {
	for _, id := range items {
		if id == target {
			return true
		}
	}
	return false
}

// Profile is an immutable record binding a name to its base system prompt,
// default identity, and recipient-resolution behavior, plus whether the
// registry heartbeat integration applies. Autonomous mode is not a
// separate profile: it's a construction-time branch inside Load that
// produces an orchestrator Profile with Autonomous set, so the record
// itself stays immutable after load.
type Profile struct {
	Name                  string
	DefaultIdentity       string
	SystemPrompt          string
	Autonomous            bool
	RegistersWithRegistry bool
}

// truthySet mirrors the original runtime's positive truthy check used
// for mode-enabling flags: membership, not prefix/suffix matching.
var truthySet = map[string]struct{}{"1": {}, "true": {}, "yes": {}, "on": {}}

func isTruthy(v string) bool {
	_, ok := truthySet[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// falsySet mirrors the original runtime's default-true check used for
// QUADRACODE_AGENT_AUTOREGISTER: absence of a match means "on". This is
// structurally different from isTruthy and must stay a separate helper;
// collapsing them would silently change either default.
var falsySet = map[string]struct{}{"0": {}, "false": {}, "no": {}, "off": {}}

func isFalsy(v string) bool {
	_, ok := falsySet[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// AutonomousModeEnabled reports whether the autonomous orchestrator
// variant is active, per QUADRACODE_MODE / QUADRACODE_AUTONOMOUS_MODE /
// HUMAN_OBSOLETE_MODE.
func AutonomousModeEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("QUADRACODE_MODE"))) {
	case "autonomous", "human_obsolete":
		return true
	}
	if isTruthy(os.Getenv("QUADRACODE_AUTONOMOUS_MODE")) {
		return true
	}
	if isTruthy(os.Getenv("HUMAN_OBSOLETE_MODE")) {
		return true
	}
	return false
}

// AgentAutoregisterEnabled reports whether an agent profile should
// register with the registry, default true unless explicitly disabled.
func AgentAutoregisterEnabled() bool {
	return !isFalsy(os.Getenv("QUADRACODE_AGENT_AUTOREGISTER"))
}

// Load resolves name to a concrete Profile. The orchestrator profile
// transparently becomes the autonomous variant when
// AutonomousModeEnabled reports true, matching the original runtime's
// construction-time branch: callers never need to check the mode flags
// themselves.
func Load(name string) (*Profile, error) {
	switch name {
	case "orchestrator":
		if AutonomousModeEnabled() {
			return autonomousProfile(), nil
		}
		return orchestratorProfile(), nil
	case "agent":
		return agentProfile(), nil
	case "supervisor-proxy":
		return supervisorProxyProfile(), nil
	default:
		return nil, &ErrUnknownProfile{Name: name}
	}
}

func orchestratorProfile() *Profile {
	return &Profile{
		Name:            "orchestrator",
		DefaultIdentity: OrchestratorRecipient,
		SystemPrompt: "You are the orchestrator. You receive requests from the human and " +
			"delegate them to agents, relaying their results back to the human.",
	}
}

func autonomousProfile() *Profile {
	return &Profile{
		Name:            "orchestrator",
		DefaultIdentity: OrchestratorRecipient,
		Autonomous:      true,
		SystemPrompt: "You are the orchestrator running in autonomous mode. Route work " +
			"using the autonomous directive instead of always looping the human back in.",
	}
}

func agentProfile() *Profile {
	return &Profile{
		Name:            "agent",
		DefaultIdentity: "agent",
		SystemPrompt: "You are an agent. Reply to whoever addressed you; never address " +
			"the human directly, the orchestrator relays your results to the human.",
		RegistersWithRegistry: AgentAutoregisterEnabled(),
	}
}

func supervisorProxyProfile() *Profile {
	return &Profile{
		Name:            "supervisor-proxy",
		DefaultIdentity: "supervisor-proxy",
		SystemPrompt: "You are a supervisor proxy. Reply to whoever addressed you; when " +
			"payload.supervisor names a supervisor, route human-directed replies there " +
			"instead of the human.",
		RegistersWithRegistry: AgentAutoregisterEnabled(),
	}
}

// ResolveRecipients computes the ordered recipient list for a dispatch's
// response, given sender (the inbound envelope's actual sender, e.sender
// in spec.md terms — never the runtime's own identity) and the inbound
// payload it arrived with.
func (p *Profile) ResolveRecipients(sender string, payload map[string]any) []string {
	replyTo := ParseReplyTo(payload)

	switch p.Name {
	case "orchestrator":
		if p.Autonomous {
			return resolveOrchestratorAutonomous(replyTo, ParseDirective(payload))
		}
		return resolveOrchestratorDefault(sender, replyTo)
	case "supervisor-proxy":
		return resolveSupervisorProxy(sender, replyTo, payload)
	default:
		return resolveAgent(sender, replyTo)
	}
}

// resolveOrchestratorDefault implements spec.md §4.4's orchestrator
// default policy: seed from reply_to (never append the sender), fall
// back to HumanRecipient if that's empty, dedupe, then drop
// HumanRecipient if reply_to was non-empty, and finally re-add it unless
// the inbound sender was already human (mirroring a delegated response
// back to whoever isn't the human that sent it).
func resolveOrchestratorDefault(sender string, replyTo []string) []string {
	hadReplyTo := len(replyTo) > 0

	seed := dedupe(append([]string(nil), replyTo...))
	if len(seed) == 0 {
		seed = []string{HumanRecipient}
	}

	if hadReplyTo {
		seed = removeAll(seed, HumanRecipient)
	}

	if sender != HumanRecipient && !contains(seed, HumanRecipient) {
		seed = append(seed, HumanRecipient)
	}

	return dedupe(seed)
}

// resolveOrchestratorAutonomous implements spec.md §4.4's autonomous
// variant: the same reply_to seeding as the default policy (without the
// sender-mirroring step), then gates human delivery on the directive's
// deliver_to_human/escalate flags rather than on who sent the message.
// An empty result always falls back to HumanRecipient, the explicit
// guarantee spec.md calls out against silently dropping a message.
func resolveOrchestratorAutonomous(replyTo []string, directive Directive) []string {
	seed := dedupe(append([]string(nil), replyTo...))
	if len(seed) == 0 {
		seed = []string{HumanRecipient}
	}

	includeHuman := directive.DeliverToHuman || directive.Escalate

	nonHuman := removeAll(seed, HumanRecipient)

	var final []string
	switch {
	case len(nonHuman) > 0:
		final = append([]string(nil), nonHuman...)
		if includeHuman {
			final = append(final, HumanRecipient)
		}
	case includeHuman:
		final = []string{HumanRecipient}
	default:
		final = []string{HumanRecipient}
	}

	return dedupe(final)
}

// resolveAgent implements spec.md §4.4's agent policy: seed from
// reply_to, falling back to the inbound sender and then to
// OrchestratorRecipient if that's still empty; the human is always
// stripped and the orchestrator is always present.
func resolveAgent(sender string, replyTo []string) []string {
	seed := dedupe(append([]string(nil), replyTo...))
	if len(seed) == 0 && sender != "" {
		seed = append(seed, sender)
	}
	if len(seed) == 0 {
		seed = append(seed, OrchestratorRecipient)
	}
	seed = dedupe(seed)
	seed = removeAll(seed, HumanRecipient)
	if !contains(seed, OrchestratorRecipient) {
		seed = append(seed, OrchestratorRecipient)
	}
	return dedupe(seed)
}

// resolveSupervisorProxy behaves like resolveAgent, except a
// payload.supervisor value is substituted in place of HumanRecipient
// instead of having it stripped outright, giving that otherwise-unused
// payload field a routing effect for this supplemented profile.
func resolveSupervisorProxy(sender string, replyTo []string, payload map[string]any) []string {
	seed := dedupe(append([]string(nil), replyTo...))
	if len(seed) == 0 && sender != "" {
		seed = append(seed, sender)
	}
	if len(seed) == 0 {
		seed = append(seed, OrchestratorRecipient)
	}
	seed = dedupe(seed)

	supervisor, _ := payload["supervisor"].(string)
	out := make([]string, 0, len(seed))
	for _, id := range seed {
		if id == HumanRecipient {
			if supervisor == "" {
				continue
			}
			id = supervisor
		}
		out = append(out, id)
	}
	if !contains(out, OrchestratorRecipient) {
		out = append(out, OrchestratorRecipient)
	}
	return dedupe(out)
}

// HeartbeatPeriod resolves the registry heartbeat interval from the
// environment, default 15s, floor 5s.
func HeartbeatPeriod() int {
	const defaultSeconds = 15
	const minSeconds = 5

	v := os.Getenv("QUADRACODE_HEARTBEAT_SECONDS")
	if v == "" {
		return defaultSeconds
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minSeconds {
		return minSeconds
	}
	return n
}
