package routing

import (
	"reflect"
	"testing"
)

func TestOrchestratorProfileFallsBackToHuman(t *testing.T) {
	p := orchestratorProfile()
	got := p.ResolveRecipients("agent-1", nil)
	if len(got) != 1 || got[0] != HumanRecipient {
		t.Fatalf("expected fallback to human, got %v", got)
	}
}

func TestOrchestratorProfileMirrorsNonHumanSender(t *testing.T) {
	p := orchestratorProfile()
	got := p.ResolveRecipients("agent-1", map[string]any{"reply_to": "agent-2"})
	if !reflect.DeepEqual(got, []string{"agent-2", HumanRecipient}) {
		t.Fatalf("expected agent-2 then human, got %v", got)
	}
}

func TestOrchestratorProfileExcludesHumanWhenSenderIsHuman(t *testing.T) {
	// spec.md's testable-properties invariant: for any inbound envelope
	// whose sender is the human, the human is absent from the outbound
	// recipient list under the default orchestrator policy.
	p := orchestratorProfile()
	got := p.ResolveRecipients(HumanRecipient, map[string]any{"reply_to": "agent-1"})
	for _, r := range got {
		if r == HumanRecipient {
			t.Fatalf("expected human excluded when sender is human, got %v", got)
		}
	}
}

func TestOrchestratorProfileDefaultToHumanWhenSenderIsHumanAndNoReplyTo(t *testing.T) {
	p := orchestratorProfile()
	got := p.ResolveRecipients(HumanRecipient, nil)
	if !reflect.DeepEqual(got, []string{HumanRecipient}) {
		t.Fatalf("expected [human], got %v", got)
	}
}

func TestAgentProfileNeverAddressesHumanDirectly(t *testing.T) {
	p := agentProfile()
	got := p.ResolveRecipients("agent-1", map[string]any{"reply_to": []any{HumanRecipient, "agent-2"}})
	for _, r := range got {
		if r == HumanRecipient {
			t.Fatalf("agent profile must never address human, got %v", got)
		}
	}
}

func TestAgentProfileRepliesToSenderWhenNoReplyTo(t *testing.T) {
	p := agentProfile()
	got := p.ResolveRecipients("orchestrator", nil)
	if !reflect.DeepEqual(got, []string{"orchestrator"}) {
		t.Fatalf("expected reply to sender (orchestrator), got %v", got)
	}
}

func TestAgentProfileRepliesToOriginalSenderViaReplyTo(t *testing.T) {
	p := agentProfile()
	got := p.ResolveRecipients("peer-1", map[string]any{"reply_to": "peer-1"})
	if !reflect.DeepEqual(got, []string{"peer-1", OrchestratorRecipient}) {
		t.Fatalf("expected peer-1 then orchestrator, got %v", got)
	}
}

func TestAgentProfileAlwaysIncludesOrchestrator(t *testing.T) {
	p := agentProfile()
	got := p.ResolveRecipients("agent-1", map[string]any{"reply_to": "agent-2"})
	found := false
	for _, r := range got {
		if r == OrchestratorRecipient {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected orchestrator to be force-included, got %v", got)
	}
}

func TestParseReplyToCoercesString(t *testing.T) {
	got := ParseReplyTo(map[string]any{"reply_to": "agent-1"})
	if !reflect.DeepEqual(got, []string{"agent-1"}) {
		t.Fatalf("expected [agent-1], got %v", got)
	}
}

func TestParseReplyToCoercesList(t *testing.T) {
	got := ParseReplyTo(map[string]any{"reply_to": []any{"agent-1", "agent-1", "agent-2"}})
	if !reflect.DeepEqual(got, []string{"agent-1", "agent-2"}) {
		t.Fatalf("expected deduped [agent-1 agent-2], got %v", got)
	}
}

func TestParseReplyToEmptyWhenAbsent(t *testing.T) {
	if got := ParseReplyTo(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestLoadUnknownProfile(t *testing.T) {
	_, err := Load("does-not-exist")
	if err == nil {
		t.Fatalf("expected ErrUnknownProfile")
	}
	if _, ok := err.(*ErrUnknownProfile); !ok {
		t.Fatalf("expected *ErrUnknownProfile, got %T", err)
	}
}

func TestLoadAutonomousVariantWhenModeEnabled(t *testing.T) {
	t.Setenv("QUADRACODE_MODE", "autonomous")
	p, err := Load("orchestrator")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.Autonomous {
		t.Fatalf("expected autonomous variant")
	}
	// Without a directive the autonomous variant still falls back to
	// human, per the behavior spec.md requires reimplementations to keep.
	got := p.ResolveRecipients("agent-1", nil)
	if len(got) != 1 || got[0] != HumanRecipient {
		t.Fatalf("expected autonomous fallback to human, got %v", got)
	}
}

func TestAutonomousNonEscalatingStaysWithDelegate(t *testing.T) {
	t.Setenv("QUADRACODE_MODE", "autonomous")
	p, err := Load("orchestrator")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := p.ResolveRecipients("human", map[string]any{
		"reply_to": "agent-1",
		"autonomous": map[string]any{
			"deliver_to_human": false,
			"escalate":         false,
		},
	})
	if !reflect.DeepEqual(got, []string{"agent-1"}) {
		t.Fatalf("expected [agent-1] only, got %v", got)
	}
}

func TestAutonomousEscalationAddsHuman(t *testing.T) {
	t.Setenv("QUADRACODE_MODE", "autonomous")
	p, err := Load("orchestrator")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := p.ResolveRecipients("human", map[string]any{
		"reply_to": "agent-1",
		"autonomous": map[string]any{
			"escalate": true,
		},
	})
	if !reflect.DeepEqual(got, []string{"agent-1", HumanRecipient}) {
		t.Fatalf("expected [agent-1 human], got %v", got)
	}
}

func TestSupervisorProxySubstitutesSupervisorForHuman(t *testing.T) {
	p := supervisorProxyProfile()
	got := p.ResolveRecipients("agent-1", map[string]any{
		"reply_to":   []any{HumanRecipient},
		"supervisor": "supervisor-1",
	})
	if !reflect.DeepEqual(got, []string{"supervisor-1", OrchestratorRecipient}) {
		t.Fatalf("expected supervisor substituted and orchestrator force-included, got %v", got)
	}
}

func TestSupervisorProxyStripsHumanWithoutSupervisor(t *testing.T) {
	p := supervisorProxyProfile()
	got := p.ResolveRecipients("agent-1", map[string]any{"reply_to": []any{HumanRecipient}})
	for _, r := range got {
		if r == HumanRecipient {
			t.Fatalf("expected human stripped when no supervisor set, got %v", got)
		}
	}
}

func TestAutonomousModeEnabledTruthyVariants(t *testing.T) {
	t.Setenv("QUADRACODE_MODE", "")
	t.Setenv("HUMAN_OBSOLETE_MODE", "")
	for _, v := range []string{"1", "true", "yes", "on"} {
		t.Setenv("QUADRACODE_AUTONOMOUS_MODE", v)
		if !AutonomousModeEnabled() {
			t.Errorf("expected %q to be truthy", v)
		}
	}
	t.Setenv("QUADRACODE_AUTONOMOUS_MODE", "")
}

func TestAgentAutoregisterDefaultsToTrue(t *testing.T) {
	t.Setenv("QUADRACODE_AGENT_AUTOREGISTER", "")
	if !AgentAutoregisterEnabled() {
		t.Fatalf("expected autoregister to default to true")
	}
	t.Setenv("QUADRACODE_AGENT_AUTOREGISTER", "false")
	if AgentAutoregisterEnabled() {
		t.Fatalf("expected autoregister disabled by explicit false")
	}
}
