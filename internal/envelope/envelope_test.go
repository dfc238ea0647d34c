package envelope

import (
	"testing"
	"time"
)

func TestRoundTripFields(t *testing.T) {
	original := New("orchestrator", "agent-1", "please continue", map[string]any{
		"thread_id": "t-1",
		"count":     float64(3),
	})

	fields, err := original.ToFields()
	if err != nil {
		t.Fatalf("ToFields: %v", err)
	}

	decoded, err := FromFields(fields)
	if err != nil {
		t.Fatalf("FromFields: %v", err)
	}

	if decoded.Sender != original.Sender || decoded.Recipient != original.Recipient || decoded.Message != original.Message {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
	if decoded.Payload["thread_id"] != "t-1" {
		t.Fatalf("payload not preserved: %+v", decoded.Payload)
	}
	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Fatalf("timestamp not preserved: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
}

func TestFromFieldsMissingSender(t *testing.T) {
	_, err := FromFields(map[string]string{"recipient": "agent-1"})
	var malformed *ErrMalformed
	if err == nil {
		t.Fatalf("expected error")
	}
	if !assertAs(err, &malformed) || malformed.Field != "sender" {
		t.Fatalf("expected ErrMalformed for sender, got %v", err)
	}
}

func TestFromFieldsMissingRecipient(t *testing.T) {
	_, err := FromFields(map[string]string{"sender": "orchestrator"})
	var malformed *ErrMalformed
	if !assertAs(err, &malformed) || malformed.Field != "recipient" {
		t.Fatalf("expected ErrMalformed for recipient, got %v", err)
	}
}

func TestFromFieldsBadPayload(t *testing.T) {
	_, err := FromFields(map[string]string{
		"sender":    "orchestrator",
		"recipient": "agent-1",
		"payload":   "{not json",
	})
	var malformed *ErrMalformed
	if !assertAs(err, &malformed) || malformed.Field != "payload" {
		t.Fatalf("expected ErrMalformed for payload, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := New("orchestrator", "agent-1", "hi", map[string]any{"k": "v"})
	clone := original.Clone()
	clone.Payload["k"] = "changed"
	if original.Payload["k"] != "v" {
		t.Fatalf("clone mutated original payload")
	}
}

func TestValidate(t *testing.T) {
	e := &Envelope{Timestamp: time.Now()}
	if err := e.Validate(); err == nil {
		t.Fatalf("expected validation error for empty envelope")
	}
	e.Sender = "orchestrator"
	if err := e.Validate(); err == nil {
		t.Fatalf("expected validation error for missing recipient")
	}
	e.Recipient = "agent-1"
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertAs(err error, target **ErrMalformed) bool {
	m, ok := err.(*ErrMalformed)
	if !ok {
		return false
	}
	*target = m
	return true
}
