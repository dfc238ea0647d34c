// Package envelope defines the wire message exchanged between runtime
// identities over a mailbox, and the conversions between it and the flat
// string-field representation a log entry stores.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// MailboxPrefix namespaces mailbox keys in a shared store. Overridable via
// QUADRACODE_MAILBOX_PREFIX so several deployments can share one keyspace.
var MailboxPrefix = "qc:mailbox/"

// MailboxKey returns the store key holding recipient's ordered log.
func MailboxKey(recipient string) string {
	return MailboxPrefix + recipient
}

// Envelope is the message unit routed between runtime identities.
//
// Payload carries free-form structured data: routing directives, thread
// identifiers, tool results, anything a profile or the reasoning graph
// needs. It travels as a JSON object inside the flat field representation
// so an envelope round-trips losslessly through stores that only know
// string fields, such as a Redis Streams entry.
type Envelope struct {
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New constructs an envelope, defaulting Timestamp to now and Payload to
// an empty map so callers can assign into it without a nil check.
//
// Called by: the runtime loop building outgoing envelopes, tests.
func New(sender, recipient, message string, payload map[string]any) *Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Envelope{
		Sender:    sender,
		Recipient: recipient,
		Message:   message,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Reply builds a response envelope addressed back to e's sender.
func (e *Envelope) Reply(from, message string, payload map[string]any) *Envelope {
	return New(from, e.Sender, message, payload)
}

// ErrMalformed reports why a log entry could not be decoded into an
// Envelope. Runtime callers type-assert on it to count and skip instead
// of treating the poll loop itself as failed.
type ErrMalformed struct {
	Field  string
	Reason string
}

func (err *ErrMalformed) Error() string {
	return fmt.Sprintf("malformed envelope: %s: %s", err.Field, err.Reason)
}

// ToFields flattens the envelope into the string-keyed representation a
// log entry stores (for example a Redis XADD values map).
func (e *Envelope) ToFields() (map[string]string, error) {
	if e.Sender == "" {
		return nil, &ErrMalformed{Field: "sender", Reason: "missing"}
	}
	if e.Recipient == "" {
		return nil, &ErrMalformed{Field: "recipient", Reason: "missing"}
	}
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, &ErrMalformed{Field: "payload", Reason: err.Error()}
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return map[string]string{
		"sender":    e.Sender,
		"recipient": e.Recipient,
		"message":   e.Message,
		"payload":   string(payloadJSON),
		"timestamp": ts.Format(time.RFC3339Nano),
	}, nil
}

// FromFields reconstructs an Envelope from a log entry's flat fields.
// Returns *ErrMalformed when sender or recipient is missing, or the
// payload field is not valid JSON.
func FromFields(fields map[string]string) (*Envelope, error) {
	sender := fields["sender"]
	recipient := fields["recipient"]
	if sender == "" {
		return nil, &ErrMalformed{Field: "sender", Reason: "missing"}
	}
	if recipient == "" {
		return nil, &ErrMalformed{Field: "recipient", Reason: "missing"}
	}

	payload := map[string]any{}
	if raw, ok := fields["payload"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, &ErrMalformed{Field: "payload", Reason: err.Error()}
		}
	}

	ts := time.Now().UTC()
	if raw, ok := fields["timestamp"]; ok && raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, &ErrMalformed{Field: "timestamp", Reason: err.Error()}
		}
		ts = parsed
	}

	return &Envelope{
		Sender:    sender,
		Recipient: recipient,
		Message:   fields["message"],
		Payload:   payload,
		Timestamp: ts,
	}, nil
}

// Clone returns a deep copy, so a dispatched envelope can be mutated by a
// routing policy without aliasing the original.
func (e *Envelope) Clone() *Envelope {
	clone := *e
	if e.Payload != nil {
		clone.Payload = deepCopyValue(e.Payload).(map[string]any)
	}
	return &clone
}

// deepCopyValue copies nested maps and slices of JSON-shaped values;
// scalars are returned as they are.
func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopyValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// ToJSON serializes the envelope to JSON.
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an envelope from JSON.
func FromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks the fields required for an envelope to be dispatchable.
func (e *Envelope) Validate() error {
	if e.Sender == "" {
		return &ErrMalformed{Field: "sender", Reason: "missing"}
	}
	if e.Recipient == "" {
		return &ErrMalformed{Field: "recipient", Reason: "missing"}
	}
	return nil
}
