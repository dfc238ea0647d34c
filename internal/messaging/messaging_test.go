package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/quadracode/runtime/internal/envelope"
	"github.com/quadracode/runtime/internal/store"
)

func TestPublishFetchAcknowledge(t *testing.T) {
	ctx := context.Background()
	client := New(store.NewMemory())

	env := envelope.New("orchestrator", "agent-1", "hello", map[string]any{"thread_id": "t-1"})
	if err := client.Publish(ctx, env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	batch, err := client.FetchBatch(ctx, "agent-1", 5)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected 1 delivered entry, got %d", len(batch))
	}
	if batch[0].Envelope.Message != "hello" {
		t.Fatalf("expected message %q, got %q", "hello", batch[0].Envelope.Message)
	}

	if err := client.Acknowledge(ctx, "agent-1", batch[0].ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	batch, err = client.FetchBatch(ctx, "agent-1", 5)
	if err != nil {
		t.Fatalf("FetchBatch after ack: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected empty mailbox after ack, got %d entries", len(batch))
	}
}

func TestFetchBatchCountsAndDeletesMalformed(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	client := New(mem)

	key := envelope.MailboxKey("agent-1")
	if _, err := mem.Append(ctx, key, map[string]string{"recipient": "agent-1"}); err != nil {
		t.Fatalf("seed malformed entry: %v", err)
	}

	batch, err := client.FetchBatch(ctx, "agent-1", 5)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected no decodable entries, got %d", len(batch))
	}
	if client.Stats.Malformed != 1 {
		t.Fatalf("expected 1 malformed count, got %d", client.Stats.Malformed)
	}

	remaining, _ := mem.ReadBatch(ctx, key, 5)
	if len(remaining) != 0 {
		t.Fatalf("expected malformed entry to be deleted, %d remain", len(remaining))
	}
}

func TestWithRetryGivesUpOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := withRetry(ctx, func() error {
		return store.ErrUnavailable
	})
	if err == nil {
		t.Fatalf("expected error once context is cancelled")
	}
}

func TestWithRetryPassesThroughNonRetryableError(t *testing.T) {
	boom := &envelope.ErrMalformed{Field: "x", Reason: "y"}
	err := withRetry(context.Background(), func() error {
		return boom
	})
	if err != boom {
		t.Fatalf("expected non-retryable error to pass through unchanged, got %v", err)
	}
}
