package graph

import (
	"context"
	"testing"

	"github.com/quadracode/runtime/internal/chatmsg"
	"github.com/quadracode/runtime/internal/store"
)

func testCheckpointers() map[string]Checkpointer {
	return map[string]Checkpointer{
		"memory": NewMemoryCheckpointer(),
		"store":  NewStoreCheckpointer(store.NewMemory()),
	}
}

func TestCheckpointerRoundTrip(t *testing.T) {
	for name, cp := range testCheckpointers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			messages := []chatmsg.Turn{
				{Role: chatmsg.RoleUser, Content: "hi"},
				{Role: chatmsg.RoleAssistant, Content: "hello"},
			}
			if err := cp.Put(ctx, "thread-1", messages); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := cp.Get(ctx, "thread-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got) != 2 || got[1].Content != "hello" {
				t.Fatalf("unexpected round trip: %+v", got)
			}
		})
	}
}

func TestCheckpointerGetUnknownThreadIsEmpty(t *testing.T) {
	for name, cp := range testCheckpointers() {
		t.Run(name, func(t *testing.T) {
			got, err := cp.Get(context.Background(), "never-seen")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty history, got %+v", got)
			}
		})
	}
}

func TestCheckpointerPutReplacesNotAppends(t *testing.T) {
	for name, cp := range testCheckpointers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = cp.Put(ctx, "thread-1", []chatmsg.Turn{{Role: chatmsg.RoleUser, Content: "first"}})
			_ = cp.Put(ctx, "thread-1", []chatmsg.Turn{{Role: chatmsg.RoleUser, Content: "second"}})

			got, err := cp.Get(ctx, "thread-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got) != 1 || got[0].Content != "second" {
				t.Fatalf("expected checkpoint to be replaced, got %+v", got)
			}
		})
	}
}

func TestCheckpointerDelete(t *testing.T) {
	for name, cp := range testCheckpointers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = cp.Put(ctx, "thread-1", []chatmsg.Turn{{Role: chatmsg.RoleUser, Content: "x"}})
			if err := cp.Delete(ctx, "thread-1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			got, err := cp.Get(ctx, "thread-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty after delete, got %+v", got)
			}
		})
	}
}
