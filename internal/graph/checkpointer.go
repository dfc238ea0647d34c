package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/quadracode/runtime/internal/chatmsg"
	"github.com/quadracode/runtime/internal/store"
)

// Checkpointer persists a thread's message history between dispatches.
// Implementations must serialize concurrent Put/Get/Delete calls for the
// same thread id; different thread ids may run concurrently.
type Checkpointer interface {
	Get(ctx context.Context, threadID string) ([]chatmsg.Turn, error)
	Put(ctx context.Context, threadID string, messages []chatmsg.Turn) error
	Delete(ctx context.Context, threadID string) error
}

// MemoryCheckpointer is the default, single-process Checkpointer: a
// per-thread mutex guarding a plain map, analogous to the original
// runtime's in-memory saver.
type MemoryCheckpointer struct {
	mu      sync.Mutex
	threads map[string]*threadState
}

type threadState struct {
	mu       sync.Mutex
	messages []chatmsg.Turn
}

// NewMemoryCheckpointer returns an empty MemoryCheckpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{threads: make(map[string]*threadState)}
}

func (c *MemoryCheckpointer) threadFor(id string) *threadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[id]
	if !ok {
		t = &threadState{}
		c.threads[id] = t
	}
	return t
}

func (c *MemoryCheckpointer) Get(_ context.Context, threadID string) ([]chatmsg.Turn, error) {
	t := c.threadFor(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chatmsg.Turn, len(t.messages))
	copy(out, t.messages)
	return out, nil
}

func (c *MemoryCheckpointer) Put(_ context.Context, threadID string, messages []chatmsg.Turn) error {
	t := c.threadFor(threadID)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append([]chatmsg.Turn(nil), messages...)
	return nil
}

func (c *MemoryCheckpointer) Delete(_ context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.threads, threadID)
	return nil
}

// StoreCheckpointer persists thread state through a store.Store, for
// distributed deployments where runtime instances don't share memory.
// Each thread's history is kept as a single latest-wins entry: Put
// deletes the thread's previous entries before appending the new
// snapshot, since a checkpoint is a full replace, not an append-only log.
type StoreCheckpointer struct {
	store store.Store
	mu    sync.Mutex
}

// NewStoreCheckpointer wraps s as a Checkpointer.
func NewStoreCheckpointer(s store.Store) *StoreCheckpointer {
	return &StoreCheckpointer{store: s}
}

func checkpointKey(threadID string) string {
	return "qc:checkpoint/" + threadID
}

func (c *StoreCheckpointer) Get(ctx context.Context, threadID string) ([]chatmsg.Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.store.ReadBatch(ctx, checkpointKey(threadID), 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	raw, ok := entries[0].Fields["messages"]
	if !ok {
		return nil, nil
	}
	var messages []chatmsg.Turn
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("checkpointer: decode messages: %w", err)
	}
	return messages, nil
}

func (c *StoreCheckpointer) Put(ctx context.Context, threadID string, messages []chatmsg.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := checkpointKey(threadID)
	existing, err := c.store.ReadBatch(ctx, key, 1000)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		ids := make([]string, len(existing))
		for i, e := range existing {
			ids[i] = e.ID
		}
		if err := c.store.Delete(ctx, key, ids...); err != nil {
			return err
		}
	}

	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("checkpointer: encode messages: %w", err)
	}
	_, err = c.store.Append(ctx, key, map[string]string{"messages": string(encoded)})
	return err
}

func (c *StoreCheckpointer) Delete(ctx context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := checkpointKey(threadID)
	existing, err := c.store.ReadBatch(ctx, key, 1000)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	ids := make([]string, len(existing))
	for i, e := range existing {
		ids[i] = e.ID
	}
	return c.store.Delete(ctx, key, ids...)
}
