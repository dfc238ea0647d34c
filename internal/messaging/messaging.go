// Package messaging wraps a store.Store with envelope encode/decode, the
// retry policy for transient store failures, and the counters the
// metrics hook reports.
package messaging

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/quadracode/runtime/internal/envelope"
	"github.com/quadracode/runtime/internal/store"
)

// Client is the messaging collaborator the runtime loop polls and
// publishes through. It never surfaces a malformed entry as an error to
// its caller: FetchBatch counts malformed entries in Stats.Malformed and
// deletes them, so a poison entry never blocks the rest of the batch.
type Client struct {
	store store.Store
	Stats *Stats
}

// Stats are atomic counters the Client increments as it publishes, reads,
// deletes and rejects entries; cheap enough to keep unconditionally
// rather than gate behind a debug flag. They are not reported to the
// metrics hook.
type Stats struct {
	Published int64
	Read      int64
	Deleted   int64
	Malformed int64
}

// New wraps store with the default retry policy.
func New(s store.Store) *Client {
	return &Client{store: s, Stats: &Stats{}}
}

// Delivered pairs a decoded envelope with the entry id it must be
// deleted by once dispatched.
type Delivered struct {
	ID       string
	Envelope *envelope.Envelope
}

// FetchBatch polls recipient's mailbox for up to count pending entries.
// Entries that fail to decode are counted as malformed and deleted
// immediately (they can never become decodable), matching the "poison
// entry" containment spec.md requires: deletion never blocks on
// decode success.
func (c *Client) FetchBatch(ctx context.Context, recipient string, count int) ([]Delivered, error) {
	key := envelope.MailboxKey(recipient)

	var entries []store.Entry
	err := withRetry(ctx, func() error {
		var readErr error
		entries, readErr = c.store.ReadBatch(ctx, key, count)
		return readErr
	})
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&c.Stats.Read, int64(len(entries)))

	var delivered []Delivered
	var malformedIDs []string
	for _, e := range entries {
		env, decodeErr := envelope.FromFields(e.Fields)
		if decodeErr != nil {
			atomic.AddInt64(&c.Stats.Malformed, 1)
			malformedIDs = append(malformedIDs, e.ID)
			continue
		}
		delivered = append(delivered, Delivered{ID: e.ID, Envelope: env})
	}

	if len(malformedIDs) > 0 {
		_ = withRetry(ctx, func() error {
			return c.store.Delete(ctx, key, malformedIDs...)
		})
	}

	return delivered, nil
}

// Publish appends env to its recipient's mailbox.
func (c *Client) Publish(ctx context.Context, env *envelope.Envelope) error {
	fields, err := env.ToFields()
	if err != nil {
		atomic.AddInt64(&c.Stats.Malformed, 1)
		return err
	}
	key := envelope.MailboxKey(env.Recipient)
	err = withRetry(ctx, func() error {
		_, appendErr := c.store.Append(ctx, key, fields)
		return appendErr
	})
	if err != nil {
		return err
	}
	atomic.AddInt64(&c.Stats.Published, 1)
	return nil
}

// Acknowledge deletes a dispatched entry from recipient's mailbox.
// Idempotent: deleting an already-deleted id is not an error.
func (c *Client) Acknowledge(ctx context.Context, recipient, id string) error {
	key := envelope.MailboxKey(recipient)
	err := withRetry(ctx, func() error {
		return c.store.Delete(ctx, key, id)
	})
	if err != nil {
		return err
	}
	atomic.AddInt64(&c.Stats.Deleted, 1)
	return nil
}

// Close releases the backing store.
func (c *Client) Close() error {
	return c.store.Close()
}

// withRetry retries fn with exponential backoff (100ms doubling to a
// 3.2s cap) while it returns store.ErrUnavailable, per the
// StoreUnavailable error policy: transient store failures are retried,
// not surfaced as a dropped entry. The number of attempts is not
// limited: it returns only on success, on a non-transient error, or when
// ctx is done.
func withRetry(ctx context.Context, fn func() error) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 3200 * time.Millisecond

	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !isUnavailable(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func isUnavailable(err error) bool {
	for err != nil {
		if err == store.ErrUnavailable {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
