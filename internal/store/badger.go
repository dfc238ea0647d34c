package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a durable, single-host Store backed by an embedded Badger
// database. Each log entry is written under the key
// "<mailbox key>/<entry id>" with a JSON-encoded value. Badger iterates
// keys in byte order, which is not id order once the "<ms>-<seq>"
// components differ in digit count, so ReadBatch prefix-scans a
// mailbox's entries and then sorts them with compareIDs.
type Badger struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
	idgen  idGenerator
}

// BadgerConfig configures the embedded database directory.
type BadgerConfig struct {
	Dir string
}

// NewBadger opens (or creates) a Badger database at config.Dir.
func NewBadger(config BadgerConfig) (*Badger, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("badger store: dir is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}

	opts := badger.DefaultOptions(config.Dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Badger) Append(_ context.Context, key string, fields map[string]string) (string, error) {
	if b.isClosed() {
		return "", ErrUnavailable
	}

	id := b.idgen.next()
	value, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("badger store: marshal fields: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entryKey(key, id)), value)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return id, nil
}

func (b *Badger) ReadBatch(_ context.Context, key string, count int) ([]Entry, error) {
	if b.isClosed() {
		return nil, ErrUnavailable
	}

	prefix := []byte(key + "/")
	var entries []Entry

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			var fields map[string]string
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &fields)
			}); err != nil {
				return err
			}
			entries = append(entries, Entry{ID: id, Fields: fields})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sortEntriesByID(entries)
	if count < len(entries) {
		entries = entries[:count]
	}
	return entries, nil
}

func (b *Badger) Delete(_ context.Context, key string, ids ...string) error {
	if b.isClosed() {
		return ErrUnavailable
	}
	if len(ids) == 0 {
		return nil
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete([]byte(entryKey(key, id))); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func entryKey(mailboxKey, id string) string {
	return mailboxKey + "/" + id
}

func sortEntriesByID(entries []Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && compareIDs(entries[j-1].ID, entries[j].ID) > 0; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}
