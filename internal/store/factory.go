package store

import (
	"context"
	"fmt"
)

// Backend selects which Store implementation New constructs.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendBadger Backend = "badger"
	BackendRedis  Backend = "redis"
)

// Options carries the fields any backend might need; unused fields for
// the selected backend are ignored.
type Options struct {
	Backend   Backend
	BadgerDir string
	Redis     RedisOptions
}

// New constructs the Store named by opts.Backend.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendBadger:
		return NewBadger(BadgerConfig{Dir: opts.BadgerDir})
	case BackendRedis:
		return NewRedis(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
