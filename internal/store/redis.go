package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is the distributed Store backend: a mailbox's log is a native
// Redis Stream, so Append/ReadBatch/Delete map directly onto
// XADD/XRANGE/XDEL the way the Redis Streams scaler reads stream
// metadata with XLen/XPending.
type Redis struct {
	client *redis.Client
}

// RedisOptions configures the client connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis constructs a Redis-backed store and verifies connectivity.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Append(ctx context.Context, key string, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return id, nil
}

func (r *Redis) ReadBatch(ctx context.Context, key string, count int) ([]Entry, error) {
	msgs, err := r.client.XRangeN(ctx, key, "-", "+", int64(count)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else {
				fields[k] = fmt.Sprintf("%v", v)
			}
		}
		entries = append(entries, Entry{ID: m.ID, Fields: fields})
	}
	return entries, nil
}

func (r *Redis) Delete(ctx context.Context, key string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.client.XDel(ctx, key, ids...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
