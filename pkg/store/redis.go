package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamAdder is the subset of redis.Cmdable used by RedisMirror.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisMirror publishes persisted records to a Redis stream. It is a
// best-effort side channel; the JSONL files remain the record of truth.
type RedisMirror struct {
	client StreamAdder
	stream string
	maxLen int64
}

// DefaultRedisStream is the stream used when none is configured.
const DefaultRedisStream = "trialstream:records"

// NewRedisMirror creates a mirror writing to stream. A positive maxLen caps
// the stream length approximately.
func NewRedisMirror(client StreamAdder, stream string, maxLen int64) *RedisMirror {
	if stream == "" {
		stream = DefaultRedisStream
	}
	return &RedisMirror{client: client, stream: stream, maxLen: maxLen}
}

// DialRedis connects to addr and checks the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Stream returns the stream key.
func (m *RedisMirror) Stream() string {
	return m.stream
}

// Publish appends one record with its kind ("event", "header" or "array")
// and the JSON line as written to disk.
func (m *RedisMirror) Publish(ctx context.Context, kind string, line []byte) error {
	args := &redis.XAddArgs{
		Stream: m.stream,
		Values: map[string]any{
			"kind": kind,
			"data": string(line),
		},
	}
	if m.maxLen > 0 {
		args.MaxLen = m.maxLen
		args.Approx = true
	}
	if err := m.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("store: xadd %s: %w", m.stream, err)
	}
	return nil
}
