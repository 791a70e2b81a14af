package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "lmsync:ledger:"

// RedisOptions configure the Redis backend.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisLedger stores one hash per cache key, so several processes can share
// sync bookkeeping.
type RedisLedger struct {
	client goredis.UniversalClient
	prefix string
	clock  Clock
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, ro RedisOptions, opts ...Option) (*RedisLedger, error) {
	prefix := ro.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	addr := ro.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    []string{addr},
		Password: ro.Password,
		DB:       ro.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisLedger{client: client, prefix: prefix, clock: buildOptions(opts).clock}, nil
}

func (l *RedisLedger) key(cacheKey string) string {
	return l.prefix + cacheKey
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func (l *RedisLedger) Get(ctx context.Context, key string) (SyncRecord, bool, error) {
	if key == "" {
		return SyncRecord{}, false, nil
	}
	fields, err := l.client.HGetAll(ctx, l.key(key)).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return SyncRecord{}, false, fmt.Errorf("get sync record %s: %w", key, err)
	}
	raw, ok := fields["synced_at"]
	if !ok {
		return SyncRecord{}, false, nil
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return SyncRecord{}, false, fmt.Errorf("corrupt sync record %s: %w", key, err)
	}
	return SyncRecord{Key: key, LastSyncedAt: time.Unix(0, nanos), Cursor: fields["cursor"]}, true, nil
}

func (l *RedisLedger) IsFresh(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	rec, ok, err := l.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return fresh(rec, l.clock(), ttl), nil
}

func (l *RedisLedger) RecordSuccess(ctx context.Context, key, cursor string) error {
	if key == "" {
		return nil
	}
	err := l.client.HSet(ctx, l.key(key),
		"synced_at", strconv.FormatInt(l.clock().UnixNano(), 10),
		"cursor", cursor,
	).Err()
	if err != nil {
		return fmt.Errorf("record sync %s: %w", key, err)
	}
	return nil
}

func (l *RedisLedger) Invalidate(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

// Reset deletes every key under the prefix.
func (l *RedisLedger) Reset(ctx context.Context) error {
	iter := l.client.Scan(ctx, 0, l.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan ledger keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}
