package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisValueField    = "value"
	redisRevisionField = "rev"
)

// RedisStore is a Backend shared through Redis. Each key is a hash holding the document and
// its revision, so concurrent editors on different machines observe each other's writes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Backend = (*RedisStore)(nil)

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Get returns the record stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}

	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("redis get %q: %w", key, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}

	rev, err := strconv.ParseInt(fields[redisRevisionField], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: key %q has revision %q", ErrCorrupt, key, fields[redisRevisionField])
	}
	return Record{Value: []byte(fields[redisValueField]), Revision: Revision(rev)}, nil
}

// Put writes value under key with a WATCH/MULTI compare-and-swap on the revision field.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, expected Revision) (Revision, error) {
	if err := validateKey(key); err != nil {
		return NoRevision, err
	}

	k := s.key(key)
	var next Revision
	txf := func(tx *redis.Tx) error {
		current := NoRevision
		raw, err := tx.HGet(ctx, k, redisRevisionField).Int64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			current = Revision(raw)
		}
		if err := checkRevision(key, current, expected); err != nil {
			return err
		}

		next = current + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, redisValueField, value, redisRevisionField, int64(next))
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, k)
	if errors.Is(err, redis.TxFailedErr) {
		return NoRevision, fmt.Errorf("%w: key %q changed during write", ErrConflict, key)
	}
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return NoRevision, err
		}
		return NoRevision, fmt.Errorf("redis put %q: %w", key, err)
	}
	return next, nil
}

// Keys scans the keys with the given prefix.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
