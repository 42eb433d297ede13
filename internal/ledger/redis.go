package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "azad:user:"

// RedisStore keeps one JSON document per identity and implements
// compare-and-swap with WATCH/MULTI, so several bot processes can share it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Get fetches the record for id.
func (s *RedisStore) Get(ctx context.Context, id string) (UserRecord, error) {
	return readRedisRecord(ctx, s.client, id)
}

// Put overwrites the record, bumping its version atomically.
func (s *RedisStore) Put(ctx context.Context, rec UserRecord) (UserRecord, error) {
	if rec.Identity == "" {
		return UserRecord{}, errEmptyIdentity
	}
	key := redisKey(rec.Identity)

	var saved UserRecord
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readRedisRecord(ctx, tx, rec.Identity)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		rec.Version = current.Version + 1
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		saved = rec
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return UserRecord{}, ErrVersionConflict
	}
	if err != nil {
		return UserRecord{}, err
	}
	return saved, nil
}

// CompareAndSwap writes rec only if the stored version still equals expectedVersion.
func (s *RedisStore) CompareAndSwap(ctx context.Context, rec UserRecord, expectedVersion int64) (UserRecord, error) {
	if rec.Identity == "" {
		return UserRecord{}, errEmptyIdentity
	}
	key := redisKey(rec.Identity)
	rec.Version = expectedVersion + 1
	payload, err := json.Marshal(rec)
	if err != nil {
		return UserRecord{}, fmt.Errorf("encode record: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readRedisRecord(ctx, tx, rec.Identity)
		switch {
		case errors.Is(err, ErrNotFound):
			if expectedVersion != 0 {
				return ErrVersionConflict
			}
		case err != nil:
			return err
		case current.Version != expectedVersion:
			return ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return UserRecord{}, ErrVersionConflict
	}
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// Delete removes the record for id.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, redisKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRedisRecord(ctx context.Context, c stringGetter, id string) (UserRecord, error) {
	raw, err := c.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return UserRecord{}, ErrNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	var rec UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return UserRecord{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return rec, nil
}
