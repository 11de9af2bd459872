package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lumina/pkg/logx"
)

const redisKeyPrefix = "lumina:checkpoint:"

// RedisStore is the shared durable backend. Saves run under WATCH so a
// concurrent write to the same thread between our read and our SET aborts
// the transaction instead of silently losing a version.
type RedisStore struct {
	client *redis.Client
	logger *logx.Logger
}

// NewRedisStore connects to redis at addr and verifies the connection. A
// configured but unreachable backend is a startup failure, not a silent
// fallback.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, logx.Errorf("connect redis checkpoint store at %s: %w", addr, err)
	}
	return &RedisStore{
		client: client,
		logger: logx.NewLogger("checkpoint"),
	}, nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+threadID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	return decode(payload)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	key := redisKeyPrefix + cp.ThreadID

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var storedVersion uint64
		var storedIDs []string

		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read stored checkpoint %s: %w", cp.ThreadID, err)
		}
		if err == nil {
			stored, decErr := decode(payload)
			if decErr != nil {
				return decErr
			}
			storedVersion = stored.Version
			storedIDs = turnIDs(stored.Turns)
		}

		noop, err := validateSave(cp, storedVersion, storedIDs)
		if err != nil {
			return err
		}
		if noop {
			return nil
		}

		encoded, err := encode(cp)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: concurrent write on thread %s", ErrVersionConflict, cp.ThreadID)
	}
	if err != nil {
		return err
	}
	s.logger.Debug("saved checkpoint %s v%d", cp.ThreadID, cp.Version)
	return nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
