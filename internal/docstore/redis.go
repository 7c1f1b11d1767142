package docstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "arcpay:collection:"

// redisTxRetries bounds the optimistic-transaction retry loop before the
// update is surfaced as a store failure.
const redisTxRetries = 8

// RedisStore keeps each collection in a single Redis key and serializes
// writers with WATCH/MULTI optimistic transactions. Suitable when the API
// process and scheduler workers run on separate hosts.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(collection string) string {
	return redisKeyPrefix + collection
}

func (s *RedisStore) Update(ctx context.Context, collection string, fn UpdateFunc) error {
	key := s.key(collection)
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return unavailable("read "+collection, err)
		}
		out, changed, err := fn(raw)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisTxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue // another writer interleaved; re-read and retry
		}
		if err != nil {
			return err
		}
		return nil
	}
	return unavailable("update "+collection, redis.TxFailedErr)
}

func (s *RedisStore) Load(ctx context.Context, collection string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("read "+collection, err)
	}
	return raw, nil
}
