// Package redis implements the KV contract on Redis hashes guarded by WATCH.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-email-gate/internal/config"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/pkg/id"
	"github.com/redis/go-redis/v9"
)

const (
	fieldValue   = "val"
	fieldVersion = "ver"
)

var errCheckFailed = errors.New("version check failed")

// KVStore keeps each key as a hash {val, ver}; Redis expiry provides the TTL.
type KVStore struct {
	client redis.UniversalClient
	prefix string
}

// NewClient opens a client from configuration.
func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func NewKVStore(client redis.UniversalClient, prefix string) *KVStore {
	return &KVStore{client: client, prefix: strings.TrimSpace(prefix)}
}

func (s *KVStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *KVStore) Get(ctx context.Context, key string) (domain.KVEntry, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), fieldValue, fieldVersion).Result()
	if err != nil {
		return domain.KVEntry{}, err
	}
	ver, _ := vals[1].(string)
	if ver == "" {
		return domain.KVEntry{}, nil
	}
	val, _ := vals[0].(string)
	return domain.KVEntry{Value: []byte(val), Version: ver}, nil
}

func (s *KVStore) AtomicCheckAndSet(ctx context.Context, checks []domain.KVCheck, writes []domain.KVWrite) (bool, error) {
	if len(writes) == 0 && len(checks) == 0 {
		return true, nil
	}
	watched := make([]string, 0, len(checks))
	for _, c := range checks {
		watched = append(watched, s.key(c.Key))
	}

	txf := func(tx *redis.Tx) error {
		for _, c := range checks {
			ver, err := tx.HGet(ctx, s.key(c.Key), fieldVersion).Result()
			if errors.Is(err, redis.Nil) {
				ver = ""
			} else if err != nil {
				return err
			}
			if ver != c.ExpectedVersion {
				return errCheckFailed
			}
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, w := range writes {
				k := s.key(w.Key)
				p.Del(ctx, k)
				p.HSet(ctx, k, fieldValue, w.Value, fieldVersion, id.New())
				if w.TTL > 0 {
					p.PExpire(ctx, k, w.TTL)
				}
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, watched...)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errCheckFailed), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis check-and-set: %w", err)
	}
}
