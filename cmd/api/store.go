package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-email-gate/internal/config"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/infrastructure/boltkv"
	"github.com/go-email-gate/internal/infrastructure/dynamo"
	"github.com/go-email-gate/internal/infrastructure/memory"
	redisinfra "github.com/go-email-gate/internal/infrastructure/redis"
	"github.com/go-email-gate/internal/infrastructure/sqlkv"
)

const sweepInterval = time.Minute

// closableStore is a KV store plus the resources it holds.
type closableStore struct {
	domain.KVStore
	close func() error
}

func (s closableStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// openStore builds the backend named by KV_BACKEND. Backends without native
// expiry get a janitor that runs until ctx is cancelled.
func openStore(ctx context.Context, cfg *config.Config) (closableStore, error) {
	switch cfg.KVBackend {
	case "dynamo":
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return closableStore{}, err
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTableKV)
		return closableStore{KVStore: dynamo.NewKVStore(client, cfg.DynamoTableKV)}, nil

	case "redis":
		client := redisinfra.NewClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			return closableStore{}, fmt.Errorf("ping redis: %w", err)
		}
		return closableStore{KVStore: redisinfra.NewKVStore(client, cfg.RedisPrefix), close: client.Close}, nil

	case "bolt":
		s, err := boltkv.Open(cfg.BoltPath)
		if err != nil {
			return closableStore{}, err
		}
		go janitor(ctx, "bolt", func(context.Context) (int64, error) {
			n, err := s.Sweep()
			return int64(n), err
		})
		return closableStore{KVStore: s, close: s.Close}, nil

	case "sql":
		s, err := sqlkv.Open(cfg.SQLDSN)
		if err != nil {
			return closableStore{}, err
		}
		go janitor(ctx, "sql", s.Sweep)
		return closableStore{KVStore: s, close: s.Close}, nil

	case "memory":
		if !cfg.IsDevelopment() {
			return closableStore{}, fmt.Errorf("memory backend is only allowed when APP_ENV=development")
		}
		slog.Warn("using in-memory kv store; state is per process")
		return closableStore{KVStore: memory.NewKVStore(nil)}, nil
	}
	return closableStore{}, fmt.Errorf("unknown KV_BACKEND %q", cfg.KVBackend)
}

// janitor removes expired rows for backends that only expire lazily.
func janitor(ctx context.Context, backend string, sweep func(context.Context) (int64, error)) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := sweep(ctx)
			if err != nil {
				slog.Warn("kv sweep failed", "backend", backend, "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("kv sweep", "backend", backend, "removed", n)
			}
		}
	}
}
