package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// RedisKeystore keeps handles as plain string keys. Handles never expire.
type RedisKeystore struct {
	client *redis.Client
	prefix string
}

func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisKeystore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "accountsync:credential:"
	}

	return &RedisKeystore{client: client, prefix: prefix}, nil
}

func (k *RedisKeystore) key(id string) string {
	return k.prefix + id
}

func (k *RedisKeystore) Put(ctx context.Context, identityID, handle string) error {
	return k.client.Set(ctx, k.key(identityID), handle, 0).Err()
}

func (k *RedisKeystore) Get(ctx context.Context, identityID string) (string, error) {
	v, err := k.client.Get(ctx, k.key(identityID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (k *RedisKeystore) Delete(ctx context.Context, identityID string) error {
	return k.client.Del(ctx, k.key(identityID)).Err()
}

func (k *RedisKeystore) Close() error {
	return k.client.Close()
}
