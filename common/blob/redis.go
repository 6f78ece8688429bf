package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kuro6061/nexum/common/config"
)

// RedisStore keeps blobs in Redis with a TTL. Suited to deployments where
// workers and the server do not share a filesystem.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed blob store and verifies connectivity.
func NewRedisStore(cfg config.BlobConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: cfg.RedisTTL}, nil
}

func (s *RedisStore) Put(ctx context.Context, blobID string, data []byte) (string, error) {
	key := s.key(blobID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store blob %s: %w", blobID, err)
	}
	return key, nil
}

func (s *RedisStore) Get(ctx context.Context, blobID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(blobID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", blobID, err)
	}
	return data, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(blobID string) string {
	return "nexum:blob:" + blobID
}
