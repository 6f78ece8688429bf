package blob

import (
	"context"
	"fmt"

	"github.com/kuro6061/nexum/common/config"
	"github.com/kuro6061/nexum/common/logger"
)

// Store is the backing store for claim-check payloads. Large node outputs
// are written here and replaced with a small pointer in the events table.
// All implementations must be context-aware and safe for concurrent use.
type Store interface {
	// Put stores data under the given blob ID and returns the location
	// (a file path for the fs backend, a key for redis).
	Put(ctx context.Context, blobID string, data []byte) (string, error)
	// Get retrieves data by blob ID.
	Get(ctx context.Context, blobID string) ([]byte, error)
	Close() error
}

// New creates a blob store based on configuration.
//
// Backends:
//
//	fs    → JSON files under cfg.Dir (default, zero dependencies)
//	redis → go-redis with a TTL, for multi-node deployments
func New(cfg config.BlobConfig, log *logger.Logger) (Store, error) {
	switch cfg.Backend {
	case "fs":
		log.Info("using filesystem blob store", "dir", cfg.Dir)
		return NewFSStore(cfg.Dir), nil
	case "redis":
		log.Info("using redis blob store", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.Backend)
	}
}
