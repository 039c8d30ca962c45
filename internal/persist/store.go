// Package persist keeps collector state and small UI preferences across
// restarts in a key-value store.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/madebyjamstudios/jammonitor/internal/config"
)

var (
	// ErrNotFound indicates that the requested key was never written.
	ErrNotFound = errors.New("key not found")
)

// Store is a byte-oriented key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// New constructs a new Store of requested type.
func New(cfg *config.PersistenceConfig) (Store, error) {
	switch cfg.Type {
	case config.StoreMemory:
		return newMemoryStore(), nil
	case config.StoreBadger:
		return newBadgerStore(cfg.Path)
	case config.StoreRedis:
		return newRedisStore(cfg.RedisAddr, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
