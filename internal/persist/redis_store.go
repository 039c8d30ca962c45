package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

const redisScheme = "redis://"

type redisStore struct {
	client *redis.Client
}

// newRedisStore accepts either host:port or a redis:// URL.
func newRedisStore(addr string, db int) (*redisStore, error) {
	opts := &redis.Options{Addr: addr, DB: db}
	if strings.HasPrefix(addr, redisScheme) {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	return &redisStore{client: redis.NewClient(opts)}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
