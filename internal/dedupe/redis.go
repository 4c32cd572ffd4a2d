package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDedupe shares seen ids between indexer instances using SETNX + TTL
type RedisDedupe struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// NewRedisDedupe builds a deduper whose keys look like "<prefix>:dedupe:<id>"
func NewRedisDedupe(client redis.UniversalClient, prefix string, ttl time.Duration, logger zerolog.Logger) (*RedisDedupe, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}

	key := "dedupe:"
	if prefix != "" {
		key = prefix + ":" + key
	}

	return &RedisDedupe{
		client: client,
		ttl:    ttl,
		prefix: key,
		logger: logger.With().Str("component", "redis_dedupe").Logger(),
	}, nil
}

func (d *RedisDedupe) Seen(ctx context.Context, id string) (bool, error) {
	// ok=true means the key was new
	ok, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w", id, err)
	}
	if !ok {
		d.logger.Debug().Str("id", id).Msg("Duplicate log")
	}
	return !ok, nil
}

func (d *RedisDedupe) Forget(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", id, err)
	}
	return nil
}
