package pubsub

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pagemend/pagemend/internal/config"
)

// NewPubSub creates a pub/sub backend from the redis configuration.
// When redis is disabled, events stay in-process, which is all a single
// pagemend instance needs. bufferSize bounds each subscriber's queue.
func NewPubSub(cfg config.RedisConfig, bufferSize int) (PubSub, error) {
	if !cfg.Enabled {
		log.Info().Msg("Using local pub/sub (single instance mode)")
		return NewLocalPubSub(bufferSize), nil
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("redis.url is required when redis pub/sub is enabled")
	}

	log.Info().Msg("Using Redis-compatible pub/sub (multi-instance mode)")
	ps, err := NewRedisPubSub(cfg.URL, bufferSize)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis for pub/sub: %w", err)
	}
	return ps, nil
}
