package cache

import (
	"time"

	"github.com/okian/shipwatch/pkg/logger"
)

// Option applies a configuration option to the Redis cache.
type Option func(*Redis)

// WithTTL sets how long an alert stays cached.
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces the cache keys.
func WithKeyPrefix(prefix string) Option {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithBreaker tunes the circuit breaker: it opens after failures
// consecutive errors and probes again after cooldown.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(r *Redis) {
		if failures > 0 {
			r.breakerFailures = failures
		}
		if cooldown > 0 {
			r.breakerCooldown = cooldown
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Redis) {
		if l != nil {
			r.log = l
		}
	}
}
