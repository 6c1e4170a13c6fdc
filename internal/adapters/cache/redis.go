package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/pkg/logger"
	"github.com/okian/shipwatch/pkg/metrics"
)

const (
	defaultTTL             = 15 * time.Minute
	defaultPrefix          = "shipwatch:alert:"
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// Redis is an AlertCache on go-redis. Every call goes through a circuit
// breaker; while it is open calls fail fast with ErrCacheUnavailable.
type Redis struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	log    logger.Logger

	ttl             time.Duration
	prefix          string
	breakerFailures uint32
	breakerCooldown time.Duration
}

var _ AlertCache = (*Redis)(nil)

// NewRedis wraps client. The client is owned by the caller.
func NewRedis(client *redis.Client, opts ...Option) *Redis {
	r := &Redis{
		client:          client,
		log:             logger.Get().Named("cache"),
		ttl:             defaultTTL,
		prefix:          defaultPrefix,
		breakerFailures: defaultBreakerFailures,
		breakerCooldown: defaultBreakerCooldown,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-alert-cache",
		MaxRequests: 1,
		Timeout:     r.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
			metrics.UpdateCacheBreakerState(int(to))
		},
	})
	return r
}

func (r *Redis) key(shipmentID string) string { return r.prefix + shipmentID }

// State returns the breaker state.
func (r *Redis) State() gobreaker.State { return r.cb.State() }

func (r *Redis) execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := r.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return res, err
}

func (r *Redis) Get(ctx context.Context, shipmentID string) (model.Alert, error) {
	var a model.Alert
	res, err := r.execute(func() (interface{}, error) {
		data, err := r.client.Get(ctx, r.key(shipmentID)).Bytes()
		if errors.Is(err, redis.Nil) {
			// a miss is a healthy answer
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		metrics.RecordCacheLookup(metrics.CacheError)
		return a, err
	}
	data, _ := res.([]byte)
	if data == nil {
		metrics.RecordCacheLookup(metrics.CacheMiss)
		return a, ErrMiss
	}
	if err := json.Unmarshal(data, &a); err != nil {
		metrics.RecordCacheLookup(metrics.CacheError)
		return a, fmt.Errorf("decode cached alert %s: %w", shipmentID, err)
	}
	metrics.RecordCacheLookup(metrics.CacheHit)
	return a, nil
}

func (r *Redis) Set(ctx context.Context, a model.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.ShipmentID, err)
	}
	_, err = r.execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.key(a.ShipmentID), data, r.ttl).Err()
	})
	return err
}

func (r *Redis) Invalidate(ctx context.Context, shipmentID string) error {
	_, err := r.execute(func() (interface{}, error) {
		return nil, r.client.Del(ctx, r.key(shipmentID)).Err()
	})
	return err
}
