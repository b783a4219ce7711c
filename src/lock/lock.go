// Package lock provides named leases over redis: acquire with TTL, extend,
// and token-fenced release so a lease that outlived its TTL cannot release
// a successor's lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every lease key.
const keyPrefix = "lock:"

var (
	// ErrNotAcquired is returned when the lease is held by someone else
	// for the whole blocking window.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotOwned is returned by release/extend when the token no longer
	// matches, meaning the lease expired and was taken over.
	ErrNotOwned = errors.New("lock no longer owned")
)

// Release and extend compare the stored token before mutating, so a lease
// that outlived its TTL cannot touch a successor's lock.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0`)
)

// Config holds lock service configuration.
type Config struct {
	Address  string `yaml:"address"`  // host:port; empty disables locking
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Service hands out leases against one redis instance.
type Service struct {
	client *redis.Client
}

// New connects the lock service and verifies connectivity.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("lock service ping: %w", err)
	}
	return &Service{client: client}, nil
}

// Close releases the redis connection pool.
func (s *Service) Close() error {
	return s.client.Close()
}

// Lease is one held lock.
type Lease struct {
	svc   *Service
	key   string
	token string
}

// Acquire takes the named lease, polling for up to wait. wait <= 0 tries
// exactly once.
func (s *Service) Acquire(ctx context.Context, name string, ttl, wait time.Duration) (*Lease, error) {
	key := keyPrefix + name
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			return &Lease{svc: s, key: key, token: token}, nil
		}
		if wait <= 0 || time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire %s: %w", name, ErrNotAcquired)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Release drops the lease if it is still owned.
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.svc.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("release %s: %w", l.key, ErrNotOwned)
	}
	return nil
}

// Extend pushes the lease expiry to ttl from now if still owned.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.svc.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("extend %s: %w", l.key, ErrNotOwned)
	}
	return nil
}
