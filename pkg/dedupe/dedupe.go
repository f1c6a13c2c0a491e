// Package dedupe remembers delivery ids so redelivered webhooks are handled once.
//
// An id is first claimed for ClaimTTL. Done keeps it for the full TTL once the delivery was
// handled; Forget releases it when handling failed. A process that dies mid-delivery never
// calls either, so the claim lapses and a later redelivery is processed.
package dedupe

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a handled delivery id is remembered.
	DefaultTTL = 24 * time.Hour
	// ClaimTTL bounds how long an in-flight delivery blocks redeliveries of the same id.
	ClaimTTL = 10 * time.Minute
)

const keyPrefix = "webhook:seen:"

// Checker is implemented by Redis, Memory and Fallback.
type Checker interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Done(ctx context.Context, id string) error
	Forget(ctx context.Context, id string) error
}

func claimTTL(ttl time.Duration) time.Duration {
	if ttl < ClaimTTL {
		return ttl
	}
	return ClaimTTL
}

// Redis records ids with SETNX so every API instance sees the same history.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed deduper.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// FirstSeen claims id and reports whether no other delivery holds it.
func (r *Redis) FirstSeen(ctx context.Context, id string) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+id, time.Now().Unix(), claimTTL(r.ttl)).Result()
}

// Done extends the claim to the full TTL.
func (r *Redis) Done(ctx context.Context, id string) error {
	return r.client.Expire(ctx, keyPrefix+id, r.ttl).Err()
}

// Forget drops the claim.
func (r *Redis) Forget(ctx context.Context, id string) error {
	return r.client.Del(ctx, keyPrefix+id).Err()
}

// Memory records ids in process memory. It backs Redis during outages and serves tests.
type Memory struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemory creates an in-process deduper.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{cache: cache.New(ttl, 10*time.Minute), ttl: ttl}
}

// FirstSeen claims id and reports whether no other delivery holds it.
func (m *Memory) FirstSeen(_ context.Context, id string) (bool, error) {
	// Add fails when the key already exists and has not expired.
	return m.cache.Add(id, struct{}{}, claimTTL(m.ttl)) == nil, nil
}

// Done extends the claim to the full TTL.
func (m *Memory) Done(_ context.Context, id string) error {
	m.cache.Set(id, struct{}{}, m.ttl)
	return nil
}

// Forget drops the claim.
func (m *Memory) Forget(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

// Fallback asks primary first and falls back to secondary when primary errors,
// so a Redis outage degrades to per-instance dedupe instead of none.
type Fallback struct {
	primary   Checker
	secondary Checker
}

// NewFallback chains two checkers.
func NewFallback(primary, secondary Checker) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// FirstSeen claims id and reports whether no other delivery holds it.
func (f *Fallback) FirstSeen(ctx context.Context, id string) (bool, error) {
	first, err := f.primary.FirstSeen(ctx, id)
	if err == nil {
		return first, nil
	}
	return f.secondary.FirstSeen(ctx, id)
}

// Done marks id handled in both checkers; only the checker that claimed it holds a key.
func (f *Fallback) Done(ctx context.Context, id string) error {
	if err := f.primary.Done(ctx, id); err != nil {
		return f.secondary.Done(ctx, id)
	}
	return nil
}

// Forget drops the claim from both checkers.
func (f *Fallback) Forget(ctx context.Context, id string) error {
	err := f.primary.Forget(ctx, id)
	if serr := f.secondary.Forget(ctx, id); err == nil {
		err = serr
	}
	return err
}
