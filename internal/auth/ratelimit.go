package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	MaxFailedAttempts = 5
	LockoutWindow     = 15 * time.Minute

	attemptsKeyPrefix = "portfolio::login-attempts::"
)

// Attempts is the per-source-address failed login counter.
type Attempts struct {
	Count     int       `json:"count"`
	ResetTime time.Time `json:"reset_time"`
}

// AttemptStore persists login attempt counters. Two implementations
// exist: redis backed (durable, shared) and in-memory (process-local
// fallback for single instance setups). The backend is picked by
// configuration at startup, never probed at runtime.
type AttemptStore interface {
	Get(ctx context.Context, addr string) (*Attempts, error)
	Set(ctx context.Context, addr string, attempts *Attempts, ttl time.Duration) error
	Delete(ctx context.Context, addr string) error
}

type RedisAttemptStore struct {
	redisClient *redis.Client
}

func NewRedisAttemptStore(redisClient *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{
		redisClient: redisClient,
	}
}

func (s *RedisAttemptStore) Get(ctx context.Context, addr string) (*Attempts, error) {
	cmd := s.redisClient.Get(ctx, attemptsKeyPrefix+addr)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get login attempts: %w", err)
	}

	var attempts Attempts
	if err := json.Unmarshal([]byte(cmd.Val()), &attempts); err != nil {
		return nil, fmt.Errorf("unmarshal login attempts: %w", err)
	}

	return &attempts, nil
}

func (s *RedisAttemptStore) Set(ctx context.Context, addr string, attempts *Attempts, ttl time.Duration) error {
	attemptsBytes, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("marshal login attempts: %w", err)
	}

	if err := s.redisClient.Set(ctx, attemptsKeyPrefix+addr, attemptsBytes, ttl).Err(); err != nil {
		return fmt.Errorf("set login attempts: %w", err)
	}

	return nil
}

func (s *RedisAttemptStore) Delete(ctx context.Context, addr string) error {
	if err := s.redisClient.Del(ctx, attemptsKeyPrefix+addr).Err(); err != nil {
		return fmt.Errorf("delete login attempts: %w", err)
	}
	return nil
}

type memoryAttemptsEntry struct {
	attempts  Attempts
	expiresAt time.Time
}

type InMemoryAttemptStore struct {
	mutex   sync.Mutex
	entries map[string]memoryAttemptsEntry
	nowFunc func() time.Time
}

func NewInMemoryAttemptStore() *InMemoryAttemptStore {
	return &InMemoryAttemptStore{
		entries: make(map[string]memoryAttemptsEntry),
		nowFunc: time.Now,
	}
}

func (s *InMemoryAttemptStore) Get(_ context.Context, addr string) (*Attempts, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.entries[addr]
	if !ok {
		return nil, nil
	}
	if s.nowFunc().After(entry.expiresAt) {
		delete(s.entries, addr)
		return nil, nil
	}

	attempts := entry.attempts
	return &attempts, nil
}

func (s *InMemoryAttemptStore) Set(_ context.Context, addr string, attempts *Attempts, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries[addr] = memoryAttemptsEntry{
		attempts:  *attempts,
		expiresAt: s.nowFunc().Add(ttl),
	}
	return nil
}

func (s *InMemoryAttemptStore) Delete(_ context.Context, addr string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.entries, addr)
	return nil
}

// Verdict is the rate limiter answer for one login attempt.
type Verdict struct {
	Allowed    bool
	RetryAfter time.Duration
}

// LoginLimiter throttles login attempts per source address:
// Clean -> Counting(n) -> Locked(resetTime) -> Clean. The lockout
// window does not extend on repeated failures within it, so a
// sustained attack has a bounded total duration.
type LoginLimiter struct {
	store       AttemptStore
	maxAttempts int
	window      time.Duration
	nowFunc     func() time.Time
}

func NewLoginLimiter(store AttemptStore) *LoginLimiter {
	return &LoginLimiter{
		store:       store,
		maxAttempts: MaxFailedAttempts,
		window:      LockoutWindow,
		nowFunc:     time.Now,
	}
}

// Check fails open: when the attempt store is unavailable, login
// availability wins over strict throttling.
func (ll *LoginLimiter) Check(ctx context.Context, addr string) Verdict {
	attempts, err := ll.store.Get(ctx, addr)
	if err != nil {
		log.Errorf("login limiter, get attempts for [%s]: %s, failing open", addr, err)
		return Verdict{Allowed: true}
	}
	if attempts == nil {
		return Verdict{Allowed: true}
	}

	now := ll.nowFunc()
	if now.After(attempts.ResetTime) {
		// window elapsed naturally, counter is stale
		if err := ll.store.Delete(ctx, addr); err != nil {
			log.Errorf("login limiter, clear stale attempts for [%s]: %s", addr, err)
		}
		return Verdict{Allowed: true}
	}

	if attempts.Count >= ll.maxAttempts {
		return Verdict{
			Allowed:    false,
			RetryAfter: attempts.ResetTime.Sub(now),
		}
	}

	return Verdict{Allowed: true}
}

func (ll *LoginLimiter) RecordFailure(ctx context.Context, addr string) {
	attempts, err := ll.store.Get(ctx, addr)
	if err != nil {
		log.Errorf("login limiter, record failure for [%s]: %s", addr, err)
		return
	}

	now := ll.nowFunc()
	if attempts == nil || now.After(attempts.ResetTime) {
		attempts = &Attempts{
			Count:     1,
			ResetTime: now.Add(ll.window),
		}
	} else {
		// the original reset time is kept on purpose
		attempts.Count++
	}

	if err := ll.store.Set(ctx, addr, attempts, attempts.ResetTime.Sub(now)); err != nil {
		log.Errorf("login limiter, save attempts for [%s]: %s", addr, err)
	}
}

func (ll *LoginLimiter) RecordSuccess(ctx context.Context, addr string) {
	if err := ll.store.Delete(ctx, addr); err != nil {
		log.Errorf("login limiter, clear attempts for [%s]: %s", addr, err)
	}
}
