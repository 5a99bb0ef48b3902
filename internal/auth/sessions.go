package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "portfolio::session::"

// SessionRegistry keeps, per identity, the single currently valid
// token. It is what turns an otherwise stateless signed token into a
// revocable session: a valid signature is necessary but not sufficient.
type SessionRegistry struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewSessionRegistry(ttl time.Duration, redisClient *redis.Client) *SessionRegistry {
	return &SessionRegistry{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

func sessionKey(email string) string {
	return sessionKeyPrefix + NormalizeEmail(email)
}

// Create stores the token as the one valid session for the identity,
// overwriting any previous one - only the most recent login wins.
func (sr *SessionRegistry) Create(ctx context.Context, email, token string) error {
	if err := sr.redisClient.Set(ctx, sessionKey(email), token, sr.ttl).Err(); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Verify succeeds only if the stored session value is byte-equal to
// the supplied token.
func (sr *SessionRegistry) Verify(ctx context.Context, email, token string) (bool, error) {
	cmd := sr.redisClient.Get(ctx, sessionKey(email))
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("verify session: %w", err)
	}

	return cmd.Val() == token, nil
}

// Delete removes the session outright. Deleting an absent session is
// not an error - logout is idempotent.
func (sr *SessionRegistry) Delete(ctx context.Context, email string) error {
	if err := sr.redisClient.Del(ctx, sessionKey(email)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
