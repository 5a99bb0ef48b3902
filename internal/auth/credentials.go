package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mtadic/portfolio-backend/pkg"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	credentialsKey = "portfolio::admin-credentials"

	// surfaced once by InitializeIfAbsent, must be changed right after
	DefaultAdminEmail    = "admin@portfolio.com"
	DefaultAdminPassword = "ChangeThisPassword123!"
)

// AdminCredential is the single administrator identity. At most one
// record exists system-wide.
type AdminCredential struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CredentialStore struct {
	redisClient *redis.Client
}

func NewCredentialStore(redisClient *redis.Client) *CredentialStore {
	return &CredentialStore{
		redisClient: redisClient,
	}
}

// Get returns the stored credential record, or nil when none was
// created yet.
func (cs *CredentialStore) Get(ctx context.Context) (*AdminCredential, error) {
	cmd := cs.redisClient.Get(ctx, credentialsKey)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get admin credentials: %w", err)
	}

	var cred AdminCredential
	if err := json.Unmarshal([]byte(cmd.Val()), &cred); err != nil {
		return nil, fmt.Errorf("unmarshal admin credentials: %w", err)
	}

	return &cred, nil
}

// Save fully replaces the credential record, there are no partial updates.
func (cs *CredentialStore) Save(ctx context.Context, email, passwordHash string) error {
	cred := AdminCredential{
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		UpdatedAt:    time.Now(),
	}

	credBytes, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal admin credentials: %w", err)
	}

	// no TTL, credentials live until explicitly replaced
	if err := cs.redisClient.Set(ctx, credentialsKey, string(credBytes), 0).Err(); err != nil {
		return fmt.Errorf("save admin credentials: %w", err)
	}

	return nil
}

// InitializeIfAbsent creates the default credential record if none
// exists. Idempotent - an existing record is never overwritten. The
// default plaintext password is returned only on first creation.
func (cs *CredentialStore) InitializeIfAbsent(ctx context.Context) (created bool, defaultPassword string, err error) {
	existing, err := cs.Get(ctx)
	if err != nil {
		return false, "", err
	}
	if existing != nil {
		log.Tracef("credentials init: record for [%s] already present, noop", existing.Email)
		return false, "", nil
	}

	passwordHash, err := pkg.HashPassword(DefaultAdminPassword)
	if err != nil {
		return false, "", fmt.Errorf("hash default password: %w", err)
	}

	if err := cs.Save(ctx, DefaultAdminEmail, passwordHash); err != nil {
		return false, "", err
	}

	log.Warnf("credentials init: created default admin [%s], change the password now", DefaultAdminEmail)
	return true, DefaultAdminPassword, nil
}

// NormalizeEmail - emails are compared and keyed lowercase and trimmed
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
