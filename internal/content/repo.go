package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const contentKeyPrefix = "portfolio::content::"

// Sections editable through the dashboard. Each one is an opaque JSON
// object owned by the frontend.
var validSections = map[string]bool{
	"hero":     true,
	"about":    true,
	"skills":   true,
	"resume":   true,
	"projects": true,
	"pages":    true,
}

var (
	ErrUnknownSection = errors.New("unknown content section")
	ErrSectionNotSet  = errors.New("content section not set")
)

func IsValidSection(section string) bool {
	return validSections[section]
}

type Repo struct {
	redisClient *redis.Client
}

func NewRepo(redisClient *redis.Client) *Repo {
	return &Repo{
		redisClient: redisClient,
	}
}

func (repo *Repo) Get(ctx context.Context, section string) ([]byte, error) {
	if !IsValidSection(section) {
		return nil, ErrUnknownSection
	}

	cmd := repo.redisClient.Get(ctx, contentKeyPrefix+section)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, ErrSectionNotSet
		}
		return nil, fmt.Errorf("get content section %s: %w", section, err)
	}

	return []byte(cmd.Val()), nil
}

// Set replaces the whole section - content edits from the dashboard
// always submit the full section object.
func (repo *Repo) Set(ctx context.Context, section string, data []byte) error {
	if !IsValidSection(section) {
		return ErrUnknownSection
	}

	// content lives until replaced, no TTL
	if err := repo.redisClient.Set(ctx, contentKeyPrefix+section, data, 0).Err(); err != nil {
		return fmt.Errorf("set content section %s: %w", section, err)
	}

	return nil
}
