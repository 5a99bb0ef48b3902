package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is both the token expiry and the session record TTL
	DefaultTTL = 7 * 24 * time.Hour

	TokenTypeAdmin = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenClaims carries the admin identity (subject) plus an issuance
// type tag on top of the registered JWT claims.
type TokenClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
}

// TokenService mints and verifies HS256 signed tokens. Rotating the
// secret invalidates all outstanding tokens, which is acceptable and
// documented behavior.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: secret,
		ttl:    ttl,
	}
}

func (ts *TokenService) Issue(email string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		TokenType: TokenTypeAdmin,
	})

	tokenString, err := token.SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return tokenString, nil
}

// Verify returns the claims of a well formed, correctly signed and
// unexpired token. All failure modes (bad signature, expiry, garbage
// input) come back as an error wrapping ErrInvalidToken - they are
// expected, recoverable conditions for the caller.
func (ts *TokenService) Verify(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return ts.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	if !token.Valid || claims.TokenType != TokenTypeAdmin {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
