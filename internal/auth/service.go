package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode"

	"github.com/mtadic/portfolio-backend/pkg"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrWrongCredentials is deliberately shared between a wrong email
	// and a wrong password, the caller must not reveal which one it was
	ErrWrongCredentials = errors.New("wrong credentials")

	// ErrCredentialsUnavailable - the backing store is unreachable or
	// was never initialized; handlers map it to a 500 with a hint
	ErrCredentialsUnavailable = errors.New("credentials unavailable")

	// ErrSessionExpired - the token checks out cryptographically but
	// was superseded by a newer login or an explicit logout
	ErrSessionExpired = errors.New("session expired")
)

// TooManyAttemptsError carries the remaining lockout time for the 429 response.
type TooManyAttemptsError struct {
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many failed login attempts, retry in %s", e.RetryAfter.Round(time.Second))
}

// ValidationError is a field-level credential update failure. This
// surface sits behind authentication, so specific messages are fine.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLength = 8

func validateNewPassword(password string) *ValidationError {
	if len(password) < minPasswordLength {
		return &ValidationError{Field: "newPassword", Message: fmt.Sprintf("must be at least %d characters long", minPasswordLength)}
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return &ValidationError{Field: "newPassword", Message: "must contain an uppercase letter"}
	case !hasLower:
		return &ValidationError{Field: "newPassword", Message: "must contain a lowercase letter"}
	case !hasDigit:
		return &ValidationError{Field: "newPassword", Message: "must contain a digit"}
	case !hasSpecial:
		return &ValidationError{Field: "newPassword", Message: "must contain a special character"}
	}

	return nil
}

// Service wires the credential store, password hashing, token issuing,
// the session registry and the login limiter into the login flow.
type Service struct {
	credentials *CredentialStore
	tokens      *TokenService
	sessions    *SessionRegistry
	limiter     *LoginLimiter
}

func NewService(
	credentials *CredentialStore,
	tokens *TokenService,
	sessions *SessionRegistry,
	limiter *LoginLimiter,
) *Service {
	return &Service{
		credentials: credentials,
		tokens:      tokens,
		sessions:    sessions,
		limiter:     limiter,
	}
}

// Login runs the whole flow: limiter check -> credential fetch ->
// password verify -> token mint -> session create -> limiter reset.
func (s *Service) Login(ctx context.Context, email, password, sourceAddr string) (string, error) {
	if verdict := s.limiter.Check(ctx, sourceAddr); !verdict.Allowed {
		return "", &TooManyAttemptsError{RetryAfter: verdict.RetryAfter}
	}

	cred, err := s.credentials.Get(ctx)
	if err != nil {
		log.Errorf("login, get credentials: %s", err)
		return "", ErrCredentialsUnavailable
	}
	if cred == nil {
		return "", ErrCredentialsUnavailable
	}

	// password first - bcrypt compare dominates the timing either way
	if !pkg.CheckPasswordHash(password, cred.PasswordHash) || NormalizeEmail(email) != cred.Email {
		s.limiter.RecordFailure(ctx, sourceAddr)
		log.Tracef("failed login attempt from [%s]", sourceAddr)
		return "", ErrWrongCredentials
	}

	token, err := s.tokens.Issue(cred.Email)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	if err := s.sessions.Create(ctx, cred.Email, token); err != nil {
		return "", err
	}

	s.limiter.RecordSuccess(ctx, sourceAddr)
	log.Trace("new login success")

	return token, nil
}

// Authenticate is the three stage check behind every protected
// request: token signature/expiry, then the session registry must
// still hold exactly this token for the identity.
func (s *Service) Authenticate(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	stillValid, err := s.sessions.Verify(ctx, claims.Subject, token)
	if err != nil {
		return nil, err
	}
	if !stillValid {
		return nil, ErrSessionExpired
	}

	return claims, nil
}

// Logout drops the session of the identity embedded in the token.
// Idempotent - an already removed session is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}

	return s.sessions.Delete(ctx, claims.Subject)
}

// UpdateCredentials replaces the credential record. The caller is
// already authenticated, but the current password is required again.
// The active session is dropped so the new credentials must be used.
func (s *Service) UpdateCredentials(ctx context.Context, identity, currentPassword, newEmail, newPassword string) error {
	cred, err := s.credentials.Get(ctx)
	if err != nil || cred == nil {
		log.Errorf("update credentials, get current: %s", err)
		return ErrCredentialsUnavailable
	}

	if !pkg.CheckPasswordHash(currentPassword, cred.PasswordHash) {
		return ErrWrongCredentials
	}

	email := cred.Email
	if newEmail != "" {
		email = NormalizeEmail(newEmail)
		if !emailRegex.MatchString(email) {
			return &ValidationError{Field: "newEmail", Message: "not a valid email address"}
		}
	}

	if validationErr := validateNewPassword(newPassword); validationErr != nil {
		return validationErr
	}

	passwordHash, err := pkg.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.credentials.Save(ctx, email, passwordHash); err != nil {
		return err
	}

	// force a fresh login with the new credentials
	if err := s.sessions.Delete(ctx, identity); err != nil {
		log.Errorf("update credentials, drop session for [%s]: %s", identity, err)
	}
	if email != identity {
		if err := s.sessions.Delete(ctx, email); err != nil {
			log.Errorf("update credentials, drop session for [%s]: %s", email, err)
		}
	}

	return nil
}

// Initialize creates the default credential record when none exists.
func (s *Service) Initialize(ctx context.Context) (created bool, defaultPassword string, err error) {
	return s.credentials.InitializeIfAbsent(ctx)
}
