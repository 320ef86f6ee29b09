package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Rilosupriyatno/microts/internal/model"
	"github.com/Rilosupriyatno/microts/internal/token"
	"github.com/Rilosupriyatno/microts/pkg/apierror"
)

const minPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserStore is the credential-store contract the orchestrator depends on.
// The pgx repository satisfies it in production; tests substitute a fake.
type UserStore interface {
	Create(ctx context.Context, email string, passwordHash string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id int64) (model.User, error)
}

// AuthService composes credential verification, password hashing, and the
// token lifecycle manager. It owns the error taxonomy surfaced to callers:
// internal distinctions are collapsed here, never beyond.
type AuthService struct {
	users      UserStore
	tokens     *token.Manager
	bcryptCost int
}

func NewAuthService(users UserStore, tokens *token.Manager, bcryptCost int) (*AuthService, error) {
	if users == nil || tokens == nil {
		return nil, errors.New("user store and token manager are required")
	}
	if bcryptCost == 0 {
		bcryptCost = 10
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}

	return &AuthService{users: users, tokens: tokens, bcryptCost: bcryptCost}, nil
}

func (s *AuthService) Register(ctx context.Context, email string, password string) (model.RegisterResult, error) {
	email = normalizeEmail(email)

	if !emailPattern.MatchString(email) {
		return model.RegisterResult{}, apierror.Validation("Invalid email format")
	}
	if len(password) < minPasswordLength {
		return model.RegisterResult{}, apierror.Validation("Password must be at least 8 characters")
	}

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return model.RegisterResult{}, apierror.Conflict("Email already registered")
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return model.RegisterResult{}, dependencyError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.RegisterResult{}, err
	}

	user, err := s.users.Create(ctx, email, string(hash))
	if errors.Is(err, model.ErrUserAlreadyExists) {
		// Lost the race against a concurrent registration.
		return model.RegisterResult{}, apierror.Conflict("Email already registered")
	}
	if err != nil {
		return model.RegisterResult{}, dependencyError(err)
	}

	tokens, err := s.tokens.Issue(ctx, model.TokenPayload{Subject: user.ID, Email: user.Email})
	if err != nil {
		return model.RegisterResult{}, dependencyError(err)
	}

	return model.RegisterResult{
		User:   model.AuthUser{ID: user.ID, Email: user.Email},
		Tokens: tokens,
	}, nil
}

// Login fails identically for an unknown email and a wrong password so the
// response never reveals whether an account exists.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, apierror.Unauthorized("Invalid credentials")
	}
	if err != nil {
		return model.TokenPair{}, dependencyError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.TokenPair{}, apierror.Unauthorized("Invalid credentials")
	}

	tokens, err := s.tokens.Issue(ctx, model.TokenPayload{Subject: user.ID, Email: user.Email})
	if err != nil {
		return model.TokenPair{}, dependencyError(err)
	}

	return tokens, nil
}

// Refresh normalizes every rotation failure to one unauthorized error,
// deliberately hiding whether the token was malformed, expired, or revoked.
// Dependency unavailability is the single exception: callers may retry.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	tokens, err := s.tokens.Rotate(ctx, refreshToken)
	if err == nil {
		return tokens, nil
	}
	if errors.Is(err, model.ErrDependencyUnavailable) {
		return model.TokenPair{}, dependencyError(err)
	}

	return model.TokenPair{}, apierror.Unauthorized("Invalid refresh token")
}

// Logout always succeeds from the caller's perspective. A failed delete is
// logged and retried implicitly by the token's TTL expiry.
func (s *AuthService) Logout(ctx context.Context, userID int64) {
	if err := s.tokens.Revoke(ctx, userID); err != nil {
		slog.Warn("logout revoke failed; token will expire via TTL", "user_id", userID, "error", err)
	}
}

// VerifyAccess is the reusable guard for protected routes.
func (s *AuthService) VerifyAccess(tokenString string) (model.TokenPayload, error) {
	return s.tokens.VerifyAccess(tokenString)
}

func (s *AuthService) GetUserByID(ctx context.Context, id int64) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.AuthUser{}, apierror.New(apierror.CodeNotFound, "User not found", "", 404)
	}
	if err != nil {
		return model.AuthUser{}, dependencyError(err)
	}

	return model.AuthUser{ID: user.ID, Email: user.Email}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// dependencyError logs the full cause and surfaces generic retryable
// unavailability to the caller.
func dependencyError(err error) error {
	slog.Error("dependency failure", "error", err)
	return apierror.ServiceUnavailable("Service temporarily unavailable")
}
