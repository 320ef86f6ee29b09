package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Rilosupriyatno/microts/internal/model"
)

// RefreshStore persists the single currently valid refresh token per user.
// Save overwrites any previous value.
type RefreshStore interface {
	Save(ctx context.Context, userID int64, token string, ttl time.Duration) error
	Find(ctx context.Context, userID int64) (string, error)
	Delete(ctx context.Context, userID int64) error
}

type Config struct {
	// AccessSecret and RefreshSecret must differ so that compromise of one
	// secret does not compromise the other token class.
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Manager is the sole authority for minting, validating, rotating, and
// revoking token pairs. Access tokens are stateless; refresh token validity
// additionally requires an exact match against the store.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         RefreshStore
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config, store RefreshStore) (*Manager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if store == nil {
		return nil, errors.New("refresh store is required")
	}

	return &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		store:         store,
	}, nil
}

// Issue signs a new access/refresh pair and persists the refresh token,
// overwriting any previous one. This keeps at most one valid refresh token
// per user.
func (m *Manager) Issue(ctx context.Context, payload model.TokenPayload) (model.TokenPair, error) {
	accessToken, err := m.sign(payload, m.accessSecret, m.accessTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := m.sign(payload, m.refreshSecret, m.refreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := m.store.Save(ctx, payload.Subject, refreshToken, m.refreshTTL); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess checks signature and expiry only. It never touches the
// store, keeping the hot-path auth check free of remote calls.
func (m *Manager) VerifyAccess(tokenString string) (model.TokenPayload, error) {
	return m.verify(tokenString, m.accessSecret)
}

func (m *Manager) VerifyRefresh(tokenString string) (model.TokenPayload, error) {
	return m.verify(tokenString, m.refreshSecret)
}

// Rotate exchanges a valid refresh token for a brand-new pair. The
// presented token must exactly match the stored value; anything else
// (revoked, superseded by a later login, forged) fails with
// ErrTokenRevoked. The read-compare-overwrite sequence is not atomic:
// two concurrent rotations of the same valid token may both pass the
// compare, after which last write wins and the earlier pair is
// invalidated. Both callers held a legitimate token, so this degrades
// gracefully rather than opening a hole.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	payload, err := m.VerifyRefresh(refreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}

	stored, err := m.store.Find(ctx, payload.Subject)
	if errors.Is(err, model.ErrTokenNotFound) {
		return model.TokenPair{}, model.ErrTokenRevoked
	}
	if err != nil {
		return model.TokenPair{}, err
	}
	if stored != refreshToken {
		return model.TokenPair{}, model.ErrTokenRevoked
	}

	return m.Issue(ctx, payload)
}

// Revoke deletes the stored refresh token for the user. Idempotent.
func (m *Manager) Revoke(ctx context.Context, userID int64) error {
	return m.store.Delete(ctx, userID)
}

func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

func (m *Manager) sign(payload model.TokenPayload, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: payload.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti claim makes every token unique even when two signings
			// share the same second-precision iat. Rotation depends on the
			// new refresh token never equaling the presented one.
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(payload.Subject, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return t.SignedString(secret)
}

func (m *Manager) verify(tokenString string, secret []byte) (model.TokenPayload, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return model.TokenPayload{}, model.ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return model.TokenPayload{}, model.ErrInvalidToken
	}

	subject, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return model.TokenPayload{}, model.ErrInvalidToken
	}

	return model.TokenPayload{Subject: subject, Email: c.Email}, nil
}
