package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/creditgate/internal/clock"
	"github.com/smallbiznis/creditgate/internal/config"
	"go.uber.org/zap"
)

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
	ErrNoSecret     = errors.New("auth_secret_required")
)

const issuer = "creditgate"

// Identity is a verified caller.
type Identity struct {
	UserID string
	Email  string
}

// Verifier turns a bearer token into a verified identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates and issues HS256 tokens.
type JWTVerifier struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewJWTVerifier(secret []byte, ttl time.Duration, clk clock.Clock) *JWTVerifier {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTVerifier{secret: secret, ttl: ttl, clock: clk}
}

// NewVerifierFromConfig requires AUTH_JWT_SECRET in production. Elsewhere a
// random per-process secret is used when none is set.
func NewVerifierFromConfig(cfg config.Config, clk clock.Clock, log *zap.Logger) (*JWTVerifier, error) {
	secret := []byte(strings.TrimSpace(cfg.AuthJWTSecret))
	if len(secret) == 0 {
		if cfg.IsProduction() {
			return nil, ErrNoSecret
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Named("auth").Warn("AUTH_JWT_SECRET not set, tokens will not survive a restart")
	}
	return NewJWTVerifier(secret, cfg.AuthTokenTTL, clk), nil
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := strings.TrimSpace(c.UserID)
	if userID == "" {
		userID = strings.TrimSpace(c.Subject)
	}
	if userID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, Email: strings.TrimSpace(c.Email)}, nil
}

// Issue signs a token for id that expires after the configured TTL.
func (v *JWTVerifier) Issue(id Identity) (string, time.Time, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	now := v.clock.Now()
	expiresAt := now.Add(v.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: id.UserID,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
			Issuer:    issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
