// Package auth handles principal authentication: password verification and
// the JWT access tokens that carry the principal identity between requests.
// Tokens carry identity only; tenant context and permissions are resolved
// fresh on every request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mhaswell/fabtrace/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Config controls token issuance.
type Config struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "fabtrace"
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 8 * time.Hour
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("auth: secret is required")
	}
	return nil
}

// Claims is the JWT payload. The principal ID is the subject; the rest is
// convenience for logging and is never trusted for authorization.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// JWTManager issues and validates access tokens.
type JWTManager struct {
	cfg Config
}

// NewJWTManager creates a JWT manager.
func NewJWTManager(cfg Config) (*JWTManager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JWTManager{cfg: cfg}, nil
}

// GenerateToken issues a signed access token for the principal.
func (m *JWTManager) GenerateToken(principal *models.Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.PrincipalID.String(),
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTokenTTL)),
			ID:        uuid.NewString(),
		},
		Email: principal.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token and returns the principal ID it names.
func (m *JWTManager) ValidateToken(tokenString string) (uuid.UUID, *Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.cfg.Secret), nil
	}, jwt.WithIssuer(m.cfg.Issuer))
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return uuid.Nil, nil, ErrInvalidToken
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return principalID, claims, nil
}
