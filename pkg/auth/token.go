package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
)

// clockSkew tolerates small clock drift between the identity service and us.
const clockSkew = 30 * time.Second

var (
	signingMethod = jwt.SigningMethodHS256

	ErrSecretMissing = errors.New("jwt secret is required")
	ErrNoTenant      = errors.New("token carries no tenant")
	ErrUnknownRole   = errors.New("token carries an unknown role")
)

// MintAccessToken signs a token valid for ttl. Production tokens come from
// the identity service; tooling and tests mint their own.
func MintAccessToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrSecretMissing
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case ttl <= 0:
		return "", errors.New("jwt ttl must be positive")
	case payload.TenantID == uuid.Nil:
		return "", ErrNoTenant
	case payload.Role != "" && !payload.Role.Valid():
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, payload.Role)
	}

	signed, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		UserID:   payload.UserID,
		TenantID: payload.TenantID,
		Role:     payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry and returns the
// tenant-scoped claims.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretMissing
	}
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	if claims.TenantID == uuid.Nil {
		return nil, ErrNoTenant
	}
	if claims.Role != "" && !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	return claims, nil
}
