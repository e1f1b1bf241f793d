package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintServiceToken issues a short-lived token for subject with the given scope.
func MintServiceToken(cfg ServiceTokenConfig, now time.Time, subject, scope string) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("service token secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("service token issuer is required")
	}
	if cfg.TTL <= 0 {
		return "", fmt.Errorf("service token ttl must be positive")
	}
	if strings.TrimSpace(scope) == "" {
		return "", fmt.Errorf("service token scope is required")
	}

	claims := ServiceTokenClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ErrScopeDenied is returned for a valid token that lacks the required scope.
var ErrScopeDenied = errors.New("scope denied")

// ParseServiceToken validates the JWT string and requires the given scope.
func ParseServiceToken(cfg ServiceTokenConfig, tokenString, scope string) (*ServiceTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("service token secret is required")
	}

	claims := &ServiceTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Scope != scope {
		return nil, fmt.Errorf("%w: token scope %q does not grant %q", ErrScopeDenied, claims.Scope, scope)
	}
	return claims, nil
}
