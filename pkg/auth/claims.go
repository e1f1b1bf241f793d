package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/experiences-backend/pkg/config"
)

// ScopeWalletProvision authorizes calls to the wallet provisioning surface.
const ScopeWalletProvision = "wallets:provision"

// ServiceTokenConfig carries the shared secret used between internal services.
type ServiceTokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// ServiceTokenConfigFrom reads the service token settings from the wallet config.
func ServiceTokenConfigFrom(cfg config.WalletConfig) ServiceTokenConfig {
	return ServiceTokenConfig{
		Secret: cfg.ServiceSecret,
		Issuer: cfg.ServiceIssuer,
		TTL:    cfg.ServiceTTL,
	}
}

// ServiceTokenClaims is the JWT exchanged between backend services.
type ServiceTokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}
