package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/experiences-backend/api/controllers"
	"github.com/angelmondragon/experiences-backend/api/middleware"
	"github.com/angelmondragon/experiences-backend/internal/catalog"
	"github.com/angelmondragon/experiences-backend/internal/wallets"
	"github.com/angelmondragon/experiences-backend/pkg/auth"
	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/experiences-backend/pkg/redis"
)

// Cache is the slice of the redis client the HTTP surface needs.
type Cache interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Deps carries the services mounted on the router. A nil Cache disables
// rate limiting and idempotency replay.
type Deps struct {
	DB          controllers.Pinger
	Ledger      controllers.Pinger
	Cache       Cache
	Catalog     catalog.Store
	Provisioner wallets.Provisioner
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiterStore     middleware.RateLimiterStore
	)
	pingers := map[string]controllers.Pinger{}
	if deps.DB != nil {
		pingers["db"] = deps.DB
	}
	if deps.Ledger != nil {
		pingers["ledger"] = deps.Ledger
	}
	if deps.Cache != nil {
		idempotencyStore = deps.Cache
		limiterStore = deps.Cache
		pingers["redis"] = deps.Cache
	}

	readPolicy := middleware.NewRateLimitPolicy("read", cfg.RateLimit.Window, cfg.RateLimit.ReadLimit)
	provisionPolicy := middleware.NewRateLimitPolicy("provision", cfg.RateLimit.Window, cfg.RateLimit.ProvisionLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	if deps.Catalog != nil {
		r.Route("/api/v1/experiences", func(r chi.Router) {
			r.Use(middleware.RateLimit(readPolicy, limiterStore, logg))
			r.Get("/", controllers.ExperienceList(deps.Catalog, logg))
			r.Get("/{experienceId}", controllers.ExperienceDetail(deps.Catalog, cfg.Ledger.Decimals, logg))
		})
	}

	if deps.Provisioner != nil {
		r.Route("/api/v1/wallets", func(r chi.Router) {
			r.Use(middleware.ServiceAuth(auth.ServiceTokenConfigFrom(cfg.Wallet), auth.ScopeWalletProvision, logg))
			r.Use(middleware.RateLimit(provisionPolicy, limiterStore, logg))
			r.Get("/ping", controllers.ServicePing())
			// Inline so the idempotency rule sees the full route pattern.
			r.With(middleware.Idempotency(idempotencyStore, logg)).Post("/provision", controllers.WalletProvision(deps.Provisioner, logg))
		})
	}

	return r
}
