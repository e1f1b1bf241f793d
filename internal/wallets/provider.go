package wallets

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/auth"
	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/custody"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
)

const (
	ProviderRemote  = "remote"
	ProviderCustody = "custody"
)

// ProviderDeps is what the local service needs when no remote backend is set.
type ProviderDeps struct {
	DB      *gorm.DB
	Tx      TxRunner
	Cache   NameCache
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
}

// NewProvisioner serves provisioning locally against the custody backend
// unless a remote wallet backend is configured.
func NewProvisioner(cfg config.WalletConfig, deps ProviderDeps) (Provisioner, error) {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	if cfg.UseRemote() {
		return NewRemoteProvisioner(cfg.RemoteURL, auth.ServiceTokenConfigFrom(cfg), httpClient)
	}

	custodyClient, err := custody.NewClient(
		cfg.CustodyURL,
		cfg.CustodyAPIKey,
		custody.WithNetwork(cfg.Network),
		custody.WithFaucetToken(cfg.FaucetToken),
		custody.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, err
	}
	return NewService(ServiceParams{
		Repo:         NewRepository(deps.DB),
		Tx:           deps.Tx,
		Custody:      custodyClient,
		Cache:        deps.Cache,
		Emitter:      outbox.NewService(outbox.NewRepository(deps.DB), deps.Logger),
		Logger:       deps.Logger,
		Metrics:      deps.Metrics,
		NameCacheTTL: cfg.NameCacheTTL,
	})
}

// ProviderKind names the provisioning backend cfg selects.
func ProviderKind(cfg config.WalletConfig) string {
	if cfg.UseRemote() {
		return ProviderRemote
	}
	return ProviderCustody
}
