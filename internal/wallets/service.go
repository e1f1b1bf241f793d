package wallets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
	"github.com/angelmondragon/experiences-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/experiences-backend/pkg/redis"
)

const maxLastErrorLen = 512

// NameCache remembers the first derived account name per experience.
type NameCache interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	WalletNameKey(experienceID string) string
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the local provisioning service.
type ServiceParams struct {
	Repo         Repository
	Tx           TxRunner
	Custody      Custody
	Cache        NameCache
	Emitter      outbox.Emitter
	Logger       *logger.Logger
	Metrics      *metrics.LedgerMetrics
	NameCacheTTL time.Duration
	Now          func() time.Time
}

// Service provisions custodial wallets by talking to the custody backend directly.
type Service struct {
	repo     Repository
	tx       TxRunner
	custody  Custody
	cache    NameCache
	emitter  outbox.Emitter
	logg     *logger.Logger
	metrics  *metrics.LedgerMetrics
	cacheTTL time.Duration
	now      func() time.Time
}

var _ Provisioner = (*Service)(nil)

func NewService(p ServiceParams) (*Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Custody == nil {
		return nil, fmt.Errorf("custody client required")
	}
	if p.Emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.NameCacheTTL <= 0 {
		p.NameCacheTTL = 30 * 24 * time.Hour
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		repo:     p.Repo,
		tx:       p.Tx,
		custody:  p.Custody,
		cache:    p.Cache,
		emitter:  p.Emitter,
		logg:     p.Logger,
		metrics:  p.Metrics,
		cacheTTL: p.NameCacheTTL,
		now:      p.Now,
	}, nil
}

// Provision is create-or-fetch per experience. The first derived name is
// anchored in the wallet row and the name cache, so repeated calls resolve
// the same custody account even though derivation is time-based.
func (s *Service) Provision(ctx context.Context, experienceID, titleHint string) (*ProvisionResult, error) {
	experienceID = strings.TrimSpace(experienceID)
	if experienceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "experience id is required")
	}
	ctx = s.logg.WithExperienceID(ctx, experienceID)

	existing, err := s.repo.FindByExperienceID(ctx, experienceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if existing != nil && existing.AccountAddress != "" && existing.Status != enums.WalletStatusError {
		return &ProvisionResult{Wallet: fromModel(existing)}, nil
	}

	name := s.resolveName(ctx, existing, experienceID, titleHint)
	ctx = s.logg.WithField(ctx, "account_name", name)
	network := s.custody.Network()

	wallet := &models.Wallet{
		ExperienceID: experienceID,
		AccountName:  name,
		Network:      network,
	}
	if existing != nil {
		wallet.CreatedAt = existing.CreatedAt
	}
	result := &ProvisionResult{}

	account, err := s.custody.GetOrCreateAccount(ctx, name)
	if err != nil {
		wallet.Status = enums.WalletStatusError
		wallet.LastError = truncatedError(err)
		result.CreateErr = err
		s.logg.Error(ctx, "custodial account creation failed", err)
		result.PersistErr = s.persist(ctx, wallet, false)
		result.Wallet = fromModel(wallet)
		s.metrics.IncProvisioning(string(wallet.Status))
		return result, nil
	}
	wallet.AccountAddress = account.Address
	if account.Network != "" {
		wallet.Network = account.Network
	}
	ctx = s.logg.WithAccount(ctx, account.Address)

	hash, err := s.custody.RequestFaucet(ctx, account.Address)
	switch {
	case err != nil:
		wallet.Status = enums.WalletStatusActive
		wallet.LastError = truncatedError(err)
		result.FundingErr = err
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "wallet funding failed; account left unfunded")
	default:
		wallet.Status = enums.WalletStatusFunded
		if hash != "" {
			wallet.FundingTxHash = &hash
		}
	}

	result.PersistErr = s.persist(ctx, wallet, true)
	result.Wallet = fromModel(wallet)
	if result.Wallet.CreatedAt.IsZero() {
		result.Wallet.CreatedAt = s.now().UTC()
	}
	s.metrics.IncProvisioning(string(wallet.Status))
	s.logg.Info(s.logg.WithField(ctx, "status", wallet.Status), "wallet provisioned")
	return result, nil
}

func (s *Service) resolveName(ctx context.Context, existing *models.Wallet, experienceID, titleHint string) string {
	if existing != nil && existing.AccountName != "" {
		return existing.AccountName
	}
	if s.cache == nil {
		return DeriveAccountName(titleHint, experienceID, s.now())
	}

	key := s.cache.WalletNameKey(experienceID)
	if cached, err := s.cache.Get(ctx, key); err == nil && ValidAccountName(cached) {
		return cached
	} else if err != nil && !errors.Is(err, redis.ErrNotFound) {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "wallet name cache read failed")
	}

	derived := DeriveAccountName(titleHint, experienceID, s.now())
	stored, err := s.cache.SetNX(ctx, key, derived, s.cacheTTL)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "wallet name cache write failed")
		return derived
	}
	if !stored {
		// Another caller anchored a name first.
		if cached, err := s.cache.Get(ctx, key); err == nil && ValidAccountName(cached) {
			return cached
		}
	}
	return derived
}

func (s *Service) persist(ctx context.Context, wallet *models.Wallet, announce bool) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, wallet); err != nil {
			return fmt.Errorf("save wallet: %w", err)
		}
		if !announce {
			return nil
		}
		return s.emitter.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletProvisioned,
			AggregateType: enums.AggregateWallet,
			AggregateID:   wallet.ExperienceID,
			Data: payloads.WalletProvisionedEvent{
				ExperienceID:   wallet.ExperienceID,
				AccountAddress: wallet.AccountAddress,
				AccountName:    wallet.AccountName,
				Network:        wallet.Network,
				Status:         wallet.Status,
				FundingTxHash:  wallet.FundingTxHash,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "wallet bookkeeping failed", err)
	}
	return err
}

func truncatedError(err error) *string {
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return &msg
}
