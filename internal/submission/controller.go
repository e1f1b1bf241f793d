package submission

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/internal/reconcile"
	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/money"
	"github.com/angelmondragon/experiences-backend/pkg/retry"
)

// InFlightGuard enforces one outstanding submission per
// (account, experience, operation) across processes.
type InFlightGuard interface {
	AcquireInFlight(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseInFlight(ctx context.Context, key string) error
	InFlightKey(account, experience, operation string) string
}

// Reconciler ties a confirmed create to its ledger id and catalog mirror.
type Reconciler interface {
	Reconcile(ctx context.Context, in reconcile.Input) (*reconcile.Result, error)
}

// CreateConfirmation is returned once a create is confirmed and its id derived.
type CreateConfirmation struct {
	ExperienceID *big.Int
	TxHash       string
	Receipt      *types.Receipt
	Attempts     int
	Derivation   string
	Mirror       *models.ExperienceMirror
	// MirrorErr is set when the catalog mirror could not be written.
	MirrorErr error
}

// Degraded reports a confirmed create whose mirror is missing.
func (c *CreateConfirmation) Degraded() bool {
	return c != nil && c.MirrorErr != nil
}

// BookConfirmation is returned once a booking payment is confirmed.
type BookConfirmation struct {
	ExperienceID *big.Int
	Participant  string
	Payment      *big.Int
	TxHash       string
	Receipt      *types.Receipt
	Attempts     int
}

// ControllerParams wires the controller.
type ControllerParams struct {
	Ledger     ledger.Client
	Attempts   ledger.AttemptLog
	Guard      InFlightGuard
	Reconciler Reconciler
	Metrics    *metrics.LedgerMetrics
	Logger     *logger.Logger
	Config     config.SubmissionConfig
	// ConfirmationTimeout bounds the wait for a receipt after submission.
	ConfirmationTimeout time.Duration
	Decimals            int32
	Sleep               func(ctx context.Context, d time.Duration) error
	Now                 func() time.Time
}

// Controller drives the two money-moving ledger writes. It holds no
// per-call state and is safe for concurrent use.
type Controller struct {
	ledger     ledger.Client
	attempts   ledger.AttemptLog
	guard      InFlightGuard
	reconciler Reconciler
	metrics    *metrics.LedgerMetrics
	logg       *logger.Logger
	cfg        config.SubmissionConfig
	confirm    time.Duration
	decimals   int32
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

func NewController(p ControllerParams) (*Controller, error) {
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger client required")
	}
	if p.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Config.MaxAttempts <= 0 {
		p.Config.MaxAttempts = retry.DefaultMaxAttempts
	}
	if p.Config.BaseBackoff <= 0 {
		p.Config.BaseBackoff = retry.DefaultBaseBackoff
	}
	if p.Config.InFlightTTL <= 0 {
		p.Config.InFlightTTL = 3 * time.Minute
	}
	if p.Decimals == 0 {
		p.Decimals = money.LedgerDecimals
	}
	if p.Sleep == nil {
		p.Sleep = retry.Sleep
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Controller{
		ledger:     p.Ledger,
		attempts:   p.Attempts,
		guard:      p.Guard,
		reconciler: p.Reconciler,
		metrics:    p.Metrics,
		logg:       p.Logger,
		cfg:        p.Config,
		confirm:    p.ConfirmationTimeout,
		decimals:   p.Decimals,
		sleep:      p.Sleep,
		now:        p.Now,
	}, nil
}

// CreateExperience publishes an experience on the ledger and mirrors it.
func (c *Controller) CreateExperience(ctx context.Context, signer *ledger.Signer, params CreateExperienceParams) (*CreateConfirmation, error) {
	const op = enums.TxOperationCreateExperience
	if signer == nil {
		return nil, newError(enums.TxErrorValidation, op, ErrWalletNotConnected)
	}
	params = params.normalize()
	if err := ValidateCreate(params, c.now()); err != nil {
		return nil, newError(enums.TxErrorValidation, op, err)
	}
	input, err := params.encode(c.decimals)
	if err != nil {
		return nil, newError(enums.TxErrorValidation, op, err)
	}

	ref := strings.ToLower(input.ExperienceWallet.Hex())
	receipt, attempts, err := c.submit(ctx, op, signer, ref, nil, func(ctx context.Context) (*types.Transaction, error) {
		return c.ledger.SubmitCreateExperience(ctx, signer, input)
	})
	if err != nil {
		return nil, err
	}

	result, err := c.reconciler.Reconcile(ctx, reconcile.Input{
		Receipt: receipt,
		Draft: reconcile.Draft{
			Creator:          signer.From,
			WalletAddress:    input.ExperienceWallet,
			Title:            params.Title,
			Description:      params.Description,
			Location:         params.Location,
			City:             params.City,
			Price:            input.Price,
			MaxParticipants:  params.MaxParticipants,
			ScheduledAt:      params.ScheduledAt,
			PaymentStructure: params.PaymentStructure,
		},
	})
	if err != nil {
		return nil, &Error{Class: enums.TxErrorNetworkUnknown, Op: op, Attempts: attempts, Err: err}
	}
	if result == nil || result.ExperienceID == nil {
		return nil, &Error{Class: enums.TxErrorNetworkUnknown, Op: op, Attempts: attempts, Err: reconcile.ErrIDUnresolved}
	}

	return &CreateConfirmation{
		ExperienceID: result.ExperienceID,
		TxHash:       receipt.TxHash.Hex(),
		Receipt:      receipt,
		Attempts:     attempts,
		Derivation:   result.Derivation,
		Mirror:       result.Mirror,
		MirrorErr:    result.Cause,
	}, nil
}

// BookExperience pays the experience price into escrow for the signer.
func (c *Controller) BookExperience(ctx context.Context, signer *ledger.Signer, params BookExperienceParams) (*BookConfirmation, error) {
	const op = enums.TxOperationBookExperience
	if signer == nil {
		return nil, newError(enums.TxErrorValidation, op, ErrWalletNotConnected)
	}
	id, err := params.ledgerID()
	if err != nil {
		return nil, newError(enums.TxErrorValidation, op, err)
	}
	if params.Payment == nil || params.Payment.Sign() <= 0 {
		return nil, newError(enums.TxErrorValidation, op, errors.New("payment must be greater than 0"))
	}
	payment := new(big.Int).Set(params.Payment)

	precheck := func(ctx context.Context) error {
		balance, err := c.ledger.BalanceOf(ctx, signer.From)
		if err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "balance precheck skipped")
			return nil
		}
		if balance.Cmp(payment) < 0 {
			return newError(enums.TxErrorInsufficientFunds, op, fmt.Errorf("balance %s is below payment %s", balance, payment))
		}
		return nil
	}

	receipt, attempts, err := c.submit(ctx, op, signer, id.String(), precheck, func(ctx context.Context) (*types.Transaction, error) {
		return c.ledger.SubmitBookExperience(ctx, signer, id, payment)
	})
	if err != nil {
		return nil, err
	}
	return &BookConfirmation{
		ExperienceID: id,
		Participant:  strings.ToLower(signer.From.Hex()),
		Payment:      payment,
		TxHash:       receipt.TxHash.Hex(),
		Receipt:      receipt,
		Attempts:     attempts,
	}, nil
}

type sendFunc func(ctx context.Context) (*types.Transaction, error)

// submit runs the shared pipeline: in-flight guard, pause check, optional
// precheck, retried submission, then confirmation. Only the submission is
// retried; once a transaction is broadcast it is never sent again.
func (c *Controller) submit(ctx context.Context, op enums.TxOperation, signer *ledger.Signer, ref string, precheck func(context.Context) error, send sendFunc) (*types.Receipt, int, error) {
	if c.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Deadline)
		defer cancel()
	}
	account := strings.ToLower(signer.From.Hex())
	ctx = c.logg.WithOperation(c.logg.WithAccount(ctx, account), string(op))
	ctx = c.logg.WithExperienceID(ctx, ref)

	release, err := c.acquire(ctx, account, ref, op)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	paused, err := c.ledger.IsPaused(ctx)
	if err != nil {
		return nil, 0, c.classify(op, 0, err)
	}
	if paused {
		return nil, 0, newError(enums.TxErrorPaused, op, ErrPaused)
	}
	if precheck != nil {
		if err := precheck(ctx); err != nil {
			return nil, 0, c.classify(op, 0, err)
		}
	}

	policy := retry.Policy{
		MaxAttempts: c.cfg.MaxAttempts,
		BaseBackoff: c.cfg.BaseBackoff,
		Retryable: func(err error) bool {
			return Classify(err).Retryable()
		},
		Sleep: c.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.metrics.ObserveRetryDelay(string(op), delay)
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
				"error":    err.Error(),
			}), "ledger submission rate limited, backing off")
		},
	}

	tx, attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*types.Transaction, error) {
		submittedAt := c.now()
		tx, err := send(ctx)
		if err != nil {
			class := Classify(err)
			c.record(ctx, op, ref, account, attempt, submittedAt, "", class, err)
			return nil, err
		}
		c.record(ctx, op, ref, account, attempt, submittedAt, tx.Hash().Hex(), "", nil)
		return tx, nil
	})
	if err != nil {
		return nil, attempts, c.classify(op, attempts, err)
	}

	ctx = c.logg.WithTxHash(ctx, tx.Hash().Hex())
	receipt, err := c.waitConfirmed(ctx, tx)
	if err != nil {
		return nil, attempts, c.classify(op, attempts, err)
	}
	c.logg.Info(ctx, "ledger transaction confirmed")
	return receipt, attempts, nil
}

func (c *Controller) acquire(ctx context.Context, account, ref string, op enums.TxOperation) (func(), error) {
	if c.guard == nil {
		return func() {}, nil
	}
	key := c.guard.InFlightKey(account, ref, string(op))
	ok, err := c.guard.AcquireInFlight(ctx, key, c.cfg.InFlightTTL)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "in-flight guard unavailable")
		return func() {}, nil
	}
	if !ok {
		return nil, newError(enums.TxErrorValidation, op, ErrInFlight)
	}
	return func() {
		if err := c.guard.ReleaseInFlight(context.WithoutCancel(ctx), key); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "failed to release in-flight guard")
		}
	}, nil
}

func (c *Controller) waitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if c.confirm > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.confirm)
		defer cancel()
	}
	return c.ledger.WaitConfirmed(ctx, tx)
}

func (c *Controller) record(ctx context.Context, op enums.TxOperation, ref, account string, attempt int, submittedAt time.Time, hash string, class enums.TxErrorClass, err error) {
	outcome := metrics.OutcomeSuccess
	if class != "" {
		outcome = string(class)
	}
	c.metrics.IncAttempt(string(op), outcome)
	if c.attempts == nil {
		return
	}
	if _, recErr := c.attempts.Record(ctx, ledger.RecordAttemptInput{
		Operation:     op,
		ExperienceRef: ref,
		Account:       account,
		AttemptNumber: attempt,
		SubmittedAt:   submittedAt,
		ResultHash:    hash,
		ErrorClass:    class,
		Err:           err,
	}); recErr != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", recErr.Error()), "failed to record submission attempt")
	}
}

func (c *Controller) classify(op enums.TxOperation, attempts int, err error) error {
	if se, ok := AsError(err); ok {
		se.Attempts = attempts
		return se
	}
	return &Error{Class: Classify(err), Op: op, Attempts: attempts, Err: err}
}
