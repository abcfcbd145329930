package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sannidata/settlement-engine/internal/gateway"
	"github.com/sannidata/settlement-engine/internal/ledger"
	"github.com/sannidata/settlement-engine/internal/wallet"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/id"
	"github.com/sannidata/settlement-engine/pkg/logger"
)

var (
	ErrInvalidAmount  = errors.New("deposit amount is below the minimum")
	ErrCooldownActive = errors.New("a deposit was initiated recently, wait before retrying")

	// ErrReferenceInUse means the supplied reference already identifies a
	// transaction owned by a different user.
	ErrReferenceInUse = errors.New("reference already belongs to another transaction")

	// ErrWalletInconsistency means the wallet history already held the
	// reference even though this caller won the ledger compare-and-swap.
	// That should be impossible; the credit is halted and operators alerted.
	ErrWalletInconsistency = errors.New("wallet history conflicts with ledger state")
)

// Limiter guards deposit initiation against reference floods from
// double-clicks. The redis client's SetNX-backed cooldown implements it.
type Limiter interface {
	ReserveCooldown(ctx context.Context, userID string, window time.Duration) (bool, error)
}

// Service is the surface the HTTP handlers and the webhook worker consume.
type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (*ledger.Transaction, error)
	Reconcile(ctx context.Context, reference string) (*ledger.Transaction, error)
	ReconcileForUser(ctx context.Context, reference string, userID uuid.UUID) (*ledger.Transaction, error)
	ReviewQueue(limit, offset int) ([]ledger.Transaction, error)
}

type InitiateRequest struct {
	UserID   uuid.UUID
	Email    string
	Amount   int64
	Currency string
	// Reference is optional; when the storefront supplies its own it becomes
	// the idempotency key and repeat initiations return the existing row.
	Reference string
}

// Coordinator is the settlement state machine. Client polls, gateway webhooks
// and admin re-verification all funnel through Reconcile, which decides each
// transaction's terminal state exactly once and credits the wallet exactly
// once.
type Coordinator struct {
	cfg     config.Config
	ledger  ledger.Repository
	wallets wallet.Repository
	gateway gateway.Client
	limiter Limiter
}

func NewCoordinator(cfg config.Config, ledgerRepo ledger.Repository, walletRepo wallet.Repository, gw gateway.Client, limiter Limiter) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		ledger:  ledgerRepo,
		wallets: walletRepo,
		gateway: gw,
		limiter: limiter,
	}
}

func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (*ledger.Transaction, error) {
	if req.Amount < c.cfg.MinDepositAmount {
		return nil, ErrInvalidAmount
	}

	reference := req.Reference
	if reference == "" {
		reference = id.NewDepositReference()
	} else {
		// a repeat initiation with a known reference is a lookup, not a
		// create, but only for the user who owns the row
		if existing, err := c.ledger.GetByReference(reference); err == nil {
			if existing.UserID != req.UserID {
				return nil, ErrReferenceInUse
			}
			return existing, nil
		} else if !errors.Is(err, ledger.ErrNotFound) {
			return nil, err
		}
	}

	ok, err := c.limiter.ReserveCooldown(ctx, req.UserID.String(), c.cfg.DepositCooldown)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCooldownActive
	}

	init, err := c.gateway.Initialize(ctx, gateway.InitializeRequest{
		Reference:   reference,
		Email:       req.Email,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CallbackURL: fmt.Sprintf("%s/api/deposits/callback", c.cfg.Host),
	})
	if err != nil {
		return nil, err
	}

	tx := &ledger.Transaction{
		Reference:        reference,
		UserID:           req.UserID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Gateway:          "paystack",
		Status:           ledger.StatusPending,
		AuthorizationURL: init.RedirectURL,
	}

	if err := c.ledger.Create(tx); err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			existing, lookupErr := c.ledger.GetByReference(reference)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing.UserID != req.UserID {
				return nil, ErrReferenceInUse
			}
			return existing, nil
		}
		return nil, err
	}

	logger.Info("Deposit initiated", logger.Fields{
		logger.ReferenceKey: reference,
		logger.UserIdKey:    req.UserID.String(),
		"amount":            req.Amount,
	})
	return tx, nil
}

// Reconcile is the single entry point for "what really happened to this
// payment". It is safe to call concurrently for the same reference from any
// number of origins: the ledger's compare-and-swap decides the terminal state
// exactly once, and only that winner credits the wallet.
func (c *Coordinator) Reconcile(ctx context.Context, reference string) (*ledger.Transaction, error) {
	tx, err := c.ledger.GetByReference(reference)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return tx, nil
	}

	tx, err = c.ledger.TransitionToVerifying(reference)
	if errors.Is(err, ledger.ErrAlreadyTerminal) {
		reconcileRacesLost.Inc()
		return tx, nil
	}
	if err != nil {
		return nil, err
	}

	// the only network-blocking step; no locks are held across it
	timer := prometheus.NewTimer(gatewayVerifyDuration)
	result, verr := c.gateway.Verify(ctx, reference)
	timer.ObserveDuration()

	if verr != nil {
		if errors.Is(verr, gateway.ErrInvalidReference) {
			return nil, verr
		}
		// connectivity failure is never a payment failure
		return c.recordRetryable(tx, verr.Error())
	}

	switch result.Status {
	case gateway.StatusSuccess:
		if result.Amount != tx.Amount {
			logger.Error("Gateway amount does not match ledger amount", logger.Fields{
				logger.ReferenceKey: reference,
				"ledger_amount":     tx.Amount,
				"gateway_amount":    result.Amount,
			})
			return c.flagForReview(tx, fmt.Sprintf("amount mismatch: ledger %d, gateway %d", tx.Amount, result.Amount))
		}
		return c.settle(reference, ledger.StatusCompleted, result.GatewayTxID)

	case gateway.StatusFailed:
		return c.settle(reference, ledger.StatusFailed, result.GatewayTxID)

	case gateway.StatusAbandoned:
		return c.settle(reference, ledger.StatusAbandoned, result.GatewayTxID)

	default: // pending or unknown: stay non-terminal, caller retries later
		return c.recordRetryable(tx, "gateway reports "+string(result.Status))
	}
}

// ReconcileForUser is Reconcile fenced to the transaction's owner. A foreign
// reference reads as not found and never reaches the gateway, so one user
// cannot burn another's verification attempts.
func (c *Coordinator) ReconcileForUser(ctx context.Context, reference string, userID uuid.UUID) (*ledger.Transaction, error) {
	tx, err := c.ledger.GetByReference(reference)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, ledger.ErrNotFound
	}
	return c.Reconcile(ctx, reference)
}

func (c *Coordinator) ReviewQueue(limit, offset int) ([]ledger.Transaction, error) {
	return c.ledger.ListNeedingReview(limit, offset)
}

// settle commits the terminal state and, only for the first writer of a
// completed payment, credits the wallet. Ledger first, wallet second: a
// concurrent caller that also saw "success" loses the compare-and-swap and
// never reaches the credit.
func (c *Coordinator) settle(reference string, status ledger.Status, gatewayTxID string) (*ledger.Transaction, error) {
	first, tx, err := c.ledger.CommitTerminal(reference, status, gatewayTxID)
	if err != nil {
		return nil, err
	}

	if !first {
		reconcileRacesLost.Inc()
		return tx, nil
	}

	settlementOutcomes.WithLabelValues(string(tx.Status)).Inc()

	if tx.Status != ledger.StatusCompleted {
		logger.Info("Payment settled without credit", logger.Fields{
			logger.ReferenceKey: reference,
			"status":            string(tx.Status),
		})
		return tx, nil
	}

	newBalance, err := c.wallets.Credit(tx.UserID.String(), tx.Amount, tx.Currency, reference)
	if err != nil {
		if errors.Is(err, wallet.ErrReferenceAlreadyApplied) {
			walletInconsistencies.Inc()
			logger.Error("CRITICAL: wallet history already holds reference despite winning the terminal commit", logger.Fields{
				logger.ReferenceKey: reference,
				logger.UserIdKey:    tx.UserID.String(),
			})
			return tx, ErrWalletInconsistency
		}
		logger.Error("CRITICAL: ledger committed but wallet credit failed", logger.Fields{
			logger.ReferenceKey: reference,
			logger.UserIdKey:    tx.UserID.String(),
			"error":             err.Error(),
		})
		return tx, fmt.Errorf("wallet credit failed after terminal commit: %w", err)
	}

	walletCredits.Inc()
	logger.Info("Wallet credited", logger.Fields{
		logger.ReferenceKey: reference,
		logger.UserIdKey:    tx.UserID.String(),
		"amount":            tx.Amount,
		"new_balance":       newBalance,
	})
	return tx, nil
}

// recordRetryable keeps the transaction non-terminal, bumps the attempt
// counter and, once the cap is reached, flags it for manual reconciliation.
// It never auto-credits and never auto-fails. Once flagged, the counter
// freezes; later passes (admin retries included) still re-verify but no
// longer count.
func (c *Coordinator) recordRetryable(tx *ledger.Transaction, cause string) (*ledger.Transaction, error) {
	if tx.NeedsReview {
		return tx, nil
	}

	if err := c.ledger.RecordAttempt(tx.Reference, cause); err != nil {
		return nil, err
	}

	fresh, err := c.ledger.GetByReference(tx.Reference)
	if err != nil {
		return nil, err
	}

	if fresh.Attempts >= c.cfg.VerifyMaxAttempts {
		return c.flagForReview(fresh, cause)
	}
	return fresh, nil
}

func (c *Coordinator) flagForReview(tx *ledger.Transaction, cause string) (*ledger.Transaction, error) {
	if tx.NeedsReview {
		return tx, nil
	}

	if err := c.ledger.MarkNeedsReview(tx.Reference); err != nil {
		return nil, err
	}

	flaggedForReview.Inc()
	logger.Warn("Transaction flagged for manual reconciliation", logger.Fields{
		logger.ReferenceKey: tx.Reference,
		"cause":             cause,
	})
	return c.ledger.GetByReference(tx.Reference)
}
