package ledger

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrDuplicateReference = errors.New("a transaction already exists for this reference")
	ErrNotFound           = errors.New("transaction not found")

	// ErrAlreadyTerminal is returned alongside the terminal row when a caller
	// tries to move a transaction that another caller already settled.
	ErrAlreadyTerminal = errors.New("transaction is already in a terminal state")
)

var nonTerminalStatuses = []Status{StatusPending, StatusVerifying}

type Repository interface {
	Create(tx *Transaction) error
	GetByReference(ref string) (*Transaction, error)

	// TransitionToVerifying moves a non-terminal transaction into VERIFYING.
	// If the row is already terminal it returns the terminal row together
	// with ErrAlreadyTerminal so the caller can short-circuit.
	TransitionToVerifying(ref string) (*Transaction, error)

	// CommitTerminal performs the single atomic compare-and-swap from a
	// non-terminal state into the given terminal one. firstWriter is true
	// only for the caller whose update actually took effect; everyone else
	// receives the already-committed row.
	CommitTerminal(ref string, status Status, gatewayTxID string) (bool, *Transaction, error)

	RecordAttempt(ref string, lastError string) error
	MarkNeedsReview(ref string) error
	ListNeedingReview(limit, offset int) ([]Transaction, error)

	ListByUser(userID string, limit, offset int) ([]Transaction, error)
	CountByUser(userID string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(tx *Transaction) error {
	if err := r.db.Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (r *repository) GetByReference(ref string) (*Transaction, error) {
	var tx Transaction
	if err := r.db.Where("reference = ?", ref).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repository) TransitionToVerifying(ref string) (*Transaction, error) {
	res := r.db.Model(&Transaction{}).
		Where("reference = ? AND status IN ?", ref, nonTerminalStatuses).
		Update("status", StatusVerifying)
	if res.Error != nil {
		return nil, res.Error
	}

	tx, err := r.GetByReference(ref)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 && tx.Status.Terminal() {
		return tx, ErrAlreadyTerminal
	}
	return tx, nil
}

func (r *repository) CommitTerminal(ref string, status Status, gatewayTxID string) (bool, *Transaction, error) {
	if !status.Terminal() {
		return false, nil, fmt.Errorf("commit requires a terminal status, got %s", status)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": now,
	}
	if gatewayTxID != "" {
		updates["gateway_tx_id"] = gatewayTxID
	}

	res := r.db.Model(&Transaction{}).
		Where("reference = ? AND status IN ?", ref, nonTerminalStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, nil, res.Error
	}

	tx, err := r.GetByReference(ref)
	if err != nil {
		return false, nil, err
	}

	return res.RowsAffected == 1, tx, nil
}

func (r *repository) RecordAttempt(ref string, lastError string) error {
	return r.db.Model(&Transaction{}).
		Where("reference = ? AND status IN ?", ref, nonTerminalStatuses).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).Error
}

func (r *repository) MarkNeedsReview(ref string) error {
	return r.db.Model(&Transaction{}).
		Where("reference = ? AND status IN ?", ref, nonTerminalStatuses).
		Update("needs_review", true).Error
}

func (r *repository) ListNeedingReview(limit, offset int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.Where("needs_review = ? AND status IN ?", true, nonTerminalStatuses).
		Order("created_at asc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, err
}

func (r *repository) ListByUser(userID string, limit, offset int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, err
}

func (r *repository) CountByUser(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&Transaction{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
