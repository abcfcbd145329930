package wallet

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrReferenceAlreadyApplied means the history already holds an entry for
	// the reference. The settlement coordinator treats this after winning the
	// ledger compare-and-swap as a broken invariant, not a benign duplicate.
	ErrReferenceAlreadyApplied = errors.New("reference already applied to wallet history")
)

type Repository interface {
	// Credit applies exactly one credit entry and the matching balance update
	// in a single unit of work, lazily creating the wallet. Only the
	// settlement coordinator may call it.
	Credit(userID string, amount int64, currency string, reference string) (int64, error)

	GetByUserID(userID string) (*Wallet, error)
	Entries(walletID string, limit, offset int) ([]Entry, error)
	CountEntries(walletID string) (int64, error)

	// RecomputeBalance sums the signed history for a wallet; used as a
	// consistency check against the stored balance.
	RecomputeBalance(walletID string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Credit(userID string, amount int64, currency string, reference string) (int64, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user id: %w", err)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	var newBalance int64
	err = r.db.Transaction(func(tx *gorm.DB) error {
		var w Wallet
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", uid).
			First(&w).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			w = Wallet{UserID: uid, Balance: 0, Currency: currency}
			if err := tx.Create(&w).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&Entry{}).Where("reference = ?", reference).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrReferenceAlreadyApplied
		}

		entry := Entry{
			WalletID:      w.ID,
			Type:          EntryCredit,
			Amount:        amount,
			BalanceBefore: w.Balance,
			BalanceAfter:  w.Balance + amount,
			Reference:     reference,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrReferenceAlreadyApplied
			}
			return err
		}

		if err := tx.Model(&Wallet{}).
			Where("id = ?", w.ID).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}

		newBalance = w.Balance + amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (r *repository) GetByUserID(userID string) (*Wallet, error) {
	var w Wallet
	if err := r.db.Where("user_id = ?", userID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *repository) Entries(walletID string, limit, offset int) ([]Entry, error) {
	var entries []Entry
	err := r.db.Where("wallet_id = ?", walletID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}

func (r *repository) CountEntries(walletID string) (int64, error) {
	var count int64
	err := r.db.Model(&Entry{}).Where("wallet_id = ?", walletID).Count(&count).Error
	return count, err
}

func (r *repository) RecomputeBalance(walletID string) (int64, error) {
	var total int64
	err := r.db.Model(&Entry{}).
		Where("wallet_id = ?", walletID).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE -amount END), 0)", EntryCredit).
		Scan(&total).Error
	return total, err
}
