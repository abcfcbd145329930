package ledger

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusVerifying Status = "VERIFYING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusAbandoned Status = "ABANDONED"
)

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAbandoned
}

// Transaction is the durable record of one payment attempt. Reference is the
// caller-generated idempotency key for the whole flow and is immutable; the
// unique index on it is the primary dedup mechanism.
type Transaction struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	Reference   string     `gorm:"uniqueIndex;not null" json:"reference"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount      int64      `gorm:"not null" json:"amount"`
	Currency    string     `gorm:"not null;default:NGN" json:"currency"`
	Gateway     string     `gorm:"not null" json:"gateway"`
	Status      Status     `gorm:"not null;default:PENDING" json:"status"`
	GatewayTxID *string    `gorm:"column:gateway_tx_id" json:"gateway_transaction_id,omitempty"`
	// AuthorizationURL is the gateway checkout URL handed back to the client;
	// stored so repeat initiations with the same reference return it again.
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	NeedsReview bool       `gorm:"not null;default:false;index" json:"needs_review"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
