package gateway

import "errors"

// Status is the canonical verification status after normalizing whatever the
// provider reports.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
	StatusUnknown   Status = "unknown"
)

// VerifyResult is the normalized answer to "what happened to this reference".
type VerifyResult struct {
	Status      Status
	Amount      int64
	Currency    string
	GatewayTxID string
	RawStatus   string
}

type InitializeRequest struct {
	Reference   string
	Email       string
	Amount      int64
	Currency    string
	CallbackURL string
}

type InitializeResult struct {
	Reference   string
	RedirectURL string
	AccessCode  string
}

var (
	// ErrInvalidReference is a local validation failure, no network call made.
	ErrInvalidReference = errors.New("reference must contain only letters, digits and hyphens")

	// ErrGatewayUnavailable means connectivity failed after retries. It is
	// distinct from a business-level failed payment and must be treated as
	// retryable by callers.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
