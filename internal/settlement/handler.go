package settlement

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sannidata/settlement-engine/internal/gateway"
	"github.com/sannidata/settlement-engine/internal/ledger"
	"github.com/sannidata/settlement-engine/internal/user"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/logger"
	"github.com/sannidata/settlement-engine/pkg/utils"
)

type Handler struct {
	Config  config.Config
	Service Service
}

func NewHandler(cfg config.Config, svc Service) *Handler {
	return &Handler{Config: cfg, Service: svc}
}

type DepositRequest struct {
	Amount    int64  `json:"amount"` // minor units
	Currency  string `json:"currency,omitempty"`
	Reference string `json:"reference,omitempty"`
}

func (h *Handler) InitiateDeposit(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req DepositRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "NGN"
	}

	tx, err := h.Service.Initiate(r.Context(), InitiateRequest{
		UserID:    usr.ID,
		Email:     usr.Email,
		Amount:    req.Amount,
		Currency:  currency,
		Reference: req.Reference,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid amount", nil)
		case errors.Is(err, ErrCooldownActive):
			utils.BuildErrorResponse(w, http.StatusTooManyRequests, "A deposit was initiated recently, try again shortly", nil)
		case errors.Is(err, ErrReferenceInUse):
			utils.BuildErrorResponse(w, http.StatusConflict, "Reference already in use", nil)
		case errors.Is(err, gateway.ErrInvalidReference):
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid reference format", nil)
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			utils.BuildErrorResponse(w, http.StatusBadGateway, "Payment gateway unavailable, try again", nil)
		default:
			logger.Error("Deposit initiation failed", logger.WithError(err))
			utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to initiate deposit", nil)
		}
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Deposit initiated", map[string]interface{}{
		"reference":    tx.Reference,
		"redirect_url": tx.AuthorizationURL,
		"status":       tx.Status,
	})
}

// GetDepositStatus answers the client poller. Every call runs one reconcile
// pass, so polling after redirect is what drives settlement forward even if
// the webhook never arrives.
func (h *Handler) GetDepositStatus(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	reference := mux.Vars(r)["reference"]

	tx, err := h.Service.ReconcileForUser(r.Context(), reference, usr.ID)
	if err != nil {
		h.writeReconcileError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction status", depositStatusBody(tx))
}

// AdminReconcile triggers the same reconcile pass as the poller and the
// webhook, for operator-driven re-verification.
func (h *Handler) AdminReconcile(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]

	tx, err := h.Service.Reconcile(r.Context(), reference)
	if err != nil {
		h.writeReconcileError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Reconcile pass completed", depositStatusBody(tx))
}

func (h *Handler) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	limit, offset, page := utils.GetPaginationDetails(r)

	txs, err := h.Service.ReviewQueue(limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch review queue", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transactions needing manual reconciliation", map[string]interface{}{
		"transactions": txs,
		"meta": map[string]interface{}{
			"current_page": page,
			"limit":        limit,
		},
	})
}

func (h *Handler) writeReconcileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, "Transaction not found", nil)
	case errors.Is(err, gateway.ErrInvalidReference):
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid reference format", nil)
	case errors.Is(err, ErrWalletInconsistency):
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Settlement halted, operators notified", nil)
	default:
		logger.Error("Reconcile failed", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to reconcile transaction", nil)
	}
}

func depositStatusBody(tx *ledger.Transaction) map[string]interface{} {
	body := map[string]interface{}{
		"reference":    tx.Reference,
		"status":       tx.Status,
		"amount":       tx.Amount,
		"currency":     tx.Currency,
		"attempts":     tx.Attempts,
		"needs_review": tx.NeedsReview,
	}
	if tx.GatewayTxID != nil {
		body["gateway_transaction_id"] = *tx.GatewayTxID
	}
	return body
}
