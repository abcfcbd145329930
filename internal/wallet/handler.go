package wallet

import (
	"math"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sannidata/settlement-engine/internal/user"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/logger"
	"github.com/sannidata/settlement-engine/pkg/utils"
)

// Handler exposes the read-only wallet projection. Credits only ever happen
// through the settlement coordinator, never through this surface.
type Handler struct {
	Config config.Config
	Repo   Repository
}

func NewHandler(cfg config.Config, repo Repository) *Handler {
	return &Handler{Config: cfg, Repo: repo}
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	wallet, err := h.Repo.GetByUserID(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Wallet not found", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Details", wallet)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	wallet, err := h.Repo.GetByUserID(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Wallet not found", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Balance", map[string]any{
		"balance":  wallet.Balance,
		"currency": wallet.Currency,
	})
}

func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	wallet, err := h.Repo.GetByUserID(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Wallet not found", nil)
		return
	}

	limit, offset, page := utils.GetPaginationDetails(r)

	entries, err := h.Repo.Entries(wallet.ID.String(), limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch wallet history", nil)
		return
	}

	count, _ := h.Repo.CountEntries(wallet.ID.String())
	totalPages := int(math.Ceil(float64(count) / float64(limit)))

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet History", map[string]interface{}{
		"entries": entries,
		"meta": map[string]interface{}{
			"total_items":  count,
			"total_pages":  totalPages,
			"current_page": page,
			"limit":        limit,
		},
	})
}

// AuditWallet recomputes the balance from the history log and compares it to
// the stored balance. Admin tooling uses it to detect ledger drift.
func (h *Handler) AuditWallet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userId"]

	wallet, err := h.Repo.GetByUserID(userID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Wallet not found", nil)
		return
	}

	recomputed, err := h.Repo.RecomputeBalance(wallet.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to recompute balance", nil)
		return
	}

	consistent := recomputed == wallet.Balance
	if !consistent {
		logger.Error("Wallet balance drift detected", logger.Fields{
			"wallet_id":        wallet.ID.String(),
			logger.UserIdKey:   userID,
			"stored_balance":   wallet.Balance,
			"recomputed_total": recomputed,
		})
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet audit", map[string]interface{}{
		"wallet_id":        wallet.ID,
		"stored_balance":   wallet.Balance,
		"recomputed_total": recomputed,
		"consistent":       consistent,
	})
}
