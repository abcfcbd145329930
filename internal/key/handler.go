package key

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq"
	"github.com/sannidata/settlement-engine/internal/user"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/id"
	"github.com/sannidata/settlement-engine/pkg/utils"
)

const maxActiveKeys = 5

type Handler struct {
	Config config.Config
	Repo   Repository
}

func NewHandler(cfg config.Config, repo Repository) *Handler {
	return &Handler{Config: cfg, Repo: repo}
}

type CreateKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	TTLDays     int      `json:"ttl_days"`
}

func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req CreateKeyRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if req.Name == "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Key name is required", nil)
		return
	}

	perms, err := validatePermissions(req.Permissions)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	count, err := h.Repo.CountActiveKeys(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to check existing keys", nil)
		return
	}
	if count >= maxActiveKeys {
		utils.BuildErrorResponse(w, http.StatusConflict, "Active key limit reached, revoke one first", nil)
		return
	}

	ttlDays := req.TTLDays
	if ttlDays <= 0 || ttlDays > 365 {
		ttlDays = 90
	}

	plaintext := fmt.Sprintf("sk-%s", id.Generate())
	apiKey := APIKey{
		UserID:      usr.ID,
		Key:         HashKey(plaintext),
		MaskedKey:   plaintext[:7] + "..." + plaintext[len(plaintext)-4:],
		Permissions: pq.StringArray(perms),
		Name:        req.Name,
		ExpiresAt:   time.Now().AddDate(0, 0, ttlDays),
	}

	if err := h.Repo.CreateKey(&apiKey); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to create key", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "API key created, store it now: it will not be shown again", map[string]interface{}{
		"id":          apiKey.ID,
		"key":         plaintext,
		"masked_key":  apiKey.MaskedKey,
		"permissions": apiKey.Permissions,
		"expires_at":  apiKey.ExpiresAt,
	})
}

type RevokeKeyRequest struct {
	KeyID string `json:"key_id"`
}

func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req RevokeKeyRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if _, err := h.Repo.GetKey(req.KeyID, usr.ID.String()); err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Key not found", nil)
		return
	}

	if err := h.Repo.RevokeKey(req.KeyID, usr.ID.String()); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to revoke key", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "API key revoked", nil)
}

func validatePermissions(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{string(PermissionRead)}, nil
	}

	out := make([]string, 0, len(requested))
	for _, p := range requested {
		allowed := false
		for _, a := range AllowedPermissions {
			if Permission(p) == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("unknown permission: %s", p)
		}
		out = append(out, p)
	}
	return out, nil
}
