package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sannidata/settlement-engine/internal/gateway"
	"github.com/sannidata/settlement-engine/internal/ledger"
	"github.com/sannidata/settlement-engine/internal/user"
	"github.com/sannidata/settlement-engine/pkg/utils"
)

type stubService struct {
	initiateFn     func(ctx context.Context, req InitiateRequest) (*ledger.Transaction, error)
	reconcileFn    func(ctx context.Context, reference string) (*ledger.Transaction, error)
	reconcileForFn func(ctx context.Context, reference string, userID uuid.UUID) (*ledger.Transaction, error)
}

func (s *stubService) Initiate(ctx context.Context, req InitiateRequest) (*ledger.Transaction, error) {
	return s.initiateFn(ctx, req)
}

func (s *stubService) Reconcile(ctx context.Context, reference string) (*ledger.Transaction, error) {
	return s.reconcileFn(ctx, reference)
}

func (s *stubService) ReconcileForUser(ctx context.Context, reference string, userID uuid.UUID) (*ledger.Transaction, error) {
	return s.reconcileForFn(ctx, reference, userID)
}

func (s *stubService) ReviewQueue(limit, offset int) ([]ledger.Transaction, error) {
	return nil, nil
}

func authedRequest(t *testing.T, method, target string, body []byte, usr user.User) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(context.WithValue(req.Context(), utils.UserKey, usr))
}

func TestInitiateDepositReturnsRedirect(t *testing.T) {
	usr := user.User{ID: uuid.New(), Email: "u@example.com"}
	svc := &stubService{
		initiateFn: func(ctx context.Context, req InitiateRequest) (*ledger.Transaction, error) {
			assert.Equal(t, usr.ID, req.UserID)
			assert.Equal(t, int64(10000), req.Amount)
			assert.Equal(t, "NGN", req.Currency)
			return &ledger.Transaction{
				Reference:        "dep-r1",
				UserID:           req.UserID,
				Amount:           req.Amount,
				Status:           ledger.StatusPending,
				AuthorizationURL: "https://checkout.example.com/dep-r1",
			}, nil
		},
	}
	h := NewHandler(testConfig(), svc)

	body, _ := json.Marshal(map[string]interface{}{"amount": 10000})
	rr := httptest.NewRecorder()
	h.InitiateDeposit(rr, authedRequest(t, "POST", "/api/deposits", body, usr))

	require.Equal(t, http.StatusOK, rr.Code)

	var resp utils.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "dep-r1", data["reference"])
	assert.Equal(t, "https://checkout.example.com/dep-r1", data["redirect_url"])
}

func TestInitiateDepositErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"invalid amount", ErrInvalidAmount, http.StatusBadRequest},
		{"cooldown", ErrCooldownActive, http.StatusTooManyRequests},
		{"gateway down", gateway.ErrGatewayUnavailable, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				initiateFn: func(ctx context.Context, req InitiateRequest) (*ledger.Transaction, error) {
					return nil, tt.serviceErr
				},
			}
			h := NewHandler(testConfig(), svc)

			body, _ := json.Marshal(map[string]interface{}{"amount": 10000})
			rr := httptest.NewRecorder()
			h.InitiateDeposit(rr, authedRequest(t, "POST", "/api/deposits", body, user.User{ID: uuid.New()}))

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestGetDepositStatusRunsOneReconcilePass(t *testing.T) {
	usr := user.User{ID: uuid.New()}
	var reconciled string
	svc := &stubService{
		reconcileForFn: func(ctx context.Context, reference string, userID uuid.UUID) (*ledger.Transaction, error) {
			assert.Equal(t, usr.ID, userID)
			reconciled = reference
			gwID := "409926"
			return &ledger.Transaction{
				Reference:   reference,
				UserID:      usr.ID,
				Amount:      10000,
				Status:      ledger.StatusCompleted,
				GatewayTxID: &gwID,
			}, nil
		},
	}
	h := NewHandler(testConfig(), svc)

	req := authedRequest(t, "GET", "/api/deposits/dep-r1", nil, usr)
	req = mux.SetURLVars(req, map[string]string{"reference": "dep-r1"})
	rr := httptest.NewRecorder()
	h.GetDepositStatus(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "dep-r1", reconciled)

	var resp utils.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, string(ledger.StatusCompleted), data["status"])
	assert.Equal(t, "409926", data["gateway_transaction_id"])
}

func TestGetDepositStatusHidesOtherUsersTransactions(t *testing.T) {
	svc := &stubService{
		reconcileForFn: func(ctx context.Context, reference string, userID uuid.UUID) (*ledger.Transaction, error) {
			return nil, ledger.ErrNotFound
		},
	}
	h := NewHandler(testConfig(), svc)

	req := authedRequest(t, "GET", "/api/deposits/dep-r1", nil, user.User{ID: uuid.New()})
	req = mux.SetURLVars(req, map[string]string{"reference": "dep-r1"})
	rr := httptest.NewRecorder()
	h.GetDepositStatus(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInitiateDepositRejectsForeignReference(t *testing.T) {
	svc := &stubService{
		initiateFn: func(ctx context.Context, req InitiateRequest) (*ledger.Transaction, error) {
			return nil, ErrReferenceInUse
		},
	}
	h := NewHandler(testConfig(), svc)

	body, _ := json.Marshal(map[string]interface{}{"amount": 10000, "reference": "dep-shared"})
	rr := httptest.NewRecorder()
	h.InitiateDeposit(rr, authedRequest(t, "POST", "/api/deposits", body, user.User{ID: uuid.New()}))

	assert.Equal(t, http.StatusConflict, rr.Code)
}
