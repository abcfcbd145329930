package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *PaystackClient {
	return &PaystackClient{
		baseURL:     baseURL,
		secret:      "sk_test_secret",
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		maxAttempts: 3,
		baseDelay:   time.Millisecond,
	}
}

func verifyBody(status string, amount int64) string {
	return fmt.Sprintf(`{"status":true,"message":"Verification successful","data":{"id":4099260516,"status":%q,"amount":%d,"currency":"NGN","reference":"dep-abc"}}`, status, amount)
}

func TestVerifyNormalizesStatuses(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"success", StatusSuccess},
		{"failed", StatusFailed},
		{"abandoned", StatusAbandoned},
		{"pending", StatusPending},
		{"ongoing", StatusPending},
		{"some-new-status", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
				fmt.Fprint(w, verifyBody(tt.raw, 10000))
			}))
			defer srv.Close()

			result, err := newTestClient(srv.URL).Verify(context.Background(), "dep-abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, int64(10000), result.Amount)
			assert.Equal(t, "4099260516", result.GatewayTxID)
		})
	}
}

func TestVerifyRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, verifyBody("success", 5000))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Verify(context.Background(), "dep-abc")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestVerifyExhaustionReportsGatewayUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Verify(context.Background(), "dep-abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestVerifyUnknownReferenceDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Verify(context.Background(), "dep-missing")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, result.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestVerifyRejectsBadReferenceLocally(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Verify(context.Background(), "dep_abc$;drop")
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no network call should be made")
}

func TestVerifyHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	client.baseDelay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Verify(ctx, "dep-abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInitializeReturnsRedirectURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		fmt.Fprint(w, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.example.com/abc123","access_code":"abc123","reference":"dep-xyz"}}`)
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Initialize(context.Background(), InitializeRequest{
		Reference: "dep-xyz",
		Email:     "u@example.com",
		Amount:    10000,
		Currency:  "NGN",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/abc123", result.RedirectURL)
	assert.Equal(t, "dep-xyz", result.Reference)
}
