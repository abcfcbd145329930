package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sannidata/settlement-engine/internal/ledger"
	"github.com/sannidata/settlement-engine/internal/settlement"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/events"
)

const testSecret = "whsec_test"

type recordingQueue struct {
	published []events.ReconcileEvent
	err       error
}

func (q *recordingQueue) PublishEvent(ctx context.Context, event events.ReconcileEvent) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, event)
	return nil
}

type recordingService struct {
	reconciled chan string
}

func (s *recordingService) Initiate(ctx context.Context, req settlement.InitiateRequest) (*ledger.Transaction, error) {
	return nil, nil
}

func (s *recordingService) Reconcile(ctx context.Context, reference string) (*ledger.Transaction, error) {
	s.reconciled <- reference
	return &ledger.Transaction{Reference: reference}, nil
}

func (s *recordingService) ReconcileForUser(ctx context.Context, reference string, userID uuid.UUID) (*ledger.Transaction, error) {
	return s.Reconcile(ctx, reference)
}

func (s *recordingService) ReviewQueue(limit, offset int) ([]ledger.Transaction, error) {
	return nil, nil
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest("POST", "/api/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	return req
}

func newTestHandler(queue Queue, svc settlement.Service) *Handler {
	return NewHandler(config.Config{GatewaySecret: testSecret}, queue, svc)
}

func TestGatewayWebhookEnqueuesAuthenticatedEvent(t *testing.T) {
	queue := &recordingQueue{}
	h := newTestHandler(queue, &recordingService{reconciled: make(chan string, 1)})

	body := []byte(`{"event":"charge.success","data":{"reference":"dep-w1","amount":999999}}`)
	rr := httptest.NewRecorder()
	h.GatewayWebhook(rr, webhookRequest(body, sign(body, testSecret)))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, queue.published, 1)
	assert.Equal(t, "charge.success", queue.published[0].Event)
	assert.Equal(t, "dep-w1", queue.published[0].Reference)
}

func TestGatewayWebhookRejectsForgedSignature(t *testing.T) {
	tests := []struct {
		name      string
		signature string
	}{
		{"missing signature", ""},
		{"wrong secret", sign([]byte(`{"event":"charge.success","data":{"reference":"dep-w1"}}`), "whsec_other")},
		{"garbage signature", "deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &recordingQueue{}
			svc := &recordingService{reconciled: make(chan string, 1)}
			h := newTestHandler(queue, svc)

			body := []byte(`{"event":"charge.success","data":{"reference":"dep-w1"}}`)
			rr := httptest.NewRecorder()
			h.GatewayWebhook(rr, webhookRequest(body, tt.signature))

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Empty(t, queue.published)
			assert.Empty(t, svc.reconciled)
		})
	}
}

func TestGatewayWebhookAcksEventsWithoutReference(t *testing.T) {
	queue := &recordingQueue{}
	h := newTestHandler(queue, &recordingService{reconciled: make(chan string, 1)})

	body := []byte(`{"event":"transfer.success","data":{}}`)
	rr := httptest.NewRecorder()
	h.GatewayWebhook(rr, webhookRequest(body, sign(body, testSecret)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, queue.published)
}

func TestGatewayWebhookReconcilesInlineWhenQueueDown(t *testing.T) {
	queue := &recordingQueue{err: errors.New("redis: connection refused")}
	svc := &recordingService{reconciled: make(chan string, 1)}
	h := newTestHandler(queue, svc)

	body := []byte(`{"event":"charge.success","data":{"reference":"dep-w2"}}`)
	rr := httptest.NewRecorder()
	h.GatewayWebhook(rr, webhookRequest(body, sign(body, testSecret)))

	assert.Equal(t, http.StatusOK, rr.Code)

	select {
	case ref := <-svc.reconciled:
		assert.Equal(t, "dep-w2", ref)
	case <-time.After(2 * time.Second):
		t.Fatal("expected inline reconcile when the queue is unavailable")
	}
}
