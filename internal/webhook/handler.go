package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sannidata/settlement-engine/internal/settlement"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/events"
	"github.com/sannidata/settlement-engine/pkg/logger"
)

const signatureHeader = "x-paystack-signature"

// Queue is where authenticated events go to be processed off the request
// path. The redis client implements it.
type Queue interface {
	PublishEvent(ctx context.Context, event events.ReconcileEvent) error
}

// Handler authenticates inbound gateway events and turns them into reconcile
// triggers. The payload's embedded amount and status are never trusted for
// crediting; settlement always re-verifies against the gateway directly.
type Handler struct {
	Config  config.Config
	Queue   Queue
	Service settlement.Service
}

func NewHandler(cfg config.Config, queue Queue, svc settlement.Service) *Handler {
	return &Handler{Config: cfg, Queue: queue, Service: svc}
}

func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.validSignature(body, r.Header.Get(signatureHeader)) {
		logger.Warn("Webhook rejected: signature mismatch", logger.Fields{"remote_addr": r.RemoteAddr})
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &event); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if event.Data.Reference == "" {
		// authenticated but not something we settle; ack so the gateway
		// stops redelivering
		w.WriteHeader(http.StatusOK)
		return
	}

	h.enqueue(events.ReconcileEvent{
		Event:      event.Event,
		Reference:  event.Data.Reference,
		ReceivedAt: time.Now(),
	})

	// ack fast regardless of settlement outcome; the gateway's delivery
	// retries are independent of our internal reconciliation
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(h.Config.GatewaySecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *Handler) enqueue(event events.ReconcileEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := h.Queue.PublishEvent(ctx, event)
	if err == nil {
		return
	}
	logger.Error("Webhook: queue unavailable, reconciling inline", logger.Fields{
		logger.ReferenceKey: event.Reference,
		"error":             err.Error(),
	})

	// queue push failed; do not drop the trigger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := h.Service.Reconcile(ctx, event.Reference); err != nil {
			logger.Error("Webhook: inline reconcile failed", logger.Fields{
				logger.ReferenceKey: event.Reference,
				"error":             err.Error(),
			})
		}
	}()
}
