package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sannidata/settlement-engine/internal/settlement"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/events"
	"github.com/sannidata/settlement-engine/pkg/logger"
)

const pollTimeout = 5 * time.Second

// Worker drains the reconcile queue in the background. A "pending" outcome is
// not a failure here: the client poller and the gateway's own webhook retries
// will drive the transaction forward later.
type Worker struct {
	Config      config.Config
	Service     settlement.Service
	RedisClient *events.RedisClient

	stop chan struct{}
	done chan struct{}
}

func NewWorker(cfg config.Config, svc settlement.Service, redisClient *events.RedisClient) *Worker {
	return &Worker{
		Config:      cfg,
		Service:     svc,
		RedisClient: redisClient,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (w *Worker) Start() {
	logger.Info("Starting reconcile worker...")
	go w.processEvents()
}

// Stop ends the poll loop and waits for the in-flight event, if any, to
// finish. Call only after Start.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) processEvents() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			logger.Info("Reconcile worker stopped")
			return
		default:
		}

		result, err := w.RedisClient.Client.BLPop(context.Background(), pollTimeout, events.ReconcileQueue).Result()
		if err != nil {
			// redis.Nil is just an empty queue after the poll timeout
			if errors.Is(err, redis.Nil) {
				continue
			}
			logger.Error("ReconcileWorker: Queue poll failed", logger.Fields{"error": err.Error()})
			select {
			case <-w.stop:
				logger.Info("Reconcile worker stopped")
				return
			case <-time.After(pollTimeout):
			}
			continue
		}

		eventData := []byte(result[1])
		var event events.ReconcileEvent
		if err := json.Unmarshal(eventData, &event); err != nil {
			logger.Error("ReconcileWorker: Failed to unmarshal event", logger.Fields{"error": err.Error(), "data": string(eventData)})
			w.moveToDLQ(eventData)
			continue
		}

		w.handleEvent(event, eventData)
	}
}

func (w *Worker) handleEvent(event events.ReconcileEvent, rawData []byte) {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		tx, err := w.Service.Reconcile(ctx, event.Reference)
		cancel()

		if err == nil {
			logger.Info("ReconcileWorker: Processed event", logger.Fields{
				"event":             event.Event,
				logger.ReferenceKey: event.Reference,
				"status":            string(tx.Status),
			})
			return
		}

		logger.Warn("ReconcileWorker: Failed to process event, retrying", logger.Fields{
			"event":             event.Event,
			logger.ReferenceKey: event.Reference,
			"attempt":           i + 1,
			"error":             err.Error(),
		})
		time.Sleep(time.Duration(i+1) * time.Second)
	}

	logger.Error("ReconcileWorker: Max retries exhausted, moving to DLQ", logger.Fields{logger.ReferenceKey: event.Reference})
	w.moveToDLQ(rawData)
}

func (w *Worker) moveToDLQ(data []byte) {
	if err := w.RedisClient.PushToDLQ(context.Background(), data); err != nil {
		logger.Error("ReconcileWorker: Failed to push to DLQ", logger.Fields{"error": err.Error()})
	}
}
