package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/logger"
)

const (
	ReconcileQueue = "reconcile_events"
	FailedQueue    = "failed_reconcile_events"

	cooldownPrefix = "deposit-cooldown:"
)

type RedisClient struct {
	Client *redis.Client
}

// ReconcileEvent is the queue entry produced by the webhook ingress. It
// deliberately carries no amount or status: the payload is only a trigger to
// re-verify the reference against the gateway.
type ReconcileEvent struct {
	Event      string    `json:"event"`
	Reference  string    `json:"reference"`
	ReceivedAt time.Time `json:"received_at"`
}

func NewRedisClient(cfg config.Config) *RedisClient {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to parse Redis url", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})
		opt = &redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		}
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})

	} else {
		logger.Info("Connected to Redis", logger.Fields{"url": cfg.RedisURL})
	}

	return &RedisClient{Client: rdb}
}

func (r *RedisClient) PublishEvent(ctx context.Context, event ReconcileEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	if err := r.Client.RPush(ctx, ReconcileQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to redis: %v", err)
	}

	return nil
}

func (r *RedisClient) PushToDLQ(ctx context.Context, data []byte) error {
	if err := r.Client.RPush(ctx, FailedQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to DLQ: %v", err)
	}
	return nil
}

// ReserveCooldown claims the per-user deposit-initiation slot. Returns false
// while a previous claim is still inside its window.
func (r *RedisClient) ReserveCooldown(ctx context.Context, userID string, window time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(ctx, cooldownPrefix+userID, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve deposit cooldown: %v", err)
	}
	return ok, nil
}
