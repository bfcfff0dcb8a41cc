package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/notify"
)

// NotificationQueue pushes notifications onto a Redis list for the mail
// dispatcher to consume
type NotificationQueue struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewNotificationQueue connects to Redis and returns a queue notifier
func NewNotificationQueue(cfg *config.RedisConfig, logger *slog.Logger) (*NotificationQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewNotificationQueueWithClient(client, cfg.QueueKey, logger), nil
}

// NewNotificationQueueWithClient wraps an existing client
func NewNotificationQueueWithClient(client *redis.Client, key string, logger *slog.Logger) *NotificationQueue {
	return &NotificationQueue{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Close closes the Redis connection
func (q *NotificationQueue) Close() error {
	return q.client.Close()
}

// Send enqueues a notification
func (q *NotificationQueue) Send(ctx context.Context, n notify.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing notification: %w", err)
	}
	q.logger.Debug("notification enqueued",
		"kind", n.Kind,
		"recipient_id", n.RecipientID,
		"scrim_id", n.ScrimID,
	)
	return nil
}

// Len returns the number of queued notifications
func (q *NotificationQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("getting queue length: %w", err)
	}
	return n, nil
}

// Pop removes the oldest queued notification. It returns false when the queue is empty.
func (q *NotificationQueue) Pop(ctx context.Context) (notify.Notification, bool, error) {
	var n notify.Notification
	payload, err := q.client.RPop(ctx, q.key).Bytes()
	if err == redis.Nil {
		return n, false, nil
	}
	if err != nil {
		return n, false, fmt.Errorf("popping notification: %w", err)
	}
	if err := json.Unmarshal(payload, &n); err != nil {
		return n, false, fmt.Errorf("unmarshaling notification: %w", err)
	}
	return n, true, nil
}
