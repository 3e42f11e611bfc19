// Package dispatch is the scheduler's only outbound boundary: handing a due
// task to the external execution system through its message broker.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cronbeat/internal/domain"
)

// Message is the envelope handed to the broker for one task invocation.
type Message struct {
	ID       string          `json:"id"`
	Task     string          `json:"task"`
	Args     json.RawMessage `json:"args,omitempty"`
	Kwargs   json.RawMessage `json:"kwargs,omitempty"`
	Queue    string          `json:"queue,omitempty"`
	Priority *int            `json:"priority,omitempty"`
	Expires  *time.Time      `json:"expires,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}

// Dispatcher accepts a task invocation for asynchronous execution and
// returns its dispatch id. A broker outage surfaces as
// domain.ErrDispatchUnavailable.
type Dispatcher interface {
	Dispatch(ctx context.Context, m Message) (string, error)
	Close() error
}

// RedisBroker enqueues messages onto per-queue Redis lists, with the message
// body stored under its own key so workers can fetch and update it.
type RedisBroker struct {
	client       *redis.Client
	keyPrefix    string
	defaultQueue string
}

// NewRedisBroker connects to the broker and verifies it is reachable.
func NewRedisBroker(redisURL, defaultQueue string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDispatchUnavailable, err)
	}
	if defaultQueue == "" {
		defaultQueue = "default"
	}
	return &RedisBroker{
		client:       client,
		keyPrefix:    "cronbeat:",
		defaultQueue: defaultQueue,
	}, nil
}

func (b *RedisBroker) messageKey(id string) string { return b.keyPrefix + "msg:" + id }

func (b *RedisBroker) queueKey(queue string) string {
	if queue == "" {
		queue = b.defaultQueue
	}
	return b.keyPrefix + "queue:" + queue
}

// Dispatch stores the message body and pushes its id onto the destination
// queue in one pipeline, so workers never observe an id without a body.
func (b *RedisBroker) Dispatch(ctx context.Context, m Message) (string, error) {
	if m.ID == "" {
		m.ID = "msg_" + uuid.NewString()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}

	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	var ttl time.Duration
	if m.Expires != nil {
		ttl = time.Until(*m.Expires)
		if ttl <= 0 {
			return "", fmt.Errorf("message %s already expired", m.ID)
		}
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.messageKey(m.ID), body, ttl)
	pipe.LPush(ctx, b.queueKey(m.Queue), m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDispatchUnavailable, err)
	}
	return m.ID, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
