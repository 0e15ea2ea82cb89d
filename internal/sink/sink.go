// Package sink defines where worker notifications go once emitted. Sinks
// are composable; the workers only ever see the Sink interface.
package sink

import (
	"context"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/projectdesk/notify/internal/model"
	"github.com/projectdesk/notify/internal/rabbitmq/queue"
)

// Sink delivers a single notification. Implementations must be safe for use
// from multiple goroutines.
type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// Log writes every notification to the structured log.
type Log struct{}

func (Log) Deliver(_ context.Context, n model.Notification) error {
	zlog.Logger.Info().
		Str("type", n.Type).
		Str("id", n.ID.String()).
		Msg(n.Message)
	return nil
}

// Multi fans a notification out to every child sink. A failing child is
// logged and does not prevent delivery to the rest.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, n model.Notification) error {
	var firstErr error
	for _, s := range m {
		if err := s.Deliver(ctx, n); err != nil {
			zlog.Logger.Error().Err(err).Str("type", n.Type).Msg("sink delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Channel feeds notifications to an in-process consumer. Delivery never
// blocks; if the consumer has fallen behind the notification is dropped
// with a warning.
type Channel struct {
	C chan model.Notification
}

// NewChannel creates a Channel sink with the given buffer size.
func NewChannel(buffer int) *Channel {
	return &Channel{C: make(chan model.Notification, buffer)}
}

func (c *Channel) Deliver(_ context.Context, n model.Notification) error {
	select {
	case c.C <- n:
	default:
		zlog.Logger.Warn().Str("type", n.Type).Msg("channel sink full, dropping notification")
	}
	return nil
}

type notificationPublisher interface {
	Publish(msg queue.NotificationMessage, strategy retry.Strategy) error
}

// Queue publishes notifications to RabbitMQ for the dispatch worker.
type Queue struct {
	queue    notificationPublisher
	strategy retry.Strategy
}

// NewQueue creates a Queue sink publishing with the given retry strategy.
func NewQueue(q notificationPublisher, strategy retry.Strategy) *Queue {
	return &Queue{queue: q, strategy: strategy}
}

func (q *Queue) Deliver(_ context.Context, n model.Notification) error {
	msg, err := queue.FromNotification(n)
	if err != nil {
		return err
	}
	return q.queue.Publish(msg, q.strategy)
}

type historyRepo interface {
	CreateNotification(ctx context.Context, n model.Notification) (uuid.UUID, error)
}

// History records every notification in the history repository.
type History struct {
	repo historyRepo
}

// NewHistory creates a History sink backed by the given repository.
func NewHistory(repo historyRepo) *History {
	return &History{repo: repo}
}

func (h *History) Deliver(ctx context.Context, n model.Notification) error {
	_, err := h.repo.CreateNotification(ctx, n)
	return err
}
