// Package dispatch drains the notification queue and fans deliveries out to
// the configured channels (telegram, email).
package dispatch

import (
	"context"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/projectdesk/notify/internal/model"
	"github.com/projectdesk/notify/internal/rabbitmq/queue"
)

type notificationQueue interface {
	Consume(out chan<- queue.NotificationMessage, strategy retry.Strategy) error
}

type channelClient interface {
	Send(to, msg string) error
}

// Channel pairs a delivery client with its default recipient.
type Channel struct {
	Client channelClient
	To     string
}

// Dispatcher consumes queued notifications and delivers the user-facing
// ones through every configured channel.
type Dispatcher struct {
	queue    notificationQueue
	channels map[string]Channel
}

func NewDispatcher(q notificationQueue, channels map[string]Channel) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		channels: channels,
	}
}

func (d *Dispatcher) Run(ctx context.Context, strategy retry.Strategy, workerCount int) {
	msgChan := make(chan queue.NotificationMessage)

	go func() {
		if err := d.queue.Consume(msgChan, strategy); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to consume messages")
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(id int) {
			zlog.Logger.Printf("dispatch-%d started", id)

			for {
				select {
				case <-ctx.Done():
					zlog.Logger.Printf("dispatch-%d shutting down", id)
					return
				case msg := <-msgChan:
					d.deliver(ctx, msg, strategy)
				}
			}
		}(i)
	}

	<-ctx.Done()
	zlog.Logger.Print("dispatcher stopped")
}

// userFacing reports whether a notification type should reach a person
// rather than just the log and history.
func userFacing(notifType string) bool {
	switch notifType {
	case model.TypeAttendanceReminder, model.TypeUpcomingEvent, model.TypeStartEvent, model.TypeMissedEvent:
		return true
	}
	return false
}

func (d *Dispatcher) deliver(ctx context.Context, msg queue.NotificationMessage, strategy retry.Strategy) {
	if !userFacing(msg.Type) {
		zlog.Logger.Debug().Str("type", msg.Type).Msg("skipping non user-facing notification")
		return
	}

	for name, ch := range d.channels {
		if ch.To == "" {
			continue
		}

		err := retry.Do(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return ch.Client.Send(ch.To, msg.Message)
			}
		}, strategy)

		if err != nil {
			zlog.Logger.Error().Err(err).Str("channel", name).Str("id", msg.ID.String()).Msg("failed to deliver notification")
			continue
		}

		zlog.Logger.Info().Str("channel", name).Str("id", msg.ID.String()).Msg("notification delivered")
	}
}
