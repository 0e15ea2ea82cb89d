package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/projectdesk/notify/internal/model"
	"github.com/projectdesk/notify/internal/rabbitmq/queue"
)

type fakeQueue struct {
	msgs []queue.NotificationMessage
}

func (f *fakeQueue) Consume(out chan<- queue.NotificationMessage, _ retry.Strategy) error {
	for _, msg := range f.msgs {
		out <- msg
	}
	return nil
}

type sent struct {
	to  string
	msg string
}

type fakeChannelClient struct {
	mu   sync.Mutex
	got  []sent
	errs int
}

func (c *fakeChannelClient) Send(to, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errs > 0 {
		c.errs--
		return errors.New("temporarily unavailable")
	}
	c.got = append(c.got, sent{to: to, msg: msg})
	return nil
}

func (c *fakeChannelClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func message(notifType, text string) queue.NotificationMessage {
	return queue.NotificationMessage{
		ID:        uuid.New(),
		Type:      notifType,
		Message:   text,
		CreatedAt: time.Now(),
	}
}

func TestDispatcher_DeliversUserFacingMessages(t *testing.T) {
	q := &fakeQueue{msgs: []queue.NotificationMessage{
		message(model.TypeAttendanceReminder, "Time for your morning check-in"),
		message(model.TypeUpcomingEvent, "standup starts in 10 minutes"),
	}}

	tg := &fakeChannelClient{}
	d := NewDispatcher(q, map[string]Channel{
		"telegram": {Client: tg, To: "chat-1"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond}
	go d.Run(ctx, strategy, 2)

	require.Eventually(t, func() bool { return tg.sentCount() == 2 }, time.Second, 10*time.Millisecond)

	tg.mu.Lock()
	defer tg.mu.Unlock()
	for _, s := range tg.got {
		assert.Equal(t, "chat-1", s.to)
	}
}

func TestDispatcher_SkipsWorkerStatusMessages(t *testing.T) {
	q := &fakeQueue{msgs: []queue.NotificationMessage{
		message(model.TypeWorkerStarted, "attendance worker started"),
		message(model.TypeWorkerError, "profile fetch failed"),
		message(model.TypeMissedEvent, "you missed the retro"),
	}}

	tg := &fakeChannelClient{}
	d := NewDispatcher(q, map[string]Channel{
		"telegram": {Client: tg, To: "chat-1"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Run(ctx, retry.Strategy{Attempts: 1, Delay: time.Millisecond}, 1)

	require.Eventually(t, func() bool { return tg.sentCount() == 1 }, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, tg.sentCount())

	tg.mu.Lock()
	defer tg.mu.Unlock()
	assert.Equal(t, "you missed the retro", tg.got[0].msg)
}

func TestDispatcher_RetriesFailedDelivery(t *testing.T) {
	q := &fakeQueue{msgs: []queue.NotificationMessage{
		message(model.TypeStartEvent, "standup is starting"),
	}}

	tg := &fakeChannelClient{errs: 2}
	d := NewDispatcher(q, map[string]Channel{
		"telegram": {Client: tg, To: "chat-1"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Run(ctx, retry.Strategy{Attempts: 3, Delay: time.Millisecond}, 1)

	require.Eventually(t, func() bool { return tg.sentCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestDispatcher_SkipsChannelWithoutRecipient(t *testing.T) {
	q := &fakeQueue{msgs: []queue.NotificationMessage{
		message(model.TypeUpcomingEvent, "standup starts in 10 minutes"),
	}}

	tg := &fakeChannelClient{}
	mail := &fakeChannelClient{}
	d := NewDispatcher(q, map[string]Channel{
		"telegram": {Client: tg, To: "chat-1"},
		"email":    {Client: mail, To: ""},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Run(ctx, retry.Strategy{Attempts: 1, Delay: time.Millisecond}, 1)

	require.Eventually(t, func() bool { return tg.sentCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, mail.sentCount())
}

func TestUserFacing(t *testing.T) {
	assert.True(t, userFacing(model.TypeAttendanceReminder))
	assert.True(t, userFacing(model.TypeUpcomingEvent))
	assert.True(t, userFacing(model.TypeStartEvent))
	assert.True(t, userFacing(model.TypeMissedEvent))

	assert.False(t, userFacing(model.TypeWorkerStarted))
	assert.False(t, userFacing(model.TypeWorkerStopped))
	assert.False(t, userFacing(model.TypeWorkerError))
}
