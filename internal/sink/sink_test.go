package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/projectdesk/notify/internal/model"
	"github.com/projectdesk/notify/internal/rabbitmq/queue"
)

type recordSink struct {
	got []model.Notification
	err error
}

func (s *recordSink) Deliver(_ context.Context, n model.Notification) error {
	s.got = append(s.got, n)
	return s.err
}

func sample(notifType string) model.Notification {
	return model.Notification{
		ID:      uuid.New(),
		Type:    notifType,
		Message: "sample",
	}
}

func TestMulti_ContinuesPastFailingSink(t *testing.T) {
	failed := &recordSink{err: errors.New("db down")}
	ok := &recordSink{}

	m := Multi{failed, ok}
	err := m.Deliver(context.Background(), sample(model.TypeAttendanceReminder))

	require.Error(t, err)
	assert.Len(t, failed.got, 1)
	assert.Len(t, ok.got, 1, "later sinks still receive the notification")
}

func TestMulti_ReturnsFirstError(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")

	m := Multi{&recordSink{err: errA}, &recordSink{err: errB}}
	err := m.Deliver(context.Background(), sample(model.TypeUpcomingEvent))

	assert.ErrorIs(t, err, errA)
}

func TestChannel_DropsWhenFull(t *testing.T) {
	c := NewChannel(1)

	require.NoError(t, c.Deliver(context.Background(), sample(model.TypeStartEvent)))
	require.NoError(t, c.Deliver(context.Background(), sample(model.TypeMissedEvent)))

	got := <-c.C
	assert.Equal(t, model.TypeStartEvent, got.Type)

	select {
	case n := <-c.C:
		t.Fatalf("expected the overflow notification to be dropped, got %s", n.Type)
	default:
	}
}

type fakePublisher struct {
	published []queue.NotificationMessage
	err       error
}

func (p *fakePublisher) Publish(msg queue.NotificationMessage, _ retry.Strategy) error {
	p.published = append(p.published, msg)
	return p.err
}

func TestQueue_PublishesConvertedMessage(t *testing.T) {
	pub := &fakePublisher{}
	q := NewQueue(pub, retry.Strategy{Attempts: 1})

	n := sample(model.TypeAttendanceReminder)
	n.Payload = model.AttendanceReminder{AttendanceType: string(model.MorningIn)}

	require.NoError(t, q.Deliver(context.Background(), n))
	require.Len(t, pub.published, 1)

	msg := pub.published[0]
	assert.Equal(t, n.ID, msg.ID)
	assert.Equal(t, n.Type, msg.Type)
	assert.NotEmpty(t, msg.Payload)
}

type fakeHistory struct {
	got []model.Notification
	err error
}

func (h *fakeHistory) CreateNotification(_ context.Context, n model.Notification) (uuid.UUID, error) {
	h.got = append(h.got, n)
	return uuid.New(), h.err
}

func TestHistory_RecordsNotification(t *testing.T) {
	repo := &fakeHistory{}
	h := NewHistory(repo)

	require.NoError(t, h.Deliver(context.Background(), sample(model.TypeWorkerStarted)))
	assert.Len(t, repo.got, 1)

	repo.err = errors.New("insert failed")
	assert.Error(t, h.Deliver(context.Background(), sample(model.TypeWorkerStopped)))
}
