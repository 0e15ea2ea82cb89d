package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectdesk/notify/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeProfiles struct {
	profile model.EmployeeProfile
	err     error
	calls   int
}

func (f *fakeProfiles) GetProfile(_ context.Context, _ string) (model.EmployeeProfile, error) {
	f.calls++
	return f.profile, f.err
}

type captureSink struct {
	mu  sync.Mutex
	got []model.Notification
}

func (s *captureSink) Deliver(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	s.got = append(s.got, n)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) byType(notifType string) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Notification
	for _, n := range s.got {
		if n.Type == notifType {
			out = append(out, n)
		}
	}
	return out
}

func newTestScheduler(t *testing.T, at time.Time) (*Scheduler, *captureSink, *fakeClock) {
	t.Helper()

	clock := newFakeClock(at)
	out := &captureSink{}
	profiles := &fakeProfiles{
		profile: model.EmployeeProfile{EmployeeID: "EMP1", EmployeeName: "Asha", Designation: "Engineer"},
	}

	s := New(profiles, out)
	s.now = clock.Now
	t.Cleanup(s.Stop)

	return s, out, clock
}

func istTime(hour, min, sec int) time.Time {
	return time.Date(2026, 3, 10, hour, min, sec, 0, IST)
}

func TestStart_RequiresEmployeeID(t *testing.T) {
	s, out, _ := newTestScheduler(t, istTime(9, 0, 0))

	err := s.Start(context.Background(), "", Config{})
	require.ErrorIs(t, err, ErrMissingEmployeeID)

	assert.False(t, s.Status().Running)
	assert.Len(t, out.byType(model.TypeWorkerError), 1)
}

func TestStart_ProfileFetchFailureIsFatal(t *testing.T) {
	clock := newFakeClock(istTime(9, 0, 0))
	out := &captureSink{}
	profiles := &fakeProfiles{err: errors.New("upstream down")}

	s := New(profiles, out)
	s.now = clock.Now
	t.Cleanup(s.Stop)

	err := s.Start(context.Background(), "EMP1", Config{})
	require.Error(t, err)

	assert.False(t, s.Status().Running)
	assert.Len(t, out.byType(model.TypeWorkerError), 1)
	assert.Empty(t, out.byType(model.TypeWorkerStarted))
}

func TestStart_EmitsStartedWithScheduleAndRunsImmediateCheck(t *testing.T) {
	s, out, _ := newTestScheduler(t, istTime(9, 40, 0))

	require.NoError(t, s.Start(context.Background(), "EMP1", Config{}))

	started := out.byType(model.TypeWorkerStarted)
	require.Len(t, started, 1)

	payload, ok := started[0].Payload.(model.WorkerStatus)
	require.True(t, ok)
	assert.Equal(t, "EMP1", payload.Employee.EmployeeID)
	assert.Len(t, payload.Schedule, 4)

	// 09:40 is the morning check-in slot, and Start checks immediately.
	reminders := out.byType(model.TypeAttendanceReminder)
	require.Len(t, reminders, 1)

	reminder := reminders[0].Payload.(model.AttendanceReminder)
	assert.Equal(t, string(model.MorningIn), reminder.AttendanceType)
	assert.Equal(t, "09:40", reminder.ScheduledTime)
	assert.Equal(t, "EMP1", reminder.EmployeeID)
	assert.Equal(t, "Asha", reminder.EmployeeName)
}

func TestReminder_AtMostOncePerDay(t *testing.T) {
	s, out, _ := newTestScheduler(t, istTime(9, 40, 0))

	require.NoError(t, s.Start(context.Background(), "EMP1", Config{}))

	// Duplicate ticks within the same minute must not re-announce the slot.
	s.check(context.Background())
	s.check(context.Background())

	assert.Len(t, out.byType(model.TypeAttendanceReminder), 1)
}

func TestReminder_EligibleAgainAfterDayRollover(t *testing.T) {
	s, out, clock := newTestScheduler(t, istTime(9, 40, 0))

	require.NoError(t, s.Start(context.Background(), "EMP1", Config{}))
	require.Len(t, out.byType(model.TypeAttendanceReminder), 1)

	clock.Set(istTime(9, 40, 0).AddDate(0, 0, 1))
	s.check(context.Background())

	reminders := out.byType(model.TypeAttendanceReminder)
	require.Len(t, reminders, 2)

	first := reminders[0].Payload.(model.AttendanceReminder)
	second := reminders[1].Payload.(model.AttendanceReminder)
	assert.Equal(t, first.AttendanceType, second.AttendanceType)
}

func TestScenario_StartJustBeforeSlot(t *testing.T) {
	s, out, clock := newTestScheduler(t, istTime(9, 39, 30))

	require.NoError(t, s.Start(context.Background(), "EMP1", Config{}))
	assert.Empty(t, out.byType(model.TypeAttendanceReminder))

	clock.Set(istTime(9, 40, 0))
	s.check(context.Background())

	reminders := out.byType(model.TypeAttendanceReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, string(model.MorningIn), reminders[0].Payload.(model.AttendanceReminder).AttendanceType)

	// A second tick on the same clock read emits nothing.
	s.check(context.Background())
	assert.Len(t, out.byType(model.TypeAttendanceReminder), 1)
}

func TestStop_ClearsSessionAndEmitsStopped(t *testing.T) {
	s, out, _ := newTestScheduler(t, istTime(9, 0, 0))

	require.NoError(t, s.Start(context.Background(), "EMP1", Config{}))
	s.Stop()

	st := s.Status()
	assert.False(t, st.Running)
	assert.Empty(t, st.EmployeeID)
	assert.Empty(t, st.LedgerDate)
	assert.Len(t, out.byType(model.TypeWorkerStopped), 1)

	// Stopping again is a no-op and emits nothing further.
	s.Stop()
	assert.Len(t, out.byType(model.TypeWorkerStopped), 1)
}

func TestStart_RestartsRunningSession(t *testing.T) {
	s, out, _ := newTestScheduler(t, istTime(9, 0, 0))

	require.NoError(t, s.Start(context.Background(), "EMP1", Config{}))
	require.NoError(t, s.Start(context.Background(), "EMP1", Config{}))

	assert.Len(t, out.byType(model.TypeWorkerStarted), 2)
	assert.Len(t, out.byType(model.TypeWorkerStopped), 1)
}

func TestUpdateInterval(t *testing.T) {
	s, _, _ := newTestScheduler(t, istTime(9, 0, 0))

	require.NoError(t, s.Start(context.Background(), "EMP1", Config{}))

	s.UpdateInterval(30 * time.Second)
	assert.Equal(t, 30*time.Second, s.Status().Interval)

	// Non-positive values are ignored.
	s.UpdateInterval(0)
	assert.Equal(t, 30*time.Second, s.Status().Interval)
	s.UpdateInterval(-time.Second)
	assert.Equal(t, 30*time.Second, s.Status().Interval)
}

func TestCheck_WithoutProfileIsSilent(t *testing.T) {
	s, out, _ := newTestScheduler(t, istTime(9, 40, 0))

	s.check(context.Background())
	assert.Empty(t, out.byType(model.TypeAttendanceReminder))
}
