// Package attendance runs the daily attendance reminder scheduler: four
// fixed IST checkpoints, each announced at most once per day per kind.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/projectdesk/notify/internal/model"
	"github.com/projectdesk/notify/internal/sink"
)

// IST is the reference timezone for the attendance schedule.
var IST = model.ReferenceZone

// DefaultCheckInterval is the wall-clock poll period.
const DefaultCheckInterval = time.Minute

var ErrMissingEmployeeID = errors.New("employee id is required")

type profileClient interface {
	GetProfile(ctx context.Context, employeeID string) (model.EmployeeProfile, error)
}

// Config tunes a scheduler session. Zero values fall back to defaults.
type Config struct {
	CheckInterval time.Duration
}

// ledger tracks which checkpoint kinds have been announced for one
// reference-timezone day. It is replaced wholesale on day rollover.
type ledger struct {
	date string
	sent map[model.AttendanceKind]bool
}

func newLedger(date string) *ledger {
	return &ledger{date: date, sent: make(map[model.AttendanceKind]bool)}
}

// Scheduler polls the reference clock once per interval and emits one
// reminder per checkpoint per day through the sink.
type Scheduler struct {
	profiles profileClient
	out      sink.Sink
	now      func() time.Time

	mu         sync.Mutex
	running    bool
	interval   time.Duration
	employeeID string
	profile    *model.EmployeeProfile
	ledger     *ledger
	ticker     *time.Ticker
	cancel     context.CancelFunc
}

// New creates a stopped scheduler.
func New(profiles profileClient, out sink.Sink) *Scheduler {
	return &Scheduler{
		profiles: profiles,
		out:      out,
		now:      time.Now,
		interval: DefaultCheckInterval,
	}
}

// Status is a snapshot of the scheduler state for introspection.
type Status struct {
	Running    bool                  `json:"running"`
	EmployeeID string                `json:"employee_id,omitempty"`
	Interval   time.Duration         `json:"interval"`
	LedgerDate string                `json:"ledger_date,omitempty"`
	SentToday  []model.AttendanceKind `json:"sent_today,omitempty"`
}

// Start begins a scheduler session for the given employee. Any prior
// session is stopped first. The employee profile fetch is mandatory: on
// failure the session does not start and a WORKER_ERROR notification is
// emitted alongside the returned error.
func (s *Scheduler) Start(ctx context.Context, employeeID string, cfg Config) error {
	s.Stop()

	if employeeID == "" {
		s.emitError(ctx, ErrMissingEmployeeID)
		return ErrMissingEmployeeID
	}

	profile, err := s.profiles.GetProfile(ctx, employeeID)
	if err != nil {
		err = fmt.Errorf("fetch employee profile: %w", err)
		s.emitError(ctx, err)
		return err
	}

	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.running = true
	s.interval = interval
	s.employeeID = employeeID
	s.profile = &profile
	s.ledger = newLedger(s.now().In(IST).Format("2006-01-02"))
	s.ticker = time.NewTicker(interval)
	s.cancel = cancel
	ticker := s.ticker
	s.mu.Unlock()

	s.emit(ctx, model.Notification{
		ID:        uuid.New(),
		Type:      model.TypeWorkerStarted,
		Message:   "attendance reminder scheduler started",
		Payload:   model.WorkerStatus{Employee: &profile, Schedule: model.AttendanceSchedule()},
		CreatedAt: s.now(),
	})

	// A reminder due at the exact start second must not be missed.
	s.check(ctx)

	go s.loop(loopCtx, ticker)

	return nil
}

// Stop cancels the timer and clears the session state. It is safe to call
// on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.running = false
	s.employeeID = ""
	s.profile = nil
	s.ledger = nil
	s.mu.Unlock()

	if wasRunning {
		s.emit(context.Background(), model.Notification{
			ID:        uuid.New(),
			Type:      model.TypeWorkerStopped,
			Message:   "attendance reminder scheduler stopped",
			CreatedAt: s.now(),
		})
	}
}

// UpdateInterval changes the poll period. If a timer is armed it is re-armed
// at the new period without triggering an extra check.
func (s *Scheduler) UpdateInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = interval
	if s.ticker != nil {
		s.ticker.Reset(interval)
	}
}

// Status reports the current session state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    s.running,
		EmployeeID: s.employeeID,
		Interval:   s.interval,
	}
	if s.ledger != nil {
		st.LedgerDate = s.ledger.date
		for kind := range s.ledger.sent {
			st.SentToday = append(st.SentToday, kind)
		}
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check runs one tick. Panics and delivery errors are contained so one bad
// tick cannot kill the repeating timer.
func (s *Scheduler) check(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().Interface("panic", r).Msg("attendance check panicked")
		}
	}()

	for _, n := range s.dueReminders() {
		s.emit(ctx, n)
	}
}

// dueReminders rolls the ledger if the reference date changed, then collects
// reminders for every slot matching the current minute that has not been
// announced today. Slot marking happens under the lock; delivery does not.
func (s *Scheduler) dueReminders() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return nil
	}

	now := s.now().In(IST)
	date := now.Format("2006-01-02")
	current := now.Format("15:04")

	if s.ledger == nil || s.ledger.date != date {
		s.ledger = newLedger(date)
	}

	var due []model.Notification
	for _, slot := range model.AttendanceSchedule() {
		if slot.Time != current || s.ledger.sent[slot.Kind] {
			continue
		}

		s.ledger.sent[slot.Kind] = true

		due = append(due, model.Notification{
			ID:      uuid.New(),
			Type:    model.TypeAttendanceReminder,
			Message: slot.Message,
			Payload: model.AttendanceReminder{
				AttendanceType: string(slot.Kind),
				Message:        slot.Message,
				ScheduledTime:  slot.Time,
				CurrentTime:    current,
				Timestamp:      now,
				DisplayTime:    now.Format("03:04 PM"),
				EmployeeName:   s.profile.EmployeeName,
				EmployeeID:     s.profile.EmployeeID,
			},
			CreatedAt: now,
		})
	}

	return due
}

func (s *Scheduler) emit(ctx context.Context, n model.Notification) {
	if err := s.out.Deliver(ctx, n); err != nil {
		zlog.Logger.Error().Err(err).Str("type", n.Type).Msg("failed to deliver notification")
	}
}

func (s *Scheduler) emitError(ctx context.Context, cause error) {
	s.emit(ctx, model.Notification{
		ID:        uuid.New(),
		Type:      model.TypeWorkerError,
		Message:   "attendance reminder scheduler failed to start",
		Payload:   model.WorkerStatus{Error: cause.Error()},
		CreatedAt: s.now(),
	})
}
