// Package calendar runs the calendar event notifier: a rolling event cache,
// three time-relative triggers per event, and a rate-limited serial delivery
// queue.
package calendar

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/projectdesk/notify/internal/dedup"
	"github.com/projectdesk/notify/internal/model"
	"github.com/projectdesk/notify/internal/sink"
)

const (
	DefaultFetchInterval   = 30 * time.Second
	DefaultNotificationGap = 5 * time.Second

	checkInterval = time.Minute

	// Floor between fetches regardless of the configured interval, so manual
	// triggers cannot hammer the API.
	minFetchSpacing = 5 * time.Second
)

var ErrMissingEmployeeID = errors.New("employee id is required")

type eventsClient interface {
	GetEvents(ctx context.Context) ([]model.CalendarEvent, error)
}

// Config tunes a notifier session. Zero values fall back to defaults.
type Config struct {
	FetchInterval   time.Duration
	NotificationGap time.Duration
}

// trigger describes one of the three time-relative trigger points.
type trigger struct {
	offsetMin int
	kind      string
	priority  int
	keyPrefix string
	message   string
}

var triggers = []trigger{
	{offsetMin: 10, kind: model.TypeUpcomingEvent, priority: 3, keyPrefix: "upcoming_10_", message: "Event starting in 10 minutes"},
	{offsetMin: 0, kind: model.TypeStartEvent, priority: 2, keyPrefix: "start_", message: "Event starting now"},
	{offsetMin: -10, kind: model.TypeMissedEvent, priority: 1, keyPrefix: "missed_10_", message: "Event started 10 minutes ago"},
}

type queueEntry struct {
	kind     string
	priority int
	message  string
	event    model.CalendarEvent
}

// Notifier maintains the event cache and delivers paced notifications.
type Notifier struct {
	events eventsClient
	out    sink.Sink
	seen   dedup.Store
	now    func() time.Time

	mu          sync.Mutex
	running     bool
	employeeID  string
	cfg         Config
	cache       []model.CalendarEvent
	lastFetch   time.Time
	fetchErrors int
	queue       []queueEntry
	processing  bool
	cancel      context.CancelFunc
}

// New creates a stopped notifier.
func New(events eventsClient, out sink.Sink, seen dedup.Store) *Notifier {
	return &Notifier{
		events: events,
		out:    out,
		seen:   seen,
		now:    time.Now,
	}
}

// Start begins a notifier session for the given employee. Any prior session
// is stopped first. An immediate fetch runs right away; the check loop is
// aligned to the next top-of-minute boundary and then ticks every minute,
// while the fetch loop ticks independently at the configured interval.
func (n *Notifier) Start(ctx context.Context, employeeID string, cfg Config) error {
	n.Stop()

	if employeeID == "" {
		return ErrMissingEmployeeID
	}

	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = DefaultFetchInterval
	}
	if cfg.NotificationGap <= 0 {
		cfg.NotificationGap = DefaultNotificationGap
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	n.mu.Lock()
	n.running = true
	n.employeeID = employeeID
	n.cfg = cfg
	n.cancel = cancel
	n.mu.Unlock()

	go n.run(loopCtx, cfg.FetchInterval)

	return nil
}

// Stop cancels both loops and clears the cache, queue and identity.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.running = false
	n.employeeID = ""
	n.cache = nil
	n.queue = nil
	n.processing = false
	n.lastFetch = time.Time{}
	n.fetchErrors = 0
}

// QueuedItem is a lightweight projection of a pending notification.
type QueuedItem struct {
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

// QueueStatus reports the pending queue without side effects.
type QueueStatus struct {
	Running      bool         `json:"running"`
	QueueLength  int          `json:"queueLength"`
	IsProcessing bool         `json:"isProcessing"`
	Queue        []QueuedItem `json:"queue"`
	FetchErrors  int          `json:"fetchErrors"`
}

// GetQueueStatus returns a snapshot of the delivery queue.
func (n *Notifier) GetQueueStatus() QueueStatus {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := QueueStatus{
		Running:      n.running,
		QueueLength:  len(n.queue),
		IsProcessing: n.processing,
		Queue:        make([]QueuedItem, 0, len(n.queue)),
		FetchErrors:  n.fetchErrors,
	}
	for _, e := range n.queue {
		st.Queue = append(st.Queue, QueuedItem{Title: e.event.Title, Kind: e.kind})
	}
	return st
}

func (n *Notifier) run(ctx context.Context, fetchInterval time.Duration) {
	n.fetch(ctx)

	// Align the first check to the next top-of-minute boundary so triggers
	// fire on the same minute grid the schedule is expressed in.
	now := n.now()
	align := time.NewTimer(now.Truncate(time.Minute).Add(time.Minute).Sub(now))
	defer align.Stop()

	fetchTicker := time.NewTicker(fetchInterval)
	defer fetchTicker.Stop()

	var (
		checkTicker *time.Ticker
		checkC      <-chan time.Time
	)
	defer func() {
		if checkTicker != nil {
			checkTicker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-align.C:
			n.check(ctx)
			checkTicker = time.NewTicker(checkInterval)
			checkC = checkTicker.C
		case <-checkC:
			n.check(ctx)
		case <-fetchTicker.C:
			n.fetch(ctx)
		}
	}
}

// fetch refreshes the event cache. It is a no-op within 5 seconds of the
// last successful fetch; on failure the previous cache is kept and the
// consecutive error counter grows.
func (n *Notifier) fetch(ctx context.Context) {
	n.mu.Lock()
	if !n.lastFetch.IsZero() && n.now().Sub(n.lastFetch) < minFetchSpacing {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	events, err := n.events.GetEvents(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()

	if err != nil {
		n.fetchErrors++
		zlog.Logger.Warn().Err(err).Int("consecutive_errors", n.fetchErrors).Msg("failed to fetch calendar events")
		return
	}

	n.fetchErrors = 0
	n.cache = events
	n.lastFetch = n.now()
}

// check runs one trigger scan and kicks the drain if anything was queued.
// Panics are contained so one bad tick cannot kill the repeating timer.
func (n *Notifier) check(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().Interface("panic", r).Msg("calendar check panicked")
		}
	}()

	triggered := n.scan(ctx)
	if len(triggered) == 0 {
		return
	}

	n.mu.Lock()
	n.queue = append(n.queue, triggered...)
	kick := !n.processing
	if kick {
		n.processing = true
	}
	n.mu.Unlock()

	if kick {
		go n.drain(ctx)
	}
}

// scan walks the cached events and returns newly triggered entries sorted by
// descending priority. Each event+trigger key fires at most once per
// retention window.
func (n *Notifier) scan(ctx context.Context) []queueEntry {
	n.mu.Lock()
	cache := n.cache
	employeeID := n.employeeID
	n.mu.Unlock()

	now := n.now().In(model.ReferenceZone)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, model.ReferenceZone)

	var triggered []queueEntry
	for _, ev := range cache {
		if ev.StartTime == "" {
			continue
		}
		if ev.Status == model.EventStatusCompleted || ev.Status == model.EventStatusCancelled {
			continue
		}
		if !relevantTo(ev, employeeID) {
			continue
		}

		start, ok := eventStart(ev, now)
		if !ok {
			continue
		}
		// A stale event from a previous day must never resurrect.
		if start.Before(today) {
			continue
		}

		minutesDiff := int(math.Round(start.Sub(now).Minutes()))
		for _, tr := range triggers {
			if minutesDiff != tr.offsetMin {
				continue
			}

			first, err := n.seen.MarkOnce(ctx, tr.keyPrefix+ev.ID)
			if err != nil {
				zlog.Logger.Warn().Err(err).Str("event", ev.ID).Msg("dedup store unavailable, skipping trigger")
				continue
			}
			if !first {
				continue
			}

			triggered = append(triggered, queueEntry{
				kind:     tr.kind,
				priority: tr.priority,
				message:  tr.message,
				event:    ev,
			})
		}
	}

	sort.SliceStable(triggered, func(i, j int) bool {
		return triggered[i].priority > triggered[j].priority
	})

	return triggered
}

// drain delivers queued notifications serially, pausing notificationGap
// between consecutive deliveries. Only one drain runs at a time.
func (n *Notifier) drain(ctx context.Context) {
	n.mu.Lock()
	total := len(n.queue)
	gap := n.cfg.NotificationGap
	n.mu.Unlock()

	current := 0
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.processing = false
			n.mu.Unlock()
			return
		}
		entry := n.queue[0]
		n.queue = n.queue[1:]
		remaining := len(n.queue)
		n.mu.Unlock()

		current++
		n.emit(ctx, entry, remaining, total, current)

		if remaining > 0 {
			select {
			case <-ctx.Done():
				n.mu.Lock()
				n.processing = false
				n.mu.Unlock()
				return
			case <-time.After(gap):
			}
		}
	}
}

func (n *Notifier) emit(ctx context.Context, entry queueEntry, remaining, total, current int) {
	now := n.now()
	notif := model.Notification{
		ID:      uuid.New(),
		Type:    entry.kind,
		Message: entry.message + ": " + entry.event.Title,
		Payload: model.EventAlert{
			Event:         entry.event,
			Timestamp:     now,
			Remaining:     remaining,
			TotalInQueue:  total,
			CurrentNumber: current,
		},
		CreatedAt: now,
	}

	if err := n.out.Deliver(ctx, notif); err != nil {
		zlog.Logger.Error().Err(err).Str("type", notif.Type).Msg("failed to deliver notification")
	}
}

// relevantTo reports whether the employee created the event or appears in
// its attendee list.
func relevantTo(ev model.CalendarEvent, employeeID string) bool {
	if employeeID == "" {
		return false
	}
	if ev.CreatorID == employeeID {
		return true
	}
	for _, id := range ev.Attendees {
		if id == employeeID {
			return true
		}
	}
	return false
}

// eventStart resolves (date, startTime) into a concrete instant in the
// reference timezone. An invalid date falls back to today; an invalid time
// disqualifies the event.
func eventStart(ev model.CalendarEvent, now time.Time) (time.Time, bool) {
	day, err := time.ParseInLocation("2006-01-02", ev.Date, model.ReferenceZone)
	if err != nil {
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, model.ReferenceZone)
	}

	hour, minute, ok := parseClock(ev.StartTime)
	if !ok {
		return time.Time{}, false
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, model.ReferenceZone), true
}

func parseClock(value string) (hour, minute int, ok bool) {
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "03:04 PM"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	return 0, 0, false
}
