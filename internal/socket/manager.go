// Package socket maintains the persistent real-time connection to the
// dashboard server: automatic reconnection with capped exponential backoff,
// a liveness heartbeat, and room subscriptions that survive reconnects.
package socket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"
)

// State is the connection state observable through OnConnectionChange.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateErrored      State = "errored"
)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	URL               string
	HeartbeatInterval time.Duration // liveness ping period
	SettleDelay       time.Duration // wait after connect before re-joining rooms
	ReconnectBase     time.Duration // backoff base and drop-reconnect delay
	ReconnectMax      time.Duration // backoff cap
}

func (o *Options) defaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 20 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
}

// Listener observes connection state transitions.
type Listener func(state State, reason string)

// Manager owns the single real-time connection for the process. All
// mutation goes through its methods; callers never touch the transport
// directly.
type Manager struct {
	transport Transport
	opts      Options

	mu          sync.Mutex
	state       State
	conn        Conn
	initialized bool
	connecting  bool
	attempts    int
	intentional bool
	unloading   bool

	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
	settleTimer    *time.Timer

	roomsToRejoin map[string]struct{}
	pendingRooms  map[string]struct{}
	calendarRoom  bool

	listeners  map[int]Listener
	nextListID int
}

// NewManager creates a disconnected manager. One instance per process is
// expected; construct it in main and pass it by handle.
func NewManager(transport Transport, opts Options) *Manager {
	opts.defaults()
	return &Manager{
		transport:     transport,
		opts:          opts,
		state:         StateDisconnected,
		roomsToRejoin: make(map[string]struct{}),
		pendingRooms:  make(map[string]struct{}),
		listeners:     make(map[int]Listener),
	}
}

// EndpointFromAPIBase derives the real-time endpoint from the REST API base
// URL by stripping the API path suffix and switching to the ws scheme.
func EndpointFromAPIBase(base string) string {
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/api")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/socket"
}

// Connect returns the live connection, the in-flight one if a connect is
// already underway, or starts a fresh connect.
func (m *Manager) Connect() Conn {
	m.mu.Lock()
	if m.conn != nil && m.conn.Connected() {
		conn := m.conn
		m.mu.Unlock()
		return conn
	}
	if m.connecting {
		conn := m.conn
		m.mu.Unlock()
		return conn
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.connecting = true
	m.state = StateConnecting
	listeners, suppressed := m.snapshotListenersLocked()
	url := m.opts.URL
	m.mu.Unlock()

	dispatch(listeners, StateConnecting, "", suppressed)

	conn, err := m.transport.Dial(url, Handlers{
		OnConnect:      m.handleConnect,
		OnDisconnect:   m.handleDisconnect,
		OnConnectError: m.handleConnectError,
	})
	if err != nil {
		m.handleConnectError(err)
		return nil
	}

	m.mu.Lock()
	m.conn = conn
	m.initialized = true
	m.mu.Unlock()

	return conn
}

// GetSocket returns the current handle, connecting or force-reconnecting
// first if the connection is missing or stale. The returned handle may be
// mid-connect.
func (m *Manager) GetSocket() Conn {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return m.Connect()
	}

	conn := m.conn
	stale := (conn == nil || !conn.Connected()) && !m.connecting && !m.intentional
	m.mu.Unlock()

	if stale {
		return m.ForceReconnect()
	}
	return conn
}

// ForceReconnect tears down whatever exists and starts over from a clean
// slate, clearing the intentional and unload flags.
func (m *Manager) ForceReconnect() Conn {
	m.mu.Lock()
	m.intentional = false
	m.unloading = false
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.stopHeartbeatLocked()
	m.stopReconnectTimerLocked()
	m.stopSettleTimerLocked()
	m.attempts = 0
	m.connecting = false
	m.initialized = false
	m.mu.Unlock()

	return m.Connect()
}

// Disconnect durably stops the connection and all reconnection. Room
// subscriptions are cleared; only a later explicit Connect/ForceReconnect
// revives the manager.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	m.stopHeartbeatLocked()
	m.stopReconnectTimerLocked()
	m.stopSettleTimerLocked()
	m.roomsToRejoin = make(map[string]struct{})
	m.pendingRooms = make(map[string]struct{})
	m.calendarRoom = false
	conn := m.conn
	m.conn = nil
	m.initialized = false
	m.connecting = false
	m.state = StateDisconnected
	listeners, suppressed := m.snapshotListenersLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	dispatch(listeners, StateDisconnected, ReasonClientDisconnect, suppressed)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnConnectionChange registers a listener and returns its unsubscribe
// function. A listener registered while connected is invoked immediately.
func (m *Manager) OnConnectionChange(l Listener) func() {
	m.mu.Lock()
	id := m.nextListID
	m.nextListID++
	m.listeners[id] = l
	connected := m.conn != nil && m.conn.Connected()
	suppressed := m.unloading
	m.mu.Unlock()

	if connected && !suppressed {
		invoke(l, StateConnected, "")
	}

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// JoinCalendarRoom records the calendar-room intent and joins immediately if
// connected; otherwise the reconnect handler joins once a connection is up.
func (m *Manager) JoinCalendarRoom() {
	m.mu.Lock()
	m.calendarRoom = true
	conn := m.conn
	connected := conn != nil && conn.Connected()
	m.mu.Unlock()

	if connected {
		m.emit(conn, EventJoinCalendarRoom, nil)
	}
}

// LeaveCalendarRoom clears the calendar-room intent.
func (m *Manager) LeaveCalendarRoom() {
	m.mu.Lock()
	m.calendarRoom = false
	conn := m.conn
	connected := conn != nil && conn.Connected()
	m.mu.Unlock()

	if connected {
		m.emit(conn, EventLeaveCalendarRoom, nil)
	}
}

// JoinRoom subscribes to a task room. The canonicalized descriptor goes into
// the durable set; while disconnected it is additionally staged as a one-shot
// pending join and a connect is kicked off opportunistically.
func (m *Manager) JoinRoom(descriptor interface{}) {
	key, ok := canonicalKey(descriptor)
	if !ok {
		zlog.Logger.Warn().Msg("unmarshalable room descriptor, ignoring join")
		return
	}

	m.mu.Lock()
	m.roomsToRejoin[key] = struct{}{}
	conn := m.conn
	connected := conn != nil && conn.Connected()
	if !connected {
		m.pendingRooms[key] = struct{}{}
	}
	m.mu.Unlock()

	if connected {
		m.emit(conn, EventJoinTaskRoom, json.RawMessage(key))
	} else {
		m.Connect()
	}
}

// LeaveRoom drops a task room from both subscription sets and, if connected,
// emits the leave.
func (m *Manager) LeaveRoom(descriptor interface{}) {
	key, ok := canonicalKey(descriptor)
	if !ok {
		return
	}

	m.mu.Lock()
	delete(m.roomsToRejoin, key)
	delete(m.pendingRooms, key)
	conn := m.conn
	connected := conn != nil && conn.Connected()
	m.mu.Unlock()

	if connected {
		m.emit(conn, EventLeaveTaskRoom, json.RawMessage(key))
	}
}

// Rooms returns the durable room keys, for introspection.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.roomsToRejoin))
	for key := range m.roomsToRejoin {
		keys = append(keys, key)
	}
	return keys
}

// --- transport event handlers ---

func (m *Manager) handleConnect() {
	m.mu.Lock()
	m.connecting = false
	m.attempts = 0
	m.stopReconnectTimerLocked()
	m.state = StateConnected
	m.startHeartbeatLocked()
	m.stopSettleTimerLocked()
	// Rooms are re-applied only after the connection has settled.
	m.settleTimer = time.AfterFunc(m.opts.SettleDelay, m.rejoinRooms)
	listeners, suppressed := m.snapshotListenersLocked()
	m.mu.Unlock()

	dispatch(listeners, StateConnected, "", suppressed)
}

func (m *Manager) handleDisconnect(reason string) {
	m.mu.Lock()
	m.stopHeartbeatLocked()
	m.connecting = false

	intentional := m.intentional || m.unloading || reason == ReasonClientDisconnect

	var state State
	if !intentional && isDropReason(reason) {
		state = StateReconnecting
		m.scheduleReconnectLocked(m.opts.ReconnectBase)
	} else {
		state = StateDisconnected
	}
	m.state = state
	listeners, suppressed := m.snapshotListenersLocked()
	m.mu.Unlock()

	dispatch(listeners, state, reason, suppressed)
}

func (m *Manager) handleConnectError(err error) {
	m.mu.Lock()
	m.connecting = false
	m.attempts++
	delay := backoffDelay(m.attempts, m.opts.ReconnectBase, m.opts.ReconnectMax)
	m.state = StateErrored
	listeners, suppressed := m.snapshotListenersLocked()
	scheduled := m.scheduleReconnectLocked(delay)
	m.mu.Unlock()

	zlog.Logger.Warn().Err(err).Int("attempt", m.ReconnectAttempts()).Dur("next_in", delay).Msg("socket connect error")
	dispatch(listeners, StateErrored, err.Error(), suppressed)

	if scheduled {
		m.mu.Lock()
		m.state = StateReconnecting
		m.mu.Unlock()
	}
}

// ReconnectAttempts reports consecutive failed connect attempts.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// --- host lifecycle integration ---

// HostLifecycle is the injected capability delivering host environment
// transitions (tab/page lifecycle, network availability). It keeps the
// manager portable to non-browser hosts and to tests.
type HostLifecycle interface {
	OnSuspend(func())
	OnResume(func())
	OnOnline(func())
	OnOffline(func())
}

// BindLifecycle wires the manager's reactions to host transitions.
func (m *Manager) BindLifecycle(h HostLifecycle) {
	h.OnSuspend(m.handleSuspend)
	h.OnResume(m.handleResume)
	h.OnOnline(m.handleOnline)
	h.OnOffline(m.handleOffline)
}

// handleSuspend marks the host as unloading and stops all timers. The
// transport is left for the host to tear down.
func (m *Manager) handleSuspend() {
	m.mu.Lock()
	m.unloading = true
	m.intentional = true
	m.stopHeartbeatLocked()
	m.stopReconnectTimerLocked()
	m.stopSettleTimerLocked()
	m.mu.Unlock()
}

func (m *Manager) handleResume() {
	m.mu.Lock()
	connected := m.conn != nil && m.conn.Connected()
	connecting := m.connecting
	m.mu.Unlock()

	if !connected && !connecting {
		m.ForceReconnect()
	}
}

func (m *Manager) handleOnline() {
	m.mu.Lock()
	connected := m.conn != nil && m.conn.Connected()
	m.mu.Unlock()

	if !connected {
		m.ForceReconnect()
	}
}

// handleOffline notifies observers without touching transport state; the
// transport's own disconnect event follows if the link actually drops.
func (m *Manager) handleOffline() {
	m.mu.Lock()
	listeners, suppressed := m.snapshotListenersLocked()
	m.mu.Unlock()

	dispatch(listeners, StateDisconnected, ReasonNetworkOffline, suppressed)
}

// --- internals (locked helpers assume m.mu is held) ---

func (m *Manager) scheduleReconnectLocked(delay time.Duration) bool {
	if m.intentional || m.unloading {
		m.stopReconnectTimerLocked()
		return false
	}

	m.stopReconnectTimerLocked()
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	return true
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.intentional || m.unloading {
		m.mu.Unlock()
		return
	}
	if m.conn != nil && m.conn.Connected() {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.Connect()
}

func (m *Manager) startHeartbeatLocked() {
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	go m.heartbeat(stop, m.opts.HeartbeatInterval)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// heartbeat pings periodically and doubles as a dead-connection detector:
// if the transport reports not-connected at ping time, the heartbeat stops
// itself and schedules a reconnect.
func (m *Manager) heartbeat(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			conn := m.conn
			alive := conn != nil && conn.Connected()
			if !alive {
				if m.heartbeatStop == stop {
					m.heartbeatStop = nil
				}
				m.scheduleReconnectLocked(m.opts.ReconnectBase)
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()

			if err := conn.Emit(EventPing, nil); err != nil {
				zlog.Logger.Debug().Err(err).Msg("heartbeat ping failed")
			}
		}
	}
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) stopSettleTimerLocked() {
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
}

// rejoinRooms re-applies durable subscriptions, the calendar-room flag and
// any one-shot pending joins. Pending entries are consumed; durable entries
// persist until an explicit leave.
func (m *Manager) rejoinRooms() {
	m.mu.Lock()
	conn := m.conn
	if conn == nil || !conn.Connected() {
		m.mu.Unlock()
		return
	}

	durable := make([]string, 0, len(m.roomsToRejoin))
	for key := range m.roomsToRejoin {
		durable = append(durable, key)
	}

	pending := make([]string, 0, len(m.pendingRooms))
	for key := range m.pendingRooms {
		if _, ok := m.roomsToRejoin[key]; !ok {
			pending = append(pending, key)
		}
	}
	m.pendingRooms = make(map[string]struct{})

	calendar := m.calendarRoom
	m.mu.Unlock()

	for _, key := range durable {
		m.emit(conn, EventJoinTaskRoom, json.RawMessage(key))
	}
	if calendar {
		m.emit(conn, EventJoinCalendarRoom, nil)
	}
	for _, key := range pending {
		m.emit(conn, EventJoinTaskRoom, json.RawMessage(key))
	}
}

func (m *Manager) emit(conn Conn, event string, payload interface{}) {
	if err := conn.Emit(event, payload); err != nil {
		zlog.Logger.Debug().Err(err).Str("event", event).Msg("socket emit failed")
	}
}

func (m *Manager) snapshotListenersLocked() ([]Listener, bool) {
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	return listeners, m.unloading
}

// canonicalKey renders a room descriptor as canonical JSON (Go's marshaler
// sorts object keys). A descriptor that cannot be marshaled is skipped.
func canonicalKey(descriptor interface{}) (string, bool) {
	b, err := json.Marshal(descriptor)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func backoffDelay(attempts int, base, max time.Duration) time.Duration {
	delay := base << uint(attempts)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

// dispatch invokes listeners outside the manager lock. Delivery is
// suppressed entirely while the host is unloading.
func dispatch(listeners []Listener, state State, reason string, suppressed bool) {
	if suppressed {
		return
	}
	for _, l := range listeners {
		invoke(l, state, reason)
	}
}

// invoke isolates a panicking listener so the rest still get notified.
func invoke(l Listener, state State, reason string) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().Interface("panic", r).Msg("connection listener panicked")
		}
	}()
	l(state, reason)
}
