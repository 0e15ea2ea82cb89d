package socket

import "errors"

// Disconnect reasons reported by the transport. Only drop reasons trigger
// reconnection; a client-initiated close never does.
const (
	ReasonClientDisconnect = "client disconnect"
	ReasonServerDisconnect = "server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
	ReasonNetworkOffline   = "network offline"
)

// Outbound event names understood by the real-time server.
const (
	EventPing              = "ping"
	EventJoinCalendarRoom  = "join_calendar_room"
	EventLeaveCalendarRoom = "leave_calendar_room"
	EventJoinTaskRoom      = "join_task_room"
	EventLeaveTaskRoom     = "leave_task_room"
)

var ErrNotConnected = errors.New("socket not connected")

// Conn is one live transport connection.
type Conn interface {
	// Emit sends a named event with an optional payload.
	Emit(event string, payload interface{}) error
	// Connected reports whether the transport link is currently up.
	Connected() bool
	// Close tears the connection down. The transport reports the resulting
	// disconnect with ReasonClientDisconnect.
	Close() error
}

// Handlers receive transport-level connection events. The transport invokes
// them from its own goroutines.
type Handlers struct {
	OnConnect      func()
	OnDisconnect   func(reason string)
	OnConnectError func(err error)
}

// Transport dials connections. Dial returns a handle immediately; the
// connection is established in the background and reported through the
// handlers, so a returned Conn may still be mid-connect.
type Transport interface {
	Dial(url string, h Handlers) (Conn, error)
}

func isDropReason(reason string) bool {
	switch reason {
	case ReasonServerDisconnect, ReasonTransportClose, ReasonTransportError, ReasonPingTimeout:
		return true
	}
	return false
}
