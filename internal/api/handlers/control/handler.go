// Package control exposes the worker control plane over HTTP: starting and
// stopping the schedulers, adjusting intervals, queue and connection
// introspection, and room management.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/projectdesk/notify/internal/api/respond"
	"github.com/projectdesk/notify/internal/model"
	"github.com/projectdesk/notify/internal/repository/history"
	"github.com/projectdesk/notify/internal/socket"
	"github.com/projectdesk/notify/internal/worker/attendance"
	"github.com/projectdesk/notify/internal/worker/calendar"
)

type attendanceScheduler interface {
	Start(ctx context.Context, employeeID string, cfg attendance.Config) error
	Stop()
	UpdateInterval(interval time.Duration)
	Status() attendance.Status
}

type calendarNotifier interface {
	Start(ctx context.Context, employeeID string, cfg calendar.Config) error
	Stop()
	GetQueueStatus() calendar.QueueStatus
}

type connectionManager interface {
	Connect() socket.Conn
	Disconnect()
	ForceReconnect() socket.Conn
	State() socket.State
	ReconnectAttempts() int
	Rooms() []string
	JoinRoom(descriptor interface{})
	LeaveRoom(descriptor interface{})
	JoinCalendarRoom()
	LeaveCalendarRoom()
}

type historyLister interface {
	ListRecent(ctx context.Context, limit int) ([]model.Notification, error)
}

// Handler handles HTTP requests for the worker control plane.
type Handler struct {
	attendance attendanceScheduler
	calendar   calendarNotifier
	socket     connectionManager
	history    historyLister
	validator  *validator.Validate
}

// NewHandler creates a new Handler. history may be nil when no database is
// configured.
func NewHandler(
	a attendanceScheduler,
	c calendarNotifier,
	s connectionManager,
	h historyLister,
	v *validator.Validate,
) *Handler {
	return &Handler{attendance: a, calendar: c, socket: s, history: h, validator: v}
}

// StartWorkerRequest is the JSON body for starting either worker.
type StartWorkerRequest struct {
	EmployeeID        string `json:"employee_id" validate:"required"`
	CheckIntervalMS   int    `json:"check_interval_ms" validate:"gte=0"`
	FetchIntervalMS   int    `json:"fetch_interval_ms" validate:"gte=0"`
	NotificationGapMS int    `json:"notification_gap_ms" validate:"gte=0"`
}

// UpdateIntervalRequest is the JSON body for changing the attendance poll
// period.
type UpdateIntervalRequest struct {
	IntervalMS int `json:"interval_ms" validate:"required,gt=0"`
}

// RoomRequest carries a task room descriptor.
type RoomRequest struct {
	Room map[string]interface{} `json:"room" validate:"required"`
}

func (h *Handler) decode(c *ginext.Context, dst interface{}) error {
	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body")
	}
	if err := h.validator.Struct(dst); err != nil {
		return fmt.Errorf("validation error: %s", err.Error())
	}
	return nil
}

// StartAttendance starts an attendance scheduler session.
func (h *Handler) StartAttendance(c *ginext.Context) {
	var req StartWorkerRequest
	if err := h.decode(c, &req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("bad attendance start request")
		respond.Fail(c.Writer, http.StatusBadRequest, err)
		return
	}

	cfg := attendance.Config{
		CheckInterval: time.Duration(req.CheckIntervalMS) * time.Millisecond,
	}

	if err := h.attendance.Start(c.Request.Context(), req.EmployeeID, cfg); err != nil {
		zlog.Logger.Error().Err(err).Str("employee", req.EmployeeID).Msg("failed to start attendance scheduler")
		respond.Fail(c.Writer, http.StatusBadGateway, fmt.Errorf("failed to start attendance scheduler: %s", err))
		return
	}

	respond.OK(c.Writer, h.attendance.Status())
}

// StopAttendance stops the attendance scheduler.
func (h *Handler) StopAttendance(c *ginext.Context) {
	h.attendance.Stop()
	respond.OK(c.Writer, "attendance scheduler stopped")
}

// UpdateAttendanceInterval changes the attendance poll period.
func (h *Handler) UpdateAttendanceInterval(c *ginext.Context) {
	var req UpdateIntervalRequest
	if err := h.decode(c, &req); err != nil {
		respond.Fail(c.Writer, http.StatusBadRequest, err)
		return
	}

	h.attendance.UpdateInterval(time.Duration(req.IntervalMS) * time.Millisecond)
	respond.OK(c.Writer, h.attendance.Status())
}

// AttendanceStatus reports the attendance scheduler state.
func (h *Handler) AttendanceStatus(c *ginext.Context) {
	respond.OK(c.Writer, h.attendance.Status())
}

// StartCalendar starts a calendar notifier session.
func (h *Handler) StartCalendar(c *ginext.Context) {
	var req StartWorkerRequest
	if err := h.decode(c, &req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("bad calendar start request")
		respond.Fail(c.Writer, http.StatusBadRequest, err)
		return
	}

	cfg := calendar.Config{
		FetchInterval:   time.Duration(req.FetchIntervalMS) * time.Millisecond,
		NotificationGap: time.Duration(req.NotificationGapMS) * time.Millisecond,
	}

	if err := h.calendar.Start(c.Request.Context(), req.EmployeeID, cfg); err != nil {
		zlog.Logger.Error().Err(err).Str("employee", req.EmployeeID).Msg("failed to start calendar notifier")
		respond.Fail(c.Writer, http.StatusBadRequest, err)
		return
	}

	respond.OK(c.Writer, "calendar notifier started")
}

// StopCalendar stops the calendar notifier.
func (h *Handler) StopCalendar(c *ginext.Context) {
	h.calendar.Stop()
	respond.OK(c.Writer, "calendar notifier stopped")
}

// CalendarQueue reports the pending notification queue.
func (h *Handler) CalendarQueue(c *ginext.Context) {
	respond.OK(c.Writer, h.calendar.GetQueueStatus())
}

// SocketStatus reports the connection manager state.
func (h *Handler) SocketStatus(c *ginext.Context) {
	respond.OK(c.Writer, map[string]interface{}{
		"state":              h.socket.State(),
		"reconnect_attempts": h.socket.ReconnectAttempts(),
		"rooms":              h.socket.Rooms(),
	})
}

// SocketConnect kicks off a connection.
func (h *Handler) SocketConnect(c *ginext.Context) {
	h.socket.Connect()
	respond.OK(c.Writer, h.socket.State())
}

// SocketDisconnect durably disconnects.
func (h *Handler) SocketDisconnect(c *ginext.Context) {
	h.socket.Disconnect()
	respond.OK(c.Writer, h.socket.State())
}

// SocketReconnect forces a clean reconnect.
func (h *Handler) SocketReconnect(c *ginext.Context) {
	h.socket.ForceReconnect()
	respond.OK(c.Writer, h.socket.State())
}

// JoinRoom subscribes to a task room.
func (h *Handler) JoinRoom(c *ginext.Context) {
	var req RoomRequest
	if err := h.decode(c, &req); err != nil {
		respond.Fail(c.Writer, http.StatusBadRequest, err)
		return
	}

	h.socket.JoinRoom(req.Room)
	respond.OK(c.Writer, h.socket.Rooms())
}

// LeaveRoom unsubscribes from a task room.
func (h *Handler) LeaveRoom(c *ginext.Context) {
	var req RoomRequest
	if err := h.decode(c, &req); err != nil {
		respond.Fail(c.Writer, http.StatusBadRequest, err)
		return
	}

	h.socket.LeaveRoom(req.Room)
	respond.OK(c.Writer, h.socket.Rooms())
}

// JoinCalendarRoom marks the calendar room joined.
func (h *Handler) JoinCalendarRoom(c *ginext.Context) {
	h.socket.JoinCalendarRoom()
	respond.OK(c.Writer, "calendar room joined")
}

// LeaveCalendarRoom marks the calendar room left.
func (h *Handler) LeaveCalendarRoom(c *ginext.Context) {
	h.socket.LeaveCalendarRoom()
	respond.OK(c.Writer, "calendar room left")
}

// History lists recently emitted notifications.
func (h *Handler) History(c *ginext.Context) {
	if h.history == nil {
		respond.Fail(c.Writer, http.StatusNotImplemented, fmt.Errorf("notification history is not configured"))
		return
	}

	notifications, err := h.history.ListRecent(c.Request.Context(), 100)
	if err != nil {
		if errors.Is(err, history.ErrNoNotificationsFound) {
			respond.OK(c.Writer, []model.Notification{})
			return
		}

		zlog.Logger.Error().Err(err).Msg("failed to list notifications")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, notifications)
}
