package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification types emitted by the background workers.
const (
	TypeWorkerStarted      = "WORKER_STARTED"
	TypeWorkerStopped      = "WORKER_STOPPED"
	TypeWorkerError        = "WORKER_ERROR"
	TypeAttendanceReminder = "ATTENDANCE_REMINDER"
	TypeUpcomingEvent      = "UPCOMING_EVENT"
	TypeStartEvent         = "START_EVENT"
	TypeMissedEvent        = "MISSED_EVENT"
)

// Notification is a single outbound message produced by a worker and
// delivered through the configured sinks.
type Notification struct {
	ID        uuid.UUID   `json:"id"`
	Type      string      `json:"type"`
	Message   string      `json:"message"`
	Payload   interface{} `json:"payload,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// AttendanceReminder is the payload of an ATTENDANCE_REMINDER notification.
type AttendanceReminder struct {
	AttendanceType string    `json:"attendanceType"`
	Message        string    `json:"message"`
	ScheduledTime  string    `json:"scheduledTime"`
	CurrentTime    string    `json:"currentTime"`
	Timestamp      time.Time `json:"timestamp"`
	DisplayTime    string    `json:"displayTime"`
	EmployeeName   string    `json:"employeeName"`
	EmployeeID     string    `json:"employeeId"`
}

// EventAlert is the payload of UPCOMING_EVENT, START_EVENT and MISSED_EVENT
// notifications. Remaining, TotalInQueue and CurrentNumber describe the
// position of the alert within the drain batch it was delivered from.
type EventAlert struct {
	Event         CalendarEvent `json:"event"`
	Timestamp     time.Time     `json:"timestamp"`
	Remaining     int           `json:"remaining"`
	TotalInQueue  int           `json:"totalInQueue"`
	CurrentNumber int           `json:"currentNumber"`
}

// WorkerStatus is the payload of WORKER_STARTED, WORKER_STOPPED and
// WORKER_ERROR notifications.
type WorkerStatus struct {
	Employee *EmployeeProfile `json:"employeeData,omitempty"`
	Schedule []ScheduleSlot   `json:"schedule,omitempty"`
	Error    string           `json:"error,omitempty"`
}
