package model

import "time"

// ReferenceZone is the timezone all schedule arithmetic happens in
// (IST, UTC+5:30).
var ReferenceZone = time.FixedZone("IST", 5*3600+30*60)

// AttendanceKind identifies one of the four daily attendance checkpoints.
type AttendanceKind string

const (
	MorningIn    AttendanceKind = "MORNING_IN"
	MorningOut   AttendanceKind = "MORNING_OUT"
	AfternoonIn  AttendanceKind = "AFTERNOON_IN"
	AfternoonOut AttendanceKind = "AFTERNOON_OUT"
)

// ScheduleSlot is a fixed daily attendance checkpoint. Times are HH:MM in
// the reference timezone (IST, UTC+5:30).
type ScheduleSlot struct {
	Time    string         `json:"time"`
	Kind    AttendanceKind `json:"kind"`
	Message string         `json:"message"`
}

var attendanceSchedule = []ScheduleSlot{
	{Time: "09:40", Kind: MorningIn, Message: "Time to mark your morning check-in."},
	{Time: "13:00", Kind: MorningOut, Message: "Time to mark your morning check-out before lunch."},
	{Time: "13:45", Kind: AfternoonIn, Message: "Time to mark your afternoon check-in."},
	{Time: "18:15", Kind: AfternoonOut, Message: "Time to mark your check-out for the day."},
}

// AttendanceSchedule returns a copy of the fixed daily checkpoint table.
func AttendanceSchedule() []ScheduleSlot {
	out := make([]ScheduleSlot, len(attendanceSchedule))
	copy(out, attendanceSchedule)
	return out
}
