package model

// Calendar event statuses that suppress notifications.
const (
	EventStatusCompleted = "Completed"
	EventStatusCancelled = "Cancelled"
)

// CalendarEvent is the normalized form of an event returned by the calendar
// API. Normalization of the aliased raw fields happens once at the client
// boundary; everything past that point reads these fields only.
type CalendarEvent struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Date      string   `json:"date"`       // YYYY-MM-DD
	StartTime string   `json:"start_time"` // HH:MM, 24h
	Status    string   `json:"status"`
	CreatorID string   `json:"creator_id"`
	Attendees []string `json:"attendees"`
}
