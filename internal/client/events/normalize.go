package events

import (
	"encoding/json"
	"strconv"

	"github.com/projectdesk/notify/internal/model"
)

// Normalize maps a raw calendar API record onto a CalendarEvent, resolving
// the aliased field names the API emits depending on which screen created
// the event. Attendee lists arrive either as a literal array or as a
// JSON-encoded string; a string that fails to parse yields no attendees.
func Normalize(raw map[string]interface{}) model.CalendarEvent {
	return model.CalendarEvent{
		ID:        stringField(raw, "id", "_id", "event_id", "eventId"),
		Title:     stringField(raw, "title", "name", "event_title", "eventTitle"),
		Date:      stringField(raw, "date", "event_date", "eventDate"),
		StartTime: stringField(raw, "start_time", "startTime", "time", "event_time"),
		Status:    stringField(raw, "status", "event_status", "eventStatus"),
		CreatorID: stringField(raw, "creator_id", "created_by", "creatorId", "createdBy", "userId"),
		Attendees: attendeeList(raw, "attendees", "attendee_ids", "participants"),
	}
}

// stringField returns the first present alias rendered as a string.
func stringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func attendeeList(raw map[string]interface{}, keys ...string) []string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}

		switch t := v.(type) {
		case []interface{}:
			return attendeeIDs(t)
		case string:
			var parsed []interface{}
			if err := json.Unmarshal([]byte(t), &parsed); err != nil {
				return nil
			}
			return attendeeIDs(parsed)
		}
	}
	return nil
}

// attendeeIDs extracts ids from entries that are either bare identifiers or
// objects carrying an identifier field.
func attendeeIDs(entries []interface{}) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch t := entry.(type) {
		case map[string]interface{}:
			if id := stringField(t, "employeeId", "employee_id", "id"); id != "" {
				ids = append(ids, id)
			}
		default:
			if id := asString(entry); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
