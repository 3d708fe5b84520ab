package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusTentative EventStatus = "tentative"
	EventStatusCancelled EventStatus = "cancelled"
)

// CalendarEvent is the locally-owned event record. UpdatedAt doubles as
// the last-modified timestamp the sync engine compares against.
type CalendarEvent struct {
	ID     int64     `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsAllDay  bool      `json:"is_all_day"`
	Timezone  string    `json:"timezone"`

	Status EventStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Overlaps reports whether this event's half-open interval [start, end)
// intersects [otherStart, otherEnd). Touching intervals do not overlap.
func (e *CalendarEvent) Overlaps(otherStart, otherEnd time.Time) bool {
	start := e.StartTime
	if otherStart.After(start) {
		start = otherStart
	}
	end := e.EndTime
	if otherEnd.Before(end) {
		end = otherEnd
	}
	return start.Before(end)
}
