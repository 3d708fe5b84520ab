package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reminder lead-time window. A 1-minute poll loop plus scheduling jitter
// means the scan will not land on an exact 30-minute mark; the window
// guarantees each qualifying event is caught by at least one scan.
const (
	ReminderWindowMin = 28 * time.Minute
	ReminderWindowMax = 32 * time.Minute
)

// InReminderWindow reports whether an event starting at eventStart is due
// for its reminder at scan time now.
func InReminderWindow(eventStart, now time.Time) bool {
	until := eventStart.Sub(now)
	return until >= ReminderWindowMin && until <= ReminderWindowMax
}

// ReminderReceipt guarantees at-most-once notification per (event, user).
// Absence of a receipt is the signal "not yet sent"; insertion is an
// upsert so a retried send cannot create a duplicate.
type ReminderReceipt struct {
	EventID    int64     `json:"event_id"`
	UserID     uuid.UUID `json:"user_id"`
	ChannelID  string    `json:"channel_id"`
	EventStart time.Time `json:"event_start"`
	SentAt     time.Time `json:"sent_at"`
}

// ReminderRecipient is one user registered for reminder scans, read from
// the durable registry rather than any in-process list.
type ReminderRecipient struct {
	UserID    uuid.UUID `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	Enabled   bool      `json:"enabled"`
}
