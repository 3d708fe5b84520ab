package domain

import "time"

type MappingStatus string

const (
	MappingSynced     MappingStatus = "synced"
	MappingConflicted MappingStatus = "conflicted"
)

// EventMapping is the persisted correspondence between one local event
// and one remote event within a connection. Unique on
// (connection_id, local_event_id) and on (connection_id, remote_event_id).
type EventMapping struct {
	ID            int64         `json:"id"`
	ConnectionID  int64         `json:"connection_id"`
	LocalEventID  int64         `json:"local_event_id"`
	RemoteEventID string        `json:"remote_event_id"`
	LastSyncedAt  time.Time     `json:"last_synced_at"`

	// Last-known modification timestamps on each side, recorded at the
	// moment of the last successful propagation.
	LocalModifiedAt  time.Time `json:"local_modified_at"`
	RemoteModifiedAt time.Time `json:"remote_modified_at"`

	Status       MappingStatus `json:"status"`
	ConflictNote *string       `json:"conflict_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemoteIsNewer reports whether an incoming remote modification timestamp
// is strictly newer than the last one this mapping propagated. Equal
// timestamps mean the local copy is already current.
func (m *EventMapping) RemoteIsNewer(remoteModified time.Time) bool {
	return remoteModified.After(m.RemoteModifiedAt)
}
