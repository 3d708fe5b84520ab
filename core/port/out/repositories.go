package out

import (
	"context"
	"time"

	"calsync_server/core/domain"

	"github.com/google/uuid"
)

// =============================================================================
// Connection Repository
// =============================================================================

// ConnectionRepository persists per-connection credentials and cursors.
// Tokens are encrypted before they hit the database.
type ConnectionRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Connection, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Connection, error)

	// ListSyncEnabled is the durable registry the scheduler iterates;
	// there is no in-process list of active connections.
	ListSyncEnabled(ctx context.Context) ([]*domain.Connection, error)

	GetEnabledForUser(ctx context.Context, userID uuid.UUID) (*domain.Connection, error)

	// GetByCalendar resolves the (user, provider, remote calendar) triple,
	// which is unique among enabled connections.
	GetByCalendar(ctx context.Context, userID uuid.UUID, provider domain.Provider, calendarID string) (*domain.Connection, error)

	Create(ctx context.Context, conn *domain.Connection) error
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error

	// UpdateCursor commits the cursor once per completed run and stamps
	// the last successful sync time.
	UpdateCursor(ctx context.Context, id int64, cursor string, syncedAt time.Time) error
	ClearCursor(ctx context.Context, id int64) error

	SetSyncEnabled(ctx context.Context, id int64, enabled bool) error

	// Delete removes the connection row. Mapping and run-log cascade is
	// the owning service's responsibility.
	Delete(ctx context.Context, id int64) error
}

// =============================================================================
// Local Event Repository
// =============================================================================

// EventRepository is the local event store the sync engine and the
// reminder engine read and write.
type EventRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.CalendarEvent, error)

	// ListOverlapping returns events of the user whose [start, end)
	// interval intersects the given one.
	ListOverlapping(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.CalendarEvent, error)

	// ListStartingBetween returns events starting in [from, to], used by
	// the reminder scan.
	ListStartingBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.CalendarEvent, error)

	Create(ctx context.Context, event *domain.CalendarEvent) error
	Update(ctx context.Context, event *domain.CalendarEvent) error
	Delete(ctx context.Context, id int64) error
}

// =============================================================================
// Mapping Repository
// =============================================================================

// MappingRepository persists the local-id/remote-id correspondence.
type MappingRepository interface {
	GetByRemoteID(ctx context.Context, connectionID int64, remoteEventID string) (*domain.EventMapping, error)
	GetByLocalID(ctx context.Context, connectionID, localEventID int64) (*domain.EventMapping, error)

	// Upsert creates the mapping or refreshes its timestamps/status if the
	// (connection, local event) pair already exists, so a replayed
	// propagation cannot produce a second mapping.
	Upsert(ctx context.Context, m *domain.EventMapping) error

	Delete(ctx context.Context, id int64) error
	DeleteByConnection(ctx context.Context, connectionID int64) (int64, error)
	CountByConnection(ctx context.Context, connectionID int64) (int, error)
}

// =============================================================================
// Run Log Repository
// =============================================================================

// RunLogRepository stores append-only sync run records.
type RunLogRepository interface {
	Append(ctx context.Context, run *domain.SyncRunLog) error
	ListByConnection(ctx context.Context, connectionID int64, limit int) ([]*domain.SyncRunLog, error)
	DeleteByConnection(ctx context.Context, connectionID int64) (int64, error)
}

// =============================================================================
// Reminder Stores
// =============================================================================

// ReminderReceiptRepository is the reminder dedup store.
type ReminderReceiptRepository interface {
	Get(ctx context.Context, eventID int64, userID uuid.UUID) (*domain.ReminderReceipt, error)
	Upsert(ctx context.Context, receipt *domain.ReminderReceipt) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RecipientRegistry lists users registered for reminder scans, backed by
// the durable store.
type RecipientRegistry interface {
	ListEnabled(ctx context.Context) ([]*domain.ReminderRecipient, error)
	Unregister(ctx context.Context, userID uuid.UUID) error
}
