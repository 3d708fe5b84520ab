package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// MappingAdapter implements out.MappingRepository using PostgreSQL. The
// table carries unique constraints on (connection_id, local_event_id)
// and (connection_id, remote_event_id); the upsert leans on the former.
type MappingAdapter struct {
	db *sqlx.DB
}

var _ out.MappingRepository = (*MappingAdapter)(nil)

// NewMappingAdapter creates a new MappingAdapter.
func NewMappingAdapter(db *sqlx.DB) *MappingAdapter {
	return &MappingAdapter{db: db}
}

// mappingRow represents the database row for an event mapping.
type mappingRow struct {
	ID               int64          `db:"id"`
	ConnectionID     int64          `db:"connection_id"`
	LocalEventID     int64          `db:"local_event_id"`
	RemoteEventID    string         `db:"remote_event_id"`
	LastSyncedAt     time.Time      `db:"last_synced_at"`
	LocalModifiedAt  time.Time      `db:"local_modified_at"`
	RemoteModifiedAt time.Time      `db:"remote_modified_at"`
	Status           string         `db:"status"`
	ConflictNote     sql.NullString `db:"conflict_note"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *mappingRow) toEntity() *domain.EventMapping {
	m := &domain.EventMapping{
		ID:               r.ID,
		ConnectionID:     r.ConnectionID,
		LocalEventID:     r.LocalEventID,
		RemoteEventID:    r.RemoteEventID,
		LastSyncedAt:     r.LastSyncedAt,
		LocalModifiedAt:  r.LocalModifiedAt,
		RemoteModifiedAt: r.RemoteModifiedAt,
		Status:           domain.MappingStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ConflictNote.Valid {
		m.ConflictNote = &r.ConflictNote.String
	}
	return m
}

// GetByRemoteID resolves a mapping by remote event id, or (nil, nil).
func (a *MappingAdapter) GetByRemoteID(ctx context.Context, connectionID int64, remoteEventID string) (*domain.EventMapping, error) {
	query := `SELECT * FROM event_mappings WHERE connection_id = $1 AND remote_event_id = $2`

	var row mappingRow
	err := a.db.QueryRowxContext(ctx, query, connectionID, remoteEventID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity(), nil
}

// GetByLocalID resolves a mapping by local event id, or (nil, nil).
func (a *MappingAdapter) GetByLocalID(ctx context.Context, connectionID, localEventID int64) (*domain.EventMapping, error) {
	query := `SELECT * FROM event_mappings WHERE connection_id = $1 AND local_event_id = $2`

	var row mappingRow
	err := a.db.QueryRowxContext(ctx, query, connectionID, localEventID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity(), nil
}

// Upsert creates or refreshes the mapping keyed by
// (connection_id, local_event_id), so a replayed propagation lands on
// the existing row instead of creating a second one.
func (a *MappingAdapter) Upsert(ctx context.Context, m *domain.EventMapping) error {
	query := `INSERT INTO event_mappings
	          (connection_id, local_event_id, remote_event_id, last_synced_at,
	           local_modified_at, remote_modified_at, status, conflict_note,
	           created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	          ON CONFLICT (connection_id, local_event_id) DO UPDATE SET
	              remote_event_id    = EXCLUDED.remote_event_id,
	              last_synced_at     = EXCLUDED.last_synced_at,
	              local_modified_at  = EXCLUDED.local_modified_at,
	              remote_modified_at = EXCLUDED.remote_modified_at,
	              status             = EXCLUDED.status,
	              conflict_note      = EXCLUDED.conflict_note,
	              updated_at         = NOW()
	          RETURNING id, created_at, updated_at`

	return a.db.QueryRowxContext(ctx, query,
		m.ConnectionID,
		m.LocalEventID,
		m.RemoteEventID,
		m.LastSyncedAt,
		m.LocalModifiedAt,
		m.RemoteModifiedAt,
		string(m.Status),
		nullString(m.ConflictNote),
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// Delete removes one mapping row.
func (a *MappingAdapter) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM event_mappings WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteByConnection removes all mappings of a connection and returns
// how many rows went away.
func (a *MappingAdapter) DeleteByConnection(ctx context.Context, connectionID int64) (int64, error) {
	query := `DELETE FROM event_mappings WHERE connection_id = $1`

	result, err := a.db.ExecContext(ctx, query, connectionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByConnection returns the number of mappings for a connection.
func (a *MappingAdapter) CountByConnection(ctx context.Context, connectionID int64) (int, error) {
	query := `SELECT COUNT(*) FROM event_mappings WHERE connection_id = $1`

	var count int
	if err := a.db.GetContext(ctx, &count, query, connectionID); err != nil {
		return 0, err
	}
	return count, nil
}
