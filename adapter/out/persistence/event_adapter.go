package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EventAdapter implements out.EventRepository using PostgreSQL.
type EventAdapter struct {
	db *sqlx.DB
}

var _ out.EventRepository = (*EventAdapter)(nil)

// NewEventAdapter creates a new EventAdapter.
func NewEventAdapter(db *sqlx.DB) *EventAdapter {
	return &EventAdapter{db: db}
}

// eventRow represents the database row for a local calendar event.
type eventRow struct {
	ID          int64          `db:"id"`
	UserID      string         `db:"user_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Location    sql.NullString `db:"location"`
	StartTime   time.Time      `db:"start_time"`
	EndTime     time.Time      `db:"end_time"`
	IsAllDay    bool           `db:"is_all_day"`
	Timezone    string         `db:"timezone"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *eventRow) toEntity() (*domain.CalendarEvent, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, err
	}

	event := &domain.CalendarEvent{
		ID:        r.ID,
		UserID:    userID,
		Title:     r.Title,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		IsAllDay:  r.IsAllDay,
		Timezone:  r.Timezone,
		Status:    domain.EventStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Description.Valid {
		event.Description = &r.Description.String
	}
	if r.Location.Valid {
		event.Location = &r.Location.String
	}
	return event, nil
}

// GetByID returns one event, or (nil, nil) when absent.
func (a *EventAdapter) GetByID(ctx context.Context, id int64) (*domain.CalendarEvent, error) {
	query := `SELECT * FROM calendar_events WHERE id = $1`

	var row eventRow
	err := a.db.QueryRowxContext(ctx, query, id).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity()
}

// ListOverlapping returns the user's events whose [start_time, end_time)
// interval intersects [start, end). The comparison is strict on both
// sides, so back-to-back events do not match.
func (a *EventAdapter) ListOverlapping(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.CalendarEvent, error) {
	query := `SELECT * FROM calendar_events
	          WHERE user_id = $1 AND start_time < $3 AND end_time > $2
	          ORDER BY start_time`

	var rows []eventRow
	if err := a.db.SelectContext(ctx, &rows, query, userID.String(), start, end); err != nil {
		return nil, err
	}
	return toEventEntities(rows)
}

// ListStartingBetween returns events starting in [from, to] inclusive.
func (a *EventAdapter) ListStartingBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.CalendarEvent, error) {
	query := `SELECT * FROM calendar_events
	          WHERE user_id = $1 AND start_time >= $2 AND start_time <= $3
	          ORDER BY start_time`

	var rows []eventRow
	if err := a.db.SelectContext(ctx, &rows, query, userID.String(), from, to); err != nil {
		return nil, err
	}
	return toEventEntities(rows)
}

// Create inserts a new event and fills in the generated id and timestamps.
func (a *EventAdapter) Create(ctx context.Context, event *domain.CalendarEvent) error {
	query := `INSERT INTO calendar_events
	          (user_id, title, description, location, start_time, end_time,
	           is_all_day, timezone, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	          RETURNING id, created_at, updated_at`

	return a.db.QueryRowxContext(ctx, query,
		event.UserID.String(),
		event.Title,
		nullString(event.Description),
		nullString(event.Location),
		event.StartTime,
		event.EndTime,
		event.IsAllDay,
		event.Timezone,
		string(event.Status),
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
}

// Update rewrites the editable fields and refreshes updated_at.
func (a *EventAdapter) Update(ctx context.Context, event *domain.CalendarEvent) error {
	query := `UPDATE calendar_events
	          SET title = $2, description = $3, location = $4, start_time = $5,
	              end_time = $6, is_all_day = $7, timezone = $8, status = $9,
	              updated_at = NOW()
	          WHERE id = $1
	          RETURNING updated_at`

	err := a.db.QueryRowxContext(ctx, query,
		event.ID,
		event.Title,
		nullString(event.Description),
		nullString(event.Location),
		event.StartTime,
		event.EndTime,
		event.IsAllDay,
		event.Timezone,
		string(event.Status),
	).Scan(&event.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes the event row.
func (a *EventAdapter) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM calendar_events WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func toEventEntities(rows []eventRow) ([]*domain.CalendarEvent, error) {
	events := make([]*domain.CalendarEvent, 0, len(rows))
	for i := range rows {
		event, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
