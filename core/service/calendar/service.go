// Package calendar implements the synchronization engine: local event
// CRUD with synchronous export, cursor-based import from the remote
// provider, and advisory conflict detection.
package calendar

import (
	"context"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
)

// EventResult is the outcome of a local mutation: the persisted event,
// advisory scheduling conflicts, and any export failure. ExportErr never
// rolls back the local write; the next import cycle reconciles.
type EventResult struct {
	Event     *domain.CalendarEvent   `json:"event"`
	Conflicts []*domain.CalendarEvent `json:"conflicts,omitempty"`
	ExportErr error                   `json:"-"`
}

// CreateEventInput carries the caller-editable fields of an event.
type CreateEventInput struct {
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Location    *string   `json:"location"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAllDay    bool      `json:"is_all_day"`
	Timezone    string    `json:"timezone"`
}

// EventService owns local event mutations. Writes land in the local
// store first; export to the remote calendar follows synchronously and
// its failure is surfaced as a warning, not an error.
type EventService struct {
	eventRepo out.EventRepository
	connRepo  out.ConnectionRepository
	conflicts *ConflictDetector
	sync      *SyncService
	now       func() time.Time
}

// NewEventService creates a new event service.
func NewEventService(
	eventRepo out.EventRepository,
	connRepo out.ConnectionRepository,
	conflicts *ConflictDetector,
	sync *SyncService,
) *EventService {
	return &EventService{
		eventRepo: eventRepo,
		connRepo:  connRepo,
		conflicts: conflicts,
		sync:      sync,
		now:       time.Now,
	}
}

// GetEvent returns one event owned by the user.
func (s *EventService) GetEvent(ctx context.Context, userID uuid.UUID, eventID int64) (*domain.CalendarEvent, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if event == nil || event.UserID != userID {
		return nil, apperr.NotFound("event")
	}
	return event, nil
}

// ListEvents returns the user's events intersecting [start, end).
func (s *EventService) ListEvents(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.CalendarEvent, error) {
	if !start.Before(end) {
		return nil, apperr.BadRequest("start must be before end")
	}
	events, err := s.eventRepo.ListOverlapping(ctx, userID, start, end)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return events, nil
}

// CreateEvent persists a new event and pushes it to the user's enabled
// connection. Conflicts are advisory: the event is created regardless.
func (s *EventService) CreateEvent(ctx context.Context, userID uuid.UUID, input *CreateEventInput) (*EventResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	event := &domain.CalendarEvent{
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		IsAllDay:    input.IsAllDay,
		Timezone:    input.Timezone,
		Status:      domain.EventStatusConfirmed,
	}

	conflicts := s.conflicts.FindConflicts(ctx, userID, input.StartTime, input.EndTime, nil)

	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, apperr.Internal(err)
	}

	result := &EventResult{Event: event, Conflicts: conflicts}
	result.ExportErr = s.exportToConnection(ctx, userID, func(conn *domain.Connection) error {
		return s.sync.ExportCreate(ctx, conn, event)
	})
	return result, nil
}

// UpdateEvent applies an edit to an existing event. The event itself is
// excluded from its own conflict check.
func (s *EventService) UpdateEvent(ctx context.Context, userID uuid.UUID, eventID int64, input *CreateEventInput) (*EventResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	event, err := s.GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	event.Title = input.Title
	event.Description = input.Description
	event.Location = input.Location
	event.StartTime = input.StartTime
	event.EndTime = input.EndTime
	event.IsAllDay = input.IsAllDay
	event.Timezone = input.Timezone

	conflicts := s.conflicts.FindConflicts(ctx, userID, input.StartTime, input.EndTime, &eventID)

	if err := s.eventRepo.Update(ctx, event); err != nil {
		return nil, apperr.Internal(err)
	}

	result := &EventResult{Event: event, Conflicts: conflicts}
	result.ExportErr = s.exportToConnection(ctx, userID, func(conn *domain.Connection) error {
		return s.sync.ExportUpdate(ctx, conn, event)
	})
	return result, nil
}

// DeleteEvent removes the local event, then its remote counterpart.
func (s *EventService) DeleteEvent(ctx context.Context, userID uuid.UUID, eventID int64) (*EventResult, error) {
	event, err := s.GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	// Remote delete first so the mapping can still be resolved by local
	// id. The remote call is idempotent, so a retry after a local-delete
	// failure is safe.
	result := &EventResult{Event: event}
	result.ExportErr = s.exportToConnection(ctx, userID, func(conn *domain.Connection) error {
		return s.sync.ExportDelete(ctx, conn, eventID)
	})

	if err := s.eventRepo.Delete(ctx, eventID); err != nil {
		return nil, apperr.Internal(err)
	}
	return result, nil
}

// CheckConflicts runs the advisory overlap query without mutating anything.
func (s *EventService) CheckConflicts(ctx context.Context, userID uuid.UUID, start, end time.Time, excludeEventID *int64) ([]*domain.CalendarEvent, error) {
	if !start.Before(end) {
		return nil, apperr.BadRequest("start must be before end")
	}
	return s.conflicts.FindConflicts(ctx, userID, start, end, excludeEventID), nil
}

// exportToConnection runs fn against the user's enabled connection, if
// any. No connection means nothing to export and no warning.
func (s *EventService) exportToConnection(ctx context.Context, userID uuid.UUID, fn func(conn *domain.Connection) error) error {
	conn, err := s.connRepo.GetEnabledForUser(ctx, userID)
	if err != nil {
		logger.WithError(err).Warn("export: connection lookup failed for user %s", userID)
		return err
	}
	if conn == nil || !conn.SyncEnabled {
		return nil
	}
	if err := fn(conn); err != nil {
		logger.WithError(err).Warn("export failed for connection %d", conn.ID)
		return err
	}
	return nil
}

func validateInput(input *CreateEventInput) error {
	if input.Title == "" {
		return apperr.BadRequest("title is required")
	}
	if !input.StartTime.Before(input.EndTime) {
		return apperr.BadRequest("start_time must be before end_time")
	}
	return nil
}
