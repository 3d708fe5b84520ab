package calendar

import (
	"context"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
)

// ConflictDetector finds local events overlapping a candidate interval.
// The check is advisory: callers log the result and proceed with the
// write either way, and a store failure degrades to "no conflicts" so
// the advisory check can never block a mutation.
type ConflictDetector struct {
	eventRepo out.EventRepository
}

// NewConflictDetector creates a new conflict detector.
func NewConflictDetector(eventRepo out.EventRepository) *ConflictDetector {
	return &ConflictDetector{eventRepo: eventRepo}
}

// FindConflicts returns the user's events whose [start, end) interval
// overlaps the given one. Two intervals conflict iff
// max(s1,s2) < min(e1,e2); touching intervals do not conflict.
// excludeEventID lets an update check against all other events without
// flagging itself.
func (d *ConflictDetector) FindConflicts(ctx context.Context, userID uuid.UUID, start, end time.Time, excludeEventID *int64) []*domain.CalendarEvent {
	events, err := d.eventRepo.ListOverlapping(ctx, userID, start, end)
	if err != nil {
		logger.WithError(err).Warn("conflict check degraded to empty for user %s", userID)
		return nil
	}

	var conflicts []*domain.CalendarEvent
	for _, e := range events {
		if excludeEventID != nil && e.ID == *excludeEventID {
			continue
		}
		if e.Status == domain.EventStatusCancelled {
			continue
		}
		if e.Overlaps(start, end) {
			conflicts = append(conflicts, e)
		}
	}
	return conflicts
}
