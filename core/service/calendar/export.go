package calendar

import (
	"context"
	"fmt"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// =============================================================================
// Export Path
// =============================================================================

// ExportCreate pushes a locally created event to the remote calendar and
// records the mapping. The provider-assigned id is logged before the
// mapping insert so a crash between the two leaves a trace instead of a
// silent orphan on the remote side.
func (s *SyncService) ExportCreate(ctx context.Context, conn *domain.Connection, event *domain.CalendarEvent) error {
	if !conn.Direction.AllowsExport() {
		return nil
	}

	conn, provider, token, err := s.exportPrep(ctx, conn)
	if err != nil {
		return err
	}

	created, err := s.callMutate(func() (*out.ProviderEvent, error) {
		return provider.CreateEvent(ctx, token, conn.CalendarID, remoteFromEvent(event))
	})
	if err != nil {
		s.logExportRun(ctx, conn.ID, domain.RunStats{Errored: 1}, err)
		return fmt.Errorf("remote create: %w", err)
	}

	logger.Info("export: remote event %s created for local event %d on connection %d",
		created.ID, event.ID, conn.ID)

	if err := s.mappingRepo.Upsert(ctx, &domain.EventMapping{
		ConnectionID:     conn.ID,
		LocalEventID:     event.ID,
		RemoteEventID:    created.ID,
		LastSyncedAt:     s.now(),
		LocalModifiedAt:  event.UpdatedAt,
		RemoteModifiedAt: created.UpdatedAt,
		Status:           domain.MappingSynced,
	}); err != nil {
		return fmt.Errorf("mapping upsert after remote create %s: %w", created.ID, err)
	}

	s.logExportRun(ctx, conn.ID, domain.RunStats{Exported: 1}, nil)
	return nil
}

// ExportUpdate pushes a local edit to the mapped remote event. A missing
// mapping, or a remote event that no longer exists, degrades to a create
// so the edit is never dropped.
func (s *SyncService) ExportUpdate(ctx context.Context, conn *domain.Connection, event *domain.CalendarEvent) error {
	if !conn.Direction.AllowsExport() {
		return nil
	}

	mapping, err := s.mappingRepo.GetByLocalID(ctx, conn.ID, event.ID)
	if err != nil {
		return fmt.Errorf("mapping lookup: %w", err)
	}
	if mapping == nil {
		return s.ExportCreate(ctx, conn, event)
	}

	conn, provider, token, err := s.exportPrep(ctx, conn)
	if err != nil {
		return err
	}

	updated, err := s.callMutate(func() (*out.ProviderEvent, error) {
		return provider.UpdateEvent(ctx, token, conn.CalendarID, mapping.RemoteEventID, remoteFromEvent(event))
	})
	if err != nil {
		if out.IsProviderCode(err, out.CodeNotFound) {
			// Remote side was deleted out-of-band. Drop the stale mapping
			// and recreate.
			logger.Warn("export: remote event %s gone, recreating for local event %d",
				mapping.RemoteEventID, event.ID)
			if derr := s.mappingRepo.Delete(ctx, mapping.ID); derr != nil {
				return fmt.Errorf("stale mapping delete: %w", derr)
			}
			return s.ExportCreate(ctx, conn, event)
		}
		s.logExportRun(ctx, conn.ID, domain.RunStats{Errored: 1}, err)
		return fmt.Errorf("remote update: %w", err)
	}

	mapping.LastSyncedAt = s.now()
	mapping.LocalModifiedAt = event.UpdatedAt
	mapping.RemoteModifiedAt = updated.UpdatedAt
	mapping.Status = domain.MappingSynced
	mapping.ConflictNote = nil
	if err := s.mappingRepo.Upsert(ctx, mapping); err != nil {
		return fmt.Errorf("mapping upsert: %w", err)
	}

	s.logExportRun(ctx, conn.ID, domain.RunStats{Updated: 1}, nil)
	return nil
}

// ExportDelete removes the mapped remote event. No mapping means nothing
// was ever exported, so the whole call is an idempotent no-op. A remote
// NOT_FOUND also succeeds: the desired end state already holds.
func (s *SyncService) ExportDelete(ctx context.Context, conn *domain.Connection, localEventID int64) error {
	if !conn.Direction.AllowsExport() {
		return nil
	}

	mapping, err := s.mappingRepo.GetByLocalID(ctx, conn.ID, localEventID)
	if err != nil {
		return fmt.Errorf("mapping lookup: %w", err)
	}
	if mapping == nil {
		return nil
	}

	conn, provider, token, err := s.exportPrep(ctx, conn)
	if err != nil {
		return err
	}

	_, err = s.callMutate(func() (*out.ProviderEvent, error) {
		return nil, provider.DeleteEvent(ctx, token, conn.CalendarID, mapping.RemoteEventID)
	})
	if err != nil && !out.IsProviderCode(err, out.CodeNotFound) {
		s.logExportRun(ctx, conn.ID, domain.RunStats{Errored: 1}, err)
		return fmt.Errorf("remote delete: %w", err)
	}

	if err := s.mappingRepo.Delete(ctx, mapping.ID); err != nil {
		return fmt.Errorf("mapping delete: %w", err)
	}

	s.logExportRun(ctx, conn.ID, domain.RunStats{Deleted: 1}, nil)
	return nil
}

// exportPrep resolves the provider adapter and a fresh token for one
// export operation.
func (s *SyncService) exportPrep(ctx context.Context, conn *domain.Connection) (*domain.Connection, out.CalendarProviderPort, *oauth2.Token, error) {
	provider, err := s.providers.ForProvider(conn.Provider)
	if err != nil {
		return nil, nil, nil, err
	}
	conn, err = s.tokens.EnsureFreshToken(ctx, conn)
	if err != nil {
		return nil, nil, nil, err
	}
	return conn, provider, s.tokens.OAuth2Token(conn), nil
}

func (s *SyncService) callMutate(fn func() (*out.ProviderEvent, error)) (*out.ProviderEvent, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*out.ProviderEvent), nil
}

func (s *SyncService) logExportRun(ctx context.Context, connectionID int64, stats domain.RunStats, runErr error) {
	run := &domain.SyncRunLog{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		RunType:      domain.RunExport,
		Stats:        stats,
		StartedAt:    s.now(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.runlogRepo.Append(ctx, run); err != nil {
		logger.WithError(err).Error("failed to append export run log for connection %d", connectionID)
	}
}

func remoteFromEvent(event *domain.CalendarEvent) *out.ProviderEvent {
	item := &out.ProviderEvent{
		Title:     event.Title,
		StartTime: event.StartTime,
		EndTime:   event.EndTime,
		IsAllDay:  event.IsAllDay,
		Timezone:  event.Timezone,
		Status:    string(event.Status),
	}
	if event.Description != nil {
		item.Description = *event.Description
	}
	if event.Location != nil {
		item.Location = *event.Location
	}
	return item
}
