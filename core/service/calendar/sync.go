package calendar

import (
	"context"
	"fmt"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/core/service/auth"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
)

const (
	// Full-fetch window when no cursor exists yet.
	importWindowPast   = 30 // days
	importWindowFuture = 90 // days

	importPageSize = 250

	// Lease held for the duration of one run. A crashed run releases the
	// connection when the lease expires.
	syncLeaseTTL = 10 * time.Minute
)

// SyncService keeps the local event store and the remote provider
// consistent: cursor-based incremental import plus immediate export of
// local mutations. Runs for the same connection are serialized through
// the sync lock; runs for different connections may proceed in parallel.
type SyncService struct {
	connRepo    out.ConnectionRepository
	eventRepo   out.EventRepository
	mappingRepo out.MappingRepository
	runlogRepo  out.RunLogRepository
	providers   out.ProviderFactory
	tokens      *auth.TokenService
	lock        out.SyncLock
	breaker     *gobreaker.CircuitBreaker
	now         func() time.Time
}

// NewSyncService creates a new synchronization engine.
func NewSyncService(
	connRepo out.ConnectionRepository,
	eventRepo out.EventRepository,
	mappingRepo out.MappingRepository,
	runlogRepo out.RunLogRepository,
	providers out.ProviderFactory,
	tokens *auth.TokenService,
	lock out.SyncLock,
) *SyncService {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "calendar-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &SyncService{
		connRepo:    connRepo,
		eventRepo:   eventRepo,
		mappingRepo: mappingRepo,
		runlogRepo:  runlogRepo,
		providers:   providers,
		tokens:      tokens,
		lock:        lock,
		breaker:     breaker,
		now:         time.Now,
	}
}

// =============================================================================
// Import Path
// =============================================================================

// ImportFromRemote pulls one page of remote changes and applies them to
// the local store with remote-wins semantics. The cursor is committed
// once per completed run, never per item, and every run appends exactly
// one run-log entry.
func (s *SyncService) ImportFromRemote(ctx context.Context, conn *domain.Connection) (*domain.RunStats, error) {
	connID := conn.ID
	acquired, err := s.lock.Acquire(ctx, connID, syncLeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	if !acquired {
		return nil, apperr.SyncInProgress(connID)
	}
	// conn is reassigned below and is nil on token failure; release the
	// lease by the captured ID.
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), connID); err != nil {
			logger.WithError(err).Warn("failed to release sync lease for connection %d", connID)
		}
	}()

	started := s.now()
	stats := &domain.RunStats{}
	run := &domain.SyncRunLog{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		RunType:      domain.RunImport,
		StartedAt:    started,
	}

	conn, err = s.tokens.EnsureFreshToken(ctx, conn)
	if err != nil {
		// Token failure aborts this run without advancing the cursor; the
		// connection stays enabled and is retried on the next cycle.
		s.finishRun(ctx, run, stats, started, err)
		return stats, err
	}

	token := s.tokens.OAuth2Token(conn)
	changes, err := s.fetchChanges(ctx, token, conn)
	if err != nil {
		s.finishRun(ctx, run, stats, started, err)
		return stats, err
	}

	for _, item := range changes.Events {
		// A bad item must never abort the run.
		if err := s.applyRemoteItem(ctx, conn, item, stats); err != nil {
			stats.Errored++
			logger.WithError(err).Warn("import: item %s failed for connection %d", item.ID, conn.ID)
		}
	}

	if changes.NextCursor != "" {
		if err := s.connRepo.UpdateCursor(ctx, conn.ID, changes.NextCursor, s.now()); err != nil {
			s.finishRun(ctx, run, stats, started, err)
			return stats, fmt.Errorf("failed to persist sync cursor: %w", err)
		}
	}

	s.finishRun(ctx, run, stats, started, nil)
	logger.Info("import run for connection %d: imported=%d updated=%d deleted=%d conflicted=%d errored=%d",
		conn.ID, stats.Imported, stats.Updated, stats.Deleted, stats.Conflicted, stats.Errored)
	return stats, nil
}

// fetchChanges performs an incremental fetch when a cursor exists, or a
// windowed full fetch otherwise. An expired cursor falls back to the
// windowed fetch after clearing the stale cursor.
func (s *SyncService) fetchChanges(ctx context.Context, token *oauth2.Token, conn *domain.Connection) (*out.ChangeSet, error) {
	provider, err := s.providers.ForProvider(conn.Provider)
	if err != nil {
		return nil, err
	}

	if conn.HasCursor() {
		changes, err := s.callFetch(ctx, provider, token, &out.FetchOptions{
			CalendarID: conn.CalendarID,
			Cursor:     conn.SyncCursor,
			MaxResults: importPageSize,
		})
		if err == nil {
			return changes, nil
		}
		if !out.IsProviderCode(err, out.CodeSyncRequired) {
			return nil, err
		}
		logger.Warn("sync cursor expired for connection %d, falling back to full fetch", conn.ID)
		if err := s.connRepo.ClearCursor(ctx, conn.ID); err != nil {
			return nil, fmt.Errorf("failed to clear expired cursor: %w", err)
		}
	}

	return s.callFetch(ctx, provider, token, &out.FetchOptions{
		CalendarID:  conn.CalendarID,
		WindowStart: s.now().AddDate(0, 0, -importWindowPast),
		WindowEnd:   s.now().AddDate(0, 0, importWindowFuture),
		MaxResults:  importPageSize,
	})
}

func (s *SyncService) callFetch(ctx context.Context, provider out.CalendarProviderPort, token *oauth2.Token, opts *out.FetchOptions) (*out.ChangeSet, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return provider.FetchChanges(ctx, token, opts)
	})
	if err != nil {
		return nil, err
	}
	return result.(*out.ChangeSet), nil
}

// applyRemoteItem processes one remote item independently of its peers.
func (s *SyncService) applyRemoteItem(ctx context.Context, conn *domain.Connection, item *out.ProviderEvent, stats *domain.RunStats) error {
	if item.Deleted {
		return s.applyRemoteDeletion(ctx, conn, item, stats)
	}

	mapping, err := s.mappingRepo.GetByRemoteID(ctx, conn.ID, item.ID)
	if err != nil {
		return fmt.Errorf("mapping lookup: %w", err)
	}

	if mapping == nil {
		return s.importNewItem(ctx, conn, item, stats)
	}

	if !mapping.RemoteIsNewer(item.UpdatedAt) {
		// Already current; the local copy and mapping stay untouched.
		return nil
	}

	return s.overwriteLocal(ctx, conn, mapping, item, stats)
}

func (s *SyncService) applyRemoteDeletion(ctx context.Context, conn *domain.Connection, item *out.ProviderEvent, stats *domain.RunStats) error {
	mapping, err := s.mappingRepo.GetByRemoteID(ctx, conn.ID, item.ID)
	if err != nil {
		return fmt.Errorf("mapping lookup: %w", err)
	}
	if mapping == nil {
		// Already absent on our side.
		return nil
	}

	if err := s.eventRepo.Delete(ctx, mapping.LocalEventID); err != nil {
		return fmt.Errorf("local delete: %w", err)
	}
	if err := s.mappingRepo.Delete(ctx, mapping.ID); err != nil {
		return fmt.Errorf("mapping delete: %w", err)
	}
	stats.Deleted++
	return nil
}

func (s *SyncService) importNewItem(ctx context.Context, conn *domain.Connection, item *out.ProviderEvent, stats *domain.RunStats) error {
	event := eventFromRemote(item, conn.UserID)
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("local create: %w", err)
	}

	if err := s.mappingRepo.Upsert(ctx, &domain.EventMapping{
		ConnectionID:     conn.ID,
		LocalEventID:     event.ID,
		RemoteEventID:    item.ID,
		LastSyncedAt:     s.now(),
		LocalModifiedAt:  event.UpdatedAt,
		RemoteModifiedAt: item.UpdatedAt,
		Status:           domain.MappingSynced,
	}); err != nil {
		return fmt.Errorf("mapping upsert: %w", err)
	}
	stats.Imported++
	return nil
}

// overwriteLocal applies the remote version over the local event.
// Propagation is last-writer-wins keyed by remote timestamp: an
// intervening local edit does not stop the overwrite, but it is recorded
// on the mapping as a conflict so it is visible rather than silent.
func (s *SyncService) overwriteLocal(ctx context.Context, conn *domain.Connection, mapping *domain.EventMapping, item *out.ProviderEvent, stats *domain.RunStats) error {
	local, err := s.eventRepo.GetByID(ctx, mapping.LocalEventID)
	if err != nil {
		return fmt.Errorf("local lookup: %w", err)
	}
	if local == nil {
		// Local event disappeared out-of-band; recreate from the remote
		// item and point the mapping at the new row.
		event := eventFromRemote(item, conn.UserID)
		if err := s.eventRepo.Create(ctx, event); err != nil {
			return fmt.Errorf("local recreate: %w", err)
		}
		mapping.LocalEventID = event.ID
		local = event
	}

	conflicted := local.UpdatedAt.After(mapping.LocalModifiedAt)

	applyRemoteFields(local, item)
	if err := s.eventRepo.Update(ctx, local); err != nil {
		return fmt.Errorf("local update: %w", err)
	}

	mapping.LastSyncedAt = s.now()
	mapping.LocalModifiedAt = local.UpdatedAt
	mapping.RemoteModifiedAt = item.UpdatedAt
	mapping.Status = domain.MappingSynced
	mapping.ConflictNote = nil
	if conflicted {
		mapping.Status = domain.MappingConflicted
		note := fmt.Sprintf("local edit at %s overwritten by remote edit at %s",
			local.UpdatedAt.Format(time.RFC3339), item.UpdatedAt.Format(time.RFC3339))
		mapping.ConflictNote = &note
	}

	if err := s.mappingRepo.Upsert(ctx, mapping); err != nil {
		return fmt.Errorf("mapping upsert: %w", err)
	}

	if conflicted {
		stats.Conflicted++
	} else {
		stats.Updated++
	}
	return nil
}

func (s *SyncService) finishRun(ctx context.Context, run *domain.SyncRunLog, stats *domain.RunStats, started time.Time, runErr error) {
	run.Stats = *stats
	run.DurationMs = s.now().Sub(started).Milliseconds()
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.runlogRepo.Append(ctx, run); err != nil {
		logger.WithError(err).Error("failed to append run log for connection %d", run.ConnectionID)
	}
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func eventFromRemote(item *out.ProviderEvent, userID uuid.UUID) *domain.CalendarEvent {
	event := &domain.CalendarEvent{
		UserID:    userID,
		Title:     item.Title,
		StartTime: item.StartTime,
		EndTime:   item.EndTime,
		IsAllDay:  item.IsAllDay,
		Timezone:  item.Timezone,
		Status:    eventStatusFromRemote(item.Status),
	}
	if item.Description != "" {
		event.Description = &item.Description
	}
	if item.Location != "" {
		event.Location = &item.Location
	}
	return event
}

func applyRemoteFields(event *domain.CalendarEvent, item *out.ProviderEvent) {
	event.Title = item.Title
	event.StartTime = item.StartTime
	event.EndTime = item.EndTime
	event.IsAllDay = item.IsAllDay
	event.Timezone = item.Timezone
	event.Status = eventStatusFromRemote(item.Status)
	event.Description = nil
	if item.Description != "" {
		desc := item.Description
		event.Description = &desc
	}
	event.Location = nil
	if item.Location != "" {
		loc := item.Location
		event.Location = &loc
	}
}

func eventStatusFromRemote(status string) domain.EventStatus {
	switch status {
	case string(domain.EventStatusTentative):
		return domain.EventStatusTentative
	case string(domain.EventStatusCancelled):
		return domain.EventStatusCancelled
	default:
		return domain.EventStatusConfirmed
	}
}
