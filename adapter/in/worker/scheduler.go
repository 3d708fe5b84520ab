// Package worker hosts the background schedulers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"calsync_server/core/port/out"
	"calsync_server/core/service/calendar"
	"calsync_server/core/service/reminder"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the periodic jobs: the sync cycle over all enabled
// connections, the 1-minute reminder scan, and the daily receipt sweep.
// Per-connection serialization is enforced by the sync lease, not here;
// this process only bounds its own fan-out.
type Scheduler struct {
	cron        *cron.Cron
	connRepo    out.ConnectionRepository
	syncService *calendar.SyncService
	scanner     *reminder.Scanner

	syncInterval time.Duration
	scanInterval time.Duration
	concurrency  int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new Scheduler.
func NewScheduler(
	connRepo out.ConnectionRepository,
	syncService *calendar.SyncService,
	scanner *reminder.Scanner,
	syncInterval, scanInterval time.Duration,
	concurrency int,
) *Scheduler {
	if concurrency <= 0 {
		concurrency = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:         cron.New(),
		connRepo:     connRepo,
		syncService:  syncService,
		scanner:      scanner,
		syncInterval: syncInterval,
		scanInterval: scanInterval,
		concurrency:  concurrency,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{fmt.Sprintf("@every %s", s.syncInterval), "sync-cycle", s.runSyncCycle},
		{fmt.Sprintf("@every %s", s.scanInterval), "reminder-scan", s.runReminderScan},
		{"@daily", "receipt-sweep", s.runReceiptSweep},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.fn); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}

	s.cron.Start()
	logger.Info("[Scheduler] Started: sync every %s, reminder scan every %s", s.syncInterval, s.scanInterval)
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	logger.Info("[Scheduler] Stopping...")
	s.cancel()
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logger.Info("[Scheduler] Stopped")
	case <-time.After(30 * time.Second):
		logger.Warn("[Scheduler] Stop timed out with jobs still running")
	}
}

// runSyncCycle imports every enabled connection, fanning out across a
// bounded worker set. Connections are independent; one failure never
// affects the rest of the cycle.
func (s *Scheduler) runSyncCycle() {
	ctx, cancel := context.WithTimeout(s.ctx, s.syncInterval)
	defer cancel()

	conns, err := s.connRepo.ListSyncEnabled(ctx)
	if err != nil {
		logger.Error("[Scheduler] Failed to list sync-enabled connections: %v", err)
		return
	}
	if len(conns) == 0 {
		return
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, conn := range conns {
		if !conn.Direction.AllowsImport() {
			continue
		}
		conn := conn
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.syncService.ImportFromRemote(ctx, conn); err != nil {
				// A held lease just means another process got there first.
				var appErr *apperr.AppError
				if errors.As(err, &appErr) && appErr.Code == apperr.CodeSyncInProgress {
					return
				}
				logger.Error("[Scheduler] Import failed for connection %d: %v", conn.ID, err)
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) runReminderScan() {
	ctx, cancel := context.WithTimeout(s.ctx, s.scanInterval)
	defer cancel()

	if _, err := s.scanner.Scan(ctx); err != nil {
		logger.Error("[Scheduler] Reminder scan failed: %v", err)
	}
}

func (s *Scheduler) runReceiptSweep() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.scanner.Sweep(ctx); err != nil {
		logger.Error("[Scheduler] Receipt sweep failed: %v", err)
	}
}
