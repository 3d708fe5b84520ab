// Package reminder implements the idempotent reminder engine: a
// 1-minute scan that notifies each recipient once per upcoming event,
// with a durable dedup receipt per (event, user).
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/logger"
)

// Receipts older than this are swept daily. Long enough that no event
// the window could still match has a purged receipt.
const receiptRetention = 7 * 24 * time.Hour

// ScanStats summarizes one reminder scan.
type ScanStats struct {
	Recipients   int
	Sent         int
	Skipped      int
	Unregistered int
	Errored      int
}

// Scanner drives reminder delivery. Each scan is self-contained: it
// reads the recipient registry and the receipt store fresh, so restarts
// and concurrent instances converge on the same at-most-once outcome.
type Scanner struct {
	registry  out.RecipientRegistry
	eventRepo out.EventRepository
	receipts  out.ReminderReceiptRepository
	notifier  out.NotifierPort
	now       func() time.Time
}

// NewScanner creates a new reminder scanner.
func NewScanner(
	registry out.RecipientRegistry,
	eventRepo out.EventRepository,
	receipts out.ReminderReceiptRepository,
	notifier out.NotifierPort,
) *Scanner {
	return &Scanner{
		registry:  registry,
		eventRepo: eventRepo,
		receipts:  receipts,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Scan runs one pass over all enabled recipients. A recipient failure
// never stops the pass.
func (s *Scanner) Scan(ctx context.Context) (*ScanStats, error) {
	recipients, err := s.registry.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder recipients: %w", err)
	}

	stats := &ScanStats{Recipients: len(recipients)}
	for _, r := range recipients {
		if err := s.scanRecipient(ctx, r, stats); err != nil {
			stats.Errored++
			logger.WithError(err).Warn("reminder scan failed for user %s", r.UserID)
		}
	}

	if stats.Sent > 0 || stats.Unregistered > 0 || stats.Errored > 0 {
		logger.Info("reminder scan: recipients=%d sent=%d skipped=%d unregistered=%d errored=%d",
			stats.Recipients, stats.Sent, stats.Skipped, stats.Unregistered, stats.Errored)
	}
	return stats, nil
}

func (s *Scanner) scanRecipient(ctx context.Context, r *domain.ReminderRecipient, stats *ScanStats) error {
	now := s.now()
	events, err := s.eventRepo.ListStartingBetween(ctx, r.UserID, now, now.Add(time.Hour))
	if err != nil {
		return fmt.Errorf("event lookup: %w", err)
	}

	for _, event := range events {
		if event.Status == domain.EventStatusCancelled {
			continue
		}
		if !domain.InReminderWindow(event.StartTime, now) {
			continue
		}

		receipt, err := s.receipts.Get(ctx, event.ID, r.UserID)
		if err != nil {
			stats.Errored++
			logger.WithError(err).Warn("receipt lookup failed for event %d user %s", event.ID, r.UserID)
			continue
		}
		if receipt != nil {
			stats.Skipped++
			continue
		}

		if err := s.notifier.Send(ctx, r.ChannelID, reminderText(event, now)); err != nil {
			if errors.Is(err, out.ErrRecipientGone) {
				logger.Warn("reminder channel gone for user %s, unregistering", r.UserID)
				if uerr := s.registry.Unregister(ctx, r.UserID); uerr != nil {
					return fmt.Errorf("unregister: %w", uerr)
				}
				stats.Unregistered++
				return nil
			}
			// Transient failure: no receipt is written, so the next scan
			// retries while the event is still inside the window.
			stats.Errored++
			logger.WithError(err).Warn("reminder send failed for event %d user %s", event.ID, r.UserID)
			continue
		}

		// Receipt only after a confirmed send. A crash between send and
		// upsert risks one duplicate on the next scan, which is the
		// accepted trade against silent loss.
		if err := s.receipts.Upsert(ctx, &domain.ReminderReceipt{
			EventID:    event.ID,
			UserID:     r.UserID,
			ChannelID:  r.ChannelID,
			EventStart: event.StartTime,
			SentAt:     s.now(),
		}); err != nil {
			stats.Errored++
			logger.WithError(err).Error("receipt write failed for event %d user %s", event.ID, r.UserID)
			continue
		}
		stats.Sent++
	}
	return nil
}

// Sweep purges receipts past retention. Safe to run from multiple
// instances; the delete is idempotent.
func (s *Scanner) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-receiptRetention)
	purged, err := s.receipts.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("receipt sweep: %w", err)
	}
	if purged > 0 {
		logger.Info("reminder sweep purged %d receipts older than %s", purged, cutoff.Format(time.RFC3339))
	}
	return purged, nil
}

func reminderText(event *domain.CalendarEvent, now time.Time) string {
	minutes := int(event.StartTime.Sub(now).Round(time.Minute).Minutes())
	text := fmt.Sprintf("Reminder: %q starts in %d minutes (%s)",
		event.Title, minutes, event.StartTime.Format("15:04"))
	if event.Location != nil && *event.Location != "" {
		text += " at " + *event.Location
	}
	return text
}
