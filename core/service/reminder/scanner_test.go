package reminder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"github.com/google/uuid"
)

type fakeRegistry struct {
	recipients   []*domain.ReminderRecipient
	listErr      error
	unregistered []uuid.UUID
}

func (r *fakeRegistry) ListEnabled(context.Context) ([]*domain.ReminderRecipient, error) {
	return r.recipients, r.listErr
}

func (r *fakeRegistry) Unregister(_ context.Context, userID uuid.UUID) error {
	r.unregistered = append(r.unregistered, userID)
	return nil
}

type fakeEventRepo struct {
	out.EventRepository

	events []*domain.CalendarEvent
}

func (r *fakeEventRepo) ListStartingBetween(_ context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.CalendarEvent, error) {
	var matched []*domain.CalendarEvent
	for _, e := range r.events {
		if e.UserID == userID && !e.StartTime.Before(from) && !e.StartTime.After(to) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

type fakeReceiptRepo struct {
	receipts  map[string]*domain.ReminderReceipt
	getErr    error
	upsertErr error
	purged    int64
	cutoff    time.Time
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{receipts: make(map[string]*domain.ReminderReceipt)}
}

func receiptKey(eventID int64, userID uuid.UUID) string {
	return fmt.Sprintf("%d/%s", eventID, userID)
}

func (r *fakeReceiptRepo) Get(_ context.Context, eventID int64, userID uuid.UUID) (*domain.ReminderReceipt, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.receipts[receiptKey(eventID, userID)], nil
}

func (r *fakeReceiptRepo) Upsert(_ context.Context, receipt *domain.ReminderReceipt) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.receipts[receiptKey(receipt.EventID, receipt.UserID)] = receipt
	return nil
}

func (r *fakeReceiptRepo) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.cutoff = cutoff
	return r.purged, nil
}

type fakeNotifier struct {
	sendErr error
	sent    []string
}

func (n *fakeNotifier) Send(_ context.Context, channelID, text string) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, channelID+": "+text)
	return nil
}

type scanFixture struct {
	registry *fakeRegistry
	events   *fakeEventRepo
	receipts *fakeReceiptRepo
	notifier *fakeNotifier
	scanner  *Scanner
	now      time.Time
	userID   uuid.UUID
}

func newScanFixture() *scanFixture {
	f := &scanFixture{
		registry: &fakeRegistry{},
		events:   &fakeEventRepo{},
		receipts: newFakeReceiptRepo(),
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		userID:   uuid.New(),
	}
	f.registry.recipients = []*domain.ReminderRecipient{
		{UserID: f.userID, ChannelID: "chan-1", Enabled: true},
	}
	f.scanner = NewScanner(f.registry, f.events, f.receipts, f.notifier)
	f.scanner.now = func() time.Time { return f.now }
	return f
}

func (f *scanFixture) addEvent(id int64, startsIn time.Duration) *domain.CalendarEvent {
	e := &domain.CalendarEvent{
		ID:        id,
		UserID:    f.userID,
		Title:     fmt.Sprintf("event-%d", id),
		StartTime: f.now.Add(startsIn),
		EndTime:   f.now.Add(startsIn + time.Hour),
		Status:    domain.EventStatusConfirmed,
	}
	f.events.events = append(f.events.events, e)
	return e
}

func TestScan_WindowBounds(t *testing.T) {
	tests := []struct {
		name     string
		startsIn time.Duration
		wantSent int
	}{
		{"27 minutes is too close", 27 * time.Minute, 0},
		{"28 minutes is the lower bound", 28 * time.Minute, 1},
		{"30 minutes is nominal", 30 * time.Minute, 1},
		{"32 minutes is the upper bound", 32 * time.Minute, 1},
		{"33 minutes is too far", 33 * time.Minute, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScanFixture()
			f.addEvent(1, tt.startsIn)

			stats, err := f.scanner.Scan(context.Background())
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if stats.Sent != tt.wantSent {
				t.Errorf("sent = %d, want %d", stats.Sent, tt.wantSent)
			}
		})
	}
}

func TestScan_ReceiptPresentSkipsSend(t *testing.T) {
	f := newScanFixture()
	e := f.addEvent(1, 30*time.Minute)
	f.receipts.receipts[receiptKey(e.ID, f.userID)] = &domain.ReminderReceipt{
		EventID: e.ID, UserID: f.userID, SentAt: f.now.Add(-time.Minute),
	}

	stats, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || stats.Sent != 0 {
		t.Errorf("skipped = %d, sent = %d, want 1, 0", stats.Skipped, stats.Sent)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications sent = %d, want 0", len(f.notifier.sent))
	}
}

func TestScan_ReceiptWrittenOnlyOnSuccess(t *testing.T) {
	f := newScanFixture()
	e := f.addEvent(1, 30*time.Minute)

	stats, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sent != 1 {
		t.Fatalf("sent = %d, want 1", stats.Sent)
	}

	receipt := f.receipts.receipts[receiptKey(e.ID, f.userID)]
	if receipt == nil {
		t.Fatal("receipt not written after successful send")
	}
	if !receipt.SentAt.Equal(f.now) {
		t.Errorf("receipt SentAt = %v, want %v", receipt.SentAt, f.now)
	}

	// Second scan finds the receipt and stays quiet.
	stats, err = f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sent != 0 || stats.Skipped != 1 {
		t.Errorf("rescan sent = %d, skipped = %d, want 0, 1", stats.Sent, stats.Skipped)
	}
}

func TestScan_TransientFailureLeavesNoReceipt(t *testing.T) {
	f := newScanFixture()
	e := f.addEvent(1, 30*time.Minute)
	f.notifier.sendErr = errors.New("gateway timeout")

	stats, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Errored != 1 || stats.Sent != 0 {
		t.Errorf("errored = %d, sent = %d, want 1, 0", stats.Errored, stats.Sent)
	}
	if f.receipts.receipts[receiptKey(e.ID, f.userID)] != nil {
		t.Error("receipt must not exist after a failed send")
	}

	// Next scan retries while the event is still inside the window.
	f.notifier.sendErr = nil
	f.now = f.now.Add(time.Minute)
	stats, err = f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sent != 1 {
		t.Errorf("retry sent = %d, want 1", stats.Sent)
	}
}

func TestScan_GoneRecipientIsUnregistered(t *testing.T) {
	f := newScanFixture()
	e := f.addEvent(1, 30*time.Minute)
	f.notifier.sendErr = fmt.Errorf("push rejected: %w", out.ErrRecipientGone)

	stats, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Unregistered != 1 {
		t.Errorf("unregistered = %d, want 1", stats.Unregistered)
	}
	if len(f.registry.unregistered) != 1 || f.registry.unregistered[0] != f.userID {
		t.Errorf("unregistered users = %v, want [%s]", f.registry.unregistered, f.userID)
	}
	if f.receipts.receipts[receiptKey(e.ID, f.userID)] != nil {
		t.Error("no receipt should be written for a gone recipient")
	}
}

func TestScan_CancelledEventIsIgnored(t *testing.T) {
	f := newScanFixture()
	e := f.addEvent(1, 30*time.Minute)
	e.Status = domain.EventStatusCancelled

	stats, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sent != 0 || stats.Skipped != 0 {
		t.Errorf("sent = %d, skipped = %d, want 0, 0", stats.Sent, stats.Skipped)
	}
}

func TestScan_RecipientFailureDoesNotStopPass(t *testing.T) {
	f := newScanFixture()
	otherUser := uuid.New()
	f.registry.recipients = append([]*domain.ReminderRecipient{
		{UserID: otherUser, ChannelID: "chan-0", Enabled: true},
	}, f.registry.recipients...)
	f.addEvent(1, 30*time.Minute)

	// The first recipient has no events, so only one send happens; the
	// pass must reach the second recipient regardless of ordering.
	stats, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Recipients != 2 {
		t.Errorf("recipients = %d, want 2", stats.Recipients)
	}
	if stats.Sent != 1 {
		t.Errorf("sent = %d, want 1", stats.Sent)
	}
}

func TestSweep_UsesRetentionCutoff(t *testing.T) {
	f := newScanFixture()
	f.receipts.purged = 42

	purged, err := f.scanner.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if purged != 42 {
		t.Errorf("purged = %d, want 42", purged)
	}
	wantCutoff := f.now.Add(-receiptRetention)
	if !f.receipts.cutoff.Equal(wantCutoff) {
		t.Errorf("cutoff = %v, want %v", f.receipts.cutoff, wantCutoff)
	}
}
