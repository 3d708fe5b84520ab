package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"

	"github.com/google/uuid"
)

func newEventServiceFixture(t *testing.T, provider *fakeProvider) (*EventService, *syncFixture) {
	t.Helper()
	f := newSyncFixture(t, provider)
	svc := NewEventService(f.events, f.connRepo, NewConflictDetector(f.events), f.svc)
	return svc, f
}

func TestCreateEvent_ReportsConflictsButStillCreates(t *testing.T) {
	svc, f := newEventServiceFixture(t, &fakeProvider{})
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	existing := &domain.CalendarEvent{
		UserID: f.conn.UserID, Title: "Existing",
		StartTime: base, EndTime: base.Add(time.Hour),
		Status: domain.EventStatusConfirmed,
	}
	f.events.Create(context.Background(), existing)

	result, err := svc.CreateEvent(context.Background(), f.conn.UserID, &CreateEventInput{
		Title:     "Overlapping",
		StartTime: base.Add(30 * time.Minute),
		EndTime:   base.Add(90 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}

	if result.Event.ID == 0 {
		t.Error("event was not persisted")
	}
	if len(result.Conflicts) != 1 {
		t.Errorf("conflicts = %d, want 1", len(result.Conflicts))
	}
	if result.ExportErr != nil {
		t.Errorf("export error = %v, want nil", result.ExportErr)
	}
	if f.provider.createCalls != 1 {
		t.Errorf("remote creates = %d, want 1", f.provider.createCalls)
	}
}

func TestCreateEvent_ExportFailureIsWarningNotError(t *testing.T) {
	provider := &fakeProvider{
		createFn: func(event *out.ProviderEvent) (*out.ProviderEvent, error) {
			return nil, errors.New("remote down")
		},
	}
	svc, f := newEventServiceFixture(t, provider)

	result, err := svc.CreateEvent(context.Background(), f.conn.UserID, &CreateEventInput{
		Title:     "Kept Locally",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v, local write must not fail", err)
	}
	if result.ExportErr == nil {
		t.Error("expected export error to surface as warning")
	}
	if got, _ := f.events.GetByID(context.Background(), result.Event.ID); got == nil {
		t.Error("local event missing after export failure")
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	svc, f := newEventServiceFixture(t, &fakeProvider{})
	now := time.Now()

	tests := []struct {
		name  string
		input CreateEventInput
	}{
		{"empty title", CreateEventInput{StartTime: now, EndTime: now.Add(time.Hour)}},
		{"end before start", CreateEventInput{Title: "x", StartTime: now.Add(time.Hour), EndTime: now}},
		{"zero duration", CreateEventInput{Title: "x", StartTime: now, EndTime: now}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateEvent(context.Background(), f.conn.UserID, &tt.input)
			var appErr *apperr.AppError
			if !errors.As(err, &appErr) || appErr.Code != apperr.CodeBadRequest {
				t.Errorf("error = %v, want BAD_REQUEST", err)
			}
		})
	}
}

func TestUpdateEvent_ExcludesSelfFromConflicts(t *testing.T) {
	svc, f := newEventServiceFixture(t, &fakeProvider{})
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	result, err := svc.CreateEvent(context.Background(), f.conn.UserID, &CreateEventInput{
		Title: "Solo", StartTime: base, EndTime: base.Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateEvent(context.Background(), f.conn.UserID, result.Event.ID, &CreateEventInput{
		Title: "Solo Moved", StartTime: base.Add(10 * time.Minute), EndTime: base.Add(70 * time.Minute),
	})
	if err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}
	if len(updated.Conflicts) != 0 {
		t.Errorf("conflicts = %d, event collided with itself", len(updated.Conflicts))
	}
	if updated.Event.Title != "Solo Moved" {
		t.Errorf("title = %q, want Solo Moved", updated.Event.Title)
	}
}

func TestUpdateEvent_OtherUsersEventIsNotFound(t *testing.T) {
	svc, f := newEventServiceFixture(t, &fakeProvider{})

	foreign := &domain.CalendarEvent{UserID: uuid.New(), Title: "Foreign", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}
	f.events.Create(context.Background(), foreign)

	_, err := svc.UpdateEvent(context.Background(), f.conn.UserID, foreign.ID, &CreateEventInput{
		Title: "Hijack", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
	})
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeNotFound {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestDeleteEvent_RemovesLocalAndRemote(t *testing.T) {
	svc, f := newEventServiceFixture(t, &fakeProvider{})

	created, err := svc.CreateEvent(context.Background(), f.conn.UserID, &CreateEventInput{
		Title: "Doomed", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := svc.DeleteEvent(context.Background(), f.conn.UserID, created.Event.ID)
	if err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	if result.ExportErr != nil {
		t.Errorf("export error = %v", result.ExportErr)
	}
	if got, _ := f.events.GetByID(context.Background(), created.Event.ID); got != nil {
		t.Error("local event survived delete")
	}
	if f.provider.deleteCalls != 1 {
		t.Errorf("remote deletes = %d, want 1", f.provider.deleteCalls)
	}
	if count, _ := f.mappings.CountByConnection(context.Background(), f.conn.ID); count != 0 {
		t.Errorf("mappings = %d, want 0", count)
	}
}

func TestCreateEvent_NoConnectionMeansNoExport(t *testing.T) {
	svc, f := newEventServiceFixture(t, &fakeProvider{})
	f.conn.SyncEnabled = false

	result, err := svc.CreateEvent(context.Background(), f.conn.UserID, &CreateEventInput{
		Title: "Local Only", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if result.ExportErr != nil {
		t.Errorf("export error = %v, want nil with no enabled connection", result.ExportErr)
	}
	if f.provider.createCalls != 0 {
		t.Errorf("remote creates = %d, want 0", f.provider.createCalls)
	}
}
