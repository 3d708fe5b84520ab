package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"calsync_server/core/domain"

	"github.com/google/uuid"
)

func TestFindConflicts(t *testing.T) {
	userID := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	meeting := &domain.CalendarEvent{
		ID: 1, UserID: userID, Title: "Meeting",
		StartTime: base, EndTime: base.Add(time.Hour),
		Status: domain.EventStatusConfirmed,
	}
	cancelled := &domain.CalendarEvent{
		ID: 2, UserID: userID, Title: "Cancelled",
		StartTime: base, EndTime: base.Add(time.Hour),
		Status: domain.EventStatusCancelled,
	}

	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		exclude *int64
		want    int
	}{
		{"full overlap", base, base.Add(time.Hour), nil, 1},
		{"partial overlap", base.Add(30 * time.Minute), base.Add(90 * time.Minute), nil, 1},
		{"back to back after", base.Add(time.Hour), base.Add(2 * time.Hour), nil, 0},
		{"back to back before", base.Add(-time.Hour), base, nil, 0},
		{"disjoint", base.Add(3 * time.Hour), base.Add(4 * time.Hour), nil, 0},
		{"excluded self", base, base.Add(time.Hour), &meeting.ID, 0},
	}

	detector := NewConflictDetector(newFakeEventRepo(meeting, cancelled))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.FindConflicts(context.Background(), userID, tt.start, tt.end, tt.exclude)
			if len(got) != tt.want {
				t.Errorf("FindConflicts() = %d conflicts, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFindConflicts_OtherUsersInvisible(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	other := &domain.CalendarEvent{
		ID: 1, UserID: uuid.New(), Title: "Someone Else",
		StartTime: base, EndTime: base.Add(time.Hour),
		Status: domain.EventStatusConfirmed,
	}
	detector := NewConflictDetector(newFakeEventRepo(other))

	got := detector.FindConflicts(context.Background(), uuid.New(), base, base.Add(time.Hour), nil)
	if len(got) != 0 {
		t.Errorf("FindConflicts() = %d conflicts across users, want 0", len(got))
	}
}

func TestFindConflicts_StoreFailureDegradesToEmpty(t *testing.T) {
	repo := newFakeEventRepo()
	repo.listErr = errors.New("connection refused")
	detector := NewConflictDetector(repo)

	got := detector.FindConflicts(context.Background(), uuid.New(), time.Now(), time.Now().Add(time.Hour), nil)
	if got != nil {
		t.Errorf("FindConflicts() = %v, want nil on store failure", got)
	}
}
