package domain

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestOverlaps(t *testing.T) {
	event := &CalendarEvent{
		StartTime: base,
		EndTime:   base.Add(time.Hour),
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"identical interval", base, base.Add(time.Hour), true},
		{"contained inside", base.Add(15 * time.Minute), base.Add(30 * time.Minute), true},
		{"straddles start", base.Add(-30 * time.Minute), base.Add(30 * time.Minute), true},
		{"straddles end", base.Add(30 * time.Minute), base.Add(90 * time.Minute), true},
		{"covers entirely", base.Add(-time.Hour), base.Add(2 * time.Hour), true},
		{"ends exactly at start", base.Add(-time.Hour), base, false},
		{"starts exactly at end", base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"entirely before", base.Add(-2 * time.Hour), base.Add(-time.Hour), false},
		{"entirely after", base.Add(2 * time.Hour), base.Add(3 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := event.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestInReminderWindow(t *testing.T) {
	tests := []struct {
		name     string
		startsIn time.Duration
		want     bool
	}{
		{"just under lower bound", 28*time.Minute - time.Second, false},
		{"lower bound inclusive", 28 * time.Minute, true},
		{"nominal lead time", 30 * time.Minute, true},
		{"upper bound inclusive", 32 * time.Minute, true},
		{"just over upper bound", 32*time.Minute + time.Second, false},
		{"already started", -time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InReminderWindow(base.Add(tt.startsIn), base); got != tt.want {
				t.Errorf("InReminderWindow(+%v) = %v, want %v", tt.startsIn, got, tt.want)
			}
		})
	}
}

func TestTokenFreshFor(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn time.Duration
		want      bool
	}{
		{"well before expiry", time.Hour, true},
		{"exactly at margin", 5 * time.Minute, false},
		{"inside margin", 2 * time.Minute, false},
		{"already expired", -time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &Connection{TokenExpiry: base.Add(tt.expiresIn)}
			if got := conn.TokenFreshFor(5*time.Minute, base); got != tt.want {
				t.Errorf("TokenFreshFor(5m) with expiry in %v = %v, want %v", tt.expiresIn, got, tt.want)
			}
		})
	}
}

func TestRemoteIsNewer(t *testing.T) {
	m := &EventMapping{RemoteModifiedAt: base}

	if m.RemoteIsNewer(base) {
		t.Error("equal timestamp must not count as newer")
	}
	if m.RemoteIsNewer(base.Add(-time.Second)) {
		t.Error("older timestamp must not count as newer")
	}
	if !m.RemoteIsNewer(base.Add(time.Second)) {
		t.Error("later timestamp must count as newer")
	}
}

func TestSyncDirection(t *testing.T) {
	tests := []struct {
		dir        SyncDirection
		wantImport bool
		wantExport bool
	}{
		{DirectionBoth, true, true},
		{DirectionImport, true, false},
		{DirectionExport, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.dir), func(t *testing.T) {
			if got := tt.dir.AllowsImport(); got != tt.wantImport {
				t.Errorf("AllowsImport() = %v, want %v", got, tt.wantImport)
			}
			if got := tt.dir.AllowsExport(); got != tt.wantExport {
				t.Errorf("AllowsExport() = %v, want %v", got, tt.wantExport)
			}
		})
	}
}
