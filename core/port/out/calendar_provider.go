// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"
	"time"

	"calsync_server/core/domain"

	"golang.org/x/oauth2"
)

// =============================================================================
// Calendar Provider Port
// =============================================================================

// CalendarProviderPort is the capability set the sync engine needs from a
// remote calendar provider. The engine is generic over this interface;
// nothing outside the adapter layer branches on a provider tag.
type CalendarProviderPort interface {
	// FetchChanges returns one page of changed/created/deleted items plus
	// an updated opaque cursor. With an empty cursor the fetch is bounded
	// to [opts.WindowStart, opts.WindowEnd]; otherwise it is incremental.
	// An expired cursor yields a *ProviderError with CodeSyncRequired.
	FetchChanges(ctx context.Context, token *oauth2.Token, opts *FetchOptions) (*ChangeSet, error)

	CreateEvent(ctx context.Context, token *oauth2.Token, calendarID string, event *ProviderEvent) (*ProviderEvent, error)
	UpdateEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string, event *ProviderEvent) (*ProviderEvent, error)
	DeleteEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string) error

	// RefreshToken exchanges a refresh token for a fresh access token.
	RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)

	// ListCalendars is used once at connect time to resolve the remote
	// calendar id and display name.
	ListCalendars(ctx context.Context, token *oauth2.Token) ([]*ProviderCalendar, error)
}

// ProviderFactory resolves the adapter for a provider tag.
type ProviderFactory interface {
	ForProvider(p domain.Provider) (CalendarProviderPort, error)
}

// =============================================================================
// Provider Types
// =============================================================================

// FetchOptions selects a fetch mode for FetchChanges.
type FetchOptions struct {
	CalendarID  string
	Cursor      string
	WindowStart time.Time
	WindowEnd   time.Time
	MaxResults  int
}

// ProviderEvent is the provider-neutral event representation.
type ProviderEvent struct {
	ID          string
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	IsAllDay    bool
	Timezone    string
	Status      string
	UpdatedAt   time.Time

	// Deleted marks a tombstone in a change feed.
	Deleted bool
}

// ChangeSet is one page of changes plus the advanced cursor.
type ChangeSet struct {
	Events     []*ProviderEvent
	NextCursor string
}

// ProviderCalendar describes one remote calendar.
type ProviderCalendar struct {
	ID        string
	Name      string
	IsPrimary bool
}

// =============================================================================
// Provider Errors
// =============================================================================

// Provider error codes.
const (
	CodeSyncRequired = "SYNC_REQUIRED" // cursor expired, full fetch needed
	CodeNotFound     = "NOT_FOUND"
	CodeRateLimited  = "RATE_LIMITED"
	CodeAuthRevoked  = "AUTH_REVOKED"
)

// ProviderError carries a machine-readable provider failure code.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return e.Code + ": " + e.Message
}

// IsProviderCode reports whether err is a *ProviderError with the given code.
func IsProviderCode(err error, code string) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}
