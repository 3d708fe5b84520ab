package domain

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderGoogle Provider = "google"
)

// SyncDirection controls which propagation paths are active for a connection.
type SyncDirection string

const (
	DirectionBoth   SyncDirection = "both"
	DirectionImport SyncDirection = "import"
	DirectionExport SyncDirection = "export"
)

// AllowsImport reports whether remote changes may be pulled in.
func (d SyncDirection) AllowsImport() bool {
	return d == DirectionBoth || d == DirectionImport
}

// AllowsExport reports whether local mutations may be pushed out.
func (d SyncDirection) AllowsExport() bool {
	return d == DirectionBoth || d == DirectionExport
}

// Connection links one user to one remote calendar. At most one enabled
// connection may exist per (user, provider, remote calendar id).
type Connection struct {
	ID           int64         `json:"id"`
	UserID       uuid.UUID     `json:"user_id"`
	Provider     Provider      `json:"provider"`
	CalendarID   string        `json:"calendar_id"`
	CalendarName string        `json:"calendar_name"`
	AccessToken  string        `json:"-"`
	RefreshToken string        `json:"-"`
	TokenExpiry  time.Time     `json:"token_expiry"`
	SyncEnabled  bool          `json:"sync_enabled"`
	Direction    SyncDirection `json:"direction"`
	LastSyncAt   time.Time     `json:"last_sync_at,omitempty"`

	// SyncCursor is the opaque provider-issued incremental sync token.
	// Empty means no completed run yet; the next import does a windowed
	// full fetch. Only the sync engine writes it, once per completed run.
	SyncCursor string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenFreshFor reports whether the access token is still valid for at
// least the given margin.
func (c *Connection) TokenFreshFor(margin time.Duration, now time.Time) bool {
	return c.TokenExpiry.Sub(now) > margin
}

// HasCursor reports whether an incremental fetch is possible.
func (c *Connection) HasCursor() bool {
	return c.SyncCursor != ""
}
