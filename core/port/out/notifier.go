package out

import (
	"context"
	"errors"
	"time"
)

// ErrRecipientGone marks a permanent delivery failure: the recipient
// channel no longer exists (user revoked access, chat deleted). The
// reminder engine unregisters the recipient on this error; any other
// failure is transient and retried on a later scan.
var ErrRecipientGone = errors.New("recipient channel permanently unavailable")

// NotifierPort sends a text notification to a recipient channel.
type NotifierPort interface {
	Send(ctx context.Context, channelID, text string) error
}

// SyncLock serializes sync runs per connection across processes. Acquire
// returns false without blocking when another run holds the lease; the
// TTL bounds how long a crashed run can keep a connection locked.
type SyncLock interface {
	Acquire(ctx context.Context, connectionID int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, connectionID int64) error
}
