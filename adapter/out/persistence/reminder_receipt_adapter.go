package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ReminderReceiptAdapter implements out.ReminderReceiptRepository using
// PostgreSQL. The primary key is (event_id, user_id); a replayed send
// overwrites its own receipt instead of failing.
type ReminderReceiptAdapter struct {
	db *sqlx.DB
}

var _ out.ReminderReceiptRepository = (*ReminderReceiptAdapter)(nil)

// NewReminderReceiptAdapter creates a new ReminderReceiptAdapter.
func NewReminderReceiptAdapter(db *sqlx.DB) *ReminderReceiptAdapter {
	return &ReminderReceiptAdapter{db: db}
}

type receiptRow struct {
	EventID    int64     `db:"event_id"`
	UserID     string    `db:"user_id"`
	ChannelID  string    `db:"channel_id"`
	EventStart time.Time `db:"event_start"`
	SentAt     time.Time `db:"sent_at"`
}

func (r *receiptRow) toEntity() (*domain.ReminderReceipt, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.ReminderReceipt{
		EventID:    r.EventID,
		UserID:     userID,
		ChannelID:  r.ChannelID,
		EventStart: r.EventStart,
		SentAt:     r.SentAt,
	}, nil
}

// Get returns the receipt for (event, user), or (nil, nil) when no
// reminder was sent yet.
func (a *ReminderReceiptAdapter) Get(ctx context.Context, eventID int64, userID uuid.UUID) (*domain.ReminderReceipt, error) {
	query := `SELECT * FROM reminder_receipts WHERE event_id = $1 AND user_id = $2`

	var row receiptRow
	err := a.db.QueryRowxContext(ctx, query, eventID, userID.String()).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity()
}

// Upsert records a sent reminder.
func (a *ReminderReceiptAdapter) Upsert(ctx context.Context, receipt *domain.ReminderReceipt) error {
	query := `INSERT INTO reminder_receipts
	          (event_id, user_id, channel_id, event_start, sent_at)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (event_id, user_id) DO UPDATE SET
	              channel_id  = EXCLUDED.channel_id,
	              event_start = EXCLUDED.event_start,
	              sent_at     = EXCLUDED.sent_at`

	_, err := a.db.ExecContext(ctx, query,
		receipt.EventID,
		receipt.UserID.String(),
		receipt.ChannelID,
		receipt.EventStart,
		receipt.SentAt,
	)
	return err
}

// PurgeOlderThan removes receipts whose event started before the cutoff.
func (a *ReminderReceiptAdapter) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM reminder_receipts WHERE event_start < $1`

	result, err := a.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
