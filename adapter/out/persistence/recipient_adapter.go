package persistence

import (
	"context"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RecipientAdapter implements out.RecipientRegistry using PostgreSQL.
// The registry is the durable source of truth the reminder scan reads on
// every pass.
type RecipientAdapter struct {
	db *sqlx.DB
}

var _ out.RecipientRegistry = (*RecipientAdapter)(nil)

// NewRecipientAdapter creates a new RecipientAdapter.
func NewRecipientAdapter(db *sqlx.DB) *RecipientAdapter {
	return &RecipientAdapter{db: db}
}

type recipientRow struct {
	UserID    string `db:"user_id"`
	ChannelID string `db:"channel_id"`
	Enabled   bool   `db:"enabled"`
}

// ListEnabled returns every recipient currently registered for reminders.
func (a *RecipientAdapter) ListEnabled(ctx context.Context) ([]*domain.ReminderRecipient, error) {
	query := `SELECT user_id, channel_id, enabled FROM reminder_recipients WHERE enabled = true`

	var rows []recipientRow
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	recipients := make([]*domain.ReminderRecipient, 0, len(rows))
	for i := range rows {
		userID, err := uuid.Parse(rows[i].UserID)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, &domain.ReminderRecipient{
			UserID:    userID,
			ChannelID: rows[i].ChannelID,
			Enabled:   rows[i].Enabled,
		})
	}
	return recipients, nil
}

// Unregister disables reminders for a user. Idempotent: a missing row is
// not an error.
func (a *RecipientAdapter) Unregister(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE reminder_recipients SET enabled = false WHERE user_id = $1`

	_, err := a.db.ExecContext(ctx, query, userID.String())
	return err
}
