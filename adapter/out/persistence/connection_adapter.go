// Package persistence provides database adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/crypto"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ConnectionAdapter implements out.ConnectionRepository using PostgreSQL.
// Tokens are encrypted at rest; the cipher is injected so tests can run
// without a key.
type ConnectionAdapter struct {
	db     *sqlx.DB
	cipher *crypto.Cipher
}

var _ out.ConnectionRepository = (*ConnectionAdapter)(nil)

// NewConnectionAdapter creates a new ConnectionAdapter. A nil cipher
// disables encryption and logs a warning.
func NewConnectionAdapter(db *sqlx.DB, cipher *crypto.Cipher) *ConnectionAdapter {
	if cipher == nil {
		logger.Warn("token encryption disabled: no cipher configured")
	}
	return &ConnectionAdapter{db: db, cipher: cipher}
}

// connectionRow represents the database row for a calendar connection.
type connectionRow struct {
	ID           int64          `db:"id"`
	UserID       string         `db:"user_id"`
	Provider     string         `db:"provider"`
	CalendarID   string         `db:"calendar_id"`
	CalendarName string         `db:"calendar_name"`
	AccessToken  string         `db:"access_token"`
	RefreshToken string         `db:"refresh_token"`
	TokenExpiry  time.Time      `db:"token_expiry"`
	SyncEnabled  bool           `db:"sync_enabled"`
	Direction    string         `db:"direction"`
	LastSyncAt   sql.NullTime   `db:"last_sync_at"`
	SyncCursor   sql.NullString `db:"sync_cursor"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *connectionRow) toEntity() (*domain.Connection, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, err
	}

	conn := &domain.Connection{
		ID:           r.ID,
		UserID:       userID,
		Provider:     domain.Provider(r.Provider),
		CalendarID:   r.CalendarID,
		CalendarName: r.CalendarName,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenExpiry:  r.TokenExpiry,
		SyncEnabled:  r.SyncEnabled,
		Direction:    domain.SyncDirection(r.Direction),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LastSyncAt.Valid {
		conn.LastSyncAt = r.LastSyncAt.Time
	}
	if r.SyncCursor.Valid {
		conn.SyncCursor = r.SyncCursor.String
	}
	return conn, nil
}

// encryptToken encrypts a token if a cipher is configured.
func (a *ConnectionAdapter) encryptToken(token string) string {
	if a.cipher == nil || token == "" {
		return token
	}
	encrypted, err := a.cipher.Encrypt(token)
	if err != nil {
		logger.Warn("failed to encrypt token: %v", err)
		return token
	}
	return encrypted
}

// decryptToken decrypts a token if it appears to be encrypted. Legacy
// plaintext rows pass through unchanged.
func (a *ConnectionAdapter) decryptToken(token string) string {
	if a.cipher == nil || token == "" || !crypto.IsEncrypted(token) {
		return token
	}
	decrypted, err := a.cipher.Decrypt(token)
	if err != nil {
		return token
	}
	return decrypted
}

func (a *ConnectionAdapter) decryptConn(conn *domain.Connection) {
	if conn == nil {
		return
	}
	conn.AccessToken = a.decryptToken(conn.AccessToken)
	conn.RefreshToken = a.decryptToken(conn.RefreshToken)
}

// GetByID returns one connection, or (nil, nil) when absent.
func (a *ConnectionAdapter) GetByID(ctx context.Context, id int64) (*domain.Connection, error) {
	query := `SELECT * FROM calendar_connections WHERE id = $1`

	var row connectionRow
	err := a.db.QueryRowxContext(ctx, query, id).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	conn, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	a.decryptConn(conn)
	return conn, nil
}

// ListByUser returns all connections of a user, newest first.
func (a *ConnectionAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Connection, error) {
	query := `SELECT * FROM calendar_connections WHERE user_id = $1 ORDER BY created_at DESC`

	var rows []connectionRow
	if err := a.db.SelectContext(ctx, &rows, query, userID.String()); err != nil {
		return nil, err
	}
	return a.toEntities(rows)
}

// ListSyncEnabled returns every connection the scheduler should sync.
func (a *ConnectionAdapter) ListSyncEnabled(ctx context.Context) ([]*domain.Connection, error) {
	query := `SELECT * FROM calendar_connections WHERE sync_enabled = true ORDER BY id`

	var rows []connectionRow
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return a.toEntities(rows)
}

// GetEnabledForUser returns the user's enabled connection, or (nil, nil).
func (a *ConnectionAdapter) GetEnabledForUser(ctx context.Context, userID uuid.UUID) (*domain.Connection, error) {
	query := `SELECT * FROM calendar_connections
	          WHERE user_id = $1 AND sync_enabled = true
	          ORDER BY created_at DESC LIMIT 1`

	var row connectionRow
	err := a.db.QueryRowxContext(ctx, query, userID.String()).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	conn, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	a.decryptConn(conn)
	return conn, nil
}

// GetByCalendar resolves the (user, provider, remote calendar id) triple.
func (a *ConnectionAdapter) GetByCalendar(ctx context.Context, userID uuid.UUID, provider domain.Provider, calendarID string) (*domain.Connection, error) {
	query := `SELECT * FROM calendar_connections
	          WHERE user_id = $1 AND provider = $2 AND calendar_id = $3`

	var row connectionRow
	err := a.db.QueryRowxContext(ctx, query, userID.String(), string(provider), calendarID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	conn, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	a.decryptConn(conn)
	return conn, nil
}

// Create inserts a new connection and fills in the generated id.
func (a *ConnectionAdapter) Create(ctx context.Context, conn *domain.Connection) error {
	query := `INSERT INTO calendar_connections
	          (user_id, provider, calendar_id, calendar_name, access_token,
	           refresh_token, token_expiry, sync_enabled, direction, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	          RETURNING id, created_at, updated_at`

	err := a.db.QueryRowxContext(ctx, query,
		conn.UserID.String(),
		string(conn.Provider),
		conn.CalendarID,
		conn.CalendarName,
		a.encryptToken(conn.AccessToken),
		a.encryptToken(conn.RefreshToken),
		conn.TokenExpiry,
		conn.SyncEnabled,
		string(conn.Direction),
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateTokens persists a refreshed credential set.
func (a *ConnectionAdapter) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error {
	query := `UPDATE calendar_connections
	          SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
	          WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id,
		a.encryptToken(accessToken), a.encryptToken(refreshToken), expiry)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateCursor commits the sync cursor and stamps the last sync time.
func (a *ConnectionAdapter) UpdateCursor(ctx context.Context, id int64, cursor string, syncedAt time.Time) error {
	query := `UPDATE calendar_connections
	          SET sync_cursor = $2, last_sync_at = $3, updated_at = NOW()
	          WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id, cursor, syncedAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ClearCursor drops an expired cursor so the next run does a full fetch.
func (a *ConnectionAdapter) ClearCursor(ctx context.Context, id int64) error {
	query := `UPDATE calendar_connections SET sync_cursor = NULL, updated_at = NOW() WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetSyncEnabled toggles the connection on or off.
func (a *ConnectionAdapter) SetSyncEnabled(ctx context.Context, id int64, enabled bool) error {
	query := `UPDATE calendar_connections SET sync_enabled = $2, updated_at = NOW() WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes the connection row.
func (a *ConnectionAdapter) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM calendar_connections WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (a *ConnectionAdapter) toEntities(rows []connectionRow) ([]*domain.Connection, error) {
	conns := make([]*domain.Connection, 0, len(rows))
	for i := range rows {
		conn, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		a.decryptConn(conn)
		conns = append(conns, conn)
	}
	return conns, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
