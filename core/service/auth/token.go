package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"

	"golang.org/x/oauth2"
)

// tokenFreshnessMargin is how long an access token must remain valid for
// a sync run to start without refreshing first.
const tokenFreshnessMargin = 5 * time.Minute

// TokenService keeps connection credentials valid without blocking sync
// operations longer than one refresh round trip.
type TokenService struct {
	connRepo  out.ConnectionRepository
	providers out.ProviderFactory
	now       func() time.Time
}

// NewTokenService creates a new token lifecycle manager.
func NewTokenService(connRepo out.ConnectionRepository, providers out.ProviderFactory) *TokenService {
	return &TokenService{
		connRepo:  connRepo,
		providers: providers,
		now:       time.Now,
	}
}

// EnsureFreshToken returns a connection whose access token is valid for
// at least the freshness margin, refreshing and persisting if necessary.
// The new token is persisted before it is returned, so a crash after the
// refresh grant never leaves the engine holding an unpersisted token.
//
// On refresh failure the caller must abort the current sync attempt for
// this connection; the connection itself stays usable for the next cycle.
func (s *TokenService) EnsureFreshToken(ctx context.Context, conn *domain.Connection) (*domain.Connection, error) {
	if conn.TokenFreshFor(tokenFreshnessMargin, s.now()) {
		return conn, nil
	}

	provider, err := s.providers.ForProvider(conn.Provider)
	if err != nil {
		return nil, err
	}

	newToken, err := provider.RefreshToken(ctx, s.OAuth2Token(conn))
	if err != nil {
		if isTokenRevokedError(err) {
			logger.Warn("refresh token revoked for connection %d: %v", conn.ID, err)
			return nil, apperr.ReauthRequired(err)
		}
		return nil, fmt.Errorf("refresh token grant failed: %w", err)
	}

	// The provider reissues the refresh token only occasionally; reuse
	// the stored one otherwise.
	refreshToken := conn.RefreshToken
	if newToken.RefreshToken != "" {
		refreshToken = newToken.RefreshToken
	}

	if err := s.connRepo.UpdateTokens(ctx, conn.ID, newToken.AccessToken, refreshToken, newToken.Expiry); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	updated := *conn
	updated.AccessToken = newToken.AccessToken
	updated.RefreshToken = refreshToken
	updated.TokenExpiry = newToken.Expiry

	logger.Debug("token refreshed for connection %d, new expiry %s", conn.ID, newToken.Expiry.Format(time.RFC3339))
	return &updated, nil
}

// OAuth2Token builds the oauth2 token from the connection's stored
// credentials.
func (s *TokenService) OAuth2Token(conn *domain.Connection) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		Expiry:       conn.TokenExpiry,
		TokenType:    "Bearer",
	}
}

// isTokenRevokedError checks whether the error indicates a permanently
// invalid refresh token, as opposed to a transient network failure.
func isTokenRevokedError(err error) bool {
	if err == nil {
		return false
	}
	if out.IsProviderCode(err, out.CodeAuthRevoked) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid_client") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "Token has been expired or revoked") ||
		strings.Contains(errStr, "Token has been revoked")
}
