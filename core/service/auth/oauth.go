package auth

import (
	"context"
	"fmt"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// initialImportTimeout bounds the background import kicked off right
// after a connection is created.
const initialImportTimeout = 2 * time.Minute

// InitialImporter pulls the first remote snapshot for a freshly created
// connection. Satisfied by the sync engine.
type InitialImporter interface {
	ImportFromRemote(ctx context.Context, conn *domain.Connection) (*domain.RunStats, error)
}

// OAuthService handles the authorization-code flow and connection
// lifecycle. Deleting a connection cascades to its mappings and run logs.
type OAuthService struct {
	connRepo     out.ConnectionRepository
	mappingRepo  out.MappingRepository
	runlogRepo   out.RunLogRepository
	providers    out.ProviderFactory
	importer     InitialImporter
	googleConfig *oauth2.Config
}

// GoogleOAuthConfig builds the oauth2 config for the Google provider.
func GoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar.readonly",
			"https://www.googleapis.com/auth/calendar.events",
		},
		Endpoint: google.Endpoint,
	}
}

// NewOAuthService creates a new OAuth/connection service.
func NewOAuthService(
	connRepo out.ConnectionRepository,
	mappingRepo out.MappingRepository,
	runlogRepo out.RunLogRepository,
	providers out.ProviderFactory,
	importer InitialImporter,
	googleConfig *oauth2.Config,
) *OAuthService {
	return &OAuthService{
		connRepo:     connRepo,
		mappingRepo:  mappingRepo,
		runlogRepo:   runlogRepo,
		providers:    providers,
		importer:     importer,
		googleConfig: googleConfig,
	}
}

// AuthURL returns the provider consent URL for the given state.
func (s *OAuthService) AuthURL(provider domain.Provider, state string) (string, error) {
	switch provider {
	case domain.ProviderGoogle:
		if s.googleConfig == nil {
			return "", fmt.Errorf("google oauth not configured")
		}
		return s.googleConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
}

// HandleCallback exchanges the authorization code and creates (or
// refreshes) the connection for the user's primary remote calendar.
func (s *OAuthService) HandleCallback(ctx context.Context, provider domain.Provider, code string, userID uuid.UUID) (*domain.Connection, error) {
	if provider != domain.ProviderGoogle {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	if s.googleConfig == nil {
		return nil, fmt.Errorf("google oauth not configured")
	}

	token, err := s.googleConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	adapter, err := s.providers.ForProvider(provider)
	if err != nil {
		return nil, err
	}

	calendarID, calendarName, err := primaryCalendar(ctx, adapter, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve remote calendar: %w", err)
	}

	// At most one enabled connection per (user, provider, calendar):
	// a repeat authorization refreshes the existing row's tokens.
	existing, err := s.connRepo.GetByCalendar(ctx, userID, provider, calendarID)
	if err == nil && existing != nil {
		if err := s.connRepo.UpdateTokens(ctx, existing.ID, token.AccessToken, pickRefreshToken(token, existing), token.Expiry); err != nil {
			return nil, fmt.Errorf("failed to update connection tokens: %w", err)
		}
		existing.AccessToken = token.AccessToken
		existing.TokenExpiry = token.Expiry
		logger.Info("connection %d re-authorized for user %s", existing.ID, userID)
		return existing, nil
	}

	conn := &domain.Connection{
		UserID:       userID,
		Provider:     provider,
		CalendarID:   calendarID,
		CalendarName: calendarName,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		SyncEnabled:  true,
		Direction:    domain.DirectionBoth,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.connRepo.Create(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	logger.Info("connection %d created for user %s calendar %q", conn.ID, userID, calendarName)

	// Pull the first snapshot without holding the callback response open.
	// The sync lease makes this safe against a concurrent scheduled cycle.
	if s.importer != nil {
		fresh := *conn
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), initialImportTimeout)
			defer cancel()
			if _, err := s.importer.ImportFromRemote(ctx, &fresh); err != nil {
				logger.WithError(err).Warn("initial import failed for connection %d", fresh.ID)
			}
		}()
	}

	return conn, nil
}

// GetConnection returns a connection by id.
func (s *OAuthService) GetConnection(ctx context.Context, connectionID int64) (*domain.Connection, error) {
	return s.connRepo.GetByID(ctx, connectionID)
}

// ListConnections returns all connections of a user.
func (s *OAuthService) ListConnections(ctx context.Context, userID uuid.UUID) ([]*domain.Connection, error) {
	return s.connRepo.ListByUser(ctx, userID)
}

// ListRuns returns the most recent sync runs of a connection.
func (s *OAuthService) ListRuns(ctx context.Context, connectionID int64, limit int) ([]*domain.SyncRunLog, error) {
	return s.runlogRepo.ListByConnection(ctx, connectionID, limit)
}

// SetSyncEnabled toggles the sync-enabled flag.
func (s *OAuthService) SetSyncEnabled(ctx context.Context, connectionID int64, enabled bool) error {
	return s.connRepo.SetSyncEnabled(ctx, connectionID, enabled)
}

// DeleteConnection removes the connection and cascade-deletes everything
// scoped to it: mappings first, then run logs, then the connection row.
func (s *OAuthService) DeleteConnection(ctx context.Context, connectionID int64) error {
	mappings, err := s.mappingRepo.DeleteByConnection(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("failed to delete mappings: %w", err)
	}

	runs, err := s.runlogRepo.DeleteByConnection(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("failed to delete run logs: %w", err)
	}

	if err := s.connRepo.Delete(ctx, connectionID); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	logger.Info("connection %d deleted (%d mappings, %d run logs)", connectionID, mappings, runs)
	return nil
}

func primaryCalendar(ctx context.Context, adapter out.CalendarProviderPort, token *oauth2.Token) (id, name string, err error) {
	calendars, err := adapter.ListCalendars(ctx, token)
	if err != nil {
		return "", "", err
	}
	for _, cal := range calendars {
		if cal.IsPrimary {
			return cal.ID, cal.Name, nil
		}
	}
	if len(calendars) > 0 {
		return calendars[0].ID, calendars[0].Name, nil
	}
	return "", "", fmt.Errorf("account has no calendars")
}

func pickRefreshToken(token *oauth2.Token, existing *domain.Connection) string {
	if token.RefreshToken != "" {
		return token.RefreshToken
	}
	return existing.RefreshToken
}
