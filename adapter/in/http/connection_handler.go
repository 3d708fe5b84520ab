package http

import (
	"strconv"

	"calsync_server/core/domain"
	"calsync_server/core/service/auth"
	"calsync_server/core/service/calendar"
	"calsync_server/infra/middleware"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ConnectionHandler manages calendar connections: listing, toggling,
// deletion, run history, and manual sync triggers.
type ConnectionHandler struct {
	oauthService *auth.OAuthService
	syncService  *calendar.SyncService
}

func NewConnectionHandler(oauthService *auth.OAuthService, syncService *calendar.SyncService) *ConnectionHandler {
	return &ConnectionHandler{oauthService: oauthService, syncService: syncService}
}

func (h *ConnectionHandler) Register(app fiber.Router) {
	conns := app.Group("/connections")
	conns.Get("/", h.List)
	conns.Get("/:id", h.Get)
	conns.Patch("/:id", h.Toggle)
	conns.Delete("/:id", h.Delete)
	conns.Get("/:id/runs", h.ListRuns)
	conns.Post("/:id/sync", h.TriggerSync)
}

func (h *ConnectionHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	conns, err := h.oauthService.ListConnections(c.Context(), userID)
	if err != nil {
		return apperr.Internal(err)
	}
	return response.OK(c, conns)
}

func (h *ConnectionHandler) Get(c *fiber.Ctx) error {
	conn, err := h.ownedConnection(c)
	if err != nil {
		return err
	}
	return response.OK(c, conn)
}

type toggleRequest struct {
	SyncEnabled bool `json:"sync_enabled"`
}

func (h *ConnectionHandler) Toggle(c *fiber.Ctx) error {
	conn, err := h.ownedConnection(c)
	if err != nil {
		return err
	}

	var req toggleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	if err := h.oauthService.SetSyncEnabled(c.Context(), conn.ID, req.SyncEnabled); err != nil {
		return apperr.Internal(err)
	}
	conn.SyncEnabled = req.SyncEnabled
	return response.OK(c, conn)
}

func (h *ConnectionHandler) Delete(c *fiber.Ctx) error {
	conn, err := h.ownedConnection(c)
	if err != nil {
		return err
	}

	if err := h.oauthService.DeleteConnection(c.Context(), conn.ID); err != nil {
		return apperr.Internal(err)
	}
	return response.NoContent(c)
}

func (h *ConnectionHandler) ListRuns(c *fiber.Ctx) error {
	conn, err := h.ownedConnection(c)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	runs, err := h.oauthService.ListRuns(c.Context(), conn.ID, limit)
	if err != nil {
		return apperr.Internal(err)
	}
	return response.OK(c, runs)
}

// TriggerSync runs one import cycle immediately instead of waiting for
// the scheduler. Returns 409 when a run is already in flight.
func (h *ConnectionHandler) TriggerSync(c *fiber.Ctx) error {
	conn, err := h.ownedConnection(c)
	if err != nil {
		return err
	}
	if !conn.SyncEnabled {
		return apperr.BadRequest("sync is disabled for this connection")
	}

	stats, err := h.syncService.ImportFromRemote(c.Context(), conn)
	if err != nil {
		return apperr.From(err)
	}
	return response.OK(c, stats)
}

// ownedConnection resolves the :id parameter and enforces ownership.
func (h *ConnectionHandler) ownedConnection(c *fiber.Ctx) (*domain.Connection, error) {
	userID, err := middleware.UserID(c)
	if err != nil {
		return nil, err
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return nil, apperr.BadRequest("invalid connection id")
	}

	conn, err := h.oauthService.GetConnection(c.Context(), id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if conn == nil || conn.UserID != userID {
		return nil, apperr.NotFound("connection")
	}
	return conn, nil
}
