package http

import (
	"calsync_server/core/domain"
	"calsync_server/core/service/auth"
	"calsync_server/infra/middleware"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// OAuthHandler drives the provider connect flow.
type OAuthHandler struct {
	oauthService *auth.OAuthService
}

func NewOAuthHandler(oauthService *auth.OAuthService) *OAuthHandler {
	return &OAuthHandler{oauthService: oauthService}
}

func (h *OAuthHandler) Register(app fiber.Router) {
	oauth := app.Group("/oauth")
	oauth.Get("/:provider/url", h.AuthURL)
	oauth.Post("/:provider/callback", h.Callback)
}

// AuthURL returns the provider consent URL. The caller's user id is
// carried in the state parameter and verified on callback.
func (h *OAuthHandler) AuthURL(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	provider := domain.Provider(c.Params("provider"))
	url, err := h.oauthService.AuthURL(provider, userID.String())
	if err != nil {
		return apperr.BadRequest(err.Error())
	}

	return response.OK(c, fiber.Map{"url": url})
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Callback exchanges the authorization code and creates or refreshes the
// connection.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	var req callbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.Code == "" {
		return apperr.BadRequest("code is required")
	}
	if state, err := uuid.Parse(req.State); err != nil || state != userID {
		return apperr.Unauthorized("state does not match authenticated user")
	}

	provider := domain.Provider(c.Params("provider"))
	conn, err := h.oauthService.HandleCallback(c.Context(), provider, req.Code, userID)
	if err != nil {
		return apperr.From(err)
	}

	return response.Created(c, conn)
}
