package http

import (
	"strconv"
	"time"

	"calsync_server/core/service/calendar"
	"calsync_server/infra/middleware"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// EventHandler exposes local event CRUD plus the advisory conflict query.
type EventHandler struct {
	eventService *calendar.EventService
}

func NewEventHandler(eventService *calendar.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

func (h *EventHandler) Register(app fiber.Router) {
	events := app.Group("/events")
	events.Get("/", h.List)
	events.Get("/conflicts", h.Conflicts)
	events.Get("/:id", h.Get)
	events.Post("/", h.Create)
	events.Put("/:id", h.Update)
	events.Delete("/:id", h.Delete)
}

func (h *EventHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	start, end, err := parseRange(c)
	if err != nil {
		return err
	}

	events, err := h.eventService.ListEvents(c.Context(), userID, start, end)
	if err != nil {
		return apperr.From(err)
	}
	return response.OK(c, events)
}

func (h *EventHandler) Get(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	event, err := h.eventService.GetEvent(c.Context(), userID, eventID)
	if err != nil {
		return apperr.From(err)
	}
	return response.OK(c, event)
}

func (h *EventHandler) Create(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	var input calendar.CreateEventInput
	if err := c.BodyParser(&input); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	result, err := h.eventService.CreateEvent(c.Context(), userID, &input)
	if err != nil {
		return apperr.From(err)
	}

	body := fiber.Map{"event": result.Event, "conflicts": result.Conflicts}
	if result.ExportErr != nil {
		return response.CreatedWithWarning(c, body, "event saved locally, remote export failed")
	}
	return response.Created(c, body)
}

func (h *EventHandler) Update(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	var input calendar.CreateEventInput
	if err := c.BodyParser(&input); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	result, err := h.eventService.UpdateEvent(c.Context(), userID, eventID, &input)
	if err != nil {
		return apperr.From(err)
	}

	body := fiber.Map{"event": result.Event, "conflicts": result.Conflicts}
	if result.ExportErr != nil {
		return response.OKWithWarning(c, body, "event saved locally, remote export failed")
	}
	return response.OK(c, body)
}

func (h *EventHandler) Delete(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	result, err := h.eventService.DeleteEvent(c.Context(), userID, eventID)
	if err != nil {
		return apperr.From(err)
	}

	if result.ExportErr != nil {
		return response.OKWithWarning(c, nil, "event deleted locally, remote delete failed")
	}
	return response.NoContent(c)
}

// Conflicts answers "would [start, end) collide with anything" without
// touching any data.
func (h *EventHandler) Conflicts(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	start, end, err := parseRange(c)
	if err != nil {
		return err
	}

	var exclude *int64
	if raw := c.Query("exclude"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return apperr.BadRequest("invalid exclude id")
		}
		exclude = &id
	}

	conflicts, err := h.eventService.CheckConflicts(c.Context(), userID, start, end, exclude)
	if err != nil {
		return apperr.From(err)
	}
	return response.OK(c, fiber.Map{"conflicts": conflicts})
}

func parseRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.BadRequest("start must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.BadRequest("end must be RFC3339")
	}
	return start, end, nil
}

func parseEventID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, apperr.BadRequest("invalid event id")
	}
	return id, nil
}
