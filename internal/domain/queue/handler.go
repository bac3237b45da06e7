package queue

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Publisher pushes fresh queue snapshots to connected clients.
type Publisher interface {
	PublishQueueUpdate()
}

type Handler struct {
	store     *Store
	publisher Publisher
	logger    zerolog.Logger
}

func NewHandler(store *Store, publisher Publisher, logger zerolog.Logger) *Handler {
	return &Handler{store: store, publisher: publisher, logger: logger}
}

func (h *Handler) RegisterRoutes(public, staff, demo *echo.Group) {
	public.POST("/intake", h.Intake)
	public.GET("/qr/:pid", h.QRPayload)
	public.POST("/kiosk-checkin", h.KioskCheckIn)
	public.POST("/kiosk-checkin/json", h.KioskCheckIn)
	public.GET("/triage", h.Triage)
	public.GET("/queue", h.PublicQueue)
	public.GET("/lobby-load", h.LobbyLoad)
	public.GET("/demo-mode", h.DemoMode)

	staff.GET("/staff-queue", h.StaffQueue)
	staff.POST("/staff/status/:pid", h.SetStatus)
	staff.POST("/provider-count", h.SetProviderCount)

	demo.POST("/seed", h.SeedDemo)
	demo.POST("/reset", h.Reset)
}

func (h *Handler) Intake(c echo.Context) error {
	var req IntakeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	record, err := h.store.Intake(c.Request().Context(), req)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "intake failed")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"ok":           true,
		"pid":          record.PID,
		"token":        record.Token,
		"display_name": displayName(record),
		"qr_payload":   record.PID + "|" + record.Token,
		"ai_result":    record.Assessment,
	})
}

func (h *Handler) QRPayload(c echo.Context) error {
	record, ok := h.store.Patient(c.Param("pid"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found.")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pid":          record.PID,
		"token":        record.Token,
		"display_name": displayName(record),
	})
}

type checkinRequest struct {
	Code string `json:"code" form:"code"`
}

// KioskCheckIn always answers 200: unknown codes and cooldown hits
// come back with ok=false so the kiosk screen can render the message.
func (h *Handler) KioskCheckIn(c echo.Context) error {
	var req checkinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.store.CheckIn(c.Request().Context(), req.Code)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCooldown) {
			return c.JSON(http.StatusOK, result)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "check-in failed")
	}

	h.publisher.PublishQueueUpdate()
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Triage(c echo.Context) error {
	token := c.QueryParam("token")

	result, err := h.store.ClassifyPriority(c.Request().Context(), token)
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Patient not found.")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "triage failed")
	}

	h.publisher.PublishQueueUpdate()
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) PublicQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.QueueSnapshot())
}

func (h *Handler) LobbyLoad(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.LobbyLoad())
}

func (h *Handler) DemoMode(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"demo_mode": h.store.DemoMode()})
}

func (h *Handler) StaffQueue(c echo.Context) error {
	items := h.store.StaffItems(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider_count": h.store.ProviderCount(),
		"items":          items,
	})
}

type statusRequest struct {
	Status string `json:"status" form:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	pid := c.Param("pid")
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := h.store.SetStatus(c.Request().Context(), pid, Status(req.Status))
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found.")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "status update failed")
	}

	h.publisher.PublishQueueUpdate()
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "pid": pid, "status": req.Status})
}

type providerCountRequest struct {
	Count int `json:"count" form:"count"`
}

func (h *Handler) SetProviderCount(c echo.Context) error {
	var req providerCountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "count must be a number")
	}

	applied := h.store.SetProviderCount(c.Request().Context(), req.Count)
	h.publisher.PublishQueueUpdate()
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "provider_count": applied})
}

func (h *Handler) SeedDemo(c echo.Context) error {
	seeded := h.store.SeedDemo(c.Request().Context())
	h.publisher.PublishQueueUpdate()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":        true,
		"seeded":    seeded,
		"demo_mode": true,
	})
}

func (h *Handler) Reset(c echo.Context) error {
	if err := h.store.Reset(c.Request().Context()); err != nil {
		h.logger.Error().Err(err).Msg("queue: reset failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "reset failed")
	}
	h.publisher.PublishQueueUpdate()
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

func displayName(p *PatientRecord) string {
	name := strings.TrimSpace(p.FirstName)
	if name == "" {
		return "Unknown Patient"
	}
	if last := strings.TrimSpace(p.LastName); last != "" {
		name = fmt.Sprintf("%s %s.", name, strings.ToUpper(last[:1]))
	}
	return name
}
