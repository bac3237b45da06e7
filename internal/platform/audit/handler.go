package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Yagbe/CarePilot-Urgent/pkg/pagination"
)

type Handler struct {
	log *Log
}

func NewHandler(log *Log) *Handler {
	return &Handler{log: log}
}

// RegisterRoutes mounts the audit listing on a staff-guarded group.
func (h *Handler) RegisterRoutes(staff *echo.Group) {
	staff.GET("/audit", h.ListEvents)
}

func (h *Handler) ListEvents(c echo.Context) error {
	pg := pagination.FromContext(c)
	events := h.log.Events()
	total := len(events)

	start := pg.Offset
	if start > total {
		start = total
	}
	end := start + pg.Limit
	if end > total {
		end = total
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events[start:end], total, pg.Limit, pg.Offset))
}
