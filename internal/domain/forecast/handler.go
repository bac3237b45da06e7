package forecast

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Yagbe/CarePilot-Urgent/internal/domain/queue"
)

type Handler struct {
	store *queue.Store
	now   func() time.Time
}

func NewHandler(store *queue.Store) *Handler {
	return &Handler{store: store, now: time.Now}
}

func (h *Handler) RegisterRoutes(staff *echo.Group) {
	staff.GET("/analytics", h.Analytics)
}

// Analytics reports current queue pressure alongside the arrival and
// wait projection for the next two hours. A `providers` query
// parameter lets staff model a different staffing level without
// changing the live provider count; it is clamped to [1,3].
func (h *Handler) Analytics(c echo.Context) error {
	items := h.store.StaffItems(c.Request().Context())

	providers := h.store.ProviderCount()
	if raw := c.QueryParam("providers"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n != 0 {
			providers = n
		}
	}
	if providers < 1 {
		providers = 1
	}
	if providers > 3 {
		providers = 3
	}
	peak := queue.PeakWait(items)
	arriveNow, arriveSoon, arriveLater := h.store.ArrivalWindowCounts()

	projection := Project(h.now(), peak, providers, arriveNow, arriveSoon, arriveLater)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider_count":    providers,
		"current_queue":     len(items),
		"current_avg_wait":  queue.AvgWait(items),
		"current_peak_wait": peak,
		"lane_counts":       queue.LaneCounts(items),
		"forecast":          projection,
	})
}
