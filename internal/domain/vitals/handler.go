package vitals

import (
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Yagbe/CarePilot-Urgent/internal/platform/audit"
)

// Resolver maps a scanned or typed code (pid, token, or "pid|token"
// QR payload) to a known patient.
type Resolver interface {
	ResolveCode(code string) (pid, token string, ok bool)
}

// Publisher pushes a fresh queue snapshot to websocket subscribers.
type Publisher interface {
	PublishQueueUpdate()
}

type Handler struct {
	repo          Repository
	resolver      Resolver
	publisher     Publisher
	audit         *audit.Log
	allowSimulate bool
	now           func() time.Time
}

func NewHandler(repo Repository, resolver Resolver, publisher Publisher, auditLog *audit.Log, allowSimulate bool) *Handler {
	return &Handler{
		repo:          repo,
		resolver:      resolver,
		publisher:     publisher,
		audit:         auditLog,
		allowSimulate: allowSimulate,
		now:           time.Now,
	}
}

// RegisterRoutes mounts public submission endpoints and staff lookups.
func (h *Handler) RegisterRoutes(public, staff *echo.Group) {
	public.POST("/vitals/submit", h.Submit)
	public.POST("/vitals/submit/json", h.Submit)
	public.GET("/vitals/by-token", h.ByToken)
	staff.GET("/vitals/:pid", h.LatestForPatient)
	staff.POST("/vitals/simulate", h.Simulate)
}

// SubmitRequest is the sensor-bridge payload, accepted as form or JSON.
type SubmitRequest struct {
	PID        string   `json:"pid" form:"pid"`
	Token      string   `json:"token" form:"token"`
	DeviceID   string   `json:"device_id" form:"device_id"`
	SpO2       *float64 `json:"spo2" form:"spo2"`
	HR         *float64 `json:"hr" form:"hr"`
	TempC      *float64 `json:"temp_c" form:"temp_c"`
	BPSys      *float64 `json:"bp_sys" form:"bp_sys"`
	BPDia      *float64 `json:"bp_dia" form:"bp_dia"`
	Confidence *float64 `json:"confidence" form:"confidence"`
	Simulated  bool     `json:"simulated" form:"simulated"`
	TS         string   `json:"ts" form:"ts"`
}

func (h *Handler) Submit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	code := strings.TrimSpace(req.PID)
	if code == "" {
		code = strings.TrimSpace(req.Token)
	}
	pid, token, ok := h.resolver.ResolveCode(code)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found.")
	}

	ts := h.now().UTC()
	if req.TS != "" {
		if parsed, err := time.Parse(time.RFC3339, req.TS); err == nil {
			ts = parsed.UTC()
		}
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		deviceID = "sensors"
	}
	confidence := 0.9
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	sample := &Sample{
		PID:        pid,
		Token:      token,
		DeviceID:   deviceID,
		SpO2:       req.SpO2,
		HR:         req.HR,
		TempC:      req.TempC,
		BPSys:      req.BPSys,
		BPDia:      req.BPDia,
		Confidence: confidence,
		TS:         ts,
		Simulated:  req.Simulated,
	}
	if err := h.repo.Insert(c.Request().Context(), sample); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.audit.Record("vitals_submit", map[string]interface{}{"pid": pid, "token": token, "device_id": deviceID})
	h.publisher.PublishQueueUpdate()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok": true, "pid": pid, "token": token, "ts": ts.Format(time.RFC3339),
	})
}

// ByToken returns the latest sample for a patient by token, for the
// kiosk to display auto-collected vitals.
func (h *Handler) ByToken(c echo.Context) error {
	code := strings.TrimSpace(c.QueryParam("token"))
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	pid, _, ok := h.resolver.ResolveCode(code)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found.")
	}
	sample, err := h.repo.LatestByPatient(c.Request().Context(), pid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "vitals": sample})
}

func (h *Handler) LatestForPatient(c echo.Context) error {
	sample, err := h.repo.LatestByPatient(c.Request().Context(), c.Param("pid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "vitals": sample})
}

// Simulate records an in-range random sample for a patient, for demos
// and lobby walkthroughs without sensor hardware.
func (h *Handler) Simulate(c echo.Context) error {
	if !h.allowSimulate {
		return echo.NewHTTPError(http.StatusBadRequest, "Simulated vitals disabled.")
	}
	code := strings.TrimSpace(c.FormValue("pid"))
	pid, token, ok := h.resolver.ResolveCode(code)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found.")
	}

	sample := SimulatedSample(pid, token, h.now().UTC())
	if err := h.repo.Insert(c.Request().Context(), sample); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.audit.Record("vitals_submit", map[string]interface{}{"pid": pid, "token": token, "device_id": sample.DeviceID})
	h.publisher.PublishQueueUpdate()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok": true, "pid": pid, "token": token, "ts": sample.TS.Format(time.RFC3339),
	})
}

// SimulatedSample produces one plausible resting-range reading.
func SimulatedSample(pid, token string, ts time.Time) *Sample {
	spo2 := float64(96 + rand.Intn(5))
	hr := float64(62 + rand.Intn(37))
	temp := math.Round((36.4+rand.Float64()*1.2)*10) / 10
	bpSys := float64(108 + rand.Intn(25))
	bpDia := float64(68 + rand.Intn(19))
	return &Sample{
		PID:        pid,
		Token:      token,
		DeviceID:   "sim-vitals",
		SpO2:       &spo2,
		HR:         &hr,
		TempC:      &temp,
		BPSys:      &bpSys,
		BPDia:      &bpDia,
		Confidence: 0.89,
		TS:         ts,
		Simulated:  true,
	}
}
