package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Yagbe/CarePilot-Urgent/internal/domain/vitals"
	"github.com/Yagbe/CarePilot-Urgent/internal/platform/audit"
)

type stubPublisher struct {
	published int
}

func (p *stubPublisher) PublishQueueUpdate() { p.published++ }

func newTestServer() (*echo.Echo, *Store, *stubPublisher) {
	s := NewStore(NewNoopRecorder(), vitals.NewMemoryRepo(), audit.New(zerolog.Nop(), nil), zerolog.Nop())
	pub := &stubPublisher{}
	h := NewHandler(s, pub, zerolog.Nop())

	e := echo.New()
	api := e.Group("/api")
	staff := api.Group("")
	demo := e.Group("/demo")
	h.RegisterRoutes(api, staff, demo)
	return e, s, pub
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIntakeEndpoint(t *testing.T) {
	e, _, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/intake",
		`{"first_name":"Ava","last_name":"Miller","symptoms":"sore throat, cough","duration_text":"2 days","arrival_window":"now"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("ok: got %v", body["ok"])
	}
	token, _ := body["token"].(string)
	if !strings.HasPrefix(token, "UC-") {
		t.Errorf("token: got %q", token)
	}
	if body["display_name"] != "Ava M." {
		t.Errorf("display_name: got %v", body["display_name"])
	}
}

func TestIntakeEndpointValidation(t *testing.T) {
	e, _, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/intake", `{"symptoms":"cough"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", rec.Code)
	}
}

func TestQRPayloadEndpoint(t *testing.T) {
	e, s, _ := newTestServer()
	record := intakePatient(t, s, "Ava", "cough")

	rec := doJSON(e, http.MethodGet, "/api/qr/"+record.PID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["pid"] != record.PID || body["token"] != record.Token {
		t.Errorf("got %v", body)
	}

	if rec := doJSON(e, http.MethodGet, "/api/qr/NOPE1234", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown pid: got %d", rec.Code)
	}
}

func TestKioskCheckInEndpoint(t *testing.T) {
	e, s, pub := newTestServer()
	record := intakePatient(t, s, "Ava", "cough")

	rec := doJSON(e, http.MethodPost, "/api/kiosk-checkin", `{"code":"`+record.Token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var result CheckInResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.OK || result.Message != "You are checked in." {
		t.Errorf("result: %+v", result)
	}
	if pub.published != 1 {
		t.Errorf("expected one broadcast, got %d", pub.published)
	}
}

func TestKioskCheckInUnknownCodeStaysOK(t *testing.T) {
	e, _, pub := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/kiosk-checkin", `{"code":"UC-0000"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var result CheckInResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.OK || result.Message != "Code not found." {
		t.Errorf("result: %+v", result)
	}
	if pub.published != 0 {
		t.Errorf("failed check-in should not broadcast, got %d", pub.published)
	}
}

func TestTriageEndpoint(t *testing.T) {
	e, s, pub := newTestServer()
	record := intakePatient(t, s, "Ava", "mild rash")
	if _, err := s.CheckIn(context.Background(), record.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	rec := doJSON(e, http.MethodGet, "/api/triage?token="+record.Token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var result TriageResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Script == "" || result.Script != result.Message {
		t.Errorf("script: %+v", result)
	}
	if pub.published != 1 {
		t.Errorf("expected one broadcast, got %d", pub.published)
	}

	if rec := doJSON(e, http.MethodGet, "/api/triage?token=UC-0000", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown token: got %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodGet, "/api/triage", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing token: got %d", rec.Code)
	}
}

func TestPublicQueueEndpoint(t *testing.T) {
	e, s, _ := newTestServer()
	record := intakePatient(t, s, "Ava", "cough")
	if _, err := s.CheckIn(context.Background(), record.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	rec := doJSON(e, http.MethodGet, "/api/queue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Type != "queue_update" || len(snapshot.Items) != 1 {
		t.Errorf("snapshot: %+v", snapshot)
	}
}

func TestStaffQueueEndpoint(t *testing.T) {
	e, s, _ := newTestServer()
	record := intakePatient(t, s, "Ava", "cough")
	if _, err := s.CheckIn(context.Background(), record.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	rec := doJSON(e, http.MethodGet, "/api/staff-queue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body struct {
		ProviderCount int         `json:"provider_count"`
		Items         []StaffItem `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ProviderCount != 1 || len(body.Items) != 1 {
		t.Errorf("got %+v", body)
	}
	if body.Items[0].FullName != "Ava Test" {
		t.Errorf("full_name: got %q", body.Items[0].FullName)
	}
}

func TestSetStatusEndpoint(t *testing.T) {
	e, s, pub := newTestServer()
	record := intakePatient(t, s, "Ava", "cough")
	if _, err := s.CheckIn(context.Background(), record.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	pub.published = 0

	rec := doJSON(e, http.MethodPost, "/api/staff/status/"+record.PID, `{"status":"called"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if pub.published != 1 {
		t.Errorf("expected one broadcast, got %d", pub.published)
	}

	if rec := doJSON(e, http.MethodPost, "/api/staff/status/"+record.PID, `{"status":"waiting"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: got %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodPost, "/api/staff/status/NOPE1234", `{"status":"called"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown pid: got %d", rec.Code)
	}
}

func TestProviderCountEndpoint(t *testing.T) {
	e, _, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/provider-count", `{"count":9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["provider_count"] != float64(3) {
		t.Errorf("count not clamped: %v", body["provider_count"])
	}
}

func TestDemoEndpoints(t *testing.T) {
	e, s, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/demo/seed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("seed status: got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["seeded"] != float64(6) {
		t.Errorf("seeded: %v", body["seeded"])
	}

	if rec := doJSON(e, http.MethodGet, "/api/demo-mode", ""); !strings.Contains(rec.Body.String(), "true") {
		t.Errorf("demo-mode: %s", rec.Body.String())
	}

	if rec := doJSON(e, http.MethodPost, "/demo/reset", ""); rec.Code != http.StatusOK {
		t.Fatalf("reset status: got %d", rec.Code)
	}
	if s.PatientCount() != 0 {
		t.Errorf("reset left %d patients", s.PatientCount())
	}
}
