package vitals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Yagbe/CarePilot-Urgent/internal/platform/audit"
)

type stubResolver struct {
	pid, token string
}

func (r *stubResolver) ResolveCode(code string) (string, string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == r.pid || code == strings.ToUpper(r.token) {
		return r.pid, r.token, true
	}
	return "", "", false
}

type stubPublisher struct {
	published int
}

func (p *stubPublisher) PublishQueueUpdate() { p.published++ }

func newTestHandler(allowSimulate bool) (*echo.Echo, Repository, *stubPublisher) {
	repo := NewMemoryRepo()
	pub := &stubPublisher{}
	h := NewHandler(repo, &stubResolver{pid: "AB12CD34", token: "UC-1234"}, pub, audit.New(zerolog.Nop(), nil), allowSimulate)

	e := echo.New()
	public := e.Group("/api")
	staff := e.Group("/api")
	h.RegisterRoutes(public, staff)
	return e, repo, pub
}

func TestSubmitJSON(t *testing.T) {
	e, repo, pub := newTestHandler(false)

	payload := `{"token":"uc-1234","spo2":97,"hr":72,"temp_c":36.8,"bp_sys":118,"bp_dia":76}`
	req := httptest.NewRequest(http.MethodPost, "/api/vitals/submit/json", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["pid"] != "AB12CD34" || body["token"] != "UC-1234" {
		t.Errorf("body: %v", body)
	}
	if pub.published != 1 {
		t.Errorf("expected one broadcast, got %d", pub.published)
	}

	sample, err := repo.LatestByPatient(context.Background(), "AB12CD34")
	if err != nil || sample == nil {
		t.Fatalf("latest: %v %v", sample, err)
	}
	if sample.DeviceID != "sensors" {
		t.Errorf("default device: got %q", sample.DeviceID)
	}
	if sample.Confidence != 0.9 {
		t.Errorf("default confidence: got %v", sample.Confidence)
	}
	if sample.SpO2 == nil || *sample.SpO2 != 97 {
		t.Errorf("spo2: got %v", sample.SpO2)
	}
}

func TestSubmitForm(t *testing.T) {
	e, repo, _ := newTestHandler(false)

	form := url.Values{}
	form.Set("pid", "AB12CD34")
	form.Set("device_id", "jetson-01")
	form.Set("hr", "88")
	req := httptest.NewRequest(http.MethodPost, "/api/vitals/submit", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	sample, err := repo.LatestByPatient(context.Background(), "AB12CD34")
	if err != nil || sample == nil {
		t.Fatalf("latest: %v %v", sample, err)
	}
	if sample.DeviceID != "jetson-01" {
		t.Errorf("device: got %q", sample.DeviceID)
	}
	if sample.HR == nil || *sample.HR != 88 {
		t.Errorf("hr: got %v", sample.HR)
	}
}

func TestSubmitUnknownPatient(t *testing.T) {
	e, _, pub := newTestHandler(false)

	req := httptest.NewRequest(http.MethodPost, "/api/vitals/submit/json", strings.NewReader(`{"token":"UC-0000"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d", rec.Code)
	}
	if pub.published != 0 {
		t.Errorf("rejected submit should not broadcast")
	}
}

func TestSubmitHonorsTimestamp(t *testing.T) {
	e, repo, _ := newTestHandler(false)

	payload := `{"token":"UC-1234","ts":"2026-03-10T09:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/vitals/submit/json", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	sample, _ := repo.LatestByPatient(context.Background(), "AB12CD34")
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !sample.TS.Equal(want) {
		t.Errorf("ts: got %v", sample.TS)
	}
}

func TestByToken(t *testing.T) {
	e, repo, _ := newTestHandler(false)

	if err := repo.Insert(context.Background(), SimulatedSample("AB12CD34", "UC-1234", time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vitals/by-token?token=UC-1234", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sim-vitals") {
		t.Errorf("body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vitals/by-token", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing token: got %d", rec.Code)
	}
}

func TestSimulateGated(t *testing.T) {
	e, _, _ := newTestHandler(false)

	form := url.Values{}
	form.Set("pid", "AB12CD34")
	req := httptest.NewRequest(http.MethodPost, "/api/vitals/simulate", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("disabled simulate: got %d", rec.Code)
	}
}

func TestSimulateEnabled(t *testing.T) {
	e, repo, _ := newTestHandler(true)

	form := url.Values{}
	form.Set("pid", "AB12CD34")
	req := httptest.NewRequest(http.MethodPost, "/api/vitals/simulate", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	sample, err := repo.LatestByPatient(context.Background(), "AB12CD34")
	if err != nil || sample == nil {
		t.Fatalf("latest: %v %v", sample, err)
	}
	if !sample.Simulated || sample.DeviceID != "sim-vitals" || sample.Confidence != 0.89 {
		t.Errorf("sample: %+v", sample)
	}
}

func TestSimulatedSampleRanges(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := SimulatedSample("P", "T", time.Now())
		if *s.SpO2 < 96 || *s.SpO2 > 100 {
			t.Fatalf("spo2 out of range: %v", *s.SpO2)
		}
		if *s.HR < 62 || *s.HR > 98 {
			t.Fatalf("hr out of range: %v", *s.HR)
		}
		if *s.TempC < 36.4 || *s.TempC > 37.6 {
			t.Fatalf("temp out of range: %v", *s.TempC)
		}
		if *s.BPSys < 108 || *s.BPSys > 132 {
			t.Fatalf("bp_sys out of range: %v", *s.BPSys)
		}
		if *s.BPDia < 68 || *s.BPDia > 86 {
			t.Fatalf("bp_dia out of range: %v", *s.BPDia)
		}
	}
}

func TestMemoryRepoLatestAndReset(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if s, err := repo.LatestByPatient(ctx, "NOPE"); err != nil || s != nil {
		t.Fatalf("empty repo: %v %v", s, err)
	}

	first := SimulatedSample("P1", "UC-1111", time.Now())
	second := SimulatedSample("P1", "UC-1111", time.Now().Add(time.Minute))
	second.DeviceID = "later"
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	latest, err := repo.LatestByPatient(ctx, "P1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.DeviceID != "later" {
		t.Errorf("expected most recent sample, got %q", latest.DeviceID)
	}

	if err := repo.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s, _ := repo.LatestByPatient(ctx, "P1"); s != nil {
		t.Errorf("reset left samples behind")
	}
}
