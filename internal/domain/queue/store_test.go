package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yagbe/CarePilot-Urgent/internal/domain/triage"
	"github.com/Yagbe/CarePilot-Urgent/internal/domain/vitals"
	"github.com/Yagbe/CarePilot-Urgent/internal/platform/audit"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*Store, vitals.Repository, *testClock) {
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	repo := vitals.NewMemoryRepo()
	log := audit.New(zerolog.Nop(), nil)
	s := NewStore(NewNoopRecorder(), repo, log, zerolog.Nop())
	s.now = clock.now
	return s, repo, clock
}

func intakePatient(t *testing.T, s *Store, first, symptoms string) *PatientRecord {
	t.Helper()
	record, err := s.Intake(context.Background(), IntakeRequest{
		FirstName:    first,
		LastName:     "Test",
		Symptoms:     symptoms,
		DurationText: "1 day",
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	return record
}

func TestIntakeCreatesPendingRecord(t *testing.T) {
	s, _, _ := newTestStore()

	record := intakePatient(t, s, "Ava", "sore throat and cough")
	if record.Status != StatusPending {
		t.Errorf("status: got %s", record.Status)
	}
	if !strings.HasPrefix(record.Token, "UC-") {
		t.Errorf("token: got %q", record.Token)
	}
	if len(record.PID) != 8 {
		t.Errorf("pid length: got %q", record.PID)
	}
	if record.Assessment.Cluster == "" {
		t.Error("assessment not populated")
	}
	if s.ActiveCount() != 0 {
		t.Errorf("pending patient should not be in the queue, active=%d", s.ActiveCount())
	}
}

func TestIntakeValidation(t *testing.T) {
	s, _, _ := newTestStore()

	var ve *ValidationError
	_, err := s.Intake(context.Background(), IntakeRequest{Symptoms: "cough"})
	if !errors.As(err, &ve) {
		t.Fatalf("missing first name: got %v", err)
	}
	_, err = s.Intake(context.Background(), IntakeRequest{FirstName: "Ava", Symptoms: "cough", DOB: "not-a-date"})
	if !errors.As(err, &ve) || ve.Field != "dob" {
		t.Fatalf("malformed dob: got %v", err)
	}
	_, err = s.Intake(context.Background(), IntakeRequest{FirstName: "Ava", Symptoms: "cough", DOB: "2030-01-01"})
	if !errors.As(err, &ve) || ve.Field != "dob" {
		t.Fatalf("future dob: got %v", err)
	}
}

func TestResolveCodeVariants(t *testing.T) {
	s, _, _ := newTestStore()
	record := intakePatient(t, s, "Ava", "cough")

	for _, code := range []string{
		record.PID,
		record.Token,
		strings.ToLower(record.Token),
		"  " + record.Token + "  ",
		record.PID + "|" + record.Token,
	} {
		pid, token, ok := s.ResolveCode(code)
		if !ok || pid != record.PID || token != record.Token {
			t.Errorf("code %q: got (%q, %q, %v)", code, pid, token, ok)
		}
	}
	if _, _, ok := s.ResolveCode("UC-0000"); ok {
		t.Error("unknown code resolved")
	}
	if _, _, ok := s.ResolveCode(""); ok {
		t.Error("empty code resolved")
	}
}

func TestCheckInFlow(t *testing.T) {
	s, _, clock := newTestStore()
	record := intakePatient(t, s, "Ava", "cough")

	result, err := s.CheckIn(context.Background(), record.Token)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if !result.OK || !result.CheckedIn || result.Message != "You are checked in." {
		t.Errorf("unexpected result: %+v", result)
	}
	if s.ActiveCount() != 1 {
		t.Errorf("active: got %d", s.ActiveCount())
	}
	p, _ := s.Patient(record.PID)
	if p.Status != StatusWaiting || p.CheckedInAt == nil {
		t.Errorf("record not updated: %+v", p)
	}

	// immediate rescan of the same identity is rejected
	result, err = s.CheckIn(context.Background(), record.PID)
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	if result.Message != "Scan cooldown active. Please wait 3 seconds." {
		t.Errorf("cooldown message: %q", result.Message)
	}

	// after the cooldown a repeat scan is an idempotent success
	clock.advance(5 * time.Second)
	result, err = s.CheckIn(context.Background(), record.Token)
	if err != nil {
		t.Fatalf("repeat check-in: %v", err)
	}
	if !result.OK || result.Message != "Already checked in." {
		t.Errorf("repeat result: %+v", result)
	}
	if s.ActiveCount() != 1 {
		t.Errorf("repeat should not duplicate the order entry, active=%d", s.ActiveCount())
	}
}

func TestCheckInUnknownCode(t *testing.T) {
	s, _, _ := newTestStore()

	result, err := s.CheckIn(context.Background(), "UC-9999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if result.OK || result.Message != "Code not found." {
		t.Errorf("unexpected result: %+v", result)
	}
}

func fv(v float64) *float64 { return &v }

func TestClassifyPriorityHighReorders(t *testing.T) {
	s, repo, clock := newTestStore()
	ctx := context.Background()

	first := intakePatient(t, s, "Ava", "mild cough")
	if _, err := s.CheckIn(ctx, first.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	clock.advance(10 * time.Second)
	second := intakePatient(t, s, "Liam", "dizzy spells")
	if _, err := s.CheckIn(ctx, second.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	if err := repo.Insert(ctx, &vitals.Sample{PID: second.PID, Token: second.Token, SpO2: fv(88), TS: clock.now()}); err != nil {
		t.Fatalf("insert vitals: %v", err)
	}
	result, err := s.ClassifyPriority(ctx, second.Token)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Priority != triage.PriorityHigh || result.EmergencyType != "low_oxygen" {
		t.Errorf("got %s/%s", result.Priority, result.EmergencyType)
	}
	if !strings.Contains(result.Message, "low oxygen emergency") {
		t.Errorf("message: %q", result.Message)
	}
	if result.Script != result.Message {
		t.Error("script should mirror the message")
	}

	items := s.PublicItems()
	if len(items) != 2 || items[0].Token != second.Token {
		t.Errorf("high priority patient should lead the queue: %+v", items)
	}
}

func TestClassifyPriorityLowMessage(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	record := intakePatient(t, s, "Ava", "mild rash")
	if _, err := s.CheckIn(ctx, record.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	result, err := s.ClassifyPriority(ctx, record.Token)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Priority != triage.PriorityLow {
		t.Errorf("priority: got %s", result.Priority)
	}
	if !strings.Contains(result.Message, "Your priority is Low.") {
		t.Errorf("message: %q", result.Message)
	}
}

func TestClassifyPriorityUnknownToken(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.ClassifyPriority(context.Background(), "UC-0000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	var ve *ValidationError
	if _, err := s.ClassifyPriority(context.Background(), "  "); !errors.As(err, &ve) {
		t.Fatalf("blank token: got %v", err)
	}
}

func TestReorderKeepsCheckInOrderWithinPriority(t *testing.T) {
	s, _, clock := newTestStore()
	ctx := context.Background()

	var tokens []string
	for _, name := range []string{"Ava", "Liam", "Noah"} {
		r := intakePatient(t, s, name, "mild rash")
		if _, err := s.CheckIn(ctx, r.Token); err != nil {
			t.Fatalf("check-in: %v", err)
		}
		tokens = append(tokens, r.Token)
		clock.advance(10 * time.Second)
	}

	items := s.PublicItems()
	for i, item := range items {
		if item.Token != tokens[i] {
			t.Errorf("position %d: got %s, want %s", i, item.Token, tokens[i])
		}
		if item.PositionInLine != i+1 {
			t.Errorf("position_in_line: got %d, want %d", item.PositionInLine, i+1)
		}
	}
}

func TestReorderIdempotent(t *testing.T) {
	s, repo, clock := newTestStore()
	ctx := context.Background()

	for _, name := range []string{"Ava", "Liam", "Noah", "Emma"} {
		r := intakePatient(t, s, name, "mild rash")
		if _, err := s.CheckIn(ctx, r.Token); err != nil {
			t.Fatalf("check-in: %v", err)
		}
		clock.advance(10 * time.Second)
	}
	last, _ := s.Patient(s.order[3])
	if err := repo.Insert(ctx, &vitals.Sample{PID: last.PID, Token: last.Token, SpO2: fv(88), TS: clock.now()}); err != nil {
		t.Fatalf("insert vitals: %v", err)
	}
	if _, err := s.ClassifyPriority(ctx, last.Token); err != nil {
		t.Fatalf("classify: %v", err)
	}

	s.mu.Lock()
	sorted := append([]string(nil), s.order...)
	s.reorderLocked()
	again := append([]string(nil), s.order...)
	s.mu.Unlock()

	if len(sorted) != len(again) {
		t.Fatalf("length changed: %d -> %d", len(sorted), len(again))
	}
	for i := range sorted {
		if sorted[i] != again[i] {
			t.Errorf("position %d changed: %s -> %s", i, sorted[i], again[i])
		}
	}
	if again[0] != last.PID {
		t.Errorf("high priority patient should lead, got %v", again)
	}
}

func TestSetStatusDoneRemovesFromQueue(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	record := intakePatient(t, s, "Ava", "cough")
	if _, err := s.CheckIn(ctx, record.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if err := s.SetStatus(ctx, record.PID, StatusCalled); err != nil {
		t.Fatalf("set called: %v", err)
	}
	if err := s.SetStatus(ctx, record.PID, StatusDone); err != nil {
		t.Fatalf("set done: %v", err)
	}
	if s.ActiveCount() != 0 {
		t.Errorf("done patient still active")
	}
	// the record survives removal from the queue
	p, ok := s.Patient(record.PID)
	if !ok || p.Status != StatusDone {
		t.Errorf("record lost after done: %v %v", p, ok)
	}

	if err := s.SetStatus(ctx, record.PID, Status("waiting")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("waiting should be rejected for staff updates, got %v", err)
	}
	if err := s.SetStatus(ctx, "NOPE1234", StatusCalled); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown pid: got %v", err)
	}
}

func TestSetProviderCountClamp(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	if got := s.SetProviderCount(ctx, 0); got != 1 {
		t.Errorf("0 -> %d", got)
	}
	if got := s.SetProviderCount(ctx, 9); got != 3 {
		t.Errorf("9 -> %d", got)
	}
	if got := s.SetProviderCount(ctx, 2); got != 2 {
		t.Errorf("2 -> %d", got)
	}
	if s.ProviderCount() != 2 {
		t.Errorf("provider count: got %d", s.ProviderCount())
	}
}

func TestTokensUnique(t *testing.T) {
	s, _, _ := newTestStore()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		r := intakePatient(t, s, "Ava", "cough")
		if _, dup := seen[r.Token]; dup {
			t.Fatalf("duplicate token %s after %d intakes", r.Token, i)
		}
		seen[r.Token] = struct{}{}
	}
}

func TestPublicItemsExplanation(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	record := intakePatient(t, s, "Ava", "cough")
	if _, err := s.CheckIn(ctx, record.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	items := s.PublicItems()
	if len(items) != 1 {
		t.Fatalf("items: got %d", len(items))
	}
	if !strings.Contains(items[0].ETAExplanation, "#1 in line") {
		t.Errorf("explanation: %q", items[0].ETAExplanation)
	}
	if items[0].ProvidersActive != 1 {
		t.Errorf("providers_active: got %d", items[0].ProvidersActive)
	}
}

func TestStaffItemsResourceTags(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	record := intakePatient(t, s, "Ava", "cough and congestion with nausea")
	if _, err := s.CheckIn(ctx, record.Token); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	items := s.StaffItems(ctx)
	if len(items) != 1 {
		t.Fatalf("items: got %d", len(items))
	}
	tags := strings.Join(items[0].ResourceTags, ",")
	if !strings.Contains(tags, "Nurse triage") || !strings.Contains(tags, "mask station") {
		t.Errorf("tags: %v", items[0].ResourceTags)
	}
}

func TestLobbyLoadLevels(t *testing.T) {
	s, _, clock := newTestStore()
	ctx := context.Background()

	if load := s.LobbyLoad(); load.Level != "Low" || load.QueueSize != 0 {
		t.Errorf("empty: %+v", load)
	}
	for i := 0; i < 4; i++ {
		r := intakePatient(t, s, "Ava", "cough")
		if _, err := s.CheckIn(ctx, r.Token); err != nil {
			t.Fatalf("check-in: %v", err)
		}
		clock.advance(5 * time.Second)
	}
	if load := s.LobbyLoad(); load.Level != "Medium" {
		t.Errorf("4 waiting: %+v", load)
	}
	for i := 0; i < 4; i++ {
		r := intakePatient(t, s, "Liam", "cough")
		if _, err := s.CheckIn(ctx, r.Token); err != nil {
			t.Fatalf("check-in: %v", err)
		}
		clock.advance(5 * time.Second)
	}
	if load := s.LobbyLoad(); load.Level != "High" {
		t.Errorf("8 waiting: %+v", load)
	}
}

func TestSeedDemoIdempotentAndReset(t *testing.T) {
	s, repo, _ := newTestStore()
	ctx := context.Background()

	if n := s.SeedDemo(ctx); n != 6 {
		t.Fatalf("seeded: got %d", n)
	}
	if !s.DemoMode() {
		t.Error("demo mode not set")
	}
	if n := s.SeedDemo(ctx); n != 0 {
		t.Errorf("second seed should be a no-op, got %d", n)
	}
	if s.ActiveCount() != 6 || s.PatientCount() != 6 {
		t.Errorf("counts: active=%d patients=%d", s.ActiveCount(), s.PatientCount())
	}

	items := s.StaffItems(ctx)
	for _, item := range items {
		if item.VitalsLatest == nil {
			t.Errorf("seeded patient %s missing vitals", item.Token)
		} else if item.VitalsLatest.DeviceID != "demo-seed" {
			t.Errorf("seed vitals device: %q", item.VitalsLatest.DeviceID)
		}
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.PatientCount() != 0 || s.ActiveCount() != 0 || s.DemoMode() || s.ProviderCount() != 1 {
		t.Errorf("reset left state behind")
	}
	if sample, err := repo.LatestByPatient(ctx, items[0].PID); err != nil || sample != nil {
		t.Errorf("vitals not cleared: %v %v", sample, err)
	}
}

func TestArrivalWindowCounts(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	reqs := []IntakeRequest{
		{FirstName: "A", Symptoms: "cough", ArrivalWindow: "now"},
		{FirstName: "B", Symptoms: "cough", ArrivalWindow: "soon"},
		{FirstName: "C", Symptoms: "cough", ArrivalWindow: "bogus"},
	}
	for _, req := range reqs {
		if _, err := s.Intake(ctx, req); err != nil {
			t.Fatalf("intake: %v", err)
		}
	}
	nowC, soonC, laterC := s.ArrivalWindowCounts()
	// unknown windows fall back to "now"
	if nowC != 2 || soonC != 1 || laterC != 0 {
		t.Errorf("got now=%d soon=%d later=%d", nowC, soonC, laterC)
	}
}

func TestAvgAndPeakWait(t *testing.T) {
	items := []StaffItem{
		{Status: StatusWaiting, EstimatedWaitMin: 10},
		{Status: StatusCalled, EstimatedWaitMin: 30},
		{Status: StatusInRoom, EstimatedWaitMin: 100},
	}
	if got := AvgWait(items); got != 20 {
		t.Errorf("avg: got %d", got)
	}
	if got := PeakWait(items); got != 100 {
		t.Errorf("peak: got %d", got)
	}
	if got := AvgWait(nil); got != 0 {
		t.Errorf("avg of none: got %d", got)
	}
}

func TestLaneCounts(t *testing.T) {
	items := []StaffItem{
		{Lane: LaneFast}, {Lane: LaneFast}, {Lane: LaneComplex}, {Lane: LaneStandard},
	}
	counts := LaneCounts(items)
	if counts[LaneFast] != 2 || counts[LaneStandard] != 1 || counts[LaneComplex] != 1 {
		t.Errorf("got %v", counts)
	}
}
