package queue

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yagbe/CarePilot-Urgent/internal/domain/triage"
	"github.com/Yagbe/CarePilot-Urgent/internal/domain/vitals"
	"github.com/Yagbe/CarePilot-Urgent/internal/platform/audit"
)

const (
	checkinCooldown = 3 * time.Second
	// cooldown entries older than this are pruned once the map grows
	// past cooldownMapLimit.
	cooldownMaxAge   = time.Minute
	cooldownMapLimit = 400

	tokenDraws = 500

	minProviders = 1
	maxProviders = 3
)

// Store is the authoritative queue state. A single mutex serializes
// every read-modify-write cycle; snapshots and broadcasts are built
// from copies taken under the lock and published after release.
type Store struct {
	mu             sync.Mutex
	patients       map[string]*PatientRecord
	order          []string
	issuedTokens   map[string]struct{}
	lastCheckin    map[string]time.Time
	arrivalWindows map[string]int
	providerCount  int
	demoMode       bool

	recorder Recorder
	vitals   vitals.Repository
	audit    *audit.Log
	logger   zerolog.Logger
	now      func() time.Time
	rng      *rand.Rand
}

func NewStore(recorder Recorder, vitalsRepo vitals.Repository, auditLog *audit.Log, logger zerolog.Logger) *Store {
	return &Store{
		patients:       make(map[string]*PatientRecord),
		issuedTokens:   make(map[string]struct{}),
		lastCheckin:    make(map[string]time.Time),
		arrivalWindows: map[string]int{"now": 0, "soon": 0, "later": 0},
		providerCount:  1,
		recorder:       recorder,
		vitals:         vitalsRepo,
		audit:          auditLog,
		logger:         logger,
		now:            time.Now,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewPID returns a fresh 8-hex-character patient id.
func NewPID() string {
	u := uuid.New()
	return strings.ToUpper(hex.EncodeToString(u[:4]))
}

// allocateTokenLocked draws a display token unique among live patients
// and all tokens issued since the last reset. Falls back to uuid hex
// when the 4-digit space is congested.
func (s *Store) allocateTokenLocked() string {
	existing := make(map[string]struct{}, len(s.patients))
	for _, p := range s.patients {
		existing[strings.ToUpper(p.Token)] = struct{}{}
	}
	for i := 0; i < tokenDraws; i++ {
		candidate := fmt.Sprintf("UC-%d", 1000+s.rng.Intn(9000))
		if _, dup := existing[candidate]; dup {
			continue
		}
		if _, dup := s.issuedTokens[candidate]; dup {
			continue
		}
		s.issuedTokens[candidate] = struct{}{}
		return candidate
	}
	u := uuid.New()
	fallback := "UC-" + strings.ToUpper(hex.EncodeToString(u[:2]))
	s.issuedTokens[fallback] = struct{}{}
	return fallback
}

// Intake registers a new patient in pending state and returns a copy
// of the record.
func (s *Store) Intake(ctx context.Context, req IntakeRequest) (*PatientRecord, error) {
	firstName := strings.TrimSpace(req.FirstName)
	symptoms := strings.TrimSpace(req.Symptoms)
	dob := strings.TrimSpace(req.DOB)
	if err := validateDOB(dob, s.now().UTC()); err != nil {
		return nil, err
	}
	if firstName == "" || symptoms == "" {
		return nil, &ValidationError{Field: "intake", Message: "First name and symptoms are required."}
	}

	window := req.ArrivalWindow
	if _, ok := ArrivalWindows[window]; !ok {
		window = "now"
	}
	durationText := req.DurationText
	if durationText == "" {
		durationText = "1 day"
	}

	age := ageFromDOB(dob, s.now().UTC())
	assessment := triage.StructureSymptoms(symptoms, durationText, age)

	pid := NewPID()
	s.mu.Lock()
	record := &PatientRecord{
		PID:           pid,
		Token:         s.allocateTokenLocked(),
		FirstName:     firstName,
		LastName:      strings.TrimSpace(req.LastName),
		Phone:         strings.TrimSpace(req.Phone),
		DOB:           dob,
		Symptoms:      symptoms,
		DurationText:  durationText,
		ArrivalWindow: window,
		Assessment:    assessment,
		Status:        StatusPending,
		Priority:      triage.PriorityLow,
		CreatedAt:     s.now().UTC(),
	}
	s.patients[pid] = record
	s.arrivalWindows[window]++
	s.record(ctx, record)
	cp := *record
	s.mu.Unlock()

	s.audit.Record("intake_created", map[string]interface{}{"pid": pid, "arrival_window": window})
	return &cp, nil
}

// Patient returns a copy of one record.
func (s *Store) Patient(pid string) (*PatientRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[pid]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// ResolveCode maps a scanned or typed code to a patient. Codes match a
// pid directly or a token case-insensitively; "pid|token" QR payloads
// are split and each part tried before the raw string.
func (s *Store) ResolveCode(code string) (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.resolveLocked(code)
	if !ok {
		return "", "", false
	}
	return pid, s.patients[pid].Token, true
}

func (s *Store) resolveLocked(code string) (string, bool) {
	raw := strings.ToUpper(strings.TrimSpace(code))
	if raw == "" {
		return "", false
	}
	candidates := []string{raw}
	if strings.Contains(raw, "|") {
		candidates = candidates[:0]
		for _, part := range strings.Split(raw, "|") {
			if part = strings.TrimSpace(part); part != "" {
				candidates = append(candidates, part)
			}
		}
		candidates = append(candidates, raw)
	}
	for _, c := range candidates {
		if _, ok := s.patients[c]; ok {
			return c, true
		}
		for pid, p := range s.patients {
			if strings.ToUpper(p.Token) == c {
				return pid, true
			}
		}
	}
	return "", false
}

// CheckIn processes a kiosk scan. A patient already past pending gets
// an idempotent success with a fresh estimate. Rapid re-scans of the
// same identity are rejected for checkinCooldown. The result carries
// the kiosk-facing payload even when err is non-nil.
func (s *Store) CheckIn(ctx context.Context, code string) (CheckInResult, error) {
	raw := strings.ToUpper(strings.TrimSpace(code))
	parsed := raw
	if i := strings.Index(raw, "|"); i >= 0 {
		parsed = strings.TrimSpace(raw[:i])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pid, ok := s.resolveLocked(code)
	if !ok {
		return CheckInResult{Message: "Code not found."}, ErrNotFound
	}
	p := s.patients[pid]
	tokenKey := strings.ToUpper(p.Token)
	now := s.now()

	for key := range identityKeys(pid, tokenKey, parsed) {
		if last, seen := s.lastCheckin[key]; seen && now.Sub(last) < checkinCooldown {
			return CheckInResult{Message: "Scan cooldown active. Please wait 3 seconds."}, ErrCooldown
		}
	}
	for key := range identityKeys(pid, tokenKey, "") {
		s.lastCheckin[key] = now
	}
	if len(s.lastCheckin) > cooldownMapLimit {
		cutoff := now.Add(-cooldownMaxAge)
		for k, ts := range s.lastCheckin {
			if ts.Before(cutoff) {
				delete(s.lastCheckin, k)
			}
		}
	}

	if p.Status != StatusPending {
		wait := s.waitForLocked(pid)
		s.audit.Record("checkin_repeat", map[string]interface{}{"pid": pid, "token": p.Token, "wait": wait})
		s.recordEvent(ctx, "checkin_repeat", pid, p.Token, map[string]interface{}{"wait": wait})
		return CheckInResult{
			OK:               true,
			CheckedIn:        true,
			Message:          "Already checked in.",
			Token:            p.Token,
			EstimatedWaitMin: wait,
			DisplayName:      p.FullName(),
		}, nil
	}

	checkedInAt := now.UTC()
	p.Status = StatusWaiting
	p.CheckedInAt = &checkedInAt
	if !s.inOrderLocked(pid) {
		s.order = append(s.order, pid)
	}
	s.reorderLocked()

	if err := s.recorder.UpdateCheckin(ctx, pid, string(StatusWaiting), checkedInAt); err != nil {
		s.logger.Warn().Err(err).Str("pid", pid).Msg("queue: record check-in failed")
	}

	wait := s.waitForLocked(pid)
	s.audit.Record("checkin", map[string]interface{}{"pid": pid, "token": p.Token, "wait": wait})
	s.recordEvent(ctx, "checkin", pid, p.Token, map[string]interface{}{"wait": wait})
	return CheckInResult{
		OK:               true,
		CheckedIn:        true,
		Message:          "You are checked in.",
		Token:            p.Token,
		EstimatedWaitMin: wait,
		DisplayName:      p.FullName(),
	}, nil
}

func identityKeys(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// ClassifyPriority runs triage for the patient identified by token:
// classify from latest vitals plus intake text, persist the result,
// and reorder the queue.
func (s *Store) ClassifyPriority(ctx context.Context, token string) (TriageResult, error) {
	raw := strings.ToUpper(strings.TrimSpace(token))
	if raw == "" {
		return TriageResult{}, &ValidationError{Field: "token", Message: "token required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var p *PatientRecord
	for _, candidate := range s.patients {
		if strings.ToUpper(candidate.Token) == raw {
			p = candidate
			break
		}
	}
	if p == nil {
		return TriageResult{}, ErrNotFound
	}

	var signs *triage.Vitals
	sample, err := s.vitals.LatestByPatient(ctx, p.PID)
	if err != nil {
		s.logger.Warn().Err(err).Str("pid", p.PID).Msg("queue: latest vitals lookup failed")
	} else {
		signs = sample.Signs()
	}

	priority, emergencyType := triage.Classify(signs, p.Symptoms, p.Assessment.RedFlags)
	p.Priority = priority
	p.EmergencyType = emergencyType
	s.reorderLocked()

	label := triage.EmergencyLabel(emergencyType)
	var message string
	if priority == triage.PriorityHigh {
		message = fmt.Sprintf("You are having the conditions of a %s and need to be rushed immediately. A doctor is being notified.", label)
	} else {
		level := "Low"
		if priority == triage.PriorityMedium {
			level = "Medium"
		}
		message = fmt.Sprintf("Your priority is %s. Please proceed to the waiting room and have a seat. You will be called when it is your turn.", level)
	}

	s.audit.Record("triage", map[string]interface{}{"pid": p.PID, "priority": string(priority), "emergency_type": emergencyType})
	s.recordEvent(ctx, "triage", p.PID, p.Token, map[string]interface{}{"priority": string(priority)})
	return TriageResult{
		Priority:       priority,
		EmergencyType:  emergencyType,
		EmergencyLabel: label,
		Message:        message,
		Script:         message,
	}, nil
}

// SetStatus applies a staff status update. done removes the patient
// from the queue order; the record itself is retained.
func (s *Store) SetStatus(ctx context.Context, pid string, status Status) error {
	if _, ok := staffStatuses[status]; !ok {
		return ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[pid]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	if status == StatusDone {
		kept := s.order[:0]
		for _, id := range s.order {
			if id != pid {
				kept = append(kept, id)
			}
		}
		s.order = kept
	}

	if err := s.recorder.UpdateStatus(ctx, pid, string(status)); err != nil {
		s.logger.Warn().Err(err).Str("pid", pid).Msg("queue: record status failed")
	}
	s.audit.Record("status_change", map[string]interface{}{"pid": pid, "status": string(status)})
	s.recordEvent(ctx, "status_change", pid, p.Token, map[string]interface{}{"status": string(status)})
	return nil
}

// SetProviderCount clamps and applies the active provider count,
// returning the applied value.
func (s *Store) SetProviderCount(ctx context.Context, count int) int {
	if count < minProviders {
		count = minProviders
	}
	if count > maxProviders {
		count = maxProviders
	}

	s.mu.Lock()
	s.providerCount = count
	s.mu.Unlock()

	s.audit.Record("provider_count_change", map[string]interface{}{"provider_count": count})
	s.recordEvent(ctx, "provider_count_change", "", "", map[string]interface{}{"provider_count": count})
	return count
}

func (s *Store) ProviderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerCount
}

// ArrivalWindowCounts returns the running intake counters per window.
func (s *Store) ArrivalWindowCounts() (nowC, soonC, laterC int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arrivalWindows["now"], s.arrivalWindows["soon"], s.arrivalWindows["later"]
}

// activeLocked returns the ordered pids with a live, not-done record.
func (s *Store) activeLocked() []string {
	var active []string
	for _, pid := range s.order {
		if p, ok := s.patients[pid]; ok && p.Status != StatusDone {
			active = append(active, pid)
		}
	}
	return active
}

// reorderLocked stably sorts the active slice of the order by
// (priority rank, check-in time); never-checked-in records sort first
// within a priority band. done or vanished ids keep their tail
// positions.
func (s *Store) reorderLocked() {
	var active, tail []string
	for _, pid := range s.order {
		if p, ok := s.patients[pid]; ok && p.Status != StatusDone {
			active = append(active, pid)
		} else {
			tail = append(tail, pid)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := s.patients[active[i]], s.patients[active[j]]
		ra, rb := a.Priority.Rank(), b.Priority.Rank()
		if ra != rb {
			return ra < rb
		}
		return checkinKey(a) < checkinKey(b)
	})
	s.order = append(active, tail...)
}

func checkinKey(p *PatientRecord) string {
	if p.CheckedInAt == nil {
		return ""
	}
	return p.CheckedInAt.UTC().Format(time.RFC3339Nano)
}

func (s *Store) inOrderLocked(pid string) bool {
	for _, id := range s.order {
		if id == pid {
			return true
		}
	}
	return false
}

// estimateWaitsLocked runs the simulator over the given active pids.
func (s *Store) estimateWaitsLocked(active []string) map[string]int {
	visits := make([]Visit, 0, len(active))
	for _, pid := range active {
		p := s.patients[pid]
		visits = append(visits, Visit{PID: pid, DurationMin: p.VisitDuration(), Lane: p.Lane()})
	}
	return EstimateWaits(visits, s.providerCount)
}

func (s *Store) waitForLocked(pid string) int {
	return s.estimateWaitsLocked(s.activeLocked())[pid]
}

// WaitFor returns the current simulated wait for one patient.
func (s *Store) WaitFor(pid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitForLocked(pid)
}

// PublicItems builds the de-identified lobby view of the queue.
func (s *Store) PublicItems() []PublicItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicItemsLocked()
}

func (s *Store) publicItemsLocked() []PublicItem {
	active := s.activeLocked()
	waits := s.estimateWaitsLocked(active)
	updatedAt := s.now().UTC().Format(time.RFC3339)

	items := make([]PublicItem, 0, len(active))
	for pos, pid := range active {
		p := s.patients[pid]
		typical := p.VisitDuration()
		items = append(items, PublicItem{
			Token:            p.Token,
			Priority:         p.Priority,
			StatusLabel:      p.Status.Label(),
			EstimatedWaitMin: waits[pid],
			PositionInLine:   pos + 1,
			ProvidersActive:  s.providerCount,
			UpdatedAt:        updatedAt,
			ETAExplanation: fmt.Sprintf("You're #%d in line • %d provider(s) • Typical visit %d-%d min",
				pos+1, s.providerCount, typical, typical+10),
		})
	}
	return items
}

// StaffItems builds the full dashboard view, including each patient's
// latest vitals.
func (s *Store) StaffItems(ctx context.Context) []StaffItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staffItemsLocked(ctx)
}

func (s *Store) staffItemsLocked(ctx context.Context) []StaffItem {
	active := s.activeLocked()
	waits := s.estimateWaitsLocked(active)

	items := make([]StaffItem, 0, len(active))
	for _, pid := range active {
		p := s.patients[pid]
		tags := []string{"Nurse triage"}
		if strings.Contains(p.Assessment.Cluster, "Respiratory") {
			tags = append(tags, "mask station", "rapid test kit")
		}
		if strings.Contains(p.Assessment.Cluster, "GI") {
			tags = append(tags, "hydration supplies")
		}
		if len(p.Assessment.RedFlags) > 0 {
			tags = append(tags, "priority clinician review")
		}

		latest, err := s.vitals.LatestByPatient(ctx, pid)
		if err != nil {
			s.logger.Warn().Err(err).Str("pid", pid).Msg("queue: latest vitals lookup failed")
		}

		items = append(items, StaffItem{
			PID:              pid,
			Token:            p.Token,
			Priority:         p.Priority,
			EmergencyType:    p.EmergencyType,
			FullName:         p.FullName(),
			DisplayName:      p.FirstName,
			Status:           p.Status,
			StatusLabel:      p.Status.Label(),
			CheckedInAt:      p.CheckedInAt,
			EstimatedWaitMin: waits[pid],
			Symptoms:         p.Symptoms,
			DurationText:     p.DurationText,
			Cluster:          p.Assessment.Cluster,
			Complexity:       p.Assessment.Complexity,
			VisitDurationMin: p.Assessment.VisitDurationMin,
			Summary:          p.Assessment.Summary,
			RedFlags:         p.Assessment.RedFlags,
			ChiefComplaint:   p.Assessment.ChiefComplaint,
			SymptomList:      p.Assessment.SymptomList,
			Resources:        p.Assessment.Resources,
			Lane:             p.Lane(),
			ResourceTags:     tags,
			VitalsLatest:     latest,
		})
	}
	return items
}

// QueueSnapshot is the broadcast payload builder; it must be called
// without the lock held by the caller.
func (s *Store) QueueSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Type:          "queue_update",
		ProviderCount: s.providerCount,
		UpdatedAt:     s.now().UTC().Format(time.RFC3339),
		Items:         s.publicItemsLocked(),
	}
}

// LobbyLoad grades lobby pressure from active queue size.
func (s *Store) LobbyLoad() LobbyLoad {
	s.mu.Lock()
	size := len(s.activeLocked())
	s.mu.Unlock()

	level := "Low"
	switch {
	case size >= 8:
		level = "High"
	case size >= 4:
		level = "Medium"
	}
	return LobbyLoad{Level: level, QueueSize: size, UpdatedAt: s.now().UTC().Format(time.RFC3339)}
}

// AvgWait averages the simulated waits of waiting and called items.
func AvgWait(items []StaffItem) int {
	var sum, n int
	for _, i := range items {
		if i.Status == StatusWaiting || i.Status == StatusCalled {
			sum += i.EstimatedWaitMin
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// PeakWait returns the largest simulated wait among the items.
func PeakWait(items []StaffItem) int {
	peak := 0
	for _, i := range items {
		if i.EstimatedWaitMin > peak {
			peak = i.EstimatedWaitMin
		}
	}
	return peak
}

// LaneCounts tallies items per service lane.
func LaneCounts(items []StaffItem) map[Lane]int {
	counts := map[Lane]int{LaneFast: 0, LaneStandard: 0, LaneComplex: 0}
	for _, i := range items {
		if _, ok := counts[i.Lane]; ok {
			counts[i.Lane]++
		}
	}
	return counts
}

// PatientCount returns the number of known records, active or not.
func (s *Store) PatientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patients)
}

// ActiveCount returns the number of active queue entries.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeLocked())
}

func (s *Store) DemoMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demoMode
}

func (s *Store) record(ctx context.Context, p *PatientRecord) {
	if err := s.recorder.SavePatient(ctx, p); err != nil {
		s.logger.Warn().Err(err).Str("pid", p.PID).Msg("queue: record patient failed")
	}
}

func (s *Store) recordEvent(ctx context.Context, eventType, pid, token string, payload map[string]interface{}) {
	if err := s.recorder.RecordEvent(ctx, eventType, pid, token, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("queue: record event failed")
	}
}

func validateDOB(dob string, today time.Time) error {
	if dob == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return &ValidationError{Field: "dob", Message: "DOB must be YYYY-MM-DD."}
	}
	if d.After(today) {
		return &ValidationError{Field: "dob", Message: "DOB cannot be in the future."}
	}
	return nil
}

func ageFromDOB(dob string, today time.Time) *int {
	if dob == "" {
		return nil
	}
	born, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return nil
	}
	years := today.Year() - born.Year()
	if today.Month() < born.Month() || (today.Month() == born.Month() && today.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return &years
}
