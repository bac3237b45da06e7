package queue

import (
	"strings"
	"time"

	"github.com/Yagbe/CarePilot-Urgent/internal/domain/triage"
	"github.com/Yagbe/CarePilot-Urgent/internal/domain/vitals"
)

// Status is a patient's position in the visit lifecycle:
// pending → waiting → called → in_room → done.
type Status string

const (
	StatusPending Status = "pending"
	StatusWaiting Status = "waiting"
	StatusCalled  Status = "called"
	StatusInRoom  Status = "in_room"
	StatusDone    Status = "done"
)

var statusLabels = map[Status]string{
	StatusPending: "Pending",
	StatusWaiting: "Waiting",
	StatusCalled:  "Called",
	StatusInRoom:  "In Room",
	StatusDone:    "Complete",
}

// Label returns the display label for a status.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s)[:1]) + string(s)[1:]
}

// staffStatuses are the statuses staff may set directly. pending and
// waiting are only reachable through intake and check-in.
var staffStatuses = map[Status]struct{}{
	StatusCalled: {},
	StatusInRoom: {},
	StatusDone:   {},
}

// Lane groups patients by expected visit effort for the simulator.
type Lane string

const (
	LaneFast     Lane = "Fast"
	LaneStandard Lane = "Standard"
	LaneComplex  Lane = "Complex"
)

// LaneFromComplexity maps operational complexity to a service lane.
func LaneFromComplexity(complexity string) Lane {
	c := strings.ToLower(complexity)
	if strings.HasPrefix(c, "low") {
		return LaneFast
	}
	if strings.HasPrefix(c, "high") {
		return LaneComplex
	}
	return LaneStandard
}

// ArrivalWindows are the self-reported arrival buckets counted for the
// forecast.
var ArrivalWindows = map[string]struct{}{"now": {}, "soon": {}, "later": {}}

// PatientRecord is the authoritative in-memory state for one patient.
type PatientRecord struct {
	PID           string            `json:"pid"`
	Token         string            `json:"token"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	Phone         string            `json:"phone"`
	DOB           string            `json:"dob"`
	Symptoms      string            `json:"symptoms"`
	DurationText  string            `json:"duration_text"`
	ArrivalWindow string            `json:"arrival_window"`
	Assessment    triage.Assessment `json:"ai_result"`
	Status        Status            `json:"status"`
	Priority      triage.Priority   `json:"priority"`
	EmergencyType string            `json:"emergency_type"`
	CreatedAt     time.Time         `json:"created_at"`
	CheckedInAt   *time.Time        `json:"checked_in_at,omitempty"`
}

// FullName joins the name fields for staff display.
func (p *PatientRecord) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		return "Unknown Patient"
	}
	return name
}

// VisitDuration returns the estimated visit duration with the
// simulator's fallback applied.
func (p *PatientRecord) VisitDuration() int {
	if p.Assessment.VisitDurationMin <= 0 {
		return DefaultVisitMinutes
	}
	return p.Assessment.VisitDurationMin
}

// Lane returns the patient's service lane.
func (p *PatientRecord) Lane() Lane {
	return LaneFromComplexity(p.Assessment.Complexity)
}

// PublicItem is the de-identified queue entry shown on lobby displays.
type PublicItem struct {
	Token            string          `json:"token"`
	Priority         triage.Priority `json:"priority"`
	StatusLabel      string          `json:"status_label"`
	EstimatedWaitMin int             `json:"estimated_wait_min"`
	PositionInLine   int             `json:"position_in_line"`
	ProvidersActive  int             `json:"providers_active"`
	UpdatedAt        string          `json:"updated_at"`
	ETAExplanation   string          `json:"eta_explanation"`
}

// StaffItem is the full queue entry for the staff dashboard.
type StaffItem struct {
	PID              string          `json:"id"`
	Token            string          `json:"token"`
	Priority         triage.Priority `json:"priority"`
	EmergencyType    string          `json:"emergency_type"`
	FullName         string          `json:"full_name"`
	DisplayName      string          `json:"display_name"`
	Status           Status          `json:"status"`
	StatusLabel      string          `json:"status_label"`
	CheckedInAt      *time.Time      `json:"checked_in_at,omitempty"`
	EstimatedWaitMin int             `json:"estimated_wait_min"`
	Symptoms         string          `json:"symptoms"`
	DurationText     string          `json:"duration_text"`
	Cluster          string          `json:"ai_cluster"`
	Complexity       string          `json:"ai_complexity"`
	VisitDurationMin int             `json:"ai_visit_duration"`
	Summary          string          `json:"ai_summary"`
	RedFlags         []string        `json:"red_flags"`
	ChiefComplaint   string          `json:"chief_complaint"`
	SymptomList      []string        `json:"symptom_list"`
	Resources        []string        `json:"suggested_resources"`
	Lane             Lane            `json:"lane"`
	ResourceTags     []string        `json:"resource_tags"`
	VitalsLatest     *vitals.Sample  `json:"vitals_latest"`
}

// Snapshot is the payload broadcast to websocket subscribers and sent
// to each new connection.
type Snapshot struct {
	Type          string       `json:"type"`
	ProviderCount int          `json:"provider_count"`
	UpdatedAt     string       `json:"updated_at"`
	Items         []PublicItem `json:"items"`
}

// CheckInResult is the kiosk check-in outcome. A repeat check-in is a
// success with an informational message, not an error.
type CheckInResult struct {
	OK               bool   `json:"ok"`
	CheckedIn        bool   `json:"checked_in"`
	Message          string `json:"message"`
	Token            string `json:"token"`
	EstimatedWaitMin int    `json:"estimated_wait_min"`
	DisplayName      string `json:"display_name,omitempty"`
}

// TriageResult is returned by the kiosk triage endpoint.
type TriageResult struct {
	Priority       triage.Priority `json:"priority"`
	EmergencyType  string          `json:"emergency_type,omitempty"`
	EmergencyLabel string          `json:"emergency_label,omitempty"`
	Message        string          `json:"message"`
	Script         string          `json:"ai_script"`
}

// LobbyLoad is the coarse lobby pressure signal for signage.
type LobbyLoad struct {
	Level     string `json:"level"`
	QueueSize int    `json:"queue_size"`
	UpdatedAt string `json:"updated_at"`
}

// IntakeRequest is the patient registration payload.
type IntakeRequest struct {
	FirstName     string `json:"first_name" form:"first_name"`
	LastName      string `json:"last_name" form:"last_name"`
	Phone         string `json:"phone" form:"phone"`
	DOB           string `json:"dob" form:"dob"`
	Symptoms      string `json:"symptoms" form:"symptoms"`
	DurationText  string `json:"duration_text" form:"duration_text"`
	ArrivalWindow string `json:"arrival_window" form:"arrival_window"`
}
