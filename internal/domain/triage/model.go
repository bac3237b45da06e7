package triage

// Priority is the triage priority band: high = emergency, medium =
// urgent, low = routine.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of a priority; unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 2
}

// Vitals carries the latest observed vital signs for classification.
// Pointer fields distinguish "not measured" from zero.
type Vitals struct {
	SpO2  *float64 `db:"spo2" json:"spo2,omitempty"`
	HR    *float64 `db:"hr" json:"hr,omitempty"`
	TempC *float64 `db:"temp_c" json:"temp_c,omitempty"`
	BPSys *float64 `db:"bp_sys" json:"bp_sys,omitempty"`
	BPDia *float64 `db:"bp_dia" json:"bp_dia,omitempty"`
}

// Assessment is the structured, non-diagnostic intake summary produced
// by StructureSymptoms.
type Assessment struct {
	ChiefComplaint   string   `json:"chief_complaint"`
	SymptomList      []string `json:"symptom_list"`
	Cluster          string   `json:"cluster"`
	RedFlags         []string `json:"red_flag_keywords_detected"`
	Complexity       string   `json:"operational_complexity"`
	VisitDurationMin int      `json:"estimated_visit_duration_minutes"`
	Summary          string   `json:"ai_summary_text"`
	Resources        []string `json:"suggested_resources"`
	DurationDays     int      `json:"duration_days"`
	Age              *int     `json:"age_optional,omitempty"`
}

// emergencyLabels maps an emergency type to the phrasing used in
// kiosk announcements.
var emergencyLabels = map[string]string{
	"low_oxygen":          "low oxygen emergency",
	"critical_heart_rate": "critical heart rhythm",
	"critical_bp":         "critical blood pressure",
	"critical_temp":       "critical temperature",
	"heart_attack":        "heart attack",
	"chest_pain":          "potential cardiac emergency",
	"stroke":              "stroke",
	"emergency_symptoms":  "medical emergency",
}

// EmergencyLabel returns the human phrasing for an emergency type.
// Unknown non-empty types read as a generic medical emergency; the
// empty type yields an empty label.
func EmergencyLabel(emergencyType string) string {
	if emergencyType == "" {
		return ""
	}
	if label, ok := emergencyLabels[emergencyType]; ok {
		return label
	}
	return "medical emergency"
}
