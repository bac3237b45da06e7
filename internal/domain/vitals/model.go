package vitals

import (
	"time"

	"github.com/Yagbe/CarePilot-Urgent/internal/domain/triage"
)

// Sample is one vitals reading as submitted by the sensor bridge (or
// the simulator). Pointer fields distinguish "not measured" from zero.
type Sample struct {
	ID         int64     `db:"id" json:"-"`
	PID        string    `db:"pid" json:"pid"`
	Token      string    `db:"token" json:"token"`
	DeviceID   string    `db:"device_id" json:"device_id"`
	SpO2       *float64  `db:"spo2" json:"spo2,omitempty"`
	HR         *float64  `db:"hr" json:"hr,omitempty"`
	TempC      *float64  `db:"temp_c" json:"temp_c,omitempty"`
	BPSys      *float64  `db:"bp_sys" json:"bp_sys,omitempty"`
	BPDia      *float64  `db:"bp_dia" json:"bp_dia,omitempty"`
	Confidence float64   `db:"confidence" json:"confidence"`
	TS         time.Time `db:"ts" json:"ts"`
	Simulated  bool      `db:"simulated" json:"simulated"`
}

// Signs converts the sample into the classifier's input shape.
func (s *Sample) Signs() *triage.Vitals {
	if s == nil {
		return nil
	}
	return &triage.Vitals{
		SpO2:  s.SpO2,
		HR:    s.HR,
		TempC: s.TempC,
		BPSys: s.BPSys,
		BPDia: s.BPDia,
	}
}
