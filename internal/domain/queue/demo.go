package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Yagbe/CarePilot-Urgent/internal/domain/triage"
	"github.com/Yagbe/CarePilot-Urgent/internal/domain/vitals"
)

type demoPatient struct {
	first, last   string
	symptoms      string
	durationText  string
	arrivalWindow string
}

var demoPatients = []demoPatient{
	{"Ava", "Miller", "Sore throat, fever, dry cough", "2 days", "now"},
	{"Liam", "Ng", "Nausea and abdominal cramping", "1 day", "soon"},
	{"Noah", "Patel", "Ankle pain after twist injury", "3 days", "later"},
	{"Emma", "Diaz", "Rash and itching on arms", "4 days", "soon"},
	{"Mia", "Lee", "Cough with congestion and fatigue", "5 days", "now"},
	{"Ethan", "King", "Back pain and muscle stiffness", "1 week", "later"},
}

// SeedDemo loads a fixed set of checked-in sample patients with one
// simulated vitals reading each. Idempotent: a second call while demo
// mode is active is a no-op.
func (s *Store) SeedDemo(ctx context.Context) int {
	s.mu.Lock()
	if s.demoMode {
		s.mu.Unlock()
		return 0
	}
	s.demoMode = true

	now := s.now().UTC()
	var samples []*vitals.Sample
	for _, dp := range demoPatients {
		age := 18 + s.rng.Intn(55)
		dob := now.AddDate(-age, 0, -s.rng.Intn(300)).Format("2006-01-02")
		checkedInAt := now

		pid := NewPID()
		record := &PatientRecord{
			PID:           pid,
			Token:         s.allocateTokenLocked(),
			FirstName:     dp.first,
			LastName:      dp.last,
			DOB:           dob,
			Symptoms:      dp.symptoms,
			DurationText:  dp.durationText,
			ArrivalWindow: dp.arrivalWindow,
			Assessment:    triage.StructureSymptoms(dp.symptoms, dp.durationText, &age),
			Status:        StatusWaiting,
			Priority:      triage.PriorityLow,
			CreatedAt:     now,
			CheckedInAt:   &checkedInAt,
		}
		s.patients[pid] = record
		s.order = append(s.order, pid)
		s.arrivalWindows[dp.arrivalWindow]++
		s.record(ctx, record)

		sample := vitals.SimulatedSample(pid, record.Token, now)
		sample.DeviceID = "demo-seed"
		sample.Confidence = 0.9
		samples = append(samples, sample)
	}
	s.reorderLocked()
	s.mu.Unlock()

	for _, sample := range samples {
		if err := s.vitals.Insert(ctx, sample); err != nil {
			s.logger.Warn().Err(err).Str("pid", sample.PID).Msg("queue: seed vitals failed")
		}
	}
	s.audit.Record("demo_seed", map[string]interface{}{"count": len(demoPatients)})
	return len(demoPatients)
}

// Reset clears all queue state, returns the provider count to one,
// and leaves demo mode so a reseed is possible.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.patients = make(map[string]*PatientRecord)
	s.order = nil
	s.issuedTokens = make(map[string]struct{})
	s.lastCheckin = make(map[string]time.Time)
	s.arrivalWindows = map[string]int{"now": 0, "soon": 0, "later": 0}
	s.providerCount = 1
	s.demoMode = false
	s.mu.Unlock()

	if err := s.vitals.Reset(ctx); err != nil {
		return fmt.Errorf("reset vitals: %w", err)
	}
	if err := s.recorder.Reset(ctx); err != nil {
		return fmt.Errorf("reset records: %w", err)
	}
	s.audit.Record("demo_reset", nil)
	return nil
}
