package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RecorderPG mirrors queue state into Postgres so a restart can be
// audited; it is not read back on the hot path.
type RecorderPG struct {
	pool *pgxpool.Pool
}

func NewRecorderPG(pool *pgxpool.Pool) *RecorderPG {
	return &RecorderPG{pool: pool}
}

func (r *RecorderPG) SavePatient(ctx context.Context, p *PatientRecord) error {
	assessment, err := json.Marshal(p.Assessment)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO patients (
			pid, token, first_name, last_name, phone, dob,
			symptoms, duration_text, arrival_window, assessment,
			status, priority, emergency_type, created_at, checked_in_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (pid) DO UPDATE SET
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			emergency_type = EXCLUDED.emergency_type,
			assessment = EXCLUDED.assessment,
			checked_in_at = EXCLUDED.checked_in_at`,
		p.PID, p.Token, p.FirstName, p.LastName, p.Phone, p.DOB,
		p.Symptoms, p.DurationText, p.ArrivalWindow, assessment,
		string(p.Status), string(p.Priority), p.EmergencyType, p.CreatedAt, p.CheckedInAt,
	)
	if err != nil {
		return fmt.Errorf("save patient: %w", err)
	}
	return nil
}

func (r *RecorderPG) UpdateStatus(ctx context.Context, pid, status string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE patients SET status = $2 WHERE pid = $1`, pid, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (r *RecorderPG) UpdateCheckin(ctx context.Context, pid, status string, checkedInAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE patients SET status = $2, checked_in_at = $3 WHERE pid = $1`,
		pid, status, checkedInAt)
	if err != nil {
		return fmt.Errorf("update check-in: %w", err)
	}
	return nil
}

func (r *RecorderPG) RecordEvent(ctx context.Context, eventType, pid, token string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO queue_events (event_type, pid, token, payload, ts)
		VALUES ($1, $2, $3, $4, now())`,
		eventType, pid, token, data)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func (r *RecorderPG) Reset(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM queue_events`); err != nil {
		return fmt.Errorf("reset queue events: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM patients`); err != nil {
		return fmt.Errorf("reset patients: %w", err)
	}
	return nil
}
