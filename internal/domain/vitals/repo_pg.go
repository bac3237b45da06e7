package vitals

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a pgx-backed Repository over the vitals table.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) Insert(ctx context.Context, s *Sample) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO vitals (pid, token, device_id, spo2, hr, temp_c, bp_sys, bp_dia, confidence, ts, simulated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		s.PID, s.Token, s.DeviceID, s.SpO2, s.HR, s.TempC, s.BPSys, s.BPDia,
		s.Confidence, s.TS, s.Simulated).Scan(&s.ID)
}

func (r *repoPG) LatestByPatient(ctx context.Context, pid string) (*Sample, error) {
	var s Sample
	err := r.pool.QueryRow(ctx, `
		SELECT id, pid, token, device_id, spo2, hr, temp_c, bp_sys, bp_dia, confidence, ts, simulated
		FROM vitals WHERE pid = $1 ORDER BY id DESC LIMIT 1`, pid).
		Scan(&s.ID, &s.PID, &s.Token, &s.DeviceID, &s.SpO2, &s.HR, &s.TempC,
			&s.BPSys, &s.BPDia, &s.Confidence, &s.TS, &s.Simulated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Reset(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM vitals`)
	return err
}
