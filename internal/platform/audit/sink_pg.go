package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type sinkPG struct{ pool *pgxpool.Pool }

// NewSinkPG returns a Sink that appends events to the audit_events
// table.
func NewSinkPG(pool *pgxpool.Pool) Sink { return &sinkPG{pool: pool} }

func (s *sinkPG) Record(ctx context.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_events (event_type, details, ts)
		VALUES ($1, $2, $3)`,
		e.Type, details, e.TS)
	return err
}
