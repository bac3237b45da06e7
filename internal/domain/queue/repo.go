package queue

import (
	"context"
	"time"
)

// Recorder is the write-behind persistence hook for queue state. The
// in-memory store remains authoritative; recorder failures are logged
// by the caller and never fail the operation.
type Recorder interface {
	SavePatient(ctx context.Context, p *PatientRecord) error
	UpdateStatus(ctx context.Context, pid, status string) error
	UpdateCheckin(ctx context.Context, pid, status string, checkedInAt time.Time) error
	RecordEvent(ctx context.Context, eventType, pid, token string, payload map[string]interface{}) error
	Reset(ctx context.Context) error
}

type noopRecorder struct{}

// NewNoopRecorder returns a Recorder that discards everything, for
// running without a database.
func NewNoopRecorder() Recorder { return noopRecorder{} }

func (noopRecorder) SavePatient(ctx context.Context, p *PatientRecord) error { return nil }
func (noopRecorder) UpdateStatus(ctx context.Context, pid, status string) error {
	return nil
}
func (noopRecorder) UpdateCheckin(ctx context.Context, pid, status string, checkedInAt time.Time) error {
	return nil
}
func (noopRecorder) RecordEvent(ctx context.Context, eventType, pid, token string, payload map[string]interface{}) error {
	return nil
}
func (noopRecorder) Reset(ctx context.Context) error { return nil }
