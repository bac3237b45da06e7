package vitals

import (
	"context"
	"sync"
)

// Repository stores vitals samples. LatestByPatient returns (nil, nil)
// when no sample has been recorded for the patient.
type Repository interface {
	Insert(ctx context.Context, s *Sample) error
	LatestByPatient(ctx context.Context, pid string) (*Sample, error)
	Reset(ctx context.Context) error
}

type memoryRepo struct {
	mu    sync.Mutex
	next  int64
	byPID map[string][]*Sample
}

// NewMemoryRepo returns an in-memory Repository, used when no database
// is configured and by tests.
func NewMemoryRepo() Repository {
	return &memoryRepo{byPID: make(map[string][]*Sample)}
}

func (r *memoryRepo) Insert(_ context.Context, s *Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	s.ID = r.next
	cp := *s
	r.byPID[s.PID] = append(r.byPID[s.PID], &cp)
	return nil
}

func (r *memoryRepo) LatestByPatient(_ context.Context, pid string) (*Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	samples := r.byPID[pid]
	if len(samples) == 0 {
		return nil, nil
	}
	cp := *samples[len(samples)-1]
	return &cp, nil
}

func (r *memoryRepo) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPID = make(map[string][]*Sample)
	return nil
}
