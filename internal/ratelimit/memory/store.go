package memory

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/creditgate/internal/ratelimit/domain"
)

// Store keeps rate limit records in process memory. Every operation holds
// the mutex for its whole read-modify-write.
type Store struct {
	mu      sync.Mutex
	records map[string]domain.Record
}

func New() *Store {
	return &Store{records: make(map[string]domain.Record)}
}

func (s *Store) Take(ctx context.Context, key string, cfg domain.Config, now time.Time) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current *domain.Record
	if rec, ok := s.records[key]; ok {
		current = &rec
	}
	next, res := domain.Apply(current, cfg, now)
	s.records[key] = next
	return res, nil
}

func (s *Store) Peek(ctx context.Context, key string, cfg domain.Config, now time.Time) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current *domain.Record
	if rec, ok := s.records[key]; ok {
		current = &rec
	}
	return domain.Evaluate(current, cfg, now), nil
}

// Sweep drops records whose window and block have both expired.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ domain.Store = (*Store)(nil)
