package ledger

import (
	"context"
	"sync"

	"github.com/ppiankov/resubmit/internal/model"
)

// MemoryStore keeps decisions in process memory
type MemoryStore struct {
	mu        sync.Mutex
	decisions []model.EligibilityDecision
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored decisions
func (s *MemoryStore) Load(ctx context.Context) ([]model.EligibilityDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.EligibilityDecision(nil), s.decisions...), nil
}

// Append stores d
func (s *MemoryStore) Append(ctx context.Context, d model.EligibilityDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }
