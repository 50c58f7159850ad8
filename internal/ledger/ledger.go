package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/resubmit/internal/model"
)

// Store persists decision events. Implementations only append; nothing
// ever rewrites or removes an event.
type Store interface {
	// Load returns every stored decision in append order
	Load(ctx context.Context) ([]model.EligibilityDecision, error)

	// Append durably persists one decision before returning
	Append(ctx context.Context, d model.EligibilityDecision) error

	Close() error
}

// Ledger is the append-only decision log. The current decision of a claim
// is the latest event appended for it.
type Ledger struct {
	mu      sync.RWMutex
	store   Store
	events  []model.EligibilityDecision
	byClaim map[string][]int // indexes into events
	ids     map[string]bool
}

// Open loads the existing log from store
func Open(ctx context.Context, store Store) (*Ledger, error) {
	events, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}

	l := &Ledger{
		store:   store,
		byClaim: make(map[string][]int),
		ids:     make(map[string]bool),
	}
	for _, d := range events {
		if err := l.check(d); err != nil {
			return nil, fmt.Errorf("replay decision log: %w", err)
		}
		l.index(d)
	}
	return l, nil
}

// Append validates and persists d. A decision id already in the log, or a
// Supersedes that does not name the claim's current decision, is rejected
// with model.ErrDuplicateDecision.
func (l *Ledger) Append(ctx context.Context, d model.EligibilityDecision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.check(d); err != nil {
		return err
	}
	if err := l.store.Append(ctx, d); err != nil {
		return fmt.Errorf("persist decision %s: %w", d.DecisionID, err)
	}
	l.index(d)
	return nil
}

func (l *Ledger) check(d model.EligibilityDecision) error {
	if d.DecisionID == "" || d.ClaimID == "" {
		return fmt.Errorf("decision needs both decision_id and claim_id")
	}
	if l.ids[d.DecisionID] {
		return fmt.Errorf("%w: decision %s already recorded", model.ErrDuplicateDecision, d.DecisionID)
	}

	current := ""
	if idx := l.byClaim[d.ClaimID]; len(idx) > 0 {
		current = l.events[idx[len(idx)-1]].DecisionID
	}
	if d.Supersedes != current {
		return fmt.Errorf("%w: decision %s supersedes %q but current decision for claim %s is %q",
			model.ErrDuplicateDecision, d.DecisionID, d.Supersedes, d.ClaimID, current)
	}
	return nil
}

func (l *Ledger) index(d model.EligibilityDecision) {
	l.events = append(l.events, d)
	l.byClaim[d.ClaimID] = append(l.byClaim[d.ClaimID], len(l.events)-1)
	l.ids[d.DecisionID] = true
}

// Current returns the claim's latest decision
func (l *Ledger) Current(claimID string) (*model.EligibilityDecision, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := l.byClaim[claimID]
	if len(idx) == 0 {
		return nil, false
	}
	d := l.events[idx[len(idx)-1]]
	return &d, true
}

// History returns every decision for the claim, oldest first
func (l *Ledger) History(claimID string) []model.EligibilityDecision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := l.byClaim[claimID]
	out := make([]model.EligibilityDecision, len(idx))
	for i, j := range idx {
		out[i] = l.events[j]
	}
	return out
}

// CurrentAll returns the current decision of every claim, sorted by claim id
func (l *Ledger) CurrentAll() []model.EligibilityDecision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	claims := make([]string, 0, len(l.byClaim))
	for id := range l.byClaim {
		claims = append(claims, id)
	}
	sort.Strings(claims)

	out := make([]model.EligibilityDecision, 0, len(claims))
	for _, id := range claims {
		idx := l.byClaim[id]
		out = append(out, l.events[idx[len(idx)-1]])
	}
	return out
}

// Events returns the whole log in append order
func (l *Ledger) Events() []model.EligibilityDecision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.EligibilityDecision(nil), l.events...)
}

// Close closes the underlying store
func (l *Ledger) Close() error {
	return l.store.Close()
}
