// Package memory holds the in-process store of active positions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

var _ domain.PositionStore = (*PositionStore)(nil)

// PositionStore is the single owner of active positions. Every mutation is a
// compare-and-swap on status under one mutex, and callers only ever receive
// copies. Closed positions are removed.
type PositionStore struct {
	mu        sync.Mutex
	positions map[domain.PositionKey]domain.Position
	now       func() time.Time
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[domain.PositionKey]domain.Position),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Open inserts pos. It fails with domain.ErrPositionExists when an active
// position already occupies the key.
func (s *PositionStore) Open(_ context.Context, pos domain.Position) error {
	if err := pos.Validate(); err != nil {
		return fmt.Errorf("memory: open: %w", err)
	}
	if !pos.Status.Active() {
		return fmt.Errorf("memory: open: %w: status %q", domain.ErrInvalidArgument, pos.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pos.Key()
	if cur, ok := s.positions[key]; ok && cur.Status.Active() {
		return fmt.Errorf("memory: open %s: %w (status %s)", key, domain.ErrPositionExists, cur.Status)
	}
	pos = pos.Clone()
	if pos.AcquiredAt.IsZero() {
		pos.AcquiredAt = s.now()
	}
	pos.UpdatedAt = s.now()
	s.positions[key] = pos
	return nil
}

// Transition moves the position at key from one status to another. A
// transition to closed removes the record and returns its final state.
func (s *PositionStore) Transition(_ context.Context, key domain.PositionKey, from, to domain.PositionStatus) (domain.Position, error) {
	if !domain.CanTransition(from, to) {
		return domain.Position{}, fmt.Errorf("memory: transition %s: %w: %s -> %s", key, domain.ErrInvalidTransition, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.positions[key]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: transition %s: %w", key, domain.ErrNotFound)
	}
	if cur.Status != from {
		return domain.Position{}, fmt.Errorf("memory: transition %s: %w: status is %s, want %s",
			key, domain.ErrInvalidTransition, cur.Status, from)
	}

	cur.Status = to
	cur.UpdatedAt = s.now()
	if to == domain.PositionStatusClosed {
		delete(s.positions, key)
	} else {
		s.positions[key] = cur
	}
	return cur.Clone(), nil
}

// Update applies mutate to the position at key while it holds status. Status,
// owner and asset cannot be changed this way, and the result must still
// satisfy the position invariants.
func (s *PositionStore) Update(_ context.Context, key domain.PositionKey, status domain.PositionStatus, mutate func(*domain.Position) error) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.positions[key]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: update %s: %w", key, domain.ErrNotFound)
	}
	if cur.Status != status {
		return domain.Position{}, fmt.Errorf("memory: update %s: %w: status is %s, want %s",
			key, domain.ErrInvalidTransition, cur.Status, status)
	}

	next := cur.Clone()
	if err := mutate(&next); err != nil {
		return domain.Position{}, fmt.Errorf("memory: update %s: %w", key, err)
	}
	if next.Status != cur.Status || next.Key() != key {
		return domain.Position{}, fmt.Errorf("memory: update %s: %w: status and key are immutable", key, domain.ErrInvalidArgument)
	}
	if err := next.Validate(); err != nil {
		return domain.Position{}, fmt.Errorf("memory: update %s: %w", key, err)
	}
	next.UpdatedAt = s.now()
	s.positions[key] = next
	return next.Clone(), nil
}

// Get returns a copy of the position at key.
func (s *PositionStore) Get(_ context.Context, key domain.PositionKey) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.positions[key]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: get %s: %w", key, domain.ErrNotFound)
	}
	return cur.Clone(), nil
}

// Remove deletes the position at key regardless of status.
func (s *PositionStore) Remove(_ context.Context, key domain.PositionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[key]; !ok {
		return fmt.Errorf("memory: remove %s: %w", key, domain.ErrNotFound)
	}
	delete(s.positions, key)
	return nil
}

// ListOpen returns every position with status open.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	return s.ListByStatus(ctx, domain.PositionStatusOpen)
}

// ListByStatus returns every position with the given status.
func (s *PositionStore) ListByStatus(_ context.Context, status domain.PositionStatus) ([]domain.Position, error) {
	return s.collect(func(p domain.Position) bool { return p.Status == status }), nil
}

// List returns an owner's active positions of any status. An empty owner
// lists everyone's.
func (s *PositionStore) List(_ context.Context, owner string) ([]domain.Position, error) {
	return s.collect(func(p domain.Position) bool { return owner == "" || p.Owner == owner }), nil
}

func (s *PositionStore) collect(keep func(domain.Position) bool) []domain.Position {
	s.mu.Lock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].AcquiredAt.Before(out[j].AcquiredAt)
		}
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}
