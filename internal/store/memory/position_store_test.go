package memory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

func openPosition(owner, asset string) domain.Position {
	return domain.Position{
		ID:               "id-" + asset,
		Owner:            owner,
		Asset:            asset,
		EntryPrice:       0.5,
		Quantity:         200,
		CapitalCommitted: 100,
		Status:           domain.PositionStatusOpen,
	}
}

func TestOpenRejectsDuplicate(t *testing.T) {
	s := NewPositionStore()
	ctx := t.Context()
	p := openPosition("alice", "MINT")
	require.NoError(t, s.Open(ctx, p))

	dup := p
	dup.Quantity = 999
	dup.EntryPrice = float64(dup.CapitalCommitted) / 999
	err := s.Open(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrPositionExists)

	got, err := s.Get(ctx, p.Key())
	require.NoError(t, err)
	assert.Equal(t, uint64(200), got.Quantity)

	// Same asset for a different owner is a different key.
	assert.NoError(t, s.Open(ctx, openPosition("bob", "MINT")))
}

func TestOpenValidates(t *testing.T) {
	s := NewPositionStore()
	p := openPosition("alice", "MINT")
	p.EntryPrice = 7
	assert.ErrorIs(t, s.Open(t.Context(), p), domain.ErrInvalidArgument)

	p = openPosition("alice", "MINT")
	p.Status = domain.PositionStatusClosed
	assert.ErrorIs(t, s.Open(t.Context(), p), domain.ErrInvalidArgument)
}

func TestTransitionCompareAndSwap(t *testing.T) {
	s := NewPositionStore()
	ctx := t.Context()
	p := openPosition("alice", "MINT")
	require.NoError(t, s.Open(ctx, p))

	_, err := s.Transition(ctx, p.Key(), domain.PositionStatusPending, domain.PositionStatusOpen)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = s.Transition(ctx, p.Key(), domain.PositionStatusOpen, domain.PositionStatusClosed)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "open -> closed skips closing")

	got, err := s.Transition(ctx, p.Key(), domain.PositionStatusOpen, domain.PositionStatusClosing)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosing, got.Status)

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	final, err := s.Transition(ctx, p.Key(), domain.PositionStatusClosing, domain.PositionStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, final.Status)

	_, err = s.Get(ctx, p.Key())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Transition(ctx, p.Key(), domain.PositionStatusOpen, domain.PositionStatusClosing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentTransitionHasOneWinner(t *testing.T) {
	s := NewPositionStore()
	ctx := t.Context()
	p := openPosition("alice", "MINT")
	require.NoError(t, s.Open(ctx, p))

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, p.Key(), domain.PositionStatusOpen, domain.PositionStatusClosing)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrInvalidTransition):
				losses.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), losses.Load())
}

func TestUpdate(t *testing.T) {
	s := NewPositionStore()
	ctx := t.Context()
	p := openPosition("alice", "MINT")
	p.Status = domain.PositionStatusPending
	p.Quantity, p.CapitalCommitted, p.EntryPrice = 0, 100, 0
	require.NoError(t, s.Open(ctx, p))

	got, err := s.Update(ctx, p.Key(), domain.PositionStatusPending, func(pos *domain.Position) error {
		pos.Quantity = 400
		pos.EntryPrice = pos.Price()
		pos.LastSignature = "sig"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0.25, got.EntryPrice)
	assert.Equal(t, "sig", got.LastSignature)

	_, err = s.Update(ctx, p.Key(), domain.PositionStatusOpen, func(*domain.Position) error { return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = s.Update(ctx, p.Key(), domain.PositionStatusPending, func(pos *domain.Position) error {
		pos.Status = domain.PositionStatusOpen
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = s.Update(ctx, p.Key(), domain.PositionStatusPending, func(pos *domain.Position) error {
		pos.Quantity = 1 // entry price left stale
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestListIsStableAndCopied(t *testing.T) {
	s := NewPositionStore()
	ctx := t.Context()
	tp := 10.0
	for _, asset := range []string{"C", "A", "B"} {
		p := openPosition("alice", asset)
		p.TakeProfitPct = &tp
		require.NoError(t, s.Open(ctx, p))
	}
	require.NoError(t, s.Open(ctx, openPosition("bob", "Z")))

	first, err := s.List(ctx, "alice")
	require.NoError(t, err)
	second, err := s.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)

	*first[0].TakeProfitPct = 99
	again, err := s.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10.0, *again[0].TakeProfitPct)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRemove(t *testing.T) {
	s := NewPositionStore()
	p := openPosition("alice", "MINT")
	require.NoError(t, s.Open(t.Context(), p))
	require.NoError(t, s.Remove(t.Context(), p.Key()))
	assert.ErrorIs(t, s.Remove(t.Context(), p.Key()), domain.ErrNotFound)
	assert.NoError(t, s.Open(t.Context(), p))
}
