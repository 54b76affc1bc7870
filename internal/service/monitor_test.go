package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/store/memory"
)

func pct(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	pos := domain.Position{
		Status:        domain.PositionStatusOpen,
		EntryPrice:    1.0,
		TakeProfitPct: pct(10),
		StopLossPct:   pct(5),
	}

	cases := []struct {
		price  float64
		reason domain.ExitReason
		ok     bool
	}{
		{1.11, domain.ExitReasonTakeProfit, true},
		{1.10, domain.ExitReasonTakeProfit, true},
		{0.94, domain.ExitReasonStopLoss, true},
		{1.03, "", false},
		{0.96, "", false},
	}
	for _, tc := range cases {
		reason, ok := Evaluate(pos, tc.price)
		assert.Equal(t, tc.ok, ok, "price %v", tc.price)
		assert.Equal(t, tc.reason, reason, "price %v", tc.price)
	}

	negSL := pos
	negSL.TakeProfitPct = nil
	negSL.StopLossPct = pct(-5)
	reason, ok := Evaluate(negSL, 0.94)
	assert.True(t, ok)
	assert.Equal(t, domain.ExitReasonStopLoss, reason)

	closing := pos
	closing.Status = domain.PositionStatusClosing
	_, ok = Evaluate(closing, 2)
	assert.False(t, ok)

	noThresholds := domain.Position{Status: domain.PositionStatusOpen, EntryPrice: 1}
	_, ok = Evaluate(noThresholds, 100)
	assert.False(t, ok)
}

type fakeProber struct {
	prices map[string]float64
}

func (p fakeProber) Probe(_ context.Context, asset string) (float64, error) {
	price, ok := p.prices[asset]
	if !ok {
		return 0, domain.ErrQuoteUnavailable
	}
	return price, nil
}

type recordingSeller struct {
	mu    sync.Mutex
	sells map[string]domain.ExitReason
}

func (s *recordingSeller) SellPosition(_ context.Context, key domain.PositionKey, reason domain.ExitReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sells == nil {
		s.sells = map[string]domain.ExitReason{}
	}
	s.sells[key.Asset] = reason
	return nil
}

type countingReconciler struct{ calls int }

func (r *countingReconciler) Reconcile(context.Context) error {
	r.calls++
	return nil
}

func seedOpen(t *testing.T, store *memory.PositionStore, asset string, tp, sl *float64) {
	t.Helper()
	require.NoError(t, store.Open(context.Background(), domain.Position{
		ID:               asset,
		Owner:            "owner",
		Asset:            asset,
		EntryPrice:       1,
		Quantity:         1000,
		CapitalCommitted: 1000,
		AcquiredAt:       time.Now(),
		TakeProfitPct:    tp,
		StopLossPct:      sl,
		Status:           domain.PositionStatusOpen,
	}))
}

func TestMonitorTick(t *testing.T) {
	store := memory.NewPositionStore()
	seedOpen(t, store, "up", pct(10), pct(5))
	seedOpen(t, store, "down", pct(10), pct(5))
	seedOpen(t, store, "flat", pct(10), pct(5))
	seedOpen(t, store, "broken", pct(10), pct(5))

	prober := fakeProber{prices: map[string]float64{"up": 1.11, "down": 0.94, "flat": 1.03}}
	seller := &recordingSeller{}
	rec := &countingReconciler{}
	m := NewMonitor(store, prober, seller, rec, MonitorConfig{Workers: 2}, discardLogger())

	m.Tick(context.Background())

	assert.Equal(t, map[string]domain.ExitReason{
		"up":   domain.ExitReasonTakeProfit,
		"down": domain.ExitReasonStopLoss,
	}, seller.sells)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, int64(1), m.Status().Ticks)
}

func TestMonitorStartAndRestart(t *testing.T) {
	store := memory.NewPositionStore()
	rec := &countingReconciler{}
	m := NewMonitor(store, fakeProber{}, &recordingSeller{}, rec, MonitorConfig{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.False(t, m.Status().Running)

	m.Start(time.Hour)
	require.Eventually(t, func() bool { return m.Status().Ticks == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.Status().Running)
	assert.Equal(t, time.Hour, m.Status().Interval)

	m.Start(10 * time.Millisecond)
	require.Eventually(t, func() bool { return m.Status().Ticks >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, m.Status().Interval)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, m.Status().Running)
}
