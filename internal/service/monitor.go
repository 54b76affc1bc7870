package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Prober returns the current exit price of an asset in lamports per raw unit.
type Prober interface {
	Probe(ctx context.Context, asset string) (float64, error)
}

// PositionSeller fully exits a position. The executor implements it.
type PositionSeller interface {
	SellPosition(ctx context.Context, key domain.PositionKey, reason domain.ExitReason) error
}

// Reconciler resolves positions left behind by ambiguous submissions.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// MonitorConfig tunes the monitor loop.
type MonitorConfig struct {
	Interval     time.Duration
	Workers      int
	ProbeTimeout time.Duration
	SellTimeout  time.Duration
	AutoStart    bool
}

// MonitorStatus is a snapshot of the loop for the status endpoint.
type MonitorStatus struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	LastTick time.Time     `json:"lastTick,omitzero"`
	Ticks    int64         `json:"ticks"`
}

// Monitor periodically probes every open position and sells those that have
// crossed their take-profit or stop-loss threshold.
type Monitor struct {
	positions  domain.PositionStore
	prober     Prober
	seller     PositionSeller
	reconciler Reconciler // optional
	cfg        MonitorConfig
	restart    chan time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	status MonitorStatus
}

// NewMonitor creates a Monitor. reconciler may be nil.
func NewMonitor(
	positions domain.PositionStore,
	prober Prober,
	seller PositionSeller,
	reconciler Reconciler,
	cfg MonitorConfig,
	logger *slog.Logger,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 15 * time.Second
	}
	if cfg.SellTimeout <= 0 {
		cfg.SellTimeout = 2 * time.Minute
	}
	return &Monitor{
		positions:  positions,
		prober:     prober,
		seller:     seller,
		reconciler: reconciler,
		cfg:        cfg,
		restart:    make(chan time.Duration, 1),
		logger:     logger.With(slog.String("component", "monitor")),
	}
}

// Start begins monitoring at interval, or switches a running loop to the new
// interval. It never blocks; Run must be running for ticks to happen.
func (m *Monitor) Start(interval time.Duration) {
	if interval <= 0 {
		interval = m.cfg.Interval
	}
	for {
		select {
		case m.restart <- interval:
			return
		default:
		}
		// Drop a request Run has not picked up yet; the newest one wins.
		select {
		case <-m.restart:
		default:
		}
	}
}

// Status returns the current loop state.
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Run drives the loop until ctx is cancelled. Ticks only start after Start
// is called, or immediately when AutoStart is set.
func (m *Monitor) Run(ctx context.Context) error {
	if m.cfg.AutoStart {
		m.Start(m.cfg.Interval)
	}

	var (
		ticker *time.Ticker
		tickC  <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			m.setRunning(false, 0)
			return ctx.Err()
		case interval := <-m.restart:
			if ticker != nil {
				ticker.Stop()
			}
			ticker = time.NewTicker(interval)
			tickC = ticker.C
			m.setRunning(true, interval)
			m.logger.InfoContext(ctx, "monitoring started", slog.Duration("interval", interval))
			m.Tick(ctx)
		case <-tickC:
			m.Tick(ctx)
		}
	}
}

// Tick runs one monitoring pass: reconcile, then probe and evaluate every
// open position with a bounded worker pool.
func (m *Monitor) Tick(ctx context.Context) {
	if m.reconciler != nil {
		if err := m.reconciler.Reconcile(ctx); err != nil {
			m.logger.WarnContext(ctx, "reconcile failed", slog.String("error", err.Error()))
		}
	}

	open, err := m.positions.ListOpen(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "list open positions failed", slog.String("error", err.Error()))
		return
	}
	m.logger.DebugContext(ctx, "monitor tick", slog.Int("open_positions", len(open)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for _, pos := range open {
		if pos.TakeProfitPct == nil && pos.StopLossPct == nil {
			continue
		}
		g.Go(func() error {
			m.check(gctx, pos)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	m.status.LastTick = time.Now().UTC()
	m.status.Ticks++
	m.mu.Unlock()
}

func (m *Monitor) check(ctx context.Context, pos domain.Position) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	price, err := m.prober.Probe(probeCtx, pos.Asset)
	cancel()
	if err != nil {
		m.logger.WarnContext(ctx, "probe failed",
			slog.String("owner", pos.Owner),
			slog.String("asset", pos.Asset),
			slog.String("error", err.Error()),
		)
		return
	}

	m.logger.DebugContext(ctx, "position checked",
		slog.String("asset", pos.Asset),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("price", price),
		slog.Float64("change_pct", ChangePct(pos.EntryPrice, price)),
	)

	reason, ok := Evaluate(pos, price)
	if !ok {
		return
	}

	m.logger.InfoContext(ctx, "exit threshold reached",
		slog.String("owner", pos.Owner),
		slog.String("asset", pos.Asset),
		slog.String("reason", string(reason)),
		slog.Float64("change_pct", ChangePct(pos.EntryPrice, price)),
	)

	sellCtx, cancel := context.WithTimeout(ctx, m.cfg.SellTimeout)
	defer cancel()
	if err := m.seller.SellPosition(sellCtx, pos.Key(), reason); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			m.logger.DebugContext(ctx, "position already being handled",
				slog.String("asset", pos.Asset),
				slog.String("error", err.Error()),
			)
			return
		}
		m.logger.ErrorContext(ctx, "automatic sell failed",
			slog.String("owner", pos.Owner),
			slog.String("asset", pos.Asset),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Monitor) setRunning(running bool, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Running = running
	if interval > 0 {
		m.status.Interval = interval
	}
}

// ChangePct is the percentage move from entry to price.
func ChangePct(entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (price - entry) / entry * 100
}

// Evaluate decides whether pos should be exited at price. Take-profit is
// checked before stop-loss. The stop-loss threshold is a magnitude.
func Evaluate(pos domain.Position, price float64) (domain.ExitReason, bool) {
	if pos.Status != domain.PositionStatusOpen || pos.EntryPrice <= 0 {
		return "", false
	}
	change := ChangePct(pos.EntryPrice, price)
	if pos.TakeProfitPct != nil && change >= *pos.TakeProfitPct {
		return domain.ExitReasonTakeProfit, true
	}
	if pos.StopLossPct != nil && change <= -math.Abs(*pos.StopLossPct) {
		return domain.ExitReasonStopLoss, true
	}
	return "", false
}
