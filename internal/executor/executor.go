package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/service"
)

var (
	_ service.PositionSeller = (*Executor)(nil)
	_ service.Reconciler     = (*Executor)(nil)
)

// Quoter returns aggregator quotes.
type Quoter interface {
	Quote(ctx context.Context, inputAsset, outputAsset string, amount uint64, slippageBps int) (domain.Quote, error)
}

// TxSubmitter builds, signs, broadcasts and confirms a swap.
type TxSubmitter interface {
	Execute(ctx context.Context, quote domain.Quote, signer domain.Signer) (domain.Submission, error)
}

// SignerSource resolves the signer for a wallet.
type SignerSource interface {
	SignerFor(owner string) (domain.Signer, error)
}

// Notifier delivers operator alerts for position events.
type Notifier interface {
	NotifyPosition(ctx context.Context, evt domain.PositionEvent) error
}

// Deps are the collaborators of the executor. Everything below Wallets is
// optional and may be left nil.
type Deps struct {
	Positions domain.PositionStore
	Quotes    Quoter
	Submitter TxSubmitter
	Ledger    domain.Ledger
	Wallets   SignerSource

	Trades   domain.TradeStore
	History  domain.PositionHistoryStore
	Audit    domain.AuditStore
	Bus      domain.SignalBus
	Locks    domain.LockManager
	Notifier Notifier
}

// Config tunes the executor.
type Config struct {
	DefaultSlippageBps int
	TradeTimeout       time.Duration
	LockTTL            time.Duration
	DedupWindow        time.Duration
	PendingExpiry      time.Duration
}

// BuyOptions are the optional parameters of a buy.
type BuyOptions struct {
	SlippageBps   int // 0 uses the configured default
	TakeProfitPct *float64
	StopLossPct   *float64
}

// SellOptions are the optional parameters of a sell.
type SellOptions struct {
	Reason      domain.ExitReason
	SlippageBps int
}

// BuyResult is the outcome of a successful buy.
type BuyResult struct {
	Signature string          `json:"signature"`
	Position  domain.Position `json:"position"`
}

// SellResult is the outcome of a successful sell. Position is nil when the
// sell closed the position.
type SellResult struct {
	Signature string           `json:"signature"`
	Proceeds  uint64           `json:"proceeds"`
	Profit    int64            `json:"profit"`
	Closed    bool             `json:"closed"`
	Position  *domain.Position `json:"position,omitempty"`
}

// Executor runs buys and sells against the position store. Each trade moves
// its position through the status graph with compare-and-swap, so concurrent
// callers for the same key cannot both reach the ledger.
type Executor struct {
	d      Deps
	cfg    Config
	dedup  *Dedup
	logger *slog.Logger

	mu              sync.Mutex // guards draining and inflight.Add
	draining        bool
	inflight        sync.WaitGroup
	cleanupInterval time.Duration
}

// NewExecutor creates an Executor. Positions, Quotes, Submitter, Ledger and
// Wallets are required.
func NewExecutor(d Deps, cfg Config, logger *slog.Logger) *Executor {
	if cfg.DefaultSlippageBps <= 0 {
		cfg.DefaultSlippageBps = 100
	}
	if cfg.TradeTimeout <= 0 {
		cfg.TradeTimeout = 3 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Minute
	}
	if cfg.PendingExpiry <= 0 {
		cfg.PendingExpiry = 10 * time.Minute
	}
	return &Executor{
		d:               d,
		cfg:             cfg,
		dedup:           NewDedup(cfg.DedupWindow),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run periodically expires idempotency keys until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.dedup.Cleanup()
		}
	}
}

// CheckIdempotency rejects a request key seen within the dedup window. An
// empty key always passes.
func (e *Executor) CheckIdempotency(key string) error {
	if key == "" {
		return nil
	}
	if e.dedup.IsDuplicate(key) {
		return fmt.Errorf("executor: idempotency key %q: %w", key, domain.ErrDuplicateRequest)
	}
	return nil
}

// begin registers an in-flight trade and detaches it from the caller's
// cancellation: once a swap may be on the wire it is driven to an outcome.
// A caller deadline shorter than the trade timeout still applies.
func (e *Executor) begin(ctx context.Context) (context.Context, func(), error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, nil, domain.NewTradeError(domain.ReasonShuttingDown, domain.ErrShuttingDown)
	}
	e.inflight.Add(1)
	e.mu.Unlock()

	timeout := e.cfg.TradeTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	return tctx, func() {
		cancel()
		e.inflight.Done()
	}, nil
}

func (e *Executor) slippage(bps int) int {
	if bps <= 0 {
		return e.cfg.DefaultSlippageBps
	}
	return bps
}

// Buy spends baseAmount lamports on asset and records the resulting position.
func (e *Executor) Buy(ctx context.Context, owner, asset string, baseAmount uint64, opts BuyOptions) (BuyResult, error) {
	if baseAmount == 0 {
		return BuyResult{}, domain.NewTradeError(domain.ReasonInvalidAmount, domain.ErrInvalidArgument)
	}
	if invalidPct(opts.TakeProfitPct) || invalidPct(opts.StopLossPct) {
		return BuyResult{}, domain.NewTradeError(domain.ReasonInvalidPercentage, domain.ErrInvalidArgument)
	}
	signer, err := e.d.Wallets.SignerFor(owner)
	if err != nil {
		return BuyResult{}, domain.NewTradeError(domain.ReasonNoWallet, err)
	}

	ctx, done, err := e.begin(ctx)
	if err != nil {
		return BuyResult{}, err
	}
	defer done()

	quote, err := e.d.Quotes.Quote(ctx, domain.SOLMint, asset, baseAmount, e.slippage(opts.SlippageBps))
	if err != nil {
		return BuyResult{}, domain.NewTradeError(domain.ReasonQuote, err)
	}

	key := domain.PositionKey{Owner: owner, Asset: asset}
	pos := domain.Position{
		ID:               uuid.NewString(),
		Owner:            owner,
		Asset:            asset,
		CapitalCommitted: baseAmount,
		AcquiredAt:       time.Now().UTC(),
		TakeProfitPct:    opts.TakeProfitPct,
		StopLossPct:      opts.StopLossPct,
		Status:           domain.PositionStatusPending,
	}
	if err := e.d.Positions.Open(ctx, pos); err != nil {
		if errors.Is(err, domain.ErrPositionExists) {
			return BuyResult{}, domain.NewTradeError(domain.ReasonDuplicatePosition, err)
		}
		return BuyResult{}, domain.NewTradeError(domain.ReasonSubmit, err)
	}

	sub, err := e.d.Submitter.Execute(ctx, quote, signer)
	if err != nil {
		return BuyResult{}, e.failBuy(ctx, key, quote, err)
	}

	if _, err := e.d.Positions.Update(ctx, key, domain.PositionStatusPending, func(p *domain.Position) error {
		fill(p, quote.OutputAmount)
		p.LastSignature = sub.Signature
		p.PendingSignature = ""
		return nil
	}); err != nil {
		return BuyResult{}, e.lostPosition(ctx, key, sub.Signature, err)
	}
	opened, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusPending, domain.PositionStatusOpen)
	if err != nil {
		return BuyResult{}, e.lostPosition(ctx, key, sub.Signature, err)
	}

	e.logger.InfoContext(ctx, "position opened",
		slog.String("owner", owner),
		slog.String("asset", asset),
		slog.Uint64("quantity", opened.Quantity),
		slog.String("cost_sol", domain.LamportsToSOL(baseAmount).String()),
		slog.Float64("entry_price", opened.EntryPrice),
		slog.String("signature", sub.Signature),
	)
	e.recordFill(ctx, domain.TradeFill{
		PositionID:   opened.ID,
		Side:         domain.TradeSideBuy,
		Owner:        owner,
		Asset:        asset,
		InputAmount:  baseAmount,
		OutputAmount: opened.Quantity,
		Signature:    sub.Signature,
	})
	e.emit(ctx, domain.PositionEventOpened, opened, sub.Signature, "", 0, nil)
	return BuyResult{Signature: sub.Signature, Position: opened}, nil
}

// failBuy resolves the pending record after a failed submission.
func (e *Executor) failBuy(ctx context.Context, key domain.PositionKey, quote domain.Quote, cause error) error {
	sig := domain.SignatureOf(cause)
	if domain.IsAmbiguous(cause) && sig != "" {
		pos, err := e.d.Positions.Update(ctx, key, domain.PositionStatusPending, func(p *domain.Position) error {
			fill(p, quote.OutputAmount)
			p.LastSignature = sig
			p.PendingSignature = sig
			return nil
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "mark pending buy failed", slog.String("key", key.String()), slog.String("error", err.Error()))
			pos = domain.Position{Owner: key.Owner, Asset: key.Asset, Status: domain.PositionStatusPending}
		}
		e.logger.WarnContext(ctx, "buy outcome unknown, left pending",
			slog.String("key", key.String()),
			slog.String("signature", sig),
			slog.String("error", cause.Error()),
		)
		e.emit(ctx, domain.PositionEventUnresolved, pos, sig, "", 0, cause)
		return domain.NewTradeError(domain.ReasonSubmit, cause)
	}

	if err := e.d.Positions.Remove(ctx, key); err != nil {
		e.logger.ErrorContext(ctx, "remove failed pending position", slog.String("key", key.String()), slog.String("error", err.Error()))
	}
	e.logger.WarnContext(ctx, "buy failed",
		slog.String("key", key.String()),
		slog.String("error", cause.Error()),
	)
	e.emit(ctx, domain.PositionEventRollback, domain.Position{Owner: key.Owner, Asset: key.Asset}, sig, "", 0, cause)
	return domain.NewTradeError(domain.ReasonSubmit, cause)
}

// lostPosition reports a confirmed swap whose record changed underneath it.
func (e *Executor) lostPosition(ctx context.Context, key domain.PositionKey, sig string, err error) error {
	e.logger.ErrorContext(ctx, "confirmed swap could not be recorded",
		slog.String("key", key.String()),
		slog.String("signature", sig),
		slog.String("error", err.Error()),
	)
	return domain.NewTradeError(domain.ReasonSubmit, &domain.SubmitError{Signature: sig, Err: err})
}

// SellPosition fully exits the position at key. The monitor calls it.
func (e *Executor) SellPosition(ctx context.Context, key domain.PositionKey, reason domain.ExitReason) error {
	_, err := e.Sell(ctx, key.Owner, key.Asset, 100, SellOptions{Reason: reason})
	return err
}

// Sell swaps percentage of the held balance of asset back to SOL.
func (e *Executor) Sell(ctx context.Context, owner, asset string, percentage float64, opts SellOptions) (SellResult, error) {
	if math.IsNaN(percentage) || percentage <= 0 || percentage > 100 {
		return SellResult{}, domain.NewTradeError(domain.ReasonInvalidPercentage, domain.ErrInvalidArgument)
	}
	if opts.Reason == "" {
		opts.Reason = domain.ExitReasonManual
	}
	signer, err := e.d.Wallets.SignerFor(owner)
	if err != nil {
		return SellResult{}, domain.NewTradeError(domain.ReasonNoWallet, err)
	}

	ctx, done, err := e.begin(ctx)
	if err != nil {
		return SellResult{}, err
	}
	defer done()

	key := domain.PositionKey{Owner: owner, Asset: asset}
	pos, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusOpen, domain.PositionStatusClosing)
	if err != nil {
		return SellResult{}, domain.NewTradeError(domain.ReasonNotOpen, err)
	}

	if e.d.Locks != nil {
		unlock, err := e.d.Locks.Acquire(ctx, sellLockKey(key), e.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			e.rollback(ctx, key, err)
			return SellResult{}, domain.NewTradeError(domain.ReasonLocked, err)
		case err != nil:
			e.logger.WarnContext(ctx, "sell lock unavailable, continuing",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		default:
			defer unlock()
		}
	}

	balance, err := e.d.Ledger.TokenBalance(ctx, owner, asset)
	if err != nil {
		e.rollback(ctx, key, err)
		return SellResult{}, domain.NewTradeError(domain.ReasonBalance, err)
	}
	sellAmount := domain.Portion(balance, percentage)
	if sellAmount == 0 {
		e.rollback(ctx, key, domain.ErrZeroBalance)
		return SellResult{}, domain.NewTradeError(domain.ReasonBalance, domain.ErrZeroBalance)
	}

	quote, err := e.d.Quotes.Quote(ctx, asset, domain.SOLMint, sellAmount, e.slippage(opts.SlippageBps))
	if err != nil {
		e.rollback(ctx, key, err)
		return SellResult{}, domain.NewTradeError(domain.ReasonQuote, err)
	}

	sub, err := e.d.Submitter.Execute(ctx, quote, signer)
	if err != nil {
		return SellResult{}, e.failSell(ctx, key, err)
	}

	proceeds := quote.OutputAmount
	costBasis := domain.Portion(pos.CapitalCommitted, percentage)
	profit := int64(proceeds) - int64(costBasis)
	soldQty := domain.Portion(pos.Quantity, percentage)

	e.logger.InfoContext(ctx, "sell confirmed",
		slog.String("owner", owner),
		slog.String("asset", asset),
		slog.Float64("percentage", percentage),
		slog.String("reason", string(opts.Reason)),
		slog.String("proceeds_sol", domain.LamportsToSOL(proceeds).String()),
		slog.String("profit_sol", domain.SignedLamportsToSOL(profit).String()),
		slog.Float64("profit_pct", profitPct(profit, costBasis)),
		slog.String("signature", sub.Signature),
	)
	e.recordFill(ctx, domain.TradeFill{
		PositionID:   pos.ID,
		Side:         domain.TradeSideSell,
		Owner:        owner,
		Asset:        asset,
		InputAmount:  sellAmount,
		OutputAmount: proceeds,
		Profit:       profit,
		Signature:    sub.Signature,
		Reason:       opts.Reason,
	})

	res := SellResult{Signature: sub.Signature, Proceeds: proceeds, Profit: profit}
	if percentage >= 100 || soldQty >= pos.Quantity {
		final, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusClosing, domain.PositionStatusClosed)
		if err != nil {
			return res, e.lostPosition(ctx, key, sub.Signature, err)
		}
		final.RealizedProfit += profit
		final.LastSignature = sub.Signature
		e.archive(ctx, domain.ClosedPosition{
			Position:      final,
			ExitSignature: sub.Signature,
			ExitReason:    opts.Reason,
			Proceeds:      proceeds,
			ClosedAt:      time.Now().UTC(),
		})
		e.emit(ctx, domain.PositionEventClosed, final, sub.Signature, string(opts.Reason), profit, nil)
		res.Closed = true
		return res, nil
	}

	if _, err := e.d.Positions.Update(ctx, key, domain.PositionStatusClosing, func(p *domain.Position) error {
		reduce(p, soldQty, costBasis)
		p.RealizedProfit += profit
		p.LastSignature = sub.Signature
		return nil
	}); err != nil {
		return res, e.lostPosition(ctx, key, sub.Signature, err)
	}
	reopened, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusClosing, domain.PositionStatusOpen)
	if err != nil {
		return res, e.lostPosition(ctx, key, sub.Signature, err)
	}
	e.emit(ctx, domain.PositionEventSold, reopened, sub.Signature, string(opts.Reason), profit, nil)
	res.Position = &reopened
	return res, nil
}

// failSell resolves the closing record after a failed submission.
func (e *Executor) failSell(ctx context.Context, key domain.PositionKey, cause error) error {
	sig := domain.SignatureOf(cause)
	if domain.IsAmbiguous(cause) && sig != "" {
		pos, err := e.d.Positions.Update(ctx, key, domain.PositionStatusClosing, func(p *domain.Position) error {
			p.LastSignature = sig
			p.PendingSignature = sig
			return nil
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "mark pending sell failed", slog.String("key", key.String()), slog.String("error", err.Error()))
			pos = domain.Position{Owner: key.Owner, Asset: key.Asset, Status: domain.PositionStatusClosing}
		}
		e.logger.WarnContext(ctx, "sell outcome unknown, left closing",
			slog.String("key", key.String()),
			slog.String("signature", sig),
			slog.String("error", cause.Error()),
		)
		e.emit(ctx, domain.PositionEventUnresolved, pos, sig, "", 0, cause)
		return domain.NewTradeError(domain.ReasonSubmit, cause)
	}
	e.rollback(ctx, key, cause)
	return domain.NewTradeError(domain.ReasonSubmit, cause)
}

// rollback returns a closing position to open.
func (e *Executor) rollback(ctx context.Context, key domain.PositionKey, cause error) {
	pos, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusClosing, domain.PositionStatusOpen)
	if err != nil {
		e.logger.ErrorContext(ctx, "rollback to open failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		return
	}
	e.logger.WarnContext(ctx, "sell aborted, position reopened",
		slog.String("key", key.String()),
		slog.String("error", cause.Error()),
	)
	e.emit(ctx, domain.PositionEventRollback, pos, "", "", 0, cause)
}

// Drain stops accepting trades and waits for in-flight ones until ctx ends.
// Positions still pending or closing afterwards are logged.
func (e *Executor) Drain(ctx context.Context) error {
	e.mu.Lock()
	e.draining = true
	e.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("executor: drain: %w", ctx.Err())
	}

	for _, st := range []domain.PositionStatus{domain.PositionStatusPending, domain.PositionStatusClosing} {
		left, listErr := e.d.Positions.ListByStatus(context.WithoutCancel(ctx), st)
		if listErr != nil {
			continue
		}
		for _, p := range left {
			e.logger.Warn("position unresolved at shutdown",
				slog.String("key", p.Key().String()),
				slog.String("status", string(p.Status)),
				slog.String("signature", p.LastSignature),
			)
		}
	}
	return err
}

func sellLockKey(key domain.PositionKey) string {
	return "lock:sell:" + key.Owner + ":" + key.Asset
}

func invalidPct(p *float64) bool {
	return p != nil && (math.IsNaN(*p) || math.IsInf(*p, 0))
}

func profitPct(profit int64, cost uint64) float64 {
	if cost == 0 {
		return 0
	}
	return float64(profit) / float64(cost) * 100
}

// fill sets the acquired quantity and the entry price it implies.
func fill(p *domain.Position, quantity uint64) {
	p.Quantity = quantity
	p.EntryPrice = p.Price()
}

// reduce removes a sold portion, keeping entry price equal to capital/quantity.
func reduce(p *domain.Position, soldQty, soldCapital uint64) {
	p.Quantity -= min(soldQty, p.Quantity)
	p.CapitalCommitted -= min(soldCapital, p.CapitalCommitted)
	p.EntryPrice = p.Price()
}
