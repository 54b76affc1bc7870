package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Side effects below are best-effort: failures are logged and never change
// the outcome of the trade that caused them.

func (e *Executor) recordFill(ctx context.Context, f domain.TradeFill) {
	if f.ExecutedAt.IsZero() {
		f.ExecutedAt = time.Now().UTC()
	}
	if e.d.Trades != nil {
		if err := e.d.Trades.InsertFill(ctx, f); err != nil {
			e.logger.WarnContext(ctx, "record fill failed",
				slog.String("signature", f.Signature),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.d.Audit != nil {
		detail := map[string]any{
			"side":      string(f.Side),
			"owner":     f.Owner,
			"asset":     f.Asset,
			"input":     f.InputAmount,
			"output":    f.OutputAmount,
			"signature": f.Signature,
		}
		if f.Side == domain.TradeSideSell {
			detail["profit"] = f.Profit
			detail["reason"] = string(f.Reason)
		}
		if err := e.d.Audit.Log(ctx, "trade_"+string(f.Side), detail); err != nil {
			e.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Executor) archive(ctx context.Context, cp domain.ClosedPosition) {
	if e.d.History == nil {
		return
	}
	if err := e.d.History.SaveClosed(ctx, cp); err != nil {
		e.logger.WarnContext(ctx, "archive closed position failed",
			slog.String("key", cp.Key().String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) emit(ctx context.Context, typ domain.PositionEventType, pos domain.Position, sig, reason string, profit int64, cause error) {
	evt := domain.PositionEvent{
		Type:      typ,
		Owner:     pos.Owner,
		Asset:     pos.Asset,
		Status:    pos.Status,
		Signature: sig,
		Reason:    reason,
		Quantity:  pos.Quantity,
		Capital:   pos.CapitalCommitted,
		Profit:    profit,
		At:        time.Now().UTC(),
	}
	if cause != nil {
		evt.Error = cause.Error()
	}

	if e.d.Bus != nil {
		payload, err := json.Marshal(evt)
		if err == nil {
			if pubErr := e.d.Bus.Publish(ctx, domain.ChannelPositions, payload); pubErr != nil {
				e.logger.WarnContext(ctx, "publish position event failed", slog.String("error", pubErr.Error()))
			}
			if appErr := e.d.Bus.StreamAppend(ctx, domain.StreamPositions, payload); appErr != nil {
				e.logger.WarnContext(ctx, "append position event failed", slog.String("error", appErr.Error()))
			}
		}
	}

	if e.d.Notifier != nil {
		if err := e.d.Notifier.NotifyPosition(ctx, evt); err != nil {
			e.logger.WarnContext(ctx, "notify failed",
				slog.String("event", string(evt.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}
