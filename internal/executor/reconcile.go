package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Reconcile looks up every submission left without an outcome and settles the
// position it belongs to. Signatures the ledger still does not know after
// PendingExpiry are treated as never landed.
func (e *Executor) Reconcile(ctx context.Context) error {
	var errs []error
	for _, st := range []domain.PositionStatus{domain.PositionStatusPending, domain.PositionStatusClosing} {
		positions, err := e.d.Positions.ListByStatus(ctx, st)
		if err != nil {
			return fmt.Errorf("executor: reconcile: list %s: %w", st, err)
		}
		for _, p := range positions {
			if p.PendingSignature == "" {
				continue // a trade is still driving it
			}
			if err := e.reconcileOne(ctx, p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) reconcileOne(ctx context.Context, p domain.Position) error {
	key := p.Key()
	state, err := e.d.Ledger.SignatureStatus(ctx, p.PendingSignature)
	if err != nil {
		return fmt.Errorf("executor: reconcile %s: %w", key, err)
	}
	if state == domain.SignatureUnknown && time.Since(p.UpdatedAt) > e.cfg.PendingExpiry {
		state = domain.SignatureFailed
	}

	log := e.logger.With(
		slog.String("key", key.String()),
		slog.String("status", string(p.Status)),
		slog.String("signature", p.PendingSignature),
		slog.String("outcome", string(state)),
	)

	switch {
	case state == domain.SignatureUnknown:
		log.DebugContext(ctx, "submission still unresolved")
		return nil

	case p.Status == domain.PositionStatusPending && state == domain.SignatureConfirmed:
		if _, err := e.d.Positions.Update(ctx, key, domain.PositionStatusPending, clearPending); err != nil {
			return fmt.Errorf("executor: reconcile %s: %w", key, err)
		}
		opened, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusPending, domain.PositionStatusOpen)
		if err != nil {
			return fmt.Errorf("executor: reconcile %s: %w", key, err)
		}
		log.InfoContext(ctx, "pending buy landed, position opened")
		e.recordFill(ctx, domain.TradeFill{
			PositionID:   opened.ID,
			Side:         domain.TradeSideBuy,
			Owner:        opened.Owner,
			Asset:        opened.Asset,
			InputAmount:  opened.CapitalCommitted,
			OutputAmount: opened.Quantity,
			Signature:    opened.LastSignature,
		})
		e.emit(ctx, domain.PositionEventOpened, opened, opened.LastSignature, "", 0, nil)

	case p.Status == domain.PositionStatusPending:
		if err := e.d.Positions.Remove(ctx, key); err != nil {
			return fmt.Errorf("executor: reconcile %s: %w", key, err)
		}
		log.WarnContext(ctx, "pending buy never landed, position removed")
		e.emit(ctx, domain.PositionEventRollback, p, p.PendingSignature, "", 0, domain.ErrTransactionFailed)

	case state == domain.SignatureConfirmed:
		return e.settleSell(ctx, p, log)

	default:
		if _, err := e.d.Positions.Update(ctx, key, domain.PositionStatusClosing, clearPending); err != nil {
			return fmt.Errorf("executor: reconcile %s: %w", key, err)
		}
		reopened, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusClosing, domain.PositionStatusOpen)
		if err != nil {
			return fmt.Errorf("executor: reconcile %s: %w", key, err)
		}
		log.WarnContext(ctx, "pending sell never landed, position reopened")
		e.emit(ctx, domain.PositionEventRollback, reopened, p.PendingSignature, "", 0, domain.ErrTransactionFailed)
	}
	return nil
}

// settleSell applies a sell that landed without the executor seeing it. The
// remaining token balance tells how much was sold.
func (e *Executor) settleSell(ctx context.Context, p domain.Position, log *slog.Logger) error {
	key := p.Key()
	balance, err := e.d.Ledger.TokenBalance(ctx, p.Owner, p.Asset)
	if err != nil {
		return fmt.Errorf("executor: reconcile %s: balance: %w", key, err)
	}

	if balance == 0 {
		final, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusClosing, domain.PositionStatusClosed)
		if err != nil {
			return fmt.Errorf("executor: reconcile %s: %w", key, err)
		}
		log.InfoContext(ctx, "pending sell landed, position closed")
		e.archive(ctx, domain.ClosedPosition{
			Position:      final,
			ExitSignature: p.PendingSignature,
			ExitReason:    domain.ExitReasonManual,
			ClosedAt:      time.Now().UTC(),
		})
		e.emit(ctx, domain.PositionEventClosed, final, p.PendingSignature, "", 0, nil)
		return nil
	}

	if _, err := e.d.Positions.Update(ctx, key, domain.PositionStatusClosing, func(q *domain.Position) error {
		if balance < q.Quantity {
			capital := domain.Scale(q.CapitalCommitted, balance, q.Quantity)
			reduce(q, q.Quantity-balance, q.CapitalCommitted-capital)
		}
		return clearPending(q)
	}); err != nil {
		return fmt.Errorf("executor: reconcile %s: %w", key, err)
	}
	reopened, err := e.d.Positions.Transition(ctx, key, domain.PositionStatusClosing, domain.PositionStatusOpen)
	if err != nil {
		return fmt.Errorf("executor: reconcile %s: %w", key, err)
	}
	log.InfoContext(ctx, "pending sell landed, position reduced", slog.Uint64("quantity", reopened.Quantity))
	e.emit(ctx, domain.PositionEventSold, reopened, p.PendingSignature, "", 0, nil)
	return nil
}

func clearPending(p *domain.Position) error {
	p.PendingSignature = ""
	return nil
}
