package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

var _ domain.TradeStore = (*TradeStore)(nil)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const fillSelectCols = `id, position_id, side, owner, asset, input_amount,
	output_amount, profit, signature, reason, executed_at`

func scanFillRows(rows pgx.Rows) ([]domain.TradeFill, error) {
	var fills []domain.TradeFill
	for rows.Next() {
		var (
			f       domain.TradeFill
			in, out pgtype.Numeric
			side    string
			reason  string
		)
		if err := rows.Scan(
			&f.ID, &f.PositionID, &side, &f.Owner, &f.Asset, &in,
			&out, &f.Profit, &f.Signature, &reason, &f.ExecutedAt,
		); err != nil {
			return nil, err
		}
		var err error
		if f.InputAmount, err = fromNumeric(in); err != nil {
			return nil, err
		}
		if f.OutputAmount, err = fromNumeric(out); err != nil {
			return nil, err
		}
		f.Side = domain.TradeSide(side)
		f.Reason = domain.ExitReason(reason)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// InsertFill stores one confirmed swap. A signature already recorded is
// skipped, so a fill replayed by reconciliation is harmless.
func (s *TradeStore) InsertFill(ctx context.Context, f domain.TradeFill) error {
	if f.ExecutedAt.IsZero() {
		f.ExecutedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO trade_fills (
			position_id, side, owner, asset, input_amount,
			output_amount, profit, signature, reason, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (signature) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		f.PositionID, string(f.Side), f.Owner, f.Asset, numeric(f.InputAmount),
		numeric(f.OutputAmount), f.Profit, f.Signature, string(f.Reason), f.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.Signature, err)
	}
	return nil
}

// ListByOwner returns an owner's fills, newest first.
func (s *TradeStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.TradeFill, error) {
	query, args := listQuery(
		`SELECT `+fillSelectCols+` FROM trade_fills WHERE owner = $1`,
		"executed_at", []any{owner}, opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by owner: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills by owner: %w", err)
	}
	return fills, nil
}
