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

var _ domain.PositionHistoryStore = (*PositionHistoryStore)(nil)

// PositionHistoryStore implements domain.PositionHistoryStore using PostgreSQL.
type PositionHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPositionHistoryStore creates a PositionHistoryStore backed by pool.
func NewPositionHistoryStore(pool *pgxpool.Pool) *PositionHistoryStore {
	return &PositionHistoryStore{pool: pool}
}

const closedSelectCols = `id, owner, asset, entry_price, quantity, capital_committed,
	take_profit_pct, stop_loss_pct, acquired_at, exit_signature, exit_reason,
	proceeds, realized_profit, closed_at`

func scanClosedRows(rows pgx.Rows) ([]domain.ClosedPosition, error) {
	var out []domain.ClosedPosition
	for rows.Next() {
		var (
			cp                   domain.ClosedPosition
			qty, capital, procds pgtype.Numeric
			reason               string
		)
		if err := rows.Scan(
			&cp.ID, &cp.Owner, &cp.Asset, &cp.EntryPrice, &qty, &capital,
			&cp.TakeProfitPct, &cp.StopLossPct, &cp.AcquiredAt, &cp.ExitSignature, &reason,
			&procds, &cp.RealizedProfit, &cp.ClosedAt,
		); err != nil {
			return nil, err
		}
		var err error
		if cp.Quantity, err = fromNumeric(qty); err != nil {
			return nil, err
		}
		if cp.CapitalCommitted, err = fromNumeric(capital); err != nil {
			return nil, err
		}
		if cp.Proceeds, err = fromNumeric(procds); err != nil {
			return nil, err
		}
		cp.ExitReason = domain.ExitReason(reason)
		cp.Status = domain.PositionStatusClosed
		cp.LastSignature = cp.ExitSignature
		cp.UpdatedAt = cp.ClosedAt
		out = append(out, cp)
	}
	return out, rows.Err()
}

// SaveClosed inserts or replaces the archived snapshot of a closed position.
func (s *PositionHistoryStore) SaveClosed(ctx context.Context, cp domain.ClosedPosition) error {
	const query = `
		INSERT INTO closed_positions (
			id, owner, asset, entry_price, quantity, capital_committed,
			take_profit_pct, stop_loss_pct, acquired_at, exit_signature, exit_reason,
			proceeds, realized_profit, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			exit_signature  = EXCLUDED.exit_signature,
			exit_reason     = EXCLUDED.exit_reason,
			proceeds        = EXCLUDED.proceeds,
			realized_profit = EXCLUDED.realized_profit,
			closed_at       = EXCLUDED.closed_at`
	_, err := s.pool.Exec(ctx, query,
		cp.ID, cp.Owner, cp.Asset, cp.EntryPrice, numeric(cp.Quantity), numeric(cp.CapitalCommitted),
		cp.TakeProfitPct, cp.StopLossPct, cp.AcquiredAt, cp.ExitSignature, string(cp.ExitReason),
		numeric(cp.Proceeds), cp.RealizedProfit, cp.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save closed position %s: %w", cp.ID, err)
	}
	return nil
}

// ListClosed returns an owner's closed positions, most recently closed first.
// An empty owner lists every wallet.
func (s *PositionHistoryStore) ListClosed(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.ClosedPosition, error) {
	base := `SELECT ` + closedSelectCols + ` FROM closed_positions WHERE 1=1`
	var args []any
	if owner != "" {
		base += ` AND owner = $1`
		args = append(args, owner)
	}
	query, args := listQuery(base, "closed_at", args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	out, err := scanClosedRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return out, nil
}

// ListClosedBefore returns up to limit positions closed before the given
// time, oldest first, for archiving.
func (s *PositionHistoryStore) ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]domain.ClosedPosition, error) {
	query := `SELECT ` + closedSelectCols + ` FROM closed_positions WHERE closed_at < $1 ORDER BY closed_at ASC`
	args := []any{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions before: %w", err)
	}
	defer rows.Close()
	return scanClosedRows(rows)
}

// DeleteClosedBefore deletes positions closed before the given time and
// returns how many were removed.
func (s *PositionHistoryStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM closed_positions WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed positions before: %w", err)
	}
	return tag.RowsAffected(), nil
}
