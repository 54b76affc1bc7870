package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore owns every active position. All mutations go through
// status compare-and-swap so concurrent callers cannot both act on one record.
type PositionStore interface {
	Open(ctx context.Context, pos Position) error
	Transition(ctx context.Context, key PositionKey, from, to PositionStatus) (Position, error)
	Update(ctx context.Context, key PositionKey, status PositionStatus, mutate func(*Position) error) (Position, error)
	Get(ctx context.Context, key PositionKey) (Position, error)
	Remove(ctx context.Context, key PositionKey) error
	ListOpen(ctx context.Context) ([]Position, error)
	List(ctx context.Context, owner string) ([]Position, error)
	ListByStatus(ctx context.Context, status PositionStatus) ([]Position, error)
}

// PositionHistoryStore persists fully closed positions.
type PositionHistoryStore interface {
	SaveClosed(ctx context.Context, pos ClosedPosition) error
	ListClosed(ctx context.Context, owner string, opts ListOpts) ([]ClosedPosition, error)
	ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]ClosedPosition, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeStore persists confirmed swap fills.
type TradeStore interface {
	InsertFill(ctx context.Context, fill TradeFill) error
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]TradeFill, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
