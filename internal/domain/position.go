package domain

import (
	"fmt"
	"time"
)

// PositionStatus tracks where a position is in its lifecycle.
type PositionStatus string

const (
	PositionStatusPending PositionStatus = "pending"
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosing PositionStatus = "closing"
	PositionStatusClosed  PositionStatus = "closed"
)

// Active reports whether a position with this status occupies its key.
func (s PositionStatus) Active() bool {
	switch s {
	case PositionStatusPending, PositionStatusOpen, PositionStatusClosing:
		return true
	default:
		return false
	}
}

// transitions is the full set of allowed status edges. Nothing skips a state.
var transitions = map[PositionStatus][]PositionStatus{
	PositionStatusPending: {PositionStatusOpen},
	PositionStatusOpen:    {PositionStatusClosing},
	PositionStatusClosing: {PositionStatusClosed, PositionStatusOpen},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to PositionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PositionKey identifies the single active position an owner can hold in an asset.
type PositionKey struct {
	Owner string
	Asset string
}

func (k PositionKey) String() string {
	return k.Owner + ":" + k.Asset
}

// Position represents an open or historical swap position. Amounts are raw
// on-chain units: Quantity in the asset's smallest unit, CapitalCommitted in
// lamports.
type Position struct {
	ID               string
	Owner            string
	Asset            string
	EntryPrice       float64 // lamports per raw asset unit
	Quantity         uint64
	CapitalCommitted uint64
	AcquiredAt       time.Time
	UpdatedAt        time.Time
	TakeProfitPct    *float64
	StopLossPct      *float64
	Status           PositionStatus
	LastSignature    string
	// PendingSignature is set while a submission's outcome is unknown and
	// cleared once it has been reconciled against the ledger.
	PendingSignature string
	RealizedProfit   int64 // lamports from earlier partial sells
}

// Key returns the store key of the position.
func (p Position) Key() PositionKey {
	return PositionKey{Owner: p.Owner, Asset: p.Asset}
}

// Price derives the entry price from capital and quantity. It returns 0 for an
// empty position.
func (p Position) Price() float64 {
	if p.Quantity == 0 {
		return 0
	}
	return float64(p.CapitalCommitted) / float64(p.Quantity)
}

// Validate checks the field-level invariants of a position.
func (p Position) Validate() error {
	if p.Owner == "" || p.Asset == "" {
		return fmt.Errorf("%w: owner and asset are required", ErrInvalidArgument)
	}
	if p.Quantity > 0 {
		want := p.Price()
		diff := p.EntryPrice - want
		if diff < 0 {
			diff = -diff
		}
		if diff > want*1e-9 {
			return fmt.Errorf("%w: entry price %g does not match capital/quantity %g",
				ErrInvalidArgument, p.EntryPrice, want)
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share threshold pointers with the store.
func (p Position) Clone() Position {
	c := p
	if p.TakeProfitPct != nil {
		v := *p.TakeProfitPct
		c.TakeProfitPct = &v
	}
	if p.StopLossPct != nil {
		v := *p.StopLossPct
		c.StopLossPct = &v
	}
	return c
}

// ExitReason records why a position was sold.
type ExitReason string

const (
	ExitReasonManual     ExitReason = "manual"
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonStopLoss   ExitReason = "stop_loss"
)

// ClosedPosition is the archived snapshot of a fully exited position. The
// embedded RealizedProfit covers every sell, including the last.
type ClosedPosition struct {
	Position
	ExitSignature string
	ExitReason    ExitReason
	Proceeds      uint64 // lamports received on the final sell
	ClosedAt      time.Time
}
