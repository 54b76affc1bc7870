package domain

import "time"

// TradeSide is the direction of a swap relative to the base asset.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeFill records one confirmed swap.
type TradeFill struct {
	ID           int64
	PositionID   string
	Side         TradeSide
	Owner        string
	Asset        string
	InputAmount  uint64
	OutputAmount uint64
	Profit       int64 // lamports, sells only
	Signature    string
	Reason       ExitReason
	ExecutedAt   time.Time
}
