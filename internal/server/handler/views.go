package handler

import (
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// positionView is the wire shape of a position. Amounts are raw integers;
// the SOL figures are for display only.
type positionView struct {
	ID               string    `json:"id"`
	Owner            string    `json:"owner"`
	TokenMint        string    `json:"tokenMint"`
	Status           string    `json:"status"`
	EntryPrice       float64   `json:"entryPrice"`
	Quantity         uint64    `json:"quantity"`
	CapitalCommitted uint64    `json:"capitalCommitted"`
	CapitalSOL       string    `json:"capitalSol"`
	RealizedProfit   int64     `json:"realizedProfit,omitempty"`
	TakeProfit       *float64  `json:"takeProfit,omitempty"`
	StopLoss         *float64  `json:"stopLoss,omitempty"`
	LastSignature    string    `json:"lastSignature,omitempty"`
	PendingSignature string    `json:"pendingSignature,omitempty"`
	AcquiredAt       time.Time `json:"acquiredAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func newPositionView(p domain.Position) positionView {
	return positionView{
		ID:               p.ID,
		Owner:            p.Owner,
		TokenMint:        p.Asset,
		Status:           string(p.Status),
		EntryPrice:       p.EntryPrice,
		Quantity:         p.Quantity,
		CapitalCommitted: p.CapitalCommitted,
		CapitalSOL:       domain.LamportsToSOL(p.CapitalCommitted).String(),
		RealizedProfit:   p.RealizedProfit,
		TakeProfit:       p.TakeProfitPct,
		StopLoss:         p.StopLossPct,
		LastSignature:    p.LastSignature,
		PendingSignature: p.PendingSignature,
		AcquiredAt:       p.AcquiredAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

type closedPositionView struct {
	positionView
	ExitSignature string    `json:"exitSignature"`
	ExitReason    string    `json:"exitReason"`
	Proceeds      uint64    `json:"proceeds"`
	ProfitSOL     string    `json:"profitSol"`
	ClosedAt      time.Time `json:"closedAt"`
}

func newClosedPositionView(cp domain.ClosedPosition) closedPositionView {
	return closedPositionView{
		positionView:  newPositionView(cp.Position),
		ExitSignature: cp.ExitSignature,
		ExitReason:    string(cp.ExitReason),
		Proceeds:      cp.Proceeds,
		ProfitSOL:     domain.SignedLamportsToSOL(cp.RealizedProfit).String(),
		ClosedAt:      cp.ClosedAt,
	}
}
