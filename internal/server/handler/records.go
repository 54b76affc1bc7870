package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// FillLister lists recorded swap fills.
type FillLister interface {
	ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.TradeFill, error)
}

// AuditLister lists audit log entries.
type AuditLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// RecordsHandler serves the durable trade and audit records. Both sources
// are nil without postgres.
type RecordsHandler struct {
	fills   FillLister
	audit   AuditLister
	wallets WalletInfoSource
	logger  *slog.Logger
}

// NewRecordsHandler creates a RecordsHandler. fills and audit may be nil.
func NewRecordsHandler(fills FillLister, audit AuditLister, wallets WalletInfoSource, logger *slog.Logger) *RecordsHandler {
	return &RecordsHandler{
		fills:   fills,
		audit:   audit,
		wallets: wallets,
		logger:  logHandler(logger, "records"),
	}
}

type fillView struct {
	ID           int64     `json:"id"`
	PositionID   string    `json:"positionId"`
	Side         string    `json:"side"`
	Owner        string    `json:"owner"`
	TokenMint    string    `json:"tokenMint"`
	InputAmount  uint64    `json:"inputAmount"`
	OutputAmount uint64    `json:"outputAmount"`
	ProfitSOL    string    `json:"profitSol,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Signature    string    `json:"signature"`
	ExecutedAt   time.Time `json:"executedAt"`
}

// ListTrades returns the fills of a wallet, newest first.
// GET /api/trades?owner=...&limit=50&offset=0
func (h *RecordsHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.fills == nil {
		writeError(w, http.StatusNotImplemented, "trade history requires postgres")
		return
	}
	owner, ok := resolveOwner(r, h.wallets)
	if !ok {
		writeError(w, http.StatusBadRequest, "Wallet not connected")
		return
	}

	fills, err := h.fills.ListByOwner(r.Context(), owner, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	views := make([]fillView, 0, len(fills))
	for _, f := range fills {
		v := fillView{
			ID:           f.ID,
			PositionID:   f.PositionID,
			Side:         string(f.Side),
			Owner:        f.Owner,
			TokenMint:    f.Asset,
			InputAmount:  f.InputAmount,
			OutputAmount: f.OutputAmount,
			Reason:       string(f.Reason),
			Signature:    f.Signature,
			ExecutedAt:   f.ExecutedAt,
		}
		if f.Side == domain.TradeSideSell {
			v.ProfitSOL = domain.SignedLamportsToSOL(f.Profit).String()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": views})
}

// ListAudit returns audit entries, newest first.
// GET /api/audit?limit=50&since=...
func (h *RecordsHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotImplemented, "audit log requires postgres")
		return
	}

	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":        e.ID,
			"event":     e.Event,
			"detail":    e.Detail,
			"createdAt": e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
