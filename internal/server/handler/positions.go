package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// PositionLister lists active positions.
type PositionLister interface {
	List(ctx context.Context, owner string) ([]domain.Position, error)
}

// HistoryLister lists archived closed positions.
type HistoryLister interface {
	ListClosed(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.ClosedPosition, error)
}

// PositionHandler serves active and closed positions.
type PositionHandler struct {
	positions PositionLister
	history   HistoryLister // nil without postgres
	wallets   WalletInfoSource
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler. history may be nil.
func NewPositionHandler(positions PositionLister, history HistoryLister, wallets WalletInfoSource, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		history:   history,
		wallets:   wallets,
		logger:    logHandler(logger, "positions"),
	}
}

// resolveOwner prefers ?owner= and falls back to the connected wallet.
func resolveOwner(r *http.Request, wallets WalletInfoSource) (string, bool) {
	if owner := strings.TrimSpace(r.URL.Query().Get("owner")); owner != "" {
		return owner, true
	}
	info, ok := wallets.Info()
	return info.PublicKey, ok
}

// ListPositions returns the active positions of a wallet.
// GET /api/positions?owner=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner, ok := resolveOwner(r, h.wallets)
	if !ok {
		writeError(w, http.StatusBadRequest, "Wallet not connected")
		return
	}

	positions, err := h.positions.List(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, newPositionView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": views})
}

// ListHistory returns closed positions, most recent first.
// GET /api/positions/history?owner=...&limit=50&offset=0&since=...
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "position history requires postgres")
		return
	}
	owner, ok := resolveOwner(r, h.wallets)
	if !ok {
		writeError(w, http.StatusBadRequest, "Wallet not connected")
		return
	}

	closed, err := h.history.ListClosed(r.Context(), owner, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list position history")
		return
	}

	views := make([]closedPositionView, 0, len(closed))
	for _, cp := range closed {
		views = append(views, newClosedPositionView(cp))
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": views})
}
