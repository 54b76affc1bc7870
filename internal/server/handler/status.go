package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/service"
)

// OpenPositionLister counts the positions under monitoring.
type OpenPositionLister interface {
	ListOpen(ctx context.Context) ([]domain.Position, error)
}

// MonitorStatusSource reports the TP/SL loop state.
type MonitorStatusSource interface {
	Status() service.MonitorStatus
}

// StatusHandler serves a runtime snapshot for dashboards.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	wallets   WalletInfoSource
	monitor   MonitorStatusSource
	positions OpenPositionLister
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, wallets WalletInfoSource, monitor MonitorStatusSource, positions OpenPositionLister) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		wallets:   wallets,
		monitor:   monitor,
		positions: positions,
	}
}

// GetStatus responds with mode, uptime, wallet, monitor and position counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"monitor":        h.monitor.Status(),
	}
	if info, ok := h.wallets.Info(); ok {
		resp["wallet"] = info
	}
	if open, err := h.positions.ListOpen(r.Context()); err == nil {
		resp["open_positions"] = len(open)
	}
	writeJSON(w, http.StatusOK, resp)
}
