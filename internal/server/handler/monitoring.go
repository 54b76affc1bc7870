package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/swapbot/internal/service"
)

const (
	defaultMonitorSeconds = 30
	maxMonitorSeconds     = 24 * 60 * 60
)

// MonitorController starts and reports the TP/SL loop.
type MonitorController interface {
	Start(interval time.Duration)
	Status() service.MonitorStatus
}

// MonitoringHandler serves the monitoring controls.
type MonitoringHandler struct {
	monitor MonitorController
	logger  *slog.Logger
}

// NewMonitoringHandler creates a MonitoringHandler.
func NewMonitoringHandler(monitor MonitorController, logger *slog.Logger) *MonitoringHandler {
	return &MonitoringHandler{monitor: monitor, logger: logHandler(logger, "monitoring")}
}

type startMonitoringRequest struct {
	IntervalSeconds int `json:"intervalSeconds"`
}

// StartMonitoring starts the loop, or restarts it at a new interval.
// POST /api/monitoring/start
func (h *MonitoringHandler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	var req startMonitoringRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	secs := req.IntervalSeconds
	if secs == 0 {
		secs = defaultMonitorSeconds
	}
	if secs < 0 || secs > maxMonitorSeconds {
		writeError(w, http.StatusBadRequest, "intervalSeconds must be between 1 and 86400")
		return
	}

	h.monitor.Start(time.Duration(secs) * time.Second)
	h.logger.InfoContext(r.Context(), "monitoring requested", slog.Int("interval_seconds", secs))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"intervalSeconds": secs,
	})
}

// GetMonitoring reports the loop state.
// GET /api/monitoring
func (h *MonitoringHandler) GetMonitoring(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}
