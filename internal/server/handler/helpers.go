// Package handler implements the HTTP endpoints of the swap engine.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// maxBodyBytes bounds request bodies; a signed transaction is the largest.
const maxBodyBytes = 64 << 10

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends {success:false, error} with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, resultResponse{Success: false, Error: msg})
}

// writeFailure maps a service error to a status code and a result body.
func writeFailure(w http.ResponseWriter, err error) {
	resp := resultResponse{Success: false, Error: err.Error(), Signature: domain.SignatureOf(err)}
	var te *domain.TradeError
	if errors.As(err, &te) {
		resp.Reason = te.Reason
	}
	writeJSON(w, statusFor(err), resp)
}

// resultResponse is the envelope every mutating endpoint answers with.
type resultResponse struct {
	Success   bool          `json:"success"`
	Signature string        `json:"signature,omitempty"`
	Position  *positionView `json:"position,omitempty"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// statusFor picks the HTTP status for an engine error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoWallet),
		errors.Is(err, domain.ErrPositionExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrLockHeld),
		errors.Is(err, domain.ErrZeroBalance):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConfirmationTimeout):
		// Broadcast but unconfirmed; reconciliation settles it.
		return http.StatusAccepted
	case errors.Is(err, domain.ErrQuoteUnavailable),
		errors.Is(err, domain.ErrBuildFailed),
		errors.Is(err, domain.ErrNetworkUnavailable),
		errors.Is(err, domain.ErrTransactionFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrShuttingDown):
		return http.StatusServiceUnavailable
	}

	var te *domain.TradeError
	if errors.As(err, &te) {
		switch te.Reason {
		case domain.ReasonInvalidAmount, domain.ReasonInvalidPercentage:
			return http.StatusBadRequest
		case domain.ReasonNoWallet:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

// parseListOpts extracts pagination and an optional RFC 3339 time window
// from the query string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{Limit: limit, Offset: offset}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		opts.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		opts.Until = &t
	}
	return opts
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
