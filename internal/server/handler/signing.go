package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/crypto"
)

// ClientSignerSource exposes the pending signing requests of a client wallet.
type ClientSignerSource interface {
	ClientSigner() (*crypto.ClientSigner, bool)
}

// SigningHandler is the rendezvous between the engine and a wallet that
// signs on the client.
type SigningHandler struct {
	wallets ClientSignerSource
	logger  *slog.Logger
}

// NewSigningHandler creates a SigningHandler.
func NewSigningHandler(wallets ClientSignerSource, logger *slog.Logger) *SigningHandler {
	return &SigningHandler{wallets: wallets, logger: logHandler(logger, "signing")}
}

// ListRequests returns the unsigned transactions waiting for the wallet.
// GET /api/signing-requests
func (h *SigningHandler) ListRequests(w http.ResponseWriter, _ *http.Request) {
	cs, ok := h.wallets.ClientSigner()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"requests": []crypto.SigningRequest{}})
		return
	}
	reqs := cs.Pending()
	if reqs == nil {
		reqs = []crypto.SigningRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

type completeSigningRequest struct {
	SignedTransaction string `json:"signedTransaction"` // base64
}

// CompleteRequest delivers a signed transaction for a pending request.
// POST /api/signing-requests/{id}
func (h *SigningHandler) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cs, ok := h.wallets.ClientSigner()
	if !ok {
		writeError(w, http.StatusConflict, "connected wallet does not sign on the client")
		return
	}

	var req completeSigningRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	signed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.SignedTransaction))
	if err != nil || len(signed) == 0 {
		writeError(w, http.StatusBadRequest, "signedTransaction must be base64")
		return
	}

	if err := cs.Complete(id, signed); err != nil {
		h.logger.WarnContext(r.Context(), "signing request rejected",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "signature accepted"})
}
