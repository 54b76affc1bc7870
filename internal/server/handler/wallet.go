package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/service"
)

// WalletConnector is what the wallet endpoints need from the service layer.
type WalletConnector interface {
	ConnectWithPrivateKey(ctx context.Context, privateKey string) (service.WalletInfo, error)
	ConnectWithPublicKey(ctx context.Context, publicKey string) (service.WalletInfo, error)
	Info() (service.WalletInfo, bool)
}

// WalletHandler serves wallet connection.
type WalletHandler struct {
	wallets WalletConnector
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallets WalletConnector, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logHandler(logger, "wallet")}
}

type connectWalletRequest struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

type connectWalletResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Wallet  service.WalletInfo `json:"wallet"`
}

// ConnectWallet installs the trading wallet. A private key signs on the
// server; a bare public key routes every transaction through signing requests.
// POST /api/connect-wallet
func (h *WalletHandler) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req connectWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	privateKey := strings.TrimSpace(req.PrivateKey)
	publicKey := strings.TrimSpace(req.PublicKey)

	var (
		info service.WalletInfo
		err  error
	)
	switch {
	case privateKey != "":
		info, err = h.wallets.ConnectWithPrivateKey(r.Context(), privateKey)
	case publicKey != "":
		info, err = h.wallets.ConnectWithPublicKey(r.Context(), publicKey)
	default:
		writeError(w, http.StatusBadRequest, "privateKey or publicKey is required")
		return
	}
	if err != nil {
		// Never echo the submitted key back.
		h.logger.WarnContext(r.Context(), "connect wallet failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to connect wallet")
		return
	}

	writeJSON(w, http.StatusOK, connectWalletResponse{
		Success: true,
		Message: "Wallet connected successfully",
		Wallet:  info,
	})
}

// GetWallet describes the connected wallet.
// GET /api/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	info, ok := h.wallets.Info()
	if !ok {
		writeError(w, http.StatusNotFound, "wallet not connected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "wallet": info})
}
