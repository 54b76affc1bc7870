package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/executor"
	"github.com/alanyoungcy/swapbot/internal/service"
)

// IdempotencyHeader lets a client retry a trade request without trading twice.
const IdempotencyHeader = "Idempotency-Key"

// TradeService is what the trade endpoints need from the executor.
type TradeService interface {
	Buy(ctx context.Context, owner, asset string, baseAmount uint64, opts executor.BuyOptions) (executor.BuyResult, error)
	Sell(ctx context.Context, owner, asset string, percentage float64, opts executor.SellOptions) (executor.SellResult, error)
	CheckIdempotency(key string) error
}

// WalletInfoSource reports the connected wallet.
type WalletInfoSource interface {
	Info() (service.WalletInfo, bool)
}

// TradeHandler serves buy and sell requests for the connected wallet.
type TradeHandler struct {
	trades  TradeService
	wallets WalletInfoSource
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, wallets WalletInfoSource, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, wallets: wallets, logger: logHandler(logger, "trade")}
}

type buyTokenRequest struct {
	TokenMint  string          `json:"tokenMint"`
	SOLAmount  decimal.Decimal `json:"solAmount"`
	TakeProfit *float64        `json:"takeProfit"`
	StopLoss   *float64        `json:"stopLoss"`
	Slippage   int             `json:"slippage"` // basis points
}

type sellTokenRequest struct {
	TokenMint  string  `json:"tokenMint"`
	Percentage float64 `json:"percentage"`
	Slippage   int     `json:"slippage"`
}

type sellTokenResponse struct {
	resultResponse
	Proceeds  uint64 `json:"proceeds"`
	Profit    int64  `json:"profit"`
	ProfitSOL string `json:"profitSol"`
	Closed    bool   `json:"closed"`
}

// owner resolves the trading wallet, writing the error response when none is
// connected.
func (h *TradeHandler) owner(w http.ResponseWriter) (string, bool) {
	info, ok := h.wallets.Info()
	if !ok {
		writeFailure(w, domain.NewTradeError(domain.ReasonNoWallet, domain.ErrNoWallet))
		return "", false
	}
	return info.PublicKey, true
}

func (h *TradeHandler) idempotent(w http.ResponseWriter, r *http.Request) bool {
	if err := h.trades.CheckIdempotency(r.Header.Get(IdempotencyHeader)); err != nil {
		writeFailure(w, err)
		return false
	}
	return true
}

// BuyToken swaps solAmount SOL into tokenMint and opens a position.
// POST /api/buy-token
func (h *TradeHandler) BuyToken(w http.ResponseWriter, r *http.Request) {
	var req buyTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mint := strings.TrimSpace(req.TokenMint)
	if mint == "" {
		writeError(w, http.StatusBadRequest, "tokenMint is required")
		return
	}
	lamports, err := domain.SOLToLamports(req.SOLAmount)
	if err != nil {
		writeFailure(w, domain.NewTradeError(domain.ReasonInvalidAmount, err))
		return
	}
	owner, ok := h.owner(w)
	if !ok || !h.idempotent(w, r) {
		return
	}

	res, err := h.trades.Buy(r.Context(), owner, mint, lamports, executor.BuyOptions{
		SlippageBps:   req.Slippage,
		TakeProfitPct: req.TakeProfit,
		StopLossPct:   req.StopLoss,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "buy failed",
			slog.String("token_mint", mint),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err)
		return
	}

	view := newPositionView(res.Position)
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Signature: res.Signature, Position: &view})
}

// SellToken sells percentage of the position in tokenMint.
// POST /api/sell-token
func (h *TradeHandler) SellToken(w http.ResponseWriter, r *http.Request) {
	var req sellTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mint := strings.TrimSpace(req.TokenMint)
	if mint == "" {
		writeError(w, http.StatusBadRequest, "tokenMint is required")
		return
	}
	owner, ok := h.owner(w)
	if !ok || !h.idempotent(w, r) {
		return
	}

	res, err := h.trades.Sell(r.Context(), owner, mint, req.Percentage, executor.SellOptions{
		Reason:      domain.ExitReasonManual,
		SlippageBps: req.Slippage,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "sell failed",
			slog.String("token_mint", mint),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err)
		return
	}

	resp := sellTokenResponse{
		resultResponse: resultResponse{Success: true, Signature: res.Signature},
		Proceeds:       res.Proceeds,
		Profit:         res.Profit,
		ProfitSOL:      domain.SignedLamportsToSOL(res.Profit).String(),
		Closed:         res.Closed,
	}
	if res.Position != nil {
		view := newPositionView(*res.Position)
		resp.Position = &view
	}
	writeJSON(w, http.StatusOK, resp)
}
