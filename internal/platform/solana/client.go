// Package solana implements the ledger collaborator on top of the Solana
// JSON-RPC API.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

var _ domain.Ledger = (*Client)(nil)

// rpcAPI is the subset of *rpc.Client the ledger uses.
type rpcAPI interface {
	GetBalance(ctx context.Context, account sol.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountsByOwner(ctx context.Context, account sol.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	GetTokenAccountBalance(ctx context.Context, account sol.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendRawTransactionWithOpts(ctx context.Context, txData []byte, opts rpc.TransactionOpts) (sol.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...sol.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

// Config configures the ledger client.
type Config struct {
	RPCURL      string
	Commitment  string
	ConfirmPoll time.Duration
}

// Client reads balances and broadcasts transactions. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	rpc         rpcAPI
	commitment  rpc.CommitmentType
	confirmPoll time.Duration
	logger      *slog.Logger
}

// New creates a ledger client against cfg.RPCURL.
func New(cfg Config, logger *slog.Logger) *Client {
	return newClient(rpc.New(cfg.RPCURL), cfg, logger)
}

func newClient(api rpcAPI, cfg Config, logger *slog.Logger) *Client {
	commitment := rpc.CommitmentType(cfg.Commitment)
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	poll := cfg.ConfirmPoll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		rpc:         api,
		commitment:  commitment,
		confirmPoll: poll,
		logger:      logger.With(slog.String("component", "solana_ledger")),
	}
}

// Balance returns the owner's SOL balance in lamports.
func (c *Client) Balance(ctx context.Context, owner string) (uint64, error) {
	pk, err := sol.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("solana: balance: %w: owner: %w", domain.ErrInvalidArgument, err)
	}
	out, err := c.rpc.GetBalance(ctx, pk, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("solana: balance: %w", classify(err))
	}
	return out.Value, nil
}

// TokenBalance returns the raw amount held in the owner's first token account
// for asset. An owner without a token account holds zero.
func (c *Client) TokenBalance(ctx context.Context, owner, asset string) (uint64, error) {
	ownerPK, err := sol.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("solana: token balance: %w: owner: %w", domain.ErrInvalidArgument, err)
	}
	mint, err := sol.PublicKeyFromBase58(asset)
	if err != nil {
		return 0, fmt.Errorf("solana: token balance: %w: mint: %w", domain.ErrInvalidArgument, err)
	}

	accounts, err := c.rpc.GetTokenAccountsByOwner(ctx, ownerPK,
		&rpc.GetTokenAccountsConfig{Mint: &mint},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: sol.EncodingBase64},
	)
	if err != nil {
		return 0, fmt.Errorf("solana: token accounts: %w", classify(err))
	}
	if accounts == nil || len(accounts.Value) == 0 {
		return 0, nil
	}

	bal, err := c.rpc.GetTokenAccountBalance(ctx, accounts.Value[0].Pubkey, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("solana: token account balance: %w", classify(err))
	}
	if bal == nil || bal.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(bal.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("solana: parse token amount %q: %w", bal.Value.Amount, err)
	}
	return amount, nil
}

// LatestCheckpoint returns the latest finalized blockhash and its validity window.
func (c *Client) LatestCheckpoint(ctx context.Context) (domain.Checkpoint, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("solana: latest blockhash: %w", classify(err))
	}
	if out == nil || out.Value == nil {
		return domain.Checkpoint{}, fmt.Errorf("solana: latest blockhash: %w: empty result", domain.ErrNetworkUnavailable)
	}
	return domain.Checkpoint{
		ID:               out.Value.Blockhash.String(),
		ValidUntilHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// Submit broadcasts a signed transaction and returns its signature.
func (c *Client) Submit(ctx context.Context, signedTx []byte, opts domain.SubmitOptions) (string, error) {
	maxRetries := opts.MaxRetries
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, signedTx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", classify(err))
	}
	return sig.String(), nil
}

// Confirm polls the signature status until it reaches the configured
// commitment, fails on-chain, or the checkpoint's block height passes.
func (c *Client) Confirm(ctx context.Context, signature string, cp domain.Checkpoint) error {
	sig, err := sol.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("solana: confirm: %w: %w", domain.ErrInvalidArgument, err)
	}

	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	for {
		done, err := c.checkConfirmation(ctx, sig, cp)
		if done {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("solana: confirm %s: %w: %w", signature, domain.ErrConfirmationTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// checkConfirmation performs one polling round. RPC errors are logged and
// treated as "not yet".
func (c *Client) checkConfirmation(ctx context.Context, sig sol.Signature, cp domain.Checkpoint) (bool, error) {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		c.logger.DebugContext(ctx, "signature status poll failed",
			slog.String("signature", sig.String()),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	if statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
		st := statuses.Value[0]
		if st.Err != nil {
			return true, fmt.Errorf("solana: confirm %s: %w: %v", sig, domain.ErrTransactionFailed, st.Err)
		}
		if reached(st.ConfirmationStatus, c.commitment) {
			return true, nil
		}
	}

	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	if err != nil {
		return false, nil
	}
	if cp.ValidUntilHeight > 0 && height > cp.ValidUntilHeight {
		return true, fmt.Errorf("solana: confirm %s: %w: block height %d passed %d",
			sig, domain.ErrConfirmationTimeout, height, cp.ValidUntilHeight)
	}
	return false, nil
}

// SignatureStatus looks a signature up in the ledger history.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (domain.SignatureState, error) {
	sig, err := sol.SignatureFromBase58(signature)
	if err != nil {
		return domain.SignatureUnknown, fmt.Errorf("solana: signature status: %w: %w", domain.ErrInvalidArgument, err)
	}
	statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return domain.SignatureUnknown, fmt.Errorf("solana: signature status: %w", classify(err))
	}
	if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return domain.SignatureUnknown, nil
	}
	st := statuses.Value[0]
	if st.Err != nil {
		return domain.SignatureFailed, nil
	}
	if reached(st.ConfirmationStatus, c.commitment) {
		return domain.SignatureConfirmed, nil
	}
	return domain.SignatureUnknown, nil
}

// reached reports whether status satisfies the wanted commitment level.
func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return want == rpc.CommitmentProcessed
	default:
		return false
	}
}

// classify marks transport failures as retryable. JSON-RPC errors are
// returned by the node itself and are passed through unchanged.
func classify(err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == 429 {
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrNetworkUnavailable, err)
}
