package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

type fakeRPC struct {
	balance      uint64
	tokenAccts   []*rpc.TokenAccount
	tokenAmount  string
	blockhash    sol.Hash
	lastValid    uint64
	sendErr      error
	sentOpts     rpc.TransactionOpts
	sig          sol.Signature
	statuses     []*rpc.SignatureStatusesResult
	statusErr    error
	height       uint64
	statusCalls  int
	heightPerHit uint64
}

func (f *fakeRPC) GetBalance(context.Context, sol.PublicKey, rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: f.balance}, nil
}

func (f *fakeRPC) GetTokenAccountsByOwner(_ context.Context, _ sol.PublicKey, conf *rpc.GetTokenAccountsConfig, _ *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	if conf == nil || conf.Mint == nil {
		return nil, errors.New("mint filter required")
	}
	return &rpc.GetTokenAccountsResult{Value: f.tokenAccts}, nil
}

func (f *fakeRPC) GetTokenAccountBalance(context.Context, sol.PublicKey, rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: f.tokenAmount}}, nil
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{
		Blockhash:            f.blockhash,
		LastValidBlockHeight: f.lastValid,
	}}, nil
}

func (f *fakeRPC) SendRawTransactionWithOpts(_ context.Context, _ []byte, opts rpc.TransactionOpts) (sol.Signature, error) {
	f.sentOpts = opts
	return f.sig, f.sendErr
}

func (f *fakeRPC) GetSignatureStatuses(context.Context, bool, ...sol.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &rpc.GetSignatureStatusesResult{Value: f.statuses}, nil
}

func (f *fakeRPC) GetBlockHeight(context.Context, rpc.CommitmentType) (uint64, error) {
	f.height += f.heightPerHit
	return f.height, nil
}

func newTestLedger(f *fakeRPC) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newClient(f, Config{Commitment: "confirmed", ConfirmPoll: time.Millisecond}, logger)
}

func TestBalanceAndTokenBalance(t *testing.T) {
	owner := sol.NewWallet().PublicKey().String()
	mint := sol.NewWallet().PublicKey()
	f := &fakeRPC{
		balance:     5_000_000_000,
		tokenAccts:  []*rpc.TokenAccount{{Pubkey: mint}},
		tokenAmount: "123456",
	}
	l := newTestLedger(f)

	bal, err := l.Balance(t.Context(), owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000), bal)

	tok, err := l.TokenBalance(t.Context(), owner, mint.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), tok)

	f.tokenAccts = nil
	tok, err = l.TokenBalance(t.Context(), owner, mint.String())
	require.NoError(t, err)
	assert.Zero(t, tok)

	_, err = l.Balance(t.Context(), "not-base58-!")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSubmitPassesOptions(t *testing.T) {
	f := &fakeRPC{sig: sol.Signature{1, 2, 3}}
	l := newTestLedger(f)

	sig, err := l.Submit(t.Context(), []byte{1}, domain.SubmitOptions{SkipPreflight: true, MaxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, f.sig.String(), sig)
	assert.True(t, f.sentOpts.SkipPreflight)
	require.NotNil(t, f.sentOpts.MaxRetries)
	assert.Equal(t, uint(3), *f.sentOpts.MaxRetries)
}

func TestSubmitClassifiesErrors(t *testing.T) {
	f := &fakeRPC{sendErr: errors.New("dial tcp: connection refused")}
	l := newTestLedger(f)
	_, err := l.Submit(t.Context(), []byte{1}, domain.SubmitOptions{})
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
	assert.True(t, domain.IsRetryable(err))

	f.sendErr = &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}
	_, err = l.Submit(t.Context(), []byte{1}, domain.SubmitOptions{})
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
}

func TestConfirm(t *testing.T) {
	sig := sol.Signature{9}.String()
	cp := domain.Checkpoint{ID: "hash", ValidUntilHeight: 100}

	t.Run("confirmed", func(t *testing.T) {
		f := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}}}
		require.NoError(t, newTestLedger(f).Confirm(t.Context(), sig, cp))
	})

	t.Run("failed on chain", func(t *testing.T) {
		f := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{{Err: map[string]any{"InstructionError": []any{0, "Custom"}}}}}
		err := newTestLedger(f).Confirm(t.Context(), sig, cp)
		assert.ErrorIs(t, err, domain.ErrTransactionFailed)
	})

	t.Run("block height expired", func(t *testing.T) {
		f := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{nil}, height: 90, heightPerHit: 5}
		err := newTestLedger(f).Confirm(t.Context(), sig, cp)
		assert.ErrorIs(t, err, domain.ErrConfirmationTimeout)
	})

	t.Run("context deadline", func(t *testing.T) {
		f := &fakeRPC{statusErr: errors.New("timeout")}
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		err := newTestLedger(f).Confirm(ctx, sig, cp)
		assert.ErrorIs(t, err, domain.ErrConfirmationTimeout)
		assert.Greater(t, f.statusCalls, 1)
	})
}

func TestSignatureStatus(t *testing.T) {
	sig := sol.Signature{7}.String()
	f := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{nil}}
	l := newTestLedger(f)

	st, err := l.SignatureStatus(t.Context(), sig)
	require.NoError(t, err)
	assert.Equal(t, domain.SignatureUnknown, st)

	f.statuses = []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusFinalized}}
	st, err = l.SignatureStatus(t.Context(), sig)
	require.NoError(t, err)
	assert.Equal(t, domain.SignatureConfirmed, st)

	f.statuses = []*rpc.SignatureStatusesResult{{Err: "boom"}}
	st, err = l.SignatureStatus(t.Context(), sig)
	require.NoError(t, err)
	assert.Equal(t, domain.SignatureFailed, st)
}
