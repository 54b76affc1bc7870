package service

import (
	"context"
	"errors"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/crypto"
	"github.com/alanyoungcy/swapbot/internal/domain"
)

func newTestSubmitter(agg *fakeAggregator, ledger *fakeLedger) *Submitter {
	return NewSubmitter(agg, ledger, SubmitConfig{
		Fee:            domain.FeeOptions{MaxLamports: 10_000_000, PriorityLevel: "veryHigh"},
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
		ConfirmTimeout: time.Second,
	}, discardLogger())
}

func TestSubmitterExecute(t *testing.T) {
	w := sol.NewWallet()
	signer := crypto.NewHeldKeySigner(w.PrivateKey)
	agg := &fakeAggregator{swap: swapTx(t, w.PublicKey())}
	ledger := &fakeLedger{}

	sub, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{Raw: []byte(`{}`)}, signer)
	require.NoError(t, err)
	assert.Equal(t, "sig-1", sub.Signature)
	assert.Equal(t, uint64(100), sub.Checkpoint.ValidUntilHeight)
	assert.Equal(t, w.PublicKey().String(), agg.lastUser)
	assert.Equal(t, "veryHigh", agg.lastFee.PriorityLevel)
	assert.True(t, ledger.lastOpts.SkipPreflight)
	assert.Equal(t, uint(2), ledger.lastOpts.MaxRetries)
}

func TestSubmitterPreBroadcastFailures(t *testing.T) {
	w := sol.NewWallet()
	signer := crypto.NewHeldKeySigner(w.PrivateKey)

	t.Run("build", func(t *testing.T) {
		agg := &fakeAggregator{swapErr: errors.New("502")}
		ledger := &fakeLedger{}
		_, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{}, signer)
		assert.ErrorIs(t, err, domain.ErrBuildFailed)
		assert.Zero(t, ledger.submits)
	})

	t.Run("malformed", func(t *testing.T) {
		agg := &fakeAggregator{swap: []byte{1, 2, 3}}
		ledger := &fakeLedger{}
		_, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{}, signer)
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
		assert.Zero(t, ledger.submits)
	})

	t.Run("foreign signer", func(t *testing.T) {
		agg := &fakeAggregator{swap: swapTx(t, sol.NewWallet().PublicKey())}
		ledger := &fakeLedger{}
		_, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{}, signer)
		assert.ErrorIs(t, err, domain.ErrSigningFailed)
		assert.Zero(t, ledger.submits)
	})

	t.Run("checkpoint exhausted", func(t *testing.T) {
		agg := &fakeAggregator{swap: swapTx(t, w.PublicKey())}
		down := domain.ErrNetworkUnavailable
		ledger := &fakeLedger{checkpoint: []error{down, down, down}}
		_, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{}, signer)
		assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
		assert.Equal(t, 3, ledger.checkpoints)
		assert.Zero(t, ledger.submits)
	})
}

func TestSubmitterRetriesTransientSubmit(t *testing.T) {
	w := sol.NewWallet()
	agg := &fakeAggregator{swap: swapTx(t, w.PublicKey())}
	ledger := &fakeLedger{submit: []error{domain.ErrNetworkUnavailable, domain.ErrRateLimited}}

	sub, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{}, crypto.NewHeldKeySigner(w.PrivateKey))
	require.NoError(t, err)
	assert.Equal(t, "sig-1", sub.Signature)
	assert.Equal(t, 3, ledger.submits)
}

func TestSubmitterSubmitExhausted(t *testing.T) {
	w := sol.NewWallet()
	signer := crypto.NewHeldKeySigner(w.PrivateKey)
	unsigned := swapTx(t, w.PublicKey())
	agg := &fakeAggregator{swap: unsigned}
	down := domain.ErrNetworkUnavailable
	ledger := &fakeLedger{submit: []error{down, down, down}}

	_, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{}, signer)
	require.Error(t, err)
	assert.Equal(t, 3, ledger.submits)

	// Every attempt may have reached the network, so the outcome stays open
	// and the signature is kept for reconciliation.
	signed, err2 := signer.Sign(context.Background(), unsigned)
	require.NoError(t, err2)
	tx, err2 := crypto.ParseTransaction(signed)
	require.NoError(t, err2)
	assert.Equal(t, tx.Signatures[0].String(), domain.SignatureOf(err))
	assert.True(t, domain.IsAmbiguous(err))
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
}

func TestSubmitterSubmitRejected(t *testing.T) {
	w := sol.NewWallet()
	agg := &fakeAggregator{swap: swapTx(t, w.PublicKey())}
	ledger := &fakeLedger{submit: []error{errors.New("rpc error -32002: blockhash not found")}}

	_, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{}, crypto.NewHeldKeySigner(w.PrivateKey))
	require.Error(t, err)
	assert.Equal(t, 1, ledger.submits)
	assert.ErrorIs(t, err, domain.ErrTransactionFailed)
	assert.NotErrorIs(t, err, domain.ErrNetworkUnavailable)
	assert.False(t, domain.IsAmbiguous(err))
	assert.Empty(t, domain.SignatureOf(err))
}

func TestSubmitterConfirmOutcomes(t *testing.T) {
	w := sol.NewWallet()
	signer := crypto.NewHeldKeySigner(w.PrivateKey)

	cases := []struct {
		name      string
		err       error
		want      error
		ambiguous bool
	}{
		{"failed", domain.ErrTransactionFailed, domain.ErrTransactionFailed, false},
		{"expired", domain.ErrConfirmationTimeout, domain.ErrConfirmationTimeout, true},
		{"rpc down", errors.New("connection reset"), domain.ErrConfirmationTimeout, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := &fakeAggregator{swap: swapTx(t, w.PublicKey())}
			ledger := &fakeLedger{confirmErr: tc.err}
			_, err := newTestSubmitter(agg, ledger).Execute(context.Background(), domain.Quote{}, signer)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, "sig-1", domain.SignatureOf(err))
			assert.Equal(t, tc.ambiguous, domain.IsAmbiguous(err))
		})
	}
}
