package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func swapTx(t *testing.T, payer sol.PublicKey) []byte {
	t.Helper()
	tx, err := sol.NewTransaction(
		[]sol.Instruction{system.NewTransferInstruction(1, payer, sol.NewWallet().PublicKey()).Build()},
		sol.Hash{9},
		sol.TransactionPayer(payer),
	)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

type fakeAggregator struct {
	mu       sync.Mutex
	quote    func(in, out string, amount uint64) (domain.Quote, error)
	swap     []byte
	swapErr  error
	quotes   int
	builds   int
	lastFee  domain.FeeOptions
	lastUser string
}

func (f *fakeAggregator) Quote(_ context.Context, in, out string, amount uint64, bps int) (domain.Quote, error) {
	f.mu.Lock()
	f.quotes++
	f.mu.Unlock()
	if f.quote != nil {
		return f.quote(in, out, amount)
	}
	return domain.Quote{InputAsset: in, OutputAsset: out, InputAmount: amount, OutputAmount: amount, SlippageBps: bps, Raw: json.RawMessage(`{}`)}, nil
}

func (f *fakeAggregator) BuildSwap(_ context.Context, _ json.RawMessage, user string, fee domain.FeeOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	f.lastFee = fee
	f.lastUser = user
	return f.swap, f.swapErr
}

type fakeLedger struct {
	mu          sync.Mutex
	balance     uint64
	checkpoint  []error
	submit      []error
	confirmErr  error
	statuses    map[string]domain.SignatureState
	submits     int
	checkpoints int
	lastOpts    domain.SubmitOptions
}

func (f *fakeLedger) Balance(context.Context, string) (uint64, error) { return f.balance, nil }

func (f *fakeLedger) TokenBalance(context.Context, string, string) (uint64, error) { return 0, nil }

func (f *fakeLedger) LatestCheckpoint(context.Context) (domain.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints++
	if len(f.checkpoint) > 0 {
		err := f.checkpoint[0]
		f.checkpoint = f.checkpoint[1:]
		if err != nil {
			return domain.Checkpoint{}, err
		}
	}
	return domain.Checkpoint{ID: "hash", ValidUntilHeight: 100}, nil
}

func (f *fakeLedger) Submit(_ context.Context, _ []byte, opts domain.SubmitOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.lastOpts = opts
	if len(f.submit) > 0 {
		err := f.submit[0]
		f.submit = f.submit[1:]
		if err != nil {
			return "", err
		}
	}
	return "sig-1", nil
}

func (f *fakeLedger) Confirm(context.Context, string, domain.Checkpoint) error { return f.confirmErr }

func (f *fakeLedger) SignatureStatus(_ context.Context, sig string) (domain.SignatureState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[sig]; ok {
		return s, nil
	}
	return domain.SignatureUnknown, nil
}

type fakeCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (c *fakeCache) SetPrice(_ context.Context, asset string, price float64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prices == nil {
		c.prices = map[string]float64{}
	}
	c.prices[asset] = price
	return nil
}

func (c *fakeCache) GetPrice(_ context.Context, asset string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[asset]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now(), nil
}

func (c *fakeCache) GetPrices(ctx context.Context, assets []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, a := range assets {
		if p, _, err := c.GetPrice(ctx, a); err == nil {
			out[a] = p
		}
	}
	return out, nil
}
