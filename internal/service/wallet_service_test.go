package service

import (
	"context"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

type startRecorder struct{ intervals []time.Duration }

func (s *startRecorder) Start(d time.Duration) { s.intervals = append(s.intervals, d) }

func TestConnectWithPrivateKey(t *testing.T) {
	w := sol.NewWallet()
	starter := &startRecorder{}
	svc := NewWalletService(&fakeLedger{balance: 1_500_000_000}, starter, 0, time.Minute, discardLogger())

	_, err := svc.Current()
	assert.ErrorIs(t, err, domain.ErrNoWallet)

	info, err := svc.ConnectWithPrivateKey(context.Background(), w.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey().String(), info.PublicKey)
	assert.Equal(t, WalletModeHeldKey, info.Mode)
	assert.Equal(t, "1.5", info.SOL)
	assert.Equal(t, []time.Duration{30 * time.Second}, starter.intervals)

	signer, err := svc.SignerFor(w.PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey().String(), signer.PublicKey())

	_, err = svc.SignerFor(sol.NewWallet().PublicKey().String())
	assert.ErrorIs(t, err, domain.ErrNoWallet)

	_, ok := svc.ClientSigner()
	assert.False(t, ok)
}

func TestConnectRejectsBadKeys(t *testing.T) {
	starter := &startRecorder{}
	svc := NewWalletService(&fakeLedger{}, starter, 0, time.Minute, discardLogger())

	_, err := svc.ConnectWithPrivateKey(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.ConnectWithPublicKey(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Empty(t, starter.intervals)
	_, ok := svc.Info()
	assert.False(t, ok)
}

func TestConnectWithPublicKey(t *testing.T) {
	w := sol.NewWallet()
	svc := NewWalletService(&fakeLedger{}, nil, 0, time.Minute, discardLogger())

	info, err := svc.ConnectWithPublicKey(context.Background(), w.PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, WalletModeClient, info.Mode)

	cs, ok := svc.ClientSigner()
	require.True(t, ok)
	assert.Empty(t, cs.Pending())
}

func TestAttachMonitorAfterConstruction(t *testing.T) {
	svc := NewWalletService(&fakeLedger{}, nil, time.Minute, time.Minute, discardLogger())
	starter := &startRecorder{}
	svc.AttachMonitor(starter)

	_, err := svc.ConnectWithPrivateKey(context.Background(), sol.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute}, starter.intervals)
}
