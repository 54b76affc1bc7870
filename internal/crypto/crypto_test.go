package crypto

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// unsignedTransfer builds a serialized one-signer transaction paid by payer.
func unsignedTransfer(t *testing.T, payer sol.PublicKey) []byte {
	t.Helper()
	to := sol.NewWallet().PublicKey()
	tx, err := sol.NewTransaction(
		[]sol.Instruction{system.NewTransferInstruction(1000, payer, to).Build()},
		sol.Hash{1, 2, 3},
		sol.TransactionPayer(payer),
	)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestEncryptDecryptKey(t *testing.T) {
	w := sol.NewWallet()
	blob, err := EncryptKey(w.PrivateKey.String(), "hunter2")
	require.NoError(t, err)

	key, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), key.PublicKey())

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey("not-a-key", "pw")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	w := sol.NewWallet()

	key, err := LoadKey(KeyConfig{RawPrivateKey: w.PrivateKey.String()})
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), key.PublicKey())

	blob, err := EncryptKey(w.PrivateKey.String(), "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	key, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), key.PublicKey())

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestHeldKeySigner(t *testing.T) {
	w := sol.NewWallet()
	s := NewHeldKeySigner(w.PrivateKey)
	assert.Equal(t, w.PublicKey().String(), s.PublicKey())

	signed, err := s.Sign(t.Context(), unsignedTransfer(t, w.PublicKey()))
	require.NoError(t, err)

	tx, err := ParseTransaction(signed)
	require.NoError(t, err)
	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, tx.Signatures[0].Verify(w.PublicKey(), msg))
}

func TestHeldKeySignerRejectsForeignTransaction(t *testing.T) {
	s := NewHeldKeySigner(sol.NewWallet().PrivateKey)
	_, err := s.Sign(t.Context(), unsignedTransfer(t, sol.NewWallet().PublicKey()))
	assert.ErrorIs(t, err, domain.ErrSigningFailed)

	_, err = s.Sign(t.Context(), []byte{0xff})
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
}

func TestClientSignerRoundTrip(t *testing.T) {
	w := sol.NewWallet()
	cs, err := NewClientSigner(w.PublicKey().String(), time.Second)
	require.NoError(t, err)

	unsigned := unsignedTransfer(t, w.PublicKey())

	var (
		wg     sync.WaitGroup
		signed []byte
		sigErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		signed, sigErr = cs.Sign(t.Context(), unsigned)
	}()

	var reqs []SigningRequest
	require.Eventually(t, func() bool {
		reqs = cs.Pending()
		return len(reqs) == 1
	}, time.Second, 5*time.Millisecond)

	raw, err := base64.StdEncoding.DecodeString(reqs[0].Transaction)
	require.NoError(t, err)

	// A tampered signature is refused and the request stays open.
	assert.ErrorIs(t, cs.Complete(reqs[0].ID, raw), domain.ErrInvalidArgument)

	walletSigned, err := NewHeldKeySigner(w.PrivateKey).Sign(t.Context(), raw)
	require.NoError(t, err)
	require.NoError(t, cs.Complete(reqs[0].ID, walletSigned))

	wg.Wait()
	require.NoError(t, sigErr)
	assert.Equal(t, walletSigned, signed)
	assert.Empty(t, cs.Pending())
	assert.ErrorIs(t, cs.Complete(reqs[0].ID, walletSigned), domain.ErrNotFound)
}

func TestClientSignerTimeout(t *testing.T) {
	w := sol.NewWallet()
	cs, err := NewClientSigner(w.PublicKey().String(), 20*time.Millisecond)
	require.NoError(t, err)

	_, err = cs.Sign(t.Context(), unsignedTransfer(t, w.PublicKey()))
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
	assert.Empty(t, cs.Pending())
}
