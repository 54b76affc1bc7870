package crypto

import (
	"context"
	"fmt"

	sol "github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

var _ domain.Signer = (*HeldKeySigner)(nil)

// HeldKeySigner signs transactions with a private key held in memory.
type HeldKeySigner struct {
	key    sol.PrivateKey
	pubkey sol.PublicKey
}

// NewHeldKeySigner creates a signer for key.
func NewHeldKeySigner(key sol.PrivateKey) *HeldKeySigner {
	return &HeldKeySigner{key: key, pubkey: key.PublicKey()}
}

// PublicKey returns the base58 wallet address.
func (s *HeldKeySigner) PublicKey() string {
	return s.pubkey.String()
}

// Sign places the wallet's signature in its slot of the transaction and
// returns the serialized result.
func (s *HeldKeySigner) Sign(_ context.Context, unsignedTx []byte) ([]byte, error) {
	tx, err := ParseTransaction(unsignedTx)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w: %w", domain.ErrSigningFailed, err)
	}

	idx, err := signerIndex(tx, s.pubkey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w: %w", domain.ErrSigningFailed, err)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w: marshal message: %w", domain.ErrSigningFailed, err)
	}
	sig, err := s.key.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w: %w", domain.ErrSigningFailed, err)
	}
	tx.Signatures[idx] = sig

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w: marshal transaction: %w", domain.ErrSigningFailed, err)
	}
	return out, nil
}
