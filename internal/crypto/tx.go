package crypto

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
)

// ParseTransaction decodes a serialized (legacy or v0) transaction and pads
// the signature list to the number of required signers.
func ParseTransaction(raw []byte) (*sol.Transaction, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty transaction")
	}
	tx, err := sol.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 {
		return nil, fmt.Errorf("transaction requires no signers")
	}
	if len(tx.Signatures) > required {
		return nil, fmt.Errorf("transaction carries %d signatures for %d signers", len(tx.Signatures), required)
	}
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, sol.Signature{})
	}
	return tx, nil
}

// signerIndex returns the signature slot that belongs to pubkey.
func signerIndex(tx *sol.Transaction, pubkey sol.PublicKey) (int, error) {
	required := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pubkey) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%s is not a required signer", pubkey)
}
