package domain

import (
	"context"
	"encoding/json"
)

// Ledger reads chain state and broadcasts transactions.
type Ledger interface {
	Balance(ctx context.Context, owner string) (uint64, error)
	TokenBalance(ctx context.Context, owner, asset string) (uint64, error)
	LatestCheckpoint(ctx context.Context) (Checkpoint, error)
	Submit(ctx context.Context, signedTx []byte, opts SubmitOptions) (string, error)
	Confirm(ctx context.Context, signature string, cp Checkpoint) error
	SignatureStatus(ctx context.Context, signature string) (SignatureState, error)
}

// Aggregator quotes swaps and builds unsigned swap transactions.
type Aggregator interface {
	Quote(ctx context.Context, inputAsset, outputAsset string, amount uint64, slippageBps int) (Quote, error)
	BuildSwap(ctx context.Context, quote json.RawMessage, userPublicKey string, fee FeeOptions) ([]byte, error)
}

// Signer signs serialized transactions on behalf of one wallet.
type Signer interface {
	PublicKey() string
	Sign(ctx context.Context, unsignedTx []byte) ([]byte, error)
}
