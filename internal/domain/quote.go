package domain

import "encoding/json"

// SOLMint is the wrapped SOL mint used as the base asset of every trade.
const SOLMint = "So11111111111111111111111111111111111111112"

// LamportsPerSOL converts between SOL and lamports.
const LamportsPerSOL = 1_000_000_000

// Quote is a normalized aggregator quote. Raw keeps the verbatim payload
// because the swap builder requires it unmodified.
type Quote struct {
	InputAsset     string
	OutputAsset    string
	InputAmount    uint64
	OutputAmount   uint64
	PriceImpactPct float64
	SlippageBps    int
	Raw            json.RawMessage
}

// Price returns output units per input unit.
func (q Quote) Price() float64 {
	if q.InputAmount == 0 {
		return 0
	}
	return float64(q.OutputAmount) / float64(q.InputAmount)
}

// FeeOptions controls the priority fee requested from the swap builder.
type FeeOptions struct {
	MaxLamports   uint64
	PriorityLevel string
}

// Checkpoint is a recent blockhash and the last block height at which a
// transaction referencing it can still land.
type Checkpoint struct {
	ID               string
	ValidUntilHeight uint64
}

// SubmitOptions controls how the ledger broadcasts a transaction.
type SubmitOptions struct {
	SkipPreflight bool
	MaxRetries    uint
}

// Submission is the result of a transaction accepted for confirmation.
type Submission struct {
	Signature  string
	Checkpoint Checkpoint
}

// SignatureState is the ledger's view of a previously submitted transaction.
type SignatureState string

const (
	SignatureUnknown   SignatureState = "unknown"
	SignatureConfirmed SignatureState = "confirmed"
	SignatureFailed    SignatureState = "failed"
)
