package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrLockHeld        = errors.New("lock already held")
	ErrNoWallet        = errors.New("wallet not connected")

	// Engine taxonomy.
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrBuildFailed         = errors.New("swap build failed")
	ErrMalformedPayload    = errors.New("malformed transaction payload")
	ErrSigningFailed       = errors.New("signing failed")
	ErrNetworkUnavailable  = errors.New("network unavailable")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrTransactionFailed   = errors.New("transaction failed on-chain")
	ErrPositionExists      = errors.New("position exists")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrZeroBalance         = errors.New("zero token balance")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrShuttingDown        = errors.New("shutting down")
)

// Trade failure reasons carried by TradeError.
const (
	ReasonInvalidAmount     = "invalid_amount"
	ReasonInvalidPercentage = "invalid_percentage"
	ReasonQuote             = "quote"
	ReasonDuplicatePosition = "duplicate_position"
	ReasonSubmit            = "submit"
	ReasonBalance           = "balance"
	ReasonNotOpen           = "not_open"
	ReasonLocked            = "locked"
	ReasonNoWallet          = "no_wallet"
	ReasonShuttingDown      = "shutting_down"
)

// TradeError is the structured failure the executor surfaces to callers.
type TradeError struct {
	Reason string
	Err    error
}

func (e *TradeError) Error() string {
	if e.Err == nil {
		return "trade failed: " + e.Reason
	}
	return fmt.Sprintf("trade failed: %s: %v", e.Reason, e.Err)
}

func (e *TradeError) Unwrap() error { return e.Err }

// NewTradeError wraps err with a failure reason.
func NewTradeError(reason string, err error) *TradeError {
	return &TradeError{Reason: reason, Err: err}
}

// SubmitError carries the signature of a transaction whose outcome is
// unknown or failed after broadcast, so the caller can reconcile it.
type SubmitError struct {
	Signature string
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Signature, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// SignatureOf returns the broadcast signature attached to err, if any.
func SignatureOf(err error) string {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Signature
	}
	return ""
}

// IsRetryable reports whether err is a transient network condition.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrRateLimited)
}

// IsAmbiguous reports whether the on-chain outcome of a submission is unknown.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrConfirmationTimeout)
}
