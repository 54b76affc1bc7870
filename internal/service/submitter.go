package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swapbot/internal/crypto"
	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/retry"
)

// SubmitConfig controls the build, broadcast and confirmation of swaps.
type SubmitConfig struct {
	Fee            domain.FeeOptions
	MaxRetries     int
	RetryDelay     time.Duration
	ConfirmTimeout time.Duration
}

// Submitter turns a quote into a confirmed on-chain swap.
type Submitter struct {
	agg    domain.Aggregator
	ledger domain.Ledger
	cfg    SubmitConfig
	policy retry.Policy
	logger *slog.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(agg domain.Aggregator, ledger domain.Ledger, cfg SubmitConfig, logger *slog.Logger) *Submitter {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 90 * time.Second
	}
	return &Submitter{
		agg:    agg,
		ledger: ledger,
		cfg:    cfg,
		policy: retry.Policy{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.RetryDelay,
			MaxBackoff:     8 * cfg.RetryDelay,
			Multiplier:     2,
			Jitter:         true,
		},
		logger: logger.With(slog.String("component", "submitter")),
	}
}

// Execute builds the swap for quote, has signer sign it, broadcasts it and
// waits for confirmation. Once the transaction may be on the wire, any error
// other than a definite node rejection is a *domain.SubmitError carrying its
// signature.
func (s *Submitter) Execute(ctx context.Context, quote domain.Quote, signer domain.Signer) (domain.Submission, error) {
	unsigned, err := s.agg.BuildSwap(ctx, quote.Raw, signer.PublicKey(), s.cfg.Fee)
	if err != nil {
		if !errors.Is(err, domain.ErrBuildFailed) && !errors.Is(err, domain.ErrMalformedPayload) {
			err = fmt.Errorf("%w: %w", domain.ErrBuildFailed, err)
		}
		return domain.Submission{}, fmt.Errorf("submitter: build: %w", err)
	}
	if _, err := crypto.ParseTransaction(unsigned); err != nil {
		return domain.Submission{}, fmt.Errorf("submitter: %w: %w", domain.ErrMalformedPayload, err)
	}

	signed, err := signer.Sign(ctx, unsigned)
	if err != nil {
		if !errors.Is(err, domain.ErrSigningFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
		}
		return domain.Submission{}, fmt.Errorf("submitter: sign: %w", err)
	}
	signedTx, err := crypto.ParseTransaction(signed)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("submitter: signed payload: %w: %w", domain.ErrSigningFailed, err)
	}
	expectedSig := signedTx.Signatures[0].String()

	cp, err := retry.Do(ctx, s.policy, domain.IsRetryable, s.onRetry("checkpoint"),
		func(ctx context.Context) (domain.Checkpoint, error) {
			return s.ledger.LatestCheckpoint(ctx)
		})
	if err != nil {
		return domain.Submission{}, fmt.Errorf("submitter: checkpoint: %w", classify(err))
	}

	opts := domain.SubmitOptions{SkipPreflight: true, MaxRetries: uint(s.cfg.MaxRetries)}
	sig, err := retry.Do(ctx, s.policy, domain.IsRetryable, s.onRetry("submit"),
		func(ctx context.Context) (string, error) {
			return s.ledger.Submit(ctx, signed, opts)
		})
	if err != nil {
		if !domain.IsRetryable(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			// The node answered and refused the transaction.
			return domain.Submission{}, fmt.Errorf("submitter: submit: %w", classify(err))
		}
		// The bytes may have reached a leader before the transport failed.
		return domain.Submission{}, &domain.SubmitError{
			Signature: expectedSig,
			Err:       fmt.Errorf("%w: %w", domain.ErrConfirmationTimeout, err),
		}
	}
	if sig == "" {
		sig = expectedSig
	}

	s.logger.InfoContext(ctx, "transaction sent",
		slog.String("signature", sig),
		slog.String("input", quote.InputAsset),
		slog.String("output", quote.OutputAsset),
		slog.Uint64("amount", quote.InputAmount),
	)

	confirmCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()
	if err := s.ledger.Confirm(confirmCtx, sig, cp); err != nil {
		if !errors.Is(err, domain.ErrTransactionFailed) && !errors.Is(err, domain.ErrConfirmationTimeout) {
			// The transaction is out; without a definite answer it stays ambiguous.
			err = fmt.Errorf("%w: %w", domain.ErrConfirmationTimeout, err)
		}
		return domain.Submission{}, &domain.SubmitError{Signature: sig, Err: err}
	}

	s.logger.InfoContext(ctx, "transaction confirmed", slog.String("signature", sig))
	return domain.Submission{Signature: sig, Checkpoint: cp}, nil
}

func (s *Submitter) onRetry(step string) retry.OnRetry {
	return func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("ledger call failed, retrying",
			slog.String("step", step),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}
}

// classify maps a ledger error that retry gave up on. Transient conditions
// keep their sentinel; anything else is a definite rejection.
func classify(err error) error {
	switch {
	case domain.IsRetryable(err), errors.Is(err, domain.ErrTransactionFailed),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrTransactionFailed, err)
	}
}
