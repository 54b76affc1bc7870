package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// maxSlippageBps is 100% expressed in basis points.
const maxSlippageBps = 10_000

// QuoteService obtains normalized swap quotes from the aggregator and derives
// monitor prices from them.
type QuoteService struct {
	agg         domain.Aggregator
	prices      domain.PriceCache // optional
	timeout     time.Duration
	probeAmount uint64
	probeBps    int
	logger      *slog.Logger
}

// QuoteConfig tunes the quote service.
type QuoteConfig struct {
	Timeout     time.Duration
	ProbeAmount uint64
	SlippageBps int
}

// NewQuoteService creates a QuoteService. prices may be nil.
func NewQuoteService(agg domain.Aggregator, prices domain.PriceCache, cfg QuoteConfig, logger *slog.Logger) *QuoteService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ProbeAmount == 0 {
		cfg.ProbeAmount = 1_000_000
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = 100
	}
	return &QuoteService{
		agg:         agg,
		prices:      prices,
		timeout:     cfg.Timeout,
		probeAmount: cfg.ProbeAmount,
		probeBps:    cfg.SlippageBps,
		logger:      logger.With(slog.String("component", "quote_service")),
	}
}

// Quote asks the aggregator for a single route. It never retries; every
// aggregator failure is reported as domain.ErrQuoteUnavailable.
func (s *QuoteService) Quote(ctx context.Context, inputAsset, outputAsset string, amount uint64, slippageBps int) (domain.Quote, error) {
	if amount == 0 {
		return domain.Quote{}, fmt.Errorf("quote_service: amount must be positive: %w", domain.ErrInvalidArgument)
	}
	if slippageBps < 0 || slippageBps > maxSlippageBps {
		return domain.Quote{}, fmt.Errorf("quote_service: slippage %d bps out of range: %w", slippageBps, domain.ErrInvalidArgument)
	}
	if inputAsset == "" || outputAsset == "" || inputAsset == outputAsset {
		return domain.Quote{}, fmt.Errorf("quote_service: bad asset pair %q/%q: %w", inputAsset, outputAsset, domain.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, err := s.agg.Quote(ctx, inputAsset, outputAsset, amount, slippageBps)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote_service: %s->%s: %w", inputAsset, outputAsset, ensureQuoteErr(err))
	}
	if q.OutputAmount == 0 {
		return domain.Quote{}, fmt.Errorf("quote_service: %s->%s: zero output: %w", inputAsset, outputAsset, domain.ErrQuoteUnavailable)
	}
	return q, nil
}

// Probe quotes a fixed amount of asset back to SOL and returns the price in
// lamports per raw asset unit, the same unit as Position.EntryPrice.
func (s *QuoteService) Probe(ctx context.Context, asset string) (float64, error) {
	q, err := s.Quote(ctx, asset, domain.SOLMint, s.probeAmount, s.probeBps)
	if err != nil {
		return 0, err
	}
	price := q.Price()

	if s.prices != nil {
		if cacheErr := s.prices.SetPrice(ctx, asset, price, time.Now().UTC()); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache probe price failed",
				slog.String("asset", asset),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return price, nil
}

// LastPrice returns the most recent cached probe price for asset.
func (s *QuoteService) LastPrice(ctx context.Context, asset string) (float64, time.Time, error) {
	if s.prices == nil {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, ts, err := s.prices.GetPrice(ctx, asset)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("quote_service: last price for %q: %w", asset, err)
	}
	return price, ts, nil
}

func ensureQuoteErr(err error) error {
	if errors.Is(err, domain.ErrQuoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrQuoteUnavailable, err)
}
