package jupiter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// APIQuote is the subset of the v6 /quote response the bot reads. The full
// payload is kept separately because /swap expects it verbatim.
type APIQuote struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            json.RawMessage `json:"routePlan"`
	ContextSlot          uint64          `json:"contextSlot"`
}

// ToDomainQuote validates the payload and converts it to a domain.Quote.
func (q *APIQuote) ToDomainQuote(raw []byte) (domain.Quote, error) {
	out, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse outAmount %q: %w", q.OutAmount, err)
	}
	if out == 0 {
		return domain.Quote{}, fmt.Errorf("outAmount is zero")
	}
	in, err := strconv.ParseUint(q.InAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse inAmount %q: %w", q.InAmount, err)
	}

	var impact float64
	if q.PriceImpactPct != "" {
		impact, err = strconv.ParseFloat(q.PriceImpactPct, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("parse priceImpactPct %q: %w", q.PriceImpactPct, err)
		}
		if math.IsNaN(impact) || math.IsInf(impact, 0) {
			return domain.Quote{}, fmt.Errorf("priceImpactPct %q is not finite", q.PriceImpactPct)
		}
		// Positive slippage is reported as a negative impact.
		impact = math.Abs(impact)
	}

	return domain.Quote{
		InputAsset:     q.InputMint,
		OutputAsset:    q.OutputMint,
		InputAmount:    in,
		OutputAmount:   out,
		PriceImpactPct: impact,
		SlippageBps:    q.SlippageBps,
		Raw:            json.RawMessage(raw),
	}, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports prioritization  `json:"prioritizationFeeLamports"`
}

type prioritization struct {
	PriorityLevelWithMaxLamports priorityLevel `json:"priorityLevelWithMaxLamports"`
}

type priorityLevel struct {
	MaxLamports   uint64 `json:"maxLamports"`
	PriorityLevel string `json:"priorityLevel"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}
