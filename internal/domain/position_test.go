package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to PositionStatus
		ok       bool
	}{
		{PositionStatusPending, PositionStatusOpen, true},
		{PositionStatusOpen, PositionStatusClosing, true},
		{PositionStatusClosing, PositionStatusClosed, true},
		{PositionStatusClosing, PositionStatusOpen, true},
		{PositionStatusPending, PositionStatusClosing, false},
		{PositionStatusOpen, PositionStatusClosed, false},
		{PositionStatusClosed, PositionStatusOpen, false},
		{PositionStatusOpen, PositionStatusOpen, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to))
		})
	}
}

func TestPositionValidate(t *testing.T) {
	p := Position{Owner: "o", Asset: "a", Quantity: 400, CapitalCommitted: 100, EntryPrice: 0.25}
	require.NoError(t, p.Validate())

	p.EntryPrice = 4
	assert.ErrorIs(t, p.Validate(), ErrInvalidArgument)

	assert.ErrorIs(t, Position{Asset: "a"}.Validate(), ErrInvalidArgument)
	assert.NoError(t, Position{Owner: "o", Asset: "a", Status: PositionStatusPending}.Validate())
}

func TestPositionClone(t *testing.T) {
	tp := 10.0
	p := Position{TakeProfitPct: &tp}
	c := p.Clone()
	*c.TakeProfitPct = 20
	assert.Equal(t, 10.0, *p.TakeProfitPct)
	assert.Nil(t, c.StopLossPct)
}

func TestTradeErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("executor: buy: %w", NewTradeError(ReasonQuote, ErrQuoteUnavailable))

	var te *TradeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ReasonQuote, te.Reason)
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
}

func TestSubmitErrorSignature(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &SubmitError{Signature: "sig1", Err: ErrConfirmationTimeout})
	assert.Equal(t, "sig1", SignatureOf(err))
	assert.True(t, IsAmbiguous(err))
	assert.False(t, IsRetryable(err))
	assert.Empty(t, SignatureOf(errors.New("plain")))
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", ErrNetworkUnavailable)))
}

func TestAmountConversions(t *testing.T) {
	l, err := SOLToLamports(decimal.RequireFromString("0.1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), l)

	l, err = SOLToLamports(decimal.RequireFromString("0.0000000019"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), l)

	_, err = SOLToLamports(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = SOLToLamports(decimal.RequireFromString("0.0000000001"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, "1.5", LamportsToSOL(1_500_000_000).String())
	assert.Equal(t, "-0.25", SignedLamportsToSOL(-250_000_000).String())
}

func TestPortion(t *testing.T) {
	assert.Equal(t, uint64(500), Portion(1000, 50))
	assert.Equal(t, uint64(333), Portion(1000, 33.3333))
	assert.Equal(t, uint64(1000), Portion(1000, 100))
	assert.Equal(t, uint64(0), Portion(1000, 0))
	assert.Equal(t, uint64(0), Portion(1, 50))
	assert.Equal(t, ^uint64(0)/2, Portion(^uint64(0), 50))
}

func TestScale(t *testing.T) {
	assert.Equal(t, uint64(250), Scale(1000, 1, 4))
	assert.Equal(t, uint64(666), Scale(1000, 2, 3))
	assert.Equal(t, uint64(0), Scale(1000, 1, 0))
}
