package postgres

import (
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q, args := listQuery("SELECT * FROM t WHERE owner = $1", "at", []any{"w"}, domain.ListOpts{
		Since: &since, Limit: 10, Offset: 20,
	})
	assert.Equal(t, "SELECT * FROM t WHERE owner = $1 AND at >= $2 ORDER BY at DESC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{"w", since, 10, 20}, args)

	q, args = listQuery("SELECT * FROM t WHERE 1=1", "at", nil, domain.ListOpts{})
	assert.Equal(t, "SELECT * FROM t WHERE 1=1 ORDER BY at DESC", q)
	assert.Empty(t, args)
}

func TestNumericRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 1_000_000_000, ^uint64(0)} {
		got, err := fromNumeric(numeric(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestFromNumeric(t *testing.T) {
	got, err := fromNumeric(pgtype.Numeric{Int: big.NewInt(15), Exp: 3, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(15000), got)

	got, err = fromNumeric(pgtype.Numeric{})
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = fromNumeric(pgtype.Numeric{Int: big.NewInt(-1), Valid: true})
	assert.Error(t, err)

	_, err = fromNumeric(pgtype.Numeric{NaN: true, Valid: true, Int: big.NewInt(0)})
	assert.Error(t, err)
}
