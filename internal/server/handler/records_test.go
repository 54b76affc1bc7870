package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

type fakeFills struct {
	gotOwner string
	gotOpts  domain.ListOpts
	err      error
}

func (f *fakeFills) ListByOwner(_ context.Context, owner string, opts domain.ListOpts) ([]domain.TradeFill, error) {
	f.gotOwner, f.gotOpts = owner, opts
	if f.err != nil {
		return nil, f.err
	}
	return []domain.TradeFill{
		{ID: 2, Side: domain.TradeSideSell, Owner: owner, Asset: "m", InputAmount: 10, OutputAmount: 600_000_000, Profit: -400_000_000, Signature: "s2"},
		{ID: 1, Side: domain.TradeSideBuy, Owner: owner, Asset: "m", InputAmount: 1_000_000_000, OutputAmount: 10, Signature: "s1"},
	}, nil
}

type fakeAudit struct{}

func (fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return []domain.AuditEntry{{ID: 1, Event: "trade_buy", Detail: map[string]any{"asset": "m"}}}, nil
}

func TestListTrades(t *testing.T) {
	fills := &fakeFills{}
	h := NewRecordsHandler(fills, fakeAudit{}, connected(), quiet())

	rec := httptest.NewRecorder()
	h.ListTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades?limit=5&offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testOwner, fills.gotOwner)
	assert.Equal(t, 5, fills.gotOpts.Limit)
	assert.Equal(t, 10, fills.gotOpts.Offset)

	var out struct {
		Trades []fillView `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Trades, 2)
	assert.Equal(t, "-0.4", out.Trades[0].ProfitSOL)
	assert.Empty(t, out.Trades[1].ProfitSOL)

	fills.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.ListTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecordsWithoutPostgres(t *testing.T) {
	h := NewRecordsHandler(nil, nil, connected(), quiet())

	rec := httptest.NewRecorder()
	h.ListTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = httptest.NewRecorder()
	h.ListAudit(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestListAudit(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRecordsHandler(nil, fakeAudit{}, connected(), quiet()).
		ListAudit(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event":"trade_buy"`)
}
