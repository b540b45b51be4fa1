package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotValue(t *testing.T) {
	snap := &Snapshot{
		StockPrices:  map[string]float64{"AAPL": 155.5},
		Volumes:      map[string]float64{"AAPL": 1_200_000},
		OrderBooks:   map[string]BookTop{"BTC": {Bid: 100, Ask: 102}, "ETH": {Bid: 0, Ask: 10}},
		MarketStatus: map[string]string{"NYSE": "OPEN"},
	}

	v, ok, err := snap.Value(DomainStockPrices, "AAPL")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 155.5, v)

	_, ok, err = snap.Value(DomainStockPrices, "MSFT")
	require.NoError(t, err)
	assert.False(t, ok, "absent symbol is no data")

	_, ok, err = snap.Value(DomainCryptoPrices, "BTC")
	require.NoError(t, err)
	assert.False(t, ok, "absent domain is no data")

	v, ok, err = snap.Value(DomainOrderBooks, "BTC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 101.0, v)

	_, ok, err = snap.Value(DomainOrderBooks, "ETH")
	require.NoError(t, err)
	assert.False(t, ok, "one-sided book has no mid")

	_, _, err = snap.Value(DomainMarketStatus, "NYSE")
	assert.ErrorIs(t, err, ErrNotNumeric)

	_, _, err = snap.Value(Domain("WEATHER"), "NYC")
	assert.ErrorIs(t, err, ErrUnknownDomain)

	status, ok := snap.Status("NYSE")
	assert.True(t, ok)
	assert.Equal(t, "OPEN", status)
}

func TestNilAndEmptySnapshot(t *testing.T) {
	var snap *Snapshot
	_, ok, err := snap.Value(DomainStockPrices, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, snap.IsEmpty())

	empty := EmptySnapshot(time.Now())
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, 0, empty.Count())
}

func TestSnapshotSetPrice(t *testing.T) {
	snap := EmptySnapshot(time.Now())
	require.NoError(t, snap.SetPrice(DomainForexPrices, "EUR/USD", 1.09))
	require.NoError(t, snap.SetPrice(DomainVolumes, "EUR/USD", 10))
	assert.Error(t, snap.SetPrice(DomainMarketStatus, "NYSE", 1))

	assert.False(t, snap.IsEmpty())
	assert.Equal(t, 2, snap.Count())
}

func TestCycleResultDerivedCounts(t *testing.T) {
	r := CycleResult{Results: []EvaluationResult{
		{ShouldExecute: true},
		{ShouldExecute: false},
		{ShouldExecute: false, Error: "boom"},
	}}
	assert.Equal(t, 3, r.ActionsEvaluated())
	assert.Equal(t, 1, r.ActionsReady())
	assert.Len(t, r.Ready(), 1)
	assert.Equal(t, 1, r.EvaluationErrors())
}
