package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ActionSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_SnapshotFromMock(t *testing.T) {
	m := NewMockFetcher(42)
	m.Prices = map[string]float64{"AAPL": 155}
	c := NewCollector(m, Watchlist{
		Stocks: []string{"AAPL"},
		Crypto: []string{"BTC"},
		Venues: []string{"NYSE", "LSE"},
	}, time.Second, zerolog.Nop())

	snap := c.Snapshot(context.Background())
	require.NotNil(t, snap)

	v, ok, err := snap.Value(model.DomainStockPrices, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 155.0, v)

	btc, ok, err := snap.Value(model.DomainCryptoPrices, "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, btc, 45000.0)
	assert.Less(t, btc, 55000.0)

	_, ok, _ = snap.Value(model.DomainVolumes, "AAPL")
	assert.True(t, ok)

	status, ok := snap.Status("NYSE")
	assert.True(t, ok)
	assert.Equal(t, "OPEN", status)
	status, _ = snap.Status("LSE")
	assert.Equal(t, "CLOSED", status)
}

func TestCollector_FetchErrorYieldsEmptySnapshot(t *testing.T) {
	m := NewMockFetcher(1)
	m.Err = errors.New("upstream down")
	c := NewCollector(m, DemoWatchlist(), 0, zerolog.Nop())

	snap := c.Snapshot(context.Background())
	require.NotNil(t, snap)
	assert.True(t, snap.IsEmpty())
}

func TestCollector_UnknownSymbolYieldsEmptySnapshot(t *testing.T) {
	c := NewCollector(NewMockFetcher(1), Watchlist{Stocks: []string{"NOPE"}}, 0, zerolog.Nop())
	assert.True(t, c.Snapshot(context.Background()).IsEmpty())
}

func TestDemoWatchlist(t *testing.T) {
	w := DemoWatchlist()
	assert.False(t, w.Empty())
	assert.Equal(t, []string{"AAPL", "GOOGL", "TSLA"}, w.Stocks)
	assert.Equal(t, []string{"QQQ", "SPY"}, w.ETFs)
	assert.Contains(t, w.Venues, "CRYPTO")

	snap := NewCollector(NewMockFetcher(7), w, 0, zerolog.Nop()).Snapshot(context.Background())
	assert.Len(t, snap.StockPrices, 3)
	assert.Len(t, snap.ForexPrices, 3)
	assert.Len(t, snap.MarketStatus, 3)
}

func TestVsTraderFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/quote":
			assert.Equal(t, "BTC", r.URL.Query().Get("symbol"))
			w.Write([]byte(`{"price":50000,"volume":12,"bid":49990,"ask":50010}`))
		case "/api/v1/market-status":
			w.Write([]byte(`{"status":"24/7"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewVsTraderFetcher(srv.URL, "secret", "", time.Second)
	c := NewCollector(f, Watchlist{Crypto: []string{"BTC"}, Venues: []string{"CRYPTO"}}, 0, zerolog.Nop())
	snap := c.Snapshot(context.Background())

	assert.Equal(t, 50000.0, snap.CryptoPrices["BTC"])
	assert.Equal(t, model.BookTop{Bid: 49990, Ask: 50010}, snap.OrderBooks["BTC"])
	assert.Equal(t, 20.0, snap.Spreads["BTC"])
	assert.Equal(t, "24/7", snap.MarketStatus["CRYPTO"])

	mid, ok, err := snap.Value(model.DomainOrderBooks, "BTC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 50000.0, mid)
}

func TestVsTraderFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewVsTraderFetcher(srv.URL, "", "", time.Second).FetchQuote(context.Background(), model.DomainStockPrices, "AAPL")
	assert.ErrorContains(t, err, "status 502")
}

func TestYahooFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BTC-USD", r.URL.Path)
		w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":0},
			"timestamp":[1,2],
			"indicators":{"quote":[{"close":[61000.5,null],"volume":[1234,null]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Second)
	f.BaseURL = srv.URL
	q, err := f.FetchQuote(context.Background(), model.DomainCryptoPrices, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 61000.5, q.Price)
	assert.Equal(t, 1234.0, q.Volume)
}

func TestYahooSymbol(t *testing.T) {
	f := NewYahooFetcher("", 0)
	assert.Equal(t, "^GSPC", f.yahooSymbol(model.DomainETFPrices, "SPX"))
	assert.Equal(t, "EURUSD=X", f.yahooSymbol(model.DomainForexPrices, "EUR/USD"))
	assert.Equal(t, "ETH-USD", f.yahooSymbol(model.DomainCryptoPrices, "ETH"))
	assert.Equal(t, "AAPL", f.yahooSymbol(model.DomainStockPrices, "AAPL"))
}
