package collector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"ActionSentinel/internal/model"
)

type priceBand struct{ base, spread float64 }

// demoBands are the randomized demo price ranges per instrument.
var demoBands = map[model.Domain]map[string]priceBand{
	model.DomainStockPrices: {
		"AAPL":  {150, 20},
		"GOOGL": {2800, 200},
		"TSLA":  {800, 100},
	},
	model.DomainCryptoPrices: {
		"BTC": {45000, 10000},
		"ETH": {3000, 1000},
		"ADA": {1.2, 0.5},
	},
	model.DomainForexPrices: {
		"EUR/USD": {1.08, 0.05},
		"GBP/USD": {1.25, 0.05},
		"USD/JPY": {148, 5},
	},
	model.DomainETFPrices: {
		"SPY": {420, 20},
		"QQQ": {380, 30},
	},
}

var demoVolumes = map[string]priceBand{
	"AAPL": {1_000_000, 500_000},
	"BTC":  {50_000, 25_000},
}

var demoStatus = map[string]string{
	"NYSE":   "OPEN",
	"NASDAQ": "OPEN",
	"CRYPTO": "24/7",
}

// MockFetcher returns randomized demo quotes, or fixed ones from Prices.
type MockFetcher struct {
	// Prices pins a symbol's price regardless of domain.
	Prices map[string]float64
	Status map[string]string
	Err    error

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMockFetcher(seed int64) *MockFetcher {
	return &MockFetcher{rnd: rand.New(rand.NewSource(seed))}
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchQuote(_ context.Context, domain model.Domain, symbol string) (Quote, error) {
	if m.Err != nil {
		return Quote{}, m.Err
	}

	var q Quote
	if p, ok := m.Prices[symbol]; ok {
		q.Price = p
	} else if band, ok := demoBands[domain][symbol]; ok {
		q.Price = band.base + m.float()*band.spread
	} else {
		return Quote{}, fmt.Errorf("mock: no demo data for %s/%s", domain, symbol)
	}
	if band, ok := demoVolumes[symbol]; ok {
		q.Volume = band.base + float64(int64(m.float()*band.spread))
	}
	return q, nil
}

func (m *MockFetcher) FetchMarketStatus(_ context.Context, venue string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if s, ok := m.Status[venue]; ok {
		return s, nil
	}
	if s, ok := demoStatus[venue]; ok {
		return s, nil
	}
	return "CLOSED", nil
}

func (m *MockFetcher) float() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rnd == nil {
		m.rnd = rand.New(rand.NewSource(1))
	}
	return m.rnd.Float64()
}

// DemoWatchlist lists every instrument the mock fetcher knows about.
func DemoWatchlist() Watchlist {
	w := Watchlist{}
	for _, d := range model.PriceDomains {
		for symbol := range demoBands[d] {
			w.add(d, symbol)
		}
	}
	for venue := range demoStatus {
		w.Venues = append(w.Venues, venue)
	}
	w.sort()
	return w
}
