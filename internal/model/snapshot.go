package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownDomain = errors.New("unknown context domain")
	ErrNotNumeric    = errors.New("context domain holds no numeric values")
)

// Domain selects a bucket of market data in a Snapshot.
type Domain string

const (
	DomainStockPrices  Domain = "STOCK_PRICES"
	DomainETFPrices    Domain = "ETF_PRICES"
	DomainForexPrices  Domain = "FOREX_PRICES"
	DomainCryptoPrices Domain = "CRYPTO_PRICES"
	DomainVolumes      Domain = "VOLUMES"
	DomainOrderBooks   Domain = "ORDER_BOOKS"
	DomainSpreads      Domain = "SPREADS"
	DomainMarketStatus Domain = "MARKET_STATUS"
)

// Domains lists every selector in a fixed order.
var Domains = []Domain{
	DomainStockPrices, DomainETFPrices, DomainForexPrices, DomainCryptoPrices,
	DomainVolumes, DomainOrderBooks, DomainSpreads, DomainMarketStatus,
}

// PriceDomains are the selectors a collector fills from quotes.
var PriceDomains = []Domain{DomainStockPrices, DomainETFPrices, DomainForexPrices, DomainCryptoPrices}

// Valid reports whether d is a known selector.
func (d Domain) Valid() bool {
	for _, known := range Domains {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDomain maps a selector name to a Domain. EFT_PRICES is kept as an
// alias because older records were written with it.
func ParseDomain(s string) (Domain, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "EFT_PRICES" {
		return DomainETFPrices, nil
	}
	d := Domain(name)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
	}
	return d, nil
}

// BookTop is the best bid and ask of an order book.
type BookTop struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Mid returns the midpoint, or false when either side is missing.
func (b BookTop) Mid() (float64, bool) {
	if b.Bid <= 0 || b.Ask <= 0 {
		return 0, false
	}
	return (b.Bid + b.Ask) / 2, true
}

// Snapshot is the market data every action in a cycle is evaluated against.
// It is built once per cycle and only read afterwards.
type Snapshot struct {
	TakenAt      time.Time          `json:"taken_at"`
	StockPrices  map[string]float64 `json:"stock_prices,omitempty"`
	ETFPrices    map[string]float64 `json:"etf_prices,omitempty"`
	ForexPrices  map[string]float64 `json:"forex_prices,omitempty"`
	CryptoPrices map[string]float64 `json:"crypto_prices,omitempty"`
	Volumes      map[string]float64 `json:"volumes,omitempty"`
	OrderBooks   map[string]BookTop `json:"order_books,omitempty"`
	Spreads      map[string]float64 `json:"spreads,omitempty"`
	MarketStatus map[string]string  `json:"market_status,omitempty"`
}

// EmptySnapshot is what a provider returns when it has no usable data.
func EmptySnapshot(at time.Time) *Snapshot {
	return &Snapshot{TakenAt: at}
}

// IsEmpty reports whether the snapshot carries no data at all.
func (s *Snapshot) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.StockPrices) == 0 && len(s.ETFPrices) == 0 && len(s.ForexPrices) == 0 &&
		len(s.CryptoPrices) == 0 && len(s.Volumes) == 0 && len(s.OrderBooks) == 0 &&
		len(s.Spreads) == 0 && len(s.MarketStatus) == 0
}

// Value returns the numeric reading for symbol in domain. A missing domain or
// symbol yields ok=false with no error; an unknown or non-numeric domain is
// an error.
func (s *Snapshot) Value(d Domain, symbol string) (v float64, ok bool, err error) {
	var values map[string]float64
	switch d {
	case DomainStockPrices:
		if s != nil {
			values = s.StockPrices
		}
	case DomainETFPrices:
		if s != nil {
			values = s.ETFPrices
		}
	case DomainForexPrices:
		if s != nil {
			values = s.ForexPrices
		}
	case DomainCryptoPrices:
		if s != nil {
			values = s.CryptoPrices
		}
	case DomainVolumes:
		if s != nil {
			values = s.Volumes
		}
	case DomainSpreads:
		if s != nil {
			values = s.Spreads
		}
	case DomainOrderBooks:
		if s == nil {
			return 0, false, nil
		}
		top, found := s.OrderBooks[symbol]
		if !found {
			return 0, false, nil
		}
		v, ok = top.Mid()
		return v, ok, nil
	case DomainMarketStatus:
		return 0, false, fmt.Errorf("%w: %s", ErrNotNumeric, d)
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownDomain, d)
	}
	v, ok = values[symbol]
	return v, ok, nil
}

// Status returns the market status string for a venue.
func (s *Snapshot) Status(venue string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.MarketStatus[venue]
	return v, ok
}

// Count returns the number of entries across all domains.
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.StockPrices) + len(s.ETFPrices) + len(s.ForexPrices) + len(s.CryptoPrices) +
		len(s.Volumes) + len(s.OrderBooks) + len(s.Spreads) + len(s.MarketStatus)
}

// SetPrice stores a price reading in the map for a price domain. Used by
// providers while the snapshot is still private to them.
func (s *Snapshot) SetPrice(d Domain, symbol string, price float64) error {
	var target *map[string]float64
	switch d {
	case DomainStockPrices:
		target = &s.StockPrices
	case DomainETFPrices:
		target = &s.ETFPrices
	case DomainForexPrices:
		target = &s.ForexPrices
	case DomainCryptoPrices:
		target = &s.CryptoPrices
	case DomainVolumes:
		target = &s.Volumes
	case DomainSpreads:
		target = &s.Spreads
	default:
		return fmt.Errorf("%w: %s", ErrNotNumeric, d)
	}
	if *target == nil {
		*target = make(map[string]float64)
	}
	(*target)[symbol] = price
	return nil
}

// SetBook records the top of book for symbol along with its spread.
func (s *Snapshot) SetBook(symbol string, top BookTop) {
	if s.OrderBooks == nil {
		s.OrderBooks = make(map[string]BookTop)
	}
	s.OrderBooks[symbol] = top
	_ = s.SetPrice(DomainSpreads, symbol, top.Ask-top.Bid)
}

// SetStatus records a venue's market status.
func (s *Snapshot) SetStatus(venue, status string) {
	if s.MarketStatus == nil {
		s.MarketStatus = make(map[string]string)
	}
	s.MarketStatus[venue] = status
}
