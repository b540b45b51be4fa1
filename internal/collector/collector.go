package collector

import (
	"context"
	"sort"
	"time"

	"ActionSentinel/internal/logger"
	"ActionSentinel/internal/model"

	"github.com/rs/zerolog"
)

// Watchlist names the instruments fetched into each snapshot.
type Watchlist struct {
	Stocks []string `yaml:"stocks"`
	ETFs   []string `yaml:"etfs"`
	Forex  []string `yaml:"forex"`
	Crypto []string `yaml:"crypto"`
	Venues []string `yaml:"venues"`
}

func (w Watchlist) symbols(d model.Domain) []string {
	switch d {
	case model.DomainStockPrices:
		return w.Stocks
	case model.DomainETFPrices:
		return w.ETFs
	case model.DomainForexPrices:
		return w.Forex
	case model.DomainCryptoPrices:
		return w.Crypto
	}
	return nil
}

func (w *Watchlist) add(d model.Domain, symbol string) {
	switch d {
	case model.DomainStockPrices:
		w.Stocks = append(w.Stocks, symbol)
	case model.DomainETFPrices:
		w.ETFs = append(w.ETFs, symbol)
	case model.DomainForexPrices:
		w.Forex = append(w.Forex, symbol)
	case model.DomainCryptoPrices:
		w.Crypto = append(w.Crypto, symbol)
	}
}

func (w *Watchlist) sort() {
	for _, s := range [][]string{w.Stocks, w.ETFs, w.Forex, w.Crypto, w.Venues} {
		sort.Strings(s)
	}
}

// Empty reports whether nothing is watched.
func (w Watchlist) Empty() bool {
	return len(w.Stocks)+len(w.ETFs)+len(w.Forex)+len(w.Crypto)+len(w.Venues) == 0
}

// Collector builds the market snapshot each cycle evaluates against.
type Collector struct {
	Fetcher   Fetcher
	Watchlist Watchlist
	Timeout   time.Duration

	log zerolog.Logger
	now func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, watchlist Watchlist, timeout time.Duration, log zerolog.Logger) *Collector {
	return &Collector{
		Fetcher:   fetcher,
		Watchlist: watchlist,
		Timeout:   timeout,
		log:       logger.Component(log, "collector").With().Str("fetcher", fetcher.Name()).Logger(),
		now:       time.Now,
	}
}

// Snapshot fetches every watched instrument. It never fails: any fetch
// error yields an empty snapshot.
func (c *Collector) Snapshot(ctx context.Context) *model.Snapshot {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	snap, err := c.collect(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to build market context, using empty snapshot")
		return model.EmptySnapshot(c.now())
	}
	c.log.Debug().Int("values", snap.Count()).Msg("Built market context")
	return snap
}

func (c *Collector) collect(ctx context.Context) (*model.Snapshot, error) {
	snap := model.EmptySnapshot(c.now())

	for _, d := range model.PriceDomains {
		for _, symbol := range c.Watchlist.symbols(d) {
			q, err := c.Fetcher.FetchQuote(ctx, d, symbol)
			if err != nil {
				return nil, err
			}
			if err := snap.SetPrice(d, symbol, q.Price); err != nil {
				return nil, err
			}
			if q.Volume > 0 {
				_ = snap.SetPrice(model.DomainVolumes, symbol, q.Volume)
			}
			if q.Bid > 0 && q.Ask > 0 {
				snap.SetBook(symbol, model.BookTop{Bid: q.Bid, Ask: q.Ask})
			}
		}
	}

	if sf, ok := c.Fetcher.(StatusFetcher); ok {
		for _, venue := range c.Watchlist.Venues {
			status, err := sf.FetchMarketStatus(ctx, venue)
			if err != nil {
				return nil, err
			}
			snap.SetStatus(venue, status)
		}
	}
	return snap, nil
}
