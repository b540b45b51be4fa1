package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"ActionSentinel/internal/model"
)

// Quote is the latest reading for one instrument. Zero fields are unknown.
type Quote struct {
	Price  float64
	Volume float64
	Bid    float64
	Ask    float64
}

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	FetchQuote(ctx context.Context, domain model.Domain, symbol string) (Quote, error)
	Name() string
}

// StatusFetcher is implemented by fetchers that can report venue status.
type StatusFetcher interface {
	FetchMarketStatus(ctx context.Context, venue string) (string, error)
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
