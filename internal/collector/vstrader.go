package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ActionSentinel/internal/model"
)

// VsTraderFetcher implements Fetcher using the vstrader REST API.
type VsTraderFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewVsTraderFetcher creates a new fetcher with optional proxy support.
func NewVsTraderFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration) *VsTraderFetcher {
	return &VsTraderFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL, timeout),
	}
}

func (f *VsTraderFetcher) Name() string { return "vstrader" }

// vsQuote is the expected JSON shape of /api/v1/quote.
type vsQuote struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

func (f *VsTraderFetcher) FetchQuote(ctx context.Context, domain model.Domain, symbol string) (Quote, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quote?symbol=%s&domain=%s",
		f.BaseURL, url.QueryEscape(symbol), url.QueryEscape(string(domain)))
	var result vsQuote
	if err := f.getJSON(ctx, endpoint, &result); err != nil {
		return Quote{}, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}
	return Quote(result), nil
}

func (f *VsTraderFetcher) FetchMarketStatus(ctx context.Context, venue string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/market-status?venue=%s", f.BaseURL, url.QueryEscape(venue))
	var result struct {
		Status string `json:"status"`
	}
	if err := f.getJSON(ctx, endpoint, &result); err != nil {
		return "", fmt.Errorf("fetch market status %s: %w", venue, err)
	}
	return result.Status, nil
}

func (f *VsTraderFetcher) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
