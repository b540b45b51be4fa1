package main

import (
	"testing"

	"ActionSentinel/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewFetcher_SelectsProvider(t *testing.T) {
	testCases := []struct {
		provider string
		want     string
	}{
		{"mock", "mock"},
		{"", "mock"},
		{"yahoo", "yahoo"},
		{"vstrader", "vstrader"},
	}
	for _, tc := range testCases {
		t.Run(tc.want+"/"+tc.provider, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Context.Provider = tc.provider
			cfg.Context.BaseURL = "http://localhost:9000"
			assert.Equal(t, tc.want, newFetcher(cfg, zerolog.Nop()).Name())
		})
	}
}
