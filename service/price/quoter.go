// Package price provides reference fiat quotes for fee transparency.
// Quotes are advisory display values attached to fee estimates; nothing
// on-chain depends on them.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quoter returns the current SOL/USD reference price.
type Quoter interface {
	SOLPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// CoinGeckoQuoter fetches SOL/USD from the CoinGecko simple price API.
// Responses are cached briefly so fee quote bursts don't hammer the API.
type CoinGeckoQuoter struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	cached    decimal.Decimal
	fetchedAt time.Time
	ttl       time.Duration
}

// NewCoinGeckoQuoter creates a quoter against the given API base URL
// (e.g. "https://api.coingecko.com/api/v3").
func NewCoinGeckoQuoter(baseURL string, logger *slog.Logger) *CoinGeckoQuoter {
	return &CoinGeckoQuoter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		ttl:     30 * time.Second,
	}
}

// SOLPriceUSD returns the current SOL/USD price, serving a cached value
// when it is fresh enough.
func (q *CoinGeckoQuoter) SOLPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.fetchedAt.IsZero() && time.Since(q.fetchedAt) < q.ttl {
		return q.cached, nil
	}

	url := q.baseURL + "/simple/price?ids=solana&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch SOL price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	var payload struct {
		Solana struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"solana"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}
	if payload.Solana.USD.IsZero() {
		return decimal.Zero, fmt.Errorf("price API returned no SOL price")
	}

	q.cached = payload.Solana.USD
	q.fetchedAt = time.Now()

	q.logger.Debug("fetched SOL price", "usd", payload.Solana.USD.String())
	return payload.Solana.USD, nil
}
