package price

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MockQuoter is a mock implementation of Quoter for testing.
type MockQuoter struct {
	mu    sync.RWMutex
	price decimal.Decimal
	err   error
}

// NewMockQuoter creates a mock quoter returning a fixed price.
func NewMockQuoter(price decimal.Decimal) *MockQuoter {
	return &MockQuoter{price: price}
}

// SOLPriceUSD returns the configured price or error.
func (m *MockQuoter) SOLPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return m.price, nil
}

// SetPrice updates the price the mock returns.
func (m *MockQuoter) SetPrice(price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = price
}

// SetError configures the mock to return an error.
func (m *MockQuoter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
