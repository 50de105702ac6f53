package mint

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrUnsupportedMint is returned when a mint symbol is not in the configured set.
var ErrUnsupportedMint = errors.New("unsupported mint symbol")

// Mint describes a supported SPL token: its on-chain mint address and
// decimal precision. Instances are immutable after registry construction.
type Mint struct {
	Symbol   string
	Address  solana.PublicKey
	Decimals uint8
}

// Registry is a static, read-only mapping from mint symbol to Mint.
// It is built once at startup from configuration and is safe for
// concurrent use.
type Registry struct {
	mints map[string]Mint
}

// Config describes a single supported mint as provided by configuration.
type Config struct {
	Symbol   string
	Address  string
	Decimals uint8
}

// NewRegistry builds a Registry from the configured mint set.
// Invalid addresses and duplicate symbols fail construction.
func NewRegistry(configs []Config) (*Registry, error) {
	mints := make(map[string]Mint, len(configs))
	for _, c := range configs {
		if c.Symbol == "" {
			return nil, fmt.Errorf("mint config with empty symbol")
		}
		if _, exists := mints[c.Symbol]; exists {
			return nil, fmt.Errorf("duplicate mint symbol %q", c.Symbol)
		}
		addr, err := solana.PublicKeyFromBase58(c.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid address for mint %q: %w", c.Symbol, err)
		}
		mints[c.Symbol] = Mint{
			Symbol:   c.Symbol,
			Address:  addr,
			Decimals: c.Decimals,
		}
	}
	return &Registry{mints: mints}, nil
}

// Resolve looks up a mint by symbol. The comparison is a case-sensitive
// exact match. Unknown symbols return ErrUnsupportedMint.
func (r *Registry) Resolve(symbol string) (Mint, error) {
	m, ok := r.mints[symbol]
	if !ok {
		return Mint{}, fmt.Errorf("%w: %q", ErrUnsupportedMint, symbol)
	}
	return m, nil
}

// Symbols returns the configured mint symbols. Order is unspecified.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.mints))
	for s := range r.mints {
		out = append(out, s)
	}
	return out
}
