package solana

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/gasless/service/mint"
)

const testUSDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func testRegistry(t *testing.T) *mint.Registry {
	t.Helper()
	registry, err := mint.NewRegistry([]mint.Config{
		{Symbol: "USDC", Address: testUSDCMint, Decimals: 6},
	})
	require.NoError(t, err)
	return registry
}

func blockhashResult() *rpc.GetLatestBlockhashResult {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash: solana.MustHashFromBase58("GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W"),
		},
	}
}

func feeResult(lamports uint64) *rpc.GetFeeForMessageResult {
	return &rpc.GetFeeForMessageResult{Value: &lamports}
}

func prioritizationSamples(fees ...uint64) []rpc.PriorizationFeeResult {
	out := make([]rpc.PriorizationFeeResult, len(fees))
	for i, fee := range fees {
		out[i] = rpc.PriorizationFeeResult{Slot: uint64(100 + i), PrioritizationFee: fee}
	}
	return out
}

func TestFeeOracle_EstimateFee(t *testing.T) {
	mock := &mockRPCClient{
		getRecentPrioritizationFeesFunc: func(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
			return prioritizationSamples(0, 5000, 12000), nil
		},
		getLatestBlockhashFunc: func(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
			return blockhashResult(), nil
		},
		getFeeForMessageFunc: func(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error) {
			assert.NotEmpty(t, message)
			return feeResult(5000), nil
		},
	}
	oracle := NewFeeOracle(mock, testRegistry(t), nil, slog.Default())

	total, err := oracle.EstimateFee(context.Background(), "USDC")
	require.NoError(t, err)

	// Priority portion: 12000 micro-lamports/CU over a 200k CU budget is
	// exactly 2400 lamports, on top of the 5000 lamport base fee.
	assert.Equal(t, uint64(7400), total)
}

func TestFeeOracle_EstimateFee_ZeroPriority(t *testing.T) {
	mock := &mockRPCClient{
		getRecentPrioritizationFeesFunc: func(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
			return prioritizationSamples(0, 0, 0), nil
		},
		getLatestBlockhashFunc: func(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
			return blockhashResult(), nil
		},
		getFeeForMessageFunc: func(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error) {
			return feeResult(5000), nil
		},
	}
	oracle := NewFeeOracle(mock, testRegistry(t), nil, slog.Default())

	total, err := oracle.EstimateFee(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), total)
}

func TestFeeOracle_EstimateFee_UnsupportedMint(t *testing.T) {
	mock := &mockRPCClient{}
	oracle := NewFeeOracle(mock, testRegistry(t), nil, slog.Default())

	_, err := oracle.EstimateFee(context.Background(), "DOGE")
	require.Error(t, err)
	assert.ErrorIs(t, err, mint.ErrUnsupportedMint)

	// Rejected before any chain read.
	assert.Empty(t, mock.calls)
}

func TestFeeOracle_EstimateFee_NoSamples(t *testing.T) {
	mock := &mockRPCClient{
		getRecentPrioritizationFeesFunc: func(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
			return nil, nil
		},
	}
	oracle := NewFeeOracle(mock, testRegistry(t), nil, slog.Default())

	_, err := oracle.EstimateFee(context.Background(), "USDC")
	assert.ErrorIs(t, err, ErrNoPriorityFeeSamples)
}

func TestFeeOracle_EstimateFee_SamplingUnavailable(t *testing.T) {
	mock := &mockRPCClient{
		getRecentPrioritizationFeesFunc: func(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
			return nil, errors.New("rpc timeout")
		},
	}
	oracle := NewFeeOracle(mock, testRegistry(t), nil, slog.Default())

	_, err := oracle.EstimateFee(context.Background(), "USDC")
	assert.ErrorIs(t, err, ErrChainUnavailable)
}

func TestFeeOracle_EstimateFee_NoFeeForMessage(t *testing.T) {
	mock := &mockRPCClient{
		getRecentPrioritizationFeesFunc: func(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
			return prioritizationSamples(100), nil
		},
		getLatestBlockhashFunc: func(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
			return blockhashResult(), nil
		},
		getFeeForMessageFunc: func(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error) {
			return &rpc.GetFeeForMessageResult{Value: nil}, nil
		},
	}
	oracle := NewFeeOracle(mock, testRegistry(t), nil, slog.Default())

	_, err := oracle.EstimateFee(context.Background(), "USDC")
	assert.ErrorIs(t, err, ErrNoFeeForMessage)
}

func TestFeeOracle_EstimateFee_NoBlockhash(t *testing.T) {
	mock := &mockRPCClient{
		getRecentPrioritizationFeesFunc: func(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
			return prioritizationSamples(100), nil
		},
		getLatestBlockhashFunc: func(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
			return nil, errors.New("node behind")
		},
	}
	oracle := NewFeeOracle(mock, testRegistry(t), nil, slog.Default())

	_, err := oracle.EstimateFee(context.Background(), "USDC")
	assert.ErrorIs(t, err, ErrNoRecentBlockhash)
}
