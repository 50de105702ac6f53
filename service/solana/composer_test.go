package solana

import (
	"context"
	"encoding/binary"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/gasless/service/mint"
)

func testComposeParams(t *testing.T) ComposeParams {
	t.Helper()
	return ComposeParams{
		Sender:            solana.NewWallet().PublicKey(),
		Destination:       solana.NewWallet().PublicKey(),
		AmountBaseUnits:   10000000,
		Mint:              mint.Mint{Symbol: "USDC", Address: solana.MustPublicKeyFromBase58(testUSDCMint), Decimals: 6},
		RelayFeeBaseUnits: 500000,
		ReferenceID:       "8a9f1c62-0d3e-4b7a-9c51-2f6e8d04a713",
	}
}

// transferCheckedAmount decodes the amount from a TransferChecked
// instruction's data: a one byte variant tag followed by a little endian
// uint64.
func transferCheckedAmount(t *testing.T, instruction solana.Instruction) uint64 {
	t.Helper()
	data, err := instruction.Data()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 9)
	return binary.LittleEndian.Uint64(data[1:9])
}

func TestComposer_Compose_ExistingDestination(t *testing.T) {
	mock := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
			return &rpc.GetAccountInfoResult{}, nil
		},
	}
	relayWallet := solana.NewWallet().PublicKey()
	composer := NewComposer(mock, relayWallet, nil, slog.Default())
	params := testComposeParams(t)

	instructions, err := composer.Compose(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, instructions, 3)

	// Memo first, carrying the raw reference id bytes.
	assert.Equal(t, MemoProgramIDSPL, instructions[0].ProgramID())
	memoData, err := instructions[0].Data()
	require.NoError(t, err)
	assert.Equal(t, params.ReferenceID, string(memoData))

	// Relay fee collection second.
	assert.Equal(t, token.ProgramID, instructions[1].ProgramID())
	assert.Equal(t, params.RelayFeeBaseUnits, transferCheckedAmount(t, instructions[1]))

	// Value transfer last.
	assert.Equal(t, token.ProgramID, instructions[2].ProgramID())
	assert.Equal(t, uint64(10000000), transferCheckedAmount(t, instructions[2]))
}

func TestComposer_Compose_MissingDestination(t *testing.T) {
	const rent = uint64(2039280)
	mock := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
			return nil, rpc.ErrNotFound
		},
		getMinimumBalanceForRentExemptionFunc: func(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
			assert.Equal(t, uint64(165), dataSize)
			return rent, nil
		},
	}
	relayWallet := solana.NewWallet().PublicKey()
	composer := NewComposer(mock, relayWallet, nil, slog.Default())
	params := testComposeParams(t)

	instructions, err := composer.Compose(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, instructions, 5)

	assert.Equal(t, MemoProgramIDSPL, instructions[0].ProgramID())
	assert.Equal(t, token.ProgramID, instructions[1].ProgramID())

	// Provisioning pair between fee collection and value transfer.
	assert.Equal(t, system.ProgramID, instructions[2].ProgramID())
	assert.Equal(t, token.ProgramID, instructions[3].ProgramID())

	assert.Equal(t, token.ProgramID, instructions[4].ProgramID())
	assert.Equal(t, params.AmountBaseUnits, transferCheckedAmount(t, instructions[4]))
}

func TestComposer_Compose_DestinationSameATAasDerived(t *testing.T) {
	params := testComposeParams(t)
	destinationATA, _, err := solana.FindAssociatedTokenAddress(params.Destination, params.Mint.Address)
	require.NoError(t, err)

	var checked solana.PublicKey
	mock := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
			checked = account
			return &rpc.GetAccountInfoResult{}, nil
		},
	}
	composer := NewComposer(mock, solana.NewWallet().PublicKey(), nil, slog.Default())

	_, err = composer.Compose(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, destinationATA, checked)
}

func TestComposer_Compose_AccountLookupFailure(t *testing.T) {
	mock := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
			return nil, context.DeadlineExceeded
		},
	}
	composer := NewComposer(mock, solana.NewWallet().PublicKey(), nil, slog.Default())

	_, err := composer.Compose(context.Background(), testComposeParams(t))
	assert.ErrorIs(t, err, ErrChainUnavailable)
}

func TestComposer_Compose_RentLookupFailure(t *testing.T) {
	mock := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
			return nil, rpc.ErrNotFound
		},
		getMinimumBalanceForRentExemptionFunc: func(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
			return 0, context.DeadlineExceeded
		},
	}
	composer := NewComposer(mock, solana.NewWallet().PublicKey(), nil, slog.Default())

	_, err := composer.Compose(context.Background(), testComposeParams(t))
	assert.ErrorIs(t, err, ErrChainUnavailable)
}
