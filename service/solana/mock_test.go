package solana

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// mockRPCClient implements RPCClient with per-method function fields so
// each test wires up only the calls it expects. Unwired methods panic,
// which surfaces unexpected chain reads immediately.
type mockRPCClient struct {
	getLatestBlockhashFunc                func(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	getFeeForMessageFunc                  func(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error)
	getRecentPrioritizationFeesFunc       func(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error)
	getAccountInfoFunc                    func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	getMinimumBalanceForRentExemptionFunc func(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	getSignaturesForAddressFunc           func(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	getTransactionFunc                    func(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)

	calls []string
}

var _ RPCClient = (*mockRPCClient)(nil)

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	m.calls = append(m.calls, "GetLatestBlockhash")
	if m.getLatestBlockhashFunc == nil {
		panic("unexpected GetLatestBlockhash call")
	}
	return m.getLatestBlockhashFunc(ctx, commitment)
}

func (m *mockRPCClient) GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error) {
	m.calls = append(m.calls, "GetFeeForMessage")
	if m.getFeeForMessageFunc == nil {
		panic("unexpected GetFeeForMessage call")
	}
	return m.getFeeForMessageFunc(ctx, message, commitment)
}

func (m *mockRPCClient) GetRecentPrioritizationFees(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
	m.calls = append(m.calls, "GetRecentPrioritizationFees")
	if m.getRecentPrioritizationFeesFunc == nil {
		panic("unexpected GetRecentPrioritizationFees call")
	}
	return m.getRecentPrioritizationFeesFunc(ctx, accounts)
}

func (m *mockRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	m.calls = append(m.calls, "GetAccountInfo")
	if m.getAccountInfoFunc == nil {
		panic("unexpected GetAccountInfo call")
	}
	return m.getAccountInfoFunc(ctx, account)
}

func (m *mockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	m.calls = append(m.calls, "GetMinimumBalanceForRentExemption")
	if m.getMinimumBalanceForRentExemptionFunc == nil {
		panic("unexpected GetMinimumBalanceForRentExemption call")
	}
	return m.getMinimumBalanceForRentExemptionFunc(ctx, dataSize, commitment)
}

func (m *mockRPCClient) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	m.calls = append(m.calls, "GetSignaturesForAddress")
	if m.getSignaturesForAddressFunc == nil {
		panic("unexpected GetSignaturesForAddress call")
	}
	return m.getSignaturesForAddressFunc(ctx, address, opts)
}

func (m *mockRPCClient) GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	m.calls = append(m.calls, "GetTransaction")
	if m.getTransactionFunc == nil {
		panic("unexpected GetTransaction call")
	}
	return m.getTransactionFunc(ctx, signature, opts)
}
