package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/gasless/service/metrics"
	"github.com/brojonat/gasless/service/mint"
)

// FeeOracle estimates the lamport cost of a relayed transfer by asking the
// chain to price a representative transaction under current fee and
// priority conditions. The estimate is advisory: the relay's own charge to
// the sender is a fixed amount and is never derived from it.
type FeeOracle struct {
	rpc      RPCClient
	registry *mint.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewFeeOracle creates a new FeeOracle.
// If metrics is nil, no metrics will be recorded.
func NewFeeOracle(rpcClient RPCClient, registry *mint.Registry, m *metrics.Metrics, logger *slog.Logger) *FeeOracle {
	return &FeeOracle{
		rpc:      rpcClient,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}
}

// EstimateFee returns the estimated total network fee in lamports for a
// transfer of the given mint. The representative transaction carries a
// compute-unit limit, a compute-unit price set to the highest recently
// observed priority fee, and a 1-base-unit TransferChecked between
// placeholder accounts. An unsupported mint fails before any chain read.
func (o *FeeOracle) EstimateFee(ctx context.Context, mintSymbol string) (uint64, error) {
	m, err := o.registry.Resolve(mintSymbol)
	if err != nil {
		return 0, err
	}

	priorityPrice, err := o.highestRecentPriorityFee(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := o.buildRepresentativeTransaction(ctx, m, priorityPrice)
	if err != nil {
		return 0, err
	}

	msgBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("failed to serialize message: %w", err)
	}

	result, err := o.rpc.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(msgBytes), rpc.CommitmentConfirmed)
	o.record("GetFeeForMessage", err)
	if err != nil {
		return 0, fmt.Errorf("%w: fee simulation failed: %v", ErrChainUnavailable, err)
	}
	if result == nil || result.Value == nil {
		return 0, ErrNoFeeForMessage
	}

	baseFee := *result.Value
	priorityFee := priorityPrice * uint64(computeUnitLimit) / microLamportsPerLamport
	total := baseFee + priorityFee

	if o.metrics != nil {
		o.metrics.RecordFeeEstimate(mintSymbol, total)
	}
	o.logger.DebugContext(ctx, "estimated transfer fee",
		"mint_symbol", mintSymbol,
		"base_fee_lamports", baseFee,
		"priority_price_microlamports", priorityPrice,
		"priority_fee_lamports", priorityFee,
		"total_lamports", total,
	)

	return total, nil
}

// highestRecentPriorityFee samples recent prioritization fees and returns
// the highest observed per-compute-unit price in micro-lamports.
func (o *FeeOracle) highestRecentPriorityFee(ctx context.Context) (uint64, error) {
	samples, err := o.rpc.GetRecentPrioritizationFees(ctx, nil)
	o.record("GetRecentPrioritizationFees", err)
	if err != nil {
		return 0, fmt.Errorf("%w: prioritization fee sampling failed: %v", ErrChainUnavailable, err)
	}
	if len(samples) == 0 {
		return 0, ErrNoPriorityFeeSamples
	}

	var highest uint64
	for _, s := range samples {
		if s.PrioritizationFee > highest {
			highest = s.PrioritizationFee
		}
	}
	return highest, nil
}

// buildRepresentativeTransaction assembles the non-submitted transaction the
// chain is asked to price: compute budget instructions plus a minimal
// TransferChecked between burn-style placeholder accounts. A current
// blockhash keeps the message structurally valid for simulation.
func (o *FeeOracle) buildRepresentativeTransaction(ctx context.Context, m mint.Mint, priorityPrice uint64) (*solana.Transaction, error) {
	blockhash, err := o.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	o.record("GetLatestBlockhash", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRecentBlockhash, err)
	}

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(computeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(priorityPrice).Build(),
		token.NewTransferCheckedInstruction(
			1, // minimal amount
			m.Decimals,
			BurnAddress,
			m.Address,
			BurnAddress,
			BurnAddress,
			nil,
		).Build(),
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solana.TransactionPayer(BurnAddress),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build representative transaction: %w", err)
	}
	return tx, nil
}

func (o *FeeOracle) record(method string, err error) {
	if o.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordRPCCall(method, status)
}
