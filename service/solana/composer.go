package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/gasless/service/metrics"
	"github.com/brojonat/gasless/service/mint"
)

// Composer builds the ordered instruction sequence for a relayed transfer.
// The ordering is fixed:
//
//  1. memo carrying the reference id (sole correlation mechanism)
//  2. relay-fee token transfer from sender to the relay wallet
//  3. destination token account provisioning, only when absent
//  4. the value transfer itself, always last
//
// The memo must be attributable to exactly the instructions that follow it
// in the same transaction; fee collection precedes provisioning so it is
// not contingent on it; the value transfer comes last so any provisioning
// has already happened within the same atomic transaction.
type Composer struct {
	rpc         RPCClient
	relayWallet solana.PublicKey
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewComposer creates a new Composer. relayWallet is the relay's own
// address; relay fees are collected into its associated token account.
// If metrics is nil, no metrics will be recorded.
func NewComposer(rpcClient RPCClient, relayWallet solana.PublicKey, m *metrics.Metrics, logger *slog.Logger) *Composer {
	return &Composer{
		rpc:         rpcClient,
		relayWallet: relayWallet,
		metrics:     m,
		logger:      logger,
	}
}

// ComposeParams contains the inputs for composing a relayed transfer.
type ComposeParams struct {
	Sender            solana.PublicKey
	Destination       solana.PublicKey
	AmountBaseUnits   uint64
	Mint              mint.Mint
	RelayFeeBaseUnits uint64
	ReferenceID       string
}

// Compose returns the ordered instruction list for a relayed transfer.
// The sender's source token account is never provisioned; having a valid
// source account is the caller's responsibility.
func (c *Composer) Compose(ctx context.Context, params ComposeParams) ([]solana.Instruction, error) {
	senderATA, _, err := solana.FindAssociatedTokenAddress(params.Sender, params.Mint.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sender token account: %w", err)
	}
	destinationATA, _, err := solana.FindAssociatedTokenAddress(params.Destination, params.Mint.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to derive destination token account: %w", err)
	}
	relayATA, _, err := solana.FindAssociatedTokenAddress(c.relayWallet, params.Mint.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to derive relay token account: %w", err)
	}

	instructions := []solana.Instruction{
		newMemoInstruction([]byte(params.ReferenceID)),
		token.NewTransferCheckedInstruction(
			params.RelayFeeBaseUnits,
			params.Mint.Decimals,
			senderATA,
			params.Mint.Address,
			relayATA,
			params.Sender,
			nil,
		).Build(),
	}

	needsProvisioning, err := c.destinationAccountMissing(ctx, destinationATA)
	if err != nil {
		return nil, err
	}
	if needsProvisioning {
		provisioning, err := c.provisionInstructions(ctx, destinationATA, params.Destination, params.Mint.Address)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, provisioning...)
	}

	instructions = append(instructions, token.NewTransferCheckedInstruction(
		params.AmountBaseUnits,
		params.Mint.Decimals,
		senderATA,
		params.Mint.Address,
		destinationATA,
		params.Sender,
		nil,
	).Build())

	if c.metrics != nil {
		c.metrics.RecordInstructionCount(params.Mint.Symbol, len(instructions))
	}
	c.logger.DebugContext(ctx, "composed relay transfer instructions",
		"reference_id", params.ReferenceID,
		"instruction_count", len(instructions),
		"destination_provisioned", needsProvisioning,
	)

	return instructions, nil
}

// destinationAccountMissing reports whether the destination token account
// needs to be created. A successful read means the account exists and
// provisioning is skipped.
func (c *Composer) destinationAccountMissing(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := c.rpc.GetAccountInfo(ctx, account)
	c.record("GetAccountInfo", err)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return true, nil
	}
	return false, fmt.Errorf("%w: account lookup failed: %v", ErrChainUnavailable, err)
}

// provisionInstructions returns the create + initialize pair for the
// destination token account: rent-exempt, sized for an SPL token account,
// funded by the relay.
func (c *Composer) provisionInstructions(ctx context.Context, account, owner, mintAddress solana.PublicKey) ([]solana.Instruction, error) {
	rent, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, tokenAccountSize, rpc.CommitmentConfirmed)
	c.record("GetMinimumBalanceForRentExemption", err)
	if err != nil {
		return nil, fmt.Errorf("%w: rent lookup failed: %v", ErrChainUnavailable, err)
	}

	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			rent,
			tokenAccountSize,
			token.ProgramID,
			c.relayWallet,
			account,
		).Build(),
		token.NewInitializeAccountInstruction(
			account,
			mintAddress,
			owner,
			solana.SysVarRentPubkey,
		).Build(),
	}, nil
}

// newMemoInstruction builds a data-only instruction addressed to the SPL
// memo program. It references no accounts; the payload is the raw
// correlation tag bytes.
func newMemoInstruction(data []byte) solana.Instruction {
	return solana.NewInstruction(MemoProgramIDSPL, []*solana.AccountMeta{}, data)
}

func (c *Composer) record(method string, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status)
}
