package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/gasless/service/metrics"
	natspkg "github.com/brojonat/gasless/service/nats"
	"github.com/brojonat/gasless/service/solana"
)

// ReconcileSweepInput contains the input parameters for a reconcile sweep.
type ReconcileSweepInput struct {
	RelayWalletAddress string `json:"relay_wallet_address"`
	Limit              int    `json:"limit"`
}

// ReconcileSweepResult contains the result of a reconcile sweep.
type ReconcileSweepResult struct {
	RelayWalletAddress string    `json:"relay_wallet_address"`
	TransactionCount   int       `json:"transaction_count"`
	Reconciled         int       `json:"reconciled"`
	SweepTime          time.Time `json:"sweep_time"`
	Error              *string   `json:"error,omitempty"`
}

// GetConfirmedSignaturesInput contains parameters for the GetConfirmedSignatures activity.
type GetConfirmedSignaturesInput struct {
	Since time.Time `json:"since"`
}

// GetConfirmedSignaturesResult contains the result of the GetConfirmedSignatures activity.
type GetConfirmedSignaturesResult struct {
	Signatures []string `json:"signatures"`
}

// PollRelayWalletInput contains parameters for the PollRelayWallet activity.
type PollRelayWalletInput struct {
	Address            string   `json:"address"`
	Limit              int      `json:"limit"`
	ExistingSignatures []string `json:"existing_signatures"`
}

// PollRelayWalletResult contains the result of polling the relay wallet.
type PollRelayWalletResult struct {
	Transactions []*solana.ConfirmedTransaction `json:"transactions"`
}

// ReconcileTransactionsInput contains parameters for the ReconcileTransactions activity.
type ReconcileTransactionsInput struct {
	Transactions []*solana.ConfirmedTransaction `json:"transactions"`
}

// ReconcileTransactionsResult contains the result of reconciling swept transactions.
type ReconcileTransactionsResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	ListConfirmedSignatures(ctx context.Context, since time.Time) ([]string, error)
}

// PollerInterface defines the Solana operations needed by activities.
// This allows for easy mocking in tests.
type PollerInterface interface {
	GetConfirmedTransactionsSince(ctx context.Context, params solana.PollParams) ([]*solana.ConfirmedTransaction, error)
}

// ReconcilerInterface processes one transaction notification; the sweep
// reuses the same idempotent path the NATS consumer feeds.
type ReconcilerInterface interface {
	HandleTransaction(ctx context.Context, txn natspkg.EnrichedTransaction) error
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	store      StoreInterface
	poller     PollerInterface
	reconciler ReconcilerInterface
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	store StoreInterface,
	poller PollerInterface,
	reconciler ReconcilerInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:      store,
		poller:     poller,
		reconciler: reconciler,
		metrics:    m,
		logger:     logger,
	}
}

// GetConfirmedSignatures fetches signatures of already-confirmed transfers
// so the sweep can skip chain history it has processed before.
func (a *Activities) GetConfirmedSignatures(ctx context.Context, input GetConfirmedSignaturesInput) (*GetConfirmedSignaturesResult, error) {
	start := time.Now()
	defer a.recordActivity("GetConfirmedSignatures", start)

	signatures, err := a.store.ListConfirmedSignatures(ctx, input.Since)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list confirmed signatures", "error", err)
		return nil, fmt.Errorf("failed to list confirmed signatures: %w", err)
	}

	a.logger.DebugContext(ctx, "listed confirmed signatures", "count", len(signatures))
	return &GetConfirmedSignaturesResult{Signatures: signatures}, nil
}

// PollRelayWallet fetches recent confirmed transactions that touched the
// relay wallet.
func (a *Activities) PollRelayWallet(ctx context.Context, input PollRelayWalletInput) (*PollRelayWalletResult, error) {
	start := time.Now()
	defer a.recordActivity("PollRelayWallet", start)

	address, err := solanago.PublicKeyFromBase58(input.Address)
	if err != nil {
		a.logger.ErrorContext(ctx, "invalid relay wallet address",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("invalid relay wallet address: %w", err)
	}

	transactions, err := a.poller.GetConfirmedTransactionsSince(ctx, solana.PollParams{
		Address:            address,
		Limit:              input.Limit,
		ExistingSignatures: input.ExistingSignatures,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to poll relay wallet: %w", err)
	}

	a.logger.InfoContext(ctx, "polled relay wallet",
		"address", input.Address,
		"transaction_count", len(transactions),
	)
	return &PollRelayWalletResult{Transactions: transactions}, nil
}

// ReconcileTransactions feeds swept transactions through the reconciler.
// Individual failures are counted, not fatal; the next sweep retries them.
func (a *Activities) ReconcileTransactions(ctx context.Context, input ReconcileTransactionsInput) (*ReconcileTransactionsResult, error) {
	start := time.Now()
	defer a.recordActivity("ReconcileTransactions", start)

	result := &ReconcileTransactionsResult{}
	for _, txn := range input.Transactions {
		if err := a.reconciler.HandleTransaction(ctx, toEnrichedTransaction(txn)); err != nil {
			a.logger.ErrorContext(ctx, "failed to reconcile swept transaction",
				"signature", txn.Signature,
				"error", err,
			)
			result.Failed++
			continue
		}
		result.Processed++
	}

	a.logger.InfoContext(ctx, "reconciled swept transactions",
		"processed", result.Processed,
		"failed", result.Failed,
	)
	return result, nil
}

// toEnrichedTransaction converts a swept chain transaction into the same
// notification shape the external indexer delivers.
func toEnrichedTransaction(txn *solana.ConfirmedTransaction) natspkg.EnrichedTransaction {
	instructions := make([]natspkg.Instruction, len(txn.Instructions))
	for i, instruction := range txn.Instructions {
		instructions[i] = natspkg.Instruction{
			ProgramID: instruction.ProgramID,
			Accounts:  instruction.Accounts,
			Data:      instruction.Data,
		}
	}

	var timestamp int64
	if !txn.BlockTime.IsZero() {
		timestamp = txn.BlockTime.Unix()
	}

	return natspkg.EnrichedTransaction{
		Signature:    txn.Signature,
		Slot:         txn.Slot,
		Timestamp:    timestamp,
		Instructions: instructions,
	}
}

func (a *Activities) recordActivity(activity string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordSweepActivityDuration(activity, time.Since(start).Seconds())
}
