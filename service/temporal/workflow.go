package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ReconcileSweepWorkflow scans the relay wallet's recent chain history and
// replays anything the external indexer failed to deliver through the
// status reconciler. It runs on a Temporal schedule at a fixed interval.
//
// The workflow performs these steps:
// 1. Fetch signatures of already-confirmed transfers (GetConfirmedSignatures activity)
// 2. Poll the relay wallet for confirmed transactions (PollRelayWallet activity)
// 3. Feed unseen transactions through the reconciler (ReconcileTransactions activity)
//
// Because the reconciler is idempotent, sweeping a transaction the indexer
// already delivered is harmless.
func ReconcileSweepWorkflow(ctx workflow.Context, input ReconcileSweepInput) (*ReconcileSweepResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ReconcileSweepWorkflow started", "address", input.RelayWalletAddress)

	result := &ReconcileSweepResult{
		RelayWalletAddress: input.RelayWalletAddress,
		SweepTime:          workflow.Now(ctx),
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 1000
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Get signatures of transfers already confirmed.
	since := workflow.Now(ctx).Add(-24 * time.Hour)
	var sigsResult *GetConfirmedSignaturesResult
	err := workflow.ExecuteActivity(ctx, a.GetConfirmedSignatures, GetConfirmedSignaturesInput{Since: since}).Get(ctx, &sigsResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to get confirmed signatures: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to get confirmed signatures: %w", err)
	}
	logger.Info("got confirmed signatures", "count", len(sigsResult.Signatures))

	// Step 2: Poll the relay wallet for confirmed transactions.
	var pollResult *PollRelayWalletResult
	err = workflow.ExecuteActivity(ctx, a.PollRelayWallet, PollRelayWalletInput{
		Address:            input.RelayWalletAddress,
		Limit:              limit,
		ExistingSignatures: sigsResult.Signatures,
	}).Get(ctx, &pollResult)
	if err != nil {
		logger.Error("failed to poll relay wallet", "address", input.RelayWalletAddress, "error", err)
		errMsg := fmt.Sprintf("failed to poll relay wallet: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to poll relay wallet: %w", err)
	}

	result.TransactionCount = len(pollResult.Transactions)
	logger.Info("polled relay wallet",
		"address", input.RelayWalletAddress,
		"transaction_count", result.TransactionCount,
	)

	if len(pollResult.Transactions) == 0 {
		logger.Info("no unseen transactions, sweep complete", "address", input.RelayWalletAddress)
		return result, nil
	}

	// Step 3: Feed unseen transactions through the reconciler.
	var reconcileResult *ReconcileTransactionsResult
	err = workflow.ExecuteActivity(ctx, a.ReconcileTransactions, ReconcileTransactionsInput{
		Transactions: pollResult.Transactions,
	}).Get(ctx, &reconcileResult)
	if err != nil {
		logger.Error("failed to reconcile swept transactions",
			"address", input.RelayWalletAddress,
			"error", err,
		)
		errMsg := fmt.Sprintf("failed to reconcile swept transactions: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to reconcile swept transactions: %w", err)
	}

	result.Reconciled = reconcileResult.Processed

	logger.Info("ReconcileSweepWorkflow completed successfully",
		"address", input.RelayWalletAddress,
		"transaction_count", result.TransactionCount,
		"reconciled", reconcileResult.Processed,
		"failed", reconcileResult.Failed,
	)

	return result, nil
}
