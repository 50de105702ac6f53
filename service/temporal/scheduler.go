package temporal

import (
	"context"
	"time"
)

// Scheduler manages the Temporal schedule driving the reconcile sweep.
type Scheduler interface {
	// UpsertSweepSchedule creates or updates the schedule that triggers
	// ReconcileSweepWorkflow for the relay wallet at the given interval.
	UpsertSweepSchedule(ctx context.Context, relayWalletAddress string, interval time.Duration) error

	// DeleteSweepSchedule deletes the sweep schedule, stopping periodic
	// reconciliation.
	DeleteSweepSchedule(ctx context.Context, relayWalletAddress string) error
}

// scheduleID returns the Temporal schedule ID for the relay wallet sweep.
func scheduleID(relayWalletAddress string) string {
	return "reconcile-sweep-" + relayWalletAddress
}
