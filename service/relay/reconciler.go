package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr-tron/base58"

	"github.com/brojonat/gasless/service/metrics"
	natssvc "github.com/brojonat/gasless/service/nats"
	solanasvc "github.com/brojonat/gasless/service/solana"
)

// ConfirmationPublisher announces a newly confirmed transfer to downstream
// consumers. Implemented by nats.ConfirmationPublisher.
type ConfirmationPublisher interface {
	PublishTransferConfirmed(ctx context.Context, event natssvc.TransferConfirmedEvent) error
}

// Reconciler matches confirmed on-chain transactions against pending
// transfers by the reference id carried in the transaction's memo
// instruction. Processing is idempotent: redelivering a transaction
// that already confirmed its transfer is a no-op.
type Reconciler struct {
	store     Store
	publisher ConfirmationPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewReconciler creates a reconciler. publisher may be nil, in which case
// confirmations are recorded but not announced.
func NewReconciler(store Store, publisher ConfirmationPublisher, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// HandleTransaction inspects a confirmed transaction for a memo-borne
// reference id and, when it matches a known transfer, appends CONFIRMED
// and records the signature, slot, and inclusion time.
//
// Transactions without a decodable memo and memos that match no transfer
// are logged and dropped; they are not errors. Only store and publish
// failures surface so the caller can redeliver.
func (r *Reconciler) HandleTransaction(ctx context.Context, txn natssvc.EnrichedTransaction) error {
	referenceID, ok := extractReferenceID(txn)
	if !ok {
		r.logger.DebugContext(ctx, "transaction carries no memo reference, skipping",
			"signature", txn.Signature,
		)
		r.record("no_memo")
		return nil
	}

	transfer, err := r.store.GetTransferByReferenceID(ctx, referenceID)
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			r.logger.DebugContext(ctx, "memo reference matches no transfer, skipping",
				"signature", txn.Signature,
				"reference_id", referenceID,
			)
			r.record("unknown_reference")
			return nil
		}
		r.record("store_error")
		return fmt.Errorf("failed to look up transfer by reference id: %w", err)
	}

	var includedAt time.Time
	if txn.Timestamp != 0 {
		includedAt = time.Unix(txn.Timestamp, 0).UTC()
	}

	confirmed, err := r.store.ConfirmTransfer(ctx, ConfirmTransferParams{
		ReferenceID:       referenceID,
		Signature:         txn.Signature,
		Slot:              txn.Slot,
		TimestampIncluded: includedAt,
	})
	if err != nil {
		r.record("store_error")
		return fmt.Errorf("failed to confirm transfer %s: %w", transfer.ID, err)
	}
	if !confirmed {
		// Redelivery of an already-confirmed transfer.
		r.logger.DebugContext(ctx, "transfer already confirmed, skipping",
			"transfer_id", transfer.ID,
			"signature", txn.Signature,
		)
		r.record("duplicate")
		return nil
	}

	r.record("confirmed")
	r.logger.InfoContext(ctx, "confirmed relayed transfer",
		"transfer_id", transfer.ID,
		"reference_id", referenceID,
		"signature", txn.Signature,
		"slot", txn.Slot,
	)

	if r.publisher != nil {
		event := natssvc.TransferConfirmedEvent{
			TransferID:  transfer.ID,
			ReferenceID: referenceID,
			Signature:   txn.Signature,
			Slot:        txn.Slot,
			MintSymbol:  transfer.MintSymbol,
			Amount:      transfer.Amount,
			ConfirmedAt: time.Now().UTC(),
		}
		if err := r.publisher.PublishTransferConfirmed(ctx, event); err != nil {
			// The confirmation is durable; the announcement is best effort.
			r.logger.ErrorContext(ctx, "failed to publish transfer confirmation",
				"transfer_id", transfer.ID,
				"error", err,
			)
		}
	}

	return nil
}

var memoProgramIDs = map[string]bool{
	solanasvc.MemoProgramIDSPL.String():    true,
	solanasvc.MemoProgramIDLegacy.String(): true,
}

// extractReferenceID scans the transaction's instructions for a memo
// program invocation and returns its decoded payload. The first decodable
// memo wins.
func extractReferenceID(txn natssvc.EnrichedTransaction) (string, bool) {
	for _, instruction := range txn.Instructions {
		if !memoProgramIDs[instruction.ProgramID] {
			continue
		}
		data, err := base58.Decode(instruction.Data)
		if err != nil || len(data) == 0 {
			continue
		}
		return string(data), true
	}
	return "", false
}

func (r *Reconciler) record(outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordReconcileOutcome(outcome)
}
