package relay

import (
	"context"
	"time"
)

// Status is a transfer lifecycle state. The history of statuses is the
// source of truth; the current status is always derived from the most
// recent entry, never stored as a bare mutable field.
type Status string

const (
	// StatusInit is the creation state: composed, signed by the relay,
	// not yet observed on chain.
	StatusInit Status = "INIT"

	// StatusConfirmed is terminal: the transaction was observed confirmed
	// on chain and correlated back via the reference id.
	StatusConfirmed Status = "CONFIRMED"
)

// StatusEntry is one row of a transfer's append-only status history.
type StatusEntry struct {
	Status    Status
	CreatedAt time.Time
}

// Transfer is a relayed SPL transfer record.
//
// ReferenceID is embedded in the transaction's memo instruction and is the
// sole mechanism for correlating an on-chain confirmation back to this
// record. It is generated once at composition time and never changes.
//
// FeeBaseUnits is the relay's fixed charge to the sender, denominated in
// the transferred token and collected on-chain by the relay-fee
// instruction. EstimatedFeeLamports is the fee oracle's advisory quote of
// the network cost; the two are independent numbers.
type Transfer struct {
	ID          string
	ReferenceID string

	Sender      string
	Destination string
	Amount      uint64 // base units
	Mint        string // mint address
	MintSymbol  string

	FeePayer                 string
	UnsignedTransactionBytes []byte
	SignedTransactionBytes   []byte

	EstimatedFeeLamports uint64
	FeeBaseUnits         uint64

	// Populated only after on-chain confirmation.
	Signature         *string
	Slot              *uint64
	TimestampIncluded *time.Time

	Statuses  []StatusEntry
	CreatedAt time.Time
}

// CurrentStatus returns the most recent status history entry.
func (t *Transfer) CurrentStatus() Status {
	if len(t.Statuses) == 0 {
		return StatusInit
	}
	return t.Statuses[len(t.Statuses)-1].Status
}

// TransferRequest is a caller-supplied request for a relayed transfer.
// Amount is a decimal string in human units; it is validated and converted
// to base units before any composition occurs.
type TransferRequest struct {
	Sender      string
	Destination string
	Amount      string
	MintSymbol  string
}

// ConfirmTransferParams carries the confirmation details extracted from an
// indexer notification.
type ConfirmTransferParams struct {
	ReferenceID       string
	Signature         string
	Slot              uint64
	TimestampIncluded time.Time
}

// Store is the durable record of transfers and their status history.
// All operations must be atomic with respect to concurrent callers on the
// same record; ConfirmTransfer in particular must reject a duplicate
// CONFIRMED append rather than racing.
type Store interface {
	CreateTransfer(ctx context.Context, transfer *Transfer) error
	GetTransfer(ctx context.Context, id string) (*Transfer, error)
	GetTransferByReferenceID(ctx context.Context, referenceID string) (*Transfer, error)
	ListTransfers(ctx context.Context, limit, offset int32) ([]*Transfer, error)
	AppendStatus(ctx context.Context, id string, status Status, timestamp time.Time) (bool, error)
	SetConfirmationDetails(ctx context.Context, id string, signature string, slot uint64, timestamp time.Time) error

	// ConfirmTransfer atomically records confirmation details and appends
	// CONFIRMED. It returns false when the transfer was already confirmed.
	ConfirmTransfer(ctx context.Context, params ConfirmTransferParams) (bool, error)
}
