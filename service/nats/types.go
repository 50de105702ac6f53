package nats

import (
	"time"
)

// EnrichedTransaction is the externally delivered description of a
// confirmed on-chain transaction, pushed by the chain indexer on the
// indexer subject. It is the sole trigger for status reconciliation.
// The instruction data is untrusted; the reconciler decodes it
// defensively and discards anything that does not correlate.
type EnrichedTransaction struct {
	Signature    string        `json:"signature"`
	Slot         uint64        `json:"slot"`
	Timestamp    int64         `json:"timestamp"` // unix seconds of block inclusion
	Instructions []Instruction `json:"instructions"`
}

// Instruction is a single decoded instruction of an enriched transaction.
type Instruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts,omitempty"`
	Data      string   `json:"data"` // base58 encoded
}

// TransferConfirmedEvent is published to "transfers.confirmed.{transfer_id}"
// when a transfer first reaches CONFIRMED.
type TransferConfirmedEvent struct {
	TransferID  string    `json:"transfer_id"`
	ReferenceID string    `json:"reference_id"`
	Signature   string    `json:"signature"`
	Slot        uint64    `json:"slot"`
	MintSymbol  string    `json:"mint_symbol"`
	Amount      uint64    `json:"amount"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	PublishedAt time.Time `json:"published_at"`
}
