package solana

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Well-known Solana program IDs
var (
	// MemoProgramIDSPL is the SPL Memo program (most common)
	MemoProgramIDSPL = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

	// MemoProgramIDLegacy is the legacy memo program (v1)
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")

	// BurnAddress is a well-known placeholder key used when building
	// representative transactions for fee simulation. Nobody owns it.
	BurnAddress = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
)

// Chain availability errors. All of them mean the estimate or composition
// could not be completed against the current chain state; callers surface
// them without retrying.
var (
	ErrChainUnavailable      = errors.New("solana chain unavailable")
	ErrNoPriorityFeeSamples  = errors.New("no recent prioritization fee samples")
	ErrNoFeeForMessage       = errors.New("chain returned no fee for message")
	ErrNoRecentBlockhash     = errors.New("no recent blockhash available")
)

const (
	// computeUnitLimit is the compute budget requested for a relayed
	// transfer and for the representative fee-simulation transaction.
	computeUnitLimit = uint32(200_000)

	// tokenAccountSize is the byte length of an SPL token account,
	// used to size rent-exempt destination account provisioning.
	tokenAccountSize = uint64(165)

	// microLamportsPerLamport converts compute-unit prices (micro-lamports
	// per unit) into lamports.
	microLamportsPerLamport = uint64(1_000_000)
)

// ConfirmedTransaction is a decoded, confirmed on-chain transaction as seen
// by the reconcile sweep poller. It carries the full instruction list so it
// can be handed to the status reconciler in the same shape the external
// indexer delivers.
type ConfirmedTransaction struct {
	Signature    string
	Slot         uint64
	BlockTime    time.Time
	Instructions []DecodedInstruction
}

// DecodedInstruction is a single instruction of a confirmed transaction.
// Data is base58 encoded, matching the indexer notification wire format.
type DecodedInstruction struct {
	ProgramID string
	Accounts  []string
	Data      string
}
