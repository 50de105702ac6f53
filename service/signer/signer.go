// Package signer defines the relay's signing capability as an opaque
// contract. The transfer engine never inspects key material; it only asks
// for an unsigned transaction to be built and for the relay's portion of
// the signatures to be applied. The sender completes their own signature
// after receiving the transaction bytes back.
package signer

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Signer is the embedded wallet's signing contract.
//
// Build attaches a current blockhash and sets the fee payer; it fails when
// the chain has no recent blockhash available. Sign applies only the
// relay's own signature and is safe to retry on transient failure.
// Implementations that serialize signing per key must do so internally;
// callers do not assume parallel signs for the same identity complete
// independently.
type Signer interface {
	Build(ctx context.Context, instructions []solana.Instruction, feePayer solana.PublicKey) (*solana.Transaction, error)
	Sign(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)

	// PublicKey returns the relay identity whose key this signer holds.
	PublicKey() solana.PublicKey
}
