package signer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"

	solanasvc "github.com/brojonat/gasless/service/solana"
)

// LocalSigner implements Signer with an in-process keypair. Production
// deployments can swap in a hardware- or service-backed implementation
// behind the same interface; the engine does not care.
type LocalSigner struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
	rpc        solanasvc.RPCClient
	logger     *slog.Logger

	// The underlying key is a single identity; serialize signs so two
	// concurrent transfers cannot interleave signature application.
	mu sync.Mutex
}

// NewLocalSigner creates a LocalSigner from a base58-encoded private key.
func NewLocalSigner(privateKeyBase58 string, rpcClient solanasvc.RPCClient, logger *slog.Logger) (*LocalSigner, error) {
	keyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(keyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(keyBytes))
	}
	privateKey := solana.PrivateKey(keyBytes)
	return &LocalSigner{
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
		rpc:        rpcClient,
		logger:     logger,
	}, nil
}

// Build assembles an unsigned transaction from the ordered instruction
// list: current blockhash, given fee payer, no signatures.
func (s *LocalSigner) Build(ctx context.Context, instructions []solana.Instruction, feePayer solana.PublicKey) (*solana.Transaction, error) {
	blockhash, err := s.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", solanasvc.ErrNoRecentBlockhash, err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

// Sign applies the relay's signature. Other required signers (the sender)
// are left unsigned; PartialSign tolerates their absence.
func (s *LocalSigner) Sign(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.publicKey) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "signed transaction as fee payer",
		"fee_payer", s.publicKey.String(),
	)
	return tx, nil
}

// PublicKey returns the relay wallet address.
func (s *LocalSigner) PublicKey() solana.PublicKey {
	return s.publicKey
}
