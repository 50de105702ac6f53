package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/brojonat/gasless/service/metrics"
	"github.com/brojonat/gasless/service/mint"
	"github.com/brojonat/gasless/service/signer"
	solanasvc "github.com/brojonat/gasless/service/solana"
)

// InstructionComposer builds the ordered instruction list for a relayed
// transfer. Implemented by solana.Composer; defined here so engine tests
// can substitute a fake.
type InstructionComposer interface {
	Compose(ctx context.Context, params solanasvc.ComposeParams) ([]solana.Instruction, error)
}

// FeeEstimator quotes the network cost of a transfer in lamports.
// Implemented by solana.FeeOracle.
type FeeEstimator interface {
	EstimateFee(ctx context.Context, mintSymbol string) (uint64, error)
}

// Engine orchestrates composer, fee oracle, signer, and store to turn a
// transfer request into a persisted, relay-signed transfer record. Each
// call either runs to completion or fails; there are no retries at this
// layer.
type Engine struct {
	registry *mint.Registry
	composer InstructionComposer
	oracle   FeeEstimator
	signer   signer.Signer
	store    Store

	relayFeeBaseUnits uint64
	metrics           *metrics.Metrics
	logger            *slog.Logger
}

// NewEngine creates a transfer engine. relayFeeBaseUnits is the fixed
// relay charge collected per transfer, denominated in the transferred
// token. If metrics is nil, no metrics will be recorded.
func NewEngine(
	registry *mint.Registry,
	composer InstructionComposer,
	oracle FeeEstimator,
	sgn signer.Signer,
	store Store,
	relayFeeBaseUnits uint64,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		registry:          registry,
		composer:          composer,
		oracle:            oracle,
		signer:            sgn,
		store:             store,
		relayFeeBaseUnits: relayFeeBaseUnits,
		metrics:           m,
		logger:            logger,
	}
}

type feeEstimate struct {
	lamports uint64
	err      error
}

// CreateTransfer validates the request, composes and signs the transfer
// transaction, and persists the resulting record in status INIT.
//
// On a persistence failure the signed transfer is returned alongside an
// error wrapping ErrPersistence: the caller holds valid signed bytes with
// no durable record and must decide what to do with them.
func (e *Engine) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	sender, err := solana.PublicKeyFromBase58(req.Sender)
	if err != nil {
		return nil, validationErr("sender", "malformed address: %v", err)
	}
	destination, err := solana.PublicKeyFromBase58(req.Destination)
	if err != nil {
		return nil, validationErr("destination", "malformed address: %v", err)
	}

	m, err := e.registry.Resolve(req.MintSymbol)
	if err != nil {
		return nil, err
	}

	amountBaseUnits, err := parseBaseUnits(req.Amount, m.Decimals)
	if err != nil {
		return nil, err
	}

	transferID := uuid.New().String()
	referenceID := uuid.New().String()

	// The fee estimate and the composition are independent chain reads;
	// run the estimate concurrently and join before signing.
	estimateCh := make(chan feeEstimate, 1)
	go func() {
		lamports, err := e.oracle.EstimateFee(ctx, req.MintSymbol)
		estimateCh <- feeEstimate{lamports: lamports, err: err}
	}()

	instructions, err := e.composer.Compose(ctx, solanasvc.ComposeParams{
		Sender:            sender,
		Destination:       destination,
		AmountBaseUnits:   amountBaseUnits,
		Mint:              m,
		RelayFeeBaseUnits: e.relayFeeBaseUnits,
		ReferenceID:       referenceID,
	})
	if err != nil {
		<-estimateCh
		e.recordCreate(req.MintSymbol, "compose_error")
		return nil, fmt.Errorf("failed to compose instructions: %w", err)
	}

	estimate := <-estimateCh
	if estimate.err != nil {
		e.recordCreate(req.MintSymbol, "estimate_error")
		return nil, fmt.Errorf("failed to estimate fee: %w", estimate.err)
	}

	feePayer := e.signer.PublicKey()
	tx, err := e.signer.Build(ctx, instructions, feePayer)
	if err != nil {
		e.recordCreate(req.MintSymbol, "build_error")
		return nil, fmt.Errorf("%w: build: %v", ErrSigner, err)
	}

	unsignedBytes, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize unsigned transaction: %w", err)
	}

	signedTx, err := e.signer.Sign(ctx, tx)
	if err != nil {
		e.recordCreate(req.MintSymbol, "sign_error")
		return nil, fmt.Errorf("%w: sign: %v", ErrSigner, err)
	}
	signedBytes, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signed transaction: %w", err)
	}

	now := time.Now().UTC()
	transfer := &Transfer{
		ID:                       transferID,
		ReferenceID:              referenceID,
		Sender:                   req.Sender,
		Destination:              req.Destination,
		Amount:                   amountBaseUnits,
		Mint:                     m.Address.String(),
		MintSymbol:               req.MintSymbol,
		FeePayer:                 feePayer.String(),
		UnsignedTransactionBytes: unsignedBytes,
		SignedTransactionBytes:   signedBytes,
		EstimatedFeeLamports:     estimate.lamports,
		FeeBaseUnits:             e.relayFeeBaseUnits,
		Statuses:                 []StatusEntry{{Status: StatusInit, CreatedAt: now}},
		CreatedAt:                now,
	}

	if err := e.store.CreateTransfer(ctx, transfer); err != nil {
		e.recordCreate(req.MintSymbol, "persist_error")
		e.logger.ErrorContext(ctx, "signed transfer could not be persisted",
			"transfer_id", transferID,
			"reference_id", referenceID,
			"error", err,
		)
		return transfer, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	e.recordCreate(req.MintSymbol, "success")
	e.logger.InfoContext(ctx, "created relayed transfer",
		"transfer_id", transferID,
		"reference_id", referenceID,
		"mint_symbol", req.MintSymbol,
		"amount_base_units", amountBaseUnits,
		"estimated_fee_lamports", estimate.lamports,
	)

	return transfer, nil
}

// GetTransfer is a pure read-through to the store; no chain interaction.
func (e *Engine) GetTransfer(ctx context.Context, id string) (*Transfer, error) {
	return e.store.GetTransfer(ctx, id)
}

// ListTransfers returns transfers ordered newest first.
func (e *Engine) ListTransfers(ctx context.Context, limit, offset int32) ([]*Transfer, error) {
	return e.store.ListTransfers(ctx, limit, offset)
}

func (e *Engine) recordCreate(mintSymbol, status string) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordTransferCreated(mintSymbol, status)
}
