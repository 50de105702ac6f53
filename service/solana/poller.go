package solana

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/gasless/service/metrics"
)

// Poller fetches confirmed transactions that touched the relay wallet.
// It backs the reconcile sweep: anything the external indexer failed to
// deliver is re-derived from chain history and handed to the reconciler
// in the same notification shape.
type Poller struct {
	rpc     RPCClient
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPoller creates a new Poller.
// If metrics is nil, no metrics will be recorded.
func NewPoller(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		rpc:     rpcClient,
		metrics: m,
		logger:  logger,
	}
}

// PollParams contains parameters for fetching confirmed transactions.
type PollParams struct {
	Address            solana.PublicKey
	LastSignature      *solana.Signature
	Limit              int
	ExistingSignatures []string
}

// GetConfirmedTransactionsSince returns decoded confirmed transactions for
// the address, newest first, stopping at LastSignature when set. Failed
// transactions and signatures listed in ExistingSignatures are skipped.
func (p *Poller) GetConfirmedTransactionsSince(ctx context.Context, params PollParams) ([]*ConfirmedTransaction, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &params.Limit,
	}
	if params.LastSignature != nil {
		opts.Until = *params.LastSignature
	}

	start := time.Now()
	signatures, err := p.rpc.GetSignaturesForAddress(ctx, params.Address, opts)
	p.record("GetSignaturesForAddress", err, time.Since(start))
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to get signatures",
			"address", params.Address.String(),
			"error", err,
		)
		return nil, err
	}

	p.logger.DebugContext(ctx, "fetched transaction signatures",
		"address", params.Address.String(),
		"count", len(signatures),
	)

	// Lookup map for signatures the reconciler has already seen.
	existing := make(map[string]struct{}, len(params.ExistingSignatures))
	for _, sig := range params.ExistingSignatures {
		existing[sig] = struct{}{}
	}

	transactions := make([]*ConfirmedTransaction, 0, len(signatures))
	for _, sig := range signatures {
		if _, seen := existing[sig.Signature.String()]; seen {
			continue
		}
		// Failed transactions never confirm a transfer.
		if sig.Err != nil {
			continue
		}

		result, err := p.getTransactionWithRetry(ctx, sig.Signature)
		if err != nil {
			// Transaction might be pruned or temporarily unavailable;
			// the next sweep will pick it up.
			p.logger.WarnContext(ctx, "failed to get transaction details after retries, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			continue
		}

		txn, err := decodeConfirmedTransaction(sig, result)
		if err != nil {
			p.logger.WarnContext(ctx, "failed to decode transaction, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			continue
		}
		transactions = append(transactions, txn)
	}

	p.logger.InfoContext(ctx, "fetched and decoded confirmed transactions",
		"address", params.Address.String(),
		"count", len(transactions),
	)

	return transactions, nil
}

// getTransactionWithRetry fetches full transaction details with exponential
// backoff. Public RPC endpoints rate limit aggressively; 429s get a longer
// backoff than other transient errors.
func (p *Poller) getTransactionWithRetry(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	const maxAttempts = 3

	var result *rpc.GetTransactionResult
	var err error
	for attempt := range maxAttempts {
		opts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		start := time.Now()
		result, err = p.rpc.GetTransaction(ctx, signature, opts)
		p.record("GetTransaction", err, time.Since(start))
		if err == nil {
			return result, nil
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if strings.Contains(err.Error(), "429") {
			backoff = time.Duration(2<<uint(attempt)) * time.Second
		}
		p.logger.WarnContext(ctx, "failed to get transaction, backing off",
			"signature", signature.String(),
			"attempt", attempt+1,
			"backoff_seconds", backoff.Seconds(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, err
}

func (p *Poller) record(method string, err error, duration time.Duration) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordRPCCall(method, status)
	p.metrics.RecordRPCCallDuration(method, duration.Seconds())
}
