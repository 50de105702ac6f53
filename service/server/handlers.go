package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/gasless/service/mint"
	"github.com/brojonat/gasless/service/price"
	"github.com/brojonat/gasless/service/relay"
	solanasvc "github.com/brojonat/gasless/service/solana"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a transfer request
	defaultListLimit   = 50
	maxListLimit       = 500

	lamportsPerSOL = 1_000_000_000
)

// TransferService is the engine surface the HTTP handlers depend on.
type TransferService interface {
	CreateTransfer(ctx context.Context, req relay.TransferRequest) (*relay.Transfer, error)
	GetTransfer(ctx context.Context, id string) (*relay.Transfer, error)
	ListTransfers(ctx context.Context, limit, offset int32) ([]*relay.Transfer, error)
}

// FeeQuoter quotes the network cost of a transfer in lamports.
type FeeQuoter interface {
	EstimateFee(ctx context.Context, mintSymbol string) (uint64, error)
}

// createTransferRequest is the request body for POST /api/v1/transfers.
type createTransferRequest struct {
	Sender      string `json:"sender"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	MintSymbol  string `json:"mint_symbol"`
}

// statusEntryResponse is one status history entry in API responses.
type statusEntryResponse struct {
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// transferResponse is the public view of a transfer. Transaction bytes
// are never exposed here; the signed payload goes out exactly once, on
// the create response.
type transferResponse struct {
	ID                   string                `json:"id"`
	ReferenceID          string                `json:"reference_id"`
	Sender               string                `json:"sender"`
	Destination          string                `json:"destination"`
	Amount               uint64                `json:"amount"`
	Mint                 string                `json:"mint"`
	MintSymbol           string                `json:"mint_symbol"`
	FeePayer             string                `json:"fee_payer"`
	EstimatedFeeLamports uint64                `json:"estimated_fee_lamports"`
	FeeBaseUnits         uint64                `json:"fee_base_units"`
	Status               string                `json:"status"`
	Statuses             []statusEntryResponse `json:"statuses"`
	Signature            *string               `json:"signature,omitempty"`
	Slot                 *uint64               `json:"slot,omitempty"`
	TimestampIncluded    *time.Time            `json:"timestamp_included,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
}

// createdTransferResponse is returned only from the create endpoint. It
// carries the relay-signed transaction, base64 encoded, for the sender
// to countersign and submit.
type createdTransferResponse struct {
	transferResponse
	SignedTransaction string `json:"signed_transaction"`
}

func transferToResponse(t *relay.Transfer) transferResponse {
	statuses := make([]statusEntryResponse, len(t.Statuses))
	for i, entry := range t.Statuses {
		statuses[i] = statusEntryResponse{
			Status:    string(entry.Status),
			CreatedAt: entry.CreatedAt,
		}
	}
	return transferResponse{
		ID:                   t.ID,
		ReferenceID:          t.ReferenceID,
		Sender:               t.Sender,
		Destination:          t.Destination,
		Amount:               t.Amount,
		Mint:                 t.Mint,
		MintSymbol:           t.MintSymbol,
		FeePayer:             t.FeePayer,
		EstimatedFeeLamports: t.EstimatedFeeLamports,
		FeeBaseUnits:         t.FeeBaseUnits,
		Status:               string(t.CurrentStatus()),
		Statuses:             statuses,
		Signature:            t.Signature,
		Slot:                 t.Slot,
		TimestampIncluded:    t.TimestampIncluded,
		CreatedAt:            t.CreatedAt,
	}
}

func transferToCreatedResponse(t *relay.Transfer) createdTransferResponse {
	return createdTransferResponse{
		transferResponse:  transferToResponse(t),
		SignedTransaction: base64.StdEncoding.EncodeToString(t.SignedTransactionBytes),
	}
}

// handleCreateTransfer returns a handler that composes, signs, and
// persists a relayed transfer.
// POST /api/v1/transfers
func handleCreateTransfer(engine TransferService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req createTransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		transfer, err := engine.CreateTransfer(r.Context(), relay.TransferRequest{
			Sender:      req.Sender,
			Destination: req.Destination,
			Amount:      req.Amount,
			MintSymbol:  req.MintSymbol,
		})
		if err != nil {
			writeEngineError(w, err, logger)
			return
		}

		logger.Info("transfer created",
			"transfer_id", transfer.ID,
			"mint_symbol", transfer.MintSymbol,
		)
		writeJSON(w, transferToCreatedResponse(transfer), http.StatusCreated)
	})
}

// handleGetTransfer returns a handler that retrieves a transfer by id.
// GET /api/v1/transfers/{id}
func handleGetTransfer(engine TransferService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			writeError(w, "transfer id is required", http.StatusBadRequest)
			return
		}

		transfer, err := engine.GetTransfer(r.Context(), id)
		if err != nil {
			if errors.Is(err, relay.ErrTransferNotFound) {
				writeError(w, "transfer not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get transfer", "transfer_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, transferToResponse(transfer), http.StatusOK)
	})
}

// handleListTransfers returns a handler that lists transfers newest first.
// GET /api/v1/transfers?limit={limit}&offset={offset}
func handleListTransfers(engine TransferService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt32(r, "limit", defaultListLimit)
		if err != nil || limit <= 0 || limit > maxListLimit {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		offset, err := queryInt32(r, "offset", 0)
		if err != nil || offset < 0 {
			writeError(w, "invalid offset", http.StatusBadRequest)
			return
		}

		transfers, err := engine.ListTransfers(r.Context(), limit, offset)
		if err != nil {
			logger.Error("failed to list transfers", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]transferResponse, len(transfers))
		for i, transfer := range transfers {
			resp[i] = transferToResponse(transfer)
		}
		writeJSON(w, map[string]interface{}{
			"transfers": resp,
		}, http.StatusOK)
	})
}

// feeQuoteResponse is the response for GET /api/v1/fees.
type feeQuoteResponse struct {
	MintSymbol           string `json:"mint_symbol"`
	EstimatedFeeLamports uint64 `json:"estimated_fee_lamports"`
	SOLPriceUSD          string `json:"sol_price_usd,omitempty"`
	EstimatedFeeUSD      string `json:"estimated_fee_usd,omitempty"`
}

// handleQuoteFee returns a handler that quotes the current network fee
// for a transfer of the given mint, with a USD reference price when a
// price quoter is configured.
// GET /api/v1/fees?mint={symbol}
func handleQuoteFee(oracle FeeQuoter, quoter price.Quoter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mintSymbol := r.URL.Query().Get("mint")
		if mintSymbol == "" {
			writeError(w, "mint query parameter is required", http.StatusBadRequest)
			return
		}

		lamports, err := oracle.EstimateFee(r.Context(), mintSymbol)
		if err != nil {
			if errors.Is(err, mint.ErrUnsupportedMint) {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			if isChainError(err) {
				logger.Error("fee estimate unavailable", "mint_symbol", mintSymbol, "error", err)
				writeError(w, "chain unavailable", http.StatusBadGateway)
				return
			}
			logger.Error("failed to estimate fee", "mint_symbol", mintSymbol, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := feeQuoteResponse{
			MintSymbol:           mintSymbol,
			EstimatedFeeLamports: lamports,
		}

		if quoter != nil {
			solPrice, err := quoter.SOLPriceUSD(r.Context())
			if err != nil {
				// The quote is decorative; the lamport figure stands alone.
				logger.Warn("failed to fetch SOL price", "error", err)
			} else {
				feeUSD := decimal.NewFromUint64(lamports).
					Div(decimal.NewFromInt(lamportsPerSOL)).
					Mul(solPrice)
				resp.SOLPriceUSD = solPrice.String()
				resp.EstimatedFeeUSD = feeUSD.StringFixed(6)
			}
		}

		writeJSON(w, resp, http.StatusOK)
	})
}

// writeEngineError maps engine errors onto HTTP status codes: caller
// mistakes are 400s, chain trouble is a 502, everything else is a 500.
func writeEngineError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var verr *relay.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, mint.ErrUnsupportedMint):
		writeError(w, err.Error(), http.StatusBadRequest)
	case isChainError(err):
		logger.Error("chain unavailable", "error", err)
		writeError(w, "chain unavailable", http.StatusBadGateway)
	case errors.Is(err, relay.ErrSigner):
		logger.Error("signer failure", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	case errors.Is(err, relay.ErrPersistence):
		logger.Error("persistence failure", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	default:
		logger.Error("transfer creation failed", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

func isChainError(err error) bool {
	return errors.Is(err, solanasvc.ErrChainUnavailable) ||
		errors.Is(err, solanasvc.ErrNoPriorityFeeSamples) ||
		errors.Is(err, solanasvc.ErrNoFeeForMessage) ||
		errors.Is(err, solanasvc.ErrNoRecentBlockhash)
}

func queryInt32(r *http.Request, key string, fallback int32) (int32, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
