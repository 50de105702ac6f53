package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/gasless/service/mint"
	"github.com/brojonat/gasless/service/price"
	"github.com/brojonat/gasless/service/relay"
	solanasvc "github.com/brojonat/gasless/service/solana"
)

type mockEngine struct {
	createFunc func(ctx context.Context, req relay.TransferRequest) (*relay.Transfer, error)
	getFunc    func(ctx context.Context, id string) (*relay.Transfer, error)
	listFunc   func(ctx context.Context, limit, offset int32) ([]*relay.Transfer, error)
}

func (m *mockEngine) CreateTransfer(ctx context.Context, req relay.TransferRequest) (*relay.Transfer, error) {
	return m.createFunc(ctx, req)
}

func (m *mockEngine) GetTransfer(ctx context.Context, id string) (*relay.Transfer, error) {
	return m.getFunc(ctx, id)
}

func (m *mockEngine) ListTransfers(ctx context.Context, limit, offset int32) ([]*relay.Transfer, error) {
	return m.listFunc(ctx, limit, offset)
}

type mockOracle struct {
	lamports uint64
	err      error
}

func (m *mockOracle) EstimateFee(ctx context.Context, mintSymbol string) (uint64, error) {
	return m.lamports, m.err
}

func sampleTransfer() *relay.Transfer {
	now := time.Now().UTC()
	return &relay.Transfer{
		ID:                     "f3b9d2c8-1111-2222-3333-444455556666",
		ReferenceID:            "a1b2c3d4-7777-8888-9999-000011112222",
		Sender:                 "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Destination:            "5q6kDYpuDsuavXfBkHDGZYHVhT2SVGZ3ofWN8MArEVB1",
		Amount:                 1500000,
		Mint:                   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		MintSymbol:             "USDC",
		FeePayer:               "4Nd1mY5dVT3mYr5R8sB7avKWZwyQzptRVFYbRBa2pXp7",
		SignedTransactionBytes: []byte{0x01, 0x02},
		EstimatedFeeLamports:   7400,
		FeeBaseUnits:           500000,
		Statuses: []relay.StatusEntry{
			{Status: relay.StatusInit, CreatedAt: now},
		},
		CreatedAt: now,
	}
}

func TestHandleCreateTransfer(t *testing.T) {
	transfer := sampleTransfer()
	engine := &mockEngine{
		createFunc: func(ctx context.Context, req relay.TransferRequest) (*relay.Transfer, error) {
			assert.Equal(t, "USDC", req.MintSymbol)
			assert.Equal(t, "1.50", req.Amount)
			return transfer, nil
		},
	}
	handler := handleCreateTransfer(engine, slog.Default())

	body, _ := json.Marshal(createTransferRequest{
		Sender:      transfer.Sender,
		Destination: transfer.Destination,
		Amount:      "1.50",
		MintSymbol:  "USDC",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createdTransferResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, transfer.ID, resp.ID)
	assert.Equal(t, "INIT", resp.Status)
	assert.Equal(t, "AQI=", resp.SignedTransaction) // base64 of 0x01 0x02
	assert.Equal(t, uint64(7400), resp.EstimatedFeeLamports)
}

func TestHandleCreateTransfer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation", err: &relay.ValidationError{Field: "amount", Reason: "not numeric"}, wantStatus: http.StatusBadRequest},
		{name: "unsupported mint", err: mint.ErrUnsupportedMint, wantStatus: http.StatusBadRequest},
		{name: "chain unavailable", err: solanasvc.ErrChainUnavailable, wantStatus: http.StatusBadGateway},
		{name: "no priority samples", err: solanasvc.ErrNoPriorityFeeSamples, wantStatus: http.StatusBadGateway},
		{name: "signer", err: relay.ErrSigner, wantStatus: http.StatusInternalServerError},
		{name: "persistence", err: relay.ErrPersistence, wantStatus: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{
				createFunc: func(ctx context.Context, req relay.TransferRequest) (*relay.Transfer, error) {
					return nil, tt.err
				},
			}
			handler := handleCreateTransfer(engine, slog.Default())

			body, _ := json.Marshal(createTransferRequest{Amount: "1", MintSymbol: "USDC"})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleCreateTransfer_BadBody(t *testing.T) {
	engine := &mockEngine{}
	handler := handleCreateTransfer(engine, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetTransfer(t *testing.T) {
	transfer := sampleTransfer()
	engine := &mockEngine{
		getFunc: func(ctx context.Context, id string) (*relay.Transfer, error) {
			if id == transfer.ID {
				return transfer, nil
			}
			return nil, relay.ErrTransferNotFound
		},
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/transfers/{id}", handleGetTransfer(engine, slog.Default()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/"+transfer.ID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp transferResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, transfer.ID, resp.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transfers/missing", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetTransfer_OmitsSignedTransaction(t *testing.T) {
	transfer := sampleTransfer()
	engine := &mockEngine{
		getFunc: func(ctx context.Context, id string) (*relay.Transfer, error) {
			return transfer, nil
		},
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/transfers/{id}", handleGetTransfer(engine, slog.Default()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/"+transfer.ID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	_, leaked := body["signed_transaction"]
	assert.False(t, leaked, "read surface must not expose signed transaction bytes")
	assert.Equal(t, transfer.ID, body["id"])
	assert.NotEmpty(t, body["statuses"])
}

func TestHandleListTransfers(t *testing.T) {
	engine := &mockEngine{
		listFunc: func(ctx context.Context, limit, offset int32) ([]*relay.Transfer, error) {
			assert.Equal(t, int32(10), limit)
			assert.Equal(t, int32(5), offset)
			return []*relay.Transfer{sampleTransfer()}, nil
		},
	}
	handler := handleListTransfers(engine, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers?limit=10&offset=5", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Transfers []map[string]interface{} `json:"transfers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Transfers, 1)
	_, leaked := resp.Transfers[0]["signed_transaction"]
	assert.False(t, leaked, "read surface must not expose signed transaction bytes")
}

func TestHandleListTransfers_InvalidPagination(t *testing.T) {
	engine := &mockEngine{}
	handler := handleListTransfers(engine, slog.Default())

	for _, query := range []string{"?limit=0", "?limit=abc", "?limit=9999", "?offset=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers"+query, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %s", query)
	}
}

func TestHandleQuoteFee(t *testing.T) {
	oracle := &mockOracle{lamports: 7400}
	quoter := price.NewMockQuoter(decimal.RequireFromString("140"))
	handler := handleQuoteFee(oracle, quoter, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees?mint=USDC", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp feeQuoteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(7400), resp.EstimatedFeeLamports)
	assert.Equal(t, "140", resp.SOLPriceUSD)
	// 7400 lamports at $140/SOL
	assert.Equal(t, "0.001036", resp.EstimatedFeeUSD)
}

func TestHandleQuoteFee_PriceFailureIsNotFatal(t *testing.T) {
	oracle := &mockOracle{lamports: 7400}
	quoter := price.NewMockQuoter(decimal.Zero)
	quoter.SetError(errors.New("rate limited"))
	handler := handleQuoteFee(oracle, quoter, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees?mint=USDC", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp feeQuoteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(7400), resp.EstimatedFeeLamports)
	assert.Empty(t, resp.SOLPriceUSD)
}

func TestHandleQuoteFee_Errors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
	}{
		{name: "missing mint", query: "", wantStatus: http.StatusBadRequest},
		{name: "unsupported mint", query: "?mint=DOGE", err: mint.ErrUnsupportedMint, wantStatus: http.StatusBadRequest},
		{name: "chain unavailable", query: "?mint=USDC", err: solanasvc.ErrChainUnavailable, wantStatus: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &mockOracle{err: tt.err}
			handler := handleQuoteFee(oracle, nil, slog.Default())

			req := httptest.NewRequest(http.MethodGet, "/api/v1/fees"+tt.query, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
