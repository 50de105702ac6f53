package relay

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/gasless/service/mint"
	"github.com/brojonat/gasless/service/signer"
	solanasvc "github.com/brojonat/gasless/service/solana"
)

const testUSDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type fakeComposer struct {
	err    error
	params []solanasvc.ComposeParams
}

func (c *fakeComposer) Compose(ctx context.Context, params solanasvc.ComposeParams) ([]solana.Instruction, error) {
	c.params = append(c.params, params)
	if c.err != nil {
		return nil, c.err
	}
	memo := solana.NewInstruction(
		solanasvc.MemoProgramIDSPL,
		[]*solana.AccountMeta{},
		[]byte(params.ReferenceID),
	)
	return []solana.Instruction{memo}, nil
}

type fakeOracle struct {
	lamports uint64
	err      error
	calls    int
}

func (o *fakeOracle) EstimateFee(ctx context.Context, mintSymbol string) (uint64, error) {
	o.calls++
	return o.lamports, o.err
}

type fakeSigner struct {
	wallet   *solana.Wallet
	buildErr error
	signErr  error
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{wallet: solana.NewWallet()}
}

func (s *fakeSigner) Build(ctx context.Context, instructions []solana.Instruction, feePayer solana.PublicKey) (*solana.Transaction, error) {
	if s.buildErr != nil {
		return nil, s.buildErr
	}
	return solana.NewTransaction(instructions, solana.Hash{}, solana.TransactionPayer(feePayer))
}

func (s *fakeSigner) Sign(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	tx.Signatures = append(tx.Signatures, solana.Signature{})
	return tx, nil
}

func (s *fakeSigner) PublicKey() solana.PublicKey {
	return s.wallet.PublicKey()
}

var _ signer.Signer = (*fakeSigner)(nil)

type fakeStore struct {
	createErr   error
	byID        map[string]*Transfer
	byReference map[string]*Transfer
	confirmed   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:        make(map[string]*Transfer),
		byReference: make(map[string]*Transfer),
		confirmed:   make(map[string]bool),
	}
}

func (s *fakeStore) CreateTransfer(ctx context.Context, transfer *Transfer) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.byID[transfer.ID] = transfer
	s.byReference[transfer.ReferenceID] = transfer
	return nil
}

func (s *fakeStore) GetTransfer(ctx context.Context, id string) (*Transfer, error) {
	t, ok := s.byID[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return t, nil
}

func (s *fakeStore) GetTransferByReferenceID(ctx context.Context, referenceID string) (*Transfer, error) {
	t, ok := s.byReference[referenceID]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return t, nil
}

func (s *fakeStore) ListTransfers(ctx context.Context, limit, offset int32) ([]*Transfer, error) {
	out := make([]*Transfer, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	return out, nil
}

func (s *fakeStore) AppendStatus(ctx context.Context, id string, status Status, timestamp time.Time) (bool, error) {
	t, ok := s.byID[id]
	if !ok {
		return false, ErrTransferNotFound
	}
	for _, entry := range t.Statuses {
		if entry.Status == status {
			return false, nil
		}
	}
	t.Statuses = append(t.Statuses, StatusEntry{Status: status, CreatedAt: timestamp})
	return true, nil
}

func (s *fakeStore) SetConfirmationDetails(ctx context.Context, id string, signature string, slot uint64, timestamp time.Time) error {
	t, ok := s.byID[id]
	if !ok {
		return ErrTransferNotFound
	}
	t.Signature = &signature
	t.Slot = &slot
	t.TimestampIncluded = &timestamp
	return nil
}

func (s *fakeStore) ConfirmTransfer(ctx context.Context, params ConfirmTransferParams) (bool, error) {
	t, ok := s.byReference[params.ReferenceID]
	if !ok {
		return false, ErrTransferNotFound
	}
	if s.confirmed[t.ID] {
		return false, nil
	}
	s.confirmed[t.ID] = true
	t.Signature = &params.Signature
	t.Slot = &params.Slot
	if !params.TimestampIncluded.IsZero() {
		ts := params.TimestampIncluded
		t.TimestampIncluded = &ts
	}
	t.Statuses = append(t.Statuses, StatusEntry{Status: StatusConfirmed, CreatedAt: time.Now().UTC()})
	return true, nil
}

var _ Store = (*fakeStore)(nil)

func testRegistry(t *testing.T) *mint.Registry {
	t.Helper()
	registry, err := mint.NewRegistry([]mint.Config{
		{Symbol: "USDC", Address: testUSDCMint, Decimals: 6},
	})
	require.NoError(t, err)
	return registry
}

func testEngine(t *testing.T) (*Engine, *fakeComposer, *fakeOracle, *fakeSigner, *fakeStore) {
	t.Helper()
	composer := &fakeComposer{}
	oracle := &fakeOracle{lamports: 7400}
	sgn := newFakeSigner()
	store := newFakeStore()
	engine := NewEngine(testRegistry(t), composer, oracle, sgn, store, 500000, nil, slog.Default())
	return engine, composer, oracle, sgn, store
}

func validRequest() TransferRequest {
	return TransferRequest{
		Sender:      solana.NewWallet().PublicKey().String(),
		Destination: solana.NewWallet().PublicKey().String(),
		Amount:      "1.50",
		MintSymbol:  "USDC",
	}
}

func TestEngine_CreateTransfer(t *testing.T) {
	engine, composer, oracle, sgn, store := testEngine(t)

	transfer, err := engine.CreateTransfer(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, transfer)

	assert.NotEmpty(t, transfer.ID)
	assert.NotEmpty(t, transfer.ReferenceID)
	assert.NotEqual(t, transfer.ID, transfer.ReferenceID)
	assert.Equal(t, uint64(1500000), transfer.Amount)
	assert.Equal(t, testUSDCMint, transfer.Mint)
	assert.Equal(t, "USDC", transfer.MintSymbol)
	assert.Equal(t, sgn.PublicKey().String(), transfer.FeePayer)
	assert.Equal(t, uint64(7400), transfer.EstimatedFeeLamports)
	assert.Equal(t, uint64(500000), transfer.FeeBaseUnits)
	assert.Equal(t, StatusInit, transfer.CurrentStatus())
	assert.NotEmpty(t, transfer.UnsignedTransactionBytes)
	assert.NotEmpty(t, transfer.SignedTransactionBytes)
	assert.NotEqual(t, transfer.UnsignedTransactionBytes, transfer.SignedTransactionBytes)

	// The composer saw the same reference id that was persisted.
	require.Len(t, composer.params, 1)
	assert.Equal(t, transfer.ReferenceID, composer.params[0].ReferenceID)
	assert.Equal(t, uint64(500000), composer.params[0].RelayFeeBaseUnits)
	assert.Equal(t, 1, oracle.calls)

	stored, err := store.GetTransfer(context.Background(), transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.ReferenceID, stored.ReferenceID)
}

func TestEngine_CreateTransfer_DistinctIdentifiers(t *testing.T) {
	engine, _, _, _, _ := testEngine(t)

	first, err := engine.CreateTransfer(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := engine.CreateTransfer(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.ReferenceID, second.ReferenceID)
}

func TestEngine_CreateTransfer_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TransferRequest)
	}{
		{name: "bad sender", mutate: func(r *TransferRequest) { r.Sender = "not-an-address" }},
		{name: "bad destination", mutate: func(r *TransferRequest) { r.Destination = "0x1234" }},
		{name: "bad amount", mutate: func(r *TransferRequest) { r.Amount = "one point five" }},
		{name: "negative amount", mutate: func(r *TransferRequest) { r.Amount = "-1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, composer, oracle, _, store := testEngine(t)
			req := validRequest()
			tt.mutate(&req)

			transfer, err := engine.CreateTransfer(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, transfer)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))

			// Rejected before any chain interaction or persistence.
			assert.Empty(t, composer.params)
			assert.Zero(t, oracle.calls)
			assert.Empty(t, store.byID)
		})
	}
}

func TestEngine_CreateTransfer_UnsupportedMint(t *testing.T) {
	engine, composer, _, _, _ := testEngine(t)
	req := validRequest()
	req.MintSymbol = "DOGE"

	transfer, err := engine.CreateTransfer(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, transfer)
	assert.ErrorIs(t, err, mint.ErrUnsupportedMint)
	assert.Empty(t, composer.params)
}

func TestEngine_CreateTransfer_ComposeError(t *testing.T) {
	engine, composer, _, _, store := testEngine(t)
	composer.err = errors.New("rpc timeout")

	transfer, err := engine.CreateTransfer(context.Background(), validRequest())
	require.Error(t, err)
	assert.Nil(t, transfer)
	assert.Empty(t, store.byID)
}

func TestEngine_CreateTransfer_EstimateError(t *testing.T) {
	engine, _, oracle, _, store := testEngine(t)
	oracle.err = errors.New("no samples")

	transfer, err := engine.CreateTransfer(context.Background(), validRequest())
	require.Error(t, err)
	assert.Nil(t, transfer)
	assert.Empty(t, store.byID)
}

func TestEngine_CreateTransfer_SignerError(t *testing.T) {
	engine, _, _, sgn, store := testEngine(t)
	sgn.signErr = errors.New("hsm unreachable")

	transfer, err := engine.CreateTransfer(context.Background(), validRequest())
	require.Error(t, err)
	assert.Nil(t, transfer)
	assert.ErrorIs(t, err, ErrSigner)
	assert.Empty(t, store.byID)
}

func TestEngine_CreateTransfer_PersistenceError(t *testing.T) {
	engine, _, _, _, store := testEngine(t)
	store.createErr = errors.New("connection refused")

	transfer, err := engine.CreateTransfer(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	// The signed transfer is still handed back so the caller can decide
	// what to do with the bytes.
	require.NotNil(t, transfer)
	assert.NotEmpty(t, transfer.SignedTransactionBytes)
	assert.Equal(t, StatusInit, transfer.CurrentStatus())
}

func TestEngine_GetTransfer(t *testing.T) {
	engine, _, _, _, _ := testEngine(t)

	created, err := engine.CreateTransfer(context.Background(), validRequest())
	require.NoError(t, err)

	got, err := engine.GetTransfer(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = engine.GetTransfer(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransferNotFound)
}
