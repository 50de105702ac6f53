package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/gasless/service/relay"
)

func newTestTransfer() *relay.Transfer {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &relay.Transfer{
		ID:                       uuid.New().String(),
		ReferenceID:              uuid.New().String(),
		Sender:                   "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Destination:              "5q6kDYpuDsuavXfBkHDGZYHVhT2SVGZ3ofWN8MArEVB1",
		Amount:                   1500000,
		Mint:                     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		MintSymbol:               "USDC",
		FeePayer:                 "4Nd1mY5dVT3mYr5R8sB7avKWZwyQzptRVFYbRBa2pXp7",
		UnsignedTransactionBytes: []byte{0x01, 0x02, 0x03},
		SignedTransactionBytes:   []byte{0x04, 0x05, 0x06},
		EstimatedFeeLamports:     7400,
		FeeBaseUnits:             500000,
		Statuses: []relay.StatusEntry{
			{Status: relay.StatusInit, CreatedAt: now},
		},
		CreatedAt: now,
	}
}

func TestStore_CreateTransfer_RejectsIncompleteRecords(t *testing.T) {
	// The guard fires before the pool is touched, so no database is needed.
	store := NewStore(nil, nil)
	ctx := context.Background()

	transfer := newTestTransfer()
	transfer.UnsignedTransactionBytes = []byte{}
	err := store.CreateTransfer(ctx, transfer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no unsigned transaction bytes")

	transfer = newTestTransfer()
	transfer.SignedTransactionBytes = nil
	err = store.CreateTransfer(ctx, transfer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signed transaction bytes")

	transfer = newTestTransfer()
	transfer.EstimatedFeeLamports = 0
	err = store.CreateTransfer(ctx, transfer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fee estimate")
}

func TestStore_CreateAndGetTransfer(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	transfer := newTestTransfer()
	require.NoError(t, store.CreateTransfer(ctx, transfer))

	got, err := store.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.ID, got.ID)
	assert.Equal(t, transfer.ReferenceID, got.ReferenceID)
	assert.Equal(t, transfer.Amount, got.Amount)
	assert.Equal(t, transfer.SignedTransactionBytes, got.SignedTransactionBytes)
	assert.Equal(t, relay.StatusInit, got.CurrentStatus())
	assert.Nil(t, got.Signature)
	assert.Nil(t, got.Slot)
}

func TestStore_GetTransferByReferenceID(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	transfer := newTestTransfer()
	require.NoError(t, store.CreateTransfer(ctx, transfer))

	got, err := store.GetTransferByReferenceID(ctx, transfer.ReferenceID)
	require.NoError(t, err)
	assert.Equal(t, transfer.ID, got.ID)
}

func TestStore_GetTransfer_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()

	_, err := store.GetTransfer(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, relay.ErrTransferNotFound)

	_, err = store.GetTransferByReferenceID(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, relay.ErrTransferNotFound)
}

func TestStore_ListTransfers(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		transfer := newTestTransfer()
		transfer.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateTransfer(ctx, transfer))
	}

	transfers, err := store.ListTransfers(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	// Newest first.
	assert.True(t, transfers[0].CreatedAt.After(transfers[1].CreatedAt))

	rest, err := store.ListTransfers(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestStore_ListTransfersByStatus(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	// Three INIT transfers followed by two CONFIRMED ones; a page-sized
	// fetch of CONFIRMED must skip past the newer INIT rows rather than
	// filtering within the first page.
	var confirmed []*relay.Transfer
	for i := 0; i < 5; i++ {
		transfer := newTestTransfer()
		transfer.CreatedAt = time.Now().UTC().Add(time.Duration(-i) * time.Second)
		require.NoError(t, store.CreateTransfer(ctx, transfer))
		if i >= 3 {
			_, err := store.ConfirmTransfer(ctx, relay.ConfirmTransferParams{
				ReferenceID:       transfer.ReferenceID,
				Signature:         "sweepSig" + transfer.ID[:8],
				Slot:              348123456,
				TimestampIncluded: time.Now().UTC().Truncate(time.Microsecond),
			})
			require.NoError(t, err)
			confirmed = append(confirmed, transfer)
		}
	}

	got, err := store.ListTransfersByStatus(ctx, relay.StatusConfirmed, 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, transfer := range got {
		assert.Equal(t, relay.StatusConfirmed, transfer.CurrentStatus())
	}
	assert.Equal(t, confirmed[0].ID, got[0].ID)
	assert.Equal(t, confirmed[1].ID, got[1].ID)

	inits, err := store.ListTransfersByStatus(ctx, relay.StatusInit, 10, 0)
	require.NoError(t, err)
	assert.Len(t, inits, 3)

	page, err := store.ListTransfersByStatus(ctx, relay.StatusConfirmed, 10, 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestStore_ConfirmTransfer(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	transfer := newTestTransfer()
	require.NoError(t, store.CreateTransfer(ctx, transfer))

	includedAt := time.Now().UTC().Truncate(time.Microsecond)
	confirmed, err := store.ConfirmTransfer(ctx, relay.ConfirmTransferParams{
		ReferenceID:       transfer.ReferenceID,
		Signature:         "5igDhW" + transfer.ID[:8],
		Slot:              348123456,
		TimestampIncluded: includedAt,
	})
	require.NoError(t, err)
	assert.True(t, confirmed)

	got, err := store.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, relay.StatusConfirmed, got.CurrentStatus())
	require.NotNil(t, got.Signature)
	require.NotNil(t, got.Slot)
	assert.Equal(t, uint64(348123456), *got.Slot)
	require.NotNil(t, got.TimestampIncluded)
	assert.True(t, includedAt.Equal(*got.TimestampIncluded))
}

func TestStore_ConfirmTransfer_Idempotent(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	transfer := newTestTransfer()
	require.NoError(t, store.CreateTransfer(ctx, transfer))

	params := relay.ConfirmTransferParams{
		ReferenceID:       transfer.ReferenceID,
		Signature:         "firstSig",
		Slot:              100,
		TimestampIncluded: time.Now().UTC(),
	}
	confirmed, err := store.ConfirmTransfer(ctx, params)
	require.NoError(t, err)
	assert.True(t, confirmed)

	// Redelivery with different details does not overwrite the first
	// confirmation.
	params.Signature = "secondSig"
	params.Slot = 200
	confirmed, err = store.ConfirmTransfer(ctx, params)
	require.NoError(t, err)
	assert.False(t, confirmed)

	got, err := store.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, "firstSig", *got.Signature)
	assert.Equal(t, uint64(100), *got.Slot)

	confirmedCount := 0
	for _, entry := range got.Statuses {
		if entry.Status == relay.StatusConfirmed {
			confirmedCount++
		}
	}
	assert.Equal(t, 1, confirmedCount)
}

func TestStore_ConfirmTransfer_UnknownReference(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()

	_, err := store.ConfirmTransfer(context.Background(), relay.ConfirmTransferParams{
		ReferenceID: uuid.New().String(),
		Signature:   "sig",
		Slot:        1,
	})
	assert.ErrorIs(t, err, relay.ErrTransferNotFound)
}

func TestStore_AppendStatus(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	transfer := newTestTransfer()
	require.NoError(t, store.CreateTransfer(ctx, transfer))

	appended, err := store.AppendStatus(ctx, transfer.ID, relay.StatusConfirmed, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, appended)

	appended, err = store.AppendStatus(ctx, transfer.ID, relay.StatusConfirmed, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, appended)

	_, err = store.AppendStatus(ctx, uuid.New().String(), relay.StatusConfirmed, time.Now().UTC())
	assert.ErrorIs(t, err, relay.ErrTransferNotFound)
}

func TestMain(m *testing.M) {
	if err := SetupTestDatabase(); err != nil {
		fmt.Printf("test database unavailable, db tests will be skipped: %v\n", err)
	}
	m.Run()
}
