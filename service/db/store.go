package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/gasless/service/metrics"
	"github.com/brojonat/gasless/service/relay"
)

// Store provides Postgres-backed persistence for transfers and their
// append-only status history. It implements relay.Store.
//
// Status history is guarded by a UNIQUE(transfer_id, status) constraint;
// duplicate appends are resolved by the database with ON CONFLICT DO
// NOTHING rather than by application-side locking, so concurrent
// confirmations of the same transfer cannot race.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

var _ relay.Store = (*Store)(nil)

// CreateTransfer inserts the transfer record and its initial status
// history in a single transaction.
func (s *Store) CreateTransfer(ctx context.Context, transfer *relay.Transfer) error {
	start := time.Now()
	err := s.createTransfer(ctx, transfer)
	s.record("create_transfer", "transfers", start, err)
	return err
}

func (s *Store) createTransfer(ctx context.Context, transfer *relay.Transfer) error {
	// The schema's NOT NULL does not catch empty slices or zero fees.
	if len(transfer.UnsignedTransactionBytes) == 0 {
		return fmt.Errorf("transfer %s has no unsigned transaction bytes", transfer.ID)
	}
	if len(transfer.SignedTransactionBytes) == 0 {
		return fmt.Errorf("transfer %s has no signed transaction bytes", transfer.ID)
	}
	if transfer.EstimatedFeeLamports == 0 {
		return fmt.Errorf("transfer %s has no fee estimate", transfer.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO transfers (
			id, reference_id, sender, destination, amount,
			mint, mint_symbol, fee_payer,
			unsigned_tx, signed_tx,
			estimated_fee_lamports, fee_base_units, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		transfer.ID, transfer.ReferenceID, transfer.Sender, transfer.Destination,
		int64(transfer.Amount), transfer.Mint, transfer.MintSymbol, transfer.FeePayer,
		transfer.UnsignedTransactionBytes, transfer.SignedTransactionBytes,
		int64(transfer.EstimatedFeeLamports), int64(transfer.FeeBaseUnits),
		transfer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	for _, entry := range transfer.Statuses {
		_, err = tx.Exec(ctx, `
			INSERT INTO transfer_statuses (transfer_id, status, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (transfer_id, status) DO NOTHING`,
			transfer.ID, string(entry.Status), entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert status history: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetTransfer retrieves a transfer and its full status history by id.
func (s *Store) GetTransfer(ctx context.Context, id string) (*relay.Transfer, error) {
	start := time.Now()
	transfer, err := s.getTransferBy(ctx, "id", id)
	s.record("get_transfer", "transfers", start, err)
	return transfer, err
}

// GetTransferByReferenceID retrieves a transfer by its memo correlation
// tag. Reference ids are unique across transfers.
func (s *Store) GetTransferByReferenceID(ctx context.Context, referenceID string) (*relay.Transfer, error) {
	start := time.Now()
	transfer, err := s.getTransferBy(ctx, "reference_id", referenceID)
	s.record("get_transfer_by_reference", "transfers", start, err)
	return transfer, err
}

func (s *Store) getTransferBy(ctx context.Context, column, value string) (*relay.Transfer, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, reference_id, sender, destination, amount,
		       mint, mint_symbol, fee_payer,
		       unsigned_tx, signed_tx,
		       estimated_fee_lamports, fee_base_units,
		       signature, slot, timestamp_included, created_at
		FROM transfers
		WHERE %s = $1`, column),
		value,
	)

	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, relay.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to query transfer: %w", err)
	}

	if err := s.loadStatuses(ctx, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}

// ListTransfers retrieves transfers ordered newest first.
func (s *Store) ListTransfers(ctx context.Context, limit, offset int32) ([]*relay.Transfer, error) {
	start := time.Now()
	transfers, err := s.listTransfers(ctx, limit, offset)
	s.record("list_transfers", "transfers", start, err)
	return transfers, err
}

func (s *Store) listTransfers(ctx context.Context, limit, offset int32) ([]*relay.Transfer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, reference_id, sender, destination, amount,
		       mint, mint_symbol, fee_payer,
		       unsigned_tx, signed_tx,
		       estimated_fee_lamports, fee_base_units,
		       signature, slot, timestamp_included, created_at
		FROM transfers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*relay.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, transfer := range transfers {
		if err := s.loadStatuses(ctx, transfer); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

// ListTransfersByStatus retrieves transfers whose current status matches,
// newest first. The filter runs in the database so pagination counts
// matching rows, not fetched rows.
func (s *Store) ListTransfersByStatus(ctx context.Context, status relay.Status, limit, offset int32) ([]*relay.Transfer, error) {
	start := time.Now()
	transfers, err := s.listTransfersByStatus(ctx, status, limit, offset)
	s.record("list_transfers_by_status", "transfers", start, err)
	return transfers, err
}

func (s *Store) listTransfersByStatus(ctx context.Context, status relay.Status, limit, offset int32) ([]*relay.Transfer, error) {
	// Current status is the latest history entry, same ordering as
	// loadStatuses.
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.reference_id, t.sender, t.destination, t.amount,
		       t.mint, t.mint_symbol, t.fee_payer,
		       t.unsigned_tx, t.signed_tx,
		       t.estimated_fee_lamports, t.fee_base_units,
		       t.signature, t.slot, t.timestamp_included, t.created_at
		FROM transfers t
		JOIN LATERAL (
			SELECT status
			FROM transfer_statuses ts
			WHERE ts.transfer_id = t.id
			ORDER BY ts.created_at DESC, ts.id DESC
			LIMIT 1
		) latest ON latest.status = $1
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers by status: %w", err)
	}
	defer rows.Close()

	var transfers []*relay.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, transfer := range transfers {
		if err := s.loadStatuses(ctx, transfer); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

// AppendStatus appends a status history entry. It returns false when the
// transfer already has an entry with the given status.
func (s *Store) AppendStatus(ctx context.Context, id string, status relay.Status, timestamp time.Time) (bool, error) {
	start := time.Now()
	appended, err := s.appendStatus(ctx, s.pool, id, status, timestamp)
	s.record("append_status", "transfer_statuses", start, err)
	return appended, err
}

// querier covers the query surface shared by *pgxpool.Pool and pgx.Tx so
// the same statements run standalone or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) appendStatus(ctx context.Context, q querier, id string, status relay.Status, timestamp time.Time) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transfers WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transfer existence: %w", err)
	}
	if !exists {
		return false, relay.ErrTransferNotFound
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO transfer_statuses (transfer_id, status, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (transfer_id, status) DO NOTHING`,
		id, string(status), timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to append status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetConfirmationDetails records the on-chain inclusion details of a
// confirmed transfer.
func (s *Store) SetConfirmationDetails(ctx context.Context, id string, signature string, slot uint64, timestamp time.Time) error {
	start := time.Now()
	err := s.setConfirmationDetails(ctx, s.pool, id, signature, slot, timestamp)
	s.record("set_confirmation_details", "transfers", start, err)
	return err
}

func (s *Store) setConfirmationDetails(ctx context.Context, q querier, id string, signature string, slot uint64, timestamp time.Time) error {
	var ts *time.Time
	if !timestamp.IsZero() {
		ts = &timestamp
	}
	tag, err := q.Exec(ctx, `
		UPDATE transfers
		SET signature = $2, slot = $3, timestamp_included = $4
		WHERE id = $1`,
		id, signature, int64(slot), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to set confirmation details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relay.ErrTransferNotFound
	}
	return nil
}

// ConfirmTransfer atomically records confirmation details and appends the
// CONFIRMED status entry for the transfer matching the reference id. It
// returns false when the transfer was already confirmed; the details
// recorded by the first confirmation win.
func (s *Store) ConfirmTransfer(ctx context.Context, params relay.ConfirmTransferParams) (bool, error) {
	start := time.Now()
	confirmed, err := s.confirmTransfer(ctx, params)
	s.record("confirm_transfer", "transfers", start, err)
	return confirmed, err
}

func (s *Store) confirmTransfer(ctx context.Context, params relay.ConfirmTransferParams) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM transfers WHERE reference_id = $1`, params.ReferenceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, relay.ErrTransferNotFound
		}
		return false, fmt.Errorf("failed to query transfer by reference id: %w", err)
	}

	appended, err := s.appendStatus(ctx, tx, id, relay.StatusConfirmed, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if !appended {
		return false, tx.Commit(ctx)
	}

	if err := s.setConfirmationDetails(ctx, tx, id, params.Signature, params.Slot, params.TimestampIncluded); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// ListConfirmedSignatures returns the on-chain signatures of transfers
// confirmed since the given time. The reconcile sweep uses them to skip
// transactions it has already processed.
func (s *Store) ListConfirmedSignatures(ctx context.Context, since time.Time) ([]string, error) {
	start := time.Now()
	signatures, err := s.listConfirmedSignatures(ctx, since)
	s.record("list_confirmed_signatures", "transfers", start, err)
	return signatures, err
}

func (s *Store) listConfirmedSignatures(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signature FROM transfers
		WHERE signature IS NOT NULL AND timestamp_included >= $1`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmed signatures: %w", err)
	}
	defer rows.Close()

	var signatures []string
	for rows.Next() {
		var signature string
		if err := rows.Scan(&signature); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		signatures = append(signatures, signature)
	}
	return signatures, rows.Err()
}

func (s *Store) loadStatuses(ctx context.Context, transfer *relay.Transfer) error {
	rows, err := s.pool.Query(ctx, `
		SELECT status, created_at
		FROM transfer_statuses
		WHERE transfer_id = $1
		ORDER BY created_at ASC, id ASC`,
		transfer.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	transfer.Statuses = transfer.Statuses[:0]
	for rows.Next() {
		var status string
		var createdAt time.Time
		if err := rows.Scan(&status, &createdAt); err != nil {
			return fmt.Errorf("failed to scan status entry: %w", err)
		}
		transfer.Statuses = append(transfer.Statuses, relay.StatusEntry{
			Status:    relay.Status(status),
			CreatedAt: createdAt,
		})
	}
	return rows.Err()
}

func scanTransfer(row pgx.Row) (*relay.Transfer, error) {
	var transfer relay.Transfer
	var amount, estimatedFee, feeBaseUnits int64
	var slot *int64

	err := row.Scan(
		&transfer.ID, &transfer.ReferenceID, &transfer.Sender, &transfer.Destination, &amount,
		&transfer.Mint, &transfer.MintSymbol, &transfer.FeePayer,
		&transfer.UnsignedTransactionBytes, &transfer.SignedTransactionBytes,
		&estimatedFee, &feeBaseUnits,
		&transfer.Signature, &slot, &transfer.TimestampIncluded, &transfer.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	transfer.Amount = uint64(amount)
	transfer.EstimatedFeeLamports = uint64(estimatedFee)
	transfer.FeeBaseUnits = uint64(feeBaseUnits)
	if slot != nil {
		s := uint64(*slot)
		transfer.Slot = &s
	}
	return &transfer, nil
}

func (s *Store) record(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
}
