package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// SnapshotRepository is the durable, append-only price snapshot store.
// Rows are inserted by the snapshot job and never updated in place.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository with the provided database connection.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// AppendSnapshots inserts all snapshots in a single transaction.
// Either every row is written or none is.
func (r *SnapshotRepository) AppendSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_snapshot (id, instrument_id, price, currency, source, snapshot_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''))`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if _, err := stmt.ExecContext(ctx,
			s.ID,
			s.InstrumentID,
			s.Price.String(),
			s.Currency,
			s.Source,
			FormatTime(s.SnapshotAt),
			s.RunID,
		); err != nil {
			return fmt.Errorf("failed to insert snapshot for %s: %w", s.InstrumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}
	return nil
}

// GetLatestSnapshot returns the most recent snapshot of an instrument.
// Returns apperrors.ErrSnapshotNotFound if the instrument has none.
func (r *SnapshotRepository) GetLatestSnapshot(ctx context.Context, instrumentID string) (model.PriceSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, instrument_id, price, currency, source, snapshot_at, COALESCE(run_id, '')
		FROM price_snapshot
		WHERE instrument_id = ?
		ORDER BY snapshot_at DESC, rowid DESC
		LIMIT 1`, instrumentID)

	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PriceSnapshot{}, apperrors.ErrSnapshotNotFound
	}
	if err != nil {
		return model.PriceSnapshot{}, fmt.Errorf("failed to query price_snapshot table: %w", err)
	}
	return s, nil
}

// GetLatestSnapshotTimes returns, for each of the given instruments that has
// at least one snapshot, the time of its newest snapshot.
func (r *SnapshotRepository) GetLatestSnapshotTimes(ctx context.Context, instrumentIDs []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(instrumentIDs))
	if len(instrumentIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(instrumentIDs))
	for i, id := range instrumentIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT instrument_id, MAX(snapshot_at)
		FROM price_snapshot
		WHERE instrument_id IN (`+placeholders(len(instrumentIDs))+`)
		GROUP BY instrument_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price_snapshot table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, latest string
		if err := rows.Scan(&id, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan price_snapshot table results: %w", err)
		}
		t, err := ParseTime(latest)
		if err != nil {
			return nil, err
		}
		result[id] = t
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price_snapshot table: %w", err)
	}
	return result, nil
}

// GetSnapshots returns the snapshots of an instrument taken within [from, to],
// oldest first. A zero from or to leaves that side of the range open.
func (r *SnapshotRepository) GetSnapshots(ctx context.Context, instrumentID string, from, to time.Time) ([]model.PriceSnapshot, error) {
	query := `
		SELECT id, instrument_id, price, currency, source, snapshot_at, COALESCE(run_id, '')
		FROM price_snapshot
		WHERE instrument_id = ?`
	args := []any{instrumentID}
	if !from.IsZero() {
		query += ` AND snapshot_at >= ?`
		args = append(args, FormatTime(from))
	}
	if !to.IsZero() {
		query += ` AND snapshot_at <= ?`
		args = append(args, FormatTime(to))
	}
	query += ` ORDER BY snapshot_at ASC, rowid ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price_snapshot table: %w", err)
	}
	defer rows.Close()

	snapshots := []model.PriceSnapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price_snapshot table results: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price_snapshot table: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(s rowScanner) (model.PriceSnapshot, error) {
	var snap model.PriceSnapshot
	var snapshotAt string
	if err := s.Scan(
		&snap.ID,
		&snap.InstrumentID,
		&snap.Price,
		&snap.Currency,
		&snap.Source,
		&snapshotAt,
		&snap.RunID,
	); err != nil {
		return model.PriceSnapshot{}, err
	}
	var err error
	snap.SnapshotAt, err = ParseTime(snapshotAt)
	if err != nil {
		return model.PriceSnapshot{}, err
	}
	return snap, nil
}
