package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/model"
)

// InstrumentRepository provides data access methods for the instrument table,
// the directory mapping internal instrument IDs to ticker, ISIN and currency.
type InstrumentRepository struct {
	db *sql.DB
}

// NewInstrumentRepository creates a new InstrumentRepository with the provided database connection.
func NewInstrumentRepository(db *sql.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

const instrumentColumns = `id, name, COALESCE(isin, ''), COALESCE(ticker, ''), currency, kind, COALESCE(exchange, ''), created_at`

// GetInstrument returns a single instrument.
// Returns apperrors.ErrInstrumentNotFound when the ID is unknown.
func (r *InstrumentRepository) GetInstrument(ctx context.Context, id string) (model.Instrument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instrument WHERE id = ?`, id)
	inst, err := scanInstrument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Instrument{}, apperrors.ErrInstrumentNotFound
	}
	if err != nil {
		return model.Instrument{}, fmt.Errorf("failed to query instrument table: %w", err)
	}
	return inst, nil
}

// GetInstruments retrieves the instruments for the given IDs keyed by ID.
// Unknown IDs are absent from the result; an empty input returns an empty map.
func (r *InstrumentRepository) GetInstruments(ctx context.Context, ids []string) (map[string]model.Instrument, error) {
	result := make(map[string]model.Instrument, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+instrumentColumns+` FROM instrument WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument table results: %w", err)
		}
		result[inst.ID] = inst
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument table: %w", err)
	}
	return result, nil
}

// ListInstruments returns up to limit instruments ordered by creation time,
// oldest first. A limit of zero or less returns every instrument.
func (r *InstrumentRepository) ListInstruments(ctx context.Context, limit int) ([]model.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instrument ORDER BY created_at ASC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument table: %w", err)
	}
	defer rows.Close()

	instruments := []model.Instrument{}
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument table results: %w", err)
		}
		instruments = append(instruments, inst)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument table: %w", err)
	}
	return instruments, nil
}

// InsertInstrument adds an instrument to the directory.
func (r *InstrumentRepository) InsertInstrument(ctx context.Context, inst model.Instrument) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = timeNow()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instrument (id, name, isin, ticker, currency, kind, exchange, created_at)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?)`,
		inst.ID, inst.Name, inst.ISIN, inst.Ticker, inst.Currency, string(inst.Kind), inst.Exchange, FormatTime(inst.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert instrument: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(s rowScanner) (model.Instrument, error) {
	var inst model.Instrument
	var kind, createdAt string
	if err := s.Scan(
		&inst.ID,
		&inst.Name,
		&inst.ISIN,
		&inst.Ticker,
		&inst.Currency,
		&kind,
		&inst.Exchange,
		&createdAt,
	); err != nil {
		return model.Instrument{}, err
	}
	inst.Kind = model.InstrumentKind(kind)

	var err error
	inst.CreatedAt, err = ParseTime(createdAt)
	if err != nil {
		return model.Instrument{}, err
	}
	return inst, nil
}
