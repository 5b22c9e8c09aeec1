package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndewijer/portfolio-valuation/internal/apperrors"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
)

// SQLStore keeps cache entries in the hot_cache table so that several
// processes sharing a database file also share cached prices.
// Data is stored as an opaque blob with an expires_at unix timestamp.
type SQLStore struct {
	db  *sql.DB
	now quote.Clock
}

// NewSQLStore creates a store over db. A nil clock uses the wall clock.
func NewSQLStore(db *sql.DB, now quote.Clock) *SQLStore {
	if now == nil {
		now = quote.SystemClock
	}
	return &SQLStore{db: db, now: now}
}

// Get returns the value only if expires_at > now.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM hot_cache WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixMilli(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hot_cache: %w", err)
	}
	return data, nil
}

// Set upserts the value with expiration = now + ttl.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO hot_cache (key, data, expires_at) VALUES (?, ?, ?)`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write hot_cache: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM hot_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete from hot_cache: %w", err)
	}
	return nil
}

// DeleteExpired removes every row whose expires_at has passed.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hot_cache WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired hot_cache rows: %w", err)
	}
	return res.RowsAffected()
}
