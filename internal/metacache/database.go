package metacache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// DatabaseStore is a SQL-backed metadata cache. The queries run unchanged on
// PostgreSQL (pgx or lib/pq) and SQLite.
type DatabaseStore struct {
	db     *sql.DB
	table  string
	config Config
	now    func() time.Time
}

// DatabaseConfig holds database store configuration
type DatabaseConfig struct {
	DB        *sql.DB
	TableName string
	Config    Config
}

// DefaultDatabaseConfig returns default database configuration
func DefaultDatabaseConfig(db *sql.DB) DatabaseConfig {
	return DatabaseConfig{
		DB:        db,
		TableName: "odata_metadata",
		Config:    DefaultConfig(),
	}
}

// NewDatabaseStore creates the cache table if needed and returns the store
func NewDatabaseStore(ctx context.Context, config DatabaseConfig) (*DatabaseStore, error) {
	if config.TableName == "" {
		return nil, errors.New("metadata cache table name is required")
	}
	s := &DatabaseStore{
		db:     config.DB,
		table:  pq.QuoteIdentifier(config.TableName),
		config: config.Config,
		now:    time.Now,
	}
	if err := s.createTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create metadata cache table: %w", convertDBError(err))
	}
	return s, nil
}

func (s *DatabaseStore) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			service_root VARCHAR(2048) PRIMARY KEY,
			document TEXT NOT NULL,
			fetched_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		)
	`, s.table)

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Get retrieves a document that has not expired
func (s *DatabaseStore) Get(ctx context.Context, serviceRoot string) ([]byte, error) {
	query := fmt.Sprintf(`
		SELECT document FROM %s
		WHERE service_root = $1 AND (expires_at = 0 OR expires_at > $2)
	`, s.table)

	var document string
	err := s.db.QueryRowContext(ctx, query, Key(serviceRoot), s.now().Unix()).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss{ServiceRoot: serviceRoot}
	}
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", convertDBError(err))
	}
	return []byte(document), nil
}

// Set stores or replaces a document
func (s *DatabaseStore) Set(ctx context.Context, serviceRoot string, document []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.config.DefaultTTL
	}
	now := s.now()
	var expiresAt int64
	if exp := expiry(now, ttl); !exp.IsZero() {
		expiresAt = exp.Unix()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (service_root, document, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service_root) DO UPDATE SET
			document = EXCLUDED.document,
			fetched_at = EXCLUDED.fetched_at,
			expires_at = EXCLUDED.expires_at
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, Key(serviceRoot), string(document), now.Unix(), expiresAt); err != nil {
		return fmt.Errorf("database insert error: %w", convertDBError(err))
	}
	return nil
}

// Delete removes a document
func (s *DatabaseStore) Delete(ctx context.Context, serviceRoot string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE service_root = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, Key(serviceRoot)); err != nil {
		return fmt.Errorf("database delete error: %w", convertDBError(err))
	}
	return nil
}

// Clear removes all documents
func (s *DatabaseStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("database delete error: %w", convertDBError(err))
	}
	return nil
}

// Prune deletes expired documents and returns how many were removed
func (s *DatabaseStore) Prune(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <> 0 AND expires_at <= $1`, s.table)
	res, err := s.db.ExecContext(ctx, query, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("database delete error: %w", convertDBError(err))
	}
	return res.RowsAffected()
}

// convertDBError adds the PostgreSQL SQLSTATE to driver errors
func convertDBError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w (sqlstate %s)", err, pgErr.Code)
	}
	return err
}
