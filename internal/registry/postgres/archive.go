// Package postgres mirrors purged registry rows into a relational
// archive. The retention sweeper writes here before deleting from the
// live table, so old rows stay queryable for reporting after they leave
// the hot store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fanvault/tokend/internal/token"
)

// ErrArchiverClosed is returned when the archiver is used after Close.
var ErrArchiverClosed = errors.New("postgres archiver is closed")

// Config holds the archive connection settings.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// MaxIdleConns caps idle pooled connections.
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	// ConnMaxLifetime bounds how long a pooled connection is reused.
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`

	// Timeout bounds individual archive statements.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns pool settings suitable for a background sweeper.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		Timeout:         10 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return errors.New("dsn must be specified")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("max_open_conns must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// Archiver writes transaction records into the archive table.
type Archiver struct {
	db     *sql.DB
	config *Config
}

// Open connects to PostgreSQL, verifies the connection and initializes
// the archive schema.
func Open(ctx context.Context, config *Config) (*Archiver, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid archive config: %w", err)
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}

	a := &Archiver{db: db, config: config}
	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return a, nil
}

// Close releases the connection pool.
func (a *Archiver) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// Ping verifies the archive connection.
func (a *Archiver) Ping(ctx context.Context) error {
	if a.db == nil {
		return ErrArchiverClosed
	}
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return a.db.PingContext(ctx)
}

func (a *Archiver) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS token_registry_archive (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			beneficiary_id TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			purpose TEXT,
			ref_id TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			metadata TEXT,
			version BIGINT NOT NULL,
			state TEXT,
			free_beneficiary_consumed BIGINT NOT NULL DEFAULT 0,
			free_system_consumed BIGINT NOT NULL DEFAULT 0,
			archived_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_archive_user_created
			ON token_registry_archive(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_beneficiary_created
			ON token_registry_archive(beneficiary_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_created
			ON token_registry_archive(created_at)`,
	}

	for _, query := range queries {
		if _, err := a.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

const upsertQuery = `INSERT INTO token_registry_archive
	(id, user_id, beneficiary_id, transaction_type, amount, purpose, ref_id,
	 expires_at, created_at, metadata, version, state,
	 free_beneficiary_consumed, free_system_consumed)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
	metadata = EXCLUDED.metadata,
	version = EXCLUDED.version,
	state = EXCLUDED.state,
	expires_at = EXCLUDED.expires_at`

// Archive upserts one record. Re-archiving an id refreshes the mutable
// fields, which makes sweeper retries idempotent.
func (a *Archiver) Archive(ctx context.Context, tx *token.Transaction) error {
	if a.db == nil {
		return ErrArchiverClosed
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	_, err := a.db.ExecContext(ctx, upsertQuery,
		tx.ID, tx.UserID, tx.BeneficiaryID, string(tx.Type), tx.Amount,
		nullable(tx.Purpose), tx.RefID, tx.ExpiresAt, tx.CreatedAt,
		nullable(tx.Metadata), tx.Version, nullable(string(tx.State)),
		tx.FreeBeneficiaryConsumed, tx.FreeSystemConsumed)
	if err != nil {
		return fmt.Errorf("failed to archive transaction %s: %w", tx.ID, err)
	}
	return nil
}

// ArchiveBatch upserts a batch of records inside one SQL transaction, so
// a partially archived purge batch never commits.
func (a *Archiver) ArchiveBatch(ctx context.Context, txs []*token.Transaction) error {
	if a.db == nil {
		return ErrArchiverClosed
	}
	if len(txs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive batch: %w", err)
	}

	stmt, err := sqlTx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		sqlTx.Rollback()
		return fmt.Errorf("failed to prepare archive statement: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx,
			tx.ID, tx.UserID, tx.BeneficiaryID, string(tx.Type), tx.Amount,
			nullable(tx.Purpose), tx.RefID, tx.ExpiresAt, tx.CreatedAt,
			nullable(tx.Metadata), tx.Version, nullable(string(tx.State)),
			tx.FreeBeneficiaryConsumed, tx.FreeSystemConsumed); err != nil {
			sqlTx.Rollback()
			return fmt.Errorf("failed to archive transaction %s: %w", tx.ID, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive batch: %w", err)
	}
	return nil
}

// Count returns the number of archived records.
func (a *Archiver) Count(ctx context.Context) (int64, error) {
	if a.db == nil {
		return 0, ErrArchiverClosed
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var count int64
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM token_registry_archive").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived transactions: %w", err)
	}
	return count, nil
}

// OldestCreatedAt returns the earliest created_at in the archive, or the
// empty string when the archive is empty.
func (a *Archiver) OldestCreatedAt(ctx context.Context) (string, error) {
	if a.db == nil {
		return "", ErrArchiverClosed
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var created sql.NullString
	err := a.db.QueryRowContext(ctx, "SELECT MIN(created_at) FROM token_registry_archive").Scan(&created)
	if err != nil {
		return "", fmt.Errorf("failed to query oldest archived transaction: %w", err)
	}
	if !created.Valid {
		return "", nil
	}
	return created.String, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
