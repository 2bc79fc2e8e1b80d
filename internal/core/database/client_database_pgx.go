package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docloader/internal/config"
	"github.com/markdave123-py/docloader/internal/core"
	"github.com/markdave123-py/docloader/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

// NewDatabaseClient opens the Postgres load history and bootstraps its schema.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends verify-ca parameters to DATABASE_URL when a root cert is configured.
func buildDSN(cfg *config.Config) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if cfg.SslCertPath == "" {
		return cfg.DatabaseURL, nil
	}
	if _, err := os.Stat(cfg.SslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
	}

	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", cfg.SslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) RecordLoad(ctx context.Context, rec *models.LoadRecord) error {
	if rec == nil {
		return errors.New("nil load record")
	}
	const q = `
		INSERT INTO load_records
			(id, source_kind, locator, status, fingerprint, num_pages, content_type, size, error, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			fingerprint = EXCLUDED.fingerprint,
			num_pages = EXCLUDED.num_pages,
			content_type = EXCLUDED.content_type,
			size = EXCLUDED.size,
			error = EXCLUDED.error
	`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, q,
		rec.ID, rec.SourceKind, rec.Locator, rec.Status, rec.Fingerprint,
		rec.NumPages, rec.ContentType, rec.Size, rec.Error, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert load record %s: %w", rec.ID, err)
	}
	return nil
}

// GetLoadRecord returns nil, nil when no record has the id.
func (c *DatabaseClient) GetLoadRecord(ctx context.Context, id string) (*models.LoadRecord, error) {
	const q = `
		SELECT id, source_kind, locator, status, fingerprint, num_pages, content_type, size, error, created_at
		FROM load_records
		WHERE id = $1
	`
	var r models.LoadRecord
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&r.ID, &r.SourceKind, &r.Locator, &r.Status, &r.Fingerprint,
		&r.NumPages, &r.ContentType, &r.Size, &r.Error, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListLoadRecords returns the newest records first.
func (c *DatabaseClient) ListLoadRecords(ctx context.Context, limit int) ([]models.LoadRecord, error) {
	const q = `
		SELECT id, source_kind, locator, status, fingerprint, num_pages, content_type, size, error, created_at
		FROM load_records
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := c.db.QueryContext(ctx, q, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.LoadRecord{}
	for rows.Next() {
		var r models.LoadRecord
		if err := rows.Scan(
			&r.ID, &r.SourceKind, &r.Locator, &r.Status, &r.Fingerprint,
			&r.NumPages, &r.ContentType, &r.Size, &r.Error, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}
