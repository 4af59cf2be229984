package migration

import (
	"context"

	"github.com/jmoiron/sqlx"

	"sheetlens/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.2.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. Every step is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createUploadsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create uploads table")
	}

	if err := r.addUploadsColumns(ctx, db); err != nil {
		return errors.Wrap(err, "failed to add uploads columns")
	}

	if err := r.convertSampleRows(ctx, db); err != nil {
		return errors.Wrap(err, "failed to convert sample_rows column")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createUploadsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS uploads (
			id UUID PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			original_filename TEXT NOT NULL,
			stored_filename TEXT NOT NULL,
			mime_type VARCHAR(255),
			file_size BIGINT NOT NULL CHECK (file_size >= 0),
			status VARCHAR(20) NOT NULL DEFAULT 'processing'
				CHECK (status IN ('processing', 'processed', 'error')),
			processing_started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			processing_completed_at TIMESTAMP WITH TIME ZONE,
			error_message TEXT,
			row_count INTEGER,
			column_count INTEGER,
			column_schema JSONB,
			sample_rows BYTEA,
			data_statistics JSONB,
			full_data BYTEA,
			insight JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

// addUploadsColumns brings tables created by 1.0.0 up to date
func (r *MigrationRunner) addUploadsColumns(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'uploads' AND column_name = 'content_hash'
			) THEN
				ALTER TABLE uploads ADD COLUMN content_hash VARCHAR(64);
			END IF;
		END $$;
	`)
	return err
}

// convertSampleRows moves 1.1.0 JSONB sample rows to BYTEA. Rows written
// before the change keep their JSON text.
func (r *MigrationRunner) convertSampleRows(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		DO $$
		BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'uploads' AND column_name = 'sample_rows' AND data_type = 'jsonb'
			) THEN
				ALTER TABLE uploads ALTER COLUMN sample_rows TYPE BYTEA
					USING convert_to(sample_rows::text, 'UTF8');
			END IF;
		END $$;
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_uploads_owner_created ON uploads(owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_content_hash ON uploads(content_hash)`,
	}

	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
