package queue

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// schemaVersion is the current schema version. Bump this when the schema changes.
// Operators need to migrate or recreate the database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func loadSchema(d dialect) ([]string, error) {
	data, err := schemaFS.ReadFile("schema/" + d.name + ".sql")
	if err != nil {
		return nil, fmt.Errorf("read %s schema: %w", d.name, err)
	}
	var statements []string
	for _, stmt := range strings.Split(string(data), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Check if schema_version table exists (indicates an initialized database)
		var tableExists int
		if err := tx.QueryRowContext(ctx, s.dialect.rebind(s.dialect.tableExists), "schema_version").Scan(&tableExists); err != nil {
			return fmt.Errorf("check schema_version table: %w", err)
		}

		if tableExists == 0 {
			return s.createSchema(ctx, tx)
		}

		var version int
		if err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&version); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if version != schemaVersion {
			return fmt.Errorf("%w: database has version %d, expected %d",
				ErrSchemaMismatch, version, schemaVersion)
		}
		return nil
	})
}

func (s *Store) createSchema(ctx context.Context, tx *sql.Tx) error {
	statements, err := loadSchema(s.dialect)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind("INSERT INTO schema_version (version) VALUES (?)"), schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

func (s *Store) readSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&version)
	return version, err
}
