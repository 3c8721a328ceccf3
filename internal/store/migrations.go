package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed migrations/001_initial_schema.sql
var schemaInitial string

//go:embed migrations/002_tool_enabled.sql
var schemaToolEnabled string

// schemaRevision is one versioned slice of the database schema.
type schemaRevision struct {
	version int
	name    string
	script  string
}

var schemaRevisions = []schemaRevision{
	{version: 1, name: "initial_schema", script: schemaInitial},
	{version: 2, name: "tool_enabled", script: schemaToolEnabled},
}

// applySchema brings the database up to the latest revision. Each revision
// runs in its own transaction and is recorded in schema_version, so a rerun
// is a no-op.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, rev := range schemaRevisions {
		if rev.version <= current {
			continue
		}
		if err := applyRevision(ctx, db, rev); err != nil {
			return err
		}
	}
	return nil
}

func applyRevision(ctx context.Context, db *sql.DB, rev schemaRevision) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revision %d: %w", rev.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range sqlStatements(rev.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("revision %d (%s): %w", rev.version, rev.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, name) VALUES (?, ?)`, rev.version, rev.name); err != nil {
		return fmt.Errorf("record revision %d: %w", rev.version, err)
	}
	return tx.Commit()
}

// sqlStatements splits a script on semicolons, dropping empty and
// comment-only fragments.
func sqlStatements(script string) []string {
	var stmts []string
	for _, raw := range strings.Split(script, ";") {
		s := strings.TrimSpace(raw)
		if s == "" || commentOnly(s) {
			continue
		}
		stmts = append(stmts, s)
	}
	return stmts
}

func commentOnly(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
