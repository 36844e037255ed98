package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

type PostgresAdapter struct {
	db       *sql.DB
	lockConn *sql.Conn
}

func (p *PostgresAdapter) Provider() string { return "postgres" }

func (p *PostgresAdapter) Close() error {
	if p.lockConn != nil {
		_ = p.lockConn.Close()
		p.lockConn = nil
	}
	return p.db.Close()
}

func (p *PostgresAdapter) Begin(ctx context.Context) (Tx, error) {
	return p.db.BeginTx(ctx, nil)
}

// Lock holds a session-level advisory lock on a dedicated connection so the
// lock survives across the per-unit transactions of the run.
func (p *PostgresAdapter) Lock(ctx context.Context, table string) error {
	if p.lockConn != nil {
		return nil
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryKey(table)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("advisory lock: %w", err)
	}
	p.lockConn = conn
	return nil
}

func (p *PostgresAdapter) Unlock(ctx context.Context, table string) error {
	if p.lockConn == nil {
		return nil
	}
	_, err := p.lockConn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, advisoryKey(table))
	_ = p.lockConn.Close()
	p.lockConn = nil
	return err
}

func (p *PostgresAdapter) EnsureLedger(ctx context.Context, table string) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	unit_id bigint PRIMARY KEY,
	name varchar(255) NOT NULL,
	checksum varchar(128) NOT NULL,
	run_id varchar(64) NOT NULL,
	applied_at timestamptz NOT NULL DEFAULT now()
);
`, quoteIdent(table))
	_, err := p.db.ExecContext(ctx, stmt)
	return err
}

func (p *PostgresAdapter) LedgerEntries(ctx context.Context, table string) ([]LedgerEntry, error) {
	stmt := fmt.Sprintf(`SELECT unit_id, name, checksum, run_id, applied_at
FROM %s
ORDER BY unit_id`, quoteIdent(table))
	rows, err := p.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.UnitID, &e.Name, &e.Checksum, &e.RunID, &e.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) RecordApplied(ctx context.Context, q Querier, table string, entry LedgerEntry) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (unit_id, name, checksum, run_id, applied_at)
VALUES ($1,$2,$3,$4,$5)`, quoteIdent(table))
	_, err := q.ExecContext(ctx, stmt, entry.UnitID, entry.Name, entry.Checksum, entry.RunID, entry.AppliedAt)
	return err
}

func (p *PostgresAdapter) RemoveApplied(ctx context.Context, q Querier, table string, unitID int64) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE unit_id = $1`, quoteIdent(table))
	_, err := q.ExecContext(ctx, stmt, unitID)
	return err
}

func (p *PostgresAdapter) TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = current_schema() AND table_name = $1
)`, name).Scan(&exists)
	return exists, err
}

func (p *PostgresAdapter) ColumnDefinition(ctx context.Context, q Querier, table, column string) (Column, bool, error) {
	var (
		col       Column
		nullable  string
		generated string
	)
	err := q.QueryRowContext(ctx, `
SELECT column_name, data_type, is_nullable, is_generated, column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
		table, column,
	).Scan(&col.Name, &col.DataType, &nullable, &generated, &col.DefaultValue)
	if err == sql.ErrNoRows {
		return Column{}, false, nil
	}
	if err != nil {
		return Column{}, false, err
	}
	col.IsNullable = strings.EqualFold(nullable, "YES")
	col.IsGenerated = strings.EqualFold(generated, "ALWAYS")
	return col, true, nil
}

func (p *PostgresAdapter) IndexExists(ctx context.Context, q Querier, table, index string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM pg_indexes
	WHERE schemaname = current_schema() AND tablename = $1 AND indexname = $2
)`, table, index).Scan(&exists)
	return exists, err
}

// GeneratedColumns reports support based on the server version; stored
// generated columns arrived in PostgreSQL 12.
func (p *PostgresAdapter) GeneratedColumns(ctx context.Context) (Capability, error) {
	var versionNum string
	if err := p.db.QueryRowContext(ctx, `SHOW server_version_num`).Scan(&versionNum); err != nil {
		return Capability{}, err
	}
	return pgGeneratedColumns(versionNum), nil
}

func pgGeneratedColumns(versionNum string) Capability {
	n, err := strconv.Atoi(strings.TrimSpace(versionNum))
	if err != nil {
		return Capability{Reason: fmt.Sprintf("unparseable server_version_num %q", versionNum)}
	}
	if n < 120000 {
		return Capability{Reason: fmt.Sprintf("postgres %d predates generated columns (needs 12)", n/10000)}
	}
	return Capability{Supported: true}
}

func (p *PostgresAdapter) ExecScript(ctx context.Context, q Querier, script string) error {
	for _, stmt := range splitStatements(script) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// advisoryKey folds the ledger table name into the int64 key space
// pg_advisory_lock expects.
func advisoryKey(table string) int64 {
	sum := sha256.Sum256([]byte(table))
	var out int64
	for i := 0; i < 8; i++ {
		out = (out << 8) | int64(sum[i])
	}
	return out
}
