package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type MySQLAdapter struct {
	db       *sql.DB
	lockConn *sql.Conn
}

func (m *MySQLAdapter) Provider() string { return "mysql" }

func (m *MySQLAdapter) Close() error {
	if m.lockConn != nil {
		_ = m.lockConn.Close()
		m.lockConn = nil
	}
	return m.db.Close()
}

func (m *MySQLAdapter) Begin(ctx context.Context) (Tx, error) {
	return m.db.BeginTx(ctx, nil)
}

// Lock uses GET_LOCK on a dedicated connection; MySQL named locks are
// session-scoped, so the connection is held until Unlock.
func (m *MySQLAdapter) Lock(ctx context.Context, table string) error {
	if m.lockConn != nil {
		return nil
	}
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return err
	}
	var got int
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 10)`, lockName(table)).Scan(&got); err != nil {
		_ = conn.Close()
		return fmt.Errorf("get lock: %w", err)
	}
	if got != 1 {
		_ = conn.Close()
		return errors.New("could not acquire migration lock")
	}
	m.lockConn = conn
	return nil
}

func (m *MySQLAdapter) Unlock(ctx context.Context, table string) error {
	if m.lockConn == nil {
		return nil
	}
	_, err := m.lockConn.ExecContext(ctx, `SELECT RELEASE_LOCK(?)`, lockName(table))
	_ = m.lockConn.Close()
	m.lockConn = nil
	return err
}

func (m *MySQLAdapter) EnsureLedger(ctx context.Context, table string) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	unit_id bigint PRIMARY KEY,
	name varchar(255) NOT NULL,
	checksum varchar(128) NOT NULL,
	run_id varchar(64) NOT NULL,
	applied_at timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB;
`, backquote(table))
	_, err := m.db.ExecContext(ctx, stmt)
	return err
}

func (m *MySQLAdapter) LedgerEntries(ctx context.Context, table string) ([]LedgerEntry, error) {
	stmt := fmt.Sprintf(`SELECT unit_id, name, checksum, run_id, applied_at
FROM %s
ORDER BY unit_id`, backquote(table))
	rows, err := m.db.QueryContext(ctx, stmt)
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

func (m *MySQLAdapter) RecordApplied(ctx context.Context, q Querier, table string, entry LedgerEntry) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (unit_id, name, checksum, run_id, applied_at)
VALUES (?,?,?,?,?)`, backquote(table))
	_, err := q.ExecContext(ctx, stmt, entry.UnitID, entry.Name, entry.Checksum, entry.RunID, entry.AppliedAt)
	return err
}

func (m *MySQLAdapter) RemoveApplied(ctx context.Context, q Querier, table string, unitID int64) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE unit_id = ?`, backquote(table))
	_, err := q.ExecContext(ctx, stmt, unitID)
	return err
}

func (m *MySQLAdapter) TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_name = ?`, name).Scan(&count)
	return count > 0, err
}

func (m *MySQLAdapter) ColumnDefinition(ctx context.Context, q Querier, table, column string) (Column, bool, error) {
	var (
		col      Column
		nullable string
		extra    string
	)
	err := q.QueryRowContext(ctx, `
SELECT column_name, column_type, is_nullable, extra, column_default
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
		table, column,
	).Scan(&col.Name, &col.DataType, &nullable, &extra, &col.DefaultValue)
	if err == sql.ErrNoRows {
		return Column{}, false, nil
	}
	if err != nil {
		return Column{}, false, err
	}
	col.IsNullable = strings.EqualFold(nullable, "YES")
	col.IsGenerated = strings.Contains(strings.ToUpper(extra), "GENERATED")
	return col, true, nil
}

func (m *MySQLAdapter) IndexExists(ctx context.Context, q Querier, table, index string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM information_schema.statistics
WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`, table, index).Scan(&count)
	return count > 0, err
}

// GeneratedColumns reports support based on the server version; MySQL grew
// stored generated columns in 5.7, MariaDB in 10.2.
func (m *MySQLAdapter) GeneratedColumns(ctx context.Context) (Capability, error) {
	var version string
	if err := m.db.QueryRowContext(ctx, `SELECT VERSION()`).Scan(&version); err != nil {
		return Capability{}, err
	}
	return mysqlGeneratedColumns(version), nil
}

func mysqlGeneratedColumns(version string) Capability {
	major, minor, ok := parseVersionPrefix(version)
	if !ok {
		return Capability{Reason: fmt.Sprintf("unparseable server version %q", version)}
	}
	if strings.Contains(strings.ToLower(version), "mariadb") {
		if major > 10 || (major == 10 && minor >= 2) {
			return Capability{Supported: true}
		}
		return Capability{Reason: fmt.Sprintf("mariadb %d.%d predates generated columns (needs 10.2)", major, minor)}
	}
	if major > 5 || (major == 5 && minor >= 7) {
		return Capability{Supported: true}
	}
	return Capability{Reason: fmt.Sprintf("mysql %d.%d predates generated columns (needs 5.7)", major, minor)}
}

func parseVersionPrefix(version string) (major, minor int, ok bool) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minorDigits := parts[1]
	if i := strings.IndexFunc(minorDigits, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minorDigits = minorDigits[:i]
	}
	minor, err = strconv.Atoi(minorDigits)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

func (m *MySQLAdapter) ExecScript(ctx context.Context, q Querier, script string) error {
	for _, stmt := range splitStatements(script) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func backquote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func lockName(table string) string {
	return "schedule-migrator:" + table
}
