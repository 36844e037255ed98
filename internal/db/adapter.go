package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"schedule_db_migrator/internal/config"
)

// Querier is the subset of database/sql shared by *sql.DB, *sql.Conn and
// *sql.Tx. Migration scripts only ever see this interface.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a transaction scoped to a single migration unit. *sql.Tx satisfies it.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Adapter abstracts provider-specific behavior.
type Adapter interface {
	Provider() string
	Close() error

	// Begin opens the transaction a single unit (and its ledger write) runs in.
	Begin(ctx context.Context) (Tx, error)

	// Lock takes a database-side advisory lock keyed on the ledger table so
	// that at most one runner mutates the ledger at a time. Unlock releases it.
	Lock(ctx context.Context, table string) error
	Unlock(ctx context.Context, table string) error

	EnsureLedger(ctx context.Context, table string) error
	LedgerEntries(ctx context.Context, table string) ([]LedgerEntry, error)
	RecordApplied(ctx context.Context, q Querier, table string, entry LedgerEntry) error
	RemoveApplied(ctx context.Context, q Querier, table string, unitID int64) error

	TableExists(ctx context.Context, q Querier, name string) (bool, error)
	ColumnDefinition(ctx context.Context, q Querier, table, column string) (Column, bool, error)
	IndexExists(ctx context.Context, q Querier, table, index string) (bool, error)

	// GeneratedColumns probes whether the server can persist generated columns.
	GeneratedColumns(ctx context.Context) (Capability, error)

	// ExecScript runs a multi-statement SQL script through q, one statement
	// at a time to avoid driver differences around multi-statements.
	ExecScript(ctx context.Context, q Querier, script string) error
}

// Open builds an adapter for the given configuration.
func Open(cfg config.DBConfig) (Adapter, error) {
	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case "postgres":
		handle, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, err
		}
		handle.SetConnMaxIdleTime(5 * time.Minute)
		handle.SetMaxOpenConns(5)
		return &PostgresAdapter{db: handle}, nil
	case "mysql":
		// Validate DSN early to provide actionable errors.
		if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		handle, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, err
		}
		handle.SetConnMaxIdleTime(5 * time.Minute)
		handle.SetMaxOpenConns(5)
		return &MySQLAdapter{db: handle}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %s", cfg.Provider)
	}
}

// splitStatements is a small helper used by both providers to avoid driver
// differences around multi-statements. Semicolons inside quotes, -- line
// comments and /* */ block comments do not end a statement; fragments that
// hold nothing but comments are dropped rather than sent to the server.
func splitStatements(sqlText string) []string {
	var (
		out        []string
		current    strings.Builder
		inSingle   bool
		inDouble   bool
		hasContent bool
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" && hasContent {
			out = append(out, stmt)
		}
		current.Reset()
		hasContent = false
	}

	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]

		if !inSingle && !inDouble {
			if c == '-' && i+1 < len(sqlText) && sqlText[i+1] == '-' {
				end := strings.IndexByte(sqlText[i:], '\n')
				if end < 0 {
					current.WriteString(sqlText[i:])
					i = len(sqlText)
					continue
				}
				current.WriteString(sqlText[i : i+end+1])
				i += end
				continue
			}
			if c == '/' && i+1 < len(sqlText) && sqlText[i+1] == '*' {
				end := strings.Index(sqlText[i+2:], "*/")
				if end < 0 {
					current.WriteString(sqlText[i:])
					i = len(sqlText)
					continue
				}
				current.WriteString(sqlText[i : i+2+end+2])
				i += 2 + end + 1
				continue
			}
		}

		switch c {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				flush()
				continue
			}
		}
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			hasContent = true
		}
		current.WriteByte(c)
	}
	flush()
	return out
}
