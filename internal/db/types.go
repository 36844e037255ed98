package db

import (
	"database/sql"
	"time"
)

// Column describes a table column as reported by information_schema.
type Column struct {
	Name         string
	DataType     string
	IsNullable   bool
	IsGenerated  bool
	DefaultValue sql.NullString
}

// Capability reports whether the connected server supports an optional
// feature, with a human-readable reason when it does not.
type Capability struct {
	Supported bool
	Reason    string
}

// LedgerEntry is one applied-unit row in the ledger table.
type LedgerEntry struct {
	UnitID    int64
	Name      string
	Checksum  string
	RunID     string
	AppliedAt time.Time
}
