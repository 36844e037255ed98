package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"schedule_db_migrator/internal/db"
)

// Script executes one side of a unit inside the unit's transaction. The
// adapter is passed alongside the transaction for introspection guards and
// capability probes; all data access must go through tx.
type Script func(ctx context.Context, tx db.Querier, adapter db.Adapter) error

// Unit is one atomic, idempotent schema/data change with an optional reverse.
type Unit struct {
	ID      int64
	Name    string
	Forward Script
	Reverse Script

	// ForwardSQL and ReverseSQL hold the unit's canonical SQL text. For
	// file-sourced units this is the file content; Go units set it to the
	// statements they may issue. Checksumming over it catches source drift
	// between what the ledger recorded and what the binary now ships.
	ForwardSQL string
	ReverseSQL string
}

// Reversible reports whether the unit carries a reverse script.
func (u Unit) Reversible() bool { return u.Reverse != nil }

// Checksum fingerprints the unit's scripts the same way regardless of which
// capability branch a Go unit would take.
func (u Unit) Checksum() string {
	h := sha256.New()
	h.Write([]byte(u.ForwardSQL))
	h.Write([]byte(u.ReverseSQL))
	return hex.EncodeToString(h.Sum(nil))
}

// SQLScript wraps raw SQL as a Script, splitting and executing statement by
// statement through the adapter.
func SQLScript(sqlText string) Script {
	return func(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
		return adapter.ExecScript(ctx, tx, sqlText)
	}
}

// sortUnits orders units ascending by ID and rejects duplicates.
func sortUnits(units []Unit) ([]Unit, error) {
	out := make([]Unit, len(units))
	copy(out, units)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for i := 1; i < len(out); i++ {
		if out[i].ID == out[i-1].ID {
			return nil, fmt.Errorf("duplicate unit id %d (%s, %s)", out[i].ID, out[i-1].Name, out[i].Name)
		}
	}
	return out, nil
}
