package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"schedule_db_migrator/internal/db"
)

// Runner applies migration units in order against a single database,
// recording applied units in the ledger table.
type Runner struct {
	adapter db.Adapter
	units   []Unit
	table   string
	runID   uuid.UUID
	logger  *slog.Logger
}

// UnitError identifies which unit a run stopped at.
type UnitError struct {
	UnitID int64
	Name   string
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %04d %s: %v", e.UnitID, e.Name, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Status is the applied/pending split reported to the CLI.
type Status struct {
	Applied []db.LedgerEntry
	Pending []Unit
}

func New(adapter db.Adapter, units []Unit, table string, logger *slog.Logger) (*Runner, error) {
	ordered, err := sortUnits(units)
	if err != nil {
		return nil, err
	}
	return &Runner{
		adapter: adapter,
		units:   ordered,
		table:   table,
		runID:   uuid.New(),
		logger:  logger,
	}, nil
}

// Plan returns the units not yet recorded in the ledger, ascending by ID.
// It mutates nothing and is safe to call repeatedly.
func (r *Runner) Plan(ctx context.Context) ([]Unit, error) {
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Unit
	for _, u := range r.units {
		if _, ok := applied[u.ID]; !ok {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

// Apply executes the unit's forward script and records it in the ledger,
// both inside one transaction. Re-applying a recorded unit is a no-op unless
// its checksum drifted from what the ledger recorded.
func (r *Runner) Apply(ctx context.Context, unit Unit) error {
	return r.withLock(ctx, func() error {
		applied, err := r.applied(ctx)
		if err != nil {
			return err
		}
		return r.applyLocked(ctx, unit, applied)
	})
}

func (r *Runner) applyLocked(ctx context.Context, unit Unit, applied map[int64]db.LedgerEntry) error {
	if entry, ok := applied[unit.ID]; ok {
		if entry.Checksum != unit.Checksum() {
			return fmt.Errorf("%w: unit %04d already applied with a different checksum", ErrSchemaConflict, unit.ID)
		}
		r.logger.Info("unit already applied, skipping", "unit", unit.ID, "name", unit.Name)
		return nil
	}

	tx, err := r.adapter.Begin(ctx)
	if err != nil {
		return Classify(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := unit.Forward(ctx, tx, r.adapter); err != nil {
		return Classify(err)
	}
	entry := db.LedgerEntry{
		UnitID:    unit.ID,
		Name:      unit.Name,
		Checksum:  unit.Checksum(),
		RunID:     r.runID.String(),
		AppliedAt: time.Now().UTC(),
	}
	if err := r.adapter.RecordApplied(ctx, tx, r.table, entry); err != nil {
		return Classify(err)
	}
	if err := tx.Commit(); err != nil {
		return Classify(err)
	}
	r.logger.Info("unit applied", "unit", unit.ID, "name", unit.Name, "run_id", r.runID.String())
	return nil
}

// Rollback executes the unit's reverse script and removes its ledger entry,
// both inside one transaction. Rolling back a unit that was never applied is
// a no-op; a unit without a reverse script fails with ErrNotReversible.
func (r *Runner) Rollback(ctx context.Context, unit Unit) error {
	return r.withLock(ctx, func() error {
		applied, err := r.applied(ctx)
		if err != nil {
			return err
		}
		return r.rollbackLocked(ctx, unit, applied)
	})
}

func (r *Runner) rollbackLocked(ctx context.Context, unit Unit, applied map[int64]db.LedgerEntry) error {
	if !unit.Reversible() {
		return fmt.Errorf("%w: unit %04d %s", ErrNotReversible, unit.ID, unit.Name)
	}
	if _, ok := applied[unit.ID]; !ok {
		r.logger.Info("unit not applied, nothing to roll back", "unit", unit.ID, "name", unit.Name)
		return nil
	}

	tx, err := r.adapter.Begin(ctx)
	if err != nil {
		return Classify(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := unit.Reverse(ctx, tx, r.adapter); err != nil {
		return Classify(err)
	}
	if err := r.adapter.RemoveApplied(ctx, tx, r.table, unit.ID); err != nil {
		return Classify(err)
	}
	if err := tx.Commit(); err != nil {
		return Classify(err)
	}
	r.logger.Info("unit rolled back", "unit", unit.ID, "name", unit.Name)
	return nil
}

// ApplyAll applies every pending unit in order, stopping at the first
// failure. The returned *UnitError names the failing unit; units after it
// are not attempted.
func (r *Runner) ApplyAll(ctx context.Context) error {
	return r.UpTo(ctx, 0)
}

// UpTo applies pending units with ID <= target; target 0 means all.
func (r *Runner) UpTo(ctx context.Context, target int64) error {
	return r.withLock(ctx, func() error {
		applied, err := r.applied(ctx)
		if err != nil {
			return err
		}
		for _, u := range r.units {
			if target > 0 && u.ID > target {
				break
			}
			if err := r.applyLocked(ctx, u, applied); err != nil {
				return &UnitError{UnitID: u.ID, Name: u.Name, Err: err}
			}
		}
		return nil
	})
}

// RollbackLast rolls back the most recently applied unit, if any.
func (r *Runner) RollbackLast(ctx context.Context) error {
	return r.downTo(ctx, -1)
}

// DownTo rolls back applied units with ID > target, newest first, so that
// target becomes the highest applied unit. Target 0 rolls back everything.
func (r *Runner) DownTo(ctx context.Context, target int64) error {
	return r.downTo(ctx, target)
}

func (r *Runner) downTo(ctx context.Context, target int64) error {
	return r.withLock(ctx, func() error {
		applied, err := r.applied(ctx)
		if err != nil {
			return err
		}
		onlyLast := target < 0
		for i := len(r.units) - 1; i >= 0; i-- {
			u := r.units[i]
			if _, ok := applied[u.ID]; !ok {
				continue
			}
			if !onlyLast && u.ID <= target {
				break
			}
			if err := r.rollbackLocked(ctx, u, applied); err != nil {
				return &UnitError{UnitID: u.ID, Name: u.Name, Err: err}
			}
			if onlyLast {
				return nil
			}
		}
		return nil
	})
}

// CurrentStatus reports applied ledger entries and pending units.
func (r *Runner) CurrentStatus(ctx context.Context) (Status, error) {
	var st Status
	if err := r.adapter.EnsureLedger(ctx, r.table); err != nil {
		return st, Classify(err)
	}
	entries, err := r.adapter.LedgerEntries(ctx, r.table)
	if err != nil {
		return st, Classify(err)
	}
	st.Applied = entries
	seen := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		seen[e.UnitID] = struct{}{}
	}
	for _, u := range r.units {
		if _, ok := seen[u.ID]; !ok {
			st.Pending = append(st.Pending, u)
		}
	}
	return st, nil
}

func (r *Runner) applied(ctx context.Context) (map[int64]db.LedgerEntry, error) {
	if err := r.adapter.EnsureLedger(ctx, r.table); err != nil {
		return nil, Classify(err)
	}
	entries, err := r.adapter.LedgerEntries(ctx, r.table)
	if err != nil {
		return nil, Classify(err)
	}
	out := make(map[int64]db.LedgerEntry, len(entries))
	for _, e := range entries {
		out[e.UnitID] = e
	}
	return out, nil
}

// withLock holds the ledger advisory lock for the whole operation so no two
// runners interleave against the same ledger.
func (r *Runner) withLock(ctx context.Context, fn func() error) error {
	if err := r.adapter.Lock(ctx, r.table); err != nil {
		return Classify(err)
	}
	defer func() {
		_ = r.adapter.Unlock(ctx, r.table)
	}()
	return fn()
}
