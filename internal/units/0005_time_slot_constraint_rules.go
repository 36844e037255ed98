package units

import (
	"context"
	"fmt"
	"strings"

	"schedule_db_migrator/internal/db"
	"schedule_db_migrator/internal/migrate"
)

// Scheduling constraints (blocked slots, room requirements) move from the
// frontend's ad-hoc encoding into a JSON column on time_slot.

const constraintRulesColumnPostgres = `
ALTER TABLE time_slot
ADD COLUMN IF NOT EXISTS constraint_rules jsonb NOT NULL DEFAULT '{}'::jsonb
`

// MySQL cannot attach a literal default to a JSON column everywhere we still
// run it, so add the column nullable and backfill.
const constraintRulesColumnMySQL = `
ALTER TABLE time_slot
ADD COLUMN constraint_rules json NULL
`

const constraintRulesBackfillMySQL = `
UPDATE time_slot
SET constraint_rules = JSON_OBJECT()
WHERE constraint_rules IS NULL
`

func init() {
	register(migrate.Unit{
		ID:         5,
		Name:       "time_slot_constraint_rules",
		Forward:    constraintRulesForward,
		Reverse:    constraintRulesReverse,
		ForwardSQL: constraintRulesColumnPostgres + constraintRulesColumnMySQL + constraintRulesBackfillMySQL,
		ReverseSQL: "ALTER TABLE time_slot DROP COLUMN constraint_rules",
	})
}

func constraintRulesForward(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
	ok, err := adapter.TableExists(ctx, tx, "time_slot")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: table time_slot not found", migrate.ErrSchemaConflict)
	}

	col, present, err := adapter.ColumnDefinition(ctx, tx, "time_slot", "constraint_rules")
	if err != nil {
		return err
	}
	if present && !isJSONColumn(col) {
		return fmt.Errorf("%w: time_slot.constraint_rules exists as %s, expected a JSON column",
			migrate.ErrSchemaConflict, col.DataType)
	}

	if adapter.Provider() == "postgres" {
		_, err := tx.ExecContext(ctx, constraintRulesColumnPostgres)
		return err
	}
	if !present {
		if _, err := tx.ExecContext(ctx, constraintRulesColumnMySQL); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, constraintRulesBackfillMySQL)
	return err
}

func constraintRulesReverse(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
	if adapter.Provider() == "postgres" {
		_, err := tx.ExecContext(ctx, `ALTER TABLE time_slot DROP COLUMN IF EXISTS constraint_rules`)
		return err
	}
	_, present, err := adapter.ColumnDefinition(ctx, tx, "time_slot", "constraint_rules")
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	_, err = tx.ExecContext(ctx, `ALTER TABLE time_slot DROP COLUMN constraint_rules`)
	return err
}

func isJSONColumn(col db.Column) bool {
	return strings.Contains(strings.ToLower(col.DataType), "json")
}
