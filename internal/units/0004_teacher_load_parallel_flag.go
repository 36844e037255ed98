package units

import (
	"context"
	"fmt"
	"strings"

	"schedule_db_migrator/internal/db"
	"schedule_db_migrator/internal/migrate"
)

// Parallel teaching is tracked in the companion parallel_group_detail table;
// the solver wants it denormalized onto teacher_load. This unit refuses to
// run until both tables exist, so the flag repair can never race the schema
// it reads from.

const parallelFlagColumnPostgres = `
ALTER TABLE teacher_load
ADD COLUMN IF NOT EXISTS is_parallel boolean NOT NULL DEFAULT false
`

const parallelFlagColumnMySQL = `
ALTER TABLE teacher_load
ADD COLUMN is_parallel tinyint(1) NOT NULL DEFAULT 0
`

const parallelFlagRepair = `
UPDATE teacher_load
SET is_parallel = TRUE
WHERE is_parallel = FALSE
  AND id IN (SELECT load_id FROM parallel_group_detail)
`

func init() {
	register(migrate.Unit{
		ID:         4,
		Name:       "teacher_load_parallel_flag",
		Forward:    parallelFlagForward,
		Reverse:    parallelFlagReverse,
		ForwardSQL: parallelFlagColumnPostgres + parallelFlagColumnMySQL + parallelFlagRepair,
		ReverseSQL: "ALTER TABLE teacher_load DROP COLUMN is_parallel",
	})
}

func parallelFlagForward(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
	for _, table := range []string{"teacher_load", "parallel_group_detail"} {
		ok, err := adapter.TableExists(ctx, tx, table)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: parallel flag repair needs table %s", migrate.ErrSchemaConflict, table)
		}
	}

	col, present, err := adapter.ColumnDefinition(ctx, tx, "teacher_load", "is_parallel")
	if err != nil {
		return err
	}
	switch {
	case !present && adapter.Provider() == "postgres":
		if _, err := tx.ExecContext(ctx, parallelFlagColumnPostgres); err != nil {
			return err
		}
	case !present:
		if _, err := tx.ExecContext(ctx, parallelFlagColumnMySQL); err != nil {
			return err
		}
	case !isBooleanColumn(adapter.Provider(), col):
		return fmt.Errorf("%w: teacher_load.is_parallel exists as %s, expected a boolean flag",
			migrate.ErrSchemaConflict, col.DataType)
	}

	_, err = tx.ExecContext(ctx, parallelFlagRepair)
	return err
}

func parallelFlagReverse(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
	if adapter.Provider() == "postgres" {
		_, err := tx.ExecContext(ctx, `ALTER TABLE teacher_load DROP COLUMN IF EXISTS is_parallel`)
		return err
	}
	_, present, err := adapter.ColumnDefinition(ctx, tx, "teacher_load", "is_parallel")
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	_, err = tx.ExecContext(ctx, `ALTER TABLE teacher_load DROP COLUMN is_parallel`)
	return err
}

func isBooleanColumn(provider string, col db.Column) bool {
	dataType := strings.ToLower(col.DataType)
	if provider == "postgres" {
		return dataType == "boolean"
	}
	return strings.HasPrefix(dataType, "tinyint") || dataType == "bit(1)"
}
