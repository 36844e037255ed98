package units

import (
	"context"
	"fmt"
	"strings"

	"schedule_db_migrator/internal/db"
	"schedule_db_migrator/internal/migrate"
)

// The solver binary reads subject_name while the importer writes subject.
// Where the server persists generated columns, subject_name tracks subject
// automatically, including rows inserted later. Older servers get a
// readable compatibility view instead.

const compatViewName = "solver_input_compat"

const subjectNameColumnPostgres = `
ALTER TABLE solver_input
ADD COLUMN subject_name text GENERATED ALWAYS AS (subject) STORED
`

const subjectNameColumnMySQL = `
ALTER TABLE solver_input
ADD COLUMN subject_name varchar(255) GENERATED ALWAYS AS (subject) STORED
`

const subjectNameView = `
CREATE OR REPLACE VIEW solver_input_compat AS
SELECT s.*, s.subject AS subject_name
FROM solver_input s
`

func init() {
	register(migrate.Unit{
		ID:         2,
		Name:       "solver_input_subject_name",
		Forward:    subjectNameForward,
		Reverse:    subjectNameReverse,
		ForwardSQL: subjectNameColumnPostgres + subjectNameColumnMySQL + subjectNameView,
		ReverseSQL: "DROP VIEW IF EXISTS " + compatViewName + "; ALTER TABLE solver_input DROP COLUMN subject_name",
	})
}

func subjectNameForward(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
	ok, err := adapter.TableExists(ctx, tx, "solver_input")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: table solver_input not found", migrate.ErrSchemaConflict)
	}

	col, present, err := adapter.ColumnDefinition(ctx, tx, "solver_input", "subject_name")
	if err != nil {
		return err
	}
	if present {
		if col.IsGenerated {
			return nil
		}
		// Same name, different definition: never silently proceed.
		return fmt.Errorf("%w: solver_input.subject_name exists as plain %s, expected a generated column",
			migrate.ErrSchemaConflict, col.DataType)
	}

	capability, err := adapter.GeneratedColumns(ctx)
	if err != nil {
		return err
	}
	if capability.Supported {
		stmt := subjectNameColumnPostgres
		if adapter.Provider() != "postgres" {
			stmt = subjectNameColumnMySQL
		}
		_, err := tx.ExecContext(ctx, stmt)
		return err
	}

	if _, err := tx.ExecContext(ctx, subjectNameView); err != nil {
		return err
	}
	if adapter.Provider() == "postgres" {
		_, err := tx.ExecContext(ctx, `GRANT SELECT ON `+compatViewName+` TO PUBLIC`)
		return err
	}
	return nil
}

// subjectNameReverse drops whichever object the forward pass created.
func subjectNameReverse(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
	if _, err := tx.ExecContext(ctx, `DROP VIEW IF EXISTS `+compatViewName); err != nil {
		return err
	}

	col, present, err := adapter.ColumnDefinition(ctx, tx, "solver_input", "subject_name")
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	if !col.IsGenerated {
		// Someone replaced it with a real column; leave that alone.
		return fmt.Errorf("%w: solver_input.subject_name is not the generated column this unit created (%s)",
			migrate.ErrRollbackConflict, strings.TrimSpace(col.DataType))
	}
	_, err = tx.ExecContext(ctx, `ALTER TABLE solver_input DROP COLUMN subject_name`)
	return err
}
