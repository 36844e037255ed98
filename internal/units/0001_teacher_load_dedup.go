package units

import (
	"context"
	"fmt"

	"schedule_db_migrator/internal/db"
	"schedule_db_migrator/internal/migrate"
)

// The duplicate teacher_load rows come from repeated spreadsheet imports.
// Keep one row per (teacher_name, subject, grade, class_list, hours) tuple
// and pin that down with a unique index so the imports stop reintroducing
// them.

const dedupIndexName = "teacher_load_identity_uidx"

const dedupDeletePostgres = `
DELETE FROM teacher_load t
USING (
	SELECT ctid AS row_id,
	       ROW_NUMBER() OVER (
	           PARTITION BY teacher_name, subject, grade, class_list, hours
	           ORDER BY ctid
	       ) AS rn
	FROM teacher_load
) d
WHERE t.ctid = d.row_id AND d.rn > 1;
`

const dedupIndexPostgres = `
CREATE UNIQUE INDEX IF NOT EXISTS teacher_load_identity_uidx
ON teacher_load (teacher_name, subject, grade, class_list, hours);
`

// Null-safe comparisons: imported rows can carry NULL hours (backfilled by a
// later repair), and GROUP BY already collapses NULLs into one group.
const dedupDeleteMySQL = `
DELETE t FROM teacher_load t
JOIN (
	SELECT MIN(id) AS keep_id,
	       teacher_name, subject, grade, class_list, hours
	FROM teacher_load
	GROUP BY teacher_name, subject, grade, class_list, hours
) k
  ON t.teacher_name <=> k.teacher_name
 AND t.subject <=> k.subject
 AND t.grade <=> k.grade
 AND t.class_list <=> k.class_list
 AND t.hours <=> k.hours
WHERE t.id <> k.keep_id;
`

const dedupIndexMySQL = `
CREATE UNIQUE INDEX teacher_load_identity_uidx
ON teacher_load (teacher_name, subject, grade, class_list, hours)
`

func init() {
	register(migrate.Unit{
		ID:         1,
		Name:       "teacher_load_dedup",
		Forward:    dedupForward,
		Reverse:    dedupReverse,
		ForwardSQL: dedupDeletePostgres + dedupIndexPostgres + dedupDeleteMySQL + dedupIndexMySQL,
		ReverseSQL: "DROP INDEX " + dedupIndexName,
	})
}

func dedupForward(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
	ok, err := adapter.TableExists(ctx, tx, "teacher_load")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: table teacher_load not found", migrate.ErrSchemaConflict)
	}

	if adapter.Provider() == "postgres" {
		return adapter.ExecScript(ctx, tx, dedupDeletePostgres+dedupIndexPostgres)
	}

	if err := adapter.ExecScript(ctx, tx, dedupDeleteMySQL); err != nil {
		return err
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	exists, err := adapter.IndexExists(ctx, tx, "teacher_load", dedupIndexName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.ExecContext(ctx, dedupIndexMySQL)
	return err
}

// dedupReverse drops the unique index. Deleted duplicates are not
// resurrected; the repair itself is one-way.
func dedupReverse(ctx context.Context, tx db.Querier, adapter db.Adapter) error {
	if adapter.Provider() == "postgres" {
		_, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS `+dedupIndexName)
		return err
	}
	exists, err := adapter.IndexExists(ctx, tx, "teacher_load", dedupIndexName)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	_, err = tx.ExecContext(ctx, `DROP INDEX `+dedupIndexName+` ON teacher_load`)
	return err
}
