package migrate

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPostgresCodes(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"42P07", ErrSchemaConflict}, // duplicate_table
		{"42701", ErrSchemaConflict}, // duplicate_column
		{"42804", ErrSchemaConflict}, // datatype_mismatch
		{"23505", ErrDataIntegrity},  // unique_violation
		{"23502", ErrDataIntegrity},  // not_null_violation
		{"23503", ErrDataIntegrity},  // foreign_key_violation
		{"2BP01", ErrRollbackConflict},
		{"08006", ErrConnection}, // connection_failure
		{"08000", ErrConnection},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			src := &pgconn.PgError{Code: tc.code, Message: "boom"}
			got := Classify(src)
			assert.ErrorIs(t, got, tc.want)

			var pgErr *pgconn.PgError
			require.ErrorAs(t, got, &pgErr, "driver error must survive verbatim")
			assert.Equal(t, tc.code, pgErr.Code)
		})
	}
}

func TestClassifyMySQLNumbers(t *testing.T) {
	cases := []struct {
		number uint16
		want   error
	}{
		{1050, ErrSchemaConflict}, // table already exists
		{1060, ErrSchemaConflict}, // duplicate column
		{1061, ErrSchemaConflict}, // duplicate key name
		{1146, ErrSchemaConflict}, // table doesn't exist
		{1062, ErrDataIntegrity},  // duplicate entry
		{1048, ErrDataIntegrity},  // column cannot be null
		{1452, ErrDataIntegrity},  // foreign key fails
		{3730, ErrRollbackConflict},
		{1045, ErrConnection}, // access denied
		{2002, ErrConnection}, // can't connect
		{2013, ErrConnection}, // lost connection
	}
	for _, tc := range cases {
		src := &mysql.MySQLError{Number: tc.number, Message: "boom"}
		got := Classify(src)
		assert.ErrorIs(t, got, tc.want, "errno %d", tc.number)

		var myErr *mysql.MySQLError
		require.ErrorAs(t, got, &myErr)
		assert.Equal(t, tc.number, myErr.Number)
	}
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

func TestClassifyLeavesUnmatchedDriverErrorsAlone(t *testing.T) {
	// Timeouts, lock waits and serialization failures are not taxonomy
	// members; they must reach the operator unwrapped.
	for _, code := range []string{"57014", "55P03", "40001"} {
		src := &pgconn.PgError{Code: code, Message: "boom"}
		got := Classify(src)
		assert.Same(t, src, got, "code %s", code)
		for _, s := range sentinels {
			assert.NotErrorIs(t, got, s, "code %s", code)
		}
	}

	for _, number := range []uint16{1205, 1213} {
		src := &mysql.MySQLError{Number: number, Message: "boom"}
		got := Classify(src)
		assert.Same(t, src, got, "errno %d", number)
		for _, s := range sentinels {
			assert.NotErrorIs(t, got, s, "errno %d", number)
		}
	}
}

func TestClassifyConnectionErrors(t *testing.T) {
	assert.ErrorIs(t, Classify(fakeNetError{}), ErrConnection)
	assert.ErrorIs(t, Classify(driver.ErrBadConn), ErrConnection)
	assert.ErrorIs(t, Classify(fmt.Errorf("querying: %w", driver.ErrBadConn)), ErrConnection)
}

func TestClassifyPassesThroughClassifiedErrors(t *testing.T) {
	already := fmt.Errorf("%w: table teacher_load does not exist", ErrSchemaConflict)
	got := Classify(already)
	assert.Same(t, already, got, "pre-classified errors must not be re-wrapped")

	plain := errors.New("something unrelated")
	assert.Same(t, plain, Classify(plain))

	assert.NoError(t, Classify(nil))
}
