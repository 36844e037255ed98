package migrate

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Failure taxonomy. Every error leaving the runner wraps exactly one of
// these, with the underlying driver error preserved verbatim.
var (
	ErrSchemaConflict   = errors.New("schema conflict")
	ErrDataIntegrity    = errors.New("data integrity violation")
	ErrNotReversible    = errors.New("unit has no reverse script")
	ErrRollbackConflict = errors.New("dependent objects block rollback")
	ErrConnection       = errors.New("database connection failure")
)

var sentinels = []error{
	ErrSchemaConflict,
	ErrDataIntegrity,
	ErrNotReversible,
	ErrRollbackConflict,
	ErrConnection,
}

// Classify wraps a driver error with the matching sentinel. Errors already
// carrying a sentinel (introspection guards inside units classify their own
// failures) pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if sentinel := classifyPgCode(pgErr.Code); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
		return err
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if sentinel := classifyMySQLNumber(myErr.Number); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}

// classifyPgCode maps a PostgreSQL SQLSTATE to a sentinel. Class 42 is
// syntax/definition errors (duplicate object, datatype mismatch), class 23
// integrity constraint violations, class 2B dependent objects still exist,
// class 08 connection exceptions. Anything else (timeouts, serialization
// failures) returns nil and is surfaced as-is.
func classifyPgCode(code string) error {
	if len(code) < 2 {
		return nil
	}
	switch code[:2] {
	case "42":
		return ErrSchemaConflict
	case "23":
		return ErrDataIntegrity
	case "2B":
		return ErrRollbackConflict
	case "08":
		return ErrConnection
	default:
		return nil
	}
}

func classifyMySQLNumber(number uint16) error {
	switch number {
	case 1050, 1060, 1061, 1064, 1091, 1146:
		// table/column/index already exists or missing, bad DDL
		return ErrSchemaConflict
	case 1048, 1062, 1216, 1217, 1451, 1452, 3819:
		// NOT NULL, duplicate key, foreign key, check violations
		return ErrDataIntegrity
	case 3730:
		// cannot drop, referenced by another object
		return ErrRollbackConflict
	case 1040, 1042, 1043, 1044, 1045, 1129, 1130, 2002, 2003, 2006, 2013:
		return ErrConnection
	default:
		// lock waits, deadlocks and the rest stay unclassified
		return nil
	}
}
