package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect string

const (
	Postgres Dialect = config.DATABASE_TYPE_POSTGRES
	MySQL    Dialect = config.DATABASE_TYPE_MYSQL
	SQLite   Dialect = config.DATABASE_TYPE_SQLLITE
)

func ParseDialect(databaseType string) (Dialect, error) {
	switch d := Dialect(strings.ToUpper(databaseType)); d {
	case Postgres, MySQL, SQLite:
		return d, nil
	}
	return "", fmt.Errorf("GFLOW_DATABASE_TYPE must be one of POSTGRES, MYSQL, SQLLITE, got %q", databaseType)
}

// DialectFromConfig reads GFLOW_DATABASE_TYPE.
func DialectFromConfig() (Dialect, error) {
	return ParseDialect(config.GetSystemSettingString(config.DATABASE_TYPE))
}

// placeholder returns the correct bind variable for the given index.
// Postgres uses $1, $2... while MySQL and SQLite use ?
func (d Dialect) placeholder(i int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// placeholders returns n comma separated bind variables starting at index 1.
func (d Dialect) placeholders(n int) string {
	pps := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		pps = append(pps, d.placeholder(i))
	}
	return strings.Join(pps, ", ")
}

func (d Dialect) supportsReturning() bool {
	return d == Postgres
}

// insertIgnore builds an INSERT that silently skips rows violating a unique key.
func (d Dialect) insertIgnore(table, columns, conflictColumn string, n int) string {
	switch d {
	case MySQL:
		return "INSERT IGNORE INTO " + table + " (" + columns + ") VALUES (" + d.placeholders(n) + ")"
	case SQLite:
		return "INSERT OR IGNORE INTO " + table + " (" + columns + ") VALUES (" + d.placeholders(n) + ")"
	default:
		return "INSERT INTO " + table + " (" + columns + ") VALUES (" + d.placeholders(n) + ") ON CONFLICT (" + conflictColumn + ") DO NOTHING"
	}
}

// formatDateInDatabase converts a timestamp into the bind value each driver stores losslessly.
func (d Dialect) formatDateInDatabase(t time.Time) any {
	switch d {
	case SQLite:
		return t.UTC().Format("2006-01-02 15:04:05.000")
	case MySQL:
		return t.UTC().Format("2006-01-02 15:04:05.000000")
	}
	return t.UTC()
}

func (d Dialect) formatDateInDatabaseNull(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return d.formatDateInDatabase(*t)
}

// isUniqueViolation recognises duplicate key errors from all three drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
