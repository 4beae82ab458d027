package queue

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// dialect captures the per-backend differences the store cares about: the
// database/sql driver name, placeholder style, and how a claim is made atomic.
type dialect struct {
	name       string
	driverName string
	// returning dialects claim with one UPDATE ... RETURNING statement.
	returning bool
	// lockClause is appended to the candidate selection so concurrent
	// claimers skip rows another transaction already holds.
	lockClause string
	// rowLock is appended to point reads inside write transactions.
	rowLock      string
	dollarParams bool
	tableExists  string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:        DriverSQLite,
		driverName:  "sqlite",
		returning:   true,
		tableExists: "SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?",
	},
	DriverPostgres: {
		name:         DriverPostgres,
		driverName:   "pgx",
		returning:    true,
		lockClause:   " FOR UPDATE SKIP LOCKED",
		rowLock:      " FOR UPDATE",
		dollarParams: true,
		tableExists:  "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?",
	},
	DriverMySQL: {
		name:        DriverMySQL,
		driverName:  "mysql",
		lockClause:  " FOR UPDATE SKIP LOCKED",
		rowLock:     " FOR UPDATE",
		tableExists: "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
	},
}

func lookupDialect(driver string) (dialect, error) {
	name := strings.ToLower(strings.TrimSpace(driver))
	switch name {
	case "", "sqlite3":
		name = DriverSQLite
	case "postgresql", "pgx":
		name = DriverPostgres
	}
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}

// rebind rewrites ? placeholders into the dialect's native form.
func (d dialect) rebind(query string) string {
	if !d.dollarParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// prepareDSN adjusts a connection string so the driver behaves the way the
// store expects.
func (d dialect) prepareDSN(dsn string, busyTimeoutMS int) (string, error) {
	switch d.name {
	case DriverSQLite:
		return sqliteDSN(dsn, busyTimeoutMS), nil
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Finalize relies on RowsAffected to detect unknown ids, including
		// re-issued finalizes that change nothing.
		cfg.ClientFoundRows = true
		return cfg.FormatDSN(), nil
	default:
		return dsn, nil
	}
}

// sqliteDSN applies per-connection pragmas. _txlock=immediate makes every
// transaction take the database write lock up front, which is what
// serializes concurrent claimers.
func sqliteDSN(path string, busyTimeoutMS int) string {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	base, rawQuery, _ := strings.Cut(path, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	if params.Get("_txlock") == "" {
		params.Set("_txlock", "immediate")
	}
	return base + "?" + params.Encode()
}
