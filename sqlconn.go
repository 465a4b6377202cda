// sqlconn.go: database/sql connection adapter
//
// This file implements SQLConnection, the Connection adapter over a
// database/sql pool, together with the SQLite dialect and an opinionated
// SQLite opener. The adapter works with any database/sql driver; the SQLite
// pieces use the pure-Go modernc driver.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLStatement is the Statement payload SQL-backed connections execute. A
// bare string statement is accepted too and runs without arguments.
type SQLStatement struct {
	SQL  string
	Args []any
}

// sqlQuerier is the query surface shared by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLConnectionOptions configures NewSQLConnection.
type SQLConnectionOptions struct {
	// Logger accepts anything NewLogger accepts.
	Logger any

	// VersionQuery is the single-value query reporting the server version;
	// "SELECT version()" when unset. SQLite callers want
	// "SELECT sqlite_version()".
	VersionQuery string
}

// SQLConnection adapts a database/sql pool to the Connection interface.
//
// It implements the optional PoolStats and Versioner capabilities, so health
// checks against it report pool utilization and the server version. Driver
// errors pass through unwrapped; dialect adapters classify them.
type SQLConnection struct {
	db           *sql.DB
	logger       Logger
	versionQuery string
}

var (
	_ Connection = (*SQLConnection)(nil)
	_ PoolStats  = (*SQLConnection)(nil)
	_ Versioner  = (*SQLConnection)(nil)
)

// NewSQLConnection wraps db. The pool stays owned by the caller until the
// connection's Close is invoked, which closes the pool.
func NewSQLConnection(db *sql.DB, opts *SQLConnectionOptions) *SQLConnection {
	options := SQLConnectionOptions{}
	if opts != nil {
		options = *opts
	}
	if options.VersionQuery == "" {
		options.VersionQuery = "SELECT version()"
	}
	return &SQLConnection{
		db:           db,
		logger:       NewLogger(options.Logger),
		versionQuery: options.VersionQuery,
	}
}

// DB exposes the wrapped pool for migrations and direct access.
func (sc *SQLConnection) DB() *sql.DB {
	return sc.db
}

// Run implements Runner.
func (sc *SQLConnection) Run(ctx context.Context, query *Query) (*Result, error) {
	return runSQLQuery(ctx, sc.db, query)
}

// Probe implements Connection with a ping plus a minimal round-trip query,
// so it verifies the server executes work rather than just accepting
// connections.
func (sc *SQLConnection) Probe(ctx context.Context) error {
	if err := sc.db.PingContext(ctx); err != nil {
		return err
	}
	var one int
	return sc.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Begin implements Connection.
func (sc *SQLConnection) Begin(ctx context.Context) (Tx, error) {
	tx, err := sc.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

// Close implements Connection by closing the pool. database/sql close does
// not take a context; callers bound it externally.
func (sc *SQLConnection) Close(ctx context.Context) error {
	return sc.db.Close()
}

// PoolMetrics implements PoolStats from the pool's own counters.
func (sc *SQLConnection) PoolMetrics() PoolMetrics {
	stats := sc.db.Stats()
	return PoolMetrics{
		Active:  int64(stats.InUse),
		Idle:    int64(stats.Idle),
		Waiting: stats.WaitCount,
	}
}

// DatabaseVersion implements Versioner.
func (sc *SQLConnection) DatabaseVersion(ctx context.Context) (string, error) {
	var version string
	if err := sc.db.QueryRowContext(ctx, sc.versionQuery).Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (st *sqlTx) Run(ctx context.Context, query *Query) (*Result, error) {
	return runSQLQuery(ctx, st.tx, query)
}

func (st *sqlTx) Commit(ctx context.Context) error {
	return st.tx.Commit()
}

func (st *sqlTx) Rollback(ctx context.Context) error {
	return st.tx.Rollback()
}

// runSQLQuery executes one query on db or transaction alike. Select queries
// collect rows; everything else runs as a statement and reports affected
// rows.
func runSQLQuery(ctx context.Context, q sqlQuerier, query *Query) (*Result, error) {
	stmt, err := sqlStatementOf(query)
	if err != nil {
		return nil, err
	}

	if query.Method == MethodSelect {
		rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()

		collected, err := collectRows(rows)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: collected}, nil
	}

	res, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if affected, err := res.RowsAffected(); err == nil {
		result.RowsAffected = affected
	}
	if lastID, err := res.LastInsertId(); err == nil {
		result.LastInsertID = lastID
	}
	return result, nil
}

// sqlStatementOf extracts the SQL payload from a query.
func sqlStatementOf(query *Query) (*SQLStatement, error) {
	switch s := query.Statement.(type) {
	case *SQLStatement:
		return s, nil
	case SQLStatement:
		return &s, nil
	case string:
		return &SQLStatement{SQL: s}, nil
	default:
		return nil, fmt.Errorf("unsupported statement type %T", query.Statement)
	}
}

// collectRows drains rows into the generic Row form. Byte slices become
// strings so results survive the driver reusing its buffers.
func collectRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var collected []Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[column] = value
		}
		collected = append(collected, row)
	}
	return collected, rows.Err()
}

// OpenSQLite opens a SQLite database with the pure-Go driver and the usual
// durability and concurrency pragmas applied.
//
// dsn examples: "file:app.db?cache=shared&mode=rwc" or ":memory:".
func OpenSQLite(dsn string, opts *SQLConnectionOptions) (*SQLConnection, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	options := SQLConnectionOptions{}
	if opts != nil {
		options = *opts
	}
	if options.VersionQuery == "" {
		options.VersionQuery = "SELECT sqlite_version()"
	}
	return NewSQLConnection(db, &options), nil
}

// SQLiteDialect implements DialectAdapter for SQLite.
type SQLiteDialect struct{}

var _ DialectAdapter = (*SQLiteDialect)(nil)

// Name implements DialectAdapter.
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// QuoteIdentifier implements DialectAdapter with double-quote escaping.
func (d *SQLiteDialect) QuoteIdentifier(identifier string) (string, error) {
	return quoteDoubleQuoted(identifier)
}

// ClassifyError implements DialectAdapter. SQLite reports constraint
// violations through error text, so classification is a message match.
func (d *SQLiteDialect) ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	message := err.Error()
	switch {
	case strings.Contains(message, "UNIQUE constraint failed"):
		return ErrorClassUniqueViolation
	case strings.Contains(message, "FOREIGN KEY constraint failed"):
		return ErrorClassForeignKeyViolation
	case strings.Contains(message, "NOT NULL constraint failed"):
		return ErrorClassNotNullViolation
	default:
		return ErrorClassUnknown
	}
}

// quoteDoubleQuoted quotes an identifier in the double-quote style shared by
// SQLite and PostgreSQL.
func quoteDoubleQuoted(identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("identifier must not be empty")
	}
	if strings.ContainsRune(identifier, 0) {
		return "", fmt.Errorf("identifier must not contain NUL bytes")
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`, nil
}
