// pgxconn.go: pgxpool connection adapter
//
// This file implements PgxConnection, the Connection adapter over a native
// pgx connection pool. Compared to the database/sql adapter it keeps pgx's
// own pooling, prepared statement cache and error values, so dialect
// classification sees pgconn errors directly.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is the query surface shared by *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgxConnectionOptions configures NewPgxConnection.
type PgxConnectionOptions struct {
	// Logger accepts anything NewLogger accepts.
	Logger any

	// VersionQuery is the single-value query reporting the server version;
	// "SELECT version()" when unset.
	VersionQuery string
}

// PgxConnection adapts a pgx connection pool to the Connection interface.
//
// It implements the optional PoolStats and Versioner capabilities. Driver
// errors pass through unwrapped, so PostgresDialect classifies them from the
// pgconn error values pgx produces natively.
type PgxConnection struct {
	pool         *pgxpool.Pool
	logger       Logger
	versionQuery string
}

var (
	_ Connection = (*PgxConnection)(nil)
	_ PoolStats  = (*PgxConnection)(nil)
	_ Versioner  = (*PgxConnection)(nil)
)

// NewPgxConnection wraps pool. The pool stays owned by the caller until the
// connection's Close is invoked, which closes the pool.
func NewPgxConnection(pool *pgxpool.Pool, opts *PgxConnectionOptions) *PgxConnection {
	options := PgxConnectionOptions{}
	if opts != nil {
		options = *opts
	}
	if options.VersionQuery == "" {
		options.VersionQuery = "SELECT version()"
	}
	return &PgxConnection{
		pool:         pool,
		logger:       NewLogger(options.Logger),
		versionQuery: options.VersionQuery,
	}
}

// OpenPgxPool opens a native pgx pool from a connection URL and wraps it as
// a PgxConnection. The pool is verified with a ping before returning.
func OpenPgxPool(ctx context.Context, databaseURL string, opts *PgxConnectionOptions) (*PgxConnection, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewPgxConnection(pool, opts), nil
}

// Pool exposes the wrapped pool for migrations and direct access.
func (pc *PgxConnection) Pool() *pgxpool.Pool {
	return pc.pool
}

// Run implements Runner.
func (pc *PgxConnection) Run(ctx context.Context, query *Query) (*Result, error) {
	return runPgxQuery(ctx, pc.pool, query)
}

// Probe implements Connection with a ping plus a minimal round-trip query,
// so it verifies the server executes work rather than just accepting
// connections.
func (pc *PgxConnection) Probe(ctx context.Context) error {
	if err := pc.pool.Ping(ctx); err != nil {
		return err
	}
	var one int
	return pc.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Begin implements Connection.
func (pc *PgxConnection) Begin(ctx context.Context) (Tx, error) {
	tx, err := pc.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

// Close implements Connection. pgxpool close waits for acquired connections
// to be released and does not fail.
func (pc *PgxConnection) Close(ctx context.Context) error {
	pc.pool.Close()
	return nil
}

// PoolMetrics implements PoolStats from the pool's own counters. Waiting is
// the cumulative count of acquires that had to wait for a free connection,
// the same meaning database/sql gives WaitCount.
func (pc *PgxConnection) PoolMetrics() PoolMetrics {
	stat := pc.pool.Stat()
	return PoolMetrics{
		Active:  int64(stat.AcquiredConns()),
		Idle:    int64(stat.IdleConns()),
		Waiting: stat.EmptyAcquireCount(),
	}
}

// DatabaseVersion implements Versioner.
func (pc *PgxConnection) DatabaseVersion(ctx context.Context) (string, error) {
	var version string
	if err := pc.pool.QueryRow(ctx, pc.versionQuery).Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (pt *pgxTx) Run(ctx context.Context, query *Query) (*Result, error) {
	return runPgxQuery(ctx, pt.tx, query)
}

func (pt *pgxTx) Commit(ctx context.Context) error {
	return pt.tx.Commit(ctx)
}

func (pt *pgxTx) Rollback(ctx context.Context) error {
	return pt.tx.Rollback(ctx)
}

// runPgxQuery executes one query on the pool or a transaction alike. Select
// queries collect rows; everything else runs as a statement and reports
// affected rows. LastInsertID stays zero: PostgreSQL returns generated keys
// through RETURNING clauses, which arrive as rows.
func runPgxQuery(ctx context.Context, q pgxQuerier, query *Query) (*Result, error) {
	stmt, err := sqlStatementOf(query)
	if err != nil {
		return nil, err
	}

	if query.Method == MethodSelect {
		rows, err := q.Query(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		collected, err := collectPgxRows(rows)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: collected}, nil
	}

	tag, err := q.Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: tag.RowsAffected()}, nil
}

// collectPgxRows drains rows into the generic Row form. Byte slices become
// strings so results survive the driver reusing its buffers.
func collectPgxRows(rows pgx.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()

	var collected []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(Row, len(fields))
		for i, field := range fields {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[field.Name] = value
		}
		collected = append(collected, row)
	}
	return collected, rows.Err()
}
