// postgres.go: PostgreSQL connection adapter
//
// This file provides the PostgreSQL opener over the pgx stdlib driver and
// the PostgreSQL dialect. The opener returns a SQLConnection, so everything
// the database/sql adapter implements (pool statistics, version reporting)
// applies here too.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresOptions configures OpenPostgres.
type PostgresOptions struct {
	// Logger accepts anything NewLogger accepts.
	Logger any

	// MaxOpenConns caps the pool; 25 when unset.
	MaxOpenConns int

	// MaxIdleConns caps idle connections kept around; 5 when unset.
	MaxIdleConns int

	// ConnMaxLifetime recycles connections after this age; 5 minutes when
	// unset.
	ConnMaxLifetime time.Duration
}

// OpenPostgres opens a PostgreSQL pool through the pgx stdlib driver and
// wraps it as a SQLConnection. The pool is verified with a ping before
// returning.
func OpenPostgres(databaseURL string, opts *PostgresOptions) (*SQLConnection, error) {
	options := PostgresOptions{}
	if opts != nil {
		options = *opts
	}
	if options.MaxOpenConns <= 0 {
		options.MaxOpenConns = 25
	}
	if options.MaxIdleConns <= 0 {
		options.MaxIdleConns = 5
	}
	if options.ConnMaxLifetime <= 0 {
		options.ConnMaxLifetime = 5 * time.Minute
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(options.MaxOpenConns)
	db.SetMaxIdleConns(options.MaxIdleConns)
	db.SetConnMaxLifetime(options.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return NewSQLConnection(db, &SQLConnectionOptions{
		Logger:       options.Logger,
		VersionQuery: "SELECT version()",
	}), nil
}

// PostgresDialect implements DialectAdapter for PostgreSQL.
type PostgresDialect struct{}

var _ DialectAdapter = (*PostgresDialect)(nil)

// Name implements DialectAdapter.
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// QuoteIdentifier implements DialectAdapter with double-quote escaping.
func (d *PostgresDialect) QuoteIdentifier(identifier string) (string, error) {
	return quoteDoubleQuoted(identifier)
}

// ClassifyError implements DialectAdapter using PostgreSQL SQLSTATE codes
// carried by pgconn errors.
func (d *PostgresDialect) ClassifyError(err error) ErrorClass {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ErrorClassUnknown
	}
	switch pgErr.Code {
	case "23505":
		return ErrorClassUniqueViolation
	case "23503":
		return ErrorClassForeignKeyViolation
	case "23502":
		return ErrorClassNotNullViolation
	default:
		return ErrorClassUnknown
	}
}
