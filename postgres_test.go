// postgres_test.go: Tests for the PostgreSQL dialect
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDialect_ClassifyError(t *testing.T) {
	dialect := &PostgresDialect{}

	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{
			"unique violation",
			fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"}),
			ErrorClassUniqueViolation,
		},
		{
			"foreign key violation",
			fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23503"}),
			ErrorClassForeignKeyViolation,
		},
		{
			"not null violation",
			fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23502"}),
			ErrorClassNotNullViolation,
		},
		{
			"unrelated sqlstate",
			&pgconn.PgError{Code: "42P01"},
			ErrorClassUnknown,
		},
		{"plain error", fmt.Errorf("broken pipe"), ErrorClassUnknown},
		{"nil error", nil, ErrorClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dialect.ClassifyError(tt.err))
		})
	}
}

func TestPostgresDialect_QuoteIdentifier(t *testing.T) {
	dialect := &PostgresDialect{}
	assert.Equal(t, "postgres", dialect.Name())

	quoted, err := dialect.QuoteIdentifier("accounts")
	require.NoError(t, err)
	assert.Equal(t, `"accounts"`, quoted)

	quoted, err = dialect.QuoteIdentifier(`table"name`)
	require.NoError(t, err)
	assert.Equal(t, `"table""name"`, quoted)

	_, err = dialect.QuoteIdentifier("")
	assert.Error(t, err)
}
