// dialect.go: Dialect adapter capability consumed by plugins
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

// ErrorClass is the dialect-neutral classification of a database error.
//
// Dialect adapters map driver-specific error codes onto these classes so
// plugins can react uniformly (retry, translate, annotate). The executor core
// never acts on a classification itself - classified errors pass through to
// the caller unaltered.
type ErrorClass int

const (
	// ErrorClassUnknown covers errors the adapter cannot classify.
	ErrorClassUnknown ErrorClass = iota

	// ErrorClassUniqueViolation marks unique-constraint conflicts.
	ErrorClassUniqueViolation

	// ErrorClassForeignKeyViolation marks referential-integrity failures.
	ErrorClassForeignKeyViolation

	// ErrorClassNotNullViolation marks required-column violations.
	ErrorClassNotNullViolation
)

// String returns a human-readable representation of the error class.
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassUniqueViolation:
		return "unique_violation"
	case ErrorClassForeignKeyViolation:
		return "foreign_key_violation"
	case ErrorClassNotNullViolation:
		return "not_null_violation"
	default:
		return "unknown"
	}
}

// DialectAdapter is the per-database capability set consumed by plugins.
//
// Implementations live with the driver integration, not in this layer. The
// contract here exists so independently authored plugins can share one
// adapter instance without agreeing on a driver.
type DialectAdapter interface {
	// Name identifies the dialect ("postgres", "mysql", "sqlite").
	Name() string

	// QuoteIdentifier validates and escapes an identifier for embedding in
	// generated SQL. Invalid identifiers return an error, never a partial
	// escape.
	QuoteIdentifier(identifier string) (string, error)

	// ClassifyError maps a driver error onto a dialect-neutral class.
	ClassifyError(err error) ErrorClass
}
