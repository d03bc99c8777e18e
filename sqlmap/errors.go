// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import "fmt"

// ErrorKind classifies the failure modes the runtime can produce. Kinds
// are not exposed as distinct Go types so that callers can branch on a
// single comparable value with errors.Is/As against *Error.
type ErrorKind int

const (
	// ErrBinding covers an unknown mapper or a method lacking a valid
	// statement for the active database id.
	ErrBinding ErrorKind = iota
	// ErrBuild covers an ill-formed configuration or mapper document.
	ErrBuild
	// ErrIncompleteReference covers a forward reference still
	// unresolved at the end of a build.
	ErrIncompleteReference
	// ErrReflection covers missing constructors/accessors or ambiguous
	// overloads discovered by the reflection metadata cache.
	ErrReflection
	// ErrTypeConversion covers a missing or failing type handler.
	ErrTypeConversion
	// ErrExecution covers a driver-reported failure.
	ErrExecution
	// ErrCache covers a cache decorator invariant violation.
	ErrCache
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBinding:
		return "binding"
	case ErrBuild:
		return "build"
	case ErrIncompleteReference:
		return "incomplete-reference"
	case ErrReflection:
		return "reflection"
	case ErrTypeConversion:
		return "type-conversion"
	case ErrExecution:
		return "execution"
	case ErrCache:
		return "cache"
	default:
		return "unknown"
	}
}

// Error is the runtime's diagnostic breadcrumb: every terminal error
// carries the kind, the statement id (when known) and the current
// activity, plus an optional SQL fragment when it is safe to display.
type Error struct {
	Kind       ErrorKind
	StatementID string
	Activity   string
	SQL        string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("sqlmap: %v", e.Kind)
	if e.Activity != "" {
		msg += ": " + e.Activity
	}
	if e.StatementID != "" {
		msg += fmt.Sprintf(" (statement=%s)", e.StatementID)
	}
	if e.SQL != "" {
		msg += fmt.Sprintf(" [sql=%s]", e.SQL)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// newErr builds an *Error breadcrumb.
func newErr(kind ErrorKind, activity, statementID string, err error) *Error {
	return &Error{Kind: kind, Activity: activity, StatementID: statementID, Err: err}
}

func newErrSQL(kind ErrorKind, activity, statementID, sql string, err error) *Error {
	return &Error{Kind: kind, Activity: activity, StatementID: statementID, SQL: sql, Err: err}
}
