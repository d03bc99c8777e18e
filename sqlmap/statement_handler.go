// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// StatementHandler adapts a BoundSQL into the actual database/sql calls
// for one StatementKind. The simple executor and QueryCursor use the
// handler statementHandlerFor selects by MappedStatement.Kind; the
// reuse and batch executors prepare their statements themselves.
type StatementHandler interface {
	Query(handle sqlHandle, bound *BoundSQL) (*sql.Rows, error)
	Exec(handle sqlHandle, bound *BoundSQL) (sql.Result, error)
}

// sqlHandle is the subset of *sql.Tx / *sql.DB an executor
// hands to a StatementHandler.
type sqlHandle interface {
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// PreparedStatementHandler binds parameters positionally through the
// driver, the default for StatementPrepared.
type PreparedStatementHandler struct{}

func (PreparedStatementHandler) Query(handle sqlHandle, bound *BoundSQL) (*sql.Rows, error) {
	args, err := argsFor(bound)
	if err != nil {
		return nil, err
	}
	return handle.Query(bound.SQL, args...)
}

func (PreparedStatementHandler) Exec(handle sqlHandle, bound *BoundSQL) (sql.Result, error) {
	args, err := argsFor(bound)
	if err != nil {
		return nil, err
	}
	return handle.Exec(bound.SQL, args...)
}

// SimpleStatementHandler inlines every parameter as a SQL literal
// instead of a bind placeholder, matching MyBatis's SimpleStatementHandler
// (java.sql.Statement rather than PreparedStatement). Used for
// statementType="STATEMENT" mappers where the driver or query shape
// doesn't tolerate placeholders (e.g. some DDL).
type SimpleStatementHandler struct{}

func (SimpleStatementHandler) inline(bound *BoundSQL) (string, error) {
	args, err := argsFor(bound)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	argIndex := 0
	i := 0
	for i < len(bound.SQL) {
		c := bound.SQL[i]
		if c == '?' && argIndex < len(args) {
			out.WriteString(literalFor(args[argIndex]))
			argIndex++
		} else {
			out.WriteByte(c)
		}
		i++
	}
	return out.String(), nil
}

func literalFor(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(t), "'", "''") + "'"
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (h SimpleStatementHandler) Query(handle sqlHandle, bound *BoundSQL) (*sql.Rows, error) {
	sqlText, err := h.inline(bound)
	if err != nil {
		return nil, err
	}
	return handle.Query(sqlText)
}

func (h SimpleStatementHandler) Exec(handle sqlHandle, bound *BoundSQL) (sql.Result, error) {
	sqlText, err := h.inline(bound)
	if err != nil {
		return nil, err
	}
	return handle.Exec(sqlText)
}

// CallableStatementHandler invokes a stored procedure. database/sql has
// no first-class OUT parameter protocol shared across drivers, so this
// executes the call as a plain query/exec and, for OUT/INOUT mappings,
// relies on the driver surfacing them as an ordinary result set column
// (the common convention for MySQL/PostgreSQL procedures called through
// database/sql) rather than a native OUT-binding API.
type CallableStatementHandler struct{}

func (CallableStatementHandler) Query(handle sqlHandle, bound *BoundSQL) (*sql.Rows, error) {
	args, err := argsFor(bound)
	if err != nil {
		return nil, err
	}
	return handle.Query(bound.SQL, args...)
}

func (CallableStatementHandler) Exec(handle sqlHandle, bound *BoundSQL) (sql.Result, error) {
	args, err := argsFor(bound)
	if err != nil {
		return nil, err
	}
	return handle.Exec(bound.SQL, args...)
}

// statementHandlerFor selects the StatementHandler for ms.Kind.
func statementHandlerFor(kind StatementKind) StatementHandler {
	switch kind {
	case StatementSimple:
		return SimpleStatementHandler{}
	case StatementCallable:
		return CallableStatementHandler{}
	default:
		return PreparedStatementHandler{}
	}
}
