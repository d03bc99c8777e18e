// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql"
	"reflect"
)

// Cursor wraps a live *sql.Rows as the forward-only, single-traversal
// lazy sequence spec §4.10 ("Cursor returns") describes: each Next
// call scans and projects exactly one row through the statement's
// ResultMap, and the underlying result set is released as soon as the
// rows are exhausted or Close is called explicitly. Reading after
// Close fails, matching the spec's documented contract.
type Cursor struct {
	rows             *sql.Rows
	handler          *ResultSetHandler
	resultMap        *ResultMap
	columns          []string
	nestedObjects    map[string]reflect.Value
	appendedChildren map[string]bool
	closed           bool
}

func newCursor(rows *sql.Rows, handler *ResultSetHandler) (*Cursor, error) {
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, newErr(ErrExecution, "read cursor columns", handler.Statement.ID, err)
	}
	return &Cursor{
		rows:             rows,
		handler:          handler,
		resultMap:        handler.Statement.PrimaryResultMap(),
		columns:          columns,
		nestedObjects:    make(map[string]reflect.Value),
		appendedChildren: make(map[string]bool),
	}, nil
}

// QueryCursor runs ms against session and returns a Cursor instead of
// materializing every row into a slice, for callers streaming a result
// too large to hold in memory at once. It bypasses the first-level
// cache, since a cursor's rows are a one-shot resource rather than a
// cacheable value, and opens its statement directly rather than
// through Executor's Simple/Reuse/Batch variants: BatchExecutor exists
// to stage writes and has no read-side equivalent, and Reuse's
// statement-caching benefit doesn't apply to a call meant to be issued
// once and drained slowly.
func QueryCursor(session *Session, ms *MappedStatement, parameter any) (*Cursor, error) {
	bound, err := ms.SQLSource.BoundSQL(parameter)
	if err != nil {
		return nil, err
	}
	rows, err := statementHandlerFor(ms.Kind).Query(dbHandle(session), bound)
	if err != nil {
		return nil, newErrSQL(ErrExecution, "query cursor", ms.ID, bound.SQL, err)
	}
	return newCursor(rows, NewResultSetHandler(session.Configuration, ms, bound))
}

// Next advances the cursor and projects the row it lands on. It
// returns (nil, false, nil) once the underlying rows are exhausted,
// having already closed them.
func (c *Cursor) Next() (any, bool, error) {
	if c.closed {
		return nil, false, newErr(ErrExecution, "read cursor after close", c.handler.Statement.ID, nil)
	}
	if !c.rows.Next() {
		err := c.rows.Err()
		c.Close()
		return nil, false, err
	}
	row, err := c.handler.scanRow(c.rows, c.columns)
	if err != nil {
		c.Close()
		return nil, false, err
	}
	value, _, _, err := c.handler.applyResultMap(c.resultMap, row, "", c.nestedObjects, c.appendedChildren)
	if err != nil {
		c.Close()
		return nil, false, err
	}
	return value, true, nil
}

// Close releases the underlying *sql.Rows. Safe to call more than
// once and safe to call after the cursor has already been drained by
// Next reaching the end of the result set.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
