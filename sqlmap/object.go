// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import "github.com/eframework-org/GO.UTIL/XObject"

// NewResult allocates a T for callers that know the target type at
// compile time (a mapper method's declared return type, for example)
// and would rather not build a reflect.Type just to hand it to
// NewInstance.
func NewResult[T any]() *T {
	return XObject.New[T]()
}

// Select runs statementID through session and type-asserts each row to
// T, for callers that know their result type at compile time instead
// of walking the []any a MapperDescriptor-bound call returns. rowBounds
// may be nil for the unbounded default.
func Select[T any](session *Session, statementID string, parameter any, rowBounds *RowBounds) ([]T, error) {
	ms, err := session.Configuration.MappedStatement(statementID)
	if err != nil {
		return nil, err
	}
	rows, err := session.Executor.Query(ms, parameter, rowBounds, nil)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.(T); ok {
			out = append(out, v)
			continue
		}
		if p, ok := row.(*T); ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// SelectOne runs statementID and returns its first row as *T, or a
// freshly allocated T when the statement returned nothing and
// ReturnInstanceForEmptyRow is enabled, matching the
// ResultSetHandler's own empty-row fallback.
func SelectOne[T any](session *Session, statementID string, parameter any) (*T, error) {
	rows, err := Select[T](session, statementID, parameter, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if session.Configuration.Settings.ReturnInstanceForEmptyRow {
			return NewResult[T](), nil
		}
		return nil, nil
	}
	return &rows[0], nil
}
