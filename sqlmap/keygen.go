// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql"
	"reflect"
)

// KeyGenerator populates KeyProperties on the parameter object(s) of an
// insert statement after (or, for SelectKeyGenerator "before", prior
// to) execution.
type KeyGenerator interface {
	ProcessBefore(exec *executionContext, ms *MappedStatement, parameter any) error
	ProcessAfter(exec *executionContext, ms *MappedStatement, parameter any, result sql.Result) error
}

// NoKeyGenerator is used by statements without a <selectKey> or
// useGeneratedKeys configuration.
type NoKeyGenerator struct{}

func (NoKeyGenerator) ProcessBefore(*executionContext, *MappedStatement, any) error { return nil }
func (NoKeyGenerator) ProcessAfter(*executionContext, *MappedStatement, any, sql.Result) error {
	return nil
}

// IdentityKeyGenerator reads the driver-reported LastInsertId and
// assigns it to KeyProperties[0] on the parameter object, matching
// useGeneratedKeys="true".
type IdentityKeyGenerator struct{}

func (IdentityKeyGenerator) ProcessBefore(*executionContext, *MappedStatement, any) error { return nil }

func (IdentityKeyGenerator) ProcessAfter(_ *executionContext, ms *MappedStatement, parameter any, result sql.Result) error {
	if ms.KeyGen == nil || len(ms.KeyGen.KeyProperties) == 0 || result == nil {
		return nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return newErr(ErrExecution, "identity key retrieval", ms.ID, err)
	}
	return assignGeneratedKey(ms, parameter, ms.KeyGen.KeyProperties[0], id)
}

// SelectKeyGenerator runs a separate SQLSource to obtain the key value,
// either before or after the main statement, matching MyBatis's
// <selectKey order="BEFORE|AFTER">. It queries through the enclosing
// executionContext's session so it shares the session's open
// transaction (or the environment's *sql.DB for autocommit sessions).
type SelectKeyGenerator struct {
	Before      bool
	KeyProperty string
	SQLSource   SQLSource
}

func (g *SelectKeyGenerator) ProcessBefore(exec *executionContext, ms *MappedStatement, parameter any) error {
	if !g.Before {
		return nil
	}
	return g.run(exec, ms, parameter)
}

func (g *SelectKeyGenerator) ProcessAfter(exec *executionContext, ms *MappedStatement, parameter any, _ sql.Result) error {
	if g.Before {
		return nil
	}
	return g.run(exec, ms, parameter)
}

const errSelectKeyNoRows = sentinelErr("selectKey query returned no rows")

func (g *SelectKeyGenerator) run(exec *executionContext, ms *MappedStatement, parameter any) error {
	bound, err := g.SQLSource.BoundSQL(parameter)
	if err != nil {
		return err
	}
	args := make([]any, len(bound.ParameterMappings))
	for i, pm := range bound.ParameterMappings {
		v, _ := valueForMapping(pm, parameter, bound)
		args[i] = v
	}
	rows, err := dbHandle(exec.session).Query(bound.SQL, args...)
	if err != nil {
		return newErr(ErrExecution, "selectKey", ms.ID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return newErr(ErrExecution, "selectKey", ms.ID, errSelectKeyNoRows)
	}
	var value any
	if err := rows.Scan(&value); err != nil {
		return newErr(ErrReflection, "selectKey scan", ms.ID, err)
	}
	return assignGeneratedKey(ms, parameter, g.KeyProperty, value)
}

// assignGeneratedKey writes value into property on parameter, handling
// both single-parameter and batched (slice of parameters) calls.
func assignGeneratedKey(ms *MappedStatement, parameter any, property string, value any) error {
	rv := reflect.ValueOf(parameter)
	if rv.Kind() == reflect.Slice {
		for i := 0; i < rv.Len(); i++ {
			if err := setGeneratedKeyOn(rv.Index(i), property, value); err != nil {
				return newErr(ErrReflection, "assign generated key", ms.ID, err)
			}
		}
		return nil
	}
	if err := setGeneratedKeyOn(rv, property, value); err != nil {
		return newErr(ErrReflection, "assign generated key", ms.ID, err)
	}
	return nil
}

func setGeneratedKeyOn(target reflect.Value, property string, value any) error {
	if target.Kind() != reflect.Ptr {
		if !target.CanAddr() {
			return nil
		}
		target = target.Addr()
	}
	if target.IsNil() {
		return nil
	}
	elem := target.Elem()
	if elem.Kind() == reflect.Map {
		elem.SetMapIndex(reflect.ValueOf(property), reflect.ValueOf(value))
		return nil
	}
	r := GetReflector(elem.Type())
	return r.SetValue(target, property, reflect.ValueOf(value))
}
