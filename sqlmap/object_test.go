// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeUser struct {
	Name string
}

// fakeExecutor returns a fixed row list for Query and ignores Update,
// letting Select/SelectOne be exercised without a live database.
type fakeExecutor struct {
	rows []any
}

func (f *fakeExecutor) Query(ms *MappedStatement, parameter any, rowBounds *RowBounds, resultHandler func(any)) ([]any, error) {
	return f.rows, nil
}
func (f *fakeExecutor) Update(ms *MappedStatement, parameter any) (sql.Result, error) {
	return nil, nil
}
func (f *fakeExecutor) FlushStatements() error { return nil }
func (f *fakeExecutor) Rollback() error        { return nil }

func newFakeSession(cfg *Configuration, rows []any) *Session {
	return &Session{Configuration: cfg, Executor: &fakeExecutor{rows: rows}}
}

func TestSelect_TypesRows(t *testing.T) {
	cfg := NewConfiguration()
	cfg.AddMappedStatement(&MappedStatement{ID: "Users.findAll", Command: CommandSelect})
	session := newFakeSession(cfg, []any{fakeUser{Name: "a"}, fakeUser{Name: "b"}})

	got, err := Select[fakeUser](session, "Users.findAll", nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, []fakeUser{{Name: "a"}, {Name: "b"}}, got)
}

func TestSelectOne_EmptyResultHonorsReturnInstanceForEmptyRow(t *testing.T) {
	cfg := NewConfiguration()
	cfg.AddMappedStatement(&MappedStatement{ID: "Users.find", Command: CommandSelect})
	session := newFakeSession(cfg, nil)

	got, err := SelectOne[fakeUser](session, "Users.find", nil)
	assert.NoError(t, err)
	assert.Nil(t, got, "ReturnInstanceForEmptyRow defaults to false")

	cfg.Settings.ReturnInstanceForEmptyRow = true
	got, err = SelectOne[fakeUser](session, "Users.find", nil)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, fakeUser{}, *got)
}

func TestNewResult(t *testing.T) {
	u := NewResult[fakeUser]()
	assert.NotNil(t, u)
	assert.Equal(t, "", u.Name)
}
