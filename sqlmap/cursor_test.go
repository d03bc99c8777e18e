// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"reflect"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cursorRow struct {
	ID   int
	Name string
}

func newCursorTestSession(t *testing.T, ms *MappedStatement, cfg *Configuration) *Session {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg.Environment = &Environment{ID: "test", DB: db, Placeholder: PlaceholderQuestion}

	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(
		[]string{"id", "name"},
	).
		AddRow(1, "alpha").
		AddRow(2, "beta").
		AddRow(3, "gamma"))

	session := &Session{
		ID:            1,
		Configuration: cfg,
		AutoCommit:    true,
		localCache:    make(map[string]any),
		txCaches:      make(map[string]*TransactionalCache),
		stats:         make(map[CommandKind]*CommandStats),
	}
	session.Executor = cfg.NewExecutor(session, ExecutorSimple)
	_ = ms
	return session
}

func newCursorTestStatement(resultMap *ResultMap) *MappedStatement {
	return &MappedStatement{
		ID:      "Rows.stream",
		Command: CommandSelect,
		Kind:    StatementPrepared,
		SQLSource: &StaticSqlSource{
			SQL:               "SELECT id, name FROM rows",
			ParameterMappings: nil,
		},
		ResultMaps: []*ResultMap{resultMap},
	}
}

func TestCursor_NextStreamsRowsInOrderThenExhausts(t *testing.T) {
	cfg := NewConfiguration()
	resultMap := NewResultMap("cursorRow", reflect.TypeOf(cursorRow{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
		{Property: "Name", Column: "name"},
	}, nil)
	cfg.AddResultMap(resultMap)
	ms := newCursorTestStatement(resultMap)
	session := newCursorTestSession(t, ms, cfg)

	cur, err := QueryCursor(session, ms, nil)
	require.NoError(t, err)

	var got []*cursorRow
	for {
		v, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, v.(*cursorRow))
	}

	require.Len(t, got, 3)
	assert.Equal(t, "alpha", got[0].Name)
	assert.Equal(t, "beta", got[1].Name)
	assert.Equal(t, "gamma", got[2].Name)

	// exhausting Next already closed the cursor; a further Next fails.
	_, _, err = cur.Next()
	assert.Error(t, err)
}

func TestCursor_NextAfterExplicitCloseFails(t *testing.T) {
	cfg := NewConfiguration()
	resultMap := NewResultMap("cursorRow", reflect.TypeOf(cursorRow{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
		{Property: "Name", Column: "name"},
	}, nil)
	cfg.AddResultMap(resultMap)
	ms := newCursorTestStatement(resultMap)
	session := newCursorTestSession(t, ms, cfg)

	cur, err := QueryCursor(session, ms, nil)
	require.NoError(t, err)

	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close()) // idempotent

	_, _, err = cur.Next()
	assert.Error(t, err)
}
