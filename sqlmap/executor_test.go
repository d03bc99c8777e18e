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

type execUser struct {
	ID   int
	Name string
}

func newExecutorTestSession(t *testing.T, execType ExecutorType) (*Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := NewConfiguration()
	cfg.Environment = &Environment{ID: "test", DB: db, Placeholder: PlaceholderQuestion}
	session := &Session{
		ID:            1,
		Configuration: cfg,
		AutoCommit:    true,
		localCache:    make(map[string]any),
		txCaches:      make(map[string]*TransactionalCache),
		stats:         make(map[CommandKind]*CommandStats),
	}
	session.Executor = cfg.NewExecutor(session, execType)
	return session, mock
}

func TestBaseExecutor_QueryMapsRowsAndRecordsStats(t *testing.T) {
	session, mock := newExecutorTestSession(t, ExecutorSimple)

	mock.ExpectQuery(`SELECT id, name FROM users WHERE id = \?`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "ada"))

	rm := NewResultMap("execUser", reflect.TypeOf(execUser{}), []*ResultMapping{
		{Property: "ID", Column: "id"},
		{Property: "Name", Column: "name"},
	}, nil)
	ms := &MappedStatement{
		ID:      "Users.find",
		Command: CommandSelect,
		Kind:    StatementPrepared,
		SQLSource: &StaticSqlSource{
			SQL:               "SELECT id, name FROM users WHERE id = ?",
			ParameterMappings: []*ParameterMapping{{Property: ""}},
		},
		ResultMaps: []*ResultMap{rm},
	}

	rows, err := session.Executor.Query(ms, 7, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, &execUser{ID: 7, Name: "ada"}, rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())

	snapshot := session.statsSnapshot()
	assert.Equal(t, int64(1), snapshot["SELECT"].Count)
}

func TestBaseExecutor_UpdateRecordsStats(t *testing.T) {
	session, mock := newExecutorTestSession(t, ExecutorSimple)

	mock.ExpectExec(`UPDATE users SET name = \?`).
		WithArgs("ada").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ms := &MappedStatement{
		ID:      "Users.rename",
		Command: CommandUpdate,
		Kind:    StatementPrepared,
		SQLSource: &StaticSqlSource{
			SQL:               "UPDATE users SET name = ?",
			ParameterMappings: []*ParameterMapping{{Property: ""}},
		},
	}

	result, err := session.Executor.Update(ms, "ada")
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
	assert.NoError(t, mock.ExpectationsWereMet())

	snapshot := session.statsSnapshot()
	assert.Equal(t, int64(1), snapshot["UPDATE"].Count)
}

func TestBaseExecutor_QueryAppliesRowBoundsOffsetAndLimit(t *testing.T) {
	session, mock := newExecutorTestSession(t, ExecutorSimple)

	mock.ExpectQuery(`SELECT id, name FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "a").AddRow(2, "b").AddRow(3, "c").AddRow(4, "d").AddRow(5, "e"))

	rm := NewResultMap("execUser", reflect.TypeOf(execUser{}), []*ResultMapping{
		{Property: "ID", Column: "id"},
		{Property: "Name", Column: "name"},
	}, nil)
	ms := &MappedStatement{
		ID:         "Users.page",
		Command:    CommandSelect,
		Kind:       StatementPrepared,
		SQLSource:  &StaticSqlSource{SQL: "SELECT id, name FROM users"},
		ResultMaps: []*ResultMap{rm},
	}

	rows, err := session.Executor.Query(ms, nil, &RowBounds{Offset: 1, Limit: 2}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, &execUser{ID: 2, Name: "b"}, rows[0])
	assert.Equal(t, &execUser{ID: 3, Name: "c"}, rows[1])
}

func TestBaseExecutor_QueryCacheKeyDistinguishesRowBounds(t *testing.T) {
	session, mock := newExecutorTestSession(t, ExecutorSimple)
	session.Configuration.Settings.CacheEnabled = true

	rm := NewResultMap("execUser", reflect.TypeOf(execUser{}), []*ResultMapping{
		{Property: "ID", Column: "id"},
		{Property: "Name", Column: "name"},
	}, nil)
	ms := &MappedStatement{
		ID:         "Users.page",
		Command:    CommandSelect,
		Kind:       StatementPrepared,
		SQLSource:  &StaticSqlSource{SQL: "SELECT id, name FROM users"},
		ResultMaps: []*ResultMap{rm},
	}

	mock.ExpectQuery(`SELECT id, name FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, "b"))
	first, err := session.Executor.Query(ms, nil, &RowBounds{Offset: 0, Limit: 1}, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// a different RowBounds against the identical statement/params must
	// not be served from the first page's cache entry.
	mock.ExpectQuery(`SELECT id, name FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, "b"))
	second, err := session.Executor.Query(ms, nil, &RowBounds{Offset: 1, Limit: 1}, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, &execUser{ID: 2, Name: "b"}, second[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseExecutor_QueryRejectsRowBoundsWhenSafeRowBoundsEnabled(t *testing.T) {
	session, _ := newExecutorTestSession(t, ExecutorSimple)
	session.Configuration.Settings.SafeRowBoundsEnabled = true

	ms := &MappedStatement{
		ID:        "Users.page",
		Command:   CommandSelect,
		Kind:      StatementPrepared,
		SQLSource: &StaticSqlSource{SQL: "SELECT id, name FROM users"},
	}

	_, err := session.Executor.Query(ms, nil, &RowBounds{Offset: 1, Limit: 1}, nil)
	assert.Error(t, err)
}

func TestBatchExecutor_QueuesThenFlushesOnFlushStatements(t *testing.T) {
	session, mock := newExecutorTestSession(t, ExecutorBatch)

	mock.ExpectPrepare(`INSERT INTO users`).
		ExpectExec().WithArgs("ada").WillReturnResult(sqlmock.NewResult(1, 1))

	ms := &MappedStatement{
		ID:      "Users.insert",
		Command: CommandInsert,
		Kind:    StatementPrepared,
		SQLSource: &StaticSqlSource{
			SQL:               "INSERT INTO users (name) VALUES (?)",
			ParameterMappings: []*ParameterMapping{{Property: ""}},
		},
	}
	_, err := session.Executor.Update(ms, "ada")
	require.NoError(t, err)

	require.NoError(t, session.Executor.FlushStatements())
	assert.NoError(t, mock.ExpectationsWereMet())

	if unreg, ok := session.Executor.(interface{ Unregister() }); ok {
		unreg.Unregister()
	}
}
