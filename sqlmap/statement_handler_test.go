// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreparedStatementHandler_QueryForwardsBoundArgs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT \* FROM users WHERE id = \?`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "ada"))

	bound := &BoundSQL{SQL: "SELECT * FROM users WHERE id = ?", ParameterMappings: []*ParameterMapping{{Property: ""}}, ParameterObject: 7}
	rows, err := PreparedStatementHandler{}.Query(db, bound)
	require.NoError(t, err)
	defer rows.Close()

	assert.True(t, rows.Next())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreparedStatementHandler_ExecForwardsBoundArgs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET name = \?`).
		WithArgs("ada").
		WillReturnResult(sqlmock.NewResult(0, 1))

	bound := &BoundSQL{SQL: "UPDATE users SET name = ?", ParameterMappings: []*ParameterMapping{{Property: ""}}, ParameterObject: "ada"}
	result, err := PreparedStatementHandler{}.Exec(db, bound)
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimpleStatementHandler_ExecsSQLWithoutArgs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DROP TABLE IF EXISTS scratch`).WillReturnResult(sqlmock.NewResult(0, 0))

	bound := &BoundSQL{SQL: "DROP TABLE IF EXISTS scratch"}
	_, err = SimpleStatementHandler{}.Exec(db, bound)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLiteralFor(t *testing.T) {
	assert.Equal(t, "NULL", literalFor(nil))
	assert.Equal(t, "'it''s'", literalFor("it's"))
	assert.Equal(t, "true", literalFor(true))
	assert.Equal(t, "42", literalFor(42))
}
