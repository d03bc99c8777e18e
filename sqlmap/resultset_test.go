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

type rsPost struct {
	ID    int
	Title string
}

type rsBlog struct {
	ID    int
	Name  string
	Posts []*rsPost
}

// TestResultSetHandler_NestedCollectionGroupsJoinedRows exercises the
// "Nested result map" scenario from the design docs: three joined rows
// (blog=1 with posts 7,8; blog=2 with post 9) must fold into two Blog
// objects with their Posts collections in first-seen order, not three
// separate Blog objects.
func TestResultSetHandler_NestedCollectionGroupsJoinedRows(t *testing.T) {
	cfg := NewConfiguration()

	postMap := NewResultMap("post", reflect.TypeOf(rsPost{}), []*ResultMapping{
		{Property: "ID", Column: "post_id", Flags: FlagID},
		{Property: "Title", Column: "post_title"},
	}, nil)
	cfg.AddResultMap(postMap)

	blogMap := NewResultMap("blog", reflect.TypeOf(rsBlog{}), []*ResultMapping{
		{Property: "ID", Column: "blog_id", Flags: FlagID},
		{Property: "Name", Column: "blog_name"},
		{Property: "Posts", NestedResultMap: "post", Many: true},
	}, nil)
	cfg.AddResultMap(blogMap)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg.Environment = &Environment{ID: "test", DB: db, Placeholder: PlaceholderQuestion}

	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(
		[]string{"blog_id", "blog_name", "post_id", "post_title"},
	).
		AddRow(1, "Go Weekly", 7, "first").
		AddRow(1, "Go Weekly", 8, "second").
		AddRow(2, "Rust Weekly", 9, "third"))

	ms := &MappedStatement{
		ID:      "Blogs.withPosts",
		Command: CommandSelect,
		Kind:    StatementPrepared,
		SQLSource: &StaticSqlSource{
			SQL:               "SELECT blog_id, blog_name, post_id, post_title FROM blogs JOIN posts ON blogs.id = posts.blog_id",
			ParameterMappings: nil,
		},
		ResultMaps: []*ResultMap{blogMap},
	}

	session := &Session{
		ID:            1,
		Configuration: cfg,
		AutoCommit:    true,
		localCache:    make(map[string]any),
		txCaches:      make(map[string]*TransactionalCache),
		stats:         make(map[CommandKind]*CommandStats),
	}
	session.Executor = cfg.NewExecutor(session, ExecutorSimple)

	rows, err := session.Executor.Query(ms, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	blog1 := rows[0].(*rsBlog)
	assert.Equal(t, 1, blog1.ID)
	assert.Equal(t, "Go Weekly", blog1.Name)
	require.Len(t, blog1.Posts, 2)
	assert.Equal(t, 7, blog1.Posts[0].ID)
	assert.Equal(t, 8, blog1.Posts[1].ID)

	blog2 := rows[1].(*rsBlog)
	assert.Equal(t, 2, blog2.ID)
	require.Len(t, blog2.Posts, 1)
	assert.Equal(t, 9, blog2.Posts[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

type rsVehicle struct {
	ID   int
	Kind int
}

type rsCar struct {
	rsVehicle
	Doors int
}

type rsTruck struct {
	rsVehicle
	Payload int
}

// TestResultSetHandler_DiscriminatorSelectsCaseRegardlessOfDefault
// verifies a row is routed through the discriminator's matching case
// even though the parent result map default would otherwise apply.
func TestResultSetHandler_DiscriminatorSelectsCaseRegardlessOfDefault(t *testing.T) {
	cfg := NewConfiguration()

	carMap := NewResultMap("car", reflect.TypeOf(rsCar{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
		{Property: "Kind", Column: "kind"},
		{Property: "Doors", Column: "doors"},
	}, nil)
	cfg.AddResultMap(carMap)

	truckMap := NewResultMap("truck", reflect.TypeOf(rsTruck{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
		{Property: "Kind", Column: "kind"},
		{Property: "Payload", Column: "payload"},
	}, nil)
	cfg.AddResultMap(truckMap)

	vehicleMap := NewResultMap("vehicle", reflect.TypeOf(rsCar{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
	}, &Discriminator{
		Column: "kind",
		Cases: map[string]string{
			"1": "car",
			"2": "truck",
		},
	})
	cfg.AddResultMap(vehicleMap)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg.Environment = &Environment{ID: "test", DB: db, Placeholder: PlaceholderQuestion}

	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows(
		[]string{"id", "kind", "doors", "payload"},
	).AddRow(5, 2, nil, 1000))

	ms := &MappedStatement{
		ID:      "Vehicles.find",
		Command: CommandSelect,
		Kind:    StatementPrepared,
		SQLSource: &StaticSqlSource{
			SQL: "SELECT id, kind, doors, payload FROM vehicles",
		},
		ResultMaps: []*ResultMap{vehicleMap},
	}

	session := &Session{
		ID:            1,
		Configuration: cfg,
		AutoCommit:    true,
		localCache:    make(map[string]any),
		txCaches:      make(map[string]*TransactionalCache),
		stats:         make(map[CommandKind]*CommandStats),
	}
	session.Executor = cfg.NewExecutor(session, ExecutorSimple)

	rows, err := session.Executor.Query(ms, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	truck, ok := rows[0].(*rsTruck)
	require.True(t, ok, "row 2 must project through the truck case despite the parent default")
	assert.Equal(t, 1000, truck.Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type rsOrder struct {
	ID    int
	Total int
	Items []*rsItem
}

type rsItem struct {
	ID   int
	Name string
}

// TestResultSetHandler_NamedResultSetsJoinByForeignColumn exercises a
// <resultSets>-declaring statement: the driver returns two JDBC-style
// result sets, and the second ("items") must be spliced into the
// matching parent order by foreignColumn (order_id) <-> column (id)
// instead of being flattened into the returned slice.
func TestResultSetHandler_NamedResultSetsJoinByForeignColumn(t *testing.T) {
	cfg := NewConfiguration()

	itemMap := NewResultMap("item", reflect.TypeOf(rsItem{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
		{Property: "Name", Column: "name"},
	}, nil)
	cfg.AddResultMap(itemMap)

	orderMap := NewResultMap("order", reflect.TypeOf(rsOrder{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
		{Property: "Total", Column: "total"},
		{Property: "Items", Many: true, NestedResultMap: "item", ResultSet: "items", Column: "id", ForeignColumn: "order_id"},
	}, nil)
	cfg.AddResultMap(orderMap)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg.Environment = &Environment{ID: "test", DB: db, Placeholder: PlaceholderQuestion}

	orderRows := sqlmock.NewRows([]string{"id", "total"}).
		AddRow(1, 100).
		AddRow(2, 200)
	itemRows := sqlmock.NewRows([]string{"id", "name", "order_id"}).
		AddRow(11, "widget", 1).
		AddRow(12, "gadget", 1).
		AddRow(13, "gizmo", 2)
	mock.ExpectQuery(`SELECT`).WillReturnRows(orderRows, itemRows)

	ms := &MappedStatement{
		ID:      "Orders.withItems",
		Command: CommandSelect,
		Kind:    StatementPrepared,
		SQLSource: &StaticSqlSource{
			SQL: "SELECT id, total FROM orders; SELECT id, name, order_id FROM items",
		},
		ResultMaps: []*ResultMap{orderMap},
		ResultSets: []string{"orders", "items"},
	}

	session := &Session{
		ID:            1,
		Configuration: cfg,
		AutoCommit:    true,
		localCache:    make(map[string]any),
		txCaches:      make(map[string]*TransactionalCache),
		stats:         make(map[CommandKind]*CommandStats),
	}
	session.Executor = cfg.NewExecutor(session, ExecutorSimple)

	rows, err := session.Executor.Query(ms, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2, "the joined items must not be flattened as extra top-level rows")

	order1 := rows[0].(*rsOrder)
	assert.Equal(t, 1, order1.ID)
	require.Len(t, order1.Items, 2)
	assert.Equal(t, "widget", order1.Items[0].Name)
	assert.Equal(t, "gadget", order1.Items[1].Name)

	order2 := rows[1].(*rsOrder)
	assert.Equal(t, 2, order2.ID)
	require.Len(t, order2.Items, 1)
	assert.Equal(t, "gizmo", order2.Items[0].Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestResultSetHandler_UnjoinedResultSetsStayFlattened verifies the
// pre-existing behavior for a callable statement that returns several
// result sets but declares no <resultSets> join names: each set maps
// through the next declared ResultMap and is appended to the returned
// slice rather than being spliced into a parent.
func TestResultSetHandler_UnjoinedResultSetsStayFlattened(t *testing.T) {
	cfg := NewConfiguration()

	orderMap := NewResultMap("order2", reflect.TypeOf(rsOrder{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
		{Property: "Total", Column: "total"},
	}, nil)
	cfg.AddResultMap(orderMap)

	itemMap := NewResultMap("item2", reflect.TypeOf(rsItem{}), []*ResultMapping{
		{Property: "ID", Column: "id", Flags: FlagID},
		{Property: "Name", Column: "name"},
	}, nil)
	cfg.AddResultMap(itemMap)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg.Environment = &Environment{ID: "test", DB: db, Placeholder: PlaceholderQuestion}

	orderRows := sqlmock.NewRows([]string{"id", "total"}).AddRow(1, 100)
	itemRows := sqlmock.NewRows([]string{"id", "name"}).AddRow(11, "widget")
	mock.ExpectQuery(`CALL get_order_and_items\(\)`).WillReturnRows(orderRows, itemRows)

	ms := &MappedStatement{
		ID:      "Legacy.callable",
		Command: CommandSelect,
		Kind:    StatementPrepared,
		SQLSource: &StaticSqlSource{
			SQL: "CALL get_order_and_items()",
		},
		ResultMaps: []*ResultMap{orderMap, itemMap},
	}

	session := &Session{
		ID:            1,
		Configuration: cfg,
		AutoCommit:    true,
		localCache:    make(map[string]any),
		txCaches:      make(map[string]*TransactionalCache),
		stats:         make(map[CommandKind]*CommandStats),
	}
	session.Executor = cfg.NewExecutor(session, ExecutorSimple)

	rows, err := session.Executor.Query(ms, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2, "with no <resultSets> join names, both sets flatten into the returned slice as before")
	assert.IsType(t, &rsOrder{}, rows[0])
	assert.IsType(t, &rsItem{}, rows[1])

	assert.NoError(t, mock.ExpectationsWereMet())
}
