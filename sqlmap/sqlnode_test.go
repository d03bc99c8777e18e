// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, node SQLNode, parameter any) string {
	t.Helper()
	ctx := NewDynamicContext(NewConfiguration(), parameter, "")
	node.Apply(ctx)
	return ctx.SQL()
}

func TestIfNode(t *testing.T) {
	node := &IfNode{Test: "age != null", Contents: &StaticTextNode{Text: "AND age = #{age}"}}

	sql := render(t, node, map[string]any{"age": 30})
	assert.Equal(t, "AND age = #{age}", sql)

	sql = render(t, node, map[string]any{})
	assert.Equal(t, "", sql, "a false test must contribute nothing")
}

func TestChooseNode(t *testing.T) {
	node := &ChooseNode{
		Whens: []*IfNode{
			{Test: "type == 'a'", Contents: &StaticTextNode{Text: "AND type = 'a'"}},
			{Test: "type == 'b'", Contents: &StaticTextNode{Text: "AND type = 'b'"}},
		},
		Otherwise: &StaticTextNode{Text: "AND type IS NOT NULL"},
	}

	assert.Equal(t, "AND type = 'a'", render(t, node, map[string]any{"type": "a"}))
	assert.Equal(t, "AND type = 'b'", render(t, node, map[string]any{"type": "b"}))
	assert.Equal(t, "AND type IS NOT NULL", render(t, node, map[string]any{"type": "c"}))
}

func TestWhereNode(t *testing.T) {
	inner := &MixedSQLNode{Contents: []SQLNode{
		&IfNode{Test: "a != null", Contents: &StaticTextNode{Text: "AND a = 1"}},
		&IfNode{Test: "b != null", Contents: &StaticTextNode{Text: "AND b = 2"}},
	}}
	node := NewWhereNode(inner)

	assert.Equal(t, "WHERE a = 1 AND b = 2", render(t, node, map[string]any{"a": 1, "b": 2}))
	assert.Equal(t, "WHERE a = 1", render(t, node, map[string]any{"a": 1}))
	assert.Equal(t, "", render(t, node, map[string]any{}), "an empty body must not render a bare WHERE")
}

func TestSetNode(t *testing.T) {
	inner := &MixedSQLNode{Contents: []SQLNode{
		&IfNode{Test: "name != null", Contents: &StaticTextNode{Text: "name = #{name},"}},
		&IfNode{Test: "age != null", Contents: &StaticTextNode{Text: "age = #{age},"}},
	}}
	node := NewSetNode(inner)

	assert.Equal(t, "SET name = #{name}, age = #{age}", render(t, node, map[string]any{"name": "a", "age": 1}))
	assert.Equal(t, "SET name = #{name}", render(t, node, map[string]any{"name": "a"}))
}

func TestForEachSQLNode(t *testing.T) {
	node := &ForEachSQLNode{
		Collection: "ids",
		Item:       "id",
		Open:       "(",
		Close:      ")",
		Separator:  ",",
		Contents:   &TextSQLNode{Text: "${id}"},
	}
	sql := render(t, node, map[string]any{"ids": []int{1, 2, 3}})
	assert.Equal(t, "( 1 , 2 , 3 )", sql)
}

func TestForEachSQLNode_EmptyCollectionContributesNothing(t *testing.T) {
	node := &ForEachSQLNode{Collection: "ids", Item: "id", Contents: &StaticTextNode{Text: "#{id}"}}
	assert.Equal(t, "", render(t, node, map[string]any{"ids": []int{}}))
}

// TestForEachSQLNode_HashTokensBindDistinctValuesPerIteration is the
// spec's own worked example: DELETE ... WHERE id IN <foreach>#{i}</foreach>
// over ids=[10,20,30] must bind three distinct placeholders to 10, 20,
// 30 rather than all three resolving to the last iteration's value.
func TestForEachSQLNode_HashTokensBindDistinctValuesPerIteration(t *testing.T) {
	root := &MixedSQLNode{Contents: []SQLNode{
		&StaticTextNode{Text: "DELETE FROM t WHERE id IN"},
		&ForEachSQLNode{
			Collection: "ids",
			Item:       "i",
			Open:       "(",
			Close:      ")",
			Separator:  ",",
			Contents:   &StaticTextNode{Text: "#{i}"},
		},
	}}

	source := &DynamicSqlSource{Configuration: NewConfiguration(), RootNode: root}
	bound, err := source.BoundSQL(map[string]any{"ids": []int{10, 20, 30}})
	require.NoError(t, err)

	require.Len(t, bound.ParameterMappings, 3)
	got := make([]any, len(bound.ParameterMappings))
	for i, pm := range bound.ParameterMappings {
		v, ok := bound.GetAdditionalParameter(pm.Property)
		require.True(t, ok, "missing binding for %v", pm.Property)
		got[i] = v
	}
	assert.Equal(t, []any{10, 20, 30}, got)
	assert.Equal(t, "DELETE FROM t WHERE id IN ( ? , ? , ? )", bound.SQL)
}

func TestBindNode(t *testing.T) {
	mixed := &MixedSQLNode{Contents: []SQLNode{
		&BindNode{Name: "double", Value: "age + age"},
		&TextSQLNode{Text: "${double}"},
	}}
	sql := render(t, mixed, map[string]any{"age": 5})
	assert.Equal(t, "10", sql)
}

func TestTrimSQL(t *testing.T) {
	assert.Equal(t, "a = 1", trimSQL("AND a = 1", []string{"AND", "OR"}, nil))
	assert.Equal(t, "a = 1", trimSQL("  and a = 1", []string{"AND", "OR"}, nil))
	assert.Equal(t, "a = 1", trimSQL("a = 1,", nil, []string{","}))
}
