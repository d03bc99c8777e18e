// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqlSourceBuilder_ParseParameterMapping_NumericScale(t *testing.T) {
	b := &SqlSourceBuilder{Configuration: NewConfiguration()}
	source, err := b.Parse("UPDATE accounts SET balance = #{amount,numericScale=2} WHERE id = #{id}", nil, nil)
	require.NoError(t, err)
	require.Len(t, source.ParameterMappings, 2)
	assert.Equal(t, 2, source.ParameterMappings[0].NumericScale)
	assert.Equal(t, 0, source.ParameterMappings[1].NumericScale)
}

func TestSqlSourceBuilder_ParseParameterMapping_JavaTypeAndJdbcTypeName(t *testing.T) {
	b := &SqlSourceBuilder{Configuration: NewConfiguration()}
	source, err := b.Parse("SELECT * FROM t WHERE flag = #{flag,javaType=bool,jdbcTypeName=BIT}", nil, nil)
	require.NoError(t, err)
	require.Len(t, source.ParameterMappings, 1)
	pm := source.ParameterMappings[0]
	assert.Equal(t, "bool", pm.JavaType.Kind().String())
	assert.Equal(t, "BIT", pm.JdbcType)
}

func TestSqlSourceBuilder_ParseParameterMapping_RejectsExpression(t *testing.T) {
	b := &SqlSourceBuilder{Configuration: NewConfiguration()}
	_, err := b.Parse("SELECT * FROM t WHERE x = #{val,expression=1+1}", nil, nil)
	assert.Error(t, err, "expression= is reserved and must be rejected, not silently ignored")
}
