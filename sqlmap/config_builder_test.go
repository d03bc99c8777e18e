// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql/driver"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cfgTestUser struct {
	ID   int
	Name string
}

type cfgTestFactory struct{}

func (cfgTestFactory) Create(t reflect.Type) (reflect.Value, error) { return NewInstance(t), nil }

type cfgTestInterceptor struct{}

func (cfgTestInterceptor) Intercept(inv *Invocation, proceed Proceed) (any, error) {
	return proceed(inv)
}

type cfgTestTypeHandler struct{}

func (cfgTestTypeHandler) ToDatabase(value any) (driver.Value, error) { return value, nil }
func (cfgTestTypeHandler) FromDatabase(value any, target reflect.Type) (any, error) {
	return value, nil
}

const testConfigDoc = `<?xml version="1.0" encoding="UTF-8"?>
<configuration>
  <properties resource="app.properties">
    <property name="db.name" value="override"/>
  </properties>
  <settings>
    <setting name="cacheEnabled" value="false"/>
    <setting name="mapUnderscoreToCamelCase" value="true"/>
  </settings>
  <typeAliases>
    <typeAlias alias="User" type="cfgTestUser"/>
  </typeAliases>
  <typeHandlers>
    <typeHandler javaType="string" handler="StringHandler"/>
  </typeHandlers>
  <objectFactory type="CustomFactory"/>
  <plugins>
    <plugin interceptor="NoOp"/>
  </plugins>
  <environments default="dev">
    <environment id="dev">
      <transactionManager type="JDBC"/>
      <dataSource type="POOLED">
        <property name="driver" value="sqlite3"/>
        <property name="url" value="${db.dsn}"/>
      </dataSource>
    </environment>
  </environments>
  <databaseIdProvider type="DB_VENDOR">
    <property name="SQLite" value="sqlite"/>
  </databaseIdProvider>
  <mappers>
    <mapper resource="UserMapper.xml"/>
  </mappers>
</configuration>`

const testMapperDoc = `<?xml version="1.0" encoding="UTF-8"?>
<mapper namespace="Users">
  <select id="find" resultType="User">
    SELECT id, name FROM users WHERE id = #{id}
  </select>
</mapper>`

func newFakeResourceLoader(files map[string]string) func(string) (io.ReadCloser, error) {
	return func(path string) (io.ReadCloser, error) {
		body, ok := files[path]
		if !ok {
			return nil, &Error{Kind: ErrBuild, Activity: "load resource " + path}
		}
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

func TestLoadConfiguration_WiresEveryDocumentSection(t *testing.T) {
	registry := map[string]reflect.Type{
		"cfgTestUser":                 reflect.TypeOf(cfgTestUser{}),
		"objectFactory:CustomFactory": reflect.TypeOf(cfgTestFactory{}),
		"interceptor:NoOp":            reflect.TypeOf(cfgTestInterceptor{}),
		"typeHandler:StringHandler":   reflect.TypeOf(cfgTestTypeHandler{}),
	}
	b := NewBuilder(registry)
	b.Prefs = nil
	b.ResourceLoader = newFakeResourceLoader(map[string]string{
		"app.properties": "db.dsn=file::memory:?cache=shared\ndb.name=fallback\n",
		"UserMapper.xml": testMapperDoc,
	})

	err := b.LoadConfiguration("Configuration.xml", strings.NewReader(testConfigDoc))
	require.NoError(t, err)
	require.NoError(t, b.Resolve())

	assert.Equal(t, "file::memory:?cache=shared", func() string {
		v, _ := b.property("db.dsn")
		return v
	}())
	assert.Equal(t, "override", func() string {
		v, _ := b.property("db.name")
		return v
	}(), "inline <property> entries win over the external resource")

	assert.False(t, b.Configuration.Settings.CacheEnabled)
	assert.True(t, b.Configuration.Settings.MapUnderscoreToCamelCase)

	assert.Equal(t, reflect.TypeOf(cfgTestUser{}), registry["User"], "typeAlias registers into the shared type registry")

	_, ok := b.Configuration.ObjectFactory.(*cfgTestFactory)
	assert.True(t, ok, "objectFactory swaps the default construction hook")

	require.NotNil(t, b.Configuration.Environment)
	assert.Equal(t, "sqlite", b.Configuration.Environment.DatabaseID, "the databaseIdProvider resolves OpenSQLite's driver id down to its vendor alias")

	require.NotNil(t, b.Configuration.DatabaseIDProvider)

	ms, err := b.Configuration.MappedStatement("Users.find")
	require.NoError(t, err, "the <mappers> section parses UserMapper.xml into the same Configuration")
	assert.Equal(t, CommandSelect, ms.Command)
}

func TestLoadConfiguration_MissingEnvironmentDriverFails(t *testing.T) {
	b := NewBuilder(map[string]reflect.Type{})
	b.Prefs = nil
	doc := `<configuration>
  <environments default="dev">
    <environment id="dev">
      <dataSource type="POOLED">
        <property name="driver" value="oracle"/>
        <property name="url" value="jdbc:oracle:thin"/>
      </dataSource>
    </environment>
  </environments>
</configuration>`
	err := b.LoadConfiguration("bad.xml", strings.NewReader(doc))
	assert.Error(t, err)
}

func TestBuildStatement_SelectKeyWiresGenerator(t *testing.T) {
	b := NewBuilder(map[string]reflect.Type{"cfgTestUser": reflect.TypeOf(cfgTestUser{})})
	doc := `<mapper namespace="Users">
  <insert id="create" parameterType="cfgTestUser">
    <selectKey keyProperty="ID" order="BEFORE" resultType="int">
      SELECT nextval('users_seq')
    </selectKey>
    INSERT INTO users (id, name) VALUES (#{ID}, #{Name})
  </insert>
</mapper>`
	require.NoError(t, b.ParseMapper("Users.xml", strings.NewReader(doc)))
	require.NoError(t, b.Resolve())

	ms, err := b.Configuration.MappedStatement("Users.create")
	require.NoError(t, err)
	require.NotNil(t, ms.KeyGen)
	gen, ok := ms.KeyGen.Generator.(*SelectKeyGenerator)
	require.True(t, ok, "a <selectKey> child wires a *SelectKeyGenerator instead of Identity/NoKeyGenerator")
	assert.True(t, gen.Before)
	assert.Equal(t, "ID", gen.KeyProperty)
	require.NotNil(t, gen.SQLSource)

	bound, err := gen.SQLSource.BoundSQL(nil)
	require.NoError(t, err)
	assert.Contains(t, bound.SQL, "nextval")
}

func TestBuildStatement_SelectKeyOrderAfter(t *testing.T) {
	b := NewBuilder(map[string]reflect.Type{"cfgTestUser": reflect.TypeOf(cfgTestUser{})})
	doc := `<mapper namespace="Users">
  <insert id="create" parameterType="cfgTestUser">
    INSERT INTO users (name) VALUES (#{Name})
    <selectKey keyProperty="ID" order="AFTER" resultType="int">
      SELECT last_insert_rowid()
    </selectKey>
  </insert>
</mapper>`
	require.NoError(t, b.ParseMapper("Users.xml", strings.NewReader(doc)))
	require.NoError(t, b.Resolve())

	ms, err := b.Configuration.MappedStatement("Users.create")
	require.NoError(t, err)
	gen, ok := ms.KeyGen.Generator.(*SelectKeyGenerator)
	require.True(t, ok)
	assert.False(t, gen.Before)
}

func TestBuildCache_AssemblesFullDecoratorStack(t *testing.T) {
	b := NewBuilder(map[string]reflect.Type{})
	x := &xmlCache{Eviction: "LRU", Size: 8, Blocking: "true", ReadOnly: "false"}
	cache := b.buildCache(x)

	logging, ok := cache.(*LoggingCache)
	require.True(t, ok, "the stack's outermost layer is always LoggingCache")
	sync, ok := logging.delegate.(*SynchronizedCache)
	require.True(t, ok, "Synchronized wraps everything below it")
	serialized, ok := sync.delegate.(*SerializedCache)
	require.True(t, ok, "readOnly!=\"true\" wires SerializedCache so callers can't mutate a shared cached value")
	blocking, ok := serialized.delegate.(*BlockingCache)
	require.True(t, ok, "blocking=\"true\" wires BlockingCache")
	_, ok = blocking.delegate.(*LRUCache)
	require.True(t, ok, "eviction=\"LRU\" is still the base policy under the new decorators")
}

func TestBuildCache_ReadOnlySkipsSerializedCache(t *testing.T) {
	b := NewBuilder(map[string]reflect.Type{})
	cache := b.buildCache(&xmlCache{Eviction: "LRU", ReadOnly: "true"})
	logging := cache.(*LoggingCache)
	sync := logging.delegate.(*SynchronizedCache)
	_, ok := sync.delegate.(*SerializedCache)
	assert.False(t, ok, "readOnly=\"true\" skips the defensive-copy decorator")
}
