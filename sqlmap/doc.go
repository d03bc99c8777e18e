// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

/*
Package sqlmap implements the core of a SQL-mapping runtime: it binds
declared query descriptors to externally authored SQL (from XML mapper
documents, whose statements an in-process descriptor table can bind to
Go interface methods), compiles a small
dynamic-SQL language into parameterized statements, executes them
through database/sql, and projects rows back into Go values.

Configuration

A Configuration is built once from one or more mapper documents (plus
any mapper descriptors bound to their statements), then treated as
read-only:

	builder := sqlmap.NewBuilder(typeRegistry)
	f, _ := os.Open("mappers/user.xml")
	if err := builder.ParseMapper("mappers/user.xml", f); err != nil {
	    panic(err)
	}
	if err := builder.Resolve(); err != nil {
	    panic(err)
	}
	cfg := builder.Configuration

Sessions

A Session is bound to the calling goroutine and owns one transaction
and one executor:

	sess, err := sqlmap.OpenSession(cfg)
	if err != nil { ... }
	defer sess.Close()

	ms, _ := cfg.MappedStatement("mappers.user.FindByID")
	rows, err := sess.Executor.Query(ms, 42, nil, nil)
	if err != nil { ... }
	// sqlmap.CurrentSession() now resolves to sess on this goroutine.

Dynamic SQL

Mapper documents describe SQL with conditionals, iteration and
parameter binding:

	<select id="findActive" resultType="User">
	  SELECT * FROM user
	  <where>
	    <if test="minAge != null">AND age &gt;= #{minAge}</if>
	    <if test="ids != null">
	      AND id IN
	      <foreach item="i" collection="ids" open="(" close=")" separator=",">#{i}</foreach>
	    </if>
	  </where>
	</select>

See SPEC_FULL.md and DESIGN.md in the repository root for the full
component breakdown and the decisions behind it.
*/
package sqlmap
