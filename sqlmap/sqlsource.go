// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"reflect"
	"strconv"
	"strings"
)

// BoundSQL is the fully-resolved SQL text plus its ordered parameter
// mappings and the concrete arguments to pass to the driver, produced
// for one invocation of a MappedStatement.
type BoundSQL struct {
	SQL               string
	ParameterMappings []*ParameterMapping
	ParameterObject   any
	AdditionalParams  *bindingMap
}

// GetAdditionalParameter returns a value bound via <bind> or foreach
// item/index that is not itself a field of the parameter object.
func (b *BoundSQL) GetAdditionalParameter(name string) (any, bool) {
	if b.AdditionalParams == nil {
		return nil, false
	}
	return b.AdditionalParams.get(name)
}

func (b *BoundSQL) HasAdditionalParameter(name string) bool {
	_, ok := b.GetAdditionalParameter(name)
	return ok
}

// SQLSource produces a BoundSQL for a given parameter object. RawSqlSource
// is used for statements with no dynamic tags; DynamicSqlSource is used
// otherwise.
type SQLSource interface {
	BoundSQL(parameterObject any) (*BoundSQL, error)
}

// RawSqlSource pre-parses #{...} tokens once at build time since the SQL
// text never changes between invocations.
type RawSqlSource struct {
	sqlSource *DynamicSqlSource
}

// NewRawSqlSource renders the root node once (there is no ${...} content
// left to resolve dynamically once <if>/<choose>/etc are absent) and
// caches the #{...}-parsed result.
func NewRawSqlSource(cfg *Configuration, root SQLNode, parameterType reflect.Type) (*RawSqlSource, error) {
	ctx := NewDynamicContext(cfg, nil, "")
	root.Apply(ctx)
	builder := &SqlSourceBuilder{Configuration: cfg}
	built, err := builder.Parse(ctx.SQL(), parameterType, nil)
	if err != nil {
		return nil, err
	}
	return &RawSqlSource{sqlSource: &DynamicSqlSource{Configuration: cfg, staticSource: built}}, nil
}

func (s *RawSqlSource) BoundSQL(parameterObject any) (*BoundSQL, error) {
	return s.sqlSource.BoundSQL(parameterObject)
}

// DynamicSqlSource re-renders the node tree for every invocation because
// <if>/<choose>/<foreach> content depends on the parameter object.
type DynamicSqlSource struct {
	Configuration *Configuration
	RootNode      SQLNode
	ParameterType reflect.Type
	DatabaseID    string

	// staticSource, when set, short-circuits Apply for RawSqlSource's
	// pre-rendered case.
	staticSource *StaticSqlSource
}

func (s *DynamicSqlSource) BoundSQL(parameterObject any) (*BoundSQL, error) {
	if s.staticSource != nil {
		return s.staticSource.BoundSQL(parameterObject)
	}
	ctx := NewDynamicContext(s.Configuration, parameterObject, s.DatabaseID)
	s.RootNode.Apply(ctx)
	builder := &SqlSourceBuilder{Configuration: s.Configuration}
	built, err := builder.Parse(ctx.SQL(), s.ParameterType, ctx.bindings)
	if err != nil {
		return nil, err
	}
	bound, err := built.BoundSQL(parameterObject)
	if err != nil {
		return nil, err
	}
	bound.AdditionalParams = ctx.bindings
	return bound, nil
}

// StaticSqlSource wraps SQL text whose #{...} tokens have already been
// rewritten to positional placeholders, with the corresponding ordered
// ParameterMapping slice.
type StaticSqlSource struct {
	SQL               string
	ParameterMappings []*ParameterMapping
}

func (s *StaticSqlSource) BoundSQL(parameterObject any) (*BoundSQL, error) {
	return &BoundSQL{SQL: s.SQL, ParameterMappings: s.ParameterMappings, ParameterObject: parameterObject}, nil
}

// SqlSourceBuilder rewrites #{...} tokens into driver placeholders and
// records one ParameterMapping per token, in order.
type SqlSourceBuilder struct {
	Configuration *Configuration
}

// Parse consumes SQL containing #{property[,attr=value,...]} tokens.
// bindings is not read here: each token becomes a ParameterMapping by
// property name, and <bind>/<foreach>-introduced names are resolved
// later through the BoundSQL's AdditionalParams, which DynamicSqlSource
// sets from the same bindings.
func (b *SqlSourceBuilder) Parse(sql string, parameterType reflect.Type, bindings *bindingMap) (*StaticSqlSource, error) {
	var mappings []*ParameterMapping
	var parseErr error
	placeholder := b.Configuration.placeholderStyle()
	index := 0
	parser := &GenericTokenParser{Open: "#{", Close: "}", Handler: func(content string) string {
		pm, err := b.parseParameterMapping(content, parameterType)
		if err != nil {
			if parseErr == nil {
				parseErr = err
			}
			pm = &ParameterMapping{Property: strings.TrimSpace(content)}
		}
		mappings = append(mappings, pm)
		index++
		return placeholder(index)
	}}
	rewritten := parser.Parse(sql)
	if parseErr != nil {
		return nil, parseErr
	}
	rewritten = strings.Join(strings.Fields(rewritten), " ")
	return &StaticSqlSource{SQL: rewritten, ParameterMappings: mappings}, nil
}

const errReservedExpression = sentinelErr("expression= is reserved in #{...} parameter mappings and is not supported")

// parseParameterMapping splits
// "prop,jdbcType=VARCHAR,javaType=int,jdbcTypeName=VARCHAR,mode=IN,numericScale=2"
// into a ParameterMapping, resolving JavaType from an explicit
// javaType= override or, failing that, from the parameter type via
// reflection.
func (b *SqlSourceBuilder) parseParameterMapping(content string, parameterType reflect.Type) (*ParameterMapping, error) {
	parts := strings.Split(content, ",")
	pm := &ParameterMapping{Property: strings.TrimSpace(parts[0])}
	var explicitJavaType reflect.Type
	for _, attr := range parts[1:] {
		kv := strings.SplitN(attr, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		switch strings.ToLower(key) {
		case "jdbctype", "jdbctypename":
			pm.JdbcType = val
		case "javatype":
			explicitJavaType = resolvePrimitiveTypeAlias(val)
		case "mode":
			switch strings.ToUpper(val) {
			case "OUT":
				pm.Mode = ModeOut
			case "INOUT":
				pm.Mode = ModeInOut
			default:
				pm.Mode = ModeIn
			}
		case "numericscale":
			if n, err := strconv.Atoi(val); err == nil {
				pm.NumericScale = n
			}
		case "resultmap":
			pm.ResultMapID = val
		case "typehandler":
			// Accepted and ignored: the mapping keeps the handler the
			// registry resolves for its JavaType and JdbcType.
		case "expression":
			return nil, newErr(ErrBuild, "parse parameter mapping", "", errReservedExpression)
		}
	}
	if explicitJavaType != nil {
		pm.JavaType = explicitJavaType
	} else {
		pm.JavaType = resolvePropertyType(parameterType, pm.Property)
	}
	return pm, nil
}

// resolvePropertyType looks up the declared type of a dotted property
// path against parameterType, falling back to nil (meaning: infer from
// the runtime value at bind time) when it can't be resolved statically,
// e.g. against a map[string]any parameter type.
func resolvePropertyType(parameterType reflect.Type, property string) reflect.Type {
	if parameterType == nil || property == "" {
		return nil
	}
	t := parameterType
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	segs := strings.Split(property, ".")
	cur := t
	for _, seg := range segs {
		if cur.Kind() == reflect.Ptr {
			cur = cur.Elem()
		}
		if cur.Kind() != reflect.Struct {
			return nil
		}
		r := GetReflector(cur)
		pt, ok := r.TypeOf(seg)
		if !ok {
			return nil
		}
		cur = pt
	}
	return cur
}
