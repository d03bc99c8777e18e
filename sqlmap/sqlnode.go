// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/eframework-org/GO.UTIL/XString"
)

// DynamicContext accumulates SQL text and parameter bindings while a
// dynamic SQL node tree is applied for one invocation.
type DynamicContext struct {
	Configuration *Configuration
	root          any
	bindings      *bindingMap
	sql           strings.Builder
	uniqueCounter *int64
}

// NewDynamicContext seeds the bindings map with _parameter/_databaseId
// per spec 4.5, plus the "collection"/"list"/"array" magic names the
// parameter resolver documents for a bare (unwrapped) single-parameter
// slice, array, or map argument, so <foreach collection="list"> works
// against a method invoked with a single collection argument the same
// way it does against a named property of a wrapped parameter map.
func NewDynamicContext(cfg *Configuration, parameterObject any, databaseID string) *DynamicContext {
	b := newBindingMap()
	b.set("_parameter", parameterObject)
	b.set("_databaseId", databaseID)
	if m, ok := parameterObject.(map[string]any); ok {
		for k, v := range m {
			b.set(k, v)
		}
	} else if parameterObject != nil {
		rv := reflect.ValueOf(parameterObject)
		switch rv.Kind() {
		case reflect.Slice:
			b.set("collection", parameterObject)
			b.set("list", parameterObject)
		case reflect.Array:
			b.set("collection", parameterObject)
			b.set("array", parameterObject)
		case reflect.Map:
			b.set("collection", parameterObject)
		}
	}
	var counter int64
	return &DynamicContext{Configuration: cfg, root: parameterObject, bindings: b, uniqueCounter: &counter}
}

func (c *DynamicContext) AppendSQL(s string) {
	if s == "" {
		return
	}
	if c.sql.Len() > 0 {
		c.sql.WriteByte(' ')
	}
	c.sql.WriteString(s)
}

func (c *DynamicContext) SQL() string { return strings.TrimSpace(c.sql.String()) }

func (c *DynamicContext) Bind(name string, value any) { c.bindings.set(name, value) }

func (c *DynamicContext) paramContext() *paramContext { return newParamContext(c.root, c.bindings) }

// UniqueNumber returns a monotonically increasing suffix used by
// <foreach> to keep synthetic parameter names distinct across
// iterations.
func (c *DynamicContext) UniqueNumber() int64 { return atomic.AddInt64(c.uniqueCounter, 1) }

// SQLNode is one element of the dynamic SQL tree; Apply renders it into
// ctx, returning false only for nodes that choose to contribute nothing
// (used by <choose> to detect an unmatched branch).
type SQLNode interface {
	Apply(ctx *DynamicContext) bool
}

// StaticTextNode is literal SQL text with no substitution.
type StaticTextNode struct{ Text string }

func (n *StaticTextNode) Apply(ctx *DynamicContext) bool {
	ctx.AppendSQL(n.Text)
	return true
}

// TextSQLNode is text containing ${...} substitutions, resolved against
// the bindings map at render time.
type TextSQLNode struct{ Text string }

func (n *TextSQLNode) Apply(ctx *DynamicContext) bool {
	parser := &GenericTokenParser{Open: "${", Close: "}", Handler: func(content string) string {
		v, ok := ctx.paramContext().resolveRoot(strings.TrimSpace(content))
		if !ok {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}}
	ctx.AppendSQL(parser.Parse(n.Text))
	return true
}

// MixedSQLNode is an ordered sequence of child nodes.
type MixedSQLNode struct{ Contents []SQLNode }

func (n *MixedSQLNode) Apply(ctx *DynamicContext) bool {
	for _, c := range n.Contents {
		c.Apply(ctx)
	}
	return true
}

// IfNode applies its children only when Test evaluates truthy.
type IfNode struct {
	Test     string
	Contents SQLNode
}

func (n *IfNode) Apply(ctx *DynamicContext) bool {
	ok, err := (ExpressionEvaluator{}).EvaluateBoolean(n.Test, ctx.paramContext())
	if err != nil {
		return false
	}
	if ok {
		n.Contents.Apply(ctx)
		return true
	}
	return false
}

// ChooseNode applies the first truthy When, else Otherwise.
type ChooseNode struct {
	Whens     []*IfNode
	Otherwise SQLNode
}

func (n *ChooseNode) Apply(ctx *DynamicContext) bool {
	for _, w := range n.Whens {
		if w.Apply(ctx) {
			return true
		}
	}
	if n.Otherwise != nil {
		n.Otherwise.Apply(ctx)
		return true
	}
	return false
}

// TrimNode renders its contents, then strips leading prefix-overrides
// and trailing suffix-overrides before wrapping with Prefix/Suffix, all
// case-insensitive and whitespace-tolerant.
type TrimNode struct {
	Contents         SQLNode
	Prefix, Suffix   string
	PrefixesToOmit   []string
	SuffixesToOmit   []string
}

func (n *TrimNode) Apply(ctx *DynamicContext) bool {
	inner := &DynamicContext{Configuration: ctx.Configuration, root: ctx.root, bindings: ctx.bindings, uniqueCounter: ctx.uniqueCounter}
	n.Contents.Apply(inner)
	trimmed := trimSQL(inner.SQL(), n.PrefixesToOmit, n.SuffixesToOmit)
	if trimmed == "" {
		return false
	}
	var out strings.Builder
	if n.Prefix != "" {
		out.WriteString(n.Prefix)
		out.WriteByte(' ')
	}
	out.WriteString(trimmed)
	if n.Suffix != "" {
		out.WriteByte(' ')
		out.WriteString(n.Suffix)
	}
	ctx.AppendSQL(out.String())
	return true
}

func trimSQL(sql string, prefixesToOmit, suffixesToOmit []string) string {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	for _, p := range prefixesToOmit {
		pu := strings.ToUpper(strings.TrimSpace(p))
		if XString.StartsWith(upper, pu) {
			trimmed = strings.TrimSpace(trimmed[len(pu):])
			upper = strings.ToUpper(trimmed)
			break
		}
	}
	for _, s := range suffixesToOmit {
		su := strings.ToUpper(strings.TrimSpace(s))
		if strings.HasSuffix(upper, su) {
			trimmed = strings.TrimSpace(trimmed[:len(trimmed)-len(su)])
			break
		}
	}
	return trimmed
}

// NewWhereNode returns the where = trim(prefix="WHERE", ...) specialization
// from spec 4.5.
func NewWhereNode(contents SQLNode) *TrimNode {
	return &TrimNode{
		Contents:       contents,
		Prefix:         "WHERE",
		PrefixesToOmit: []string{"AND", "OR", "AND\n", "OR\n", "AND\r\n", "OR\r\n"},
	}
}

// NewSetNode returns the set = trim(prefix="SET", suffixOverrides=",")
// specialization from spec 4.5.
func NewSetNode(contents SQLNode) *TrimNode {
	return &TrimNode{
		Contents:       contents,
		Prefix:         "SET",
		SuffixesToOmit: []string{","},
	}
}

// ForEachSQLNode iterates a collection, pushing item/index bindings
// under unique synthetic names each iteration.
type ForEachSQLNode struct {
	Collection                  string
	Item, Index                 string
	Open, Close, Separator      string
	Contents                    SQLNode
}

func (n *ForEachSQLNode) Apply(ctx *DynamicContext) bool {
	items, ok := resolveCollection(ctx, n.Collection)
	if !ok || items.Len() == 0 {
		return false
	}
	if n.Open != "" {
		ctx.AppendSQL(n.Open)
	}
	count := 0
	for i := 0; i < items.Len(); i++ {
		if count > 0 && n.Separator != "" {
			ctx.AppendSQL(n.Separator)
		}
		suffix := ctx.UniqueNumber()
		iterCtx := newForEachIterationContext(ctx, n, i, items, suffix)
		n.Contents.Apply(iterCtx)
		ctx.AppendSQL(itemizeForEachTokens(iterCtx.SQL(), n.Item, n.Index, suffix))
		count++
	}
	if n.Close != "" {
		ctx.AppendSQL(n.Close)
	}
	return true
}

// newForEachIterationContext returns a scratch context sharing ctx's
// bindings map (so #{item}/${item} and <if test="item...."> can see
// item/index during this iteration's rendering) but its own SQL
// builder. It binds item/index under both their plain names, for
// expression evaluation and ${...} substitution while this iteration
// is being rendered, and under this iteration's unique synthetic
// aliases, which is what the final #{...} rewrite in
// itemizeForEachTokens actually references — the plain names get
// overwritten by the next iteration, but the aliased ones must survive
// until SqlSourceBuilder.Parse runs once over the whole rendered tree.
func newForEachIterationContext(ctx *DynamicContext, n *ForEachSQLNode, i int, items reflect.Value, suffix int64) *DynamicContext {
	iterCtx := &DynamicContext{Configuration: ctx.Configuration, root: ctx.root, bindings: ctx.bindings, uniqueCounter: ctx.uniqueCounter}
	if n.Item != "" {
		val := items.Index(i).Interface()
		ctx.bindings.set(n.Item, val)
		ctx.bindings.set(forEachAlias(n.Item, suffix), val)
	}
	if n.Index != "" {
		ctx.bindings.set(n.Index, i)
		ctx.bindings.set(forEachAlias(n.Index, suffix), i)
	}
	return iterCtx
}

// forEachAlias is the synthetic per-iteration parameter name a
// <foreach> item/index binding is rewritten to, matching MyBatis's own
// "__frch_name_suffix" convention.
func forEachAlias(name string, suffix int64) string {
	return fmt.Sprintf("__frch_%s_%d", name, suffix)
}

// itemizeForEachTokens rewrites every #{item...}/#{index...} token in
// one iteration's rendered SQL to reference that iteration's unique
// alias instead of the shared item/index name, so that N iterations of
// a <foreach> body produce N distinct ParameterMapping entries when
// SqlSourceBuilder.Parse runs over the fully-rendered SQL text, instead
// of N identical entries that all resolve to the last iteration's
// value.
func itemizeForEachTokens(sql, itemName, indexName string, suffix int64) string {
	if sql == "" || (itemName == "" && indexName == "") {
		return sql
	}
	parser := &GenericTokenParser{Open: "#{", Close: "}", Handler: func(content string) string {
		trimmed := strings.TrimSpace(content)
		name := trimmed
		rest := ""
		if idx := strings.IndexAny(trimmed, ".,"); idx != -1 {
			name = trimmed[:idx]
			rest = trimmed[idx:]
		}
		switch {
		case itemName != "" && name == itemName:
			return "#{" + forEachAlias(itemName, suffix) + rest + "}"
		case indexName != "" && name == indexName:
			return "#{" + forEachAlias(indexName, suffix) + rest + "}"
		default:
			return "#{" + content + "}"
		}
	}}
	return parser.Parse(sql)
}

// resolveCollection returns a reflect.Value of Kind Slice/Array
// wrapping the named collection: a slice/array is used directly, a map
// becomes a slice of its values in Go's map iteration order (which is
// not defined), and the magic names "collection"/"list"/"array" seeded by the parameter
// resolver are honored implicitly through normal binding
// resolution.
func resolveCollection(ctx *DynamicContext, name string) (reflect.Value, bool) {
	v, ok := ctx.paramContext().resolveRoot(strings.TrimSpace(name))
	if !ok || v == nil {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv, true
	case reflect.Map:
		keys := rv.MapKeys()
		out := reflect.MakeSlice(reflect.SliceOf(rv.Type().Elem()), 0, len(keys))
		for _, k := range keys {
			out = reflect.Append(out, rv.MapIndex(k))
		}
		return out, true
	default:
		return reflect.Value{}, false
	}
}

// BindNode evaluates Value once and stores the result under Name in the
// bindings map, visible to later nodes.
type BindNode struct {
	Name  string
	Value string
}

func (n *BindNode) Apply(ctx *DynamicContext) bool {
	v, err := (ExpressionEvaluator{}).EvaluateObject(n.Value, ctx.paramContext())
	if err != nil {
		return false
	}
	ctx.Bind(n.Name, v)
	return true
}

// IncludeNode splices a named SQL fragment (resolved at build time) in
// place, optionally overriding <property> substitutions the fragment's
// ${...} tokens reference.
type IncludeNode struct {
	Contents SQLNode
}

func (n *IncludeNode) Apply(ctx *DynamicContext) bool {
	return n.Contents.Apply(ctx)
}
