// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"
	"gopkg.in/yaml.v3"
)

// Builder ingests mapper XML documents and Go mapper interfaces into a
// Configuration, using a two-phase strategy: every statement/result map
// is parsed into an intermediate form first, and cross-references
// (cache-ref, resultMap extends, nested resultMap ids, <include>
// fragment ids) are resolved in a second pass once every namespace has
// been read. This replaces MyBatis's direct object back-references,
// which Go's value-oriented ResultMap/MappedStatement types can't form
// as cheaply as Java's mutable object graph.
type Builder struct {
	Configuration *Configuration
	TypeRegistry  map[string]reflect.Type

	// Prefs backs ${...} placeholder resolution in a configuration
	// document's <properties>; defaults to XPrefs.Asset(). The batch
	// executor reads its flush interval from XPrefs.Asset() directly,
	// not from this field.
	Prefs XPrefs.IBase

	// ResourceLoader opens a resource path named by <properties
	// resource="...">/<mapper resource="...">; defaults to os.Open.
	ResourceLoader func(path string) (io.ReadCloser, error)

	properties map[string]string

	pendingCacheRefs  []func() error
	pendingResultMaps []func() error
	pendingStatements []func() error
}

// NewBuilder returns a Builder over a fresh Configuration. typeRegistry
// maps the javaType/parameterType/resultType strings a mapper document
// references (e.g. "User", "int") to concrete Go types, since Go has no
// runtime class loader to resolve a bare type name from.
func NewBuilder(typeRegistry map[string]reflect.Type) *Builder {
	return &Builder{
		Configuration:  NewConfiguration(),
		TypeRegistry:   typeRegistry,
		Prefs:          XPrefs.Asset(),
		ResourceLoader: openFileResource,
		properties:     make(map[string]string),
	}
}

func openFileResource(path string) (io.ReadCloser, error) { return os.Open(path) }

func (b *Builder) resolveType(name string) reflect.Type {
	if name == "" {
		return nil
	}
	if t, ok := b.TypeRegistry[name]; ok {
		return t
	}
	return resolvePrimitiveTypeAlias(name)
}

// resolvePrimitiveTypeAlias resolves the built-in scalar aliases
// available with no Builder.TypeRegistry in scope, e.g. from an
// explicit #{prop,javaType=int} override parsed at BoundSQL time.
func resolvePrimitiveTypeAlias(name string) reflect.Type {
	switch name {
	case "string":
		return reflect.TypeOf("")
	case "int":
		return reflect.TypeOf(int(0))
	case "int64", "long":
		return reflect.TypeOf(int64(0))
	case "float64", "double":
		return reflect.TypeOf(float64(0))
	case "bool", "boolean":
		return reflect.TypeOf(false)
	case "map":
		return reflect.TypeOf(map[string]any{})
	default:
		return nil
	}
}

// ParseMapper reads one mapper XML document and stages its statements,
// result maps and fragments for resolution.
func (b *Builder) ParseMapper(resource string, r io.Reader) error {
	if !b.Configuration.MarkResourceLoaded(resource) {
		return nil
	}
	var doc xmlMapper
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return newErr(ErrBuild, "parse mapper xml", resource, err)
	}
	ns := doc.Namespace

	for _, frag := range doc.SQLs {
		id := ns + "." + frag.ID
		frag := frag
		node, err := b.parseDynamicBody(frag.Inner)
		if err != nil {
			return newErr(ErrBuild, "parse sql fragment", id, err)
		}
		b.Configuration.AddSQLFragment(id, node)
		b.Configuration.AddSQLFragment(frag.ID, node) // also addressable unqualified within-namespace
	}

	if doc.CacheRef != nil {
		target := doc.CacheRef.Namespace
		b.pendingCacheRefs = append(b.pendingCacheRefs, func() error {
			cache, ok := b.Configuration.Cache(target)
			if !ok {
				return newErr(ErrIncompleteReference, "resolve cache-ref", ns, fmt.Errorf("namespace %v has no cache", target))
			}
			b.Configuration.AddCache(ns, cache)
			return nil
		})
	} else if doc.Cache != nil {
		b.Configuration.AddCache(ns, b.buildCache(doc.Cache))
	}

	for _, rm := range doc.ResultMaps {
		rm := rm
		b.pendingResultMaps = append(b.pendingResultMaps, func() error {
			built, err := b.buildResultMap(ns, rm)
			if err != nil {
				return err
			}
			b.Configuration.AddResultMap(built)
			return nil
		})
	}

	for _, s := range doc.Selects {
		if err := b.stageStatement(ns, CommandSelect, s); err != nil {
			return err
		}
	}
	for _, s := range doc.Inserts {
		if err := b.stageStatement(ns, CommandInsert, s); err != nil {
			return err
		}
	}
	for _, s := range doc.Updates {
		if err := b.stageStatement(ns, CommandUpdate, s); err != nil {
			return err
		}
	}
	for _, s := range doc.Deletes {
		if err := b.stageStatement(ns, CommandDelete, s); err != nil {
			return err
		}
	}
	return nil
}

// buildCache assembles the full documented decorator stack:
// MapCache -> {LRU|FIFO|Soft|Weak} -> [Scheduled] -> [Blocking] ->
// [Serialized] -> Synchronized -> Logging, driven by the <cache>
// element's eviction/flushInterval/blocking/readOnly attributes.
func (b *Builder) buildCache(x *xmlCache) Cache {
	size := x.Size
	if size <= 0 {
		size = 1024
	}
	var cache Cache = NewMapCache("cache")
	switch strings.ToUpper(x.Eviction) {
	case "LRU", "":
		cache = NewLRUCache(cache, size)
	case "FIFO":
		cache = NewFIFOCache(cache, size)
	case "SOFT":
		cache = NewSoftCache(cache)
	case "WEAK":
		cache = NewWeakCache(cache)
	}
	if x.FlushInterval != "" {
		if d, err := time.ParseDuration(x.FlushInterval); err == nil {
			cache = NewScheduledCache(cache, d)
		}
	}
	if x.Blocking == "true" {
		cache = NewBlockingCache(cache)
	}
	// readOnly="false" (the MyBatis default) hands callers a fresh copy
	// of each cached value so they can't mutate the shared entry.
	if x.ReadOnly != "true" {
		cache = NewSerializedCache(cache)
	}
	cache = NewSynchronizedCache(cache)
	return NewLoggingCache(cache)
}

// stageStatement defers full statement construction to the resolve
// phase since a statement's <selectKey>, resultMap or #{resultMap=...}
// parameter references may point at a resultMap declared later in the
// same document, or a fragment from another already-loaded namespace.
func (b *Builder) stageStatement(ns string, command CommandKind, x xmlRawStatement) error {
	id := ns + "." + x.ID
	b.pendingStatements = append(b.pendingStatements, func() error {
		ms, err := b.buildStatement(ns, id, command, x)
		if err != nil {
			return err
		}
		b.Configuration.AddMappedStatement(ms)
		return nil
	})
	return nil
}

func (b *Builder) buildStatement(ns, id string, command CommandKind, x xmlRawStatement) (*MappedStatement, error) {
	paramType := b.resolveType(x.ParameterType)
	root, err := b.parseDynamicBody(x.Inner)
	if err != nil {
		return nil, newErr(ErrBuild, "parse statement body", id, err)
	}

	var source SQLSource
	if isStaticNode(root) {
		source, err = NewRawSqlSource(b.Configuration, root, paramType)
	} else {
		source = &DynamicSqlSource{Configuration: b.Configuration, RootNode: root, ParameterType: paramType, DatabaseID: x.DatabaseID}
	}
	if err != nil {
		return nil, err
	}

	var resultMaps []*ResultMap
	if x.ResultMap != "" {
		rm, err := b.Configuration.ResultMap(qualify(ns, x.ResultMap))
		if err != nil {
			rm, err = b.Configuration.ResultMap(x.ResultMap)
			if err != nil {
				return nil, newErr(ErrIncompleteReference, "resolve statement resultMap", id, err)
			}
		}
		resultMaps = append(resultMaps, rm)
	} else if x.ResultType != "" {
		rt := b.resolveType(x.ResultType)
		if rt == nil {
			return nil, newErr(ErrIncompleteReference, "resolve statement resultType", id, fmt.Errorf("unknown type %v", x.ResultType))
		}
		resultMaps = append(resultMaps, NewResultMap(id+"-Inline", rt, nil, nil))
	}

	ms := &MappedStatement{
		ID:            id,
		Namespace:     ns,
		Command:       command,
		Kind:          parseStatementKind(x.StatementType),
		SQLSource:     source,
		ParameterType: paramType,
		ResultMaps:    resultMaps,
		DatabaseID:    x.DatabaseID,
		FlushCache:    parseBoolAttr(x.FlushCache, command != CommandSelect),
		UseCache:      parseBoolAttr(x.UseCache, command == CommandSelect),
	}
	if x.FetchSize != "" {
		if n, err := strconv.Atoi(x.FetchSize); err == nil {
			ms.FetchSize = n
		}
	}
	if x.Timeout != "" {
		if n, err := strconv.Atoi(x.Timeout); err == nil {
			ms.Timeout = time.Duration(n) * time.Second
		}
	}
	if cache, ok := b.Configuration.Cache(ns); ok {
		ms.Cache = cache
	}
	if x.SelectKey != nil {
		gen, err := b.buildSelectKeyGenerator(ns, id, paramType, x.SelectKey)
		if err != nil {
			return nil, err
		}
		ms.KeyGen = gen
	} else if x.UseGeneratedKeys == "true" {
		ms.KeyGen = &KeyGeneratorSpec{Generator: IdentityKeyGenerator{}, KeyProperties: splitAttr(x.KeyProperty), KeyColumns: splitAttr(x.KeyColumn)}
	} else {
		ms.KeyGen = &KeyGeneratorSpec{Generator: NoKeyGenerator{}}
	}
	if x.ResultSets != "" {
		ms.ResultSets = splitAttr(x.ResultSets)
	}
	return ms, nil
}

// buildSelectKeyGenerator turns a <selectKey> child into a
// SelectKeyGenerator, compiling its own SqlSource from its inner SQL
// the same way the enclosing statement's body is compiled.
func (b *Builder) buildSelectKeyGenerator(ns, id string, paramType reflect.Type, x *xmlSelectKey) (*KeyGeneratorSpec, error) {
	root, err := b.parseDynamicBody(x.Inner)
	if err != nil {
		return nil, newErr(ErrBuild, "parse selectKey body", id, err)
	}
	var source SQLSource
	if isStaticNode(root) {
		source, err = NewRawSqlSource(b.Configuration, root, paramType)
	} else {
		source = &DynamicSqlSource{Configuration: b.Configuration, RootNode: root, ParameterType: paramType}
	}
	if err != nil {
		return nil, err
	}
	gen := &SelectKeyGenerator{
		Before:      strings.ToUpper(x.Order) != "AFTER",
		KeyProperty: firstAttr(x.KeyProperty),
		SQLSource:   source,
	}
	return &KeyGeneratorSpec{
		Generator:     gen,
		KeyProperties: splitAttr(x.KeyProperty),
		KeyColumns:    splitAttr(x.KeyColumn),
	}, nil
}

// firstAttr returns the first comma-separated entry of a possibly
// multi-valued keyProperty attribute; SelectKeyGenerator assigns a
// single scalar value and so only ever targets one property.
func firstAttr(s string) string {
	parts := splitAttr(s)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func parseStatementKind(s string) StatementKind {
	switch strings.ToUpper(s) {
	case "STATEMENT":
		return StatementSimple
	case "CALLABLE":
		return StatementCallable
	default:
		return StatementPrepared
	}
}

func parseBoolAttr(s string, def bool) bool {
	if s == "" {
		return def
	}
	return s == "true"
}

func splitAttr(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func qualify(ns, id string) string {
	if strings.Contains(id, ".") {
		return id
	}
	return ns + "." + id
}

// isStaticNode reports whether root contains no dynamic tags, letting
// the builder choose RawSqlSource over DynamicSqlSource.
func isStaticNode(n SQLNode) bool {
	switch v := n.(type) {
	case *StaticTextNode:
		return true
	case *TextSQLNode:
		return !strings.Contains(v.Text, "${")
	case *MixedSQLNode:
		for _, c := range v.Contents {
			if !isStaticNode(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (b *Builder) buildResultMap(ns string, x xmlResultMap) (*ResultMap, error) {
	id := qualify(ns, x.ID)
	typ := b.resolveType(x.Type)
	if typ == nil {
		return nil, newErr(ErrIncompleteReference, "resolve resultMap type", id, fmt.Errorf("unknown type %v", x.Type))
	}

	var mappings []*ResultMapping
	if x.Extends != "" {
		base, err := b.Configuration.ResultMap(qualify(ns, x.Extends))
		if err != nil {
			return nil, newErr(ErrIncompleteReference, "resolve resultMap extends", id, err)
		}
		mappings = append(mappings, base.ResultMappings...)
	}

	for _, f := range x.IDs {
		mappings = append(mappings, b.buildFieldMapping(f, FlagID))
	}
	for _, f := range x.Results {
		mappings = append(mappings, b.buildFieldMapping(f, FlagNone))
	}
	for _, c := range x.Constructors {
		for _, f := range c.Args {
			mappings = append(mappings, b.buildFieldMapping(f, FlagID|FlagConstructor))
		}
		for _, f := range c.Plain {
			mappings = append(mappings, b.buildFieldMapping(f, FlagConstructor))
		}
	}
	for _, a := range x.Associations {
		mappings = append(mappings, b.buildAssociationMapping(ns, a))
	}
	for _, c := range x.Collections {
		mappings = append(mappings, b.buildCollectionMapping(ns, c))
	}

	var disc *Discriminator
	if x.Discriminator != nil {
		disc = &Discriminator{
			Column:   x.Discriminator.Column,
			JavaType: b.resolveType(x.Discriminator.JavaType),
			JdbcType: x.Discriminator.JdbcType,
			Cases:    make(map[string]string),
		}
		for _, c := range x.Discriminator.Cases {
			disc.Cases[c.Value] = qualify(ns, c.ResultMap)
		}
	}

	rm := NewResultMap(id, typ, mappings, disc)
	if x.AutoMapping != "" {
		v := x.AutoMapping == "true"
		rm.AutoMapping = &v
	}
	return rm, nil
}

func (b *Builder) buildFieldMapping(f xmlResultField, flags ResultFlag) *ResultMapping {
	return &ResultMapping{
		Property:    f.Property,
		Column:      f.Column,
		JavaType:    b.resolveType(f.JavaType),
		JdbcType:    f.JdbcType,
		TypeHandler: b.resolveTypeHandler(f.TypeHandler),
		Flags:       flags,
	}
}

func (b *Builder) resolveTypeHandler(name string) TypeHandler {
	if name == "" {
		return nil
	}
	if t, ok := b.TypeRegistry["typeHandler:"+name]; ok {
		if inst, ok := reflect.New(t).Interface().(TypeHandler); ok {
			return inst
		}
	}
	return nil
}

func (b *Builder) buildAssociationMapping(ns string, a xmlAssociation) *ResultMapping {
	m := b.buildFieldMapping(a.xmlResultField, FlagNone)
	if a.ResultMap != "" {
		m.NestedResultMap = qualify(ns, a.ResultMap)
	}
	switch {
	case a.ResultSet != "":
		// Multiple-result-set join: column is the parent's key, and the
		// matching child rows arrive on a later *sql.Rows result set,
		// keyed by foreignColumn instead of a nested select.
		m.ResultSet = a.ResultSet
		m.ForeignColumn = a.ForeignColumn
	case a.Select != "":
		m.NestedSelect = qualify(ns, a.Select)
		m.ForeignColumn = a.Column
		m.Lazy = strings.ToUpper(a.FetchType) != "EAGER"
	}
	m.ColumnPrefix = a.ColumnPrefix
	m.NotNullColumns = splitAttr(a.NotNullColumn)
	return m
}

func (b *Builder) buildCollectionMapping(ns string, c xmlCollection) *ResultMapping {
	m := b.buildAssociationMapping(ns, c.xmlAssociation)
	if m.JavaType == nil {
		m.JavaType = b.resolveType(c.OfType)
	}
	m.Many = true
	return m
}

// Resolve runs the second pass: cache-ref bindings, then result maps
// (which may reference each other via <association resultMap=...>
// forward declarations), then statements (which reference result
// maps and fragments). Each stage is retried until it stops making
// progress, so declaration order within and across documents doesn't
// matter.
func (b *Builder) Resolve() error {
	if err := drainPending(&b.pendingCacheRefs); err != nil {
		return err
	}
	if err := drainPending(&b.pendingResultMaps); err != nil {
		return err
	}
	if err := drainPending(&b.pendingStatements); err != nil {
		return err
	}
	return nil
}

// drainPending repeatedly attempts every pending closure, dropping ones
// that succeed, until a full pass makes no progress; the first error
// from that final stalled pass is returned.
func drainPending(pending *[]func() error) error {
	for len(*pending) > 0 {
		var remaining []func() error
		var firstErr error
		progressed := false
		for _, fn := range *pending {
			if err := fn(); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				remaining = append(remaining, fn)
			} else {
				progressed = true
			}
		}
		if !progressed {
			return firstErr
		}
		*pending = remaining
	}
	return nil
}

// RegisterMapper binds a Go mapper interface's methods to the mapped
// statements already loaded for namespace.
func (b *Builder) RegisterMapper(namespace string, ifaceType reflect.Type) error {
	md, err := NewMapperDescriptor(b.Configuration, namespace, ifaceType)
	if err != nil {
		return err
	}
	b.Configuration.AddMapperDescriptor(md)
	return nil
}

// --- root configuration document ---

// LoadConfiguration ingests one <configuration> root document: it
// resolves <properties> (including its optional external resource,
// which XPrefs' key/value store also feeds ${...} lookups from),
// applies <settings>, registers <typeAliases>/<typeHandlers> into
// TypeRegistry, wires <objectFactory>/<objectWrapperFactory>/
// <reflectorFactory> and <plugins> from the same registry, opens the
// <environments> entry selected by its default attribute (the first
// entry when default is empty), builds the <databaseIdProvider>, and finally
// parses every <mapper> it references. It must run before any direct
// ParseMapper call against the same Builder, mirroring MyBatis's
// top-to-bottom document order.
func (b *Builder) LoadConfiguration(resource string, r io.Reader) error {
	if !b.Configuration.MarkResourceLoaded(resource) {
		return nil
	}
	var doc xmlConfiguration
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return newErr(ErrBuild, "parse configuration document", resource, err)
	}

	if doc.Properties != nil {
		if err := b.loadProperties(doc.Properties); err != nil {
			return err
		}
	}
	if doc.Settings != nil {
		b.applySettings(doc.Settings)
	}
	if doc.TypeAliases != nil {
		if err := b.applyTypeAliases(doc.TypeAliases); err != nil {
			return err
		}
	}
	if doc.TypeHandlers != nil {
		if err := b.applyTypeHandlers(doc.TypeHandlers); err != nil {
			return err
		}
	}
	if doc.ObjectFactory != nil {
		if err := b.applyObjectFactory(doc.ObjectFactory); err != nil {
			return err
		}
	}
	if doc.ObjectWrapperFactory != nil {
		if err := b.applyObjectWrapperFactory(doc.ObjectWrapperFactory); err != nil {
			return err
		}
	}
	if doc.ReflectorFactory != nil {
		if err := b.applyReflectorFactory(doc.ReflectorFactory); err != nil {
			return err
		}
	}
	if doc.Plugins != nil {
		if err := b.applyPlugins(doc.Plugins); err != nil {
			return err
		}
	}
	if doc.Environments != nil {
		if err := b.applyEnvironments(doc.Environments); err != nil {
			return err
		}
	}
	if doc.DatabaseIDProvider != nil {
		if err := b.applyDatabaseIDProvider(doc.DatabaseIDProvider); err != nil {
			return err
		}
	}
	if doc.Mappers != nil {
		if err := b.applyMappers(doc.Mappers); err != nil {
			return err
		}
	}
	return nil
}

// property resolves name against the document's own <properties>
// entries first, then falls back to the Prefs store, matching
// MyBatis's precedence of document-declared properties over the
// runtime environment.
func (b *Builder) property(name string) (string, bool) {
	if v, ok := b.properties[name]; ok {
		return v, true
	}
	if b.Prefs != nil {
		if v := b.Prefs.GetString(name); v != "" {
			return v, true
		}
	}
	return "", false
}

var propertyTokenParser = &GenericTokenParser{Open: "${", Close: "}"}

// resolveProperties expands every ${...} placeholder in s using the
// Builder's property table, leaving an unresolvable placeholder as
// literal text the way MyBatis does.
func (b *Builder) resolveProperties(s string) string {
	p := *propertyTokenParser
	p.Handler = func(name string) string {
		if v, ok := b.property(name); ok {
			return v
		}
		return "${" + name + "}"
	}
	return p.Parse(s)
}

// loadProperties merges an external resource (YAML via yaml.v3 when
// the resource name ends in .yaml/.yml, otherwise a Java-style
// key=value properties file) with the document's inline <property>
// entries, which take precedence over the resource, matching
// MyBatis's <properties> merge order.
func (b *Builder) loadProperties(x *xmlProperties) error {
	if x.Resource != "" {
		rc, err := b.ResourceLoader(x.Resource)
		if err != nil {
			return newErr(ErrBuild, "load properties resource", x.Resource, err)
		}
		defer rc.Close()
		var props map[string]string
		if strings.HasSuffix(x.Resource, ".yaml") || strings.HasSuffix(x.Resource, ".yml") {
			props, err = parseYAMLProperties(rc)
		} else {
			props, err = parseJavaProperties(rc)
		}
		if err != nil {
			return newErr(ErrBuild, "decode properties resource", x.Resource, err)
		}
		for k, v := range props {
			b.properties[k] = v
		}
	}
	for _, p := range x.Entries {
		b.properties[p.Name] = p.Value
	}
	return nil
}

// parseYAMLProperties decodes a flat top-level YAML mapping into a
// string properties table, giving deployments the option to keep
// settings in YAML alongside XML mapper documents.
func parseYAMLProperties(r io.Reader) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out, nil
}

// parseJavaProperties reads the traditional key=value line format
// (blank lines and #/! comments skipped), MyBatis's default
// <properties resource> format.
func parseJavaProperties(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		idx := strings.IndexAny(line, "=:")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		out[key] = val
	}
	return out, scanner.Err()
}

// applySettings maps each <setting name="..." value="..."> onto the
// matching Settings field; unrecognized names are logged and skipped
// rather than failing the whole document.
func (b *Builder) applySettings(x *xmlSettingsDoc) {
	s := b.Configuration.Settings
	for _, e := range x.Entries {
		name, value := e.Name, b.resolveProperties(e.Value)
		switch name {
		case "cacheEnabled":
			s.CacheEnabled = value == "true"
		case "lazyLoadingEnabled":
			s.LazyLoadingEnabled = value == "true"
		case "aggressiveLazyLoading":
			s.AggressiveLazyLoading = value == "true"
		case "multipleResultSetsEnabled":
			s.MultipleResultSetsEnabled = value == "true"
		case "useColumnLabel":
			s.UseColumnLabel = value == "true"
		case "useGeneratedKeys":
			s.UseGeneratedKeys = value == "true"
		case "autoMappingBehavior":
			s.AutoMappingBehavior = parseAutoMappingBehavior(value)
		case "autoMappingUnknownColumnBehavior":
			s.AutoMappingUnknownColumnBehavior = parseUnknownColumnBehavior(value)
		case "defaultExecutorType":
			s.DefaultExecutorType = parseExecutorType(value)
		case "defaultStatementTimeout":
			if n, err := strconv.Atoi(value); err == nil {
				s.DefaultStatementTimeout = time.Duration(n) * time.Second
			}
		case "defaultFetchSize":
			if n, err := strconv.Atoi(value); err == nil {
				s.DefaultFetchSize = n
			}
		case "safeRowBoundsEnabled":
			s.SafeRowBoundsEnabled = value == "true"
		case "safeResultHandlerEnabled":
			s.SafeResultHandlerEnabled = value == "true"
		case "mapUnderscoreToCamelCase":
			s.MapUnderscoreToCamelCase = value == "true"
		case "localCacheScope":
			if strings.EqualFold(value, "STATEMENT") {
				s.LocalCacheScope = LocalCacheStatement
			} else {
				s.LocalCacheScope = LocalCacheSession
			}
		case "jdbcTypeForNull":
			s.JdbcTypeForNull = value
		case "lazyLoadTriggerMethods":
			s.LazyLoadTriggerMethods = splitAttr(value)
		case "callSettersOnNulls":
			s.CallSettersOnNulls = value == "true"
		case "useActualParamName":
			s.UseActualParamName = value == "true"
		case "returnInstanceForEmptyRow":
			s.ReturnInstanceForEmptyRow = value == "true"
		case "shrinkWhitespacesInSql":
			s.ShrinkWhitespacesInSql = value == "true"
		default:
			XLog.Warn("sqlmap.Builder.LoadConfiguration: unknown setting %v, ignored.", name)
		}
	}
}

func parseAutoMappingBehavior(v string) AutoMappingBehavior {
	switch strings.ToUpper(v) {
	case "NONE":
		return AutoMappingNone
	case "FULL":
		return AutoMappingFull
	default:
		return AutoMappingPartial
	}
}

func parseUnknownColumnBehavior(v string) AutoMappingUnknownColumnBehavior {
	switch strings.ToUpper(v) {
	case "WARNING":
		return UnknownColumnWarning
	case "FAILING":
		return UnknownColumnFailing
	default:
		return UnknownColumnNone
	}
}

func parseExecutorType(v string) ExecutorType {
	switch strings.ToUpper(v) {
	case "REUSE":
		return ExecutorReuse
	case "BATCH":
		return ExecutorBatch
	default:
		return ExecutorSimple
	}
}

// applyTypeAliases makes alias resolve to the same reflect.Type
// already registered under type in TypeRegistry: Go has no class
// loader to resolve type from a bare name it hasn't seen before, so
// the aliased type must already be present under some key (usually
// its Go type name) before the alias is declared.
func (b *Builder) applyTypeAliases(x *xmlTypeAliases) error {
	for _, a := range x.Entries {
		t, ok := b.TypeRegistry[a.Type]
		if !ok {
			return newErr(ErrIncompleteReference, "resolve typeAlias target", a.Alias, fmt.Errorf("type %v not registered", a.Type))
		}
		b.TypeRegistry[a.Alias] = t
	}
	return nil
}

// applyTypeHandlers registers a default TypeHandler for a Go type
// system-wide (as opposed to the per-field typeHandler attribute
// resolveTypeHandler serves). handler must name a TypeHandler
// implementation already registered in TypeRegistry under
// "typeHandler:"+handler.
func (b *Builder) applyTypeHandlers(x *xmlTypeHandlersDoc) error {
	for _, e := range x.Entries {
		javaType := b.resolveType(e.JavaType)
		if javaType == nil {
			return newErr(ErrIncompleteReference, "resolve typeHandler javaType", e.JavaType, fmt.Errorf("unknown type %v", e.JavaType))
		}
		handler := b.resolveTypeHandler(e.Handler)
		if handler == nil {
			return newErr(ErrIncompleteReference, "resolve typeHandler", e.Handler, fmt.Errorf("handler %v not registered", e.Handler))
		}
		jdbcType := e.JdbcType
		b.Configuration.TypeHandlers.Register(javaType, jdbcType, handler)
	}
	return nil
}

// applyObjectFactory swaps the default reflect.New-based construction
// for a caller-registered ObjectFactory implementation, looked up in
// TypeRegistry under "objectFactory:"+type since Go cannot instantiate
// an arbitrary named type at runtime.
func (b *Builder) applyObjectFactory(x *xmlFactoryRef) error {
	t, ok := b.TypeRegistry["objectFactory:"+x.Type]
	if !ok {
		return newErr(ErrIncompleteReference, "resolve objectFactory", x.Type, fmt.Errorf("not registered"))
	}
	inst, ok := reflect.New(t).Interface().(ObjectFactory)
	if !ok {
		return newErr(ErrBuild, "objectFactory does not implement ObjectFactory", x.Type, nil)
	}
	b.Configuration.ObjectFactory = inst
	return nil
}

func (b *Builder) applyObjectWrapperFactory(x *xmlFactoryRef) error {
	t, ok := b.TypeRegistry["objectWrapperFactory:"+x.Type]
	if !ok {
		return newErr(ErrIncompleteReference, "resolve objectWrapperFactory", x.Type, fmt.Errorf("not registered"))
	}
	inst, ok := reflect.New(t).Interface().(ObjectWrapperFactory)
	if !ok {
		return newErr(ErrBuild, "objectWrapperFactory does not implement ObjectWrapperFactory", x.Type, nil)
	}
	b.Configuration.ObjectWrapperFactory = inst
	return nil
}

func (b *Builder) applyReflectorFactory(x *xmlFactoryRef) error {
	t, ok := b.TypeRegistry["reflectorFactory:"+x.Type]
	if !ok {
		return newErr(ErrIncompleteReference, "resolve reflectorFactory", x.Type, fmt.Errorf("not registered"))
	}
	inst, ok := reflect.New(t).Interface().(ReflectorFactory)
	if !ok {
		return newErr(ErrBuild, "reflectorFactory does not implement ReflectorFactory", x.Type, nil)
	}
	b.Configuration.ReflectorFactory = inst
	return nil
}

// applyPlugins resolves each <plugin interceptor="..."> against
// TypeRegistry["interceptor:"+name] and appends it to the
// configuration's interceptor chain in document order.
func (b *Builder) applyPlugins(x *xmlPlugins) error {
	for _, p := range x.Entries {
		t, ok := b.TypeRegistry["interceptor:"+p.Interceptor]
		if !ok {
			return newErr(ErrIncompleteReference, "resolve plugin interceptor", p.Interceptor, fmt.Errorf("not registered"))
		}
		inst, ok := reflect.New(t).Interface().(Interceptor)
		if !ok {
			return newErr(ErrBuild, "plugin does not implement Interceptor", p.Interceptor, nil)
		}
		b.Configuration.Interceptors.Add(inst)
	}
	return nil
}

// applyEnvironments opens the *sql.DB for the selected <environment>
// (Environments.Default, or the first entry when it is empty; there is
// no caller-side override) via the driver-specific
// Open* constructor matching its dataSource "driver" property.
func (b *Builder) applyEnvironments(x *xmlEnvironments) error {
	if len(x.Environments) == 0 {
		return nil
	}
	selected := x.Default
	var chosen *xmlEnvironment
	for i := range x.Environments {
		env := &x.Environments[i]
		if env.ID == selected || (selected == "" && chosen == nil) {
			chosen = env
			if env.ID == selected {
				break
			}
		}
	}
	if chosen == nil {
		return newErr(ErrIncompleteReference, "resolve default environment", selected, fmt.Errorf("no environment with this id"))
	}

	driver := strings.ToLower(chosen.DataSource.get("driver"))
	dsn := b.resolveProperties(chosen.DataSource.get("url"))
	if dsn == "" {
		dsn = b.resolveProperties(chosen.DataSource.get("dsn"))
	}

	var env *Environment
	var err error
	switch driver {
	case "mysql", "com.mysql.jdbc.driver":
		env, err = OpenMySQL(chosen.ID, dsn)
	case "postgres", "postgresql", "org.postgresql.driver":
		env, err = OpenPostgres(chosen.ID, dsn)
	case "sqlite", "sqlite3", "org.sqlite.jdbc":
		env, err = OpenSQLite(chosen.ID, dsn)
	default:
		return newErr(ErrBuild, "unsupported environment driver", chosen.ID, fmt.Errorf("driver %v", driver))
	}
	if err != nil {
		return err
	}
	b.Configuration.Environment = env
	return nil
}

// applyDatabaseIDProvider builds a VendorDatabaseIDProvider from the
// document's <property name="..." value="..."> pairs, matching the
// DB_VENDOR provider's alias table.
func (b *Builder) applyDatabaseIDProvider(x *xmlDatabaseIDProvider) error {
	if !strings.EqualFold(x.Type, "DB_VENDOR") {
		return newErr(ErrBuild, "unsupported databaseIdProvider type", x.Type, nil)
	}
	provider := NewVendorDatabaseIDProvider()
	for _, p := range x.Entries {
		provider.Properties[p.Name] = p.Value
	}
	b.Configuration.DatabaseIDProvider = provider
	if b.Configuration.Environment != nil {
		if id, err := provider.DatabaseID(b.Configuration.Environment); err == nil && id != "" {
			b.Configuration.Environment.DatabaseID = id
		}
	}
	return nil
}

// applyMappers opens and parses each <mapper resource="..."> in
// document order through the Builder's ResourceLoader.
func (b *Builder) applyMappers(x *xmlMappers) error {
	for _, m := range x.Entries {
		if m.Resource == "" {
			continue
		}
		rc, err := b.ResourceLoader(m.Resource)
		if err != nil {
			return newErr(ErrBuild, "load mapper resource", m.Resource, err)
		}
		err = b.ParseMapper(m.Resource, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// --- dynamic body tokenizer ---

// parseDynamicBody re-parses a statement/fragment's raw inner XML into
// a SQLNode tree, translating xml.Decoder tokens into the dynamic tag
// set since <if>/<choose>/etc bodies interleave character
// data and elements in document order.
func (b *Builder) parseDynamicBody(inner string) (SQLNode, error) {
	dec := xml.NewDecoder(strings.NewReader("<root>" + inner + "</root>"))
	nodes, err := b.parseChildren(dec, "root")
	if err != nil {
		return nil, err
	}
	return &MixedSQLNode{Contents: nodes}, nil
}

func (b *Builder) parseChildren(dec *xml.Decoder, closeAt string) ([]SQLNode, error) {
	var out []SQLNode
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text := string(t)
			if strings.TrimSpace(text) == "" {
				continue
			}
			if strings.Contains(text, "${") {
				out = append(out, &TextSQLNode{Text: text})
			} else {
				out = append(out, &StaticTextNode{Text: unescapeCDATA(text)})
			}
		case xml.StartElement:
			node, err := b.parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			if node != nil {
				out = append(out, node)
			}
		case xml.EndElement:
			if t.Name.Local == closeAt {
				return out, nil
			}
		}
	}
}

func unescapeCDATA(s string) string { return s }

func attrOf(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (b *Builder) parseElement(dec *xml.Decoder, el xml.StartElement) (SQLNode, error) {
	switch el.Name.Local {
	case "include":
		refID := attrOf(el, "refid")
		// A <include> body may carry <property> overrides; these aren't
		// re-bound per invocation here since ${...} substitution already
		// reads from the bindings map established by the enclosing
		// statement's parameter object.
		if _, err := b.parseChildren(dec, "include"); err != nil {
			return nil, err
		}
		fragment, err := b.Configuration.SQLFragment(refID)
		if err != nil {
			return &IncludeNode{Contents: &StaticTextNode{}}, nil
		}
		return &IncludeNode{Contents: fragment}, nil
	case "if":
		children, err := b.parseChildren(dec, "if")
		if err != nil {
			return nil, err
		}
		return &IfNode{Test: attrOf(el, "test"), Contents: &MixedSQLNode{Contents: children}}, nil
	case "where":
		children, err := b.parseChildren(dec, "where")
		if err != nil {
			return nil, err
		}
		return NewWhereNode(&MixedSQLNode{Contents: children}), nil
	case "set":
		children, err := b.parseChildren(dec, "set")
		if err != nil {
			return nil, err
		}
		return NewSetNode(&MixedSQLNode{Contents: children}), nil
	case "trim":
		children, err := b.parseChildren(dec, "trim")
		if err != nil {
			return nil, err
		}
		return &TrimNode{
			Contents:       &MixedSQLNode{Contents: children},
			Prefix:         attrOf(el, "prefix"),
			Suffix:         attrOf(el, "suffix"),
			PrefixesToOmit: splitAttr(attrOf(el, "prefixOverrides")),
			SuffixesToOmit: splitAttr(attrOf(el, "suffixOverrides")),
		}, nil
	case "choose":
		return b.parseChoose(dec)
	case "foreach":
		children, err := b.parseChildren(dec, "foreach")
		if err != nil {
			return nil, err
		}
		return &ForEachSQLNode{
			Collection: attrOf(el, "collection"),
			Item:       attrOf(el, "item"),
			Index:      attrOf(el, "index"),
			Open:       attrOf(el, "open"),
			Close:      attrOf(el, "close"),
			Separator:  attrOf(el, "separator"),
			Contents:   &MixedSQLNode{Contents: children},
		}, nil
	case "bind":
		if _, err := b.parseChildren(dec, "bind"); err != nil {
			return nil, err
		}
		return &BindNode{Name: attrOf(el, "name"), Value: attrOf(el, "value")}, nil
	case "selectKey":
		// <selectKey> is consumed by the enclosing statement, not part of
		// its own SQL body; skip its content without emitting a node.
		if _, err := b.parseChildren(dec, "selectKey"); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		children, err := b.parseChildren(dec, el.Name.Local)
		if err != nil {
			return nil, err
		}
		return &MixedSQLNode{Contents: children}, nil
	}
}

func (b *Builder) parseChoose(dec *xml.Decoder) (SQLNode, error) {
	choose := &ChooseNode{}
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return choose, nil
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "when":
				children, err := b.parseChildren(dec, "when")
				if err != nil {
					return nil, err
				}
				choose.Whens = append(choose.Whens, &IfNode{Test: attrOf(t, "test"), Contents: &MixedSQLNode{Contents: children}})
			case "otherwise":
				children, err := b.parseChildren(dec, "otherwise")
				if err != nil {
					return nil, err
				}
				choose.Otherwise = &MixedSQLNode{Contents: children}
			default:
				if _, err := b.parseChildren(dec, t.Name.Local); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "choose" {
				return choose, nil
			}
		case xml.CharData:
			// Whitespace between <when>/<otherwise> siblings; ignored.
		}
	}
}
