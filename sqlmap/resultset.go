// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql"
	"reflect"
	"strings"
)

// ResultSetHandler maps *sql.Rows into Go values according to a
// MappedStatement's ResultMap(s), applying auto-mapping for unmapped
// columns and following nested-select associations.
type ResultSetHandler struct {
	Configuration *Configuration
	Statement     *MappedStatement
	Bound         *BoundSQL

	// resultSetLinks indexes the parent instances produced by the
	// primary result set by the value of each ResultSet-joined
	// mapping's Column, so later result sets can be spliced into the
	// right parent once they arrive. Populated only while the primary
	// set is being scanned; nil (a no-op) once <resultSets> isn't
	// declared on the statement.
	resultSetLinks map[string]*resultSetLink
}

// resultSetLink accumulates, for one named <resultSets> entry, the
// association/collection mapping it feeds and the parent object(s)
// waiting for it, keyed by the stringified value of mapping.Column on
// the parent row.
type resultSetLink struct {
	mapping  *ResultMapping
	byColumn map[string][]reflect.Value
}

func NewResultSetHandler(cfg *Configuration, ms *MappedStatement, bound *BoundSQL) *ResultSetHandler {
	return &ResultSetHandler{Configuration: cfg, Statement: ms, Bound: bound}
}

// HandleResultSets consumes every result set rows produces. A plain
// query produces exactly one; a statement declaring <resultSets>
// produces one per name, each after the first joined back onto the
// primary set's parent rows by foreignColumn <-> column instead of
// being flattened into the returned slice. resultHandler, when
// non-nil, is called with each top-level object once every result set
// has been mapped, and HandleResultSets then returns a nil slice.
// rowBounds, when non-nil, skips its Offset worth of
// raw rows before projection begins and caps the number of top-level
// objects returned at its Limit; a nil rowBounds behaves as the
// unbounded default.
func (h *ResultSetHandler) HandleResultSets(rows *sql.Rows, rowBounds *RowBounds, resultHandler func(any)) ([]any, error) {
	joining := len(h.Statement.ResultSets) > 1
	resultMap := h.Statement.PrimaryResultMap()
	if joining {
		h.resultSetLinks = make(map[string]*resultSetLink)
	}
	out, err := h.handleOneResultSet(rows, resultMap, rowBounds)
	if err != nil {
		return nil, err
	}

	// A statement with named <resultSets> joins every later set back
	// onto the parents recorded above instead of flattening it; a plain
	// callable statement with several unrelated result sets (no join
	// names declared) keeps mapping each one through the next declared
	// ResultMap and appending it to out, as it always has.
	for setIndex := 1; rows.NextResultSet(); setIndex++ {
		if joining {
			var name string
			if setIndex < len(h.Statement.ResultSets) {
				name = h.Statement.ResultSets[setIndex]
			}
			if err := h.joinResultSet(rows, name); err != nil {
				return nil, err
			}
			continue
		}
		nextMap := resultMap
		if setIndex < len(h.Statement.ResultMaps) {
			nextMap = h.Statement.ResultMaps[setIndex]
		}
		mapped, err := h.handleOneResultSet(rows, nextMap, rowBounds)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if resultHandler != nil {
		for _, v := range out {
			resultHandler(v)
		}
		return nil, nil
	}
	return out, nil
}

// joinResultSet reads one subsequent result set and splices each row,
// mapped through the linked mapping's NestedResultMap (or left as a
// column map when none is declared), into every parent object recorded
// under the row's foreignColumn value.
func (h *ResultSetHandler) joinResultSet(rows *sql.Rows, name string) error {
	columns, err := rows.Columns()
	if err != nil {
		return newErr(ErrExecution, "read columns", h.Statement.ID, err)
	}
	link, ok := h.resultSetLinks[name]
	if !ok {
		// no association/collection declared this name; drain silently.
		for rows.Next() {
		}
		return nil
	}
	var nested *ResultMap
	if link.mapping.NestedResultMap != "" {
		nested, err = h.Configuration.ResultMap(link.mapping.NestedResultMap)
		if err != nil {
			return err
		}
	}
	nestedObjects := make(map[string]reflect.Value)
	appended := make(map[string]bool)
	for rows.Next() {
		row, err := h.scanRow(rows, columns)
		if err != nil {
			return err
		}
		child, _, _, err := h.applyResultMap(nested, row, "", nestedObjects, appended)
		if err != nil {
			return err
		}
		key := stringifyDiscriminatorValue(row[link.mapping.ForeignColumn])
		for _, parent := range link.byColumn[key] {
			if err := h.assignChildToParent(link.mapping, parent, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordResultSetLink indexes a fresh top-level parent instance under
// its ResultSet-joined mapping's Column value, so joinResultSet can
// find it once the matching named result set arrives.
func (h *ResultSetHandler) recordResultSetLink(mapping *ResultMapping, row map[string]any, columnPrefix string, instance reflect.Value) {
	if h.resultSetLinks == nil {
		return
	}
	link, ok := h.resultSetLinks[mapping.ResultSet]
	if !ok {
		link = &resultSetLink{mapping: mapping, byColumn: make(map[string][]reflect.Value)}
		h.resultSetLinks[mapping.ResultSet] = link
	}
	key := stringifyDiscriminatorValue(row[prefixed(columnPrefix, mapping.Column)])
	link.byColumn[key] = append(link.byColumn[key], instance)
}

// assignChildToParent sets (association) or appends (collection) child
// onto parent.Property, mirroring applyJoinedMapping's single-row-join
// assignment but for a parent object completed on a prior result set.
func (h *ResultSetHandler) assignChildToParent(mapping *ResultMapping, parent reflect.Value, child any) error {
	elem := parent
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	r := h.Configuration.ReflectorFactory.Reflector(elem.Type())
	if !mapping.Many {
		return r.SetValue(parent, mapping.Property, reflect.ValueOf(child))
	}
	current, err := r.GetValue(parent, mapping.Property)
	if err != nil || !current.IsValid() {
		propType, ok := r.TypeOf(mapping.Property)
		if !ok {
			return newErr(ErrReflection, "resolve collection property type", h.Statement.ID, err)
		}
		current = reflect.Zero(propType)
	}
	if current.Kind() != reflect.Slice {
		return newErr(ErrReflection, "collection property is not a slice: "+mapping.Property, h.Statement.ID, nil)
	}
	grown := reflect.Append(current, coerce(reflect.ValueOf(child), current.Type().Elem()))
	return r.SetValue(parent, mapping.Property, grown)
}

func (h *ResultSetHandler) handleOneResultSet(rows *sql.Rows, resultMap *ResultMap, rowBounds *RowBounds) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, newErr(ErrExecution, "read columns", h.Statement.ID, err)
	}
	offset, limit := effectiveBounds(rowBounds)
	skipRows(rows, offset)
	// nestedObjects and appendedChildren live for the whole result set:
	// nestedObjects deduplicates a ResultMap+identity across rows so a
	// joined parent isn't reconstructed per child row, and
	// appendedChildren stops the same child from being appended twice
	// into a collection when a further join level repeats a row.
	nestedObjects := make(map[string]reflect.Value)
	appendedChildren := make(map[string]bool)
	var out []any
	for len(out) < limit && rows.Next() {
		row, err := h.scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		value, _, isNew, err := h.applyResultMap(resultMap, row, "", nestedObjects, appendedChildren)
		if err != nil {
			return nil, err
		}
		if isNew {
			out = append(out, value)
		}
	}
	if len(out) == 0 && h.Configuration.Settings.ReturnInstanceForEmptyRow && resultMap != nil {
		instance, err := h.Configuration.ObjectFactory.Create(resultMap.Type)
		if err != nil {
			return nil, newErr(ErrReflection, "create empty-row instance", h.Statement.ID, err)
		}
		return []any{instance.Interface()}, nil
	}
	return out, nil
}

// scanRow reads the current row into a column-name-keyed map, shared
// by handleOneResultSet's eager materialization and Cursor's
// row-at-a-time projection.
func (h *ResultSetHandler) scanRow(rows *sql.Rows, columns []string) (map[string]any, error) {
	scanTargets := make([]any, len(columns))
	raw := make([]any, len(columns))
	for i := range scanTargets {
		scanTargets[i] = &raw[i]
	}
	if err := rows.Scan(scanTargets...); err != nil {
		return nil, newErr(ErrExecution, "scan row", h.Statement.ID, err)
	}
	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = raw[i]
	}
	return row, nil
}

// applyResultMap maps one row into resultMap.Type (or a map[string]any
// if resultMap is nil), honoring discriminators, explicit mappings,
// column-prefixed nested associations/collections and auto-mapping for
// the rest. nestedObjects groups rows sharing the same ResultMap
// identity (its ID mappings, or every mapped column when none are
// declared) into a single instance, the way a SQL join repeats a
// parent's columns once per child row; the returned isNew flag tells
// the caller whether this row produced a fresh top-level object or
// only contributed a child into an already-seen one.
func (h *ResultSetHandler) applyResultMap(resultMap *ResultMap, row map[string]any, columnPrefix string, nestedObjects map[string]reflect.Value, appendedChildren map[string]bool) (any, string, bool, error) {
	if resultMap == nil {
		return row, "", true, nil
	}
	resultMap = h.resolveDiscriminated(resultMap, row, columnPrefix)
	r := h.Configuration.ReflectorFactory.Reflector(resultMap.Type)
	identity := h.rowIdentity(resultMap, row, columnPrefix)
	key := resultMap.ID + "\x00" + identity

	instance, found := nestedObjects[key]
	if identity == "" {
		found = false
	}
	isNew := !found
	if isNew {
		var err error
		instance, err = h.Configuration.ObjectFactory.Create(resultMap.Type)
		if err != nil {
			return nil, key, false, newErr(ErrReflection, "create result instance", h.Statement.ID, err)
		}
		nestedObjects[key] = instance
		target := instance
		if target.Kind() == reflect.Ptr {
			target = target.Elem()
		}

		applied := make(map[string]bool)
		for _, mapping := range resultMap.PropertyResultMappings {
			if mapping.NestedResultMap != "" || mapping.NestedSelect != "" || mapping.ResultSet != "" {
				continue // joined/lazy/multi-result-set associations are handled below, for both new and reused rows
			}
			col := prefixed(columnPrefix, mapping.Column)
			if err := h.applyScalarMapping(r, target, mapping, row, col); err != nil {
				return nil, key, false, err
			}
			if mapping.Column != "" {
				applied[normalizeColumn(col)] = true
			}
		}
		for _, mapping := range resultMap.ConstructorResultMappings {
			col := prefixed(columnPrefix, mapping.Column)
			if err := h.applyScalarMapping(r, target, mapping, row, col); err != nil {
				return nil, key, false, err
			}
			applied[normalizeColumn(col)] = true
		}

		if h.autoMapAllowed(resultMap) {
			for col, val := range row {
				if !strings.HasPrefix(normalizeColumn(col), normalizeColumn(columnPrefix)) {
					continue
				}
				bare := col[len(columnPrefix):]
				if applied[normalizeColumn(col)] {
					continue
				}
				prop, propOK := r.ResolveProperty(bare)
				if !propOK {
					if h.Configuration.Settings.AutoMappingUnknownColumnBehavior == UnknownColumnFailing {
						return nil, key, false, newErr(ErrReflection, "auto-map column", h.Statement.ID, errUnknownColumn(bare))
					}
					continue
				}
				if err := r.SetValue(target.Addr(), prop, reflect.ValueOf(val)); err != nil {
					return nil, key, false, newErr(ErrReflection, "auto-map column", h.Statement.ID, err)
				}
			}
		}

		for _, mapping := range resultMap.PropertyResultMappings {
			if mapping.ResultSet != "" {
				h.recordResultSetLink(mapping, row, columnPrefix, instance)
			}
		}
	}

	target := instance
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	for _, mapping := range resultMap.PropertyResultMappings {
		switch {
		case mapping.NestedResultMap != "" && mapping.ResultSet == "":
			if err := h.applyJoinedMapping(r, target, mapping, row, columnPrefix, key, nestedObjects, appendedChildren); err != nil {
				return nil, key, false, err
			}
		case mapping.NestedSelect != "" && isNew:
			if err := h.applyLazyOrEager(r, target, mapping, row); err != nil {
				return nil, key, false, err
			}
		}
	}
	return instance.Interface(), key, isNew, nil
}

// rowIdentity computes the composite key MyBatis calls a result map's
// "id" columns: the declared ID mappings' values at this column
// prefix, or every mapped column's value when no ID mapping is
// declared, so rows that agree on all of those values are grouped. A
// map with no column mapping at all yields an empty identity, which
// applyResultMap treats as a new object for every row.
func (h *ResultSetHandler) rowIdentity(rm *ResultMap, row map[string]any, prefix string) string {
	idMappings := rm.IDResultMappings
	if len(idMappings) == 0 {
		idMappings = append(append([]*ResultMapping{}, rm.PropertyResultMappings...), rm.ConstructorResultMappings...)
	}
	var sb strings.Builder
	for _, m := range idMappings {
		if m.Column == "" || m.NestedResultMap != "" {
			continue
		}
		col := prefixed(prefix, m.Column)
		sb.WriteString(col)
		sb.WriteByte('=')
		sb.WriteString(stringifyDiscriminatorValue(row[col]))
		sb.WriteByte(';')
	}
	return sb.String()
}

func (h *ResultSetHandler) autoMapAllowed(rm *ResultMap) bool {
	behavior := h.Configuration.Settings.AutoMappingBehavior
	if rm.AutoMapping != nil {
		return *rm.AutoMapping
	}
	if behavior == AutoMappingFull {
		return true
	}
	if behavior == AutoMappingPartial {
		return !rm.HasNestedResultMaps
	}
	return false
}

func (h *ResultSetHandler) resolveDiscriminated(resultMap *ResultMap, row map[string]any, columnPrefix string) *ResultMap {
	seen := map[string]bool{resultMap.ID: true}
	for resultMap.Discriminator != nil {
		col := prefixed(columnPrefix, resultMap.Discriminator.Column)
		v, ok := row[col]
		if !ok {
			break
		}
		key := stringifyDiscriminatorValue(v)
		nextID, ok := resultMap.Discriminator.Cases[key]
		if !ok || seen[nextID] {
			break
		}
		next, err := h.Configuration.ResultMap(nextID)
		if err != nil {
			break
		}
		resultMap = next
		seen[nextID] = true
	}
	return resultMap
}

func stringifyDiscriminatorValue(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return toStringOrEmpty(v)
}

func toStringOrEmpty(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := toStringValue(v).(string); ok {
		return s
	}
	return ""
}

// applyScalarMapping binds one plain column mapping (neither a nested
// result map nor a nested select) onto target.
func (h *ResultSetHandler) applyScalarMapping(r *Reflector, target reflect.Value, mapping *ResultMapping, row map[string]any, column string) error {
	raw, ok := row[column]
	if !ok {
		return nil
	}
	value, err := h.convertColumn(mapping, raw)
	if err != nil {
		return err
	}
	if value == nil {
		if !h.Configuration.Settings.CallSettersOnNulls {
			return nil
		}
		propType, ok := r.TypeOf(mapping.Property)
		if !ok {
			return nil
		}
		return r.SetValue(target.Addr(), mapping.Property, reflect.Zero(propType))
	}
	return r.SetValue(target.Addr(), mapping.Property, reflect.ValueOf(value))
}

// applyJoinedMapping resolves one <association>/<collection
// resultMap="..."> mapping for the current row. For an association it
// (re)sets the property to the (possibly cache-reused) nested object;
// for a collection it appends the nested object into the property's
// slice, skipping a child already appended for this parent so a
// duplicated join row doesn't produce duplicate elements.
func (h *ResultSetHandler) applyJoinedMapping(r *Reflector, target reflect.Value, mapping *ResultMapping, row map[string]any, columnPrefix, parentKey string, nestedObjects map[string]reflect.Value, appendedChildren map[string]bool) error {
	nested, err := h.Configuration.ResultMap(mapping.NestedResultMap)
	if err != nil {
		return err
	}
	prefix := mapping.ColumnPrefix
	if prefix == "" {
		prefix = prefixed(columnPrefix, mapping.Column)
	}
	if !h.rowHasNotNullColumns(row, mapping.NotNullColumns, prefix) {
		return nil
	}
	childValue, childKey, _, err := h.applyResultMap(nested, row, prefix, nestedObjects, appendedChildren)
	if err != nil {
		return err
	}
	if !mapping.Many {
		return r.SetValue(target.Addr(), mapping.Property, reflect.ValueOf(childValue))
	}
	dedupeKey := parentKey + "\x00" + mapping.Property + "\x00" + childKey
	if appendedChildren[dedupeKey] {
		return nil
	}
	appendedChildren[dedupeKey] = true
	current, err := r.GetValue(target.Addr(), mapping.Property)
	if err != nil || !current.IsValid() {
		propType, ok := r.TypeOf(mapping.Property)
		if !ok {
			return newErr(ErrReflection, "resolve collection property type", h.Statement.ID, err)
		}
		current = reflect.Zero(propType)
	}
	if current.Kind() != reflect.Slice {
		return newErr(ErrReflection, "collection property is not a slice: "+mapping.Property, h.Statement.ID, nil)
	}
	elem := coerce(reflect.ValueOf(childValue), current.Type().Elem())
	grown := reflect.Append(current, elem)
	return r.SetValue(target.Addr(), mapping.Property, grown)
}

func (h *ResultSetHandler) rowHasNotNullColumns(row map[string]any, cols []string, prefix string) bool {
	if len(cols) == 0 {
		return true
	}
	for _, c := range cols {
		if row[prefixed(prefix, c)] != nil {
			return true
		}
	}
	return false
}

// applyLazyOrEager wires a nested <association>/<collection
// select="..."> mapping. When lazy loading is enabled the property is
// set to a LazyLoader placeholder that runs the nested select on its
// first Get call;
// otherwise the nested select runs immediately.
func (h *ResultSetHandler) applyLazyOrEager(r *Reflector, target reflect.Value, mapping *ResultMapping, row map[string]any) error {
	foreignValue := row[mapping.ForeignColumn]
	loader := func() (any, error) {
		nestedMS, err := h.Configuration.MappedStatement(mapping.NestedSelect)
		if err != nil {
			return nil, err
		}
		session, ok := CurrentSession()
		if !ok {
			return nil, newErr(ErrExecution, "resolve nested select session", mapping.NestedSelect, errNoActiveSession)
		}
		return session.Executor.Query(nestedMS, foreignValue, nil, nil)
	}
	if mapping.Lazy && h.Configuration.Settings.LazyLoadingEnabled {
		return r.SetValue(target.Addr(), mapping.Property, reflect.ValueOf(NewLazyLoader(loader)))
	}
	raw, err := loader()
	if err != nil {
		return err
	}
	values, ok := raw.([]any)
	if !ok {
		return r.SetValue(target.Addr(), mapping.Property, reflect.ValueOf(raw))
	}
	if len(values) == 1 {
		return r.SetValue(target.Addr(), mapping.Property, reflect.ValueOf(values[0]))
	}
	return r.SetValue(target.Addr(), mapping.Property, reflect.ValueOf(values))
}

func (h *ResultSetHandler) convertColumn(mapping *ResultMapping, raw any) (any, error) {
	handler := mapping.TypeHandler
	if handler == nil && mapping.JavaType != nil {
		var err error
		handler, err = h.Configuration.TypeHandlers.Lookup(mapping.JavaType, mapping.JdbcType)
		if err != nil {
			handler = nil
		}
	}
	if handler == nil {
		return raw, nil
	}
	return handler.FromDatabase(raw, mapping.JavaType)
}

func prefixed(prefix, column string) string {
	if prefix == "" {
		return column
	}
	return prefix + column
}

type unknownColumnError string

func (e unknownColumnError) Error() string { return "unmapped column: " + string(e) }
func errUnknownColumn(col string) error    { return unknownColumnError(col) }

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errNoActiveSession = sentinelErr("no session bound to the current goroutine")
