// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"reflect"
	"strings"

	"github.com/eframework-org/GO.UTIL/XCollect"
	"github.com/eframework-org/GO.UTIL/XLog"
)

// ObjectFactory constructs the target value a ResultSetHandler binds
// columns onto, mirroring the customization hook a <objectFactory>
// element selects in a configuration document.
type ObjectFactory interface {
	Create(t reflect.Type) (reflect.Value, error)
}

// ObjectWrapperFactory lets a configuration document substitute its own
// property accessor for a specific object rather than the reflector's
// default field/getter-setter resolution. The default factory never
// claims an object, leaving every type to the Reflector.
type ObjectWrapperFactory interface {
	HasWrapperFor(object any) bool
}

// ReflectorFactory resolves the Reflector used to bind a struct type,
// letting a <reflectorFactory> override how properties are discovered.
type ReflectorFactory interface {
	Reflector(t reflect.Type) *Reflector
}

type defaultObjectFactory struct{}

func (defaultObjectFactory) Create(t reflect.Type) (reflect.Value, error) {
	return NewInstance(t), nil
}

type defaultObjectWrapperFactory struct{}

func (defaultObjectWrapperFactory) HasWrapperFor(object any) bool { return false }

type defaultReflectorFactory struct{}

func (defaultReflectorFactory) Reflector(t reflect.Type) *Reflector { return GetReflector(t) }

// propMeta describes one readable/writable property discovered on a
// target struct type: either a plain exported field, or a Go accessor
// method pair (GetX / SetX) layered on top of it, mirroring the
// getMethods/setMethods tables of the original design.
type propMeta struct {
	name       string
	typ        reflect.Type
	fieldIndex []int
	getter     *reflect.Method
	setter     *reflect.Method
	ambiguous  bool
}

// Reflector holds the memoized accessor tables for one struct type.
// Instances are built once and are safe for concurrent read-only use.
type Reflector struct {
	typ           reflect.Type
	defaultCtor   bool
	getProps      map[string]*propMeta // canonical (case-preserved) name -> meta
	setProps      map[string]*propMeta
	lowerToCanon  map[string]string // lower-cased name -> canonical name
	readableNames []string
	writableNames []string
}

var reflectorCache = XCollect.NewMap() // reflect.Type -> *Reflector

// GetReflector returns the memoized Reflector for t (t must be a struct
// or a pointer to struct); the first caller for a given type pays the
// cost of building the tables, later callers reuse the cached result.
func GetReflector(t reflect.Type) *Reflector {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if v, ok := reflectorCache.Load(t); ok {
		return v.(*Reflector)
	}
	r := buildReflector(t)
	actual, _ := reflectorCache.LoadOrStore(t, r)
	return actual.(*Reflector)
}

func buildReflector(t reflect.Type) *Reflector {
	r := &Reflector{
		typ:          t,
		getProps:     make(map[string]*propMeta),
		setProps:     make(map[string]*propMeta),
		lowerToCanon: make(map[string]string),
	}

	if t.Kind() != reflect.Struct {
		return r
	}

	// A struct type has an implicit default constructor in Go
	// (reflect.New always succeeds); this only records whether the
	// caller-visible NewXxx-style factory would be redundant.
	r.defaultCtor = true

	addField(r, t, nil)
	addMethods(r, reflect.PtrTo(t))

	for name := range r.getProps {
		r.readableNames = append(r.readableNames, name)
	}
	for name := range r.setProps {
		r.writableNames = append(r.writableNames, name)
	}
	return r
}

// addField walks exported struct fields (including anonymous/embedded
// fields, depth-first) and registers each as a readable+writable
// property keyed case-insensitively, mirroring the source's field
// fall-back when no accessor method exists.
func addField(r *Reflector, t reflect.Type, prefix []int) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue // unexported, non-embeddable
		}
		idx := append(append([]int{}, prefix...), i)

		if f.Anonymous {
			ft := f.Type
			for ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				addField(r, ft, idx)
				continue
			}
		}

		if f.PkgPath != "" {
			continue
		}
		if tag := f.Tag.Get("sqlmap"); tag == "-" {
			continue
		}

		name := fieldPropertyName(f)
		registerProp(r, name, f.Type, idx, nil, nil)
	}
}

// fieldPropertyName resolves the property name for a struct field: an
// explicit `sqlmap:"name"` tag wins, otherwise the field name is used.
func fieldPropertyName(f reflect.StructField) string {
	if tag := f.Tag.Get("sqlmap"); tag != "" && tag != "-" {
		if comma := strings.IndexByte(tag, ','); comma >= 0 {
			tag = tag[:comma]
		}
		if tag != "" {
			return tag
		}
	}
	return f.Name
}

// addMethods discovers GetX/IsX/SetX accessor-style methods on the
// pointer-to-struct type and layers them over the field table. Covariant
// getter conflicts are resolved by preferring the most specific return
// type; on a tie the IsX getter wins, and return types neither of which
// is assignable to the other are flagged ambiguous per spec 4.1.
func addMethods(r *Reflector, ptrType reflect.Type) {
	for i := 0; i < ptrType.NumMethod(); i++ {
		m := ptrType.Method(i)
		switch {
		case strings.HasPrefix(m.Name, "Get") && len(m.Name) > 3 && m.Type.NumOut() == 1 && m.Type.NumIn() == 1:
			registerGetter(r, m.Name[3:], m)
		case strings.HasPrefix(m.Name, "Is") && len(m.Name) > 2 && m.Type.NumOut() == 1 && m.Type.NumIn() == 1 && m.Type.Out(0).Kind() == reflect.Bool:
			registerGetter(r, m.Name[2:], m)
		case strings.HasPrefix(m.Name, "Set") && len(m.Name) > 3 && m.Type.NumOut() == 0 && m.Type.NumIn() == 2:
			registerSetter(r, m.Name[3:], m)
		}
	}
}

func registerGetter(r *Reflector, name string, m reflect.Method) {
	lower := strings.ToLower(name)
	canon, exists := r.lowerToCanon[lower]
	if !exists {
		canon = name
		r.lowerToCanon[lower] = canon
	}
	existing := r.getProps[canon]
	if existing == nil {
		r.getProps[canon] = &propMeta{name: canon, typ: m.Type.Out(0), getter: &m}
		return
	}
	if existing.getter == nil {
		existing.getter = &m
		existing.typ = m.Type.Out(0)
		return
	}
	// Prefer the "is"-prefixed boolean getter on a tie, else the
	// covariant-return winner (the one assignable from the other).
	if existing.typ == m.Type.Out(0) {
		if strings.HasPrefix(m.Name, "Is") {
			existing.getter = &m
		}
		return
	}
	if m.Type.Out(0).AssignableTo(existing.typ) {
		existing.typ = m.Type.Out(0)
		existing.getter = &m
	} else if !existing.typ.AssignableTo(m.Type.Out(0)) {
		existing.ambiguous = true
		XLog.Error("sqlmap.Reflector(%v): ambiguous getter for property %v.", r.typ, canon)
	}
}

func registerSetter(r *Reflector, name string, m reflect.Method) {
	lower := strings.ToLower(name)
	canon, exists := r.lowerToCanon[lower]
	if !exists {
		canon = name
		r.lowerToCanon[lower] = canon
	}
	r.setProps[canon] = &propMeta{name: canon, typ: m.Type.In(1), setter: &m}
}

func registerProp(r *Reflector, name string, typ reflect.Type, fieldIndex []int, getter, setter *reflect.Method) {
	lower := strings.ToLower(name)
	if canon, ok := r.lowerToCanon[lower]; ok {
		name = canon
	} else {
		r.lowerToCanon[lower] = name
	}
	pm := &propMeta{name: name, typ: typ, fieldIndex: fieldIndex, getter: getter, setter: setter}
	if _, ok := r.getProps[name]; !ok {
		r.getProps[name] = pm
	}
	if _, ok := r.setProps[name]; !ok {
		r.setProps[name] = pm
	}
}

// HasSetter reports whether name (case-insensitive) can be written.
func (r *Reflector) HasSetter(name string) bool {
	_, ok := r.resolve(r.setProps, name)
	return ok
}

// HasGetter reports whether name (case-insensitive) can be read.
func (r *Reflector) HasGetter(name string) bool {
	_, ok := r.resolve(r.getProps, name)
	return ok
}

// TypeOf returns the declared type of a writable property, if any.
func (r *Reflector) TypeOf(name string) (reflect.Type, bool) {
	if pm, ok := r.resolve(r.setProps, name); ok {
		return pm.typ, true
	}
	if pm, ok := r.resolve(r.getProps, name); ok {
		return pm.typ, true
	}
	return nil, false
}

// ResolveProperty returns the canonical property name matching a
// (possibly differently-cased) name, consulting both the writable and
// readable tables. Used by auto-mapping to translate a result set
// column name into a struct property.
func (r *Reflector) ResolveProperty(name string) (string, bool) {
	if _, ok := r.setProps[name]; ok {
		return name, true
	}
	if _, ok := r.getProps[name]; ok {
		return name, true
	}
	if canon, ok := r.lowerToCanon[strings.ToLower(name)]; ok {
		return canon, true
	}
	return "", false
}

func (r *Reflector) resolve(table map[string]*propMeta, name string) (*propMeta, bool) {
	if pm, ok := table[name]; ok {
		return pm, true
	}
	if canon, ok := r.lowerToCanon[strings.ToLower(name)]; ok {
		if pm, ok := table[canon]; ok {
			return pm, true
		}
	}
	return nil, false
}

// SetValue writes value onto property name of target (a pointer to the
// reflector's struct type), preferring a Set accessor over the field.
func (r *Reflector) SetValue(target reflect.Value, name string, value reflect.Value) error {
	pm, ok := r.resolve(r.setProps, name)
	if !ok {
		return newErr(ErrReflection, "SetValue", "", nil)
	}
	if pm.ambiguous {
		return newErr(ErrReflection, "ambiguous setter for "+name, "", nil)
	}
	if pm.setter != nil {
		fn := target.MethodByName(pm.setter.Name)
		if !fn.IsValid() {
			return newErr(ErrReflection, "missing setter "+pm.setter.Name, "", nil)
		}
		in := coerce(value, pm.typ)
		fn.Call([]reflect.Value{in})
		return nil
	}
	elem := target
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	field := elem.FieldByIndex(pm.fieldIndex)
	if !field.CanSet() {
		return newErr(ErrReflection, "unsettable field "+name, "", nil)
	}
	field.Set(coerce(value, field.Type()))
	return nil
}

// GetValue reads property name off target.
func (r *Reflector) GetValue(target reflect.Value, name string) (reflect.Value, error) {
	pm, ok := r.resolve(r.getProps, name)
	if !ok {
		return reflect.Value{}, newErr(ErrReflection, "GetValue", "", nil)
	}
	if pm.ambiguous {
		return reflect.Value{}, newErr(ErrReflection, "ambiguous getter for "+name, "", nil)
	}
	if pm.getter != nil {
		recv := target
		if recv.Kind() != reflect.Ptr {
			addr := reflect.New(recv.Type())
			addr.Elem().Set(recv)
			recv = addr
		}
		fn := recv.MethodByName(pm.getter.Name)
		if !fn.IsValid() {
			return reflect.Value{}, newErr(ErrReflection, "missing getter "+pm.getter.Name, "", nil)
		}
		out := fn.Call(nil)
		return out[0], nil
	}
	elem := target
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	return elem.FieldByIndex(pm.fieldIndex), nil
}

// coerce adapts a value to an assignable form for dst, handling the
// common numeric-widening and pointer-wrapping cases produced by type
// handlers reading from a database driver.
func coerce(v reflect.Value, dst reflect.Type) reflect.Value {
	if !v.IsValid() {
		return reflect.Zero(dst)
	}
	if v.Type().AssignableTo(dst) {
		return v
	}
	if v.Type().ConvertibleTo(dst) {
		return v.Convert(dst)
	}
	if dst.Kind() == reflect.Ptr && v.Type().AssignableTo(dst.Elem()) {
		p := reflect.New(dst.Elem())
		p.Elem().Set(v)
		return p
	}
	if v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Type().AssignableTo(dst) {
		return v.Elem()
	}
	return reflect.Zero(dst)
}

// ResolveElementType reduces a container type (slice, array, pointer)
// to its concrete element type. This is the Go-idiomatic stand-in for
// the source's generic-type substitution over parameterized types: Go
// generic instantiations already carry concrete reflect.Types, so all
// that remains is unwrapping the container shape.
func ResolveElementType(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t
		}
	}
}

// NewInstance allocates a new addressable value of t (or its element
// type if t is a pointer), returning a pointer to it.
func NewInstance(t reflect.Type) reflect.Value {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t)
}
