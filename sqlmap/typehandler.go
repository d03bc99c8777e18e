// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// TypeHandler converts a Go value to a driver-bindable value on the way
// into the database, and a column value back to a Go value on the way
// out. Implementations should be stateless and safe for concurrent use.
type TypeHandler interface {
	// ToDatabase converts a Go value into a value the sql driver accepts.
	ToDatabase(value any) (driver.Value, error)
	// FromDatabase converts a raw driver value into target's Go type.
	FromDatabase(value any, target reflect.Type) (any, error)
}

// Enum is implemented by user enum types that carry a canonical string
// representation, letting the registry synthesize a default handler
// for any enum lacking an explicitly bound one.
type Enum interface {
	EnumString() string
}

// jdbcAny is the wildcard jdbc type used for "javaType -> null" default
// lookups.
const jdbcAny = ""

// TypeHandlerRegistry implements the (javaType, jdbcType) lookup chain:
// an exact (javaType, jdbcType) match wins, then a javaType-only
// default, then a jdbcType-only default.
type TypeHandlerRegistry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]map[string]TypeHandler
	byJdbc  map[string]TypeHandler
	unknown TypeHandler
}

// NewTypeHandlerRegistry returns a registry pre-populated with handlers
// for the standard scalar/temporal/binary types.
func NewTypeHandlerRegistry() *TypeHandlerRegistry {
	r := &TypeHandlerRegistry{
		byType: make(map[reflect.Type]map[string]TypeHandler),
		byJdbc: make(map[string]TypeHandler),
	}
	r.unknown = &unknownTypeHandler{registry: r}
	r.registerBuiltins()
	return r
}

// Register binds handler for (javaType, jdbcType). jdbcType may be
// jdbcAny ("") to register a default for the Go type.
func (r *TypeHandlerRegistry) Register(javaType reflect.Type, jdbcType string, handler TypeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byType[javaType]
	if !ok {
		m = make(map[string]TypeHandler)
		r.byType[javaType] = m
	}
	m[jdbcType] = handler
	if jdbcType != jdbcAny {
		r.byJdbc[jdbcType] = handler
	}
}

// RegisterJdbc binds handler purely by jdbc type, used for reading OUT
// parameters or columns whose Go type isn't known ahead of time.
func (r *TypeHandlerRegistry) RegisterJdbc(jdbcType string, handler TypeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byJdbc[jdbcType] = handler
}

// Lookup resolves a handler for (javaType, jdbcType) by trying, in
// order: an exact pair match, the (javaType, nil) default, the
// pointer/element supertype chain, enum synthesis, the single-handler
// shortcut, then a jdbcType-only handler, before failing. A nil
// javaType tries only the jdbcType-only handler and otherwise returns
// the unknown-type handler.
func (r *TypeHandlerRegistry) Lookup(javaType reflect.Type, jdbcType string) (TypeHandler, error) {
	if javaType == nil {
		if h, ok := r.lookupJdbcOnly(jdbcType); ok {
			return h, nil
		}
		return r.unknown, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if h := r.lookupExactLocked(javaType, jdbcType); h != nil {
		return h, nil
	}

	t := javaType
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && implementsEnum(javaType) {
		return &enumTypeHandler{}, nil
	}

	if m, ok := r.byType[javaType]; ok && len(m) == 1 {
		for _, h := range m {
			return h, nil
		}
	}

	if h, ok := r.byJdbc[jdbcType]; ok {
		return h, nil
	}

	return nil, newErr(ErrTypeConversion, fmt.Sprintf("no handler for (%v, %q)", javaType, jdbcType), "", nil)
}

func (r *TypeHandlerRegistry) lookupExactLocked(javaType reflect.Type, jdbcType string) TypeHandler {
	if m, ok := r.byType[javaType]; ok {
		if h, ok := m[jdbcType]; ok {
			return h
		}
		if h, ok := m[jdbcAny]; ok {
			return h
		}
	}
	// Walk the supertype chain: for pointers, the element type; for
	// interfaces implemented by concrete types, checked by the caller
	// prior to calling Lookup (Go's static typing makes an interface
	// walk of the JDBC kind largely moot).
	if javaType.Kind() == reflect.Ptr {
		return r.lookupExactLocked(javaType.Elem(), jdbcType)
	}
	return nil
}

func (r *TypeHandlerRegistry) lookupJdbcOnly(jdbcType string) (TypeHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byJdbc[jdbcType]
	return h, ok
}

func implementsEnum(t reflect.Type) bool {
	return t.Implements(reflect.TypeOf((*Enum)(nil)).Elem()) ||
		reflect.PtrTo(t).Implements(reflect.TypeOf((*Enum)(nil)).Elem())
}

func (r *TypeHandlerRegistry) registerBuiltins() {
	r.Register(reflect.TypeOf(""), jdbcAny, stringHandler{})
	r.Register(reflect.TypeOf(int(0)), jdbcAny, intHandler{})
	r.Register(reflect.TypeOf(int32(0)), jdbcAny, int32Handler{})
	r.Register(reflect.TypeOf(int64(0)), jdbcAny, int64Handler{})
	r.Register(reflect.TypeOf(float32(0)), jdbcAny, float32Handler{})
	r.Register(reflect.TypeOf(float64(0)), jdbcAny, float64Handler{})
	r.Register(reflect.TypeOf(true), jdbcAny, boolHandler{})
	r.Register(reflect.TypeOf(time.Time{}), jdbcAny, timeHandler{})
	r.Register(reflect.TypeOf([]byte(nil)), jdbcAny, bytesHandler{})

	r.RegisterJdbc("VARCHAR", stringHandler{})
	r.RegisterJdbc("CHAR", stringHandler{})
	r.RegisterJdbc("INTEGER", intHandler{})
	r.RegisterJdbc("BIGINT", int64Handler{})
	r.RegisterJdbc("DOUBLE", float64Handler{})
	r.RegisterJdbc("FLOAT", float32Handler{})
	r.RegisterJdbc("BOOLEAN", boolHandler{})
	r.RegisterJdbc("TIMESTAMP", timeHandler{})
	r.RegisterJdbc("BLOB", bytesHandler{})
	r.RegisterJdbc("VARBINARY", bytesHandler{})
}

// --- built-in scalar handlers -------------------------------------------------

type stringHandler struct{}

func (stringHandler) ToDatabase(v any) (driver.Value, error) { return toStringValue(v), nil }
func (stringHandler) FromDatabase(v any, _ reflect.Type) (any, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return fmt.Sprintf("%v", t), nil
	}
}

func toStringValue(v any) driver.Value {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

type intHandler struct{}

func (intHandler) ToDatabase(v any) (driver.Value, error) { return toInt64Value(v) }
func (intHandler) FromDatabase(v any, _ reflect.Type) (any, error) {
	n, err := toInt64Value(v)
	if err != nil {
		return nil, err
	}
	return int(n.(int64)), nil
}

type int32Handler struct{}

func (int32Handler) ToDatabase(v any) (driver.Value, error) { return toInt64Value(v) }
func (int32Handler) FromDatabase(v any, _ reflect.Type) (any, error) {
	n, err := toInt64Value(v)
	if err != nil {
		return nil, err
	}
	return int32(n.(int64)), nil
}

type int64Handler struct{}

func (int64Handler) ToDatabase(v any) (driver.Value, error) { return toInt64Value(v) }
func (int64Handler) FromDatabase(v any, _ reflect.Type) (any, error) {
	return toInt64Value(v)
}

func toInt64Value(v any) (driver.Value, error) {
	switch t := v.(type) {
	case nil:
		return int64(0), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case []byte:
		var n int64
		if _, err := fmt.Sscanf(string(t), "%d", &n); err != nil {
			return nil, newErr(ErrTypeConversion, "int conversion", "", err)
		}
		return n, nil
	case string:
		var n int64
		if _, err := fmt.Sscanf(t, "%d", &n); err != nil {
			return nil, newErr(ErrTypeConversion, "int conversion", "", err)
		}
		return n, nil
	default:
		return nil, newErr(ErrTypeConversion, fmt.Sprintf("cannot convert %T to int64", v), "", nil)
	}
}

type float32Handler struct{}

func (float32Handler) ToDatabase(v any) (driver.Value, error) { return toFloat64Value(v) }
func (float32Handler) FromDatabase(v any, _ reflect.Type) (any, error) {
	f, err := toFloat64Value(v)
	if err != nil {
		return nil, err
	}
	return float32(f.(float64)), nil
}

type float64Handler struct{}

func (float64Handler) ToDatabase(v any) (driver.Value, error) { return toFloat64Value(v) }
func (float64Handler) FromDatabase(v any, _ reflect.Type) (any, error) {
	return toFloat64Value(v)
}

func toFloat64Value(v any) (driver.Value, error) {
	switch t := v.(type) {
	case nil:
		return float64(0), nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case []byte:
		var f float64
		if _, err := fmt.Sscanf(string(t), "%g", &f); err != nil {
			return nil, newErr(ErrTypeConversion, "float conversion", "", err)
		}
		return f, nil
	default:
		return nil, newErr(ErrTypeConversion, fmt.Sprintf("cannot convert %T to float64", v), "", nil)
	}
}

type boolHandler struct{}

func (boolHandler) ToDatabase(v any) (driver.Value, error) {
	b, _ := v.(bool)
	return b, nil
}
func (boolHandler) FromDatabase(v any, _ reflect.Type) (any, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case []byte:
		return len(t) > 0 && t[0] != 0, nil
	default:
		return false, nil
	}
}

type timeHandler struct{}

func (timeHandler) ToDatabase(v any) (driver.Value, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, nil
	}
	return t, nil
}
func (timeHandler) FromDatabase(v any, _ reflect.Type) (any, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case []byte:
		return time.Parse("2006-01-02 15:04:05", string(t))
	case string:
		return time.Parse("2006-01-02 15:04:05", t)
	default:
		return nil, newErr(ErrTypeConversion, fmt.Sprintf("cannot convert %T to time.Time", v), "", nil)
	}
}

type bytesHandler struct{}

func (bytesHandler) ToDatabase(v any) (driver.Value, error) {
	b, _ := v.([]byte)
	return b, nil
}
func (bytesHandler) FromDatabase(v any, _ reflect.Type) (any, error) {
	if v == nil {
		return []byte(nil), nil
	}
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return nil, newErr(ErrTypeConversion, fmt.Sprintf("cannot convert %T to []byte", v), "", nil)
}

// enumTypeHandler is synthesized on demand for enum types lacking a
// bound handler; it round-trips through EnumString.
type enumTypeHandler struct{}

func (enumTypeHandler) ToDatabase(v any) (driver.Value, error) {
	if e, ok := v.(Enum); ok {
		return e.EnumString(), nil
	}
	return nil, newErr(ErrTypeConversion, "value does not implement Enum", "", nil)
}
func (enumTypeHandler) FromDatabase(v any, target reflect.Type) (any, error) {
	return v, nil
}

// unknownTypeHandler resolves the effective handler at runtime from the
// actual parameter type or column metadata.
type unknownTypeHandler struct{ registry *TypeHandlerRegistry }

func (u *unknownTypeHandler) ToDatabase(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	h, err := u.registry.Lookup(reflect.TypeOf(v), jdbcAny)
	if err != nil {
		return fmt.Sprintf("%v", v), nil
	}
	return h.ToDatabase(v)
}
func (u *unknownTypeHandler) FromDatabase(v any, target reflect.Type) (any, error) {
	if target != nil {
		if h, err := u.registry.Lookup(target, jdbcAny); err == nil {
			return h.FromDatabase(v, target)
		}
	}
	return v, nil
}
