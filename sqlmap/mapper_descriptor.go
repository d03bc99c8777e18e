// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"fmt"
	"reflect"
)

// MethodDescriptor binds one mapper interface method to the mapped
// statement it invokes, resolved once at registration time so calling
// a mapper method is a table lookup rather than a runtime proxy
// dispatch.
type MethodDescriptor struct {
	Name          string
	StatementID   string
	Command       CommandKind
	ParameterType reflect.Type
	ReturnType    reflect.Type
	ReturnsSlice  bool
	ReturnsError  bool
}

// MapperDescriptor is the ingested shape of one mapper interface: its
// namespace and the methods that were matched to mapped statements
// sharing that namespace.
type MapperDescriptor struct {
	Namespace  string
	IfaceType  reflect.Type
	Methods    map[string]*MethodDescriptor
}

// NewMapperDescriptor inspects ifaceType's method set and matches every
// method whose name equals a mapped statement id under namespace,
// classifying parameter/return shapes via reflection.
func NewMapperDescriptor(cfg *Configuration, namespace string, ifaceType reflect.Type) (*MapperDescriptor, error) {
	if ifaceType.Kind() != reflect.Interface {
		return nil, fmt.Errorf("sqlmap: %v is not an interface type", ifaceType)
	}
	md := &MapperDescriptor{Namespace: namespace, IfaceType: ifaceType, Methods: make(map[string]*MethodDescriptor)}
	for i := 0; i < ifaceType.NumMethod(); i++ {
		m := ifaceType.Method(i)
		stmtID := namespace + "." + m.Name
		ms, err := cfg.MappedStatement(stmtID)
		if err != nil {
			return nil, newErr(ErrBinding, "bind mapper method", stmtID, fmt.Errorf("no mapped statement for method %v.%v", ifaceType, m.Name))
		}
		desc := &MethodDescriptor{Name: m.Name, StatementID: stmtID, Command: ms.Command}
		mt := m.Type
		if mt.NumIn() > 0 {
			desc.ParameterType = mt.In(0)
		}
		numOut := mt.NumOut()
		if numOut > 0 && mt.Out(numOut-1).Implements(errorInterfaceType) {
			desc.ReturnsError = true
			numOut--
		}
		if numOut > 0 {
			rt := mt.Out(0)
			if rt.Kind() == reflect.Slice {
				desc.ReturnsSlice = true
				desc.ReturnType = rt.Elem()
			} else {
				desc.ReturnType = rt
			}
		}
		md.Methods[m.Name] = desc
	}
	return md, nil
}

var errorInterfaceType = reflect.TypeOf((*error)(nil)).Elem()

// Invoke is the table-lookup dispatch spec §9's "Proxy-based method
// binding" design note calls for: resolve methodName to its
// MethodDescriptor, canonicalize args into a parameter object, and run
// the resolved MappedStatement against session. Callers that generate
// their own interface implementation (e.g. via go:generate) call this
// from each method body instead of a runtime dynamic-proxy.
func (md *MapperDescriptor) Invoke(session *Session, methodName string, args ...any) (any, error) {
	desc, ok := md.Methods[methodName]
	if !ok {
		return nil, newErr(ErrBinding, "resolve mapper method", methodName, fmt.Errorf("no method %v on mapper %v", methodName, md.IfaceType))
	}
	ms, err := session.Configuration.MappedStatement(desc.StatementID)
	if err != nil {
		return nil, err
	}
	rowBounds, args := extractRowBounds(args)
	var resultHandler func(any)
	for i, a := range args {
		if rh, ok := a.(func(any)); ok {
			resultHandler = rh
			args = append(append([]any{}, args[:i]...), args[i+1:]...)
			break
		}
	}
	param := canonicalizeParams(args)
	if desc.Command != CommandSelect {
		result, err := session.Executor.Update(ms, param)
		if err != nil {
			return nil, err
		}
		affected, _ := result.RowsAffected()
		return affected, nil
	}
	rows, err := session.Executor.Query(ms, param, rowBounds, resultHandler)
	if err != nil {
		return nil, err
	}
	if desc.ReturnsSlice {
		return rows, nil
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// extractRowBounds pulls a *RowBounds argument out of args, per spec
// §4.7's parameter-name resolver skipping "reserved parameter types
// (row bounds, result handler)" when building the canonicalized
// parameter object — a *RowBounds is threaded to Executor.Query
// directly rather than becoming a param1..paramN entry.
func extractRowBounds(args []any) (*RowBounds, []any) {
	for i, a := range args {
		if rb, ok := a.(*RowBounds); ok {
			rest := make([]any, 0, len(args)-1)
			rest = append(rest, args[:i]...)
			rest = append(rest, args[i+1:]...)
			return rb, rest
		}
	}
	return nil, args
}

// canonicalizeParams implements spec §4.7's parameter-name resolver: no
// arguments yields a nil parameter object; exactly one passes through
// unwrapped (NewDynamicContext exposes it under "collection"/"list"/
// "array" when it is one); more than one builds the ordered
// param1..paramN map spec §4.7 falls back to for unannotated
// parameters. Go's reflect.Method carries no argument-name metadata
// (unlike a Java method compiled with -parameters), so the declared-
// parameter-name tier of that resolver has no Go equivalent and is not
// attempted here — every multi-argument call uses the synthetic
// aliases unconditionally.
func canonicalizeParams(args []any) any {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return args[0]
	default:
		m := make(map[string]any, len(args))
		for i, a := range args {
			m[fmt.Sprintf("param%d", i+1)] = a
		}
		return m
	}
}
