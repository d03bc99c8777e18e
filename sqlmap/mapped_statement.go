// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"reflect"
	"time"
)

// CommandKind classifies the SQL verb a mapped statement performs.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandSelect
	CommandInsert
	CommandUpdate
	CommandDelete
)

func (c CommandKind) String() string {
	switch c {
	case CommandSelect:
		return "SELECT"
	case CommandInsert:
		return "INSERT"
	case CommandUpdate:
		return "UPDATE"
	case CommandDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// StatementKind selects the StatementHandler variant used to run a
// MappedStatement.
type StatementKind int

const (
	StatementPrepared StatementKind = iota
	StatementSimple
	StatementCallable
)

// ParameterMode selects IN/OUT/INOUT binding for a ParameterMapping.
type ParameterMode int

const (
	ModeIn ParameterMode = iota
	ModeOut
	ModeInOut
)

// ParameterMapping is one ordered element produced by parsing #{...}
// tokens in a SQL source.
type ParameterMapping struct {
	Property     string
	JavaType     reflect.Type
	JdbcType     string
	TypeHandler  TypeHandler
	Mode         ParameterMode
	NumericScale int
	ResultMapID  string
}

// ResultFlag marks a ResultMapping's special roles.
type ResultFlag int

const (
	FlagNone ResultFlag = 0
	FlagID   ResultFlag = 1 << iota
	FlagConstructor
)

// ResultMapping is one projection rule inside a ResultMap.
type ResultMapping struct {
	Property        string
	Column          string
	JavaType        reflect.Type
	JdbcType        string
	TypeHandler     TypeHandler
	Flags           ResultFlag
	NestedSelect    string
	NestedResultMap string
	Many            bool // true for <collection>, false for <association>
	ForeignColumn   string
	NotNullColumns  []string
	ColumnPrefix    string
	Lazy            bool
	ResultSet       string // non-empty selects a named entry in the statement's <resultSets>, joined by Column<->ForeignColumn
}

func (m *ResultMapping) IsID() bool          { return m.Flags&FlagID != 0 }
func (m *ResultMapping) IsConstructor() bool { return m.Flags&FlagConstructor != 0 }

// Discriminator selects a nested ResultMap based on a column's value
//.
type Discriminator struct {
	Column      string
	JavaType    reflect.Type
	JdbcType    string
	TypeHandler TypeHandler
	Cases       map[string]string // stringified column value -> nested ResultMap id
}

// ResultMap is the immutable tree describing how to project rows into
// a target type.
type ResultMap struct {
	ID                         string
	Type                       reflect.Type
	Discriminator              *Discriminator
	ResultMappings             []*ResultMapping
	IDResultMappings           []*ResultMapping
	ConstructorResultMappings  []*ResultMapping
	PropertyResultMappings     []*ResultMapping // neither ID nor CONSTRUCTOR
	HasNestedResultMaps        bool
	AutoMapping                *bool // nil = inherit Configuration default
	mappedColumns              map[string]bool
	mappedProperties           map[string]bool
}

// NewResultMap partitions mappings into the ID/constructor/property
// buckets and pre-indexes mapped columns/properties for auto-mapping.
func NewResultMap(id string, typ reflect.Type, mappings []*ResultMapping, disc *Discriminator) *ResultMap {
	rm := &ResultMap{
		ID:               id,
		Type:             typ,
		ResultMappings:   mappings,
		Discriminator:    disc,
		mappedColumns:    make(map[string]bool),
		mappedProperties: make(map[string]bool),
	}
	for _, m := range mappings {
		if m.IsConstructor() {
			rm.ConstructorResultMappings = append(rm.ConstructorResultMappings, m)
		} else {
			if m.IsID() {
				rm.IDResultMappings = append(rm.IDResultMappings, m)
			}
			rm.PropertyResultMappings = append(rm.PropertyResultMappings, m)
		}
		if m.Column != "" {
			rm.mappedColumns[normalizeColumn(m.Column)] = true
		}
		if m.Property != "" {
			rm.mappedProperties[m.Property] = true
		}
		if m.NestedResultMap != "" {
			rm.HasNestedResultMaps = true
		}
	}
	if len(rm.IDResultMappings) == 0 {
		rm.IDResultMappings = rm.ConstructorResultMappings
	}
	return rm
}

func (rm *ResultMap) IsColumnMapped(column string) bool {
	return rm.mappedColumns[normalizeColumn(column)]
}

func (rm *ResultMap) IsPropertyMapped(property string) bool {
	return rm.mappedProperties[property]
}

func normalizeColumn(c string) string {
	out := make([]byte, len(c))
	for i := 0; i < len(c); i++ {
		ch := c[i]
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		out[i] = ch
	}
	return string(out)
}

// KeyGeneratorSpec configures how a MappedStatement obtains generated
// keys.
type KeyGeneratorSpec struct {
	Generator     KeyGenerator
	KeyProperties []string
	KeyColumns    []string
}

// MappedStatement is the compiled, immutable definition of one SQL
// operation, addressable by "{namespace}.{name}".
type MappedStatement struct {
	ID              string
	Namespace       string
	Command         CommandKind
	Kind            StatementKind
	SQLSource       SQLSource
	ParameterType   reflect.Type
	ResultMaps      []*ResultMap
	ResultSets      []string
	FetchSize       int
	Timeout         time.Duration
	FlushCache      bool
	UseCache        bool
	KeyGen          *KeyGeneratorSpec
	DatabaseID      string
	Cache           Cache
	Configuration   *Configuration
}

// PrimaryResultMap returns the first declared result map, if any.
func (ms *MappedStatement) PrimaryResultMap() *ResultMap {
	if len(ms.ResultMaps) == 0 {
		return nil
	}
	return ms.ResultMaps[0]
}
