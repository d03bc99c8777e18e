// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import "time"

// AutoMappingBehavior controls how the result set handler binds columns
// that have no explicit result mapping.
type AutoMappingBehavior int

const (
	AutoMappingNone AutoMappingBehavior = iota
	AutoMappingPartial
	AutoMappingFull
)

// AutoMappingUnknownColumnBehavior controls what happens when an
// unmapped column has no writable property to bind under FULL/PARTIAL.
type AutoMappingUnknownColumnBehavior int

const (
	UnknownColumnNone AutoMappingUnknownColumnBehavior = iota
	UnknownColumnWarning
	UnknownColumnFailing
)

// LocalCacheScope controls the granularity of the first-level cache.
type LocalCacheScope int

const (
	LocalCacheSession LocalCacheScope = iota
	LocalCacheStatement
)

// ExecutorType selects which Executor variant a Session opens.
type ExecutorType int

const (
	ExecutorSimple ExecutorType = iota
	ExecutorReuse
	ExecutorBatch
)

// Settings mirrors the <settings> element of a configuration document.
// Field names track the setting names from spec.md section 6; zero
// values are replaced by NewSettings' defaults.
type Settings struct {
	CacheEnabled                     bool
	LazyLoadingEnabled               bool
	AggressiveLazyLoading            bool
	MultipleResultSetsEnabled        bool
	UseColumnLabel                   bool
	UseGeneratedKeys                 bool
	AutoMappingBehavior              AutoMappingBehavior
	AutoMappingUnknownColumnBehavior AutoMappingUnknownColumnBehavior
	DefaultExecutorType              ExecutorType
	DefaultStatementTimeout          time.Duration
	DefaultFetchSize                 int
	SafeRowBoundsEnabled             bool
	SafeResultHandlerEnabled         bool
	MapUnderscoreToCamelCase         bool
	LocalCacheScope                  LocalCacheScope
	JdbcTypeForNull                  string
	LazyLoadTriggerMethods           []string
	CallSettersOnNulls               bool
	UseActualParamName               bool
	ReturnInstanceForEmptyRow        bool
	ShrinkWhitespacesInSql           bool
}

// NewSettings returns the documented defaults from spec.md section 6.
func NewSettings() *Settings {
	return &Settings{
		CacheEnabled:                     true,
		LazyLoadingEnabled:               false,
		AggressiveLazyLoading:            false,
		MultipleResultSetsEnabled:        true,
		UseColumnLabel:                   true,
		UseGeneratedKeys:                 false,
		AutoMappingBehavior:              AutoMappingPartial,
		AutoMappingUnknownColumnBehavior: UnknownColumnNone,
		DefaultExecutorType:              ExecutorSimple,
		DefaultFetchSize:                 0,
		SafeRowBoundsEnabled:             false,
		SafeResultHandlerEnabled:         true,
		MapUnderscoreToCamelCase:         false,
		LocalCacheScope:                  LocalCacheSession,
		JdbcTypeForNull:                  "OTHER",
		LazyLoadTriggerMethods:           []string{"equals", "clone", "hashcode", "tostring"},
		CallSettersOnNulls:               false,
		UseActualParamName:               true,
		ReturnInstanceForEmptyRow:        false,
		ShrinkWhitespacesInSql:           false,
	}
}
