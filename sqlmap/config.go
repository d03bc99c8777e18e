// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/eframework-org/GO.UTIL/XCollect"
	"github.com/eframework-org/GO.UTIL/XLog"
)

// Configuration is the immutable registry produced by a Builder run: it
// owns every mapped statement, result map, cache and mapper descriptor
// the runtime knows about, addressed through a handle rather than a
// process-wide singleton so multiple configurations can coexist in one
// process.
type Configuration struct {
	Settings             *Settings
	Environment          *Environment
	DatabaseIDProvider   DatabaseIDProvider
	TypeHandlers         *TypeHandlerRegistry
	Interceptors         *InterceptorChain
	ObjectFactory        ObjectFactory
	ObjectWrapperFactory ObjectWrapperFactory
	ReflectorFactory     ReflectorFactory

	mu                sync.RWMutex
	mappedStatements  map[string]*MappedStatement
	resultMaps        map[string]*ResultMap
	caches            *XCollect.Map // namespace -> Cache, the second-level cache registry
	sqlFragments      map[string]SQLNode
	mapperDescriptors map[string]*MapperDescriptor
	loadedResources   map[string]bool
}

// NewConfiguration returns a Configuration with default settings and
// the built-in type handler set registered, ready for a Builder to
// populate.
func NewConfiguration() *Configuration {
	return &Configuration{
		Settings:             NewSettings(),
		TypeHandlers:         NewTypeHandlerRegistry(),
		Interceptors:         NewInterceptorChain(),
		ObjectFactory:        defaultObjectFactory{},
		ObjectWrapperFactory: defaultObjectWrapperFactory{},
		ReflectorFactory:     defaultReflectorFactory{},
		mappedStatements:     make(map[string]*MappedStatement),
		resultMaps:           make(map[string]*ResultMap),
		caches:               XCollect.NewMap(),
		sqlFragments:         make(map[string]SQLNode),
		mapperDescriptors:    make(map[string]*MapperDescriptor),
		loadedResources:      make(map[string]bool),
	}
}

func (c *Configuration) placeholderStyle() func(index int) string {
	style := PlaceholderQuestion
	if c.Environment != nil {
		style = c.Environment.Placeholder
	}
	if style == PlaceholderDollar {
		return func(index int) string { return "$" + strconv.Itoa(index) }
	}
	return func(int) string { return "?" }
}

// AddMappedStatement registers ms, indexed by its fully-qualified ID.
// Re-registering the same ID overwrites the previous entry and logs
// the collision rather than failing silently.
func (c *Configuration) AddMappedStatement(ms *MappedStatement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.mappedStatements[ms.ID]; exists {
		XLog.Error("sqlmap.Configuration.AddMappedStatement: %v has been overwritten.", ms.ID)
	}
	ms.Configuration = c
	c.mappedStatements[ms.ID] = ms
}

func (c *Configuration) MappedStatement(id string) (*MappedStatement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ms, ok := c.mappedStatements[id]
	if !ok {
		return nil, newErr(ErrIncompleteReference, "resolve mapped statement", id, fmt.Errorf("no statement registered with this id"))
	}
	return ms, nil
}

func (c *Configuration) HasMappedStatement(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.mappedStatements[id]
	return ok
}

func (c *Configuration) AddResultMap(rm *ResultMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultMaps[rm.ID] = rm
}

func (c *Configuration) ResultMap(id string) (*ResultMap, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rm, ok := c.resultMaps[id]
	if !ok {
		return nil, newErr(ErrIncompleteReference, "resolve result map", id, fmt.Errorf("no result map registered with this id"))
	}
	return rm, nil
}

// AddCache registers the second-level cache for namespace. A namespace
// that already holds a cache (e.g. via <cache-ref>) keeps its original
// entry, matching LoadOrStore's first-writer-wins semantics.
func (c *Configuration) AddCache(namespace string, cache Cache) {
	c.caches.LoadOrStore(namespace, cache)
}

func (c *Configuration) Cache(namespace string) (Cache, bool) {
	v, ok := c.caches.Load(namespace)
	if !ok {
		return nil, false
	}
	return v.(Cache), true
}

func (c *Configuration) AddSQLFragment(id string, node SQLNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sqlFragments[id] = node
}

func (c *Configuration) SQLFragment(id string) (SQLNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.sqlFragments[id]
	if !ok {
		return nil, newErr(ErrIncompleteReference, "resolve sql fragment", id, fmt.Errorf("no fragment registered with this id"))
	}
	return n, nil
}

func (c *Configuration) AddMapperDescriptor(md *MapperDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mapperDescriptors[md.Namespace] = md
}

func (c *Configuration) MapperDescriptor(namespace string) (*MapperDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.mapperDescriptors[namespace]
	return md, ok
}

// MarkResourceLoaded records that a resource has been parsed. It
// returns false when the resource was already recorded, which
// ParseMapper and LoadConfiguration use to skip a second parse of the
// same resource.
func (c *Configuration) MarkResourceLoaded(resource string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadedResources[resource] {
		return false
	}
	c.loadedResources[resource] = true
	return true
}

// NewExecutor builds an Executor of the configured (or overridden) type,
// wrapped in the CachingExecutor decorator when second-level caching is
// enabled.
func (c *Configuration) NewExecutor(session *Session, execType ExecutorType) Executor {
	if execType == ExecutorSimple && c.Settings.DefaultExecutorType != ExecutorSimple {
		execType = c.Settings.DefaultExecutorType
	}
	var base Executor
	switch execType {
	case ExecutorBatch:
		base = NewBatchExecutor(c, session)
	case ExecutorReuse:
		base = NewReuseExecutor(c, session)
	default:
		base = NewSimpleExecutor(c, session)
	}
	if c.Settings.CacheEnabled {
		return NewCachingExecutor(base)
	}
	return base
}
