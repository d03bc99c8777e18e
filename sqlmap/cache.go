// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"bytes"
	"container/list"
	"encoding/gob"
	"reflect"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/eframework-org/GO.UTIL/XLog"
)

// cloneViaGob deep-copies value through a gob round-trip, used by
// SerializedCache to isolate cached entries from caller mutation.
func cloneViaGob(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return nil, err
	}
	out := reflect.New(reflect.TypeOf(value))
	if err := gob.NewDecoder(&buf).DecodeValue(out); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}

// Cache is the second-level (shared, cross-session) cache contract that
// every decorator and the base MapCache implement.
type Cache interface {
	ID() string
	PutObject(key *CacheKey, value any)
	GetObject(key *CacheKey) (any, bool)
	RemoveObject(key *CacheKey) (any, bool)
	Clear()
	Size() int
}

// MapCache is the innermost, undecorated cache: a plain map guarded by
// a mutex.
type MapCache struct {
	id    string
	mu    sync.Mutex
	store map[string]any
}

func NewMapCache(id string) *MapCache {
	return &MapCache{id: id, store: make(map[string]any)}
}

func (c *MapCache) ID() string { return c.id }

func (c *MapCache) PutObject(key *CacheKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key.String()] = value
}

func (c *MapCache) GetObject(key *CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key.String()]
	return v, ok
}

func (c *MapCache) RemoveObject(key *CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key.String()]
	delete(c.store, key.String())
	return v, ok
}

func (c *MapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]any)
}

func (c *MapCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// FIFOCache evicts the oldest-put key once Size exceeds its bound. The
// tracked key list is mirrored on every RemoveObject so an explicit
// removal cannot desync the eviction queue from the delegate's actual
// contents.
type FIFOCache struct {
	delegate Cache
	mu       sync.Mutex
	keys     *list.List
	index    map[string]*list.Element
	size     int
}

func NewFIFOCache(delegate Cache, size int) *FIFOCache {
	if size <= 0 {
		size = 1024
	}
	return &FIFOCache{delegate: delegate, keys: list.New(), index: make(map[string]*list.Element), size: size}
}

func (c *FIFOCache) ID() string { return c.delegate.ID() }

func (c *FIFOCache) PutObject(key *CacheKey, value any) {
	c.mu.Lock()
	k := key.String()
	if _, exists := c.index[k]; !exists {
		el := c.keys.PushBack(k)
		c.index[k] = el
		c.cycleLocked()
	}
	c.mu.Unlock()
	c.delegate.PutObject(key, value)
}

func (c *FIFOCache) cycleLocked() {
	for c.keys.Len() > c.size {
		oldest := c.keys.Front()
		if oldest == nil {
			return
		}
		c.keys.Remove(oldest)
		k := oldest.Value.(string)
		delete(c.index, k)
		c.delegate.RemoveObject(&CacheKey{parts: []string{k}})
	}
}

func (c *FIFOCache) GetObject(key *CacheKey) (any, bool) { return c.delegate.GetObject(key) }

func (c *FIFOCache) RemoveObject(key *CacheKey) (any, bool) {
	c.mu.Lock()
	k := key.String()
	if el, ok := c.index[k]; ok {
		c.keys.Remove(el)
		delete(c.index, k)
	}
	c.mu.Unlock()
	return c.delegate.RemoveObject(key)
}

func (c *FIFOCache) Clear() {
	c.mu.Lock()
	c.keys.Init()
	c.index = make(map[string]*list.Element)
	c.mu.Unlock()
	c.delegate.Clear()
}

func (c *FIFOCache) Size() int { return c.delegate.Size() }

// LRUCache decorates delegate with an eageraccess-ordered eviction
// policy backed by hashicorp/golang-lru; eviction notifications remove
// the corresponding entry from delegate so the two stay consistent.
type LRUCache struct {
	delegate Cache
	tracker  *lru.Cache
}

func NewLRUCache(delegate Cache, size int) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	c := &LRUCache{delegate: delegate}
	tracker, _ := lru.NewWithEvict(size, func(key, _ any) {
		c.delegate.RemoveObject(&CacheKey{parts: []string{key.(string)}})
	})
	c.tracker = tracker
	return c
}

func (c *LRUCache) ID() string { return c.delegate.ID() }

func (c *LRUCache) PutObject(key *CacheKey, value any) {
	c.tracker.Add(key.String(), struct{}{})
	c.delegate.PutObject(key, value)
}

func (c *LRUCache) GetObject(key *CacheKey) (any, bool) {
	c.tracker.Get(key.String())
	return c.delegate.GetObject(key)
}

func (c *LRUCache) RemoveObject(key *CacheKey) (any, bool) {
	c.tracker.Remove(key.String())
	return c.delegate.RemoveObject(key)
}

func (c *LRUCache) Clear() {
	c.tracker.Purge()
	c.delegate.Clear()
}

func (c *LRUCache) Size() int { return c.delegate.Size() }

// SoftCache approximates MyBatis's SoftReference-backed decorator: Go
// has no reclaimable-under-pressure reference type comparable to a
// JVM soft reference, so this keeps a bounded strong-reference
// retention queue (default 256 most-recently-put entries) and lets
// everything older fall out of both the queue and the delegate. This
// is a deliberate best-effort emulation, not a GC-integrated cache.
type SoftCache struct {
	delegate Cache
	mu       sync.Mutex
	queue    *list.List
	retain   int
}

func NewSoftCache(delegate Cache) *SoftCache {
	return &SoftCache{delegate: delegate, queue: list.New(), retain: 256}
}

func (c *SoftCache) ID() string { return c.delegate.ID() }

func (c *SoftCache) PutObject(key *CacheKey, value any) {
	c.delegate.PutObject(key, value)
	c.mu.Lock()
	c.queue.PushBack(key.String())
	for c.queue.Len() > c.retain {
		front := c.queue.Remove(c.queue.Front()).(string)
		c.delegate.RemoveObject(&CacheKey{parts: []string{front}})
	}
	c.mu.Unlock()
}

func (c *SoftCache) GetObject(key *CacheKey) (any, bool) { return c.delegate.GetObject(key) }

func (c *SoftCache) RemoveObject(key *CacheKey) (any, bool) { return c.delegate.RemoveObject(key) }

func (c *SoftCache) Clear() {
	c.mu.Lock()
	c.queue.Init()
	c.mu.Unlock()
	c.delegate.Clear()
}

func (c *SoftCache) Size() int { return c.delegate.Size() }

// WeakCache is the same emulation as SoftCache with a smaller retention
// window, mirroring the two distinct decorator classes.
type WeakCache struct{ *SoftCache }

func NewWeakCache(delegate Cache) *WeakCache {
	c := NewSoftCache(delegate)
	c.retain = 32
	return &WeakCache{c}
}

// ScheduledCache clears delegate wholesale once ClearInterval has
// elapsed since the last clear, checked lazily on each access rather
// than via a background timer.
type ScheduledCache struct {
	delegate      Cache
	mu            sync.Mutex
	clearInterval time.Duration
	lastClear     time.Time
}

func NewScheduledCache(delegate Cache, interval time.Duration) *ScheduledCache {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ScheduledCache{delegate: delegate, clearInterval: interval, lastClear: time.Now()}
}

func (c *ScheduledCache) ID() string { return c.delegate.ID() }

func (c *ScheduledCache) clearIfDueLocked() {
	if time.Since(c.lastClear) >= c.clearInterval {
		c.delegate.Clear()
		c.lastClear = time.Now()
	}
}

func (c *ScheduledCache) PutObject(key *CacheKey, value any) {
	c.mu.Lock()
	c.clearIfDueLocked()
	c.mu.Unlock()
	c.delegate.PutObject(key, value)
}

func (c *ScheduledCache) GetObject(key *CacheKey) (any, bool) {
	c.mu.Lock()
	c.clearIfDueLocked()
	c.mu.Unlock()
	return c.delegate.GetObject(key)
}

func (c *ScheduledCache) RemoveObject(key *CacheKey) (any, bool) { return c.delegate.RemoveObject(key) }
func (c *ScheduledCache) Clear()                                 { c.delegate.Clear() }
func (c *ScheduledCache) Size() int                              { return c.delegate.Size() }

// BlockingCache serializes access per key: a GetObject miss acquires a
// per-key lock that is only released by the matching PutObject or
// RemoveObject, so concurrent misses for the same key don't all fall
// through to the database at once.
type BlockingCache struct {
	delegate Cache
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	timeout  time.Duration
}

func NewBlockingCache(delegate Cache) *BlockingCache {
	return &BlockingCache{delegate: delegate, locks: make(map[string]*sync.Mutex)}
}

func (c *BlockingCache) ID() string { return c.delegate.ID() }

func (c *BlockingCache) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

func (c *BlockingCache) GetObject(key *CacheKey) (any, bool) {
	l := c.lockFor(key.String())
	l.Lock()
	v, ok := c.delegate.GetObject(key)
	if ok {
		l.Unlock()
	}
	// Held open on a miss; released by the following PutObject/RemoveObject.
	return v, ok
}

func (c *BlockingCache) PutObject(key *CacheKey, value any) {
	c.delegate.PutObject(key, value)
	c.releaseFor(key.String())
}

func (c *BlockingCache) RemoveObject(key *CacheKey) (any, bool) {
	v, ok := c.delegate.RemoveObject(key)
	c.releaseFor(key.String())
	return v, ok
}

func (c *BlockingCache) releaseFor(key string) {
	c.mu.Lock()
	l, ok := c.locks[key]
	c.mu.Unlock()
	if ok {
		l.TryLock() // no-op if already unlocked by a completed Get
		l.Unlock()
	}
}

func (c *BlockingCache) Clear() { c.delegate.Clear() }
func (c *BlockingCache) Size() int { return c.delegate.Size() }

// SerializedCache round-trips values through the configured codec so
// mutations to the object returned from GetObject never corrupt what's
// stored; falls back to storing the value as-is when it isn't
// serializable (e.g. contains channels or funcs).
type SerializedCache struct {
	delegate Cache
	codec    func(any) (any, error)
}

func NewSerializedCache(delegate Cache) *SerializedCache {
	return &SerializedCache{delegate: delegate, codec: cloneViaGob}
}

func (c *SerializedCache) ID() string { return c.delegate.ID() }

func (c *SerializedCache) PutObject(key *CacheKey, value any) {
	if cloned, err := c.codec(value); err == nil {
		c.delegate.PutObject(key, cloned)
	} else {
		c.delegate.PutObject(key, value)
	}
}

func (c *SerializedCache) GetObject(key *CacheKey) (any, bool) {
	v, ok := c.delegate.GetObject(key)
	if !ok {
		return v, ok
	}
	if cloned, err := c.codec(v); err == nil {
		return cloned, true
	}
	return v, ok
}

func (c *SerializedCache) RemoveObject(key *CacheKey) (any, bool) { return c.delegate.RemoveObject(key) }
func (c *SerializedCache) Clear()                                 { c.delegate.Clear() }
func (c *SerializedCache) Size() int                              { return c.delegate.Size() }

// SynchronizedCache serializes every operation behind a single mutex,
// for delegates (like MapCache without its own locking assumptions)
// that need coarse-grained external synchronization.
type SynchronizedCache struct {
	delegate Cache
	mu       sync.Mutex
}

func NewSynchronizedCache(delegate Cache) *SynchronizedCache { return &SynchronizedCache{delegate: delegate} }

func (c *SynchronizedCache) ID() string { return c.delegate.ID() }

func (c *SynchronizedCache) PutObject(key *CacheKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.PutObject(key, value)
}

func (c *SynchronizedCache) GetObject(key *CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.GetObject(key)
}

func (c *SynchronizedCache) RemoveObject(key *CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.RemoveObject(key)
}

func (c *SynchronizedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
}

func (c *SynchronizedCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Size()
}

// LoggingCache reports hit ratio via XLog.Notice once every 1000
// GetObject requests, rather than logging every call.
type LoggingCache struct {
	delegate Cache
	mu       sync.Mutex
	requests int64
	hits     int64
}

func NewLoggingCache(delegate Cache) *LoggingCache { return &LoggingCache{delegate: delegate} }

func (c *LoggingCache) ID() string { return c.delegate.ID() }

func (c *LoggingCache) PutObject(key *CacheKey, value any) { c.delegate.PutObject(key, value) }

func (c *LoggingCache) GetObject(key *CacheKey) (any, bool) {
	v, ok := c.delegate.GetObject(key)
	c.mu.Lock()
	c.requests++
	if ok {
		c.hits++
	}
	requests := c.requests
	hits := c.hits
	c.mu.Unlock()
	if requests%1000 == 0 {
		XLog.Notice("sqlmap.Cache(%v): hit ratio %.4f (%v/%v).", c.delegate.ID(), float64(hits)/float64(requests), hits, requests)
	}
	return v, ok
}

func (c *LoggingCache) RemoveObject(key *CacheKey) (any, bool) { return c.delegate.RemoveObject(key) }
func (c *LoggingCache) Clear()                                 { c.delegate.Clear() }
func (c *LoggingCache) Size() int                              { return c.delegate.Size() }
