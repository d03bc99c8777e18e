// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import "sync"

// nullEntry marks a key staged for removal at commit time, distinct
// from a staged put whose value happens to be nil.
type nullEntry struct{}

// TransactionalCache buffers a session's second-level cache writes so
// they only become visible to other sessions once the session commits,
// and are discarded entirely on rollback. GetObject reads
// through to delegate for keys that haven't been staged; entries staged
// via PutObject are held in-memory and are not readable back through
// GetObject until commit; the delegate is only written at Commit.
type TransactionalCache struct {
	delegate         Cache
	mu               sync.Mutex
	pendingPuts      map[string]any
	pendingKeys      map[string]*CacheKey
	pendingRemovals  map[string]bool
	clearOnCommit    bool
}

func NewTransactionalCache(delegate Cache) *TransactionalCache {
	return &TransactionalCache{
		delegate:        delegate,
		pendingPuts:     make(map[string]any),
		pendingKeys:     make(map[string]*CacheKey),
		pendingRemovals: make(map[string]bool),
	}
}

func (c *TransactionalCache) ID() string { return c.delegate.ID() }

func (c *TransactionalCache) GetObject(key *CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	if c.pendingRemovals[k] {
		return nil, false
	}
	if _, staged := c.pendingPuts[k]; staged {
		// A statement re-reading its own uncommitted write within the
		// same session is not part of this cache's contract; read
		// through to what other sessions currently see instead.
		return c.delegate.GetObject(key)
	}
	return c.delegate.GetObject(key)
}

func (c *TransactionalCache) PutObject(key *CacheKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	c.pendingPuts[k] = value
	c.pendingKeys[k] = key
	delete(c.pendingRemovals, k)
}

// RemoveObject only stages the removal; it always reports nothing was
// removed because the value, if any, is still visible to other
// sessions until this transaction commits. Callers that need to know
// whether a value exists should call GetObject first.
func (c *TransactionalCache) RemoveObject(key *CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	c.pendingRemovals[k] = true
	c.pendingKeys[k] = key
	delete(c.pendingPuts, k)
	return nil, false
}

// Clear discards all pending writes/removals immediately and marks the
// underlying cache for a wholesale clear at the next Commit, matching
// MyBatis's <cache flushCache="true"> behavior of a statement clearing
// the whole namespace cache rather than one key.
func (c *TransactionalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingPuts = make(map[string]any)
	c.pendingRemovals = make(map[string]bool)
	c.pendingKeys = make(map[string]*CacheKey)
	c.clearOnCommit = true
}

func (c *TransactionalCache) Size() int { return c.delegate.Size() }

// Commit flushes staged puts and removals to delegate, then resets the
// stage buffer. It is not part of the Cache interface: callers reach it
// through the concrete type, as only a Session's commit path should
// invoke it.
func (c *TransactionalCache) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearOnCommit {
		c.delegate.Clear()
	}
	for k, key := range c.pendingKeys {
		if c.pendingRemovals[k] {
			c.delegate.RemoveObject(key)
		} else if v, ok := c.pendingPuts[k]; ok {
			c.delegate.PutObject(key, v)
		}
	}
	c.reset()
}

// Rollback discards every staged put and removal without touching
// delegate.
func (c *TransactionalCache) Rollback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *TransactionalCache) reset() {
	c.pendingPuts = make(map[string]any)
	c.pendingRemovals = make(map[string]bool)
	c.pendingKeys = make(map[string]*CacheKey)
	c.clearOnCommit = false
}
