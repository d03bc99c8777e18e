// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func keyFor(s string) *CacheKey {
	k := NewCacheKey()
	k.Update(s)
	return k
}

func TestMapCache(t *testing.T) {
	c := NewMapCache("test")
	c.PutObject(keyFor("a"), 1)
	v, ok := c.GetObject(keyFor("a"))
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	removed, ok := c.RemoveObject(keyFor("a"))
	assert.True(t, ok)
	assert.Equal(t, 1, removed)
	_, ok = c.GetObject(keyFor("a"))
	assert.False(t, ok, "removed entry should no longer be gettable")
	assert.Equal(t, 0, c.Size())
}

// TestFIFOCache_RemoveDoesNotDesyncEvictionQueue guards the fix for the
// documented FIFO defect: removing a key directly must also drop it
// from the tracked eviction list, or the list eventually references
// keys the delegate no longer holds and cycling starts evicting the
// wrong entries.
func TestFIFOCache_RemoveDoesNotDesyncEvictionQueue(t *testing.T) {
	c := NewFIFOCache(NewMapCache("fifo"), 2)
	c.PutObject(keyFor("a"), 1)
	c.PutObject(keyFor("b"), 2)

	_, ok := c.RemoveObject(keyFor("a"))
	assert.True(t, ok)
	assert.Equal(t, 1, c.keys.Len(), "the tracked key list must shrink along with the explicit removal")
	_, indexed := c.index["a"]
	assert.False(t, indexed, "the index must drop the removed key too")

	c.PutObject(keyFor("c"), 3)
	c.PutObject(keyFor("d"), 4)

	// Capacity is 2; after inserting b, c, d the oldest surviving entry
	// (b) must have cycled out instead of a phantom "a" still occupying
	// a queue slot.
	_, ok = c.GetObject(keyFor("b"))
	assert.False(t, ok, "b should have been evicted once capacity was exceeded")
	_, ok = c.GetObject(keyFor("c"))
	assert.True(t, ok)
	_, ok = c.GetObject(keyFor("d"))
	assert.True(t, ok)
}

func TestLRUCache_EvictionRemovesFromDelegate(t *testing.T) {
	delegate := NewMapCache("lru")
	c := NewLRUCache(delegate, 1)
	c.PutObject(keyFor("a"), 1)
	c.PutObject(keyFor("b"), 2)

	_, ok := delegate.GetObject(keyFor("a"))
	assert.False(t, ok, "evicting from the LRU tracker must also remove the entry from the delegate")
	_, ok = delegate.GetObject(keyFor("b"))
	assert.True(t, ok)
}

func TestSynchronizedCache(t *testing.T) {
	c := NewSynchronizedCache(NewMapCache("sync"))
	c.PutObject(keyFor("a"), "v")
	v, ok := c.GetObject(keyFor("a"))
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestSerializedCache_ClonesOnPut(t *testing.T) {
	c := NewSerializedCache(NewMapCache("ser"))
	original := map[string]int{"x": 1}
	c.PutObject(keyFor("a"), original)
	original["x"] = 2

	v, ok := c.GetObject(keyFor("a"))
	assert.True(t, ok)
	stored := v.(map[string]int)
	assert.Equal(t, 1, stored["x"], "a serialized cache must isolate the stored value from later caller mutation")
}
