// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// CacheKey identifies one (statement, bound parameters, row bounds,
// environment) tuple for both the first-level session cache and the
// second-level shared cache. Two keys are Equal exactly
// when every appended component compares equal in order.
type CacheKey struct {
	hash       uint64
	multiplier uint64
	count      int
	parts      []string
}

const cacheKeyMultiplier = 37

// NewCacheKey returns an empty key ready to accumulate Update calls.
func NewCacheKey() *CacheKey {
	return &CacheKey{hash: 17, multiplier: cacheKeyMultiplier}
}

// Update folds one component into the key. Order matters: statement ID,
// offset, limit, SQL text and every parameter value must be appended in
// a stable order for equal invocations to produce equal keys.
func (k *CacheKey) Update(obj any) {
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", obj)
	code := uint64(h.Sum32())
	k.count++
	k.hash = k.hash*k.multiplier + code
	k.parts = append(k.parts, fmt.Sprintf("%v", obj))
}

func (k *CacheKey) UpdateAll(objs ...any) {
	for _, o := range objs {
		k.Update(o)
	}
}

func (k *CacheKey) Equal(other *CacheKey) bool {
	if other == nil || k.count != other.count || k.hash != other.hash {
		return false
	}
	if len(k.parts) != len(other.parts) {
		return false
	}
	for i := range k.parts {
		if k.parts[i] != other.parts[i] {
			return false
		}
	}
	return true
}

// String is the map key representation used by in-memory Cache
// implementations, which store keys as plain strings rather than
// struct values.
func (k *CacheKey) String() string {
	return strings.Join(k.parts, "\x1f")
}

func (k *CacheKey) Clone() *CacheKey {
	parts := make([]string, len(k.parts))
	copy(parts, k.parts)
	return &CacheKey{hash: k.hash, multiplier: k.multiplier, count: k.count, parts: parts}
}
