// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"sync"
	"sync/atomic"
)

// LazyLoader defers a nested association/collection select until first
// use: rather than intercepting arbitrary property access through a
// runtime proxy, a nested mapping marked lazy is set to a *LazyLoader
// value, and callers explicitly call Get to trigger (and memoize) the
// deferred select.
type LazyLoader struct {
	once   sync.Once
	fn     func() (any, error)
	value  any
	err    error
	loaded atomic.Bool
}

// NewLazyLoader wraps fn so it runs at most once, on the first Get.
func NewLazyLoader(fn func() (any, error)) *LazyLoader {
	return &LazyLoader{fn: fn}
}

// Get triggers the deferred load on first call and returns its cached
// result on every subsequent call.
func (l *LazyLoader) Get() (any, error) {
	l.once.Do(func() {
		l.value, l.err = l.fn()
		l.loaded.Store(true)
	})
	return l.value, l.err
}

// Loaded reports whether Get has already run, without triggering it.
func (l *LazyLoader) Loaded() bool { return l.loaded.Load() }
