// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import "database/sql"

// CachingExecutor decorates a base Executor with second-level (shared,
// cross-session) cache lookups on Query, and flushes the namespace's
// cache whenever a statement with FlushCache=true executes. It
// delegates the actual first-level cache and driver work to the
// wrapped Executor.
type CachingExecutor struct {
	delegate Executor
}

func NewCachingExecutor(delegate Executor) *CachingExecutor {
	return &CachingExecutor{delegate: delegate}
}

func (c *CachingExecutor) Query(ms *MappedStatement, parameter any, rowBounds *RowBounds, resultHandler func(any)) ([]any, error) {
	if ms.Cache == nil || !ms.UseCache {
		return c.delegate.Query(ms, parameter, rowBounds, resultHandler)
	}
	bound, err := ms.SQLSource.BoundSQL(parameter)
	if err != nil {
		return nil, err
	}
	session := sessionFromExecutor(c.delegate)
	key := newStatementCacheKey(session.Configuration, ms, bound, parameter, rowBounds)

	tc := session.transactionalCache(ms.Namespace, ms.Cache)
	if ms.FlushCache {
		tc.Clear()
	}
	if cached, ok := tc.GetObject(key); ok {
		if list, ok := cached.([]any); ok {
			Metrics().CacheHits.WithLabelValues(ms.Namespace).Inc()
			return list, nil
		}
	}
	Metrics().CacheMisses.WithLabelValues(ms.Namespace).Inc()
	rows, err := c.delegate.Query(ms, parameter, rowBounds, resultHandler)
	if err != nil {
		return nil, err
	}
	tc.PutObject(key, rows)
	return rows, nil
}

func (c *CachingExecutor) Update(ms *MappedStatement, parameter any) (sql.Result, error) {
	if ms.Cache != nil && ms.FlushCache {
		session := sessionFromExecutor(c.delegate)
		session.transactionalCache(ms.Namespace, ms.Cache).Clear()
	}
	return c.delegate.Update(ms, parameter)
}

func (c *CachingExecutor) FlushStatements() error { return c.delegate.FlushStatements() }
func (c *CachingExecutor) Rollback() error        { return c.delegate.Rollback() }

// Unregister forwards to the wrapped executor so a batch executor
// beneath the cache decorator still leaves the auto-flush registry
// when its session closes.
func (c *CachingExecutor) Unregister() {
	if u, ok := c.delegate.(interface{ Unregister() }); ok {
		u.Unregister()
	}
}

// sessionFromExecutor extracts the *Session a concrete Executor was
// built against; every executor variant this package ships embeds
// *BaseExecutor, which carries it.
func sessionFromExecutor(e Executor) *Session {
	if b, ok := e.(*BaseExecutor); ok {
		return b.Session
	}
	if b, ok := e.(interface{ session() *Session }); ok {
		return b.session()
	}
	return nil
}
