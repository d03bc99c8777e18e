// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XObject"
	"github.com/eframework-org/GO.UTIL/XString"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/petermattis/goid"
)

// CommandStats accumulates the count and total elapsed microseconds a
// session has spent executing one CommandKind, drained and logged on
// Session.Close.
type CommandStats struct {
	Count   int64
	Elapsed int64
}

var (
	sessionID   int64
	sessionMap  sync.Map // goroutine id -> *Session
	sessionPool = sync.Pool{New: func() any { return new(Session) }}
)

// Session is one unit-of-work bound to the calling goroutine: it owns
// a first-level cache, a staged transactional view of every namespace
// cache it touches, and the *sql.Tx (or *sql.DB, for autocommit use) it
// runs against. It is never shared
// across goroutines; OpenSession binds it to the caller's goroutine ID
// and Close releases the binding.
type Session struct {
	ID            int
	Configuration *Configuration
	Executor      Executor
	AutoCommit    bool

	tx           *sql.Tx
	startedAt    int
	localCache   map[string]any
	localCacheMu sync.Mutex
	txCaches     map[string]*TransactionalCache
	txCachesMu   sync.Mutex

	stats   map[CommandKind]*CommandStats
	statsMu sync.Mutex
}

func (s *Session) reset() {
	s.ID = 0
	s.Configuration = nil
	s.Executor = nil
	s.AutoCommit = false
	s.tx = nil
	s.startedAt = 0
	s.localCache = nil
	s.txCaches = nil
	s.stats = nil
}

// recordStat adds one execution of cmd, taking elapsedMicros, to the
// session's running per-command totals.
func (s *Session) recordStat(cmd CommandKind, elapsedMicros int) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	st, ok := s.stats[cmd]
	if !ok {
		st = &CommandStats{}
		s.stats[cmd] = st
	}
	st.Count++
	st.Elapsed += int64(elapsedMicros)
}

// statsSnapshot renders the session's accumulated Stats keyed by
// command name, safe to hand to XObject.ToJson for a diagnostic log
// line.
func (s *Session) statsSnapshot() map[string]CommandStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := make(map[string]CommandStats, len(s.stats))
	for cmd, st := range s.stats {
		out[cmd.String()] = *st
	}
	return out
}

// OpenSession begins a session bound to the current goroutine using the
// configured default ExecutorType.
func OpenSession(cfg *Configuration) (*Session, error) {
	return OpenSessionWith(cfg, cfg.Settings.DefaultExecutorType, false)
}

// OpenSessionWith begins a session with an explicit executor type and
// autocommit flag.
func OpenSessionWith(cfg *Configuration, execType ExecutorType, autoCommit bool) (*Session, error) {
	gid := goid.Get()
	if _, exists := sessionMap.Load(gid); exists {
		return nil, newErr(ErrExecution, "open session", "", errAlreadyOpen)
	}
	s := sessionPool.Get().(*Session)
	s.ID = int(atomic.AddInt64(&sessionID, 1))
	s.Configuration = cfg
	s.AutoCommit = autoCommit
	s.startedAt = XTime.GetMicrosecond()
	s.localCache = make(map[string]any)
	s.txCaches = make(map[string]*TransactionalCache)
	s.stats = make(map[CommandKind]*CommandStats)

	if !autoCommit && cfg.Environment != nil && cfg.Environment.DB != nil {
		tx, err := cfg.Environment.DB.Begin()
		if err != nil {
			sessionPool.Put(s)
			return nil, newErr(ErrExecution, "begin transaction", "", err)
		}
		s.tx = tx
	}
	s.Executor = cfg.NewExecutor(s, execType)
	sessionMap.Store(gid, s)

	if tag := XLog.Tag(); tag != nil {
		tag.Set("Go", XString.ToString(int(gid)))
		tag.Set("Session", XString.ToString(s.ID))
	}
	XLog.Info("sqlmap.Session: opened.")
	return s, nil
}

// CurrentSession returns the session bound to the calling goroutine, if
// any.
func CurrentSession() (*Session, bool) {
	v, ok := sessionMap.Load(goid.Get())
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// transactionalCache lazily wraps namespace's second-level cache in a
// per-session TransactionalCache so writes stage until Commit.
func (s *Session) transactionalCache(namespace string, delegate Cache) *TransactionalCache {
	s.txCachesMu.Lock()
	defer s.txCachesMu.Unlock()
	tc, ok := s.txCaches[namespace]
	if !ok {
		tc = NewTransactionalCache(delegate)
		s.txCaches[namespace] = tc
	}
	return tc
}

func (s *Session) localCacheGet(key string) (any, bool) {
	s.localCacheMu.Lock()
	defer s.localCacheMu.Unlock()
	v, ok := s.localCache[key]
	return v, ok
}

func (s *Session) localCachePut(key string, value any) {
	s.localCacheMu.Lock()
	defer s.localCacheMu.Unlock()
	s.localCache[key] = value
}

func (s *Session) localCacheClear() {
	s.localCacheMu.Lock()
	defer s.localCacheMu.Unlock()
	s.localCache = make(map[string]any)
}

// Commit runs the executor's pending batched statements, commits the
// underlying *sql.Tx, if one is open, and flushes every staged
// transactional cache.
func (s *Session) Commit() error {
	if s.Executor != nil {
		if err := s.Executor.FlushStatements(); err != nil {
			return err
		}
	}
	if s.tx != nil {
		if err := s.tx.Commit(); err != nil {
			return newErr(ErrExecution, "commit", "", err)
		}
	}
	s.txCachesMu.Lock()
	for _, tc := range s.txCaches {
		tc.Commit()
	}
	s.txCachesMu.Unlock()
	if s.Configuration.Settings.LocalCacheScope == LocalCacheStatement {
		s.localCacheClear()
	}
	return nil
}

// Rollback discards staged cache writes and rolls back the underlying
// *sql.Tx, if one is open.
func (s *Session) Rollback() error {
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil {
			return newErr(ErrExecution, "rollback", "", err)
		}
	}
	s.txCachesMu.Lock()
	for _, tc := range s.txCaches {
		tc.Rollback()
	}
	s.txCachesMu.Unlock()
	s.localCacheClear()
	return nil
}

// Close releases the session's goroutine binding and, for a batch
// executor, flushes any pending statements. It should be called via
// defer immediately after OpenSession.
func (s *Session) Close() error {
	gid := goid.Get()
	defer func() {
		sessionMap.Delete(gid)
		elapsed := float64(XTime.GetMicrosecond()-s.startedAt) / 1e3
		stats, _ := XObject.ToJson(s.statsSnapshot())
		XLog.Info("sqlmap.Session: closed, elapsed %.2fms, stats %v.", elapsed, stats)
		s.reset()
		sessionPool.Put(s)
	}()
	if unreg, ok := s.Executor.(interface{ Unregister() }); ok {
		unreg.Unregister()
	}
	if flusher, ok := s.Executor.(interface{ FlushStatements() error }); ok {
		if err := flusher.FlushStatements(); err != nil {
			return err
		}
	}
	if s.tx != nil && !s.AutoCommit {
		return s.Rollback()
	}
	return nil
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errAlreadyOpen = sentinelError("a session is already open on this goroutine")
