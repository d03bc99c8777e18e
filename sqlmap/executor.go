// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"database/sql"
	"reflect"
	"sync"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XLoom"
	"github.com/eframework-org/GO.UTIL/XPrefs"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/illumitacit/gostd/quit"
)

// executionContext carries the plumbing an Executor needs to run one
// statement: the owning session (for its *sql.Tx / *sql.DB and local
// cache) plus the configuration it was built from.
type executionContext struct {
	session *Session
	config  *Configuration
}

// Executor runs MappedStatements against a database connection and
// applies the first-level (session) cache to Query. rowBounds may be
// nil, meaning no client-side offset/limit window over the result.
type Executor interface {
	Query(ms *MappedStatement, parameter any, rowBounds *RowBounds, resultHandler func(any)) ([]any, error)
	Update(ms *MappedStatement, parameter any) (sql.Result, error)
	FlushStatements() error
	Rollback() error
}

// BaseExecutor implements the parts of Executor that don't vary across
// Simple/Reuse/Batch: local cache lookups, BoundSQL construction, key
// generation and result mapping. Concrete executors supply doQuery and
// doUpdate.
type BaseExecutor struct {
	Configuration *Configuration
	Session       *Session
	closed        bool
	queryStack    int
	mu            sync.Mutex

	doQuery      func(ms *MappedStatement, bound *BoundSQL, rowBounds *RowBounds, resultHandler func(any)) ([]any, error)
	doUpdate     func(ms *MappedStatement, bound *BoundSQL) (sql.Result, error)
	doFlush      func() error
	doUnregister func()
}

// Unregister releases any background resources the executor holds
// (currently: a batch executor's slot in the auto-flush worker's
// registry). Session.Close calls this before flushing so a closed
// session's batch never gets flushed twice.
func (e *BaseExecutor) Unregister() {
	if e.doUnregister != nil {
		e.doUnregister()
	}
}

func newExecutionContext(cfg *Configuration, session *Session) *executionContext {
	return &executionContext{session: session, config: cfg}
}

func (e *BaseExecutor) Query(ms *MappedStatement, parameter any, rowBounds *RowBounds, resultHandler func(any)) ([]any, error) {
	if rowBounds != nil && e.Configuration.Settings.SafeRowBoundsEnabled {
		offset, limit := effectiveBounds(rowBounds)
		if offset != NoRowOffset || limit != NoRowLimit {
			return nil, newErr(ErrExecution, "apply row bounds", ms.ID, errSafeRowBounds)
		}
	}
	bound, err := ms.SQLSource.BoundSQL(parameter)
	if err != nil {
		return nil, err
	}
	key := newStatementCacheKey(e.Configuration, ms, bound, parameter, rowBounds)
	if ms.Command == CommandSelect && e.Configuration.Settings.CacheEnabled {
		if cached, ok := e.Session.localCacheGet(key.String()); ok {
			XLog.Info("sqlmap.Executor.Query(%v): served from local cache.", ms.ID)
			if list, ok := cached.([]any); ok {
				return list, nil
			}
		}
	}

	e.mu.Lock()
	e.queryStack++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.queryStack--
		e.mu.Unlock()
	}()

	start := XTime.GetMicrosecond()
	rows, err := e.doQuery(ms, bound, rowBounds, resultHandler)
	elapsedUS := XTime.GetMicrosecond() - start
	elapsed := float64(elapsedUS) / 1e3
	e.Session.recordStat(ms.Command, elapsedUS)
	Metrics().StatementDuration.WithLabelValues(ms.ID, ms.Command.String()).Observe(elapsed / 1e3)
	if err != nil {
		Metrics().StatementErrors.WithLabelValues(ms.ID, ErrExecution.String()).Inc()
		return nil, newErrSQL(ErrExecution, "query", ms.ID, bound.SQL, err)
	}
	XLog.Info("sqlmap.Executor.Query(%v): returned %v row(s) in %.2fms.", ms.ID, len(rows), elapsed)

	if ms.Command == CommandSelect && e.Configuration.Settings.CacheEnabled {
		e.Session.localCachePut(key.String(), rows)
	}
	if e.Configuration.Settings.LocalCacheScope == LocalCacheStatement {
		e.Session.localCacheClear()
	}
	return rows, nil
}

func (e *BaseExecutor) Update(ms *MappedStatement, parameter any) (sql.Result, error) {
	e.Session.localCacheClear()
	bound, err := ms.SQLSource.BoundSQL(parameter)
	if err != nil {
		return nil, err
	}
	execCtx := newExecutionContext(e.Configuration, e.Session)
	keyGen := ms.keyGenerator()
	if err := keyGen.ProcessBefore(execCtx, ms, parameter); err != nil {
		return nil, err
	}
	start := XTime.GetMicrosecond()
	result, err := e.doUpdate(ms, bound)
	elapsedUS := XTime.GetMicrosecond() - start
	elapsed := float64(elapsedUS) / 1e3
	e.Session.recordStat(ms.Command, elapsedUS)
	Metrics().StatementDuration.WithLabelValues(ms.ID, ms.Command.String()).Observe(elapsed / 1e3)
	if err != nil {
		Metrics().StatementErrors.WithLabelValues(ms.ID, ErrExecution.String()).Inc()
		return nil, newErrSQL(ErrExecution, "update", ms.ID, bound.SQL, err)
	}
	if result != nil {
		if err := keyGen.ProcessAfter(execCtx, ms, parameter, result); err != nil {
			return nil, err
		}
		if rows, _ := result.RowsAffected(); XLog.Able(XLog.LevelInfo) {
			XLog.Info("sqlmap.Executor.Update(%v): affected %v row(s) in %.2fms.", ms.ID, rows, elapsed)
		}
	}
	return result, nil
}

func (e *BaseExecutor) FlushStatements() error {
	if e.doFlush != nil {
		return e.doFlush()
	}
	return nil
}

func (e *BaseExecutor) Rollback() error { return e.Session.Rollback() }

// ms.keyGenerator returns NoKeyGenerator when a statement declares none.
func (ms *MappedStatement) keyGenerator() KeyGenerator {
	if ms.KeyGen == nil || ms.KeyGen.Generator == nil {
		return NoKeyGenerator{}
	}
	return ms.KeyGen.Generator
}

// valueForMapping resolves the concrete value a ParameterMapping
// contributes to a driver call: bound-object property, or an additional
// parameter staged by <bind>/<foreach>.
func valueForMapping(pm *ParameterMapping, parameterObject any, bound *BoundSQL) (any, error) {
	if bound != nil && bound.HasAdditionalParameter(pm.Property) {
		v, _ := bound.GetAdditionalParameter(pm.Property)
		return convertForDriver(pm, v)
	}
	if pm.Property == "" {
		return convertForDriver(pm, parameterObject)
	}
	if m, ok := parameterObject.(map[string]any); ok {
		return convertForDriver(pm, m[pm.Property])
	}
	rv := reflect.ValueOf(parameterObject)
	if !rv.IsValid() {
		return nil, nil
	}
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return convertForDriver(pm, parameterObject)
	}
	r := GetReflector(rv.Type())
	v, err := r.GetValue(rv, pm.Property)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return convertForDriver(pm, v.Interface())
}

func convertForDriver(pm *ParameterMapping, value any) (any, error) {
	if pm.TypeHandler != nil {
		return pm.TypeHandler.ToDatabase(value)
	}
	return value, nil
}

// argsFor builds the ordered driver argument list for bound.
func argsFor(bound *BoundSQL) ([]any, error) {
	args := make([]any, len(bound.ParameterMappings))
	for i, pm := range bound.ParameterMappings {
		v, err := valueForMapping(pm, bound.ParameterObject, bound)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

const errSafeRowBounds = sentinelError("safeRowBoundsEnabled forbids a non-default RowBounds; page in SQL instead")

// newStatementCacheKey builds the composite key spec §3 "Cache Key"
// names: statement id, offset, limit, SQL text, every parameter value
// (resolved through its type handler), and an environment tag — so two
// paginated calls to the same statement with the same SQL/params but
// different RowBounds, or the same call against two different
// Environments sharing one Configuration, land in distinct cache
// entries instead of colliding.
func newStatementCacheKey(cfg *Configuration, ms *MappedStatement, bound *BoundSQL, parameter any, rowBounds *RowBounds) *CacheKey {
	offset, limit := effectiveBounds(rowBounds)
	key := NewCacheKey()
	key.Update(ms.ID)
	key.Update(offset)
	key.Update(limit)
	key.Update(bound.SQL)
	for _, pm := range bound.ParameterMappings {
		v, _ := valueForMapping(pm, parameter, bound)
		key.Update(v)
	}
	key.Update(environmentTag(cfg))
	return key
}

// environmentTag is the environment-id component of a cache key; a
// Configuration with no Environment configured (e.g. under test)
// contributes an empty tag rather than panicking.
func environmentTag(cfg *Configuration) string {
	if cfg == nil || cfg.Environment == nil {
		return ""
	}
	return cfg.Environment.ID
}

// dbHandle returns the session's *sql.Tx if one is open, else the
// environment's *sql.DB for autocommit sessions.
func dbHandle(session *Session) interface {
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
	Prepare(query string) (*sql.Stmt, error)
} {
	if session.tx != nil {
		return session.tx
	}
	return session.Configuration.Environment.DB
}

// NewSimpleExecutor opens and closes a *sql.Stmt per invocation,
// matching MyBatis's SimpleExecutor.
func NewSimpleExecutor(cfg *Configuration, session *Session) *BaseExecutor {
	e := &BaseExecutor{Configuration: cfg, Session: session}
	e.doQuery = func(ms *MappedStatement, bound *BoundSQL, rowBounds *RowBounds, resultHandler func(any)) ([]any, error) {
		rows, err := statementHandlerFor(ms.Kind).Query(dbHandle(session), bound)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return NewResultSetHandler(cfg, ms, bound).HandleResultSets(rows, rowBounds, resultHandler)
	}
	e.doUpdate = func(ms *MappedStatement, bound *BoundSQL) (sql.Result, error) {
		return statementHandlerFor(ms.Kind).Exec(dbHandle(session), bound)
	}
	return e
}

// ReuseExecutor caches a *sql.Stmt per SQL text for the lifetime of the
// session, matching MyBatis's ReuseExecutor.
type reuseExecutor struct {
	*BaseExecutor
	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

func NewReuseExecutor(cfg *Configuration, session *Session) *BaseExecutor {
	re := &reuseExecutor{stmts: make(map[string]*sql.Stmt)}
	e := &BaseExecutor{Configuration: cfg, Session: session}
	re.BaseExecutor = e
	e.doQuery = func(ms *MappedStatement, bound *BoundSQL, rowBounds *RowBounds, resultHandler func(any)) ([]any, error) {
		stmt, err := re.stmtFor(session, bound.SQL)
		if err != nil {
			return nil, err
		}
		args, err := argsFor(bound)
		if err != nil {
			return nil, err
		}
		rows, err := stmt.Query(args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return NewResultSetHandler(cfg, ms, bound).HandleResultSets(rows, rowBounds, resultHandler)
	}
	e.doUpdate = func(ms *MappedStatement, bound *BoundSQL) (sql.Result, error) {
		stmt, err := re.stmtFor(session, bound.SQL)
		if err != nil {
			return nil, err
		}
		args, err := argsFor(bound)
		if err != nil {
			return nil, err
		}
		return stmt.Exec(args...)
	}
	e.doFlush = func() error {
		re.mu.Lock()
		defer re.mu.Unlock()
		for sqlText, stmt := range re.stmts {
			stmt.Close()
			delete(re.stmts, sqlText)
		}
		return nil
	}
	return e
}

func (re *reuseExecutor) stmtFor(session *Session, sqlText string) (*sql.Stmt, error) {
	re.mu.Lock()
	defer re.mu.Unlock()
	if stmt, ok := re.stmts[sqlText]; ok {
		return stmt, nil
	}
	stmt, err := dbHandle(session).Prepare(sqlText)
	if err != nil {
		return nil, newErrSQL(ErrExecution, "prepare", "", sqlText, err)
	}
	re.stmts[sqlText] = stmt
	return stmt, nil
}

// batchedStatement accumulates the argument sets for one distinct SQL
// text queued by a BatchExecutor, in submission order.
type batchedStatement struct {
	ms   *MappedStatement
	sql  string
	stmt *sql.Stmt
	args [][]any
}

// batchExecutor groups consecutive updates sharing SQL text into a
// single prepared statement executed as a driver batch on
// FlushStatements, matching MyBatis's BatchExecutor. Queries are not
// batchable and fall through to a plain prepare-execute-close cycle,
// same as ReuseExecutor without statement caching.
type batchExecutor struct {
	*BaseExecutor
	mu           sync.Mutex
	batch        []*batchedStatement
	lastQueuedAt time.Time
}

// idleFor reports how long it has been since a statement was last
// queued, used by the background flush worker to decide a batch has
// gone stale and should drain without waiting for FlushStatements.
func (be *batchExecutor) idleFor() time.Duration {
	be.mu.Lock()
	defer be.mu.Unlock()
	if len(be.batch) == 0 {
		return 0
	}
	return time.Since(be.lastQueuedAt)
}

func (be *batchExecutor) unregisterBatch() { batchRegistry.Delete(be) }

const batchFlushIntervalPrefs = "Sqlmap/Batch/FlushInterval"

var (
	batchRegistry      sync.Map // *batchExecutor -> struct{}
	batchWorkerOnce    sync.Once
	batchFlushInterval = 2 * time.Second
)

// startBatchFlushWorker launches the single background goroutine that
// drains batchExecutors idle past batchFlushInterval, so a batch that
// stops receiving statements before FlushStatements is called doesn't
// sit unflushed for the rest of the session. Unlike the sharded
// commit-queue design it is modeled on, one worker suffices here
// because batches are already partitioned per session.
func startBatchFlushWorker() {
	batchWorkerOnce.Do(func() {
		if n := XPrefs.Asset().GetInt(batchFlushIntervalPrefs); n > 0 {
			batchFlushInterval = time.Duration(n) * time.Millisecond
		}
		quit.GetWaiter().Add(1)
		XLoom.RunAsyncT2(func(interval time.Duration, _ struct{}) {
			defer quit.GetWaiter().Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					flushIdleBatches(interval)
				case <-quit.GetQuitChannel():
					flushIdleBatches(0)
					return
				}
			}
		}, batchFlushInterval, struct{}{}, true)
	})
}

func flushIdleBatches(minIdle time.Duration) {
	batchRegistry.Range(func(key, _ any) bool {
		be := key.(*batchExecutor)
		if be.idleFor() >= minIdle {
			if err := be.flush(); err != nil {
				XLog.Error("sqlmap.Executor.Batch: background flush failed, %v.", err)
			}
		}
		return true
	})
}

func NewBatchExecutor(cfg *Configuration, session *Session) *BaseExecutor {
	be := &batchExecutor{}
	e := &BaseExecutor{Configuration: cfg, Session: session}
	be.BaseExecutor = e
	batchRegistry.Store(be, struct{}{})
	startBatchFlushWorker()
	e.doUnregister = be.unregisterBatch
	e.doQuery = func(ms *MappedStatement, bound *BoundSQL, rowBounds *RowBounds, resultHandler func(any)) ([]any, error) {
		if err := be.FlushStatements(); err != nil {
			return nil, err
		}
		args, err := argsFor(bound)
		if err != nil {
			return nil, err
		}
		rows, err := dbHandle(session).Query(bound.SQL, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return NewResultSetHandler(cfg, ms, bound).HandleResultSets(rows, rowBounds, resultHandler)
	}
	e.doUpdate = func(ms *MappedStatement, bound *BoundSQL) (sql.Result, error) {
		args, err := argsFor(bound)
		if err != nil {
			return nil, err
		}
		be.mu.Lock()
		defer be.mu.Unlock()
		be.lastQueuedAt = time.Now()
		if n := len(be.batch); n > 0 && be.batch[n-1].sql == bound.SQL {
			be.batch[n-1].args = append(be.batch[n-1].args, args)
		} else {
			be.batch = append(be.batch, &batchedStatement{ms: ms, sql: bound.SQL, args: [][]any{args}})
		}
		// database/sql has no native multi-row batch result; report the
		// pending queue depth as the affected-rows placeholder until Flush.
		return driverBatchResult{rowsAffected: int64(len(be.batch[len(be.batch)-1].args))}, nil
	}
	e.doFlush = be.flush
	return e
}

func (be *batchExecutor) flush() error {
	be.mu.Lock()
	pending := be.batch
	be.batch = nil
	be.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}
	start := XTime.GetMicrosecond()
	for _, b := range pending {
		stmt, err := dbHandle(be.Session).Prepare(b.sql)
		if err != nil {
			return newErrSQL(ErrExecution, "batch prepare", b.ms.ID, b.sql, err)
		}
		for _, args := range b.args {
			if _, err := stmt.Exec(args...); err != nil {
				stmt.Close()
				return newErrSQL(ErrExecution, "batch exec", b.ms.ID, b.sql, err)
			}
		}
		stmt.Close()
	}
	Metrics().BatchFlushSize.Observe(float64(len(pending)))
	XLog.Notice("sqlmap.Executor.Batch: flushed %v statement group(s) in %.2fms.", len(pending), float64(XTime.GetMicrosecond()-start)/1e3)
	return nil
}

// driverBatchResult satisfies sql.Result for a queued (not yet
// executed) batch update.
type driverBatchResult struct{ rowsAffected int64 }

func (r driverBatchResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverBatchResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }
