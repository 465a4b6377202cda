// executor.go: Plugin-wrapped database handle construction and lifecycle
//
// The executor is the publicly exposed database handle: it applies the
// interception chains to every interceptable call, exposes transaction-scoped
// sub-handles sharing the same resolved plugin order, and owns the plugin
// lifecycle from init through teardown.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// pluginRecord caches one plugin's capability assertions. Optional
// capabilities are probed exactly once here, at construction, never per call.
type pluginRecord struct {
	plugin  Plugin
	info    PluginInfo
	init    Initializer
	ctxInit ContextInitializer
	final   Finalizer
	hooks   []Hook
}

func newPluginRecord(plugin Plugin) *pluginRecord {
	record := &pluginRecord{plugin: plugin, info: plugin.Info()}
	if v, ok := plugin.(Initializer); ok {
		record.init = v
	}
	if v, ok := plugin.(ContextInitializer); ok {
		record.ctxInit = v
	}
	if v, ok := plugin.(Finalizer); ok {
		record.final = v
	}
	if v, ok := plugin.(Interceptor); ok {
		record.hooks = v.Hooks()
	}
	return record
}

// Executor is the plugin-wrapped database handle.
//
// A root executor wraps one Connection; transaction sub-handles produced by
// Transaction wrap a transaction-scoped Tx while sharing the parent's
// resolved plugin order and interception chains. The plugin order and chains
// are immutable after construction and need no locking; the only mutable
// state is the shutdown state cell and the sub-handle expiry flag, both
// atomics.
//
// Construction is the single place plugins are validated, ordered, and
// initialized. Use NewExecutor when plugins perform IO during setup and
// NewExecutorSync when they must not.
type Executor struct {
	conn    Connection
	records []*pluginRecord
	chains  map[QueryMethod]*methodChain
	opts    *Options
	logger  Logger

	// runner is the terminal stage for this handle: the root connection, or
	// the transaction for a sub-handle.
	runner Runner

	// controller drives teardown for the root handle; nil on sub-handles.
	controller *ShutdownController

	// txExpired marks a transaction sub-handle whose callback has returned;
	// nil on the root handle.
	txExpired *atomic.Bool
	parent    *Executor
}

// NewExecutor builds a plugin-wrapped handle around conn.
//
// Construction steps, each a failure point that leaves no partial state:
//  1. resolve the plugin order - duplicate names, missing dependencies and
//     cycles abort with a validation error;
//  2. build the per-method interception chains;
//  3. run every plugin's init in resolved order - when one fails, plugins
//     initialized before it are torn down in reverse order before the
//     initialization error is returned, so no resources leak.
//
// The context bounds plugin init work only; it is not retained.
func NewExecutor(ctx context.Context, conn Connection, plugins []Plugin, opts *Options) (*Executor, error) {
	e, err := assemble(conn, plugins, opts)
	if err != nil {
		return nil, err
	}

	if err := e.initPlugins(ctx, false); err != nil {
		return nil, err
	}

	e.logger.Info("executor created",
		"plugins", len(e.records),
		"intercepted_methods", len(e.chains))
	return e, nil
}

// NewExecutorSync is the no-suspension-point variant of NewExecutor. It fails
// fast with a validation error when any plugin only offers context-aware init
// (ContextInitializer without Initializer), since that init cannot run
// without a place to block.
func NewExecutorSync(conn Connection, plugins []Plugin, opts *Options) (*Executor, error) {
	e, err := assemble(conn, plugins, opts)
	if err != nil {
		return nil, err
	}

	for _, record := range e.records {
		if record.ctxInit != nil && record.init == nil {
			return nil, NewSyncInitUnsupportedError(record.info.Name)
		}
	}

	if err := e.initPlugins(context.Background(), true); err != nil {
		return nil, err
	}

	e.logger.Info("executor created",
		"plugins", len(e.records),
		"intercepted_methods", len(e.chains))
	return e, nil
}

// assemble performs the side-effect-free part of construction: validation,
// ordering, capability caching, chain building, controller wiring.
func assemble(conn Connection, plugins []Plugin, opts *Options) (*Executor, error) {
	if conn == nil {
		return nil, NewNilConnectionError()
	}
	options := opts.withDefaults()

	resolved, err := ResolvePlugins(plugins)
	if err != nil {
		return nil, err
	}

	records := make([]*pluginRecord, len(resolved))
	for i, plugin := range resolved {
		records[i] = newPluginRecord(plugin)
	}

	chains, err := buildChains(records)
	if err != nil {
		return nil, err
	}

	e := &Executor{
		conn:    conn,
		records: records,
		chains:  chains,
		opts:    options,
		logger:  options.Logger,
		runner:  conn,
	}

	e.controller = NewShutdownController(conn, &ShutdownOptions{
		Timeout:    options.ShutdownTimeout,
		OnShutdown: options.OnShutdown,
		Logger:     options.Logger,
	})
	// Teardown hooks registered in reverse resolved order so the controller
	// can run them front to back.
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if record.final == nil {
			continue
		}
		e.controller.RegisterTeardown(record.info.Name, record.final.Destroy)
	}

	return e, nil
}

// initPlugins runs init hooks in resolved order. syncOnly skips the
// context-aware flavor even when present (callers have already validated a
// plain flavor exists).
func (e *Executor) initPlugins(ctx context.Context, syncOnly bool) error {
	initialized := make([]*pluginRecord, 0, len(e.records))

	for _, record := range e.records {
		var err error
		switch {
		case !syncOnly && record.ctxInit != nil:
			err = record.ctxInit.InitContext(ctx, e)
		case record.init != nil:
			err = record.init.Init(e)
		}
		if err != nil {
			e.logger.Error("plugin init failed, rolling back",
				"plugin", record.info.Name,
				"initialized", len(initialized),
				"error", err)
			e.rollbackInit(ctx, initialized)
			return NewPluginInitError(record.info.Name, err)
		}
		initialized = append(initialized, record)
	}

	return nil
}

// rollbackInit tears down already-initialized plugins in reverse order after
// a failed construction. Teardown errors are logged, not returned: the
// originating init failure is the one the caller sees.
func (e *Executor) rollbackInit(ctx context.Context, initialized []*pluginRecord) {
	for i := len(initialized) - 1; i >= 0; i-- {
		record := initialized[i]
		if record.final == nil {
			continue
		}
		if err := record.final.Destroy(ctx); err != nil {
			e.logger.Warn("plugin teardown failed during rollback",
				"plugin", record.info.Name,
				"error", err)
		}
	}
}

// Select threads a read query through the select chain.
func (e *Executor) Select(ctx context.Context, query *Query) (*Result, error) {
	return e.run(ctx, MethodSelect, query)
}

// Insert threads a row creation through the insert chain.
func (e *Executor) Insert(ctx context.Context, query *Query) (*Result, error) {
	return e.run(ctx, MethodInsert, query)
}

// Update threads a row mutation through the update chain.
func (e *Executor) Update(ctx context.Context, query *Query) (*Result, error) {
	return e.run(ctx, MethodUpdate, query)
}

// Delete threads a row removal through the delete chain.
func (e *Executor) Delete(ctx context.Context, query *Query) (*Result, error) {
	return e.run(ctx, MethodDelete, query)
}

// Execute dispatches a query by its own Method over the enumerated entry
// point table. Queries targeting anything else are rejected - interception
// never reflects over the builder surface.
func (e *Executor) Execute(ctx context.Context, query *Query) (*Result, error) {
	if query == nil || !query.Method.IsValid() || query.Method == MethodTransaction {
		method := QueryMethod("")
		if query != nil {
			method = query.Method
		}
		return nil, NewUnknownMethodError(method)
	}
	return e.run(ctx, query.Method, query)
}

func (e *Executor) run(ctx context.Context, method QueryMethod, query *Query) (*Result, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	if query == nil {
		query = &Query{}
	}
	query.Method = method
	if query.ID == "" {
		query.ID = uuid.NewString()
	}
	return e.chains[method].Invoke(ctx, query, e.runner.Run)
}

// Transaction opens a transaction-scoped connection, builds a sub-handle
// sharing this executor's plugin order and chains, and runs work with it.
//
// The transaction commits when work returns nil and rolls back when it
// returns an error or panics (the panic is re-raised after rollback). The
// sub-handle expires the moment work returns: any use outside the callback's
// dynamic extent fails, even from goroutines that captured it.
//
// Transaction start itself threads the transaction chain, so plugins can
// observe or veto it like any other intercepted method.
func (e *Executor) Transaction(ctx context.Context, work func(ctx context.Context, tx *Executor) error) error {
	if err := e.usable(); err != nil {
		return err
	}
	if e.txExpired != nil {
		return NewNestedTransactionError()
	}

	startQuery := &Query{ID: uuid.NewString(), Method: MethodTransaction}
	var tx Tx
	_, err := e.chains[MethodTransaction].Invoke(ctx, startQuery, func(tctx context.Context, _ *Query) (*Result, error) {
		begun, beginErr := e.conn.Begin(tctx)
		if beginErr != nil {
			return nil, beginErr
		}
		tx = begun
		return &Result{}, nil
	})
	if err != nil {
		return err
	}
	if tx == nil {
		// A transaction hook returned without continuing the chain, so no
		// transaction exists to run work in.
		return NewTxShortCircuitError()
	}

	sub := e.newTxHandle(tx)
	workErr := runTxWork(ctx, tx, sub, work)
	if workErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			e.logger.Warn("transaction rollback failed", "error", rbErr)
		}
		return workErr
	}
	return tx.Commit(ctx)
}

// runTxWork isolates the callback so the sub-handle expires on every exit
// path and panics still roll the transaction back before re-raising.
func runTxWork(ctx context.Context, tx Tx, sub *Executor, work func(ctx context.Context, tx *Executor) error) (err error) {
	defer func() {
		sub.txExpired.Store(true)
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	return work(ctx, sub)
}

func (e *Executor) newTxHandle(tx Tx) *Executor {
	return &Executor{
		conn:      e.conn,
		records:   e.records,
		chains:    e.chains,
		opts:      e.opts,
		logger:    e.logger,
		runner:    tx,
		txExpired: &atomic.Bool{},
		parent:    e,
	}
}

// usable rejects calls on expired sub-handles and destroyed executors.
func (e *Executor) usable() error {
	if e.txExpired != nil {
		if e.txExpired.Load() {
			return NewTxHandleInvalidError()
		}
		return nil
	}
	if e.controller.IsShuttingDown() {
		return NewExecutorDestroyedError()
	}
	return nil
}

// Destroy tears the executor down: registered plugin teardown hooks run in
// reverse resolved order, then the connection closes bounded by the
// configured shutdown timeout. Destroy is idempotent - repeated and
// concurrent calls share the first call's outcome.
func (e *Executor) Destroy(ctx context.Context) error {
	if e.txExpired != nil {
		return NewTxHandleInvalidError()
	}
	return e.controller.Execute(ctx)
}

// IsDestroyed reports whether Destroy has started or finished.
func (e *Executor) IsDestroyed() bool {
	if e.txExpired != nil {
		return e.parent.IsDestroyed()
	}
	return e.controller.IsShuttingDown()
}

// Shutdown exposes the executor's shutdown controller for signal wiring and
// state inspection.
func (e *Executor) Shutdown() *ShutdownController {
	if e.txExpired != nil {
		return e.parent.Shutdown()
	}
	return e.controller
}

// Conn returns the wrapped connection for builder methods outside the
// intercepted set. Calls made through it bypass every plugin chain.
func (e *Executor) Conn() Connection {
	return e.conn
}

// Plugins returns the resolved plugin order as metadata, for observability.
func (e *Executor) Plugins() []PluginInfo {
	infos := make([]PluginInfo, len(e.records))
	for i, record := range e.records {
		infos[i] = record.info
	}
	return infos
}

// CheckHealth probes this executor's connection with the configured timeout.
// Query metrics collected by an interception-based tracker plugin are merged
// into the result when one is registered.
func (e *Executor) CheckHealth(ctx context.Context) HealthCheckResult {
	opts := &HealthCheckOptions{
		Timeout: e.opts.HealthCheckTimeout,
		Logger:  e.logger,
	}
	for _, record := range e.records {
		if stats, ok := record.plugin.(QueryStats); ok {
			opts.QueryStats = stats
			break
		}
	}
	return CheckDatabaseHealth(ctx, e.conn, opts)
}
