// plugin.go: Plugin contract and capability interfaces
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
)

// Plugin is the contract every composition plugin implements. It is the sole
// extension point of this layer: any conforming value may be registered.
//
// A plugin's identity is Info().Name, which must be unique within a
// registered set and is immutable once registered. Ordering is derived from
// Info().DependsOn and Info().Priority by the resolver.
//
// All other behavior is optional and declared through separate capability
// interfaces, asserted exactly once during executor construction:
//
//   - Initializer: synchronous setup when the executor is built
//   - ContextInitializer: setup that performs IO and respects a context
//   - Finalizer: teardown during shutdown
//   - Interceptor: per-method query hooks
//
// A plugin implementing none of them participates in ordering and lifecycle
// accounting only.
//
// Example:
//
//	type auditPlugin struct{ kysera.BasePlugin }
//
//	func newAuditPlugin() *auditPlugin {
//		return &auditPlugin{BasePlugin: kysera.BasePlugin{PluginInfo: kysera.PluginInfo{
//			Name:      "audit",
//			Version:   "1.0.0",
//			Priority:  100,
//			DependsOn: []string{"soft-delete"},
//		}}}
//	}
//
//	func (p *auditPlugin) Hooks() []kysera.Hook {
//		return []kysera.Hook{{
//			Method: kysera.MethodDelete,
//			Mode:   kysera.HookObserve,
//			Fn: func(ctx context.Context, q *kysera.Query, next kysera.Next) (*kysera.Result, error) {
//				// record, then forward unchanged
//				return next(ctx, q)
//			},
//		}}
//	}
type Plugin interface {
	// Info returns the plugin's identity and ordering metadata. It must be
	// stable: the resolver and executor may call it repeatedly.
	Info() PluginInfo
}

// Initializer is the optional synchronous setup capability. Init runs exactly
// once during construction, in resolved order, and must not block on IO -
// plugins that need IO implement ContextInitializer instead.
type Initializer interface {
	Init(db *Executor) error
}

// ContextInitializer is the optional blocking setup capability: verifying a
// dialect capability, warming a cache, creating audit tables. It runs exactly
// once during NewExecutor, in resolved order. Plugins implementing it cannot
// be used with NewExecutorSync, which has no suspension point to offer.
//
// When a plugin implements both initializer flavors, ContextInitializer wins
// under NewExecutor.
type ContextInitializer interface {
	InitContext(ctx context.Context, db *Executor) error
}

// Finalizer is the optional teardown capability. Destroy runs exactly once
// during shutdown, in reverse resolved order, regardless of whether this
// plugin's init succeeded.
type Finalizer interface {
	Destroy(ctx context.Context) error
}

// Interceptor is the optional query-hook capability. Hooks is consulted once
// at construction; the returned declarations are immutable afterwards.
type Interceptor interface {
	Hooks() []Hook
}

// HookMode declares, at registration time, whether a hook may replace the
// in-flight query. Requiring the declaration up front keeps chain behavior
// independent of hook ordering accidents.
type HookMode int

const (
	// HookObserve grants read access only. Whatever query an observe hook
	// passes to its continuation is ignored; the chain proceeds with its own
	// current query.
	HookObserve HookMode = iota

	// HookRewrite allows the hook to forward a replacement query, which
	// becomes the current query for the rest of the chain.
	HookRewrite
)

// String returns a human-readable representation of the hook mode.
func (m HookMode) String() string {
	if m == HookRewrite {
		return "rewrite"
	}
	return "observe"
}

// Next is the continue capability handed to every hook. Calling it invokes
// the next hook in resolved order, or the underlying connection at the end of
// the chain. A hook that returns without calling Next short-circuits the
// remainder of the chain.
type Next func(ctx context.Context, query *Query) (*Result, error)

// InterceptFunc is the hook function signature. The query argument is the
// current in-flight query; the returned result flows back up the chain. An
// error aborts the call and propagates to the caller unaltered.
type InterceptFunc func(ctx context.Context, query *Query, next Next) (*Result, error)

// Hook binds an InterceptFunc to one intercepted method with a declared mode.
// A plugin declares one Hook per (method, function) pair; declaring the same
// method twice in one plugin is allowed and runs both hooks in declaration
// order.
type Hook struct {
	Method QueryMethod
	Mode   HookMode
	Fn     InterceptFunc
}

// BasePlugin is an embeddable identity carrier for plugins that do not need
// custom Info logic.
type BasePlugin struct {
	PluginInfo
}

// Info implements the Plugin interface.
func (b BasePlugin) Info() PluginInfo {
	return b.PluginInfo
}
