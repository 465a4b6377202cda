// interceptor.go: Ordered hook chains around the intercepted query methods
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
)

// terminalFunc is the real underlying operation at the end of a chain. The
// executor supplies it per call, so one immutable chain serves both the
// root handle and every transaction sub-handle.
type terminalFunc func(ctx context.Context, query *Query) (*Result, error)

// boundHook is one hook declaration bound to its owning plugin, fixed in
// resolved order at construction time.
type boundHook struct {
	pluginName string
	mode       HookMode
	fn         InterceptFunc
}

// methodChain is the immutable hook sequence for one intercepted method.
//
// Invocation walks the hooks by index: each hook receives a continue
// capability that advances the cursor, and not calling it short-circuits the
// rest of the chain. Hook errors abort the walk and propagate to the caller
// unaltered - the chain never wraps, retries, or swallows them, and no later
// hook runs after a failure.
type methodChain struct {
	method QueryMethod
	hooks  []boundHook
}

// buildChains assembles one chain per intercepted method from the resolved
// plugin records. Hook order inside a chain follows the resolved plugin
// order, and declaration order within a single plugin.
func buildChains(records []*pluginRecord) (map[QueryMethod]*methodChain, error) {
	chains := make(map[QueryMethod]*methodChain, len(InterceptedMethods()))
	for _, method := range InterceptedMethods() {
		chains[method] = &methodChain{method: method}
	}

	for _, record := range records {
		for _, hook := range record.hooks {
			if !hook.Method.IsValid() || hook.Fn == nil {
				return nil, NewInvalidHookError(record.info.Name, hook.Method)
			}
			chain := chains[hook.Method]
			chain.hooks = append(chain.hooks, boundHook{
				pluginName: record.info.Name,
				mode:       hook.Mode,
				fn:         hook.Fn,
			})
		}
	}

	return chains, nil
}

// Invoke threads a query through the chain and finally into terminal.
func (c *methodChain) Invoke(ctx context.Context, query *Query, terminal terminalFunc) (*Result, error) {
	cursor := &chainCursor{chain: c, terminal: terminal}
	return cursor.dispatch(ctx, 0, query)
}

// chainCursor carries one in-flight traversal: the chain being walked and its
// terminal operation. The position travels as an explicit index so
// short-circuiting and error propagation stay obvious.
type chainCursor struct {
	chain    *methodChain
	terminal terminalFunc
}

// dispatch runs the hook at index, or the terminal operation past the end.
func (cc *chainCursor) dispatch(ctx context.Context, index int, query *Query) (*Result, error) {
	if index >= len(cc.chain.hooks) {
		return cc.terminal(ctx, query)
	}

	entry := cc.chain.hooks[index]
	next := func(nextCtx context.Context, forwarded *Query) (*Result, error) {
		// Observe-mode hooks cannot steer the chain: their forwarded query is
		// ignored and the current one continues. A nil forward from a rewrite
		// hook keeps the current query too.
		if entry.mode != HookRewrite || forwarded == nil {
			forwarded = query
		}
		return cc.dispatch(nextCtx, index+1, forwarded)
	}

	return entry.fn(ctx, query, next)
}

// Len reports how many hooks the chain holds.
func (c *methodChain) Len() int {
	return len(c.hooks)
}
