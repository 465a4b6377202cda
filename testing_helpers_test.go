// testing_helpers_test.go: Shared test doubles for the composition layer
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/agilira/go-errors"
)

// requireErrorCode asserts err carries the given structured error code and
// returns the structured error for context inspection.
func requireErrorCode(t *testing.T, err error, code string) *errors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	var structured *errors.Error
	if !stderrors.As(err, &structured) {
		t.Fatalf("expected structured error with code %s, got %T: %v", code, err, err)
	}
	if structured.ErrorCode() != errors.ErrorCode(code) {
		t.Fatalf("expected error code %s, got %s (error: %v)", code, structured.ErrorCode(), err)
	}
	return structured
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// journal records lifecycle events across goroutines in call order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

// fakeConn is a scriptable Connection. The zero value succeeds at everything
// instantly; failures and delays are injected through the setters so tests
// stay race-free.
type fakeConn struct {
	mu sync.Mutex

	runs      []*Query
	runErr    error
	runResult *Result

	probes     int
	probeErr   error
	probeDelay time.Duration

	begins   int
	beginErr error
	txs      []*fakeTx

	txRunErr      error
	txCommitErr   error
	txRollbackErr error

	closes     int
	closeErr   error
	closeDelay time.Duration
}

func (c *fakeConn) Run(ctx context.Context, query *Query) (*Result, error) {
	c.mu.Lock()
	c.runs = append(c.runs, query)
	runErr, runResult := c.runErr, c.runResult
	c.mu.Unlock()

	if runErr != nil {
		return nil, runErr
	}
	if runResult != nil {
		return runResult, nil
	}
	return &Result{}, nil
}

func (c *fakeConn) Probe(ctx context.Context) error {
	c.mu.Lock()
	c.probes++
	probeErr, probeDelay := c.probeErr, c.probeDelay
	c.mu.Unlock()

	if probeDelay > 0 {
		select {
		case <-time.After(probeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return probeErr
}

func (c *fakeConn) Begin(ctx context.Context) (Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	c.begins++
	tx := &fakeTx{
		runErr:      c.txRunErr,
		commitErr:   c.txCommitErr,
		rollbackErr: c.txRollbackErr,
	}
	c.txs = append(c.txs, tx)
	return tx, nil
}

// Close ignores ctx so a configured delay behaves like a stuck driver.
func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	closeErr, closeDelay := c.closeErr, c.closeDelay
	c.mu.Unlock()

	if closeDelay > 0 {
		time.Sleep(closeDelay)
	}

	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return closeErr
}

func (c *fakeConn) queries() []*Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Query, len(c.runs))
	copy(out, c.runs)
	return out
}

func (c *fakeConn) probeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probes
}

func (c *fakeConn) beginCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.begins
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) lastTx() *fakeTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.txs) == 0 {
		return nil
	}
	return c.txs[len(c.txs)-1]
}

func (c *fakeConn) setRunErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runErr = err
}

func (c *fakeConn) setProbeErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeErr = err
}

func (c *fakeConn) setCloseErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

func (c *fakeConn) setCloseDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeDelay = d
}

// fakeTx records the work run against one transaction.
type fakeTx struct {
	mu          sync.Mutex
	runs        []*Query
	runErr      error
	commits     int
	commitErr   error
	rollbacks   int
	rollbackErr error
}

func (t *fakeTx) Run(ctx context.Context, query *Query) (*Result, error) {
	t.mu.Lock()
	t.runs = append(t.runs, query)
	runErr := t.runErr
	t.mu.Unlock()

	if runErr != nil {
		return nil, runErr
	}
	return &Result{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commits++
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return t.rollbackErr
}

func (t *fakeTx) queries() []*Query {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Query, len(t.runs))
	copy(out, t.runs)
	return out
}

func (t *fakeTx) commitCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commits
}

func (t *fakeTx) rollbackCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbacks
}

// statConn layers pool and version capabilities onto fakeConn for health
// check tests.
type statConn struct {
	*fakeConn
	pool       PoolMetrics
	version    string
	versionErr error
}

func (c *statConn) PoolMetrics() PoolMetrics {
	return c.pool
}

func (c *statConn) DatabaseVersion(ctx context.Context) (string, error) {
	if c.versionErr != nil {
		return "", c.versionErr
	}
	return c.version, nil
}

// namedPlugin implements Plugin and nothing else.
type namedPlugin struct {
	info PluginInfo
}

func (p *namedPlugin) Info() PluginInfo {
	return p.info
}

func plain(name string, priority int, deps ...string) *namedPlugin {
	return &namedPlugin{info: PluginInfo{Name: name, Priority: priority, DependsOn: deps}}
}

// testPlugin journals its lifecycle calls and serves scripted hooks. It
// implements Initializer, Finalizer and Interceptor.
type testPlugin struct {
	info       PluginInfo
	journal    *journal
	initErr    error
	destroyErr error
	hooks      []Hook
}

func newTestPlugin(j *journal, name string, priority int, deps ...string) *testPlugin {
	return &testPlugin{
		info:    PluginInfo{Name: name, Version: "1.0.0", Priority: priority, DependsOn: deps},
		journal: j,
	}
}

func (p *testPlugin) Info() PluginInfo {
	return p.info
}

func (p *testPlugin) Init(db *Executor) error {
	p.journal.add("init:" + p.info.Name)
	return p.initErr
}

func (p *testPlugin) Destroy(ctx context.Context) error {
	p.journal.add("destroy:" + p.info.Name)
	return p.destroyErr
}

func (p *testPlugin) Hooks() []Hook {
	return p.hooks
}

// ctxInitPlugin offers context-aware initialization only.
type ctxInitPlugin struct {
	info    PluginInfo
	journal *journal
	initErr error
}

func (p *ctxInitPlugin) Info() PluginInfo {
	return p.info
}

func (p *ctxInitPlugin) InitContext(ctx context.Context, db *Executor) error {
	p.journal.add("initctx:" + p.info.Name)
	return p.initErr
}

// dualInitPlugin offers both initialization flavors.
type dualInitPlugin struct {
	testPlugin
}

func (p *dualInitPlugin) InitContext(ctx context.Context, db *Executor) error {
	p.journal.add("initctx:" + p.info.Name)
	return p.initErr
}
