// Package kysera provides a plugin composition layer for relational query
// runtimes. Plugins intercept the enumerated query entry points (select,
// insert, update, delete, transaction) through ordered hook chains, with
// lifecycle management, health monitoring, and exactly-once graceful
// shutdown built in.
//
// Key Features:
//   - Deterministic plugin ordering from dependencies, priority, and
//     registration order
//   - Observe and rewrite interception modes with short-circuit support
//   - Transaction sub-handles sharing the parent's plugin order
//   - Init rollback: a failed plugin init tears down its predecessors
//   - Tri-state health checks with probe timeouts and pool metrics
//   - Exactly-once shutdown shared by concurrent callers
//   - Query tracking with slow query detection and Prometheus export
//   - Configuration hot reload backed by Argus
//
// Basic Usage:
//
//	// Open a connection and build an executor with plugins
//	conn, err := kysera.OpenSQLite("file:app.db", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	db, err := kysera.NewExecutor(ctx, conn, []kysera.Plugin{
//		kysera.NewTrackerPlugin(nil),
//		auditPlugin,
//	}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Destroy(context.Background())
//
//	// Queries thread every registered hook in resolved order
//	result, err := db.Select(ctx, &kysera.Query{
//		Table:     "users",
//		Statement: &kysera.SQLStatement{SQL: "SELECT * FROM users WHERE id = ?", Args: []any{1}},
//	})
//
//	// Transactions expose a sub-handle with the same plugin order
//	err = db.Transaction(ctx, func(ctx context.Context, tx *kysera.Executor) error {
//		_, err := tx.Insert(ctx, insertQuery)
//		return err
//	})
//
// Health and Shutdown:
// CheckDatabaseHealth never returns an error; probe failures and timeouts
// become unhealthy results so monitoring loops stay alive. Destroy runs
// plugin teardown in reverse order and closes the connection bounded by a
// timeout, and concurrent Destroy calls share the first call's outcome.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0
package kysera
