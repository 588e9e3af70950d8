// Package store provides SQLite-backed storage for the query engine.
//
// The store owns the physical side of the schema registry's logical
// metadata: it materializes one table per entity, indexes the columns
// joins traverse, and seeds fixture rows for tests and the CLI. The
// engine itself never opens connections; it executes against whatever
// Querier it is handed, and Store.DB is the usual source.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The connection pool is pinned to a single connection because SQLite
// allows one writer at a time; the two-phase executor's consistency
// expectations are also simplest to reason about on one connection.
package store
