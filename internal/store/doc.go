// Package store provides SQLite-backed durable storage for committed
// host transactions.
//
// The store is an append-only log with:
//   - Transactions: one row per committed transaction, in commit order
//   - Events: engine events, content-addressed by ir.EventID
//   - Permission changes: grants and revokes applied to the registry
//   - Engine snapshots: versioned sale.Snapshot JSON
//
// # Ordering
//
// Transactions are numbered by commit order (commit_seq). Every listing
// orders by commit_seq ASC, then seq ASC within a transaction, so reads
// are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Event payloads are stored as RFC 8785 canonical JSON so that stored IDs
// can be recomputed and verified.
package store
