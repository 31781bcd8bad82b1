// Package store persists the kernel's append-only records in SQLite.
//
// Three tables are kept:
//   - history_events: committed historical events, tagged CANON, TEST or DREAM
//   - shadow_entries: rejected command attempts
//   - command_log: every command the authority model executed
//
// Rows are never updated. Triggers reject UPDATE on every table and reject
// DELETE of CANON history; the only deletions are ClearHistoryMode for
// TEST or DREAM and ClearShadow.
//
// # Ordering
//
// Rows are read back in insertion order (the AUTOINCREMENT id), never by
// wall time. An in-memory ledger reset restarts seq numbering but leaves
// the stored rows in place, so seq alone is not a key.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// JSON columns hold canonical JSON produced by internal/canon.
package store
