// Package audit persists audit runs and their per-step results in SQLite and
// exposes helpers for driving their lifecycle.
//
// The Store manages the database connection, schema migrations, the
// running/completed/failed state machine, idempotent step-result upserts, the
// single-latest-verdict invariant per (case, rubric) pair, and the append-only
// human-review overlay. Audits are soft-deleted only; this package never hard
// deletes a row.
//
// Treat this package as the single source of truth for audit persistence
// semantics; when you add new statuses or columns, add a migration under
// migrations/.
package audit
