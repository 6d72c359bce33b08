// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens provides token counting, per-model pricing, and the durable
// token-usage ledger.
//
// # Key Types
//
//   - Usage: cumulative input/output token counters for one model
//   - UsageDatabase: SQLite-backed ledger of cumulative usage per model
//
// Counting is a deterministic estimate: the same message list and model
// always produce the same count. Pricing is a static table; unknown models
// report zero cost rather than an error, so a new model never breaks usage
// reporting.
//
// The ledger is shared by concurrent sessions. Increments are serialized
// through a single upsert statement guarded by a process-level mutex and
// SQLite's own locking, so concurrent flushes never lose updates.
package tokens
