// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the conversational session: identity,
// configuration, the request/response cycle, and teardown.
//
// # Key Types
//
//   - Chat: one session against the chat API, with a bound context
//     strategy, a cache directory, and in-memory token-usage counters
//   - ReplyStream: single-pass stream of reply fragments; accounting and
//     the history commit run only after the stream is fully drained
//
// # Lifecycle
//
// A Chat is created with New (or FromCache) and must be released with
// Close on every exit path. Close is idempotent: it flushes token usage
// to the durable ledger, then either clears the cache directory (private
// mode, or nothing was persisted) or writes configs.json and
// metadata.json. Teardown failures are logged, never propagated.
package session
