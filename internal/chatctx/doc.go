// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatctx decides which historical conversation turns accompany a
// new prompt.
//
// # Key Types
//
//   - Selector: the context strategy interface, bound once per session
//   - FullHistory: returns the entire stored history, oldest first
//   - Embedding: similarity retrieval over embedded exchanges under a
//     token budget
//   - Store: append-only SQLite history store, one file per session cache
//     directory
//
// A strategy is selected at session construction through the registry
// (New); an unrecognized context-model name is a construction-time error,
// surfaced before the session creates any on-disk state.
package chatctx
