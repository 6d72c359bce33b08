// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat session,
// context selection, and token accounting packages.
//
// # Key Types
//
//   - Role: the sender of a message (system, user, assistant)
//   - Message: a single immutable chat message
//   - Exchange: one committed (prompt, reply) pair
//
// Messages are plain values. Once constructed they are never mutated;
// streaming accumulation happens in the session package, and a Message is
// only created from the full accumulated reply.
package model
