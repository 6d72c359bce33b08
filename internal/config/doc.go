// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatforge.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration sources (in order of precedence):
//   - Explicit values passed by the caller (CLI flags)
//   - ~/.chatforge/config.toml
//   - Built-in defaults
//
// A session additionally persists its effective options as configs.json in
// its cache directory, so a later run can reconstruct an equivalent session
// from the directory alone.
package config
