// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidate(t *testing.T) {
	opts := Default()
	opts.Validate()

	if opts.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", opts.Model, DefaultModel)
	}
	if opts.ContextModel != DefaultContextModel {
		t.Errorf("ContextModel = %q, want %q", opts.ContextModel, DefaultContextModel)
	}
	if opts.MaxContextTokens != DefaultMaxContextTokens {
		t.Errorf("MaxContextTokens = %d, want %d", opts.MaxContextTokens, DefaultMaxContextTokens)
	}
	if opts.TokenUsageDBPath == "" {
		t.Error("TokenUsageDBPath should be defaulted")
	}
}

func TestValidateFillsAndClamps(t *testing.T) {
	opts := &ChatOptions{
		Model:            "",
		ContextModel:     "  ",
		MaxContextTokens: 1,    // below minimum
		ContextTopK:      1000, // above maximum
	}
	opts.Validate()

	if opts.Model != DefaultModel {
		t.Errorf("empty Model not defaulted: %q", opts.Model)
	}
	if opts.ContextModel != DefaultContextModel {
		t.Errorf("blank ContextModel not defaulted: %q", opts.ContextModel)
	}
	if opts.MaxContextTokens != DefaultMaxContextTokens {
		t.Errorf("out-of-range MaxContextTokens not reset: %d", opts.MaxContextTokens)
	}
	if opts.ContextTopK != maxContextTopK {
		t.Errorf("ContextTopK not clamped: %d", opts.ContextTopK)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
model = "gpt-4"
context_model = "text-embedding-ada-002"
assistant_name = "Ada"
ai_instructions = ["be brief", "be kind"]
private_mode = true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if opts.Model != "gpt-4" {
		t.Errorf("Model = %q", opts.Model)
	}
	if opts.ContextModel != "text-embedding-ada-002" {
		t.Errorf("ContextModel = %q", opts.ContextModel)
	}
	if opts.AssistantName != "Ada" {
		t.Errorf("AssistantName = %q", opts.AssistantName)
	}
	if len(opts.AIInstructions) != 2 {
		t.Errorf("AIInstructions = %v", opts.AIInstructions)
	}
	if !opts.PrivateMode {
		t.Error("PrivateMode should be true")
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if opts.Model != DefaultModel {
		t.Errorf("Model = %q, want default", opts.Model)
	}
}

func TestLoadMalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("model = ["), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed hand-written config should error")
	}
}

func TestCachedRoundTrip(t *testing.T) {
	dir := t.TempDir()

	opts := Default()
	opts.Model = "gpt-4"
	opts.ContextModel = "full-history"
	opts.AssistantName = "Ada"
	opts.Username = "grace"
	opts.AIInstructions = []string{"be brief"}
	opts.CacheDir = dir
	opts.PrivateMode = false
	opts.Validate()

	if err := opts.SaveCached(dir); err != nil {
		t.Fatalf("SaveCached failed: %v", err)
	}

	loaded := LoadCached(dir)
	if loaded.Model != opts.Model ||
		loaded.ContextModel != opts.ContextModel ||
		loaded.AssistantName != opts.AssistantName ||
		loaded.Username != opts.Username ||
		loaded.CacheDir != opts.CacheDir ||
		loaded.MaxContextTokens != opts.MaxContextTokens ||
		loaded.ContextTopK != opts.ContextTopK {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, opts)
	}
	if len(loaded.AIInstructions) != 1 || loaded.AIInstructions[0] != "be brief" {
		t.Errorf("AIInstructions = %v", loaded.AIInstructions)
	}
}

func TestLoadCachedMalformedFallsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigsFileName), []byte("{nope"), 0600); err != nil {
		t.Fatal(err)
	}

	opts := LoadCached(dir)
	if opts.Model != DefaultModel {
		t.Errorf("malformed cache should fall back to defaults, got Model=%q", opts.Model)
	}
}

func TestAPIKeyNotPersisted(t *testing.T) {
	dir := t.TempDir()
	opts := Default()
	opts.APIKey = "sk-secret"
	if err := opts.SaveCached(dir); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ConfigsFileName))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("API key must never be written to configs.json")
	}
}
