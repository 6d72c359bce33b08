// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatforge/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-3.5-turbo"

	// DefaultContextModel selects the full-history context strategy.
	DefaultContextModel = "full-history"

	// EmbeddingContextModel is the embedding model name that selects the
	// similarity-retrieval context strategy.
	EmbeddingContextModel = "text-embedding-ada-002"

	// DefaultMaxContextTokens caps the token budget of retrieved context.
	DefaultMaxContextTokens = 2048

	// DefaultContextTopK is the maximum number of history exchanges the
	// embedding strategy will retrieve per prompt.
	DefaultContextTopK = 8

	// ConfigsFileName is the per-session options cache inside the cache dir.
	ConfigsFileName = "configs.json"

	// MetadataFileName is the per-session metadata cache inside the cache dir.
	MetadataFileName = "metadata.json"
)

// Limits applied by Validate. Values outside these bounds are clamped.
const (
	minContextTokens = 64
	maxContextTokens = 128 * 1024
	maxContextTopK   = 64
)

// ErrUnreadableConfig indicates the config file exists but cannot be parsed.
var ErrUnreadableConfig = errors.New("unreadable config file")

// =============================================================================
// CHAT OPTIONS
// =============================================================================

// ChatOptions holds the full configuration of a chat session.
//
// The struct is constructed once and held by reference for the session's
// lifetime; nothing enumerates fields at runtime.
type ChatOptions struct {
	// Model is the chat completion model.
	Model string `toml:"model" json:"model"`
	// ContextModel selects the context strategy: "full-history" or an
	// embedding model name (see EmbeddingContextModel).
	ContextModel string `toml:"context_model" json:"context_model"`

	// Identity presented in the base directive.
	AssistantName string `toml:"assistant_name" json:"assistant_name"`
	Username      string `toml:"username" json:"username"`
	SystemName    string `toml:"system_name" json:"system_name"`

	// AIInstructions are extra directives folded into the base directive.
	AIInstructions []string `toml:"ai_instructions" json:"ai_instructions"`

	// CacheDir is the session cache directory. Empty means a fresh
	// chat_<uuid> directory under CacheRoot().
	CacheDir string `toml:"cache_dir" json:"cache_dir"`

	// PrivateMode discards all session artifacts on teardown.
	PrivateMode bool `toml:"private_mode" json:"private_mode"`

	// TokenUsageDBPath is the durable token-usage ledger, shared across
	// sessions. Empty means UsageDatabasePath().
	TokenUsageDBPath string `toml:"token_usage_db_path" json:"token_usage_db_path"`

	// Embedding-strategy tuning.
	MaxContextTokens int `toml:"max_context_tokens" json:"max_context_tokens"`
	ContextTopK      int `toml:"context_top_k" json:"context_top_k"`

	// API access. The key is taken from the environment when empty and is
	// never written to the per-session configs.json.
	APIKey  string `toml:"api_key" json:"-"`
	BaseURL string `toml:"base_url" json:"base_url"`
}

// Default returns a ChatOptions populated with built-in defaults.
func Default() *ChatOptions {
	username := "user"
	if u := os.Getenv("USER"); u != "" {
		username = u
	}
	return &ChatOptions{
		Model:            DefaultModel,
		ContextModel:     DefaultContextModel,
		AssistantName:    "Rob",
		Username:         username,
		SystemName:       "chatforge",
		AIInstructions:   nil,
		MaxContextTokens: DefaultMaxContextTokens,
		ContextTopK:      DefaultContextTopK,
		BaseURL:          "https://api.openai.com/v1",
	}
}

// Validate fills omitted fields with defaults and clamps out-of-range
// numeric values. It never rejects a config; the session layer decides
// whether the context model name is actually supported.
func (o *ChatOptions) Validate() {
	def := Default()
	if strings.TrimSpace(o.Model) == "" {
		o.Model = def.Model
	}
	if strings.TrimSpace(o.ContextModel) == "" {
		o.ContextModel = def.ContextModel
	}
	if strings.TrimSpace(o.AssistantName) == "" {
		o.AssistantName = def.AssistantName
	}
	if strings.TrimSpace(o.Username) == "" {
		o.Username = def.Username
	}
	if strings.TrimSpace(o.SystemName) == "" {
		o.SystemName = def.SystemName
	}
	if strings.TrimSpace(o.BaseURL) == "" {
		o.BaseURL = def.BaseURL
	}
	if strings.TrimSpace(o.TokenUsageDBPath) == "" {
		o.TokenUsageDBPath = UsageDatabasePath()
	}
	if o.MaxContextTokens < minContextTokens {
		o.MaxContextTokens = def.MaxContextTokens
	}
	if o.MaxContextTokens > maxContextTokens {
		o.MaxContextTokens = maxContextTokens
	}
	if o.ContextTopK < 1 {
		o.ContextTopK = def.ContextTopK
	}
	if o.ContextTopK > maxContextTopK {
		o.ContextTopK = maxContextTopK
	}
	if o.APIKey == "" {
		o.APIKey = apiKeyFromEnv()
	}
}

// Clone returns a deep copy of the options.
func (o *ChatOptions) Clone() *ChatOptions {
	dup := *o
	if o.AIInstructions != nil {
		dup.AIInstructions = append([]string(nil), o.AIInstructions...)
	}
	return &dup
}

func apiKeyFromEnv() string {
	for _, name := range []string{"CHATFORGE_API_KEY", "OPENAI_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// PATHS
// =============================================================================

// AppDir returns the application data directory (~/.chatforge).
func AppDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to the working directory; callers treat the result as
		// best-effort.
		return ".chatforge"
	}
	return filepath.Join(home, ".chatforge")
}

// CacheRoot returns the directory that holds per-session cache directories.
func CacheRoot() string {
	return filepath.Join(AppDir(), "chat_cache")
}

// UsageDatabasePath returns the path of the durable token-usage ledger.
func UsageDatabasePath() string {
	return filepath.Join(AppDir(), "token_usage.db")
}

// DefaultConfigPath returns the user-level TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(AppDir(), "config.toml")
}

// =============================================================================
// LOADING & SAVING
// =============================================================================

// Load reads options from path, which may be a TOML or JSON file (decided by
// extension, TOML by default). A missing file yields defaults; a malformed
// file is an error so the user notices a broken config they wrote by hand.
func Load(path string) (*ChatOptions, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableConfig, path, err)
		}
	} else {
		if err := toml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableConfig, path, err)
		}
	}

	opts.Validate()
	return opts, nil
}

// LoadCached reads the per-session configs.json from a cache directory.
//
// A missing or malformed file is treated as absence: defaults are returned
// and the session proceeds (the cache may predate a format change).
func LoadCached(cacheDir string) *ChatOptions {
	opts := Default()

	data, err := os.ReadFile(filepath.Join(cacheDir, ConfigsFileName))
	if err != nil {
		return opts
	}
	if err := json.Unmarshal(data, opts); err != nil {
		return Default()
	}

	opts.Validate()
	return opts
}

// SaveCached writes the options as configs.json into the cache directory.
// The write is atomic so teardown never leaves a half-written cache.
func (o *ChatOptions) SaveCached(cacheDir string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	return util.AtomicWriteFile(filepath.Join(cacheDir, ConfigsFileName), data, 0600)
}
