// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/chatforge/internal/chatctx"
	"github.com/jeranaias/chatforge/internal/cloud"
	"github.com/jeranaias/chatforge/internal/config"
	"github.com/jeranaias/chatforge/internal/model"
	"github.com/jeranaias/chatforge/internal/tokens"
	"github.com/jeranaias/chatforge/internal/util"
)

// EmbeddingsFileName is the per-session history store inside the cache dir.
const EmbeddingsFileName = "embeddings.db"

// UsageScope selects which ledger ReportUsage reads.
type UsageScope int

const (
	// ScopeSession reports the in-memory counters of this session only.
	ScopeSession UsageScope = iota
	// ScopeAllTime reports the durable cross-session ledger.
	ScopeAllTime
)

// =============================================================================
// CHAT
// =============================================================================

// Chat manages one conversation with the chat model.
type Chat struct {
	// ID is the session identity, regenerated for every construction
	// (including construction from a cached directory).
	ID uuid.UUID

	opts     *config.ChatOptions
	cacheDir string
	client   *cloud.Client
	selector chatctx.Selector
	ledger   *tokens.UsageDatabase

	mu             sync.Mutex
	usage          map[string]*tokens.Usage
	metadata       map[string]any
	metadataLoaded bool

	closeOnce sync.Once
}

// New creates a chat session from opts. A nil opts means defaults.
//
// The context strategy is bound here: an unrecognized context-model name
// fails with chatctx.ErrUnsupportedContextModel before any cache
// directory or file is created.
func New(opts *config.ChatOptions) (*Chat, error) {
	if opts == nil {
		opts = config.Default()
	} else {
		opts = opts.Clone()
	}
	opts.Validate()

	if !chatctx.Supported(opts.ContextModel) {
		return nil, fmt.Errorf("%w: %q", chatctx.ErrUnsupportedContextModel, opts.ContextModel)
	}

	id := uuid.New()
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(config.CacheRoot(), "chat_"+id.String())
		opts.CacheDir = cacheDir
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	client := cloud.NewClient(opts.APIKey, opts.BaseURL)

	selector, err := chatctx.New(opts.ContextModel, chatctx.Config{
		StorePath:        filepath.Join(cacheDir, EmbeddingsFileName),
		ChatModel:        opts.Model,
		MaxContextTokens: opts.MaxContextTokens,
		TopK:             opts.ContextTopK,
		Embedder:         &clientEmbedder{client: client, model: opts.ContextModel},
	})
	if err != nil {
		return nil, err
	}

	ledger, err := tokens.OpenUsageDatabase(opts.TokenUsageDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage ledger: %w", err)
	}

	c := &Chat{
		ID:       id,
		opts:     opts,
		cacheDir: cacheDir,
		client:   client,
		selector: selector,
		ledger:   ledger,
		usage:    make(map[string]*tokens.Usage),
	}
	// Pre-create both counters so teardown flushes a row for each model
	// even when the session used no tokens.
	c.usage[opts.Model] = &tokens.Usage{}
	c.usage[opts.ContextModel] = &tokens.Usage{}
	return c, nil
}

// FromCache reconstructs a session from an existing cache directory.
// A missing or malformed configs.json falls back to defaults; this
// constructor never fails because of cache contents.
func FromCache(cacheDir string) (*Chat, error) {
	opts := config.LoadCached(cacheDir)
	opts.CacheDir = cacheDir
	return New(opts)
}

// Options returns the session's configuration snapshot.
func (c *Chat) Options() *config.ChatOptions {
	return c.opts
}

// CacheDir returns the session's cache directory.
func (c *Chat) CacheDir() string {
	return c.cacheDir
}

// InitialGreeting returns the assistant's opening line.
func (c *Chat) InitialGreeting() string {
	return fmt.Sprintf("Hello! I'm %s. How can I assist you today?", c.opts.AssistantName)
}

// ConnectionErrorMessage is shown to the user when the upstream API call
// fails; the raw error goes to the log, not the conversation.
func (c *Chat) ConnectionErrorMessage() string {
	return fmt.Sprintf("Sorry, I'm having trouble communicating with the chat API. "+
		"Please check the validity of your API key and your network connection, "+
		"then try again. (endpoint: %s)", c.opts.BaseURL)
}

// =============================================================================
// BASE DIRECTIVE
// =============================================================================

// BaseDirective returns the system message that always opens the
// assembled request: identity, audience, configured instructions, and the
// authority line.
func (c *Chat) BaseDirective() model.Message {
	instructions := make([]string, 0, len(c.opts.AIInstructions))
	for _, instruction := range c.opts.AIInstructions {
		instruction = strings.Trim(instruction, " .")
		if instruction != "" {
			instructions = append(instructions, instruction+".")
		}
	}

	parts := []string{
		fmt.Sprintf("You are %s (model %s).", c.opts.AssistantName, c.opts.Model),
		fmt.Sprintf("You are a helpful assistant to %s.", c.opts.Username),
		strings.Join(instructions, " "),
		fmt.Sprintf("You must remember and follow all directives by %s.", c.opts.SystemName),
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(p))
		}
	}
	return model.NewSystemMessage(c.opts.SystemName, strings.Join(nonEmpty, " "))
}

// =============================================================================
// HISTORY & USAGE
// =============================================================================

// LoadHistory returns the session's stored history, oldest first.
func (c *Chat) LoadHistory(ctx context.Context) ([]model.Message, error) {
	return c.selector.LoadHistory(ctx)
}

// addUsage folds a token delta into the in-memory counters for modelName.
func (c *Chat) addUsage(modelName string, input, output int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.usage[modelName]
	if !ok {
		u = &tokens.Usage{}
		c.usage[modelName] = u
	}
	u.Add(input, output)
}

// UsageSnapshot returns a copy of the session's in-memory usage counters.
func (c *Chat) UsageSnapshot() map[string]tokens.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(map[string]tokens.Usage, len(c.usage))
	for m, u := range c.usage {
		snap[m] = *u
	}
	return snap
}

// ReportUsage renders token usage and cost, either for this session's
// in-memory counters or for the durable all-time ledger.
func (c *Chat) ReportUsage(scope UsageScope) (string, error) {
	switch scope {
	case ScopeSession:
		return tokens.FormatReport("Token usage (current session)", c.UsageSnapshot()), nil
	case ScopeAllTime:
		all, err := c.ledger.All()
		if err != nil {
			return "", fmt.Errorf("failed to read usage ledger: %w", err)
		}
		return tokens.FormatReport("Token usage (all time)", all), nil
	default:
		return "", fmt.Errorf("unknown usage scope %d", scope)
	}
}

// =============================================================================
// METADATA
// =============================================================================

// Metadata returns the session metadata, loading metadata.json on first
// call. A missing or malformed file yields an empty map.
func (c *Chat) Metadata() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureMetadataLocked()
	return c.metadata
}

// SetMetadata stores a metadata value, persisted at teardown.
func (c *Chat) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureMetadataLocked()
	c.metadata[key] = value
}

func (c *Chat) ensureMetadataLocked() {
	if c.metadataLoaded {
		return
	}
	c.metadataLoaded = true
	c.metadata = map[string]any{}

	data, err := os.ReadFile(filepath.Join(c.cacheDir, config.MetadataFileName))
	if err != nil {
		return
	}
	var loaded map[string]any
	if err := json.Unmarshal(data, &loaded); err != nil {
		return
	}
	c.metadata = loaded
}

// =============================================================================
// TEARDOWN
// =============================================================================

// Close tears the session down. Safe to call more than once; only the
// first call acts. It never returns an error: teardown problems are
// logged and swallowed so they cannot prevent process exit.
//
// Order matters: usage is flushed to the durable ledger first (zero rows
// included), then the cache directory is either cleared (private mode or
// nothing persisted) or the configuration and metadata are written.
func (c *Chat) Close() error {
	c.closeOnce.Do(c.teardown)
	return nil
}

func (c *Chat) teardown() {
	for _, m := range c.flushModels() {
		u := c.usageFor(m)
		if err := c.ledger.Insert(m, u.Input, u.Output); err != nil {
			log.Printf("session: usage flush failed model=%s: %v", m, err)
		}
	}

	if err := c.selector.Close(); err != nil {
		log.Printf("session: context store close failed: %v", err)
	}

	if c.opts.PrivateMode || c.cacheDirEmpty() {
		// Best-effort recursive delete; a missing directory is fine.
		if err := os.RemoveAll(c.cacheDir); err != nil {
			log.Printf("session: cache clear failed: %v", err)
		}
	} else {
		if err := c.opts.SaveCached(c.cacheDir); err != nil {
			log.Printf("session: config persist failed: %v", err)
		}
		if err := c.saveMetadata(); err != nil {
			log.Printf("session: metadata persist failed: %v", err)
		}
	}

	if err := c.ledger.Close(); err != nil {
		log.Printf("session: usage ledger close failed: %v", err)
	}
}

// flushModels returns the models whose usage rows must exist after
// teardown: the chat model and the context model, deduplicated.
func (c *Chat) flushModels() []string {
	if c.opts.Model == c.opts.ContextModel {
		return []string{c.opts.Model}
	}
	return []string{c.opts.Model, c.opts.ContextModel}
}

func (c *Chat) usageFor(modelName string) tokens.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.usage[modelName]; ok {
		return *u
	}
	return tokens.Usage{}
}

// cacheDirEmpty reports whether the cache directory holds no files. A
// directory that no longer exists counts as empty, which keeps a second
// teardown from resurrecting it.
func (c *Chat) cacheDirEmpty() bool {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		return true
	}
	return len(entries) == 0
}

func (c *Chat) saveMetadata() error {
	c.mu.Lock()
	c.ensureMetadataLocked()
	data, err := json.MarshalIndent(c.metadata, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(filepath.Join(c.cacheDir, config.MetadataFileName), data, 0600)
}

// =============================================================================
// EMBEDDER ADAPTER
// =============================================================================

// clientEmbedder adapts the cloud client to the chatctx.Embedder
// interface, pinning the embedding model name.
type clientEmbedder struct {
	client *cloud.Client
	model  string
}

func (e *clientEmbedder) Embed(ctx context.Context, text string) ([]float32, int, error) {
	result, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, 0, err
	}
	return result.Vector, result.PromptTokens, nil
}
