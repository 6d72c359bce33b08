// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatctx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/chatforge/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnsupportedContextModel indicates an unrecognized context-model
	// name. Construction-time, fatal.
	ErrUnsupportedContextModel = errors.New("unsupported context model")

	// ErrStoreUnavailable indicates the persistent history store cannot be
	// opened or read. Fatal to the current request: losing history context
	// silently would corrupt future responses.
	ErrStoreUnavailable = errors.New("context store unavailable")
)

// =============================================================================
// COST & SELECTION
// =============================================================================

// TokenCost is the token cost of a context operation, split by billing
// direction. Retrieval charges (query embedding) land in Input; history
// registration charges (exchange embedding) land in Output.
type TokenCost struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns input + output.
func (c TokenCost) Total() int {
	return c.Input + c.Output
}

// Selection is the result of a context query: the messages to present
// before the new prompt, in the strategy's chosen order, plus the token
// cost of producing the selection.
type Selection struct {
	Messages []model.Message
	Cost     TokenCost
}

// =============================================================================
// SELECTOR INTERFACE
// =============================================================================

// Selector is a context-handling strategy. Exactly one Selector is bound
// to a session for its lifetime.
type Selector interface {
	// GetContext returns the historical messages to accompany msg.
	GetContext(ctx context.Context, msg model.Message) (Selection, error)

	// AddToHistory appends one (prompt, reply) exchange to the store and
	// returns the token cost incurred (zero for strategies that do no
	// embedding work).
	AddToHistory(ctx context.Context, prompt, reply model.Message) (TokenCost, error)

	// LoadHistory returns the full stored history, oldest first.
	LoadHistory(ctx context.Context) ([]model.Message, error)

	// Close releases the underlying store.
	Close() error
}

// Embedder computes vector embeddings of text through an external call,
// returning the vector and the billed token count.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, int, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Config carries everything a strategy constructor needs.
type Config struct {
	// StorePath is the history database file inside the session cache dir.
	StorePath string

	// ChatModel is the model whose tokenizer prices selected context.
	ChatModel string

	// MaxContextTokens caps the summed token cost of a selection.
	MaxContextTokens int

	// TopK caps the number of exchanges a selection may contain.
	TopK int

	// Embedder is required by the embedding strategy, unused otherwise.
	Embedder Embedder
}

type factory func(Config) (Selector, error)

// registry maps context-model names to strategy constructors. Strategies
// are selected once at construction, not dispatched per call.
var registry = map[string]factory{
	"full-history":           newFullHistory,
	"text-embedding-ada-002": newEmbedding,
	"text-embedding-3-small": newEmbedding,
}

// Supported reports whether name is a recognized context model. Callers
// validate with this before creating any on-disk session state.
func Supported(name string) bool {
	_, ok := registry[name]
	return ok
}

// New constructs the strategy registered under name.
func New(name string, cfg Config) (Selector, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContextModel, name)
	}
	return f(cfg)
}
