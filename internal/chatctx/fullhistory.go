// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatctx

import (
	"context"

	"github.com/jeranaias/chatforge/internal/model"
)

// =============================================================================
// FULL-HISTORY STRATEGY
// =============================================================================

// FullHistory presents the entire stored history as context for every
// prompt, oldest first. No embedding work is done: retrieval and
// registration both cost zero tokens.
type FullHistory struct {
	store lazyStore
}

func newFullHistory(cfg Config) (Selector, error) {
	return &FullHistory{store: lazyStore{path: cfg.StorePath}}, nil
}

// GetContext returns all previously stored exchanges, flattened into a
// single message sequence in chronological order. The incoming message is
// not consulted.
func (f *FullHistory) GetContext(ctx context.Context, _ model.Message) (Selection, error) {
	store, err := f.store.get()
	if err != nil {
		return Selection{}, err
	}
	all, err := store.All(ctx)
	if err != nil {
		return Selection{}, err
	}
	exchanges := make([]model.Exchange, len(all))
	for i, e := range all {
		exchanges[i] = e.Exchange
	}
	return Selection{Messages: model.Flatten(exchanges)}, nil
}

// AddToHistory appends the pair verbatim. Zero token cost.
func (f *FullHistory) AddToHistory(ctx context.Context, prompt, reply model.Message) (TokenCost, error) {
	store, err := f.store.get()
	if err != nil {
		return TokenCost{}, err
	}
	err = store.Append(ctx, StoredExchange{
		Exchange: model.Exchange{Prompt: prompt, Reply: reply},
	})
	return TokenCost{}, err
}

// LoadHistory returns the full stored history, oldest first.
func (f *FullHistory) LoadHistory(ctx context.Context) ([]model.Message, error) {
	sel, err := f.GetContext(ctx, model.Message{})
	if err != nil {
		return nil, err
	}
	return sel.Messages, nil
}

// Close releases the underlying store if it was ever opened.
func (f *FullHistory) Close() error {
	return f.store.Close()
}
