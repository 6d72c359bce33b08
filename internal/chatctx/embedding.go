// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatctx

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/jeranaias/chatforge/internal/model"
	"github.com/jeranaias/chatforge/internal/tokens"
)

// =============================================================================
// EMBEDDING STRATEGY
// =============================================================================

// ErrNoEmbedder indicates the embedding strategy was constructed without
// an embedding client.
var ErrNoEmbedder = errors.New("embedding context strategy requires an embedder")

// Embedding retrieves the most similar stored exchanges for each prompt.
//
// Every committed exchange is embedded and persisted; at query time the
// incoming message is embedded and a full cosine-similarity scan selects
// up to TopK exchanges in descending similarity order, stopping before
// the summed token cost of the selection would exceed the budget.
type Embedding struct {
	store     lazyStore
	embedder  Embedder
	chatModel string
	budget    int
	topK      int
}

func newEmbedding(cfg Config) (Selector, error) {
	if cfg.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	return &Embedding{
		store:     lazyStore{path: cfg.StorePath},
		embedder:  cfg.Embedder,
		chatModel: cfg.ChatModel,
		budget:    cfg.MaxContextTokens,
		topK:      cfg.TopK,
	}, nil
}

// GetContext embeds msg and returns the most similar stored exchanges,
// flattened in similarity order (not chronological order). An empty store
// yields an empty selection at zero cost: no embedding call is made.
func (e *Embedding) GetContext(ctx context.Context, msg model.Message) (Selection, error) {
	store, err := e.store.get()
	if err != nil {
		return Selection{}, err
	}
	n, err := store.Count(ctx)
	if err != nil {
		return Selection{}, err
	}
	if n == 0 {
		return Selection{}, nil
	}

	query, queryTokens, err := e.embedder.Embed(ctx, msg.Content)
	if err != nil {
		return Selection{}, err
	}
	cost := TokenCost{Input: queryTokens}

	all, err := store.All(ctx)
	if err != nil {
		return Selection{}, err
	}

	type scored struct {
		exchange model.Exchange
		score    float64
	}
	ranked := make([]scored, 0, len(all))
	for _, stored := range all {
		ranked = append(ranked, scored{
			exchange: stored.Exchange,
			score:    cosineSimilarity(query, stored.Embedding),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	// Greedy selection in descending similarity: stop at the first
	// exchange that would push the selection past the token budget.
	var selected []model.Exchange
	used := 0
	for _, r := range ranked {
		if len(selected) >= e.topK {
			break
		}
		need := tokens.CountMessages(r.exchange.Messages(), e.chatModel)
		if used+need > e.budget {
			break
		}
		used += need
		selected = append(selected, r.exchange)
	}

	return Selection{Messages: model.Flatten(selected), Cost: cost}, nil
}

// AddToHistory embeds the concatenated exchange text, persists the entry
// with its vector, and returns the embedding-call token cost.
func (e *Embedding) AddToHistory(ctx context.Context, prompt, reply model.Message) (TokenCost, error) {
	store, err := e.store.get()
	if err != nil {
		return TokenCost{}, err
	}
	exchange := model.Exchange{Prompt: prompt, Reply: reply}

	vector, embedTokens, err := e.embedder.Embed(ctx, exchange.Text())
	if err != nil {
		return TokenCost{}, err
	}

	err = store.Append(ctx, StoredExchange{
		Exchange:    exchange,
		Embedding:   vector,
		EmbedTokens: embedTokens,
	})
	if err != nil {
		return TokenCost{}, err
	}
	return TokenCost{Output: embedTokens}, nil
}

// LoadHistory returns the full stored history in chronological order.
func (e *Embedding) LoadHistory(ctx context.Context) ([]model.Message, error) {
	store, err := e.store.get()
	if err != nil {
		return nil, err
	}
	all, err := store.All(ctx)
	if err != nil {
		return nil, err
	}
	exchanges := make([]model.Exchange, len(all))
	for i, stored := range all {
		exchanges[i] = stored.Exchange
	}
	return model.Flatten(exchanges), nil
}

// Close releases the underlying store.
func (e *Embedding) Close() error {
	return e.store.Close()
}

// =============================================================================
// SIMILARITY
// =============================================================================

// cosineSimilarity computes the cosine similarity of two vectors.
// Mismatched or zero-length vectors score zero rather than erroring; a
// corrupt row should rank last, not break retrieval.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
