// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// EMBEDDINGS
// =============================================================================

// ErrEmptyEmbedding indicates the API returned no embedding vector.
var ErrEmptyEmbedding = errors.New("empty embedding response")

// EmbeddingResult holds the vector and the billed token count of one
// embedding call.
type EmbeddingResult struct {
	Vector       []float32
	PromptTokens int
}

// embeddingRequest is the wire format of an /embeddings request.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse is the wire format of an /embeddings response.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed computes the embedding vector of text using modelName.
// Transient failures are retried with backoff (the call is idempotent,
// unlike streaming chat).
func (c *Client) Embed(ctx context.Context, modelName, text string) (*EmbeddingResult, error) {
	var resp embeddingResponse
	err := c.postJSON(ctx, "/embeddings", embeddingRequest{Model: modelName, Input: text}, &resp)
	if err != nil {
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return &EmbeddingResult{
		Vector:       resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
	}, nil
}
