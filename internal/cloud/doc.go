// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the client for OpenAI-compatible chat APIs.
//
// # Key Types
//
//   - Client: HTTP client with TLS 1.2+, retry, and rate limiting
//   - ChatMessage: wire-format chat message
//   - Stream: pull-based reader over a streaming chat completion
//   - EmbeddingResult: vector plus billed token count from /embeddings
//
// # Usage
//
// Create a client and stream a chat completion:
//
//	client := cloud.NewClient(apiKey, baseURL)
//	stream, err := client.ChatStream(ctx, "gpt-4o-mini", messages)
//	for {
//	    fragment, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// The stream is single-pass and finite; Recv blocks on network I/O, so
// backpressure propagates naturally to the consumer. API keys are never
// logged.
package cloud
