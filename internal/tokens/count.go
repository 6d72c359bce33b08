// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"strings"

	"github.com/jeranaias/chatforge/internal/model"
)

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// Per-message framing overhead and reply priming, matching the accounting
// shape of the chat completions API.
const (
	tokensPerMessage = 4
	tokensPerName    = 1
	tokensPerReply   = 3
)

// CountText estimates the token count of a text fragment.
// GPT-style: ~4 chars per token on average.
// Uses a blend of word and character estimates for better accuracy.
func CountText(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := len(text)

	// Blend of word and char estimates
	n := (words + chars/4) / 2
	if n < 1 {
		n = 1
	}
	return n
}

// CountMessages estimates the total token count of a message list as the
// model will bill it. Deterministic given (messages, model): the model
// parameter is accepted for signature stability but all supported chat
// models share the same framing overhead.
func CountMessages(messages []model.Message, modelName string) int {
	_ = modelName

	if len(messages) == 0 {
		return 0
	}

	total := tokensPerReply
	for _, msg := range messages {
		total += tokensPerMessage
		total += CountText(msg.Content)
		if msg.Name != "" {
			total += CountText(msg.Name) + tokensPerName
		}
	}
	return total
}
