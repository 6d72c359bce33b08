// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"testing"

	"github.com/jeranaias/chatforge/internal/model"
)

func TestCountTextDeterministic(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog"
	a := CountText(text)
	b := CountText(text)
	if a != b {
		t.Errorf("CountText not deterministic: %d vs %d", a, b)
	}
	if a <= 0 {
		t.Errorf("CountText = %d, want > 0", a)
	}
}

func TestCountTextEdgeCases(t *testing.T) {
	if CountText("") != 0 {
		t.Error("empty text should count zero tokens")
	}
	if CountText("a") < 1 {
		t.Error("non-empty text should count at least one token")
	}
}

func TestCountMessages(t *testing.T) {
	msgs := []model.Message{
		model.NewSystemMessage("sys", "You are a helpful assistant."),
		model.NewUserMessage("Hello there!"),
	}

	n := CountMessages(msgs, "gpt-3.5-turbo")
	if n <= 0 {
		t.Fatalf("CountMessages = %d, want > 0", n)
	}
	if n != CountMessages(msgs, "gpt-3.5-turbo") {
		t.Error("CountMessages not deterministic")
	}

	// Adding a message must strictly increase the count.
	more := append(msgs, model.NewAssistantMessage("Hi!"))
	if CountMessages(more, "gpt-3.5-turbo") <= n {
		t.Error("adding a message should increase the count")
	}
}

func TestCountMessagesEmpty(t *testing.T) {
	if CountMessages(nil, "gpt-4") != 0 {
		t.Error("no messages should count zero tokens")
	}
}

func TestPricingKnownModel(t *testing.T) {
	cost, known := CostUSD("gpt-3.5-turbo", 1000, 1000)
	if !known {
		t.Fatal("gpt-3.5-turbo should have pricing")
	}
	want := 0.0015 + 0.002
	if diff := cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %f, want %f", cost, want)
	}
}

func TestPricingUnknownModel(t *testing.T) {
	cost, known := CostUSD("totally-new-model", 1000, 1000)
	if known {
		t.Error("unknown model should not be known")
	}
	if cost != 0 {
		t.Errorf("unknown model cost = %f, want 0", cost)
	}
}

func TestFullHistoryIsFree(t *testing.T) {
	cost, known := CostUSD("full-history", 100000, 100000)
	if !known || cost != 0 {
		t.Errorf("full-history should be known and free, got cost=%f known=%v", cost, known)
	}
}
