// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeranaias/chatforge/internal/model"
)

func newTestFullHistory(t *testing.T) (Selector, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embeddings.db")
	sel, err := New("full-history", Config{StorePath: path})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sel.Close() })
	return sel, path
}

// After N committed exchanges, GetContext must return exactly the N prior
// pairs, flattened in original chronological order.
func TestFullHistoryReturnsAllInOrder(t *testing.T) {
	sel, _ := newTestFullHistory(t)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		cost, err := sel.AddToHistory(ctx,
			model.NewUserMessage(fmt.Sprintf("prompt-%d", i)),
			model.NewAssistantMessage(fmt.Sprintf("reply-%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		if cost.Total() != 0 {
			t.Errorf("full-history AddToHistory cost = %+v, want zero", cost)
		}
	}

	sel2, err := sel.GetContext(ctx, model.NewUserMessage("next"))
	if err != nil {
		t.Fatal(err)
	}
	if sel2.Cost.Total() != 0 {
		t.Errorf("full-history retrieval cost = %+v, want zero", sel2.Cost)
	}
	if len(sel2.Messages) != 2*n {
		t.Fatalf("got %d context messages, want %d", len(sel2.Messages), 2*n)
	}
	for i := 0; i < n; i++ {
		wantPrompt := fmt.Sprintf("prompt-%d", i)
		wantReply := fmt.Sprintf("reply-%d", i)
		if sel2.Messages[2*i].Content != wantPrompt {
			t.Errorf("messages[%d] = %q, want %q", 2*i, sel2.Messages[2*i].Content, wantPrompt)
		}
		if sel2.Messages[2*i+1].Content != wantReply {
			t.Errorf("messages[%d] = %q, want %q", 2*i+1, sel2.Messages[2*i+1].Content, wantReply)
		}
	}
}

func TestFullHistoryEmptyStore(t *testing.T) {
	sel, _ := newTestFullHistory(t)

	got, err := sel.GetContext(context.Background(), model.NewUserMessage("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 0 {
		t.Errorf("empty store should yield no context, got %d messages", len(got.Messages))
	}
}

func TestFullHistoryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.db")
	ctx := context.Background()

	sel, err := New("full-history", Config{StorePath: path})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sel.AddToHistory(ctx,
		model.NewUserMessage("remember me"),
		model.NewAssistantMessage("I will")); err != nil {
		t.Fatal(err)
	}
	if err := sel.Close(); err != nil {
		t.Fatal(err)
	}

	sel2, err := New("full-history", Config{StorePath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer sel2.Close()

	history, err := sel2.LoadHistory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Content != "remember me" {
		t.Errorf("history after reopen = %+v", history)
	}
}

// The store opens lazily: a selector that is never used must leave no
// file behind, so an unused session's cache directory stays empty.
func TestFullHistoryLazyStore(t *testing.T) {
	sel, path := newTestFullHistory(t)
	_ = sel

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("store file should not exist before first use")
	}
}

func TestUnsupportedContextModel(t *testing.T) {
	_, err := New("unknown-model", Config{StorePath: "x.db"})
	if err == nil {
		t.Fatal("expected error for unknown context model")
	}
	if !errors.Is(err, ErrUnsupportedContextModel) {
		t.Errorf("error %v should wrap ErrUnsupportedContextModel", err)
	}

	if Supported("unknown-model") {
		t.Error("Supported should reject unknown names")
	}
	if !Supported("full-history") || !Supported("text-embedding-ada-002") {
		t.Error("Supported should accept registered names")
	}
}
