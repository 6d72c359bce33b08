// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// sseHandler writes the given fragments as a chat-completions SSE stream.
func sseHandler(t *testing.T, fragments []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range fragments {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q},\"finish_reason\":\"\"}]}\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestChatStream(t *testing.T) {
	fragments := []string{"Hello", ", ", "world"}
	server := httptest.NewServer(sseHandler(t, fragments))
	defer server.Close()

	client := NewClient("test-key", server.URL)
	stream, err := client.ChatStream(context.Background(), "gpt-3.5-turbo",
		[]ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, fragment)
	}

	if strings.Join(got, "") != "Hello, world" {
		t.Errorf("streamed %q, want %q", strings.Join(got, ""), "Hello, world")
	}

	// A drained stream stays exhausted.
	if _, err := stream.Recv(); err != io.EOF {
		t.Errorf("Recv after EOF = %v, want io.EOF", err)
	}
}

func TestChatStreamSkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL)
	stream, err := client.ChatStream(context.Background(), "m", nil)
	if err != nil {
		t.Fatal(err)
	}
	fragment, err := stream.Recv()
	if err != nil || fragment != "ok" {
		t.Errorf("Recv = (%q, %v), want (\"ok\", nil)", fragment, err)
	}
}

func TestChatStreamNotConfigured(t *testing.T) {
	client := NewClient("", "")
	if _, err := client.ChatStream(context.Background(), "m", nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestChatStreamAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":"invalid_api_key","message":"bad key"}}`)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL)
	_, err := client.ChatStream(context.Background(), "m", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("err = %v, want ErrAuthFailed", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_api_key" {
		t.Errorf("expected APIError with code, got %v", err)
	}
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3]}],"usage":{"prompt_tokens":5,"total_tokens":5}}`)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL)
	result, err := client.Embed(context.Background(), "text-embedding-ada-002", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Vector) != 3 {
		t.Errorf("vector length = %d, want 3", len(result.Vector))
	}
	if result.PromptTokens != 5 {
		t.Errorf("PromptTokens = %d, want 5", result.PromptTokens)
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[],"usage":{"prompt_tokens":0}}`)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL)
	if _, err := client.Embed(context.Background(), "m", "x"); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("err = %v, want ErrEmptyEmbedding", err)
	}
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data":[{"embedding":[1]}],"usage":{"prompt_tokens":1}}`)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL)
	result, err := client.Embed(context.Background(), "m", "x")
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if result.PromptTokens != 1 {
		t.Errorf("PromptTokens = %d, want 1", result.PromptTokens)
	}
}

func TestSSEReader(t *testing.T) {
	input := "event: message\ndata: one\n\ndata: two\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	eventType, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatal(err)
	}
	if eventType != "message" || string(data) != "one" {
		t.Errorf("first event = (%q, %q)", eventType, data)
	}

	_, data, err = reader.ReadEvent()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("second event data = %q", data)
	}

	if _, _, err := reader.ReadEvent(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusForbidden, ErrAuthFailed},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusNotFound, ErrModelNotFound},
	}
	for _, tt := range tests {
		err := &APIError{Status: tt.status, Message: "x"}
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d should map to %v", tt.status, tt.want)
		}
	}

	// 5xx has no sentinel mapping.
	if errors.Is(&APIError{Status: 500}, ErrAuthFailed) {
		t.Error("500 should not map to ErrAuthFailed")
	}
}
