// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"user", RoleUser},
		{" User ", RoleUser},
		{"SYSTEM", RoleSystem},
		{"assistant", RoleAssistant},
		{"robot", Role("robot")},
	}
	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleSystem, RoleAssistant} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("robot").Valid() {
		t.Error("unknown role should not be valid")
	}
}

func TestConstructors(t *testing.T) {
	u := NewUserMessage("hi")
	if u.Role != RoleUser || u.Content != "hi" || u.Name != "" {
		t.Errorf("unexpected user message: %+v", u)
	}

	s := NewSystemMessage("ops", "directive")
	if s.Role != RoleSystem || s.Name != "ops" {
		t.Errorf("unexpected system message: %+v", s)
	}

	a := NewAssistantMessage("sure")
	if a.Role != RoleAssistant || a.Content != "sure" {
		t.Errorf("unexpected assistant message: %+v", a)
	}
}

func TestPreview(t *testing.T) {
	m := NewUserMessage("héllo wörld, this is a long message")
	got := m.Preview(10)
	if len([]rune(got)) != 10 {
		t.Errorf("Preview length = %d, want 10", len([]rune(got)))
	}

	short := NewUserMessage("hey")
	if short.Preview(10) != "hey" {
		t.Errorf("short content should be returned unmodified")
	}
}

func TestExchangeFlatten(t *testing.T) {
	exchanges := []Exchange{
		{Prompt: NewUserMessage("a"), Reply: NewAssistantMessage("b")},
		{Prompt: NewUserMessage("c"), Reply: NewAssistantMessage("d")},
	}

	msgs := Flatten(exchanges)
	if len(msgs) != 4 {
		t.Fatalf("Flatten returned %d messages, want 4", len(msgs))
	}
	want := []string{"a", "b", "c", "d"}
	for i, w := range want {
		if msgs[i].Content != w {
			t.Errorf("msgs[%d].Content = %q, want %q", i, msgs[i].Content, w)
		}
	}
}

func TestExchangeText(t *testing.T) {
	ex := Exchange{Prompt: NewUserMessage("ping"), Reply: NewAssistantMessage("pong")}
	if ex.Text() != "ping\npong" {
		t.Errorf("Text() = %q", ex.Text())
	}
}
