// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/chatforge/internal/chatctx"
	"github.com/jeranaias/chatforge/internal/cloud"
	"github.com/jeranaias/chatforge/internal/model"
	"github.com/jeranaias/chatforge/internal/tokens"
)

// =============================================================================
// RESPOND
// =============================================================================

// Respond sends prompt to the chat model and returns a stream of reply
// fragments.
//
// The assembled request is always [base directive, context..., prompt]:
// base directive first, new prompt last, context between in the
// selector's chosen order. Context retrieval errors (including
// chatctx.ErrStoreUnavailable) and upstream call failures surface here,
// before any accounting or history state is touched.
func (c *Chat) Respond(ctx context.Context, prompt string, role model.Role, addToHistory bool) (*ReplyStream, error) {
	role = model.ParseRole(string(role))
	if !role.Valid() || role == model.RoleAssistant {
		return nil, fmt.Errorf("invalid prompt role %q", role)
	}
	promptMsg := model.Message{Role: role, Content: strings.TrimSpace(prompt)}

	selection, err := c.selector.GetContext(ctx, promptMsg)
	if err != nil {
		return nil, err
	}

	assembled := make([]model.Message, 0, len(selection.Messages)+2)
	assembled = append(assembled, c.BaseDirective())
	assembled = append(assembled, selection.Messages...)
	assembled = append(assembled, promptMsg)

	stream, err := c.client.ChatStream(ctx, c.opts.Model, toWire(assembled))
	if err != nil {
		return nil, err
	}

	return &ReplyStream{
		chat:         c,
		ctx:          ctx,
		stream:       stream,
		promptMsg:    promptMsg,
		addToHistory: addToHistory,
		contextCost:  selection.Cost,
		promptTokens: tokens.CountMessages(assembled, c.opts.Model),
	}, nil
}

// RespondUserPrompt responds to a user prompt, committing the exchange to
// history.
func (c *Chat) RespondUserPrompt(ctx context.Context, prompt string) (*ReplyStream, error) {
	return c.Respond(ctx, prompt, model.RoleUser, true)
}

// RespondSystemPrompt responds to a system prompt without committing the
// exchange to history.
func (c *Chat) RespondSystemPrompt(ctx context.Context, prompt string) (*ReplyStream, error) {
	return c.Respond(ctx, prompt, model.RoleSystem, false)
}

// toWire converts messages to the API wire format.
func toWire(msgs []model.Message) []cloud.ChatMessage {
	wire := make([]cloud.ChatMessage, len(msgs))
	for i, m := range msgs {
		wire[i] = cloud.ChatMessage{Role: string(m.Role), Content: m.Content, Name: m.Name}
	}
	return wire
}

// =============================================================================
// REPLY STREAM
// =============================================================================

// ReplyStream yields the model's reply incrementally as fragments arrive.
//
// The stream is single-pass, finite, and not restartable. Its side
// effects - input/output token accounting and the history commit - run
// strictly after the underlying stream is exhausted, inside the Recv call
// that returns io.EOF. A stream abandoned via Close commits nothing:
// there are no partial-reply commits.
type ReplyStream struct {
	chat         *Chat
	ctx          context.Context
	stream       *cloud.Stream
	promptMsg    model.Message
	addToHistory bool
	contextCost  chatctx.TokenCost
	promptTokens int

	full      strings.Builder
	done      bool
	finishErr error
}

// Recv returns the next reply fragment.
//
// When the underlying stream ends, Recv finalizes the exchange and
// returns io.EOF; if finalization itself fails (the history commit), that
// error is returned once and subsequent calls return io.EOF.
func (r *ReplyStream) Recv() (string, error) {
	if r.done {
		return "", io.EOF
	}

	fragment, err := r.stream.Recv()
	if err == io.EOF {
		r.done = true
		if ferr := r.finish(); ferr != nil {
			r.finishErr = ferr
			return "", ferr
		}
		return "", io.EOF
	}
	if err != nil {
		// Mid-stream failure: no accounting, no history commit. The
		// partial text stays readable via Text for the caller's benefit.
		r.done = true
		return "", &cloud.StreamError{Partial: r.full.String(), Err: err}
	}

	r.full.WriteString(fragment)
	return fragment, nil
}

// Drain consumes the rest of the stream and returns the full reply text.
func (r *ReplyStream) Drain() (string, error) {
	for {
		_, err := r.Recv()
		if err == io.EOF {
			return r.full.String(), nil
		}
		if err != nil {
			return r.full.String(), err
		}
	}
}

// Text returns the reply text accumulated so far.
func (r *ReplyStream) Text() string {
	return r.full.String()
}

// Close abandons the stream without committing accounting or history.
// Safe after EOF; the finalized state is untouched.
func (r *ReplyStream) Close() error {
	r.done = true
	return r.stream.Close()
}

// finish applies the deferred side effects, in order: context-retrieval
// cost, assembled-prompt cost, reply cost, then the history commit and
// its registration cost.
func (r *ReplyStream) finish() error {
	c := r.chat
	reply := model.NewAssistantMessage(r.full.String())

	c.addUsage(c.opts.ContextModel, r.contextCost.Total(), 0)
	c.addUsage(c.opts.Model, r.promptTokens, 0)
	c.addUsage(c.opts.Model, 0, tokens.CountMessages([]model.Message{reply}, c.opts.Model))

	if !r.addToHistory {
		return nil
	}
	cost, err := c.selector.AddToHistory(r.ctx, r.promptMsg, reply)
	if err != nil {
		return fmt.Errorf("failed to commit exchange to history: %w", err)
	}
	c.addUsage(c.opts.ContextModel, 0, cost.Total())
	return nil
}
