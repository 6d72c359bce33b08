// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// STREAMING: Robust SSE parsing with error handling

// =============================================================================
// STREAM TYPES
// =============================================================================

// StreamChunk represents a single chunk of a streaming chat response.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GetContent returns the content from the first choice's delta.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// IsDone returns true if the stream has finished.
func (c *StreamChunk) IsDone() bool {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason != ""
	}
	return false
}

// StreamError represents an error that occurred mid-stream, preserving any
// partial content received before the error.
type StreamError struct {
	Partial string // Content received before error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type, data, and any error.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// If we have data, return it before EOF
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("event:")) {
			eventType = string(bytes.TrimSpace(line[6:]))
		} else if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a pull-based reader over a streaming chat completion.
//
// It is single-pass, finite, and not restartable: Recv yields text
// fragments until the server signals completion, then returns io.EOF.
// Recv blocks on network reads, so backpressure flows to the consumer.
type Stream struct {
	body   io.ReadCloser
	reader *SSEReader
	ctx    context.Context
	done   bool
}

// Recv returns the next non-empty text fragment.
// Returns io.EOF when the stream has ended. After an error or EOF the
// stream is exhausted and all further calls return io.EOF.
func (s *Stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		select {
		case <-s.ctx.Done():
			s.finish()
			return "", s.ctx.Err()
		default:
		}

		_, data, err := s.reader.ReadEvent()
		if err != nil {
			s.finish()
			if err == io.EOF {
				return "", io.EOF
			}
			return "", &StreamError{Err: err}
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			s.finish()
			return "", io.EOF
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks
			continue
		}

		if content := chunk.GetContent(); content != "" {
			return content, nil
		}

		if chunk.IsDone() {
			s.finish()
			return "", io.EOF
		}
	}
}

// Close releases the underlying connection without draining the stream.
func (s *Stream) Close() error {
	s.finish()
	return nil
}

func (s *Stream) finish() {
	if !s.done {
		s.done = true
		s.body.Close()
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream starts a streaming chat completion request and returns a
// Stream over the reply fragments. The request is not retried: once the
// server may have produced output, retry policy belongs to the caller.
func (c *Client) ChatStream(ctx context.Context, modelName string, messages []ChatMessage) (*Stream, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	reqBody := ChatRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   true,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// Timeout handled via context; the streaming client has none of its own.
	resp, err := c.streamer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	return &Stream{
		body:   resp.Body,
		reader: NewSSEReader(resp.Body),
		ctx:    ctx,
	}, nil
}
