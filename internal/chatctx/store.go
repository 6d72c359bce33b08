// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatctx

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/chatforge/internal/model"
)

// =============================================================================
// HISTORY STORE
// =============================================================================

// Schema for the per-session history store. Append-only: rows are never
// updated or deleted within a session. The embedding column is NULL for
// the full-history strategy.
const storeSchema = `
CREATE TABLE IF NOT EXISTS history (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at     INTEGER NOT NULL,
    prompt_role    TEXT NOT NULL,
    prompt_name    TEXT NOT NULL DEFAULT '',
    prompt_content TEXT NOT NULL,
    reply_role     TEXT NOT NULL,
    reply_content  TEXT NOT NULL,
    embedding      BLOB,
    embed_tokens   INTEGER NOT NULL DEFAULT 0
);
`

// StoredExchange is one history row: the exchange plus, for the embedding
// strategy, its vector and the token cost of embedding it.
type StoredExchange struct {
	ID          int64
	Exchange    model.Exchange
	Embedding   []float32
	EmbedTokens int
}

// Store is the append-only SQLite history store backing both context
// strategies. One file per session cache directory; sessions normally do
// not share one, but SQLite's locking keeps a shared file consistent.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenStore opens (creating if necessary) the history store at path.
// Failures are wrapped in ErrStoreUnavailable so callers can classify.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &Store{db: db}, nil
}

// Append commits one exchange to the store.
func (s *Store) Append(ctx context.Context, e StoredExchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob []byte
	if len(e.Embedding) > 0 {
		blob = encodeVector(e.Embedding)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history
			(created_at, prompt_role, prompt_name, prompt_content,
			 reply_role, reply_content, embedding, embed_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(),
		string(e.Exchange.Prompt.Role), e.Exchange.Prompt.Name, e.Exchange.Prompt.Content,
		string(e.Exchange.Reply.Role), e.Exchange.Reply.Content,
		blob, e.EmbedTokens)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// All returns every stored exchange in insertion order (oldest first).
func (s *Store) All(ctx context.Context) ([]StoredExchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt_role, prompt_name, prompt_content,
		       reply_role, reply_content, embedding, embed_tokens
		FROM history ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var all []StoredExchange
	for rows.Next() {
		var e StoredExchange
		var promptRole, replyRole string
		var blob []byte
		if err := rows.Scan(&e.ID,
			&promptRole, &e.Exchange.Prompt.Name, &e.Exchange.Prompt.Content,
			&replyRole, &e.Exchange.Reply.Content,
			&blob, &e.EmbedTokens); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.Exchange.Prompt.Role = model.Role(promptRole)
		e.Exchange.Reply.Role = model.Role(replyRole)
		if len(blob) > 0 {
			e.Embedding = decodeVector(blob)
		}
		all = append(all, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return all, nil
}

// Count returns the number of stored exchanges.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// =============================================================================
// LAZY STORE HANDLE
// =============================================================================

// lazyStore defers opening the history database until first use, so a
// session that never touches history leaves no file in its cache
// directory. The open error is cached: every subsequent use reports the
// same ErrStoreUnavailable instead of retrying against a broken path.
type lazyStore struct {
	path  string
	once  sync.Once
	store *Store
	err   error
}

func (l *lazyStore) get() (*Store, error) {
	l.once.Do(func() {
		l.store, l.err = OpenStore(l.path)
	})
	return l.store, l.err
}

func (l *lazyStore) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// =============================================================================
// VECTOR CODEC
// =============================================================================

// Vectors are stored as little-endian float32 blobs: cheap to append,
// cheap to scan, no serialization framework needed.

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
