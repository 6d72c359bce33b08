// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrLedgerClosed indicates the ledger has already been closed.
	ErrLedgerClosed = errors.New("usage ledger closed")
)

// =============================================================================
// USAGE
// =============================================================================

// Usage holds cumulative token counters for one model.
// Counters only ever grow; Add never accepts negative deltas.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Add folds a delta into the counters. Negative deltas are ignored so the
// counters stay monotonically non-decreasing.
func (u *Usage) Add(input, output int) {
	if input > 0 {
		u.Input += input
	}
	if output > 0 {
		u.Output += output
	}
}

// Total returns input + output.
func (u Usage) Total() int {
	return u.Input + u.Output
}

// =============================================================================
// USAGE DATABASE
// =============================================================================

// Schema for the durable token-usage ledger. One row per model, cumulative.
const ledgerSchema = `
CREATE TABLE IF NOT EXISTS token_usage (
    model         TEXT PRIMARY KEY,
    input_tokens  INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    updated_at    INTEGER NOT NULL
) WITHOUT ROWID;
`

// UsageDatabase is the durable, cross-session token-usage ledger.
//
// Safe for concurrent use: writes go through a single upsert inside a
// transaction, guarded by a mutex in-process and by SQLite's file locking
// across processes (busy_timeout retries instead of failing fast).
type UsageDatabase struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// OpenUsageDatabase opens (creating if necessary) the ledger at path.
func OpenUsageDatabase(path string) (*UsageDatabase, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}

	// Serialize writers; concurrent sessions share this file.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}

	return &UsageDatabase{db: db, path: path}, nil
}

// Path returns the ledger file path.
func (u *UsageDatabase) Path() string {
	return u.path
}

// Insert atomically increments the cumulative counters for model, creating
// the row if absent. Zero deltas still create the row, so a session that
// used no tokens is still visible in all-time reports.
func (u *UsageDatabase) Insert(model string, inputTokens, outputTokens int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.db == nil {
		return ErrLedgerClosed
	}
	if inputTokens < 0 || outputTokens < 0 {
		return fmt.Errorf("negative token delta for model %q", model)
	}

	_, err := u.db.Exec(`
		INSERT INTO token_usage (model, input_tokens, output_tokens, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(model) DO UPDATE SET
			input_tokens  = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			updated_at    = excluded.updated_at`,
		model, inputTokens, outputTokens, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record usage for %q: %w", model, err)
	}
	return nil
}

// Get returns the cumulative usage recorded for model.
// A model with no row reports zero usage.
func (u *UsageDatabase) Get(model string) (Usage, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.db == nil {
		return Usage{}, ErrLedgerClosed
	}

	var usage Usage
	err := u.db.QueryRow(
		`SELECT input_tokens, output_tokens FROM token_usage WHERE model = ?`,
		model).Scan(&usage.Input, &usage.Output)
	if err == sql.ErrNoRows {
		return Usage{}, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read usage for %q: %w", model, err)
	}
	return usage, nil
}

// All returns the cumulative usage of every model in the ledger.
func (u *UsageDatabase) All() (map[string]Usage, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.db == nil {
		return nil, ErrLedgerClosed
	}

	rows, err := u.db.Query(`SELECT model, input_tokens, output_tokens FROM token_usage`)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage ledger: %w", err)
	}
	defer rows.Close()

	all := make(map[string]Usage)
	for rows.Next() {
		var m string
		var usage Usage
		if err := rows.Scan(&m, &usage.Input, &usage.Output); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		all[m] = usage
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage ledger: %w", err)
	}
	return all, nil
}

// Close closes the underlying database. Further calls return ErrLedgerClosed.
func (u *UsageDatabase) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.db == nil {
		return nil
	}
	err := u.db.Close()
	u.db = nil
	return err
}

// =============================================================================
// REPORT RENDERING
// =============================================================================

// FormatReport renders a usage map as an aligned text table with per-model
// and total costs. Models with unknown pricing show "n/a" in the cost
// column and are excluded from the total.
func FormatReport(title string, usage map[string]Usage) string {
	models := make([]string, 0, len(usage))
	for m := range usage {
		models = append(models, m)
	}
	sort.Strings(models)

	out := fmt.Sprintf("%s\n%-28s %12s %12s %12s\n", title, "MODEL", "INPUT", "OUTPUT", "COST (USD)")
	var totalCost float64
	var anyKnown bool
	for _, m := range models {
		u := usage[m]
		cost, known := CostUSD(m, u.Input, u.Output)
		costCol := "n/a"
		if known {
			costCol = fmt.Sprintf("%.6f", cost)
			totalCost += cost
			anyKnown = true
		}
		out += fmt.Sprintf("%-28s %12d %12d %12s\n", m, u.Input, u.Output, costCol)
	}
	if anyKnown {
		out += fmt.Sprintf("%-28s %12s %12s %12.6f\n", "TOTAL", "", "", totalCost)
	}
	return out
}
