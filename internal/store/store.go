// Package store persists rewrite requests, per-batch outcomes, the rewrite
// memory cache, and the protected-term glossary in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/luotian/rephrase/internal"
	"github.com/luotian/rephrase/internal/similarity"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rewrite_requests (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		task TEXT NOT NULL,
		intensity INTEGER NOT NULL,
		lang TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS batch_results (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		batch_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		rewritten_text TEXT NOT NULL,
		similarity REAL,
		attempts INTEGER,
		warning TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (request_id) REFERENCES rewrite_requests(id)
	);

	CREATE TABLE IF NOT EXISTS final_rewrites (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		final_text TEXT NOT NULL,
		status TEXT NOT NULL,
		similarity REAL,
		ai_score_before REAL,
		ai_score_after REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (request_id) REFERENCES rewrite_requests(id)
	);

	CREATE TABLE IF NOT EXISTS rewrite_memory (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		task TEXT NOT NULL,
		intensity INTEGER NOT NULL,
		rewritten_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, task, intensity)
	);

	-- glossary stores user-defined protected terms kept verbatim in rewrites
	CREATE TABLE IF NOT EXISTS glossary (
		id TEXT PRIMARY KEY,
		lang TEXT NOT NULL,
		term TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(lang, term)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON rewrite_memory(source_text, task, intensity);
	CREATE INDEX IF NOT EXISTS idx_batch_request ON batch_results(request_id);
	CREATE INDEX IF NOT EXISTS idx_glossary_lookup ON glossary(lang);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) SaveRequest(ctx context.Context, req internal.RewriteRequest, lang string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rewrite_requests (id, source_text, task, intensity, lang, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.SourceText, string(req.Task), req.Intensity, lang, req.Timestamp)
	return err
}

func (s *Store) SaveBatchResult(ctx context.Context, requestID string, batchIndex int, status, rewrittenText string, sim float64, attempts int, warning string) error {
	id := fmt.Sprintf("%s_b%d", requestID, batchIndex)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_results (id, request_id, batch_index, status, rewritten_text, similarity, attempts, warning) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, requestID, batchIndex, status, rewrittenText, sim, attempts, warning)
	return err
}

func (s *Store) SaveFinalRewrite(ctx context.Context, requestID, finalText, status string, sim, aiBefore, aiAfter float64) error {
	id := fmt.Sprintf("%s_final", requestID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO final_rewrites (id, request_id, final_text, status, similarity, ai_score_before, ai_score_after) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, requestID, finalText, status, sim, aiBefore, aiAfter)
	return err
}

// GetCachedRewrite returns an exact-match rewrite memory hit and bumps its
// usage counters.
func (s *Store) GetCachedRewrite(ctx context.Context, sourceText string, task internal.Task, intensity int) (string, bool, error) {
	var rewritten string
	var invalidated bool

	err := s.db.QueryRowContext(ctx,
		`SELECT rewritten_text, invalidated FROM rewrite_memory WHERE source_text = ? AND task = ? AND intensity = ?`,
		normalizeText(sourceText), string(task), intensity).Scan(&rewritten, &invalidated)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE rewrite_memory SET usage_count = usage_count + 1, last_used = ? WHERE source_text = ? AND task = ? AND intensity = ?`,
		time.Now(), normalizeText(sourceText), string(task), intensity)

	return rewritten, true, err
}

func (s *Store) SaveToMemory(ctx context.Context, sourceText string, task internal.Task, intensity int, rewrittenText string) error {
	id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rewrite_memory (id, source_text, task, intensity, rewritten_text, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, normalizeText(sourceText), string(task), intensity, rewrittenText, time.Now(), time.Now())
	return err
}

// MemoryEntry is a row from the rewrite_memory table.
type MemoryEntry struct {
	ID            string
	SourceText    string
	Task          string
	Intensity     int
	RewrittenText string
	UsageCount    int
	Invalidated   bool
	LastUsed      time.Time
}

// CacheStats summarises rewrite memory usage.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rewrite_memory SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

// DeleteMemory permanently removes a rewrite memory entry by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewrite_memory WHERE id = ?`, id)
	return err
}

// ClearMemory removes all rewrite memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rewrite_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns all rewrite memory entries ordered by most recently used.
func (s *Store) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_text, task, intensity, rewritten_text, usage_count, invalidated, last_used FROM rewrite_memory ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.Task, &e.Intensity, &e.RewrittenText, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the rewrite memory.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM rewrite_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// FuzzyGetCachedRewrite returns a cached rewrite whose normalised source text
// has at least threshold character similarity (0–1) to sourceText. Pass
// threshold ≤ 0 to disable (always returns "", false, nil). To avoid O(n²)
// cost, texts longer than 1 000 runes are not fuzzy-matched.
func (s *Store) FuzzyGetCachedRewrite(ctx context.Context, sourceText string, task internal.Task, intensity int, threshold float64) (string, bool, error) {
	if threshold <= 0 {
		return "", false, nil
	}

	normalized := normalizeText(sourceText)
	const maxFuzzyRunes = 1000
	if len([]rune(normalized)) > maxFuzzyRunes {
		return "", false, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_text, rewritten_text FROM rewrite_memory
		 WHERE task = ? AND intensity = ? AND NOT invalidated`,
		string(task), intensity)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	var best string
	bestScore := 0.0

	for rows.Next() {
		var srcText, rewritten string
		if err := rows.Scan(&srcText, &rewritten); err != nil {
			return "", false, err
		}

		// Quick length pre-filter: if the length difference alone makes it
		// impossible to reach the threshold, skip the expensive edit distance.
		ls, lr := len([]rune(normalized)), len([]rune(srcText))
		maxL := ls
		if lr > maxL {
			maxL = lr
		}
		diff := ls - lr
		if diff < 0 {
			diff = -diff
		}
		if maxL > 0 && 1.0-float64(diff)/float64(maxL) < threshold {
			continue
		}

		score := similarity.Char(normalized, srcText)
		if score >= threshold && score > bestScore {
			bestScore = score
			best = rewritten
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}

	if best != "" {
		return best, true, nil
	}
	return "", false, nil
}

// GlossaryEntry represents a row in the glossary table.
type GlossaryEntry struct {
	ID        string
	Lang      string
	Term      string
	CreatedAt time.Time
}

// AddGlossaryTerm inserts or replaces a protected term for a language.
func (s *Store) AddGlossaryTerm(ctx context.Context, lang, term string) error {
	id := fmt.Sprintf("gl_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO glossary (id, lang, term) VALUES (?, ?, ?)`,
		id, lang, norm.NFC.String(strings.TrimSpace(term)))
	return err
}

// GetGlossaryTerms returns all protected terms for a language, ready to merge
// into a rewrite request's term list.
func (s *Store) GetGlossaryTerms(ctx context.Context, lang string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term FROM glossary WHERE lang = ? ORDER BY term`, lang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// ListGlossaryTerms returns all glossary entries, optionally filtered by
// language (pass an empty string to return everything).
func (s *Store) ListGlossaryTerms(ctx context.Context, lang string) ([]GlossaryEntry, error) {
	query := `SELECT id, lang, term, created_at FROM glossary`
	var args []interface{}
	if lang != "" {
		query += ` WHERE lang = ?`
		args = append(args, lang)
	}
	query += ` ORDER BY lang, term`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		if err := rows.Scan(&e.ID, &e.Lang, &e.Term, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteGlossaryTerm removes a glossary entry by ID.
func (s *Store) DeleteGlossaryTerm(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM glossary WHERE id = ?`, id)
	return err
}

// CacheAdapter binds a Store and a context so the rewrite memory can serve as
// the orchestrator's batch cache.
type CacheAdapter struct {
	Store *Store
	Ctx   context.Context
}

func (c CacheAdapter) GetRewrite(sourceText string, task internal.Task, intensity int) (string, bool, error) {
	return c.Store.GetCachedRewrite(c.Ctx, sourceText, task, intensity)
}

func (c CacheAdapter) SaveRewrite(sourceText string, task internal.Task, intensity int, rewritten string) error {
	return c.Store.SaveToMemory(c.Ctx, sourceText, task, intensity, rewritten)
}
