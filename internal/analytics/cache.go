package analytics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

// Cache persists computed JobAnalytics results under the layout's reserved
// B/analytics/ directory (spec.md §4.1 names this directory but leaves its
// contents to the implementation). Backed by SQLite rather than another
// NDJSON file: unlike the append-only stores in C1/C3, cache entries are
// looked up by jobId and overwritten as a job is recalculated, which is
// exactly the point-lookup/upsert workload a small embedded SQL table
// suits better than a linear file scan.
//
// Grounded on the teacher's own use of mattn/go-sqlite3 in internal/memory
// (a local cache of derived records keyed by id), carried forward here to
// its new home once internal/memory's original schema was replaced by this
// spec's own domain model.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if absent) the analytics cache database under
// layout's analytics directory.
func OpenCache(layout store.Layout) (*Cache, error) {
	if err := layout.EnsureDirs(); err != nil {
		return nil, err
	}
	path := filepath.Join(layout.AnalyticsDir(), "cache.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening analytics cache at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3's single-writer file lock; avoid pool contention

	const schema = `
CREATE TABLE IF NOT EXISTS job_analytics (
	job_id TEXT PRIMARY KEY,
	computed_at DATETIME NOT NULL,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pattern_terms (
	pattern_id TEXT NOT NULL,
	term TEXT NOT NULL,
	tf REAL NOT NULL,
	PRIMARY KEY (pattern_id, term)
);
CREATE TABLE IF NOT EXISTS pattern_term_stats (
	term TEXT PRIMARY KEY,
	doc_count INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating analytics cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying SQLite connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// PutJobAnalytics upserts the computed result for jobID. Failures are
// logged and swallowed: the cache is an optimization, never a source of
// truth, and must never turn a successful calculation into a caller-visible
// error.
func (c *Cache) PutJobAnalytics(jobID string, result interface{}) {
	payload, err := json.Marshal(result)
	if err != nil {
		log.Printf("[ANALYTICS CACHE] failed to marshal result for %s: %v", jobID, err)
		return
	}
	_, err = c.db.Exec(
		`INSERT INTO job_analytics (job_id, computed_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET computed_at = excluded.computed_at, payload = excluded.payload`,
		jobID, time.Now(), string(payload),
	)
	if err != nil {
		log.Printf("[ANALYTICS CACHE] failed to upsert result for %s: %v", jobID, err)
	}
}

// GetJobAnalytics returns the cached payload for jobID, if any, along with
// the time it was computed.
func (c *Cache) GetJobAnalytics(jobID string, out interface{}) (computedAt time.Time, found bool, err error) {
	var payload string
	row := c.db.QueryRow(`SELECT computed_at, payload FROM job_analytics WHERE job_id = ?`, jobID)
	if scanErr := row.Scan(&computedAt, &payload); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("reading analytics cache for %s: %w", jobID, scanErr)
	}
	if unmarshalErr := json.Unmarshal([]byte(payload), out); unmarshalErr != nil {
		return time.Time{}, false, fmt.Errorf("decoding cached analytics for %s: %w", jobID, unmarshalErr)
	}
	return computedAt, true, nil
}

// Invalidate removes jobID's cached entry, used once a job is archived and
// its prior analytics no longer apply.
func (c *Cache) Invalidate(jobID string) {
	if _, err := c.db.Exec(`DELETE FROM job_analytics WHERE job_id = ?`, jobID); err != nil {
		log.Printf("[ANALYTICS CACHE] failed to invalidate %s: %v", jobID, err)
	}
}

// IndexPatterns rebuilds the TF-IDF term index over the given pattern set,
// grounded on the teacher's internal/memory/learning.go knowledge_terms/
// term_stats tables and its tokenize/computeTermFrequency helpers (there,
// indexing Knowledge.Title+Content; here, indexing PatternMatch.Description).
// Patterns are recomputed fresh from the job corpus on every search rather
// than persisted as long-lived rows (unlike learning.go's Knowledge, a
// PatternMatch has no independent existence outside its mining pass), so the
// index is rebuilt from scratch each call rather than incrementally upserted.
func (c *Cache) IndexPatterns(patterns []types.PatternMatch) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("indexing patterns: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM pattern_terms`); err != nil {
		return fmt.Errorf("clearing pattern term index: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM pattern_term_stats`); err != nil {
		return fmt.Errorf("clearing pattern term stats: %w", err)
	}

	for _, p := range patterns {
		terms := tokenizeForIndex(p.Description)
		for term, tf := range computeTermFrequencyForIndex(terms) {
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO pattern_terms (pattern_id, term, tf) VALUES (?, ?, ?)`,
				p.ID, term, tf,
			); err != nil {
				return fmt.Errorf("indexing pattern %s: %w", p.ID, err)
			}
			if _, err := tx.Exec(
				`INSERT INTO pattern_term_stats (term, doc_count) VALUES (?, 1)
				 ON CONFLICT(term) DO UPDATE SET doc_count = doc_count + 1`,
				term,
			); err != nil {
				return fmt.Errorf("updating term stats for %s: %w", term, err)
			}
		}
	}
	return tx.Commit()
}

// SearchPatternsByText ranks indexed pattern ids by TF-IDF score against
// queryText, descending. Mirrors learning.go's SearchKnowledge scoring:
// idf = log((totalDocs+1)/(docFreq+1)), score = sum(tf*idf) over query terms.
func (c *Cache) SearchPatternsByText(queryText string) ([]string, error) {
	queryTerms := tokenizeForIndex(queryText)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	var totalDocs int
	if err := c.db.QueryRow(`SELECT COUNT(DISTINCT pattern_id) FROM pattern_terms`).Scan(&totalDocs); err != nil {
		return nil, fmt.Errorf("counting indexed patterns: %w", err)
	}
	if totalDocs == 0 {
		return nil, nil
	}

	idf := make(map[string]float64, len(queryTerms))
	for _, term := range queryTerms {
		var docCount int
		err := c.db.QueryRow(`SELECT doc_count FROM pattern_term_stats WHERE term = ?`, term).Scan(&docCount)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("reading term stats for %s: %w", term, err)
		}
		if docCount == 0 {
			docCount = 1
		}
		idf[term] = math.Log(float64(totalDocs+1) / float64(docCount+1))
	}

	scores := map[string]float64{}
	for _, term := range queryTerms {
		rows, err := c.db.Query(`SELECT pattern_id, tf FROM pattern_terms WHERE term = ?`, term)
		if err != nil {
			return nil, fmt.Errorf("scoring term %s: %w", term, err)
		}
		for rows.Next() {
			var patternID string
			var tf float64
			if err := rows.Scan(&patternID, &tf); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning term match for %s: %w", term, err)
			}
			scores[patternID] += tf * idf[term]
		}
		rows.Close()
	}

	ranked := make([]string, 0, len(scores))
	for id, score := range scores {
		if score > 0 {
			ranked = append(ranked, id)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return scores[ranked[i]] > scores[ranked[j]] })
	return ranked, nil
}

var indexWordRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// tokenizeForIndex lowercases and splits text into terms, dropping short
// tokens and stopwords. Ported from learning.go's tokenize.
func tokenizeForIndex(text string) []string {
	text = strings.ToLower(text)
	matches := indexWordRegex.FindAllString(text, -1)
	stopwords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true,
		"is": true, "in": true, "to": true, "of": true, "for": true,
		"it": true, "on": true, "at": true, "by": true, "this": true,
		"that": true, "with": true, "from": true, "as": true, "be": true,
		"are": true, "across": true,
	}
	terms := make([]string, 0, len(matches))
	for _, term := range matches {
		if len(term) >= 2 && !stopwords[term] {
			terms = append(terms, term)
		}
	}
	return terms
}

// computeTermFrequencyForIndex normalizes counts by the max frequency in
// terms, matching learning.go's computeTermFrequency.
func computeTermFrequencyForIndex(terms []string) map[string]float64 {
	counts := make(map[string]int)
	for _, term := range terms {
		counts[term]++
	}
	maxFreq := 0
	for _, count := range counts {
		if count > maxFreq {
			maxFreq = count
		}
	}
	tf := make(map[string]float64, len(counts))
	for term, count := range counts {
		tf[term] = 0.5 + 0.5*float64(count)/float64(maxFreq)
	}
	return tf
}
