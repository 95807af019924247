package analytics

import (
	"testing"

	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

// TestSearchSimilarPatterns_NilCacheFallsBackToSubstring covers the
// newTestEngine default (cache == nil): description filtering must still
// narrow results via a plain substring match rather than erroring or
// returning everything.
func TestSearchSimilarPatterns_NilCacheFallsBackToSubstring(t *testing.T) {
	engine, js := newTestEngine(t)

	completeJobWithCategory(t, js, "I-1", "refactor", true)
	completeJobWithCategory(t, js, "I-2", "refactor", true)
	completeJobWithCategory(t, js, "I-3", "refactor", true)

	matches, err := engine.SearchSimilarPatterns(types.PatternQuery{Description: "refactor"})
	if err != nil {
		t.Fatalf("SearchSimilarPatterns: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match for a description substring hit, got %d", len(matches))
	}

	matches, err = engine.SearchSimilarPatterns(types.PatternQuery{Description: "nonsense-term-xyz"})
	if err != nil {
		t.Fatalf("SearchSimilarPatterns: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches for an unrelated description, got %d", len(matches))
	}
}

// TestSearchSimilarPatterns_CacheRanksByTFIDF covers the TF-IDF path: with a
// cache attached, a query whose terms overlap one category's mined
// description much more than another's should rank the better match first,
// using the indexed pattern order rather than document order.
func TestSearchSimilarPatterns_CacheRanksByTFIDF(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	if err := layout.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	cache, err := OpenCache(layout)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer cache.Close()

	engine, js := newTestEngine(t)
	engine.cache = cache

	completeJobWithCategory(t, js, "I-1", "refactor", true)
	completeJobWithCategory(t, js, "I-2", "refactor", true)
	completeJobWithCategory(t, js, "I-3", "refactor", true)
	completeJobWithCategory(t, js, "I-4", "deploy", true)
	completeJobWithCategory(t, js, "I-5", "deploy", true)
	completeJobWithCategory(t, js, "I-6", "deploy", true)

	matches, err := engine.SearchSimilarPatterns(types.PatternQuery{Description: "deploy"})
	if err != nil {
		t.Fatalf("SearchSimilarPatterns: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly 1 match for the deploy category, got %d: %+v", len(matches), matches)
	}
	if matches[0].Conditions[0] != "category=deploy" {
		t.Fatalf("expected deploy pattern ranked first, got %+v", matches[0])
	}
}
