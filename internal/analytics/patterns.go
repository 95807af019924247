package analytics

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jobmemory/core/internal/types"
)

// minSupport is the minimum number of distinct contributing jobs a pattern
// must have before it is reported, per spec.md §4.4.
const minSupport = 3

type patternAccum struct {
	jobIDs    map[string]bool
	agents    map[string]bool
	firstSeen time.Time
	lastSeen  time.Time
}

// IdentifySuccessPatterns groups decision categories across completed jobs
// and reports one PatternMatch per category reached by at least minSupport
// distinct jobs.
func (e *Engine) IdentifySuccessPatterns(jobs []*types.JobMemory) []types.PatternMatch {
	return minePatterns(jobs, types.StatusCompleted, "success")
}

// IdentifyFailurePatterns is the failed-job counterpart of
// IdentifySuccessPatterns.
func (e *Engine) IdentifyFailurePatterns(jobs []*types.JobMemory) []types.PatternMatch {
	return minePatterns(jobs, types.StatusFailed, "failure")
}

func minePatterns(jobs []*types.JobMemory, status types.Status, outcomeLabel string) []types.PatternMatch {
	groups := map[string]*patternAccum{}
	order := []string{}

	for _, jm := range jobs {
		if jm.Status != status {
			continue
		}
		seenInJob := map[string]bool{}
		for _, d := range jm.Decisions {
			if d.Category == "" || seenInJob[d.Category] {
				continue
			}
			seenInJob[d.Category] = true

			acc, ok := groups[d.Category]
			if !ok {
				acc = &patternAccum{
					jobIDs:    map[string]bool{},
					agents:    map[string]bool{},
					firstSeen: jm.StartTime,
					lastSeen:  jm.StartTime,
				}
				groups[d.Category] = acc
				order = append(order, d.Category)
			}
			acc.jobIDs[jm.JobID] = true
			for _, a := range jm.Metadata.AgentTypes {
				acc.agents[a] = true
			}
			if jm.StartTime.Before(acc.firstSeen) {
				acc.firstSeen = jm.StartTime
			}
			if jm.StartTime.After(acc.lastSeen) {
				acc.lastSeen = jm.StartTime
			}
		}
	}

	patterns := make([]types.PatternMatch, 0)
	for _, category := range order {
		acc := groups[category]
		occurrences := len(acc.jobIDs)
		if occurrences < minSupport {
			continue
		}
		confidence := clamp01(0.7 + float64(occurrences-minSupport)*0.05)
		if confidence > 1.0 {
			confidence = 1.0
		}
		agents := make([]string, 0, len(acc.agents))
		for a := range acc.agents {
			agents = append(agents, a)
		}
		sort.Strings(agents)

		patterns = append(patterns, types.PatternMatch{
			ID:               fmt.Sprintf("pattern-%s-%s", outcomeLabel, slugify(category)),
			Description:      fmt.Sprintf("decisions in category %q recur across %s jobs", category, outcomeLabel),
			Confidence:       confidence,
			Occurrences:      occurrences,
			Conditions:       []string{"category=" + category},
			Outcomes:         []string{outcomeLabel},
			ApplicableAgents: agents,
			AffectedAgents:   agents,
			FirstSeen:        acc.firstSeen,
			LastSeen:         acc.lastSeen,
		})
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Occurrences > patterns[j].Occurrences })
	return patterns
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, s)
	return s
}

// SearchSimilarPatterns mines success and failure patterns across every job
// the store knows about, ranks them against query.Description with the
// analytics cache's TF-IDF pattern index when one is attached (falling back
// to a plain substring match when it isn't), then applies the remaining
// filters. Results are truncated to query.MaxResults; an unmatched query
// returns an empty list, never an error.
func (e *Engine) SearchSimilarPatterns(query types.PatternQuery) ([]types.PatternMatch, error) {
	all, err := e.store.LoadAllJobMemories()
	if err != nil {
		return nil, err
	}

	candidates := append(e.IdentifySuccessPatterns(all), e.IdentifyFailurePatterns(all)...)
	ranked := e.rankByDescription(candidates, query.Description)

	out := make([]types.PatternMatch, 0)
	for _, p := range ranked {
		if query.Type != "" && !containsString(p.Outcomes, query.Type) {
			continue
		}
		if query.AgentType != "" && !containsString(p.ApplicableAgents, query.AgentType) {
			continue
		}
		if query.MinConfidence > 0 && p.Confidence < query.MinConfidence {
			continue
		}
		out = append(out, p)
	}

	if query.MaxResults > 0 && len(out) > query.MaxResults {
		out = out[:query.MaxResults]
	}
	return out, nil
}

// rankByDescription returns candidates filtered (and, when the cache is
// available, ordered) by relevance to description. An empty description
// returns candidates unchanged.
func (e *Engine) rankByDescription(candidates []types.PatternMatch, description string) []types.PatternMatch {
	if description == "" {
		return candidates
	}

	if e.cache != nil {
		if err := e.cache.IndexPatterns(candidates); err != nil {
			log.Printf("[ANALYTICS] indexing patterns for search failed: %v", err)
		} else if ids, err := e.cache.SearchPatternsByText(description); err != nil {
			log.Printf("[ANALYTICS] TF-IDF pattern search failed: %v", err)
		} else if len(ids) > 0 {
			byID := make(map[string]types.PatternMatch, len(candidates))
			for _, p := range candidates {
				byID[p.ID] = p
			}
			ranked := make([]types.PatternMatch, 0, len(ids))
			for _, id := range ids {
				if p, ok := byID[id]; ok {
					ranked = append(ranked, p)
				}
			}
			return ranked
		}
	}

	// No cache attached, or the cache found nothing: fall back to a plain
	// substring match so a description filter still narrows results.
	needle := strings.ToLower(description)
	out := make([]types.PatternMatch, 0, len(candidates))
	for _, p := range candidates {
		if strings.Contains(strings.ToLower(p.Description), needle) {
			out = append(out, p)
		}
	}
	return out
}

// matchPatternsFor returns the corpus-wide patterns (mined from all) whose
// category condition is exercised by jm's own decisions, used to populate
// JobAnalytics.PatternMatches for a single job.
func (e *Engine) matchPatternsFor(jm *types.JobMemory, all []*types.JobMemory) []types.PatternMatch {
	categories := map[string]bool{}
	for _, d := range jm.Decisions {
		categories[d.Category] = true
	}
	if len(categories) == 0 {
		return nil
	}

	candidates := append(e.IdentifySuccessPatterns(all), e.IdentifyFailurePatterns(all)...)
	out := make([]types.PatternMatch, 0)
	for _, p := range candidates {
		for _, cond := range p.Conditions {
			category := strings.TrimPrefix(cond, "category=")
			if categories[category] {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
