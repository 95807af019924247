package analytics

import "github.com/jobmemory/core/internal/types"

// computeEfficiencyMetrics derives spec.md §3's EfficiencyMetrics block
// from a single job's recorded entries: average decision implementation
// time, average gotcha resolution time, an average relevance-weighted
// context retrieval cost, the fraction of context entries that were reused
// knowledge, and the fraction of outcomes that were failures.
func computeEfficiencyMetrics(jm *types.JobMemory) types.EfficiencyMetrics {
	var decisionTimeSum float64
	var decisionTimeCount int
	for _, d := range jm.Decisions {
		if d.Outcome != nil {
			decisionTimeSum += d.Outcome.Metrics.ImplementationTime
			decisionTimeCount++
		}
	}

	var gotchaTimeSum float64
	var gotchaTimeCount int
	for _, g := range jm.Gotchas {
		if g.Resolution != nil && g.Resolution.Resolved {
			gotchaTimeSum += g.Resolution.ResolutionTime
			gotchaTimeCount++
		}
	}

	var relevanceSum float64
	for _, c := range jm.Context {
		relevanceSum += c.RelevanceScore
	}
	contextRetrievalTime := 0.0
	if len(jm.Context) > 0 {
		contextRetrievalTime = 1 - (relevanceSum / float64(len(jm.Context)))
	}

	reused, total := 0, len(jm.Context)
	for _, c := range jm.Context {
		if c.Type == "knowledge-retrieval" && len(c.Usage) > 0 {
			reused++
		}
	}
	reuseRate := 0.0
	if total > 0 {
		reuseRate = float64(reused) / float64(total)
	}

	failures, outcomeTotal := 0, len(jm.Outcomes)
	for _, o := range jm.Outcomes {
		if o.Type == types.OutcomeFailure {
			failures++
		}
	}
	errorRate := 0.0
	if outcomeTotal > 0 {
		errorRate = float64(failures) / float64(outcomeTotal)
	}

	avg := func(sum float64, n int) float64 {
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}

	return types.EfficiencyMetrics{
		DecisionTime:         avg(decisionTimeSum, decisionTimeCount),
		GotchaResolutionTime: avg(gotchaTimeSum, gotchaTimeCount),
		ContextRetrievalTime: clamp01(contextRetrievalTime),
		KnowledgeReuseRate:   clamp01(reuseRate),
		ErrorRate:            clamp01(errorRate),
	}
}

// computeLearningScore rewards a job for resolving the gotchas it hit and
// for capturing lessons along the way.
func computeLearningScore(jm *types.JobMemory) float64 {
	if len(jm.Gotchas) == 0 && countLessons(jm) == 0 {
		return 0
	}

	resolved := 0
	for _, g := range jm.Gotchas {
		if g.Resolution != nil && g.Resolution.Resolved {
			resolved++
		}
	}
	resolutionRate := 1.0
	if len(jm.Gotchas) > 0 {
		resolutionRate = float64(resolved) / float64(len(jm.Gotchas))
	}

	lessonDensity := clamp01(float64(countLessons(jm)) / 5)

	return clamp01(resolutionRate*0.7 + lessonDensity*0.3)
}

func countLessons(jm *types.JobMemory) int {
	n := 0
	for _, o := range jm.Outcomes {
		n += len(o.Lessons)
	}
	for _, d := range jm.Decisions {
		if d.Outcome != nil {
			n += len(d.Outcome.Lessons)
		}
	}
	return n
}

// computeReuseScore rewards knowledge-retrieval context entries with
// recorded, impactful usage.
func computeReuseScore(jm *types.JobMemory) float64 {
	if len(jm.Context) == 0 {
		return 0
	}
	var score float64
	for _, c := range jm.Context {
		if c.Type != "knowledge-retrieval" {
			continue
		}
		if len(c.Usage) == 0 {
			continue
		}
		impactWeight := 0.0
		for _, u := range c.Usage {
			if u.Impact != "" {
				impactWeight += 1
			}
		}
		score += clamp01(impactWeight / float64(len(c.Usage)))
	}
	return clamp01(score / float64(len(jm.Context)))
}

// computeInnovationScore approximates novelty within a single job as the
// fraction of decision categories that are not repeats of an earlier
// decision in the same job — a job that tries many distinct approaches
// scores higher than one that repeats the same category over and over.
func computeInnovationScore(jm *types.JobMemory) float64 {
	if len(jm.Decisions) == 0 {
		return 0
	}
	seen := map[string]bool{}
	for _, d := range jm.Decisions {
		seen[d.Category] = true
	}
	return clamp01(float64(len(seen)) / float64(len(jm.Decisions)))
}
