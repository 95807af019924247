package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/jobmemory/core/internal/joberrors"
	"github.com/jobmemory/core/internal/types"
)

func timeSinceMinutes(t time.Time) float64 {
	return time.Since(t).Minutes()
}

// GetMemoryInsights bundles a narrative summary, the patterns jobID
// participates in, prose recommendations, and key totals/averages for the
// job.
func (e *Engine) GetMemoryInsights(jobID string) (types.MemoryInsights, error) {
	jm, err := e.store.GetJobMemory(jobID)
	if err != nil {
		return types.MemoryInsights{}, err
	}
	if jm == nil {
		return types.MemoryInsights{}, joberrors.NotFound(jobID, "job memory not found")
	}

	all, err := e.store.LoadAllJobMemories()
	if err != nil {
		return types.MemoryInsights{}, err
	}

	efficiency, _ := e.CalculateJobEfficiency(jobID)
	learning := computeLearningScore(jm)
	reuse := computeReuseScore(jm)

	resolved, relevanceSum := 0, 0.0
	for _, g := range jm.Gotchas {
		if g.Resolution != nil && g.Resolution.Resolved {
			resolved++
		}
	}
	for _, c := range jm.Context {
		relevanceSum += c.RelevanceScore
	}
	avgRelevance := 0.0
	if len(jm.Context) > 0 {
		avgRelevance = relevanceSum / float64(len(jm.Context))
	}
	successfulOutcomes := 0
	for _, o := range jm.Outcomes {
		if o.Type == types.OutcomeSuccess {
			successfulOutcomes++
		}
	}

	insights := types.MemoryInsights{
		Summary: types.InsightsSummary{
			OverallSuccess: jm.Status == types.StatusCompleted,
			Efficiency:     efficiency,
			LearningValue:  learning,
			ReuseRate:      reuse,
		},
		SuccessPatterns: e.IdentifySuccessPatterns(all),
		FailurePatterns: e.IdentifyFailurePatterns(all),
		DecisionInsight: e.matchPatternsFor(jm, all),
		Recommendations: buildRecommendations(jm, learning, reuse),
		KeyMetrics: types.InsightsMetrics{
			TotalDecisions:      len(jm.Decisions),
			TotalGotchas:        len(jm.Gotchas),
			ResolvedGotchas:     resolved,
			TotalContextEntries: len(jm.Context),
			TotalOutcomes:       len(jm.Outcomes),
			AverageRelevance:    avgRelevance,
		},
	}
	return insights, nil
}

func buildRecommendations(jm *types.JobMemory, learning, reuse float64) types.InsightsRecs {
	var recs types.InsightsRecs
	unresolvedGotchas := 0
	for _, g := range jm.Gotchas {
		if g.Resolution == nil || !g.Resolution.Resolved {
			unresolvedGotchas++
		}
	}
	if unresolvedGotchas > 0 {
		recs.ForFutureJobs = append(recs.ForFutureJobs, "revisit unresolved gotchas from this job before starting similar work")
	}
	if reuse < 0.3 {
		recs.ForKnowledgeBase = append(recs.ForKnowledgeBase, "few knowledge-retrieval context entries were reused; consider indexing this job's decisions for future retrieval")
	}
	if learning < 0.3 {
		recs.ForProcess = append(recs.ForProcess, "low learning score; capture more lessons on decision and outcome records")
	}
	if len(recs.ForFutureJobs) == 0 && len(recs.ForKnowledgeBase) == 0 && len(recs.ForProcess) == 0 {
		recs.ForProcess = append(recs.ForProcess, "no process changes indicated")
	}
	return recs
}

// AnalyzeTrends aggregates every completed job whose endTime falls within
// timeRange. Fails NotFound when no jobs fall in the range.
func (e *Engine) AnalyzeTrends(timeRange types.TrendRange) (types.TrendReport, error) {
	all, err := e.store.LoadAllJobMemories()
	if err != nil {
		return types.TrendReport{}, err
	}

	var inRange []*types.JobMemory
	for _, jm := range all {
		if jm.EndTime == nil {
			continue
		}
		if !timeRange.From.IsZero() && jm.EndTime.Before(timeRange.From) {
			continue
		}
		if !timeRange.To.IsZero() && jm.EndTime.After(timeRange.To) {
			continue
		}
		inRange = append(inRange, jm)
	}
	if len(inRange) == 0 {
		return types.TrendReport{}, joberrors.NotFound("", "no completed jobs fall within the requested time range")
	}

	successes := 0
	var durationSum, learningSum, reuseSum float64
	gotchaCategoryCounts := map[string]int{}
	agentBreakdown := map[string]int{}

	for _, jm := range inRange {
		if jm.Status == types.StatusCompleted {
			successes++
		}
		durationSum += float64(jm.Metadata.TotalDuration)
		learningSum += computeLearningScore(jm)
		reuseSum += computeReuseScore(jm)
		for _, g := range jm.Gotchas {
			if g.Category != "" {
				gotchaCategoryCounts[g.Category]++
			}
		}
		for _, a := range jm.Metadata.AgentTypes {
			agentBreakdown[a]++
		}
	}

	n := float64(len(inRange))
	return types.TrendReport{
		JobCount:            len(inRange),
		SuccessRate:         float64(successes) / n,
		AverageDuration:     durationSum / n,
		AverageLearning:     learningSum / n,
		AverageReuse:        reuseSum / n,
		TopGotchaCategories: topCategories(gotchaCategoryCounts, 5),
		AgentTypeBreakdown:  agentBreakdown,
	}, nil
}

func topCategories(counts map[string]int, limit int) []string {
	type kv struct {
		key   string
		count int
	}
	list := make([]kv, 0, len(counts))
	for k, v := range counts {
		list = append(list, kv{k, v})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].key < list[j].key
	})
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.key
	}
	return out
}

// PredictJobOutcome estimates whether partial (a job still in progress, or
// even an empty skeleton) will succeed, returning a neutral, non-zero
// duration estimate when given no signal at all.
func (e *Engine) PredictJobOutcome(partial *types.JobMemory) types.Prediction {
	if partial == nil {
		return types.Prediction{
			PredictedSuccess:  true,
			Confidence:        0.5,
			EstimatedDuration: 30,
			Recommendations:   []string{"insufficient data; treating as a typical job"},
		}
	}

	unresolvedCritical := 0
	resolvedGotchas := 0
	for _, g := range partial.Gotchas {
		if g.Resolution != nil && g.Resolution.Resolved {
			resolvedGotchas++
			continue
		}
		if g.Severity == types.SeverityCritical || g.Severity == types.SeverityHigh {
			unresolvedCritical++
		}
	}

	var riskFactors, successFactors, recommendations []string
	confidence := 0.5
	predictedSuccess := true

	if unresolvedCritical > 0 {
		predictedSuccess = false
		confidence += 0.2
		riskFactors = append(riskFactors, "unresolved high/critical severity gotchas present")
		recommendations = append(recommendations, "resolve outstanding high-severity gotchas before completion")
	}
	if resolvedGotchas > 0 {
		confidence += 0.1
		successFactors = append(successFactors, "previously encountered gotchas have been resolved")
	}
	if len(partial.Decisions) > 0 {
		confidence += 0.1
		successFactors = append(successFactors, "decisions have been documented with reasoning")
	}

	estimatedDuration := 30
	if !partial.StartTime.IsZero() {
		elapsed := int(timeSinceMinutes(partial.StartTime))
		if elapsed > estimatedDuration {
			estimatedDuration = elapsed + 15
		}
	}
	if len(recommendations) == 0 {
		recommendations = append(recommendations, "continue current trajectory")
	}

	return types.Prediction{
		PredictedSuccess:  predictedSuccess,
		Confidence:        clamp01(confidence),
		EstimatedDuration: estimatedDuration,
		RiskFactors:       riskFactors,
		SuccessFactors:    successFactors,
		Recommendations:   recommendations,
	}
}

// AnalyzeAgentPerformance rolls up success rate, average duration, gotcha
// rate, and learning rate for every job agentType participated in. A
// never-seen agentType yields an all-NaN AgentPerformance, per spec.md
// §4.4's documented division-by-zero sentinel for agent analysis.
func (e *Engine) AnalyzeAgentPerformance(agentType string) (types.AgentPerformance, error) {
	entries, err := e.store.GetJobsByAgent(agentType)
	if err != nil {
		return types.AgentPerformance{}, err
	}
	if len(entries) == 0 {
		nan := math.NaN()
		return types.AgentPerformance{AgentType: agentType, JobCount: 0, SuccessRate: nan, AverageDuration: nan, GotchaRate: nan, LearningRate: nan}, nil
	}

	all, err := e.store.LoadAllJobMemories()
	if err != nil {
		return types.AgentPerformance{}, err
	}
	byID := map[string]*types.JobMemory{}
	for _, jm := range all {
		byID[jm.JobID] = jm
	}

	successes := 0
	var durationSum, learningSum float64
	var gotchaCount int
	for _, entry := range entries {
		if entry.Success {
			successes++
		}
		if entry.Duration != nil {
			durationSum += float64(*entry.Duration)
		}
		gotchaCount += entry.Summary.Gotchas
		if jm, ok := byID[entry.JobID]; ok {
			learningSum += computeLearningScore(jm)
		}
	}
	n := float64(len(entries))

	return types.AgentPerformance{
		AgentType:       agentType,
		JobCount:        len(entries),
		SuccessRate:     float64(successes) / n,
		AverageDuration: durationSum / n,
		GotchaRate:      float64(gotchaCount) / n,
		LearningRate:    learningSum / n,
	}, nil
}

// CompareAgentEffectiveness ranks every agent type that appears in the
// corpus by success rate descending.
func (e *Engine) CompareAgentEffectiveness() ([]types.AgentPerformance, error) {
	all, err := e.store.LoadAllJobMemories()
	if err != nil {
		return nil, err
	}
	agentTypes := map[string]bool{}
	for _, jm := range all {
		for _, a := range jm.Metadata.AgentTypes {
			agentTypes[a] = true
		}
	}

	out := make([]types.AgentPerformance, 0, len(agentTypes))
	for a := range agentTypes {
		perf, err := e.AnalyzeAgentPerformance(a)
		if err != nil {
			continue
		}
		out = append(out, perf)
	}
	sort.Slice(out, func(i, j int) bool {
		if math.IsNaN(out[i].SuccessRate) {
			return false
		}
		if math.IsNaN(out[j].SuccessRate) {
			return true
		}
		return out[i].SuccessRate > out[j].SuccessRate
	})
	return out, nil
}
