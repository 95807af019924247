package analytics

import (
	"math"
	"testing"

	"github.com/jobmemory/core/internal/joberrors"
	"github.com/jobmemory/core/internal/jobmemory"
	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *jobmemory.Store) {
	t.Helper()
	layout := store.NewLayout(t.TempDir())
	if err := layout.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	js := jobmemory.New(layout)
	return New(js, nil, nil), js
}

func completeJobWithCategory(t *testing.T, js *jobmemory.Store, issueID, category string, succeed bool) string {
	t.Helper()
	jm, err := js.InitializeJobMemory(issueID, "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}
	if _, err := js.RecordDecision(jm.JobID, types.Decision{
		AgentType:   "planner",
		Category:    category,
		Description: "shared approach",
		Options:     []types.DecisionOption{{Name: "only", Selected: true}},
	}); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	outcomeType := types.OutcomeSuccess
	if !succeed {
		outcomeType = types.OutcomeFailure
	}
	if _, err := js.CompleteJobMemory(jm.JobID, types.Outcome{AgentType: "planner", Type: outcomeType}); err != nil {
		t.Fatalf("CompleteJobMemory: %v", err)
	}
	return jm.JobID
}

func TestIdentifySuccessPatterns_MinimumSupport(t *testing.T) {
	engine, js := newTestEngine(t)

	completeJobWithCategory(t, js, "I-1", "refactor", true)
	completeJobWithCategory(t, js, "I-2", "refactor", true)

	all, err := js.LoadAllJobMemories()
	if err != nil {
		t.Fatalf("LoadAllJobMemories: %v", err)
	}
	patterns := engine.IdentifySuccessPatterns(all)
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns below minimum support, got %+v", patterns)
	}

	completeJobWithCategory(t, js, "I-3", "refactor", true)
	all, err = js.LoadAllJobMemories()
	if err != nil {
		t.Fatalf("LoadAllJobMemories: %v", err)
	}
	patterns = engine.IdentifySuccessPatterns(all)
	if len(patterns) != 1 {
		t.Fatalf("expected exactly 1 pattern once support reaches 3, got %+v", patterns)
	}
	p := patterns[0]
	if p.Occurrences < 3 {
		t.Fatalf("expected occurrences >= 3, got %d", p.Occurrences)
	}
	if p.Confidence < 0.7 {
		t.Fatalf("expected confidence >= 0.7, got %v", p.Confidence)
	}
}

func TestCalculateJobEfficiency_Bounds(t *testing.T) {
	engine, js := newTestEngine(t)
	jobID := completeJobWithCategory(t, js, "I-10", "arch", true)

	eff, err := engine.CalculateJobEfficiency(jobID)
	if err != nil {
		t.Fatalf("CalculateJobEfficiency: %v", err)
	}
	if eff < 0 || eff > 1 {
		t.Fatalf("efficiency out of [0,1]: %v", eff)
	}
}

func TestFindSimilarJobs_ThresholdAndSort(t *testing.T) {
	engine, js := newTestEngine(t)

	jobA := completeJobWithCategory(t, js, "I-20", "same-category", true)
	completeJobWithCategory(t, js, "I-21", "same-category", true)
	completeJobWithCategory(t, js, "I-22", "totally-different-category", true)

	similar, err := engine.FindSimilarJobs(jobA)
	if err != nil {
		t.Fatalf("FindSimilarJobs: %v", err)
	}
	for _, s := range similar {
		if s.Similarity < similarityThreshold {
			t.Fatalf("result below threshold: %+v", s)
		}
	}
	for i := 1; i < len(similar); i++ {
		if similar[i].Similarity > similar[i-1].Similarity {
			t.Fatalf("results not sorted by similarity descending: %+v", similar)
		}
	}
}

func TestAnalyzeTrends_NotFoundWhenEmpty(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.AnalyzeTrends(types.TrendRange{})
	if !joberrors.IsNotFound(err) {
		t.Fatalf("expected NotFound error when no jobs fall in range, got %v", err)
	}
}

func TestPredictJobOutcome_EmptyInputIsNeutral(t *testing.T) {
	engine, _ := newTestEngine(t)
	pred := engine.PredictJobOutcome(nil)
	if pred.EstimatedDuration <= 0 {
		t.Fatalf("expected nonzero duration estimate, got %d", pred.EstimatedDuration)
	}
	if pred.Confidence < 0 || pred.Confidence > 1 {
		t.Fatalf("confidence out of [0,1]: %v", pred.Confidence)
	}
}

func TestAnalyzeAgentPerformance_UnseenAgentIsNaN(t *testing.T) {
	engine, _ := newTestEngine(t)
	perf, err := engine.AnalyzeAgentPerformance("never-seen")
	if err != nil {
		t.Fatalf("AnalyzeAgentPerformance: %v", err)
	}
	if !math.IsNaN(perf.SuccessRate) {
		t.Fatalf("expected NaN success rate for unseen agent, got %v", perf.SuccessRate)
	}
}

func TestCompareAgentEffectiveness_RanksBySuccessRate(t *testing.T) {
	engine, js := newTestEngine(t)
	completeJobWithCategory(t, js, "I-30", "cat-a", true)
	completeJobWithCategory(t, js, "I-31", "cat-a", false)

	ranked, err := engine.CompareAgentEffectiveness()
	if err != nil {
		t.Fatalf("CompareAgentEffectiveness: %v", err)
	}
	if len(ranked) == 0 {
		t.Fatalf("expected at least one agent in the ranking")
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].SuccessRate > ranked[i-1].SuccessRate {
			t.Fatalf("ranking not ordered by success rate descending: %+v", ranked)
		}
	}
}
