// Package analytics implements the Analytics Engine (component C4): it
// consumes JobMemory records from the Job Memory Store to compute per-job
// efficiency/learning/reuse scores, mine cross-job success and failure
// patterns, find similar jobs, predict outcomes, and roll up per-agent
// performance. Every operation here is read-only with respect to the store.
//
// Grounded on the teacher's internal/tasks package (the closest thing in
// the pack to a derived-metrics layer: it walked a collection of task
// records to produce summary counts), generalized from task-completion
// tallies into the richer scoring/pattern-mining surface this spec needs.
package analytics

import (
	"log"
	"time"

	"github.com/jobmemory/core/internal/jobmemory"
	"github.com/jobmemory/core/internal/joberrors"
	"github.com/jobmemory/core/internal/runtimelog"
	"github.com/jobmemory/core/internal/types"
)

// Store is the subset of *jobmemory.Store the engine depends on, named as
// an interface so tests can supply an in-memory fake without spinning up a
// real filesystem tree.
type Store interface {
	GetJobMemory(jobID string) (*types.JobMemory, error)
	LoadAllJobMemories() ([]*types.JobMemory, error)
	GetJobsByAgent(agentType string) ([]types.GlobalJobEntry, error)
}

var _ Store = (*jobmemory.Store)(nil)

// Engine is the C4 Analytics Engine.
type Engine struct {
	store  Store
	logger *runtimelog.Logger
	cache  *Cache // may be nil when the analytics cache is disabled

	// CalculationTimeout is the advisory threshold past which a warning is
	// logged (spec.md §4.4's analyticsCalculationTimeMs).
	CalculationTimeout time.Duration
}

// New creates an Engine backed by store, optionally logging to logger and
// caching computed results in cache.
func New(store Store, logger *runtimelog.Logger, cache *Cache) *Engine {
	return &Engine{
		store:              store,
		logger:             logger,
		cache:              cache,
		CalculationTimeout: 500 * time.Millisecond,
	}
}

func (e *Engine) warnIfSlow(jobID, operation string, start time.Time) {
	elapsed := time.Since(start)
	if elapsed <= e.CalculationTimeout {
		return
	}
	if e.logger != nil {
		_ = e.logger.Log(types.LevelWarn, "analytics."+operation+".slow", map[string]interface{}{
			"elapsedMs": elapsed.Milliseconds(),
		}, runtimelog.Entry{JobID: jobID})
		return
	}
	log.Printf("[ANALYTICS] %s exceeded threshold for job %s: %s", operation, jobID, elapsed)
}

// CalculateJobAnalytics computes the full analytics bundle for jobID:
// efficiency metrics, pattern matches against the rest of the corpus, and
// the three headline scores.
func (e *Engine) CalculateJobAnalytics(jobID string) (types.JobAnalytics, error) {
	start := time.Now()
	defer e.warnIfSlow(jobID, "calculateJobAnalytics", start)

	jm, err := e.store.GetJobMemory(jobID)
	if err != nil {
		return types.JobAnalytics{}, err
	}
	if jm == nil {
		return types.JobAnalytics{}, joberrors.NotFound(jobID, "job memory not found")
	}

	efficiency := computeEfficiencyMetrics(jm)
	learning := computeLearningScore(jm)
	reuse := computeReuseScore(jm)
	innovation := computeInnovationScore(jm)

	var matches []types.PatternMatch
	if all, err := e.store.LoadAllJobMemories(); err == nil {
		matches = e.matchPatternsFor(jm, all)
	}

	result := types.JobAnalytics{
		PatternMatches:    matches,
		EfficiencyMetrics: efficiency,
		LearningScore:     learning,
		ReuseScore:        reuse,
		InnovationScore:   innovation,
	}
	if e.cache != nil {
		e.cache.PutJobAnalytics(jobID, result)
	}
	return result, nil
}

// CalculateJobEfficiency reduces a job's efficiency metrics to a single
// [0,1] score, weighting a low error rate and a high knowledge-reuse rate.
func (e *Engine) CalculateJobEfficiency(jobID string) (float64, error) {
	jm, err := e.store.GetJobMemory(jobID)
	if err != nil {
		return 0, err
	}
	if jm == nil {
		return 0, joberrors.NotFound(jobID, "job memory not found")
	}
	m := computeEfficiencyMetrics(jm)
	return clamp01((1-m.ErrorRate)*0.6 + m.KnowledgeReuseRate*0.4), nil
}

// CalculateLearningScore rewards jobs that resolved their gotchas and
// captured lessons along the way.
func (e *Engine) CalculateLearningScore(jobID string) (float64, error) {
	jm, err := e.store.GetJobMemory(jobID)
	if err != nil {
		return 0, err
	}
	if jm == nil {
		return 0, joberrors.NotFound(jobID, "job memory not found")
	}
	return computeLearningScore(jm), nil
}

// CalculateReuseScore rewards jobs that leaned on prior knowledge-retrieval
// context entries with recorded, impactful usage.
func (e *Engine) CalculateReuseScore(jobID string) (float64, error) {
	jm, err := e.store.GetJobMemory(jobID)
	if err != nil {
		return 0, err
	}
	if jm == nil {
		return 0, joberrors.NotFound(jobID, "job memory not found")
	}
	return computeReuseScore(jm), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
