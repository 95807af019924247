package memory

import (
	"time"

	"github.com/jobmemory/core/internal/runtimelog"
	"github.com/jobmemory/core/internal/types"
)

// The façade's public surface mirrors C4's operations too (spec.md
// §4.5). CalculateJobAnalytics is instrumented like the C3 mirrors in
// manager.go: an entry event, a failure event with elapsed time, and a
// threshold warning that never fails the call. The other C4 mirrors are
// read-only queries guarded by requireReady alone and emit no events.

// CalculateJobAnalytics mirrors analytics.Engine.CalculateJobAnalytics.
func (m *Manager) CalculateJobAnalytics(jobID string) (types.JobAnalytics, error) {
	if err := m.requireReady(); err != nil {
		return types.JobAnalytics{}, err
	}
	start := time.Now()
	m.entry("calculateJobAnalytics", jobID)
	result, err := m.ae.CalculateJobAnalytics(jobID)
	m.analyticsOutcome("calculateJobAnalytics", jobID, start, err)
	return result, err
}

// CalculateJobEfficiency mirrors analytics.Engine.CalculateJobEfficiency.
func (m *Manager) CalculateJobEfficiency(jobID string) (float64, error) {
	if err := m.requireReady(); err != nil {
		return 0, err
	}
	return m.ae.CalculateJobEfficiency(jobID)
}

// CalculateLearningScore mirrors analytics.Engine.CalculateLearningScore.
func (m *Manager) CalculateLearningScore(jobID string) (float64, error) {
	if err := m.requireReady(); err != nil {
		return 0, err
	}
	return m.ae.CalculateLearningScore(jobID)
}

// CalculateReuseScore mirrors analytics.Engine.CalculateReuseScore.
func (m *Manager) CalculateReuseScore(jobID string) (float64, error) {
	if err := m.requireReady(); err != nil {
		return 0, err
	}
	return m.ae.CalculateReuseScore(jobID)
}

// IdentifySuccessPatterns mirrors analytics.Engine.IdentifySuccessPatterns,
// mining across every job currently in the global index.
func (m *Manager) IdentifySuccessPatterns() ([]types.PatternMatch, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	jobs, err := m.jm.LoadAllJobMemories()
	if err != nil {
		return nil, err
	}
	return m.ae.IdentifySuccessPatterns(jobs), nil
}

// IdentifyFailurePatterns mirrors analytics.Engine.IdentifyFailurePatterns.
func (m *Manager) IdentifyFailurePatterns() ([]types.PatternMatch, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	jobs, err := m.jm.LoadAllJobMemories()
	if err != nil {
		return nil, err
	}
	return m.ae.IdentifyFailurePatterns(jobs), nil
}

// SearchSimilarPatterns mirrors analytics.Engine.SearchSimilarPatterns.
func (m *Manager) SearchSimilarPatterns(query types.PatternQuery) ([]types.PatternMatch, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	return m.ae.SearchSimilarPatterns(query)
}

// FindSimilarJobs mirrors analytics.Engine.FindSimilarJobs.
func (m *Manager) FindSimilarJobs(jobID string) ([]types.SimilarJob, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	return m.ae.FindSimilarJobs(jobID)
}

// GetMemoryInsights mirrors analytics.Engine.GetMemoryInsights.
func (m *Manager) GetMemoryInsights(jobID string) (types.MemoryInsights, error) {
	if err := m.requireReady(); err != nil {
		return types.MemoryInsights{}, err
	}
	return m.ae.GetMemoryInsights(jobID)
}

// AnalyzeTrends mirrors analytics.Engine.AnalyzeTrends.
func (m *Manager) AnalyzeTrends(timeRange types.TrendRange) (types.TrendReport, error) {
	if err := m.requireReady(); err != nil {
		return types.TrendReport{}, err
	}
	return m.ae.AnalyzeTrends(timeRange)
}

// PredictJobOutcome mirrors analytics.Engine.PredictJobOutcome.
func (m *Manager) PredictJobOutcome(partial *types.JobMemory) (types.Prediction, error) {
	if err := m.requireReady(); err != nil {
		return types.Prediction{}, err
	}
	return m.ae.PredictJobOutcome(partial), nil
}

// AnalyzeAgentPerformance mirrors analytics.Engine.AnalyzeAgentPerformance.
func (m *Manager) AnalyzeAgentPerformance(agentType string) (types.AgentPerformance, error) {
	if err := m.requireReady(); err != nil {
		return types.AgentPerformance{}, err
	}
	return m.ae.AnalyzeAgentPerformance(agentType)
}

// CompareAgentEffectiveness mirrors analytics.Engine.CompareAgentEffectiveness.
func (m *Manager) CompareAgentEffectiveness() ([]types.AgentPerformance, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	return m.ae.CompareAgentEffectiveness()
}

// analyticsOutcome is outcome's analytics-threshold counterpart:
// calculateJobAnalytics is warned against analyticsCalculationTimeMs, not
// memoryOperationTimeMs, and — per spec.md §2's "C5 ... emits corresponding
// events to C2" — emitted as a runtime-log event in addition to the stdlib
// diagnostic line.
func (m *Manager) analyticsOutcome(op, jobID string, start time.Time, err error) {
	elapsed := time.Since(start)
	data := map[string]interface{}{"elapsedMs": elapsed.Milliseconds()}
	if err != nil {
		m.cfg.Logger.Printf("[MEMORY] %s failed jobId=%s elapsed=%s err=%v", op, jobID, elapsed, err)
		data["error"] = err.Error()
		_ = m.rl.Log(types.LevelError, op+".failed", data, runtimelog.Entry{JobID: jobID})
		return
	}
	if elapsed > m.cfg.Thresholds.AnalyticsCalculationTime {
		m.cfg.Logger.Printf("[MEMORY] %s exceeded performance threshold jobId=%s elapsed=%s threshold=%s",
			op, jobID, elapsed, m.cfg.Thresholds.AnalyticsCalculationTime)
		slowData := map[string]interface{}{"elapsedMs": elapsed.Milliseconds(), "thresholdMs": m.cfg.Thresholds.AnalyticsCalculationTime.Milliseconds()}
		_ = m.rl.Log(types.LevelWarn, op+".slow", slowData, runtimelog.Entry{JobID: jobID})
	}
	m.cfg.Logger.Printf("[MEMORY] %s done jobId=%s elapsed=%s", op, jobID, elapsed)
	_ = m.rl.Log(types.LevelInfo, op+".done", data, runtimelog.Entry{JobID: jobID})
}
