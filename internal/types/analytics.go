package types

import "time"

// PatternMatch is a repeated structure observed across jobs.
type PatternMatch struct {
	ID               string    `json:"id"`
	Description      string    `json:"description"`
	Confidence       float64   `json:"confidence"`
	Occurrences      int       `json:"occurrences"`
	Conditions       []string  `json:"conditions,omitempty"`
	Outcomes         []string  `json:"outcomes,omitempty"`
	ApplicableAgents []string  `json:"applicableAgents,omitempty"`
	AffectedAgents   []string  `json:"affectedAgents,omitempty"`
	FirstSeen        time.Time `json:"firstSeen"`
	LastSeen         time.Time `json:"lastSeen"`
}

// SimilarJob is a cross-job similarity result.
type SimilarJob struct {
	JobID      string  `json:"jobId"`
	Similarity float64 `json:"similarity"`
}

// PatternQuery parameterizes a similarity search over mined patterns.
type PatternQuery struct {
	Type          string
	Description   string
	AgentType     string
	MinConfidence float64
	MaxResults    int
}

// Prediction is the result of predicting a partial job's eventual outcome.
type Prediction struct {
	PredictedSuccess  bool     `json:"predictedSuccess"`
	Confidence        float64  `json:"confidence"`
	EstimatedDuration int      `json:"estimatedDuration"` // minutes
	RiskFactors       []string `json:"riskFactors,omitempty"`
	SuccessFactors    []string `json:"successFactors,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
}

// MemoryInsights bundles the analytics engine's summary view of one job.
type MemoryInsights struct {
	Summary         InsightsSummary  `json:"summary"`
	SuccessPatterns []PatternMatch   `json:"successPatterns"`
	FailurePatterns []PatternMatch   `json:"failurePatterns"`
	DecisionInsight []PatternMatch   `json:"decisionInsights"`
	Recommendations InsightsRecs     `json:"recommendations"`
	KeyMetrics      InsightsMetrics  `json:"keyMetrics"`
}

// InsightsSummary is the top-level narrative block of MemoryInsights.
type InsightsSummary struct {
	OverallSuccess bool    `json:"overallSuccess"`
	Efficiency     float64 `json:"efficiency"`
	LearningValue  float64 `json:"learningValue"`
	ReuseRate      float64 `json:"reuseRate"`
}

// InsightsRecs is the prose-recommendation block of MemoryInsights.
type InsightsRecs struct {
	ForFutureJobs   []string `json:"forFutureJobs,omitempty"`
	ForKnowledgeBase []string `json:"forKnowledgeBase,omitempty"`
	ForProcess      []string `json:"forProcess,omitempty"`
}

// InsightsMetrics is the totals/averages block of MemoryInsights.
type InsightsMetrics struct {
	TotalDecisions       int     `json:"totalDecisions"`
	TotalGotchas         int     `json:"totalGotchas"`
	ResolvedGotchas      int     `json:"resolvedGotchas"`
	TotalContextEntries  int     `json:"totalContextEntries"`
	TotalOutcomes        int     `json:"totalOutcomes"`
	AverageRelevance     float64 `json:"averageRelevance"`
}

// TrendRange bounds a time window for analyzeTrends.
type TrendRange struct {
	From time.Time
	To   time.Time
}

// TrendReport aggregates outcomes across all completed jobs in a TrendRange.
type TrendReport struct {
	JobCount           int            `json:"jobCount"`
	SuccessRate        float64        `json:"successRate"`
	AverageDuration    float64        `json:"averageDuration"`
	AverageLearning    float64        `json:"averageLearning"`
	AverageReuse       float64        `json:"averageReuse"`
	TopGotchaCategories []string      `json:"topGotchaCategories,omitempty"`
	AgentTypeBreakdown map[string]int `json:"agentTypeBreakdown,omitempty"`
}

// AgentPerformance is the per-agent-type rollup analytics produce.
type AgentPerformance struct {
	AgentType       string  `json:"agentType"`
	JobCount        int     `json:"jobCount"`
	SuccessRate     float64 `json:"successRate"`
	AverageDuration float64 `json:"averageDuration"`
	GotchaRate      float64 `json:"gotchaRate"`
	LearningRate    float64 `json:"learningRate"`
}
