// Package types holds the domain model shared across the job memory and
// analytics layer: the JobMemory aggregate and its collection entries, the
// compact global job index record, and the structured runtime log entry.
package types

import "time"

// Status is the lifecycle state of a JobMemory.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Complexity classifies the estimated difficulty of a job.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Severity grades how serious a Gotcha is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// OutcomeType classifies an Outcome or a final job result.
type OutcomeType string

const (
	OutcomeSuccess OutcomeType = "success"
	OutcomeFailure OutcomeType = "failure"
	OutcomePartial OutcomeType = "partial"
)

// JobMemory is the root record for one job.
type JobMemory struct {
	JobID     string `json:"jobId"`
	IssueID   string `json:"issueId"`
	SessionID string `json:"sessionId"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Status    Status     `json:"status"`

	Decisions []*Decision     `json:"decisions"`
	Gotchas   []*Gotcha       `json:"gotchas"`
	Context   []*ContextEntry `json:"context"`
	Outcomes  []*Outcome      `json:"outcomes"`

	Metadata  JobMetadata  `json:"metadata"`
	Analytics JobAnalytics `json:"analytics"`
}

// JobMetadata carries cross-cutting, computed-as-you-go job attributes.
type JobMetadata struct {
	AgentTypes      []string   `json:"agentTypes"`
	Complexity      Complexity `json:"complexity"`
	Priority        string     `json:"priority"`
	Tags            []string   `json:"tags,omitempty"`
	RelatedIssueIDs []string   `json:"relatedIssueIds,omitempty"`
	ChildJobIDs     []string   `json:"childJobIds,omitempty"`
	TotalDuration   int        `json:"totalDuration,omitempty"` // minutes
}

// EfficiencyMetrics captures per-job timing/reuse ratios computed by analytics.
type EfficiencyMetrics struct {
	DecisionTime          float64 `json:"decisionTime"`
	GotchaResolutionTime   float64 `json:"gotchaResolutionTime"`
	ContextRetrievalTime   float64 `json:"contextRetrievalTime"`
	KnowledgeReuseRate     float64 `json:"knowledgeReuseRate"`
	ErrorRate              float64 `json:"errorRate"`
}

// JobAnalytics is the analytics-engine-computed portion of a JobMemory.
type JobAnalytics struct {
	PatternMatches    []PatternMatch    `json:"patternMatches,omitempty"`
	EfficiencyMetrics EfficiencyMetrics `json:"efficiencyMetrics"`
	LearningScore     float64           `json:"learningScore"`
	ReuseScore        float64           `json:"reuseScore"`
	InnovationScore   float64           `json:"innovationScore"`
}

// DecisionOption is one weighed alternative in a Decision.
type DecisionOption struct {
	Name     string   `json:"name"`
	Pros     []string `json:"pros,omitempty"`
	Cons     []string `json:"cons,omitempty"`
	Selected bool     `json:"selected"`
}

// DecisionOutcome is recorded once the consequence of a Decision is known.
type DecisionOutcome struct {
	Success   bool             `json:"success"`
	Metrics   DecisionMetrics  `json:"metrics"`
	Lessons   []string         `json:"lessons,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// DecisionMetrics quantifies how a decision played out.
type DecisionMetrics struct {
	ImplementationTime float64 `json:"implementationTime"`
	CodeQuality        float64 `json:"codeQuality"`
	Maintainability    float64 `json:"maintainability"`
	TestCoverage       float64 `json:"testCoverage"`
}

// Decision is a choice made by an agent during a job.
type Decision struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	AgentType   string            `json:"agentType"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	Reasoning   string            `json:"reasoning"`
	Options     []DecisionOption  `json:"options"`
	Outcome     *DecisionOutcome  `json:"outcome,omitempty"`
}

// GotchaResolution is recorded once a Gotcha has been worked around or fixed.
type GotchaResolution struct {
	Resolved        bool      `json:"resolved"`
	ResolutionTime  float64   `json:"resolutionTime"`
	Solution        string    `json:"solution"`
	PreventionSteps []string  `json:"preventionSteps,omitempty"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
}

// Gotcha is an encountered pitfall.
type Gotcha struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	AgentType       string            `json:"agentType"`
	Severity        Severity          `json:"severity"`
	Category        string            `json:"category"`
	Description     string            `json:"description"`
	ErrorPattern    string            `json:"errorPattern"`
	Context         string            `json:"context"`
	PreventionNotes string            `json:"preventionNotes,omitempty"`
	Resolution      *GotchaResolution `json:"resolution,omitempty"`
}

// ContextUsage records how a ContextEntry influenced a decision or gotcha.
type ContextUsage struct {
	DecisionID string    `json:"decisionId,omitempty"`
	GotchaID   string    `json:"gotchaId,omitempty"`
	Impact     string    `json:"impact"`
	Timestamp  time.Time `json:"timestamp"`
}

// ContextEntry is an artifact consulted during the job.
type ContextEntry struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	AgentType      string         `json:"agentType"`
	Type           string         `json:"type"`
	Source         string         `json:"source"`
	Content        string         `json:"content"`
	RelevanceScore float64        `json:"relevanceScore"`
	Usage          []ContextUsage `json:"usage"`
}

// CodeChanges summarizes the size of a code change behind an Outcome.
type CodeChanges struct {
	LinesAdded    int `json:"linesAdded"`
	LinesRemoved  int `json:"linesRemoved"`
	FilesModified int `json:"filesModified"`
}

// QualityMetrics summarizes code-health signals behind an Outcome.
type QualityMetrics struct {
	TestCoverage float64 `json:"testCoverage"`
	LintErrors   int     `json:"lintErrors"`
	TypeErrors   int     `json:"typeErrors"`
	Complexity   float64 `json:"complexity"`
}

// OutcomeMetrics is the quantified detail behind an Outcome.
type OutcomeMetrics struct {
	Duration       float64        `json:"duration"`
	CodeChanges    CodeChanges    `json:"codeChanges"`
	QualityMetrics QualityMetrics `json:"qualityMetrics"`
}

// Outcome is a graded result event recorded during or at the end of a job.
type Outcome struct {
	ID               string         `json:"id"`
	Timestamp        time.Time      `json:"timestamp"`
	AgentType        string         `json:"agentType"`
	Type             OutcomeType    `json:"type"`
	Category         string         `json:"category"`
	Description      string         `json:"description"`
	Metrics          OutcomeMetrics `json:"metrics"`
	RelatedDecisions []string       `json:"relatedDecisions,omitempty"`
	RelatedGotchas   []string       `json:"relatedGotchas,omitempty"`
	Lessons          []string       `json:"lessons,omitempty"`
}

// GlobalJobSummary is the compact per-job counts block kept in the global index.
type GlobalJobSummary struct {
	Decisions        int `json:"decisions"`
	Gotchas          int `json:"gotchas"`
	ResolvedGotchas  int `json:"resolvedGotchas"`
	ContextEntries   int `json:"contextEntries"`
	Outcomes         int `json:"outcomes"`
	SuccessfulOutcomes int `json:"successfulOutcomes"`
	KeyLearnings     int `json:"keyLearnings"`
	PromotedGotchas  int `json:"promotedGotchas"`
}

// GlobalJobEntry is the compact cross-job index record.
type GlobalJobEntry struct {
	JobID      string           `json:"jobId"`
	IssueID    string           `json:"issueId"`
	Title      string           `json:"title,omitempty"`
	Status     Status           `json:"status"`
	AgentTypes []string         `json:"agentTypes"`
	StartTime  time.Time        `json:"startTime"`
	EndTime    *time.Time       `json:"endTime,omitempty"`
	Duration   *int             `json:"duration,omitempty"` // minutes
	Success    bool             `json:"success"`
	Summary    GlobalJobSummary `json:"summary"`
}

// LogLevel is the severity of a RuntimeLogEntry.
type LogLevel string

const (
	LevelTrace    LogLevel = "trace"
	LevelDebug    LogLevel = "debug"
	LevelInfo     LogLevel = "info"
	LevelWarn     LogLevel = "warn"
	LevelError    LogLevel = "error"
	LevelCritical LogLevel = "critical"
)

// LevelRank gives a total order over log levels for threshold comparisons.
func LevelRank(l LogLevel) int {
	switch l {
	case LevelTrace:
		return 0
	case LevelDebug:
		return 1
	case LevelInfo:
		return 2
	case LevelWarn:
		return 3
	case LevelError:
		return 4
	case LevelCritical:
		return 5
	default:
		return 2
	}
}

// RuntimeLogEntry is one structured event emitted by the runtime logger.
type RuntimeLogEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	Level         LogLevel               `json:"level"`
	Event         string                 `json:"event"`
	Data          map[string]interface{} `json:"data,omitempty"`
	SessionID     string                 `json:"sessionId,omitempty"`
	JobID         string                 `json:"jobId,omitempty"`
	AgentType     string                 `json:"agentType,omitempty"`
	CorrelationID string                 `json:"correlationId"`
}
