package runtimelog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jobmemory/core/internal/types"
)

// PerformanceReport is the result of AnalyzePerformance for a single job.
type PerformanceReport struct {
	JobID           string        `json:"jobId"`
	TotalEvents     int           `json:"totalEvents"`
	AverageDuration float64       `json:"averageDuration"`
	SlowestEvents   []SlowEvent   `json:"slowestEvents"`
	ErrorRate       float64       `json:"errorRate"`
	WarningRate     float64       `json:"warningRate"`
	Score           float64       `json:"score"`
	Recommendations []string      `json:"recommendations"`
}

// SlowEvent names one of the N slowest events observed in a job's log.
type SlowEvent struct {
	Event    string  `json:"event"`
	Duration float64 `json:"duration"`
}

const slowestN = 5

// AnalyzePerformance summarizes the runtime log entries recorded for jobID:
// total event count, average reported duration, the slowest events, error
// and warning rates, and an overall score with prose recommendations.
func (l *Logger) AnalyzePerformance(jobID string) (PerformanceReport, error) {
	entries, _, err := l.GetLogsForJob(jobID, Filters{})
	if err != nil {
		return PerformanceReport{}, err
	}

	report := PerformanceReport{JobID: jobID, TotalEvents: len(entries)}
	if len(entries) == 0 {
		report.Score = 1
		report.Recommendations = append(report.Recommendations, "no runtime events recorded for this job")
		return report, nil
	}

	var durationSum float64
	var durationCount int
	var errorCount, warnCount int
	slow := make([]SlowEvent, 0, len(entries))

	for _, e := range entries {
		switch e.Level {
		case types.LevelError, types.LevelCritical:
			errorCount++
		case types.LevelWarn:
			warnCount++
		}
		if d, ok := durationOf(e); ok {
			durationSum += d
			durationCount++
			slow = append(slow, SlowEvent{Event: e.Event, Duration: d})
		}
	}

	if durationCount > 0 {
		report.AverageDuration = durationSum / float64(durationCount)
	}
	sort.Slice(slow, func(i, j int) bool { return slow[i].Duration > slow[j].Duration })
	if len(slow) > slowestN {
		slow = slow[:slowestN]
	}
	report.SlowestEvents = slow

	total := float64(len(entries))
	report.ErrorRate = float64(errorCount) / total
	report.WarningRate = float64(warnCount) / total

	report.Score = clamp01(1 - (report.ErrorRate*0.7 + report.WarningRate*0.3))
	report.Recommendations = recommendationsFor(report)
	return report, nil
}

func durationOf(e types.RuntimeLogEntry) (float64, bool) {
	if e.Data == nil {
		return 0, false
	}
	raw, ok := e.Data["duration"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func recommendationsFor(r PerformanceReport) []string {
	var recs []string
	if r.ErrorRate > 0.1 {
		recs = append(recs, fmt.Sprintf("error rate %.0f%% is high; investigate recurring failures before scaling this job type", r.ErrorRate*100))
	}
	if r.WarningRate > 0.25 {
		recs = append(recs, "warning rate is elevated; review near-miss conditions for a root cause")
	}
	if len(r.SlowestEvents) > 0 && r.SlowestEvents[0].Duration > 0 {
		recs = append(recs, fmt.Sprintf("slowest event %q took %.0fms; consider profiling this step", r.SlowestEvents[0].Event, r.SlowestEvents[0].Duration))
	}
	if len(recs) == 0 {
		recs = append(recs, "no significant performance issues detected")
	}
	return recs
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

// ErrorPattern groups error/critical entries sharing a normalized error
// signature.
type ErrorPattern struct {
	Signature       string    `json:"signature"`
	Occurrences     int       `json:"occurrences"`
	EarliestSeen    time.Time `json:"earliestSeen"`
	LatestSeen      time.Time `json:"latestSeen"`
	AffectedJobs    []string  `json:"affectedJobs"`
	RemediationHint string    `json:"remediationHint"`
}

// TimeRange bounds a FindErrorPatterns scan. Zero values are unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// FindErrorPatterns scans the global log (optionally narrowed to agentType
// and/or a time range) for error/critical entries, groups them by a
// normalized error signature, and returns one ErrorPattern per group sorted
// by occurrence count descending.
func (l *Logger) FindErrorPatterns(agentType string, window TimeRange) ([]ErrorPattern, error) {
	filters := Filters{
		Levels: map[types.LogLevel]bool{types.LevelError: true, types.LevelCritical: true},
		From:   window.From,
		To:     window.To,
	}

	var entries []types.RuntimeLogEntry
	var err error
	if agentType != "" {
		entries, _, err = l.GetLogsForAgent(agentType, filters)
	} else {
		if flushErr := l.Flush(); flushErr != nil {
			return nil, flushErr
		}
		paths := logFilesFor(l.layout.GlobalLogDir())
		res := scanFiles(paths, nil, filters)
		entries = res.entries
	}
	if err != nil {
		return nil, err
	}

	groups := map[string]*ErrorPattern{}
	order := []string{}
	jobSeen := map[string]map[string]bool{}
	for _, e := range entries {
		sig := errorSignature(e)
		p, ok := groups[sig]
		if !ok {
			p = &ErrorPattern{Signature: sig, EarliestSeen: e.Timestamp, LatestSeen: e.Timestamp}
			groups[sig] = p
			order = append(order, sig)
			jobSeen[sig] = map[string]bool{}
		}
		p.Occurrences++
		if e.Timestamp.Before(p.EarliestSeen) {
			p.EarliestSeen = e.Timestamp
		}
		if e.Timestamp.After(p.LatestSeen) {
			p.LatestSeen = e.Timestamp
		}
		if e.JobID != "" && !jobSeen[sig][e.JobID] {
			jobSeen[sig][e.JobID] = true
			p.AffectedJobs = append(p.AffectedJobs, e.JobID)
		}
	}

	patterns := make([]ErrorPattern, 0, len(order))
	for _, sig := range order {
		p := groups[sig]
		p.RemediationHint = remediationHint(p)
		patterns = append(patterns, *p)
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Occurrences > patterns[j].Occurrences })
	return patterns, nil
}

// errorSignature normalizes an entry's event name and error message so
// occurrences differing only in embedded identifiers (ids, paths, numbers)
// still group together.
func errorSignature(e types.RuntimeLogEntry) string {
	msg := ""
	if e.Data != nil {
		if raw, ok := e.Data["error"]; ok {
			if s, ok := raw.(string); ok {
				msg = normalizeErrorMessage(s)
			}
		}
	}
	if msg == "" {
		return e.Event
	}
	return e.Event + ": " + msg
}

func normalizeErrorMessage(msg string) string {
	fields := strings.Fields(msg)
	for i, f := range fields {
		if isNumericish(f) {
			fields[i] = "#"
		}
	}
	return strings.Join(fields, " ")
}

func isNumericish(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return len(s) > 0 && digits*2 >= len(s)
}

func remediationHint(p *ErrorPattern) string {
	if p.Occurrences >= 5 {
		return fmt.Sprintf("recurring failure (%d occurrences across %d job(s)); treat as a systemic issue, not a one-off", p.Occurrences, len(p.AffectedJobs))
	}
	return "isolated occurrence; monitor for recurrence before escalating"
}
