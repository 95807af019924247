package runtimelog

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

// Filters narrows a log retrieval. Any combination may be set; a zero value
// field is treated as "no constraint" for that dimension.
type Filters struct {
	Levels   map[types.LogLevel]bool
	Events   map[string]bool
	From     time.Time
	To       time.Time
	HasError bool
}

func (f Filters) matches(e types.RuntimeLogEntry) bool {
	if len(f.Levels) > 0 && !f.Levels[e.Level] {
		return false
	}
	if len(f.Events) > 0 && !f.Events[e.Event] {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.HasError {
		if e.Data == nil {
			return false
		}
		if _, ok := e.Data["error"]; !ok {
			return false
		}
	}
	return true
}

// scanResult is every matching entry from a set of log files, plus a count
// of lines that failed to parse (skipped, never fatal — spec.md §4.2).
type scanResult struct {
	entries []types.RuntimeLogEntry
	skipped int
}

func scanFiles(paths []string, pred func(types.RuntimeLogEntry) bool, filters Filters) scanResult {
	var out scanResult
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var entry types.RuntimeLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				out.skipped++
				continue
			}
			if pred != nil && !pred(entry) {
				continue
			}
			if !filters.matches(entry) {
				continue
			}
			out.entries = append(out.entries, entry)
		}
		f.Close()
	}
	sort.Slice(out.entries, func(i, j int) bool {
		return out.entries[i].Timestamp.Before(out.entries[j].Timestamp)
	})
	return out
}

// GetLogsForJob scans the per-issue log directory for jobID's issue (plus
// any rotated files there) and returns matching entries in timestamp order.
func (l *Logger) GetLogsForJob(jobID string, filters Filters) ([]types.RuntimeLogEntry, int, error) {
	if err := l.Flush(); err != nil {
		return nil, 0, err
	}
	issueID, err := store.IssueIDFromJobID(jobID)
	if err != nil {
		return nil, 0, err
	}
	paths := logFilesFor(l.layout.IssueLogDir(issueID))
	res := scanFiles(paths, func(e types.RuntimeLogEntry) bool { return e.JobID == jobID }, filters)
	return res.entries, res.skipped, nil
}

// GetLogsForSession scans the global log (and its rotated files) for
// entries tagged with sessionID.
func (l *Logger) GetLogsForSession(sessionID string, filters Filters) ([]types.RuntimeLogEntry, int, error) {
	if err := l.Flush(); err != nil {
		return nil, 0, err
	}
	paths := logFilesFor(l.layout.GlobalLogDir())
	res := scanFiles(paths, func(e types.RuntimeLogEntry) bool { return e.SessionID == sessionID }, filters)
	return res.entries, res.skipped, nil
}

// GetLogsForAgent scans the global log (and its rotated files) for entries
// tagged with agentType.
func (l *Logger) GetLogsForAgent(agentType string, filters Filters) ([]types.RuntimeLogEntry, int, error) {
	if err := l.Flush(); err != nil {
		return nil, 0, err
	}
	paths := logFilesFor(l.layout.GlobalLogDir())
	res := scanFiles(paths, func(e types.RuntimeLogEntry) bool { return e.AgentType == agentType }, filters)
	return res.entries, res.skipped, nil
}
