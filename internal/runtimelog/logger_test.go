package runtimelog

import (
	"testing"
	"time"

	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	layout := store.NewLayout(t.TempDir())
	if err := layout.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	l := New(layout, Config{BufferSize: 1000, FlushInterval: time.Hour})
	t.Cleanup(func() { _ = l.Shutdown() })
	return l
}

func TestGetLogsForJob_FilterByLevelAndError(t *testing.T) {
	l := newTestLogger(t)
	const jobID = "job-ISSUE-1-1700000000000-abc123"

	if err := l.Log(types.LevelInfo, "step.started", nil, Entry{JobID: jobID}); err != nil {
		t.Fatalf("info: %v", err)
	}
	if err := l.Log(types.LevelWarn, "step.slow", map[string]interface{}{"duration": 4200.0}, Entry{JobID: jobID}); err != nil {
		t.Fatalf("warn: %v", err)
	}
	if err := l.Log(types.LevelError, "step.failed", map[string]interface{}{"error": "connection refused"}, Entry{JobID: jobID}); err != nil {
		t.Fatalf("error: %v", err)
	}

	entries, skipped, err := l.GetLogsForJob(jobID, Filters{
		Levels:   map[types.LogLevel]bool{types.LevelError: true, types.LevelCritical: true},
		HasError: true,
	})
	if err != nil {
		t.Fatalf("GetLogsForJob: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("unexpected skipped count: %d", skipped)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 entry, got %d: %+v", len(entries), entries)
	}
	if entries[0].Event != "step.failed" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestGetLogsForJob_OrderedByTimestampAscending(t *testing.T) {
	l := newTestLogger(t)
	const jobID = "job-ISSUE-2-1700000000000-abc123"

	base := time.Now().Add(-time.Hour)
	for i, event := range []string{"c", "a", "b"} {
		entry := types.RuntimeLogEntry{
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Level:     types.LevelInfo,
			Event:     event,
			JobID:     jobID,
		}
		l.bufMu.Lock()
		l.buf = append(l.buf, bufEntry{entry: entry, issueDir: "ISSUE-2"})
		l.bufMu.Unlock()
	}
	// shuffle the buffer order to prove sorting happens on read, not on write
	l.bufMu.Lock()
	l.buf[0], l.buf[2] = l.buf[2], l.buf[0]
	l.bufMu.Unlock()

	entries, _, err := l.GetLogsForJob(jobID, Filters{})
	if err != nil {
		t.Fatalf("GetLogsForJob: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatalf("entries not in ascending timestamp order: %+v", entries)
		}
	}
}

func TestGetLogsForSession(t *testing.T) {
	l := newTestLogger(t)
	if err := l.Log(types.LevelInfo, "session.tick", nil, Entry{SessionID: "S-1"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := l.Log(types.LevelInfo, "session.tick", nil, Entry{SessionID: "S-2"}); err != nil {
		t.Fatalf("log: %v", err)
	}

	entries, _, err := l.GetLogsForSession("S-1", Filters{})
	if err != nil {
		t.Fatalf("GetLogsForSession: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "S-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestGetLogsForJob_SkipsMalformedLines(t *testing.T) {
	l := newTestLogger(t)
	const jobID = "job-ISSUE-3-1700000000000-abc123"
	if err := l.Log(types.LevelInfo, "ok", nil, Entry{JobID: jobID}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := store.AppendLine(l.activeIssuePath("ISSUE-3"), []byte("not json")); err != nil {
		t.Fatalf("seed malformed line: %v", err)
	}

	entries, skipped, err := l.GetLogsForJob(jobID, Filters{})
	if err != nil {
		t.Fatalf("GetLogsForJob: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped malformed line, got %d", skipped)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 valid entry, got %d", len(entries))
	}
}

func TestFlush_ForcedByErrorLevel(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	if err := layout.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	l := New(layout, Config{BufferSize: 1000, FlushInterval: time.Hour})
	defer l.Shutdown()

	if err := l.Error("boom", nil); err != nil {
		t.Fatalf("Error: %v", err)
	}
	if n := l.Stats(); n != 0 {
		t.Fatalf("expected buffer drained after error-level log, got %d pending", n)
	}
	if !store.Exists(l.activeGlobalPath()) {
		t.Fatalf("expected global log file to exist after forced flush")
	}
}

func TestAnalyzePerformance_NoEvents(t *testing.T) {
	l := newTestLogger(t)
	report, err := l.AnalyzePerformance("job-ISSUE-4-1700000000000-abc123")
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	if report.TotalEvents != 0 || report.Score != 1 {
		t.Fatalf("unexpected report for job with no events: %+v", report)
	}
}

func TestAnalyzePerformance_ComputesRatesAndSlowest(t *testing.T) {
	l := newTestLogger(t)
	const jobID = "job-ISSUE-5-1700000000000-abc123"

	l.Log(types.LevelInfo, "step.a", map[string]interface{}{"duration": 100.0}, Entry{JobID: jobID})
	l.Log(types.LevelInfo, "step.b", map[string]interface{}{"duration": 500.0}, Entry{JobID: jobID})
	l.Log(types.LevelError, "step.c", map[string]interface{}{"error": "timeout"}, Entry{JobID: jobID})

	report, err := l.AnalyzePerformance(jobID)
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	if report.TotalEvents != 3 {
		t.Fatalf("expected 3 events, got %d", report.TotalEvents)
	}
	if report.ErrorRate <= 0 {
		t.Fatalf("expected nonzero error rate, got %v", report.ErrorRate)
	}
	if len(report.SlowestEvents) == 0 || report.SlowestEvents[0].Event != "step.b" {
		t.Fatalf("expected step.b as slowest event, got %+v", report.SlowestEvents)
	}
}

func TestFindErrorPatterns_GroupsBySignature(t *testing.T) {
	l := newTestLogger(t)
	const jobA = "job-ISSUE-6-1700000000000-abc123"
	const jobB = "job-ISSUE-6-1700000000001-def456"

	l.Log(types.LevelError, "fetch.failed", map[string]interface{}{"error": "dial tcp 10.0.0.1:443: i/o timeout"}, Entry{JobID: jobA})
	l.Log(types.LevelError, "fetch.failed", map[string]interface{}{"error": "dial tcp 10.0.0.2:443: i/o timeout"}, Entry{JobID: jobB})
	l.Log(types.LevelCritical, "db.unreachable", map[string]interface{}{"error": "connection refused"}, Entry{JobID: jobA})

	patterns, err := l.FindErrorPatterns("", TimeRange{})
	if err != nil {
		t.Fatalf("FindErrorPatterns: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 distinct patterns, got %d: %+v", len(patterns), patterns)
	}
	top := patterns[0]
	if top.Occurrences != 2 {
		t.Fatalf("expected top pattern to have 2 occurrences, got %d", top.Occurrences)
	}
	if len(top.AffectedJobs) != 2 {
		t.Fatalf("expected pattern to list both affected jobs, got %+v", top.AffectedJobs)
	}
}
