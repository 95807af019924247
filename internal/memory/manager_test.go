package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobmemory/core/internal/joberrors"
	"github.com/jobmemory/core/internal/promotion"
	"github.com/jobmemory/core/internal/runtimelog"
	"github.com/jobmemory/core/internal/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Config{
		StorageBasePath:    t.TempDir(),
		AnalyticsEnabled:   true,
		AutoPromoteGotchas: true,
	})
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func TestInitialize_IsIdempotent(t *testing.T) {
	m := NewManager(Config{StorageBasePath: t.TempDir()})
	for i := 0; i < 3; i++ {
		if err := m.Initialize(); err != nil {
			t.Fatalf("Initialize call %d: %v", i, err)
		}
	}
	h := m.Health()
	if !h.Ready || !h.StorageWritable {
		t.Fatalf("expected ready+writable health after repeated Initialize, got %+v", h)
	}
	_ = m.Shutdown()
}

func TestMutatingCall_BeforeInitialize_FailsNotInitialized(t *testing.T) {
	m := NewManager(Config{StorageBasePath: t.TempDir()})
	_, err := m.InitializeJobMemory("I-1", "S-1")
	if !joberrors.IsNotInitialized(err) {
		t.Fatalf("expected NotInitialized, got %v", err)
	}
}

func TestCompleteJobMemory_TriggersAnalyticsAndPromotion(t *testing.T) {
	m := newTestManager(t)

	var recorded int
	m.AttachKnowledgeStore(&promotion.InProcessStore{
		RecordFn: func(ctx context.Context, pattern promotion.GotchaPattern) error {
			recorded++
			return nil
		},
	})

	jm, err := m.InitializeJobMemory("I-1", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}

	_, err = m.RecordDecision(jm.JobID, types.Decision{
		AgentType:   "planner",
		Category:    "arch",
		Description: "use X",
	})
	if err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}

	g, err := m.RecordGotcha(jm.JobID, types.Gotcha{
		AgentType:    "impl",
		Severity:     types.SeverityCritical,
		Category:     "concurrency",
		Description:  "deadlock",
		ErrorPattern: "circular dep",
	})
	if err != nil {
		t.Fatalf("RecordGotcha: %v", err)
	}

	_, err = m.ResolveGotcha(jm.JobID, g.ID, types.GotchaResolution{
		Resolved:   true,
		Solution:   "inject",
		Confidence: 0.9,
		Timestamp:  time.Now(),
	})
	if err != nil {
		t.Fatalf("ResolveGotcha: %v", err)
	}

	completed, err := m.CompleteJobMemory(jm.JobID, types.Outcome{
		Type:        types.OutcomeSuccess,
		Description: "shipped",
	})
	if err != nil {
		t.Fatalf("CompleteJobMemory: %v", err)
	}
	if completed.Status != types.StatusCompleted {
		t.Fatalf("expected completed status, got %s", completed.Status)
	}
	if recorded != 1 {
		t.Fatalf("expected exactly 1 gotcha promoted, got %d", recorded)
	}

	snap, err := m.GetJobMemorySnapshot(jm.JobID)
	if err != nil {
		t.Fatalf("GetJobMemorySnapshot: %v", err)
	}
	if snap.JobID != jm.JobID {
		t.Fatalf("snapshot jobId mismatch")
	}
}

func TestCompleteJobMemory_PromotionFailureDoesNotFailCompletion(t *testing.T) {
	m := newTestManager(t)
	m.AttachKnowledgeStore(&promotion.InProcessStore{
		RecordFn: func(ctx context.Context, pattern promotion.GotchaPattern) error {
			return errors.New("knowledge store unreachable")
		},
	})

	jm, err := m.InitializeJobMemory("I-2", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}
	g, err := m.RecordGotcha(jm.JobID, types.Gotcha{
		AgentType:    "impl",
		Severity:     types.SeverityHigh,
		Category:     "io",
		Description:  "flaky write",
		ErrorPattern: "enoent",
	})
	if err != nil {
		t.Fatalf("RecordGotcha: %v", err)
	}
	if _, err := m.ResolveGotcha(jm.JobID, g.ID, types.GotchaResolution{
		Resolved:   true,
		Solution:   "retry",
		Confidence: 0.85,
		Timestamp:  time.Now(),
	}); err != nil {
		t.Fatalf("ResolveGotcha: %v", err)
	}

	completed, err := m.CompleteJobMemory(jm.JobID, types.Outcome{Type: types.OutcomeSuccess})
	if err != nil {
		t.Fatalf("expected completion to succeed despite promotion failure, got %v", err)
	}
	if completed.Status != types.StatusCompleted {
		t.Fatalf("expected completed status, got %s", completed.Status)
	}
}

func TestCleanup_RunsStoreAndLogCleanupInParallel(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.InitializeJobMemory("I-3", "S-1"); err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}
	result, err := m.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Memory.Failures == nil {
		t.Fatalf("expected a non-nil failures map even when empty")
	}
}

func TestCompressOldMemories_DisabledIsNoOp(t *testing.T) {
	mgr := newTestManager(t) // CompressionEnabled defaults to false
	n, err := mgr.CompressOldMemories(mgr.cfg.RetentionDays)
	if err != nil {
		t.Fatalf("CompressOldMemories: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 when compression disabled, got %d", n)
	}
}

func TestHealth_ReportsUnreadyBeforeInitialize(t *testing.T) {
	m := NewManager(Config{StorageBasePath: t.TempDir()})
	h := m.Health()
	if h.Ready {
		t.Fatalf("expected Ready=false before Initialize")
	}
}

func TestAnalyticsPassThroughs_RequireReady(t *testing.T) {
	m := NewManager(Config{StorageBasePath: t.TempDir()})
	if _, err := m.CalculateJobAnalytics("I-1"); !joberrors.IsNotInitialized(err) {
		t.Fatalf("CalculateJobAnalytics: expected NotInitialized, got %v", err)
	}
	if _, err := m.GetMemoryInsights("I-1"); !joberrors.IsNotInitialized(err) {
		t.Fatalf("GetMemoryInsights: expected NotInitialized, got %v", err)
	}
	if _, err := m.FindSimilarJobs("I-1"); !joberrors.IsNotInitialized(err) {
		t.Fatalf("FindSimilarJobs: expected NotInitialized, got %v", err)
	}
	if _, err := m.CompareAgentEffectiveness(); !joberrors.IsNotInitialized(err) {
		t.Fatalf("CompareAgentEffectiveness: expected NotInitialized, got %v", err)
	}
}

func TestCalculateJobAnalytics_AfterCompletion(t *testing.T) {
	m := newTestManager(t)
	jm, err := m.InitializeJobMemory("I-4", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}
	if _, err := m.RecordDecision(jm.JobID, types.Decision{
		AgentType:   "planner",
		Category:    "arch",
		Description: "use Y",
	}); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	if _, err := m.CompleteJobMemory(jm.JobID, types.Outcome{Type: types.OutcomeSuccess}); err != nil {
		t.Fatalf("CompleteJobMemory: %v", err)
	}

	if _, err := m.CalculateJobAnalytics(jm.JobID); err != nil {
		t.Fatalf("CalculateJobAnalytics: %v", err)
	}

	if _, err := m.CalculateJobEfficiency(jm.JobID); err != nil {
		t.Fatalf("CalculateJobEfficiency: %v", err)
	}
	if _, err := m.CalculateLearningScore(jm.JobID); err != nil {
		t.Fatalf("CalculateLearningScore: %v", err)
	}
	if _, err := m.CalculateReuseScore(jm.JobID); err != nil {
		t.Fatalf("CalculateReuseScore: %v", err)
	}

	if _, err := m.GetMemoryInsights(jm.JobID); err != nil {
		t.Fatalf("GetMemoryInsights: %v", err)
	}

	pred, err := m.PredictJobOutcome(jm)
	if err != nil {
		t.Fatalf("PredictJobOutcome: %v", err)
	}
	_ = pred

	if _, err := m.AnalyzeAgentPerformance("planner"); err != nil {
		t.Fatalf("AnalyzeAgentPerformance: %v", err)
	}
	if _, err := m.CompareAgentEffectiveness(); err != nil {
		t.Fatalf("CompareAgentEffectiveness: %v", err)
	}
	if _, err := m.IdentifySuccessPatterns(); err != nil {
		t.Fatalf("IdentifySuccessPatterns: %v", err)
	}
	if _, err := m.IdentifyFailurePatterns(); err != nil {
		t.Fatalf("IdentifyFailurePatterns: %v", err)
	}
	if _, err := m.FindSimilarJobs(jm.JobID); err != nil {
		t.Fatalf("FindSimilarJobs: %v", err)
	}
	if _, err := m.SearchSimilarPatterns(types.PatternQuery{AgentType: "planner"}); err != nil {
		t.Fatalf("SearchSimilarPatterns: %v", err)
	}
	if _, err := m.AnalyzeTrends(types.TrendRange{}); err != nil {
		t.Fatalf("AnalyzeTrends: %v", err)
	}
}

func TestMutatingCalls_EmitRuntimeLogEvents(t *testing.T) {
	m := newTestManager(t)
	jm, err := m.InitializeJobMemory("I-5", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}
	if _, err := m.RecordDecision(jm.JobID, types.Decision{
		AgentType:   "planner",
		Category:    "arch",
		Description: "use Z",
	}); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	if _, err := m.CalculateJobAnalytics(jm.JobID); err != nil {
		t.Fatalf("CalculateJobAnalytics: %v", err)
	}

	if err := m.rl.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	entries, _, err := m.rl.GetLogsForJob(jm.JobID, runtimelog.Filters{})
	if err != nil {
		t.Fatalf("GetLogsForJob: %v", err)
	}

	var sawRecordDecision, sawAnalytics bool
	for _, e := range entries {
		if e.JobID != jm.JobID {
			t.Fatalf("expected every entry stamped with jobId %s, got %s", jm.JobID, e.JobID)
		}
		switch e.Event {
		case "recordDecision.done":
			sawRecordDecision = true
		case "calculateJobAnalytics.done":
			sawAnalytics = true
		}
	}
	if !sawRecordDecision {
		t.Fatalf("expected a recordDecision.done runtime-log event, got %+v", entries)
	}
	if !sawAnalytics {
		t.Fatalf("expected a calculateJobAnalytics.done runtime-log event, got %+v", entries)
	}
}

func TestLoadConfig_DecodesYAML(t *testing.T) {
	doc := []byte(`
storageBasePath: /tmp/jobmemory
retentionDays: 45
analyticsEnabled: true
autoPromoteGotchas: true
performanceThresholds:
  memoryOperationTimeMs: 100
  logWriteTimeMs: 10
`)
	cfg, err := LoadConfig(doc)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StorageBasePath != "/tmp/jobmemory" || cfg.RetentionDays != 45 {
		t.Fatalf("unexpected decoded config: %+v", cfg)
	}
	if !cfg.AnalyticsEnabled || !cfg.AutoPromoteGotchas {
		t.Fatalf("expected both flags true, got %+v", cfg)
	}
	if cfg.Thresholds.MemoryOperationTime != 100*time.Millisecond {
		t.Fatalf("expected 100ms threshold, got %s", cfg.Thresholds.MemoryOperationTime)
	}
}
