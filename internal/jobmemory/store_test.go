package jobmemory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	layout := store.NewLayout(t.TempDir())
	if err := layout.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return New(layout)
}

func TestHappyPath(t *testing.T) {
	s := newTestStore(t)

	jm, err := s.InitializeJobMemory("I-1", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}

	_, err = s.RecordDecision(jm.JobID, types.Decision{
		AgentType:   "planner",
		Category:    "arch",
		Description: "use X",
		Options: []types.DecisionOption{
			{Name: "X", Selected: true},
			{Name: "Y", Selected: false},
		},
	})
	if err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}

	gotcha, err := s.RecordGotcha(jm.JobID, types.Gotcha{
		AgentType:    "impl",
		Severity:     types.SeverityHigh,
		ErrorPattern: "circular dep",
	})
	if err != nil {
		t.Fatalf("RecordGotcha: %v", err)
	}

	if _, err := s.ResolveGotcha(jm.JobID, gotcha.ID, types.GotchaResolution{
		Resolved:   true,
		Solution:   "inject",
		Confidence: 0.9,
	}); err != nil {
		t.Fatalf("ResolveGotcha: %v", err)
	}

	final, err := s.CompleteJobMemory(jm.JobID, types.Outcome{
		AgentType: "impl",
		Type:      types.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("CompleteJobMemory: %v", err)
	}

	if final.Status != types.StatusCompleted {
		t.Fatalf("expected status=completed, got %s", final.Status)
	}
	wantAgents := map[string]bool{"planner": true, "impl": true}
	if len(final.Metadata.AgentTypes) != len(wantAgents) {
		t.Fatalf("unexpected agentTypes: %v", final.Metadata.AgentTypes)
	}
	for _, a := range final.Metadata.AgentTypes {
		if !wantAgents[a] {
			t.Fatalf("unexpected agent type %q in %v", a, final.Metadata.AgentTypes)
		}
	}

	entries, err := s.GetGlobalJobLog()
	if err != nil {
		t.Fatalf("GetGlobalJobLog: %v", err)
	}
	if len(entries) != 1 || !entries[0].Success {
		t.Fatalf("expected global entry with success=true, got %+v", entries)
	}
}

func TestCompleteJobMemory_TiedOutcomesFail(t *testing.T) {
	s := newTestStore(t)
	jm, err := s.InitializeJobMemory("I-2", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}

	if _, err := s.RecordOutcome(jm.JobID, types.Outcome{AgentType: "a", Type: types.OutcomeSuccess}); err != nil {
		t.Fatalf("RecordOutcome success: %v", err)
	}
	if _, err := s.RecordOutcome(jm.JobID, types.Outcome{AgentType: "a", Type: types.OutcomeFailure}); err != nil {
		t.Fatalf("RecordOutcome failure 1: %v", err)
	}
	if _, err := s.RecordOutcome(jm.JobID, types.Outcome{AgentType: "a", Type: types.OutcomeFailure}); err != nil {
		t.Fatalf("RecordOutcome failure 2: %v", err)
	}

	final, err := s.CompleteJobMemory(jm.JobID, types.Outcome{AgentType: "a", Type: types.OutcomeSuccess})
	if err != nil {
		t.Fatalf("CompleteJobMemory: %v", err)
	}
	if final.Status != types.StatusFailed {
		t.Fatalf("expected status=failed on a 2-2 tie, got %s", final.Status)
	}
}

func TestRecordDecision_ConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	jm, err := s.InitializeJobMemory("I-3", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.RecordDecision(jm.JobID, types.Decision{
				AgentType:   fmt.Sprintf("agent-%d", i),
				Category:    "concurrency",
				Description: "decision",
				Options:     []types.DecisionOption{{Name: "only", Selected: true}},
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("RecordDecision[%d]: %v", i, err)
		}
	}

	final, err := s.GetJobMemory(jm.JobID)
	if err != nil {
		t.Fatalf("GetJobMemory: %v", err)
	}
	if len(final.Decisions) != n {
		t.Fatalf("expected %d decisions, got %d", n, len(final.Decisions))
	}
	ids := map[string]bool{}
	for _, d := range final.Decisions {
		if ids[d.ID] {
			t.Fatalf("duplicate decision id %s", d.ID)
		}
		ids[d.ID] = true
	}
	if len(final.Metadata.AgentTypes) != n {
		t.Fatalf("expected %d distinct agent types, got %d: %v", n, len(final.Metadata.AgentTypes), final.Metadata.AgentTypes)
	}
}

// TestGetJobMemory_ConcurrentWithWriters exercises the cache-hit read path
// (GetJobMemory, unlocked) racing against the write path (RecordDecision,
// locked): every read must see a coherent snapshot, never a torn one, and
// must never alias a slice a concurrent writer is still appending to.
func TestGetJobMemory_ConcurrentWithWriters(t *testing.T) {
	s := newTestStore(t)
	jm, err := s.InitializeJobMemory("I-3b", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.RecordDecision(jm.JobID, types.Decision{
				AgentType:   fmt.Sprintf("agent-%d", i),
				Category:    "concurrency",
				Description: "decision",
			})
			if err != nil {
				t.Errorf("RecordDecision[%d]: %v", i, err)
			}
		}(i)
		go func() {
			defer wg.Done()
			read, err := s.GetJobMemory(jm.JobID)
			if err != nil {
				t.Errorf("GetJobMemory: %v", err)
				return
			}
			if read == nil {
				t.Errorf("GetJobMemory: expected a record, got nil")
				return
			}
			if len(read.Decisions) > n {
				t.Errorf("GetJobMemory: saw %d decisions, more than the %d ever written", len(read.Decisions), n)
			}
		}()
	}
	wg.Wait()

	final, err := s.GetJobMemory(jm.JobID)
	if err != nil {
		t.Fatalf("GetJobMemory: %v", err)
	}
	if len(final.Decisions) != n {
		t.Fatalf("expected %d decisions, got %d", n, len(final.Decisions))
	}
}

func TestRetentionAndArchival(t *testing.T) {
	s := newTestStore(t)
	jm, err := s.InitializeJobMemory("I-4", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}

	longContent := ""
	for i := 0; i < 600; i++ {
		longContent += "x"
	}
	if _, err := s.RecordContext(jm.JobID, types.ContextEntry{
		AgentType: "a",
		Type:      "knowledge-retrieval",
		Source:    "card-1",
		Content:   longContent,
	}); err != nil {
		t.Fatalf("RecordContext: %v", err)
	}

	if _, err := s.CompleteJobMemory(jm.JobID, types.Outcome{AgentType: "a", Type: types.OutcomeSuccess}); err != nil {
		t.Fatalf("CompleteJobMemory: %v", err)
	}

	// Backdate endTime in both the live... record is gone from cache (completed
	// evicts), so we rewrite the global index entry and the archived... no,
	// completion has not archived yet. We must backdate via the global index
	// and the memory.json file directly, simulating time having passed.
	const retentionDays = 30
	backdated := time.Now().AddDate(0, 0, -(retentionDays + 1))

	entries, err := s.readGlobalEntries()
	if err != nil {
		t.Fatalf("readGlobalEntries: %v", err)
	}
	for i := range entries {
		if entries[i].JobID == jm.JobID {
			entries[i].EndTime = &backdated
		}
	}
	if err := s.rewriteGlobalIndex(entries); err != nil {
		t.Fatalf("rewriteGlobalIndex: %v", err)
	}

	issueID, err := store.IssueIDFromJobID(jm.JobID)
	if err != nil {
		t.Fatalf("IssueIDFromJobID: %v", err)
	}
	onDisk, err := s.GetJobMemory(jm.JobID)
	if err != nil {
		t.Fatalf("GetJobMemory before backdate: %v", err)
	}
	onDisk.EndTime = &backdated
	if err := s.writeLocked(onDisk); err != nil {
		t.Fatalf("writeLocked: %v", err)
	}

	result, err := s.Cleanup(retentionDays)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Archived != 1 {
		t.Fatalf("expected 1 archived job, got %d (failures: %v)", result.Archived, result.Failures)
	}

	if store.Exists(s.layout.MemoryFilePath(issueID)) {
		t.Fatalf("expected memory.json to be removed")
	}
	if !store.Exists(s.layout.ArchivePath(jm.JobID)) {
		t.Fatalf("expected archive copy to exist")
	}

	archived, err := store.ReadFile(s.layout.ArchivePath(jm.JobID))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if !containsTruncationMarker(archived) {
		t.Fatalf("expected archived context content to be truncated with ..., got %s", archived)
	}

	remaining, err := s.GetGlobalJobLog()
	if err != nil {
		t.Fatalf("GetGlobalJobLog: %v", err)
	}
	for _, e := range remaining {
		if e.JobID == jm.JobID {
			t.Fatalf("expected job to be absent from jobs.ndjson after cleanup")
		}
	}

	after, err := s.GetJobMemory(jm.JobID)
	if err != nil {
		t.Fatalf("GetJobMemory after cleanup: %v", err)
	}
	if after != nil {
		t.Fatalf("expected nil after archival, got %+v", after)
	}
}

func containsTruncationMarker(data []byte) bool {
	s := string(data)
	for i := 0; i+3 <= len(s); i++ {
		if s[i:i+3] == "..." {
			return true
		}
	}
	return false
}

func TestGetJobMemory_AbsentReturnsNilNoError(t *testing.T) {
	s := newTestStore(t)
	jm, err := s.GetJobMemory("job-does-not-exist-1700000000000-abc123")
	if err != nil {
		t.Fatalf("expected nil error for absent job, got %v", err)
	}
	if jm != nil {
		t.Fatalf("expected nil record, got %+v", jm)
	}
}

func TestResolveGotcha_NotFound(t *testing.T) {
	s := newTestStore(t)
	jm, err := s.InitializeJobMemory("I-5", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}
	_, err = s.ResolveGotcha(jm.JobID, "gotcha-missing", types.GotchaResolution{Resolved: true})
	if err == nil {
		t.Fatalf("expected NotFound error for missing gotcha")
	}
}

func TestUpdateJobMemory_UnionsTagsAndDeepMergesAnalytics(t *testing.T) {
	s := newTestStore(t)
	jm, err := s.InitializeJobMemory("I-6", "S-1")
	if err != nil {
		t.Fatalf("InitializeJobMemory: %v", err)
	}

	priority := "p1"
	updated, err := s.UpdateJobMemory(jm.JobID, Updates{
		Metadata: &MetadataPatch{
			Priority: &priority,
			Tags:     []string{"urgent", "customer-facing"},
		},
		Analytics: &types.JobAnalytics{LearningScore: 0.5},
	})
	if err != nil {
		t.Fatalf("UpdateJobMemory: %v", err)
	}
	if updated.Metadata.Priority != "p1" {
		t.Fatalf("expected priority p1, got %s", updated.Metadata.Priority)
	}
	if len(updated.Metadata.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", updated.Metadata.Tags)
	}

	updated, err = s.UpdateJobMemory(jm.JobID, Updates{
		Metadata:  &MetadataPatch{Tags: []string{"urgent", "new-tag"}},
		Analytics: &types.JobAnalytics{ReuseScore: 0.4},
	})
	if err != nil {
		t.Fatalf("UpdateJobMemory 2nd: %v", err)
	}
	if len(updated.Metadata.Tags) != 3 {
		t.Fatalf("expected tags to union to 3 entries, got %v", updated.Metadata.Tags)
	}
	if updated.Analytics.LearningScore != 0.5 || updated.Analytics.ReuseScore != 0.4 {
		t.Fatalf("expected analytics to deep-merge to learning=0.5 reuse=0.4, got %+v", updated.Analytics)
	}
}
