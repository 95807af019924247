// Package memory implements the Memory Manager façade (component C5):
// the single entry point that enforces initialization order, wraps
// every C2/C3/C4 call with instrumentation, and drives gotcha
// promotion after a job completes.
//
// Grounded on the teacher's internal/notifications.Manager: construct
// sub-components in NewManager, fan work out to them, collect and log
// failures without failing the call. That package coordinated toast/
// terminal/banner channels; here the same shape coordinates C2
// (runtime log), C3 (job memory store), C4 (analytics engine), and C6
// (promotion gateway).
package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jobmemory/core/internal/analytics"
	"github.com/jobmemory/core/internal/joberrors"
	"github.com/jobmemory/core/internal/jobmemory"
	"github.com/jobmemory/core/internal/notify"
	"github.com/jobmemory/core/internal/promotion"
	"github.com/jobmemory/core/internal/runtimelog"
	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

// Manager is the C5 façade.
type Manager struct {
	cfg    Config
	layout store.Layout

	initMu sync.Mutex
	ready  bool

	jm      *jobmemory.Store
	rl      *runtimelog.Logger
	cache   *analytics.Cache
	ae      *analytics.Engine
	gateway *promotion.Gateway
	alerter *notify.CriticalAlerter
}

// NewManager constructs a façade around cfg. The returned Manager is
// not ready for mutating calls until Initialize succeeds.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:    cfg,
		layout: store.NewLayout(cfg.StorageBasePath),
	}
	if cfg.DesktopAlertsEnabled {
		m.alerter = notify.NewCriticalAlerter("jobmemory")
	}
	return m
}

// AttachKnowledgeStore wires an outbound promotion target. Calling it
// before Initialize, or more than once, is fine — the last value set
// before a completeJobMemory call is what's used.
func (m *Manager) AttachKnowledgeStore(ks promotion.KnowledgeStore) {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	m.gateway = promotion.New(ks)
}

// Initialize is idempotent: the first call creates every required
// directory, initializes C2 and C4 in parallel, and marks the façade
// ready. Subsequent calls are no-ops returning nil.
func (m *Manager) Initialize() error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.ready {
		return nil
	}

	if err := m.layout.EnsureDirs(); err != nil {
		return err
	}

	var (
		wg       sync.WaitGroup
		cacheErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.rl = runtimelog.New(m.layout, runtimelog.Config{Logger: m.cfg.Logger})
	}()
	go func() {
		defer wg.Done()
		m.cache, cacheErr = analytics.OpenCache(m.layout)
	}()
	wg.Wait()
	if cacheErr != nil {
		// The analytics cache is a pure performance optimization
		// (DESIGN.md, C4): its absence degrades calculations to
		// "always recompute", never to a failed initialization.
		m.cfg.Logger.Printf("[MEMORY] analytics cache unavailable, continuing without it: %v", cacheErr)
		m.cache = nil
	}

	m.jm = jobmemory.New(m.layout)
	m.ae = analytics.New(m.jm, m.rl, m.cache)

	m.ready = true
	m.cfg.Logger.Printf("[MEMORY] initialized at %s", m.cfg.StorageBasePath)
	return nil
}

func (m *Manager) requireReady() error {
	m.initMu.Lock()
	ready := m.ready
	m.initMu.Unlock()
	if !ready {
		return joberrors.NotInitialized("memory manager not initialized")
	}
	return nil
}

// entry logs the info|debug event every mutating call emits on entry, both
// to the diagnostic stdlib logger and — per spec.md §2's "C5 ... emits
// corresponding events to C2" — as a runtime-log event stamped with jobID,
// so the operation is visible to GetLogsForJob/AnalyzePerformance/
// FindErrorPatterns the same way a C3/C4 event would be.
func (m *Manager) entry(op, jobID string) {
	m.cfg.Logger.Printf("[MEMORY] %s start jobId=%s", op, jobID)
	_ = m.rl.Log(types.LevelInfo, op+".start", nil, runtimelog.Entry{JobID: jobID})
}

// outcome logs the error/final-info event, and the threshold warning,
// common to every instrumented operation, to both the stdlib logger and C2.
func (m *Manager) outcome(op, jobID string, start time.Time, err error) {
	elapsed := time.Since(start)
	data := map[string]interface{}{"elapsedMs": elapsed.Milliseconds()}
	if err != nil {
		m.cfg.Logger.Printf("[MEMORY] %s failed jobId=%s elapsed=%s err=%v", op, jobID, elapsed, err)
		data["error"] = err.Error()
		_ = m.rl.Log(types.LevelError, op+".failed", data, runtimelog.Entry{JobID: jobID})
		return
	}
	if elapsed > m.cfg.Thresholds.MemoryOperationTime {
		m.cfg.Logger.Printf("[MEMORY] %s exceeded performance threshold jobId=%s elapsed=%s threshold=%s",
			op, jobID, elapsed, m.cfg.Thresholds.MemoryOperationTime)
		slowData := map[string]interface{}{"elapsedMs": elapsed.Milliseconds(), "thresholdMs": m.cfg.Thresholds.MemoryOperationTime.Milliseconds()}
		_ = m.rl.Log(types.LevelWarn, op+".slow", slowData, runtimelog.Entry{JobID: jobID})
	}
	m.cfg.Logger.Printf("[MEMORY] %s done jobId=%s elapsed=%s", op, jobID, elapsed)
	_ = m.rl.Log(types.LevelInfo, op+".done", data, runtimelog.Entry{JobID: jobID})
}

// InitializeJobMemory mirrors jobmemory.Store.InitializeJobMemory,
// instrumented per §4.5.
func (m *Manager) InitializeJobMemory(issueID, sessionID string) (*types.JobMemory, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("initializeJobMemory", "")
	jm, err := m.jm.InitializeJobMemory(issueID, sessionID)
	jobID := ""
	if jm != nil {
		jobID = jm.JobID
	}
	m.outcome("initializeJobMemory", jobID, start, err)
	return jm, err
}

// GetJobMemory mirrors jobmemory.Store.GetJobMemory.
func (m *Manager) GetJobMemory(jobID string) (*types.JobMemory, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	return m.jm.GetJobMemory(jobID)
}

// GetJobMemorySnapshot returns a value copy of a job's current record,
// never the store's live pointer, per SPEC_FULL.md §10. Grounded on
// the teacher's persistence.JSONStore.GetState "read-only snapshot"
// convenience.
func (m *Manager) GetJobMemorySnapshot(jobID string) (types.JobMemory, error) {
	jm, err := m.GetJobMemory(jobID)
	if err != nil {
		return types.JobMemory{}, err
	}
	if jm == nil {
		return types.JobMemory{}, joberrors.NotFound(jobID, "job memory not found")
	}
	return *jm, nil
}

// UpdateJobMemory mirrors jobmemory.Store.UpdateJobMemory.
func (m *Manager) UpdateJobMemory(jobID string, updates jobmemory.Updates) (*types.JobMemory, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("updateJobMemory", jobID)
	jm, err := m.jm.UpdateJobMemory(jobID, updates)
	m.outcome("updateJobMemory", jobID, start, err)
	return jm, err
}

// RecordDecision mirrors jobmemory.Store.RecordDecision.
func (m *Manager) RecordDecision(jobID string, d types.Decision) (*types.Decision, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("recordDecision", jobID)
	out, err := m.jm.RecordDecision(jobID, d)
	m.outcome("recordDecision", jobID, start, err)
	return out, err
}

// RecordGotcha mirrors jobmemory.Store.RecordGotcha. A severity=critical
// gotcha additionally fires the optional desktop alert when enabled;
// the alert's own failure is logged, never propagated.
func (m *Manager) RecordGotcha(jobID string, g types.Gotcha) (*types.Gotcha, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("recordGotcha", jobID)
	out, err := m.jm.RecordGotcha(jobID, g)
	m.outcome("recordGotcha", jobID, start, err)
	if err == nil && out != nil && out.Severity == types.SeverityCritical && m.alerter != nil {
		if alertErr := m.alerter.NotifyCriticalGotcha(jobID, out.Description); alertErr != nil {
			m.cfg.Logger.Printf("[MEMORY] desktop alert failed jobId=%s err=%v", jobID, alertErr)
		}
	}
	return out, err
}

// RecordContext mirrors jobmemory.Store.RecordContext.
func (m *Manager) RecordContext(jobID string, c types.ContextEntry) (*types.ContextEntry, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("recordContext", jobID)
	out, err := m.jm.RecordContext(jobID, c)
	m.outcome("recordContext", jobID, start, err)
	return out, err
}

// RecordOutcome mirrors jobmemory.Store.RecordOutcome.
func (m *Manager) RecordOutcome(jobID string, o types.Outcome) (*types.Outcome, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("recordOutcome", jobID)
	out, err := m.jm.RecordOutcome(jobID, o)
	m.outcome("recordOutcome", jobID, start, err)
	return out, err
}

// ResolveGotcha mirrors jobmemory.Store.ResolveGotcha.
func (m *Manager) ResolveGotcha(jobID, gotchaID string, resolution types.GotchaResolution) (*types.Gotcha, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("resolveGotcha", jobID)
	out, err := m.jm.ResolveGotcha(jobID, gotchaID, resolution)
	m.outcome("resolveGotcha", jobID, start, err)
	return out, err
}

// UpdateDecisionOutcome mirrors jobmemory.Store.UpdateDecisionOutcome.
func (m *Manager) UpdateDecisionOutcome(jobID, decisionID string, outcome types.DecisionOutcome) (*types.Decision, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("updateDecisionOutcome", jobID)
	out, err := m.jm.UpdateDecisionOutcome(jobID, decisionID, outcome)
	m.outcome("updateDecisionOutcome", jobID, start, err)
	return out, err
}

// TrackContextUsage mirrors jobmemory.Store.TrackContextUsage.
func (m *Manager) TrackContextUsage(jobID, contextID string, usage types.ContextUsage) (*types.ContextEntry, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("trackContextUsage", jobID)
	out, err := m.jm.TrackContextUsage(jobID, contextID, usage)
	m.outcome("trackContextUsage", jobID, start, err)
	return out, err
}

// CompleteJobMemory mirrors jobmemory.Store.CompleteJobMemory, then
// additionally: if analytics is enabled, triggers
// CalculateJobAnalytics; if auto-promotion is enabled and a knowledge
// store is attached, invokes the Promotion Gateway. Both are
// contained — their failure is logged at warn and never fails the
// completion that already succeeded.
func (m *Manager) CompleteJobMemory(jobID string, finalOutcome types.Outcome) (*types.JobMemory, error) {
	if err := m.requireReady(); err != nil {
		return nil, err
	}
	start := time.Now()
	m.entry("completeJobMemory", jobID)
	jm, err := m.jm.CompleteJobMemory(jobID, finalOutcome)
	m.outcome("completeJobMemory", jobID, start, err)
	if err != nil {
		return nil, err
	}

	if m.cfg.AnalyticsEnabled && m.ae != nil {
		// CalculateJobAnalytics is the façade's own C4 mirror: reusing it
		// here, rather than calling m.ae directly, keeps the post-completion
		// trigger's entry/outcome events indistinguishable from a caller
		// invoking analytics explicitly.
		if _, aerr := m.CalculateJobAnalytics(jobID); aerr != nil {
			m.cfg.Logger.Printf("[MEMORY] post-completion analytics failed jobId=%s err=%v", jobID, aerr)
			_ = m.rl.Log(types.LevelWarn, "completeJobMemory.analyticsFailed",
				map[string]interface{}{"error": aerr.Error()}, runtimelog.Entry{JobID: jobID})
		}
	}

	if m.cfg.AutoPromoteGotchas && m.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		result := m.gateway.ForwardGotchas(ctx, jm)
		cancel()
		for gotchaID, perr := range result.Failures {
			m.cfg.Logger.Printf("[MEMORY] gotcha promotion failed jobId=%s gotchaId=%s err=%v", jobID, gotchaID, perr)
			_ = m.rl.Log(types.LevelWarn, "completeJobMemory.promotionFailed",
				map[string]interface{}{"gotchaId": gotchaID, "error": perr.Error()}, runtimelog.Entry{JobID: jobID})
			if m.alerter != nil {
				if alertErr := m.alerter.NotifyPromotionFailed(jobID, gotchaID, perr); alertErr != nil {
					m.cfg.Logger.Printf("[MEMORY] desktop alert failed jobId=%s err=%v", jobID, alertErr)
				}
			}
		}
		if result.Promoted > 0 {
			m.cfg.Logger.Printf("[MEMORY] promoted %d gotcha(s) jobId=%s", result.Promoted, jobID)
			_ = m.rl.Log(types.LevelInfo, "completeJobMemory.promoted",
				map[string]interface{}{"count": result.Promoted}, runtimelog.Entry{JobID: jobID})
		}
	}

	m.cfg.Logger.Printf("[MEMORY] completeJobMemory finished jobId=%s status=%s", jobID, jm.Status)
	_ = m.rl.Log(types.LevelInfo, "completeJobMemory.finished",
		map[string]interface{}{"status": string(jm.Status)}, runtimelog.Entry{JobID: jobID})
	return jm, nil
}

// ArchiveJobMemory mirrors jobmemory.Store.ArchiveJobMemory.
func (m *Manager) ArchiveJobMemory(jobID string) error {
	if err := m.requireReady(); err != nil {
		return err
	}
	start := time.Now()
	m.entry("archiveJobMemory", jobID)
	err := m.jm.ArchiveJobMemory(jobID)
	m.outcome("archiveJobMemory", jobID, start, err)
	if m.cache != nil {
		m.cache.Invalidate(jobID)
	}
	return err
}

// CleanupResult reports what happened during a parallel C3/C2 cleanup pass.
type CleanupResult struct {
	Memory jobmemory.CleanupResult
	Logs   int
	LogErr error
}

// Cleanup runs jobmemory.Store.Cleanup and runtimelog.Logger.CleanupLogs
// in parallel, per §4.5.
func (m *Manager) Cleanup() (CleanupResult, error) {
	if err := m.requireReady(); err != nil {
		return CleanupResult{}, err
	}
	start := time.Now()
	m.entry("cleanup", "")

	var (
		wg      sync.WaitGroup
		memRes  jobmemory.CleanupResult
		memErr  error
		logsN   int
		logsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		memRes, memErr = m.jm.Cleanup(m.cfg.RetentionDays)
	}()
	go func() {
		defer wg.Done()
		logsN, logsErr = m.rl.CleanupLogs(m.cfg.LogRetentionDays)
	}()
	wg.Wait()

	m.outcome("cleanup", "", start, memErr)
	if logsErr != nil {
		m.cfg.Logger.Printf("[MEMORY] log cleanup failed err=%v", logsErr)
	}
	return CleanupResult{Memory: memRes, Logs: logsN, LogErr: logsErr}, memErr
}

// CompressOldMemories archives, with archive compression, every job whose
// endTime is older than daysOld, and returns how many were archived.
// Gated on cfg.CompressionEnabled; returns 0, nil when disabled, per
// the documented Disabled no-op value (spec.md §7.6) rather than an
// error, since disablement here is a normal configuration choice.
func (m *Manager) CompressOldMemories(daysOld int) (int, error) {
	if err := m.requireReady(); err != nil {
		return 0, err
	}
	if !m.cfg.CompressionEnabled {
		return 0, nil
	}
	// Archival already compresses (jobmemory.Store.ArchiveJobMemory's
	// compressForArchive truncates long content), so this runs the
	// store's Cleanup sweep with daysOld as the horizon. A daysOld below
	// retentionDays is rejected with an error; jobs younger than
	// retentionDays are never swept here.
	if daysOld < m.cfg.RetentionDays {
		return 0, fmt.Errorf("compressOldMemories: daysOld (%d) must be >= retentionDays (%d)", daysOld, m.cfg.RetentionDays)
	}
	res, err := m.jm.Cleanup(daysOld)
	if err != nil {
		return res.Archived, err
	}
	return res.Archived, nil
}

// Health reports whether the façade's dependencies are reachable: the
// storage directory is writable, the runtime logger has been created
// (its background flush goroutine is not probed), and the analytics
// cache (if any) responds to a query.
// Grounded on the teacher's MemoryDB.Health() and internal/instance's
// liveness-check idiom, repurposed as a façade-level operation.
type Health struct {
	Ready            bool
	StorageWritable  bool
	LogWriterAlive   bool
	AnalyticsCacheOK bool
}

func (m *Manager) Health() Health {
	m.initMu.Lock()
	ready := m.ready
	m.initMu.Unlock()
	h := Health{Ready: ready}
	if !ready {
		return h
	}

	probe := m.layout.ArchivePath(".health-probe")
	if err := store.AtomicWriteFile(probe, []byte("ok"), 0o644); err == nil {
		h.StorageWritable = true
		_ = store.RemoveFile(probe)
	}

	h.LogWriterAlive = m.rl != nil
	if m.cache != nil {
		var discard types.JobAnalytics
		_, _, err := m.cache.GetJobAnalytics(".health-probe", &discard)
		h.AnalyticsCacheOK = err == nil
	}
	return h
}

// Shutdown drains and stops the background runtime log flush timer.
func (m *Manager) Shutdown() error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if !m.ready {
		return nil
	}
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			log.Printf("[MEMORY] analytics cache close failed: %v", err)
		}
	}
	return m.rl.Shutdown()
}
