// Package runtimelog implements the structured, buffered, rotating
// runtime event log (component C2): a per-job/per-session/per-agent
// queryable stream of RuntimeLogEntry records, append-only on disk.
//
// Grounded on the teacher's internal/events.Bus (subscriber fan-out over a
// buffered channel, a droppedEvents-style counter) and internal/events.Event
// (the id/timestamp/payload shape), translated from a pub/sub bus into a
// buffered append-only file log: trace/debug/info entries batch in memory,
// warn flushes promptly, error/critical force a synchronous flush so they
// are durable before the emitting call returns.
package runtimelog

import (
	"encoding/json"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

// LogContext carries the per-caller defaults stamped onto every entry that
// does not explicitly override them.
type LogContext struct {
	SessionID string
	JobID     string
	AgentType string
}

// Config tunes the buffering/rotation/retention policy.
type Config struct {
	// BufferSize is how many trace/debug/info entries accumulate before a
	// forced flush. Zero selects a default of 200.
	BufferSize int
	// FlushInterval is how often the background drain timer fires. Zero
	// selects a default of 2s.
	FlushInterval time.Duration
	// RotateMaxBytes rotates the active log file once it exceeds this
	// size. Zero selects a default of 10MiB.
	RotateMaxBytes int64
	// RotateMaxAge rotates the active log file once it is older than this.
	// Zero disables age-based rotation.
	RotateMaxAge time.Duration
	// Logger receives internal diagnostics (e.g. a write failure that must
	// never propagate to the emitting call path).
	Logger *log.Logger
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 200
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.RotateMaxBytes <= 0 {
		c.RotateMaxBytes = 10 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Logger is the C2 runtime log implementation.
type Logger struct {
	layout store.Layout
	cfg    Config

	ctxMu sync.Mutex
	ctx   LogContext

	bufMu sync.Mutex
	buf   []bufEntry

	stopOnce sync.Once
	stopCh   chan struct{}
	stopWG   sync.WaitGroup
}

// bufEntry pairs an entry with the issue whose per-issue log it is also
// mirrored to on flush.
type bufEntry struct {
	entry      types.RuntimeLogEntry
	issueDir   string // "" if the entry carries no jobId
}

// New creates a Logger rooted at layout and starts its background flush
// timer. Call Shutdown to drain and stop it.
func New(layout store.Layout, cfg Config) *Logger {
	cfg = cfg.withDefaults()
	l := &Logger{
		layout: layout,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
	l.stopWG.Add(1)
	go l.run()
	return l
}

func (l *Logger) run() {
	defer l.stopWG.Done()
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.Flush(); err != nil {
				l.cfg.Logger.Printf("[RUNTIMELOG] timed flush failed: %v", err)
			}
		case <-l.stopCh:
			return
		}
	}
}

// SetSessionContext sets the per-caller defaults stamped onto subsequent
// entries that do not explicitly override them.
func (l *Logger) SetSessionContext(sessionID, jobID, agentType string) {
	l.ctxMu.Lock()
	defer l.ctxMu.Unlock()
	l.ctx = LogContext{SessionID: sessionID, JobID: jobID, AgentType: agentType}
}

func (l *Logger) currentContext() LogContext {
	l.ctxMu.Lock()
	defer l.ctxMu.Unlock()
	return l.ctx
}

// Entry is the per-call override of the ambient LogContext plus an optional
// caller-supplied correlation id used to stitch related events together.
type Entry struct {
	SessionID     string
	JobID         string
	AgentType     string
	CorrelationID string
}

func (e Entry) applyDefaults(ctx LogContext) types.RuntimeLogEntry {
	out := types.RuntimeLogEntry{
		SessionID: e.SessionID,
		JobID:     e.JobID,
		AgentType: e.AgentType,
	}
	if out.SessionID == "" {
		out.SessionID = ctx.SessionID
	}
	if out.JobID == "" {
		out.JobID = ctx.JobID
	}
	if out.AgentType == "" {
		out.AgentType = ctx.AgentType
	}
	out.CorrelationID = e.CorrelationID
	if out.CorrelationID == "" {
		out.CorrelationID = uuid.New().String()
	}
	return out
}

// Trace logs a trace-level event (buffered).
func (l *Logger) Trace(event string, data map[string]interface{}) error {
	return l.Log(types.LevelTrace, event, data, Entry{})
}

// Debug logs a debug-level event (buffered).
func (l *Logger) Debug(event string, data map[string]interface{}) error {
	return l.Log(types.LevelDebug, event, data, Entry{})
}

// Info logs an info-level event (buffered).
func (l *Logger) Info(event string, data map[string]interface{}) error {
	return l.Log(types.LevelInfo, event, data, Entry{})
}

// Warn logs a warn-level event; the buffer is flushed promptly.
func (l *Logger) Warn(event string, data map[string]interface{}) error {
	return l.Log(types.LevelWarn, event, data, Entry{})
}

// Error logs an error-level event; the buffer is force-flushed
// synchronously before this call returns.
func (l *Logger) Error(event string, data map[string]interface{}) error {
	return l.Log(types.LevelError, event, data, Entry{})
}

// Critical logs a critical-level event; the buffer is force-flushed
// synchronously before this call returns.
func (l *Logger) Critical(event string, data map[string]interface{}) error {
	return l.Log(types.LevelCritical, event, data, Entry{})
}

// Log emits an entry at the given level with an explicit per-call context
// override (used by the façade to stamp jobId/agentType on operations that
// do not match the ambient SetSessionContext default). Logging failures are
// swallowed: they are reported to the internal diagnostic logger and never
// returned to the caller as anything other than the documented IoError,
// matching spec.md §4.2 ("never throws back to the caller path").
func (l *Logger) Log(level types.LogLevel, event string, data map[string]interface{}, override Entry) error {
	entry := override.applyDefaults(l.currentContext())
	entry.Timestamp = time.Now()
	entry.Level = level
	entry.Event = event
	entry.Data = data

	var issueDir string
	if entry.JobID != "" {
		if issueID, err := store.IssueIDFromJobID(entry.JobID); err == nil {
			issueDir = issueID
		}
	}

	l.bufMu.Lock()
	l.buf = append(l.buf, bufEntry{entry: entry, issueDir: issueDir})
	shouldFlush := types.LevelRank(level) >= types.LevelRank(types.LevelWarn) || len(l.buf) >= l.cfg.BufferSize
	l.bufMu.Unlock()

	if shouldFlush {
		if err := l.Flush(); err != nil {
			l.cfg.Logger.Printf("[RUNTIMELOG] flush after %s event %q failed: %v", level, event, err)
			return err
		}
	}
	return nil
}

// Flush drains the in-memory buffer to disk. Exported so Warn/Error/Critical
// can force durability and so Shutdown can guarantee a clean drain.
func (l *Logger) Flush() error {
	l.bufMu.Lock()
	pending := l.buf
	l.buf = nil
	l.bufMu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	for _, be := range pending {
		line, err := json.Marshal(be.entry)
		if err != nil {
			l.cfg.Logger.Printf("[RUNTIMELOG] failed to marshal entry: %v", err)
			continue
		}
		globalPath := l.activeGlobalPath()
		if err := store.AppendLine(globalPath, line); err != nil {
			return err
		}
		if be.issueDir != "" {
			issuePath := l.activeIssuePath(be.issueDir)
			// Best-effort mirror; the global log remains authoritative.
			if err := store.AppendLine(issuePath, line); err != nil {
				l.cfg.Logger.Printf("[RUNTIMELOG] failed to mirror entry to issue log %s: %v", issuePath, err)
			}
		}
		if err := l.rotateIfNeeded(globalPath); err != nil {
			l.cfg.Logger.Printf("[RUNTIMELOG] rotation check failed for %s: %v", globalPath, err)
		}
	}
	return nil
}

// Shutdown drains the buffer and stops the background flush timer.
func (l *Logger) Shutdown() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.stopWG.Wait()
	return l.Flush()
}

// Stats reports the current buffer depth, for diagnostics.
func (l *Logger) Stats() (bufferedEntries int) {
	l.bufMu.Lock()
	defer l.bufMu.Unlock()
	return len(l.buf)
}

func (l *Logger) activeGlobalPath() string {
	return filepath.Join(l.layout.GlobalLogDir(), "runtime.ndjson")
}

func (l *Logger) activeIssuePath(issueID string) string {
	return filepath.Join(l.layout.IssueLogDir(issueID), "runtime.ndjson")
}
