// Package jobmemory implements the Job Memory Store (component C3): the
// authoritative, per-job-locked persistence of JobMemory records, plus the
// append/rewrite-on-update global job index.
//
// Grounded on the teacher's internal/persistence.JSONStore for the
// read-modify-atomic-write discipline and internal/instance for the
// per-key locking registry shape, translated from "one live instance
// handle per worktree" into "one live JobMemory per job".
package jobmemory

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jobmemory/core/internal/joberrors"
	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

// Store is the C3 Job Memory Store.
type Store struct {
	layout store.Layout
	locks  *jobLocks

	cacheMu sync.RWMutex
	cache   map[string]*types.JobMemory // running jobs only, per spec.md §4.3
}

// New creates a Store rooted at layout. Callers must have already called
// layout.EnsureDirs (normally done once by the façade's initialize()).
func New(layout store.Layout) *Store {
	return &Store{
		layout: layout,
		locks:  newJobLocks(),
		cache:  make(map[string]*types.JobMemory),
	}
}

// Updates is a partial patch applied by UpdateJobMemory. Only non-nil
// fields are merged; Metadata and Analytics are deep-merged field by field
// rather than replaced wholesale. Within Analytics, a zero-valued field
// leaves the stored value untouched.
type Updates struct {
	Metadata  *MetadataPatch
	Analytics *types.JobAnalytics
}

// MetadataPatch is the mergeable subset of JobMetadata. A nil field leaves
// the existing value untouched; AgentTypes/Tags/RelatedIssueIDs/ChildJobIDs
// are unioned rather than replaced, preserving insertion order and never
// dropping an agent type a recorded entry already referenced.
type MetadataPatch struct {
	Complexity      *types.Complexity
	Priority        *string
	Tags            []string
	RelatedIssueIDs []string
	ChildJobIDs     []string
	TotalDuration   *int
}

// InitializeJobMemory creates a brand-new running JobMemory for issueID,
// persists it, caches it, and appends a GlobalJobEntry.
func (s *Store) InitializeJobMemory(issueID, sessionID string) (*types.JobMemory, error) {
	jobID := newJobID(issueID)
	now := time.Now()

	jm := &types.JobMemory{
		JobID:     jobID,
		IssueID:   issueID,
		SessionID: sessionID,
		StartTime: now,
		Status:    types.StatusRunning,
		Decisions: []*types.Decision{},
		Gotchas:   []*types.Gotcha{},
		Context:   []*types.ContextEntry{},
		Outcomes:  []*types.Outcome{},
		Metadata: types.JobMetadata{
			AgentTypes: []string{},
			Complexity: types.ComplexityMedium,
		},
	}

	var initErr error
	err := s.locks.withLock(jobID, func() error {
		if err := s.writeLocked(jm); err != nil {
			return err
		}
		s.cachePut(jm)
		return s.appendGlobalEntry(jm, false)
	})
	if err != nil {
		initErr = err
	}
	return jm, initErr
}

// GetJobMemory returns a deep copy of the cached record if present,
// otherwise reads and parses memory.json, reviving timestamps (handled for
// free by time.Time's json.Unmarshal), caching the result if it is still
// running. The returned pointer is always safe for the caller to read
// without synchronization, even while a concurrent Record*/Resolve*/Update*
// call is mutating the same job under its lock. A missing record returns
// (nil, nil), matching spec.md §4.3's "return null if absent" rather than a
// NotFound error, since absence is an expected, non-exceptional outcome of
// a lookup.
func (s *Store) GetJobMemory(jobID string) (*types.JobMemory, error) {
	if jm, ok := s.cacheGet(jobID); ok {
		return jm, nil
	}

	issueID, err := store.IssueIDFromJobID(jobID)
	if err != nil {
		return nil, err
	}
	path := s.layout.MemoryFilePath(issueID)
	data, err := store.ReadFile(path)
	if err != nil {
		if joberrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var jm types.JobMemory
	if unmarshalErr := json.Unmarshal(data, &jm); unmarshalErr != nil {
		return nil, joberrors.Corrupt(jobID, "memory.json is not valid JSON", unmarshalErr)
	}
	if jm.JobID != jobID {
		return nil, joberrors.Corrupt(jobID, "memory.json jobId does not match requested jobId", nil)
	}
	if jm.Status == types.StatusRunning {
		s.cachePut(deepCopyJobMemory(&jm))
	}
	return &jm, nil
}

// UpdateJobMemory deep-merges updates into the live record under jobID's
// lock and atomic-writes the result.
func (s *Store) UpdateJobMemory(jobID string, updates Updates) (*types.JobMemory, error) {
	var result *types.JobMemory
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}
		applyUpdates(jm, updates)
		if err := s.writeLocked(jm); err != nil {
			return err
		}
		if jm.Status == types.StatusRunning {
			s.cachePut(jm)
		}
		result = jm
		return nil
	})
	return result, err
}

func applyUpdates(jm *types.JobMemory, u Updates) {
	if u.Metadata != nil {
		m := u.Metadata
		if m.Complexity != nil {
			jm.Metadata.Complexity = *m.Complexity
		}
		if m.Priority != nil {
			jm.Metadata.Priority = *m.Priority
		}
		if m.TotalDuration != nil {
			jm.Metadata.TotalDuration = *m.TotalDuration
		}
		jm.Metadata.Tags = unionStrings(jm.Metadata.Tags, m.Tags)
		jm.Metadata.RelatedIssueIDs = unionStrings(jm.Metadata.RelatedIssueIDs, m.RelatedIssueIDs)
		jm.Metadata.ChildJobIDs = unionStrings(jm.Metadata.ChildJobIDs, m.ChildJobIDs)
	}
	if u.Analytics != nil {
		p := u.Analytics
		if p.PatternMatches != nil {
			jm.Analytics.PatternMatches = p.PatternMatches
		}
		if p.EfficiencyMetrics != (types.EfficiencyMetrics{}) {
			jm.Analytics.EfficiencyMetrics = p.EfficiencyMetrics
		}
		if p.LearningScore != 0 {
			jm.Analytics.LearningScore = p.LearningScore
		}
		if p.ReuseScore != 0 {
			jm.Analytics.ReuseScore = p.ReuseScore
		}
		if p.InnovationScore != 0 {
			jm.Analytics.InnovationScore = p.InnovationScore
		}
	}
}

// unionStrings appends any values from add not already present in base,
// preserving base's order and add's order for newly-introduced values.
func unionStrings(base, add []string) []string {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base))
	for _, v := range base {
		seen[v] = true
	}
	out := base
	for _, v := range add {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func ensureAgentType(jm *types.JobMemory, agentType string) {
	for _, a := range jm.Metadata.AgentTypes {
		if a == agentType {
			return
		}
	}
	jm.Metadata.AgentTypes = append(jm.Metadata.AgentTypes, agentType)
}

// RecordDecision appends a new Decision to jobID's record under lock.
func (s *Store) RecordDecision(jobID string, d types.Decision) (*types.Decision, error) {
	var recorded *types.Decision
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}
		d.ID = newEntryID("decision")
		d.Timestamp = time.Now()
		jm.Decisions = append(jm.Decisions, &d)
		ensureAgentType(jm, d.AgentType)
		if err := s.writeLocked(jm); err != nil {
			return err
		}
		if jm.Status == types.StatusRunning {
			s.cachePut(jm)
		}
		recorded = &d
		return nil
	})
	return recorded, err
}

// RecordGotcha appends a new Gotcha to jobID's record under lock.
func (s *Store) RecordGotcha(jobID string, g types.Gotcha) (*types.Gotcha, error) {
	var recorded *types.Gotcha
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}
		g.ID = newEntryID("gotcha")
		g.Timestamp = time.Now()
		jm.Gotchas = append(jm.Gotchas, &g)
		ensureAgentType(jm, g.AgentType)
		if err := s.writeLocked(jm); err != nil {
			return err
		}
		if jm.Status == types.StatusRunning {
			s.cachePut(jm)
		}
		recorded = &g
		return nil
	})
	return recorded, err
}

// RecordContext appends a new ContextEntry to jobID's record under lock,
// initializing Usage to an empty (non-nil) slice.
func (s *Store) RecordContext(jobID string, c types.ContextEntry) (*types.ContextEntry, error) {
	var recorded *types.ContextEntry
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}
		c.ID = newEntryID("context")
		c.Timestamp = time.Now()
		c.Usage = []types.ContextUsage{}
		jm.Context = append(jm.Context, &c)
		ensureAgentType(jm, c.AgentType)
		if err := s.writeLocked(jm); err != nil {
			return err
		}
		if jm.Status == types.StatusRunning {
			s.cachePut(jm)
		}
		recorded = &c
		return nil
	})
	return recorded, err
}

// RecordOutcome appends a new Outcome to jobID's record under lock.
func (s *Store) RecordOutcome(jobID string, o types.Outcome) (*types.Outcome, error) {
	var recorded *types.Outcome
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}
		o.ID = newEntryID("outcome")
		o.Timestamp = time.Now()
		jm.Outcomes = append(jm.Outcomes, &o)
		ensureAgentType(jm, o.AgentType)
		if err := s.writeLocked(jm); err != nil {
			return err
		}
		if jm.Status == types.StatusRunning {
			s.cachePut(jm)
		}
		recorded = &o
		return nil
	})
	return recorded, err
}

// ResolveGotcha writes resolution onto gotchaID within jobID's record,
// stamping an authoritative timestamp. Returns NotFound if the gotcha does
// not exist.
func (s *Store) ResolveGotcha(jobID, gotchaID string, resolution types.GotchaResolution) (*types.Gotcha, error) {
	var resolved *types.Gotcha
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}
		for _, g := range jm.Gotchas {
			if g.ID == gotchaID {
				resolution.Timestamp = time.Now()
				g.Resolution = &resolution
				if err := s.writeLocked(jm); err != nil {
					return err
				}
				if jm.Status == types.StatusRunning {
					s.cachePut(jm)
				}
				resolved = g
				return nil
			}
		}
		return joberrors.NotFound(jobID, "gotcha "+gotchaID+" not found")
	})
	return resolved, err
}

// UpdateDecisionOutcome writes outcome onto decisionID within jobID's
// record, symmetric to ResolveGotcha.
func (s *Store) UpdateDecisionOutcome(jobID, decisionID string, outcome types.DecisionOutcome) (*types.Decision, error) {
	var updated *types.Decision
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}
		for _, d := range jm.Decisions {
			if d.ID == decisionID {
				outcome.Timestamp = time.Now()
				d.Outcome = &outcome
				if err := s.writeLocked(jm); err != nil {
					return err
				}
				if jm.Status == types.StatusRunning {
					s.cachePut(jm)
				}
				updated = d
				return nil
			}
		}
		return joberrors.NotFound(jobID, "decision "+decisionID+" not found")
	})
	return updated, err
}

// TrackContextUsage appends a usage record to contextID within jobID's
// record, stamping an authoritative timestamp.
func (s *Store) TrackContextUsage(jobID, contextID string, usage types.ContextUsage) (*types.ContextEntry, error) {
	var updated *types.ContextEntry
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}
		for _, c := range jm.Context {
			if c.ID == contextID {
				usage.Timestamp = time.Now()
				c.Usage = append(c.Usage, usage)
				if err := s.writeLocked(jm); err != nil {
					return err
				}
				if jm.Status == types.StatusRunning {
					s.cachePut(jm)
				}
				updated = c
				return nil
			}
		}
		return joberrors.NotFound(jobID, "context entry "+contextID+" not found")
	})
	return updated, err
}

// CompleteJobMemory appends finalOutcome, computes endTime/duration,
// decides status by comparing successful vs failing outcomes, atomic-writes,
// updates the GlobalJobEntry, and evicts jobID from the running cache.
func (s *Store) CompleteJobMemory(jobID string, finalOutcome types.Outcome) (*types.JobMemory, error) {
	var result *types.JobMemory
	err := s.locks.withLock(jobID, func() error {
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}

		finalOutcome.ID = newEntryID("outcome")
		finalOutcome.Timestamp = time.Now()
		jm.Outcomes = append(jm.Outcomes, &finalOutcome)
		ensureAgentType(jm, finalOutcome.AgentType)

		now := time.Now()
		jm.EndTime = &now
		durationMinutes := int(now.Sub(jm.StartTime) / time.Minute)
		if durationMinutes < 1 {
			durationMinutes = 1
		}
		jm.Metadata.TotalDuration = durationMinutes

		successes, failures := 0, 0
		for _, o := range jm.Outcomes {
			switch o.Type {
			case types.OutcomeSuccess:
				successes++
			case types.OutcomeFailure:
				failures++
			}
		}
		if successes > failures {
			jm.Status = types.StatusCompleted
		} else {
			jm.Status = types.StatusFailed
		}

		if err := s.writeLocked(jm); err != nil {
			return err
		}
		if err := s.appendGlobalEntry(jm, true); err != nil {
			return err
		}
		s.cacheEvict(jobID)
		result = jm
		return nil
	})
	return result, err
}

// ArchiveJobMemory writes a compressed copy of jobID's live record to
// archive/, deletes the live file, attempts to remove the now-empty issue
// directory, and evicts jobID from the cache and lock table.
func (s *Store) ArchiveJobMemory(jobID string) error {
	return s.locks.withLock(jobID, func() error {
		issueID, err := store.IssueIDFromJobID(jobID)
		if err != nil {
			return err
		}
		jm, err := s.loadLocked(jobID)
		if err != nil {
			return err
		}

		compressed := compressForArchive(jm)
		data, err := json.MarshalIndent(compressed, "", "  ")
		if err != nil {
			return joberrors.IoErr(jobID, "marshaling archive copy", err)
		}
		if err := store.AtomicWriteFile(s.layout.ArchivePath(jobID), data, 0o644); err != nil {
			return err
		}
		if err := store.RemoveFile(s.layout.MemoryFilePath(issueID)); err != nil {
			return err
		}
		if err := store.RemoveDirIfEmpty(s.layout.IssueDir(issueID)); err != nil {
			return err
		}
		s.cacheEvict(jobID)
		s.locks.forget(jobID)
		return nil
	})
}

const archiveContentTruncateAt = 500

// compressForArchive returns a deep copy of jm with every ContextEntry's
// Content truncated past 500 characters, per spec.md §4.3. Every other
// field is retained verbatim: the archived record is a strict subset of
// the live one, never a renamed or reshaped one.
func compressForArchive(jm *types.JobMemory) *types.JobMemory {
	out := *jm
	out.Context = make([]*types.ContextEntry, len(jm.Context))
	for i, c := range jm.Context {
		copyEntry := *c
		if r := []rune(copyEntry.Content); len(r) > archiveContentTruncateAt {
			copyEntry.Content = string(r[:archiveContentTruncateAt]) + "..."
		}
		out.Context[i] = &copyEntry
	}
	return &out
}

// loadLocked reads jobID's current record, preferring the cache, and must
// only be called while jobID's lock is held.
func (s *Store) loadLocked(jobID string) (*types.JobMemory, error) {
	if jm, ok := s.cacheGet(jobID); ok {
		return jm, nil
	}
	jm, err := s.GetJobMemory(jobID)
	if err != nil {
		return nil, err
	}
	if jm == nil {
		return nil, joberrors.NotFound(jobID, "job memory not found")
	}
	return jm, nil
}

// writeLocked atomic-writes jm to its issue's memory.json. Must only be
// called while jm.JobID's lock is held.
func (s *Store) writeLocked(jm *types.JobMemory) error {
	issueID, err := store.IssueIDFromJobID(jm.JobID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(jm, "", "  ")
	if err != nil {
		return joberrors.IoErr(jm.JobID, "marshaling memory.json", err)
	}
	return store.AtomicWriteFile(s.layout.MemoryFilePath(issueID), data, 0o644)
}

// cacheGet returns an independent deep copy of jobID's cached record, never
// the live pointer held in the map. Readers (GetJobMemory, called with no
// lock held) and writers (loadLocked, called under jobID's lock) both mutate
// or inspect only their own copy; the lock-holding writer's cachePut call is
// what republishes the mutated copy as the new canonical cache entry. Without
// this, a concurrent GetJobMemory could observe a Decisions/Gotchas/Context
// slice element being written in place by a locked Record* call, per
// spec.md §3's per-job-lock ownership rule and §5's torn-read guarantee.
func (s *Store) cacheGet(jobID string) (*types.JobMemory, bool) {
	s.cacheMu.RLock()
	jm, ok := s.cache[jobID]
	s.cacheMu.RUnlock()
	if !ok {
		return nil, false
	}
	return deepCopyJobMemory(jm), true
}

// deepCopyJobMemory clones jm via a JSON round trip, matching the store's
// existing read-modify-atomic-write discipline (writeLocked marshals the
// same way). jm was either built in-process or itself just unmarshaled from
// disk, so re-encoding it cannot fail.
func deepCopyJobMemory(jm *types.JobMemory) *types.JobMemory {
	data, err := json.Marshal(jm)
	if err != nil {
		panic(joberrors.IoErr(jm.JobID, "cloning cached job memory", err))
	}
	out := &types.JobMemory{}
	if err := json.Unmarshal(data, out); err != nil {
		panic(joberrors.Corrupt(jm.JobID, "re-decoding cloned job memory", err))
	}
	return out
}

func (s *Store) cachePut(jm *types.JobMemory) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[jm.JobID] = jm
}

func (s *Store) cacheEvict(jobID string) {
	s.cacheMu.Lock()
	delete(s.cache, jobID)
	s.cacheMu.Unlock()
}

// sortJobsByStartTime orders entries ascending by StartTime, for query
// operations that read jobs.ndjson in a single pass.
func sortJobsByStartTime(entries []types.GlobalJobEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].StartTime.Before(entries[j].StartTime) })
}
