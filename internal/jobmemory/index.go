package jobmemory

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/jobmemory/core/internal/joberrors"
	"github.com/jobmemory/core/internal/store"
	"github.com/jobmemory/core/internal/types"
)

// buildGlobalEntry derives the compact cross-job index record from a live
// JobMemory, per spec.md §3's GlobalJobEntry shape.
func buildGlobalEntry(jm *types.JobMemory) types.GlobalJobEntry {
	resolvedGotchas, promotedGotchas := 0, 0
	for _, g := range jm.Gotchas {
		if g.Resolution != nil && g.Resolution.Resolved {
			resolvedGotchas++
			if promotionEligible(g) {
				promotedGotchas++
			}
		}
	}
	successfulOutcomes, keyLearnings := 0, 0
	for _, o := range jm.Outcomes {
		if o.Type == types.OutcomeSuccess {
			successfulOutcomes++
		}
		keyLearnings += len(o.Lessons)
	}

	entry := types.GlobalJobEntry{
		JobID:      jm.JobID,
		IssueID:    jm.IssueID,
		Status:     jm.Status,
		AgentTypes: append([]string{}, jm.Metadata.AgentTypes...),
		StartTime:  jm.StartTime,
		EndTime:    jm.EndTime,
		Success:    jm.Status == types.StatusCompleted,
		Summary: types.GlobalJobSummary{
			Decisions:          len(jm.Decisions),
			Gotchas:            len(jm.Gotchas),
			ResolvedGotchas:    resolvedGotchas,
			ContextEntries:     len(jm.Context),
			Outcomes:           len(jm.Outcomes),
			SuccessfulOutcomes: successfulOutcomes,
			KeyLearnings:       keyLearnings,
			PromotedGotchas:    promotedGotchas,
		},
	}
	if jm.Metadata.TotalDuration > 0 {
		d := jm.Metadata.TotalDuration
		entry.Duration = &d
	}
	return entry
}

// promotionEligible mirrors the Promotion Gateway's own criteria (severity,
// resolved, confidence) purely to size the GlobalJobEntry summary; the
// authoritative decision for actually forwarding a gotcha lives in
// internal/promotion.
func promotionEligible(g *types.Gotcha) bool {
	if g.Resolution == nil || !g.Resolution.Resolved {
		return false
	}
	if g.Severity != types.SeverityCritical && g.Severity != types.SeverityHigh {
		return false
	}
	return g.Resolution.Confidence >= 0.8
}

// appendGlobalEntry adds or updates jm's GlobalJobEntry. A brand-new job
// (isUpdate=false) is appended as a single NDJSON line. An existing job
// being updated (isUpdate=true, e.g. on completion) rewrites the whole file
// with its entry replaced, per spec.md §5's "update is a synchronization
// point" rule.
func (s *Store) appendGlobalEntry(jm *types.JobMemory, isUpdate bool) error {
	entry := buildGlobalEntry(jm)
	if !isUpdate {
		line, err := json.Marshal(entry)
		if err != nil {
			return joberrors.IoErr(jm.JobID, "marshaling global job entry", err)
		}
		return store.AppendLine(s.layout.GlobalIndexPath(), line)
	}

	entries, err := s.readGlobalEntries()
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range entries {
		if e.JobID == entry.JobID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return s.rewriteGlobalIndex(entries)
}

// readGlobalEntries reads jobs.ndjson line by line, skipping malformed
// lines. A missing file is treated as an empty index, not an error.
func (s *Store) readGlobalEntries() ([]types.GlobalJobEntry, error) {
	path := s.layout.GlobalIndexPath()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, joberrors.IoErr("", "opening global job index", err)
	}
	defer f.Close()

	var entries []types.GlobalJobEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e types.GlobalJobEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// rewriteGlobalIndex atomic-writes the entire jobs.ndjson from entries.
func (s *Store) rewriteGlobalIndex(entries []types.GlobalJobEntry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return joberrors.IoErr(e.JobID, "marshaling global job entry", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return store.AtomicWriteFile(s.layout.GlobalIndexPath(), buf.Bytes(), 0o644)
}

// GetGlobalJobLog returns every GlobalJobEntry, in index order.
func (s *Store) GetGlobalJobLog() ([]types.GlobalJobEntry, error) {
	return s.readGlobalEntries()
}

// LoadAllJobMemories resolves every entry in the global index to its full
// JobMemory record, skipping any job already archived (its memory.json is
// gone by the time the index still lists it, e.g. mid-cleanup). Used by the
// analytics engine, which reads exclusively through the store per
// spec.md §4.4.
func (s *Store) LoadAllJobMemories() ([]*types.JobMemory, error) {
	entries, err := s.readGlobalEntries()
	if err != nil {
		return nil, err
	}
	out := make([]*types.JobMemory, 0, len(entries))
	for _, e := range entries {
		jm, err := s.GetJobMemory(e.JobID)
		if err != nil {
			if joberrors.IsCorrupt(err) || joberrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if jm != nil {
			out = append(out, jm)
		}
	}
	return out, nil
}

// GetJobsByIssue returns every GlobalJobEntry whose issueId matches.
func (s *Store) GetJobsByIssue(issueID string) ([]types.GlobalJobEntry, error) {
	all, err := s.readGlobalEntries()
	if err != nil {
		return nil, err
	}
	var out []types.GlobalJobEntry
	for _, e := range all {
		if e.IssueID == issueID {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetJobsByAgent returns every GlobalJobEntry whose agentTypes include
// agentType.
func (s *Store) GetJobsByAgent(agentType string) ([]types.GlobalJobEntry, error) {
	all, err := s.readGlobalEntries()
	if err != nil {
		return nil, err
	}
	var out []types.GlobalJobEntry
	for _, e := range all {
		for _, a := range e.AgentTypes {
			if a == agentType {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// CleanupResult reports the outcome of a Cleanup sweep.
type CleanupResult struct {
	Archived int
	Failures map[string]error
}

// Cleanup archives every job in the global index whose endTime is older
// than retentionDays, then rewrites jobs.ndjson to contain only the
// remaining entries. A per-job archival failure is recorded in Failures and
// does not abort the sweep, per spec.md §4.3.
func (s *Store) Cleanup(retentionDays int) (CleanupResult, error) {
	result := CleanupResult{Failures: make(map[string]error)}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	entries, err := s.readGlobalEntries()
	if err != nil {
		return result, err
	}

	var remaining []types.GlobalJobEntry
	for _, e := range entries {
		if e.EndTime == nil || e.EndTime.After(cutoff) {
			remaining = append(remaining, e)
			continue
		}
		if archiveErr := s.ArchiveJobMemory(e.JobID); archiveErr != nil {
			result.Failures[e.JobID] = archiveErr
			remaining = append(remaining, e)
			continue
		}
		s.locks.forget(e.JobID)
		result.Archived++
	}

	if err := s.rewriteGlobalIndex(remaining); err != nil {
		return result, err
	}
	return result, nil
}
