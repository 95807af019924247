// Package store implements the filesystem primitives the rest of the job
// memory and analytics layer builds on: path layout under a configured base
// directory, an atomic replace-file primitive for memory.json, and a
// one-line-per-record append primitive for jobs.ndjson and the runtime log.
//
// Grounded on nandlabs-golly/chrono's FileStorage (temp-file-then-rename) and
// the teacher's internal/persistence.JSONStore (directory bootstrap, mutex
// discipline around a single state file).
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobmemory/core/internal/joberrors"
)

// Layout resolves paths under a configured base directory B, following the
// filesystem surface in spec.md §4.1:
//
//	B/issues/<issueId>/memory.json
//	B/issues/<issueId>/logs/
//	B/logs/
//	B/analytics/
//	B/archive/<jobId>.json
//	B/jobs.ndjson
type Layout struct {
	Base string
}

// NewLayout creates a Layout rooted at base.
func NewLayout(base string) Layout {
	return Layout{Base: base}
}

// EnsureDirs creates every directory the layout requires. Called once from
// the façade's initialize(), and safe to call repeatedly (MkdirAll is
// idempotent), matching the spec's "idempotent initialization" property.
func (l Layout) EnsureDirs() error {
	dirs := []string{
		filepath.Join(l.Base, "issues"),
		filepath.Join(l.Base, "logs"),
		filepath.Join(l.Base, "analytics"),
		filepath.Join(l.Base, "archive"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return joberrors.IoErr("", fmt.Sprintf("creating directory %s", d), err)
		}
	}
	return nil
}

// IssueDir returns B/issues/<issueId>.
func (l Layout) IssueDir(issueID string) string {
	return filepath.Join(l.Base, "issues", issueID)
}

// MemoryFilePath returns B/issues/<issueId>/memory.json.
func (l Layout) MemoryFilePath(issueID string) string {
	return filepath.Join(l.IssueDir(issueID), "memory.json")
}

// IssueLogDir returns B/issues/<issueId>/logs.
func (l Layout) IssueLogDir(issueID string) string {
	return filepath.Join(l.IssueDir(issueID), "logs")
}

// GlobalLogDir returns B/logs.
func (l Layout) GlobalLogDir() string {
	return filepath.Join(l.Base, "logs")
}

// AnalyticsDir returns B/analytics.
func (l Layout) AnalyticsDir() string {
	return filepath.Join(l.Base, "analytics")
}

// ArchivePath returns B/archive/<jobId>.json.
func (l Layout) ArchivePath(jobID string) string {
	return filepath.Join(l.Base, "archive", jobID+".json")
}

// GlobalIndexPath returns B/jobs.ndjson.
func (l Layout) GlobalIndexPath() string {
	return filepath.Join(l.Base, "jobs.ndjson")
}

// IssueIDFromJobID recovers the issueId encoded in a jobId of the form
// "job-<issueId>-<timestampMs>-<random>". This is a pure function, as
// required by spec.md §4.1, but unlike the source system's naive
// split-on-"-"-take-index-1 (flagged as possibly buggy in spec.md §9), it
// strips the well-known "job-" prefix and the trailing "-<ms>-<rand>"
// suffix (always exactly the last two "-"-separated fields), so an issueId
// containing "-" is still recovered correctly. See DESIGN.md for the Open
// Question disposition.
func IssueIDFromJobID(jobID string) (string, error) {
	const prefix = "job-"
	if !strings.HasPrefix(jobID, prefix) {
		return "", joberrors.Corrupt(jobID, "jobId missing \"job-\" prefix", nil)
	}
	rest := strings.TrimPrefix(jobID, prefix)

	parts := strings.Split(rest, "-")
	if len(parts) < 3 {
		return "", joberrors.Corrupt(jobID, "jobId missing timestamp/random suffix", nil)
	}

	issueParts := parts[:len(parts)-2]
	issueID := strings.Join(issueParts, "-")
	if issueID == "" {
		return "", joberrors.Corrupt(jobID, "jobId encodes an empty issueId", nil)
	}
	return issueID, nil
}

// Exists reports whether path exists. A tmp file mid-rename is never
// observable as the final path existing, so this is safe to use as a
// "not yet created" check by readers.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AtomicWriteFile writes data to path by first writing to path+".tmp",
// fsyncing it, then renaming it over path. On any failure before the
// rename, the tmp file is removed so a later successful write never
// collides with debris from an interrupted one.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return joberrors.IoErr("", fmt.Sprintf("creating directory %s", dir), err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return joberrors.IoErr("", fmt.Sprintf("creating temp file %s", tmp), err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return joberrors.IoErr("", fmt.Sprintf("writing temp file %s", tmp), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return joberrors.IoErr("", fmt.Sprintf("syncing temp file %s", tmp), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return joberrors.IoErr("", fmt.Sprintf("closing temp file %s", tmp), err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return joberrors.IoErr("", fmt.Sprintf("renaming %s to %s", tmp, path), err)
	}
	return nil
}

// AppendLine appends line followed by "\n" to path, creating path (and its
// parent directory) on the first call. Used for jobs.ndjson and runtime log
// files, which are append-only, one-JSON-object-per-line streams.
func AppendLine(path string, line []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return joberrors.IoErr("", fmt.Sprintf("creating directory %s", dir), err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return joberrors.IoErr("", fmt.Sprintf("opening %s for append", path), err)
	}
	defer f.Close()

	if _, err := f.Write(append(append([]byte{}, line...), '\n')); err != nil {
		return joberrors.IoErr("", fmt.Sprintf("appending to %s", path), err)
	}
	return nil
}

// ReadFile reads path and returns its bytes, or a NotFound error if path
// does not exist.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, joberrors.NotFound("", fmt.Sprintf("file %s does not exist", path))
		}
		return nil, joberrors.IoErr("", fmt.Sprintf("reading %s", path), err)
	}
	return data, nil
}

// RemoveFile removes path if it exists; removing an absent file is not an
// error.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return joberrors.IoErr("", fmt.Sprintf("removing %s", path), err)
	}
	return nil
}

// RemoveDirIfEmpty removes dir if it contains no entries; a non-empty or
// already-absent directory is not an error.
func RemoveDirIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return joberrors.IoErr("", fmt.Sprintf("reading directory %s", dir), err)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		return joberrors.IoErr("", fmt.Sprintf("removing directory %s", dir), err)
	}
	return nil
}
