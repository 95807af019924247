package runtimelog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jobmemory/core/internal/joberrors"
)

// rotatedName returns path with ".<unixNano>" appended, the name a rotated
// file is given.
func rotatedName(path string) string {
	return fmt.Sprintf("%s.%d", path, time.Now().UnixNano())
}

// rotateIfNeeded renames path to a suffixed name and lets the next append
// recreate it, if path has grown past the configured size or age threshold.
func (l *Logger) rotateIfNeeded(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return joberrors.IoErr("", fmt.Sprintf("stat %s", path), err)
	}

	needsRotation := info.Size() >= l.cfg.RotateMaxBytes
	if !needsRotation && l.cfg.RotateMaxAge > 0 {
		needsRotation = time.Since(info.ModTime()) >= l.cfg.RotateMaxAge
	}
	if !needsRotation {
		return nil
	}
	return os.Rename(path, rotatedName(path))
}

// RotateLogs flushes the buffer, then forces rotation of the active global
// log file, regardless of its current size/age.
func (l *Logger) RotateLogs() error {
	if err := l.Flush(); err != nil {
		return err
	}
	path := l.activeGlobalPath()
	if !fileExists(path) {
		return nil
	}
	return os.Rename(path, rotatedName(path))
}

// CleanupLogs deletes rotated (suffixed) log files older than retentionDays,
// across both the global log directory and every per-issue log directory.
// Per-file failures are logged and do not abort the sweep.
func (l *Logger) CleanupLogs(retentionDays int) (deleted int, err error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	dirs := []string{l.layout.GlobalLogDir()}
	issuesRoot := filepath.Join(l.layout.Base, "issues")
	if entries, readErr := os.ReadDir(issuesRoot); readErr == nil {
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, l.layout.IssueLogDir(e.Name()))
			}
		}
	}

	for _, dir := range dirs {
		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !isRotatedLogFile(e.Name()) {
				continue
			}
			full := filepath.Join(dir, e.Name())
			info, statErr := e.Info()
			if statErr != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if rmErr := os.Remove(full); rmErr != nil {
					l.cfg.Logger.Printf("[RUNTIMELOG] failed to remove expired log %s: %v", full, rmErr)
					continue
				}
				deleted++
			}
		}
	}
	return deleted, nil
}

func isRotatedLogFile(name string) bool {
	return strings.Contains(name, "runtime.ndjson.")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// logFilesFor returns the active file plus every rotated file in dir,
// oldest first, for sequential scanning.
func logFilesFor(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var active string
	var rotated []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == "runtime.ndjson" {
			active = filepath.Join(dir, e.Name())
		} else if isRotatedLogFile(e.Name()) {
			rotated = append(rotated, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(rotated) // suffix is a UnixNano timestamp, so lexical == chronological
	if active != "" {
		rotated = append(rotated, active)
	}
	return rotated
}
