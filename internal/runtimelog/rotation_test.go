package runtimelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobmemory/core/internal/store"
)

func TestRotateLogs_ForcesRotationRegardlessOfSize(t *testing.T) {
	l := newTestLogger(t)
	if err := l.Info("tiny", nil); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if err := l.RotateLogs(); err != nil {
		t.Fatalf("RotateLogs: %v", err)
	}
	if store.Exists(l.activeGlobalPath()) {
		t.Fatalf("active log should have been renamed away")
	}
	files := logFilesFor(l.layout.GlobalLogDir())
	if len(files) != 1 {
		t.Fatalf("expected 1 rotated file, got %d: %v", len(files), files)
	}
}

func TestCleanupLogs_RemovesExpiredRotatedFiles(t *testing.T) {
	l := newTestLogger(t)
	if err := l.Info("tiny", nil); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if err := l.RotateLogs(); err != nil {
		t.Fatalf("RotateLogs: %v", err)
	}

	files := logFilesFor(l.layout.GlobalLogDir())
	if len(files) != 1 {
		t.Fatalf("expected 1 rotated file, got %d", len(files))
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(files[0], old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	deleted, err := l.CleanupLogs(1)
	if err != nil {
		t.Fatalf("CleanupLogs: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted file, got %d", deleted)
	}
	if len(logFilesFor(l.layout.GlobalLogDir())) != 0 {
		t.Fatalf("expected rotated file to be gone")
	}
}

func TestLogFilesFor_OrdersRotatedBeforeActive(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "runtime.ndjson")
	if err := os.WriteFile(active, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write active: %v", err)
	}
	rotated := filepath.Join(dir, "runtime.ndjson.100")
	if err := os.WriteFile(rotated, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write rotated: %v", err)
	}

	files := logFilesFor(dir)
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(files), files)
	}
	if files[0] != rotated || files[1] != active {
		t.Fatalf("expected rotated before active, got %v", files)
	}
}
