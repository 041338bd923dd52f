package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeCreatesLogsDir(t *testing.T) {
	t.Cleanup(Close)
	dir := t.TempDir()

	if err := Initialize(dir, true, "debug"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	logsDir := filepath.Join(dir, ".rangecraft", "logs")
	if _, err := os.Stat(logsDir); err != nil {
		t.Fatalf("logs directory missing: %v", err)
	}
}

func TestCategoryMessagesLandInCategoryFile(t *testing.T) {
	t.Cleanup(Close)
	dir := t.TempDir()
	if err := Initialize(dir, true, "debug"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Index("indexed %d docs", 7)
	Get(CategoryAuthor).Warn("budget low")

	indexLog, err := os.ReadFile(filepath.Join(dir, ".rangecraft", "logs", "index.log"))
	if err != nil {
		t.Fatalf("index log missing: %v", err)
	}
	if !strings.Contains(string(indexLog), "indexed 7 docs") {
		t.Errorf("index log = %q", indexLog)
	}

	authorLog, err := os.ReadFile(filepath.Join(dir, ".rangecraft", "logs", "author.log"))
	if err != nil {
		t.Fatalf("author log missing: %v", err)
	}
	if !strings.Contains(string(authorLog), "[WARN] budget low") {
		t.Errorf("author log = %q", authorLog)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Cleanup(Close)
	dir := t.TempDir()
	if err := Initialize(dir, true, "warn"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	API("chatty info")
	Get(CategoryAPI).Error("real problem")

	data, err := os.ReadFile(filepath.Join(dir, ".rangecraft", "logs", "api.log"))
	if err != nil {
		t.Fatalf("api log missing: %v", err)
	}
	if strings.Contains(string(data), "chatty info") {
		t.Error("info message logged despite warn level")
	}
	if !strings.Contains(string(data), "real problem") {
		t.Error("error message missing")
	}
}

func TestDisabledLoggingWritesNothing(t *testing.T) {
	t.Cleanup(Close)
	dir := t.TempDir()
	if err := Initialize(dir, false, "info"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Index("should vanish")

	if _, err := os.Stat(filepath.Join(dir, ".rangecraft", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory created with debug off")
	}
}

func TestUninitializedLoggingIsSafe(t *testing.T) {
	t.Cleanup(Close)
	Close()
	Guide("no panic please %s", "thanks")
	StartTimer(CategoryBoot, "noop").Stop()
}
