package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetCrashState(t *testing.T, dir string) {
	t.Helper()
	crash = &crashState{}
	SetWorkspaceDir(dir)
	t.Cleanup(func() { crash = &crashState{} })
}

func TestCrashLog_CapturesContext(t *testing.T) {
	resetCrashState(t, t.TempDir())
	SetVersion("0.1.0-test")
	SetCommand("rd task start", []string{"aB3dE6gH"})

	entry := newCrashLog(errors.New("boom"), []byte("goroutine 1 [running]"))

	if entry.Version != "0.1.0-test" {
		t.Errorf("Version = %q", entry.Version)
	}
	if entry.Command != "rd task start" || len(entry.Args) != 1 || entry.Args[0] != "aB3dE6gH" {
		t.Errorf("Command/Args = %q %v", entry.Command, entry.Args)
	}
	if entry.PanicValue != "boom" {
		t.Errorf("PanicValue = %q", entry.PanicValue)
	}
	if entry.GoVersion == "" || entry.OS == "" || entry.Arch == "" {
		t.Error("runtime fields should be populated")
	}
}

func TestWriteCrashLog_WritesJSON(t *testing.T) {
	dir := t.TempDir()
	resetCrashState(t, dir)

	path, err := WriteCrashLog(newCrashLog("nil map write", []byte("stack")))
	if err != nil {
		t.Fatalf("WriteCrashLog() error: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(dir, "crash_logs") {
		t.Errorf("crash log written to %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read crash log: %v", err)
	}
	var got CrashLog
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("crash log is not JSON: %v", err)
	}
	if got.PanicValue != "nil map write" || got.StackTrace != "stack" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestPruneCrashLogs_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	resetCrashState(t, dir)
	logDir := filepath.Join(dir, "crash_logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxCrashLogs+3; i++ {
		name := fmt.Sprintf("crash_%s.json", base.Add(time.Duration(i)*time.Minute).Format("20060102_150405.000000"))
		if err := os.WriteFile(filepath.Join(logDir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated files are left alone.
	if err := os.WriteFile(filepath.Join(logDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := pruneCrashLogs(logDir, MaxCrashLogs); err != nil {
		t.Fatalf("pruneCrashLogs() error: %v", err)
	}

	logs, err := ListCrashLogs()
	if err != nil {
		t.Fatalf("ListCrashLogs() error: %v", err)
	}
	if len(logs) != MaxCrashLogs {
		t.Fatalf("expected %d logs, got %d", MaxCrashLogs, len(logs))
	}
	if !strings.Contains(logs[0], "000300") {
		t.Errorf("oldest kept log = %s, want the fourth one", logs[0])
	}
	if _, err := os.Stat(filepath.Join(logDir, "notes.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}

func TestListCrashLogs_NoDir(t *testing.T) {
	resetCrashState(t, t.TempDir())
	logs, err := ListCrashLogs()
	if err != nil {
		t.Fatalf("ListCrashLogs() error: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("expected no logs, got %v", logs)
	}
}

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "json")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	l.Debug("hidden")
	l.Info("task started", "task_id", "aB3dE6gH")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", out, err)
	}
	if rec["task_id"] != "aB3dE6gH" {
		t.Errorf("record = %v", rec)
	}

	if _, err := New(&buf, "loud", "text"); err == nil {
		t.Error("unknown level should fail")
	}
	if _, err := New(&buf, "info", "xml"); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
