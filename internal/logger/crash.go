package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxCrashLogs is the maximum number of crash logs to keep.
const MaxCrashLogs = 10

const crashLogDirName = "crash_logs"

// crashState is what HandlePanic knows about the running command.
type crashState struct {
	mu      sync.RWMutex
	dir     string
	version string
	command string
	args    []string
}

var crash = &crashState{}

// SetWorkspaceDir points crash logs at dir/crash_logs (typically the .radial directory).
func SetWorkspaceDir(dir string) {
	crash.mu.Lock()
	defer crash.mu.Unlock()
	crash.dir = dir
}

// SetVersion sets the application version recorded in crash logs.
func SetVersion(version string) {
	crash.mu.Lock()
	defer crash.mu.Unlock()
	crash.version = version
}

// SetCommand records the command path and its arguments.
func SetCommand(command string, args []string) {
	crash.mu.Lock()
	defer crash.mu.Unlock()
	crash.command = command
	crash.args = append([]string(nil), args...)
}

// CrashLog is one crash report, stored as JSON.
type CrashLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Command    string    `json:"command"`
	Args       []string  `json:"args,omitempty"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
	GoVersion  string    `json:"go_version"`
	OS         string    `json:"os"`
	Arch       string    `json:"arch"`
}

// HandlePanic recovers from a panic, writes a crash log and exits with status 1.
// Usage: defer logger.HandlePanic()
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}
	entry := newCrashLog(r, debug.Stack())
	path, err := WriteCrashLog(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[CRASH] failed to write crash log: %v\n", err)
		fmt.Fprintf(os.Stderr, "[CRASH] panic: %v\n%s\n", r, entry.StackTrace)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "\nrd crashed unexpectedly: %v\n", r)
	fmt.Fprintf(os.Stderr, "Crash log saved to %s\n", path)
	os.Exit(1)
}

func newCrashLog(panicValue any, stack []byte) CrashLog {
	crash.mu.RLock()
	defer crash.mu.RUnlock()
	return CrashLog{
		Timestamp:  time.Now().UTC(),
		Version:    crash.version,
		Command:    crash.command,
		Args:       crash.args,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(stack),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

// CrashLogDir returns where crash logs are written.
func CrashLogDir() string {
	crash.mu.RLock()
	dir := crash.dir
	crash.mu.RUnlock()
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, crashLogDirName)
}

// WriteCrashLog stores entry and prunes old logs. It returns the file path.
func WriteCrashLog(entry CrashLog) (string, error) {
	dir := CrashLogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create crash log dir: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash log: %w", err)
	}
	name := fmt.Sprintf("crash_%s.json", entry.Timestamp.Format("20060102_150405.000000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write crash log: %w", err)
	}

	if err := pruneCrashLogs(dir, MaxCrashLogs); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] failed to prune crash logs: %v\n", err)
	}
	return path, nil
}

// ListCrashLogs returns crash log paths, oldest first.
func ListCrashLogs() ([]string, error) {
	dir := CrashLogDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var logs []string
	for _, e := range entries {
		if isCrashLog(e) {
			logs = append(logs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(logs)
	return logs, nil
}

func isCrashLog(e os.DirEntry) bool {
	return !e.IsDir() && strings.HasPrefix(e.Name(), "crash_") && strings.HasSuffix(e.Name(), ".json")
}

// pruneCrashLogs keeps the newest keep logs. Names embed the timestamp so they sort by age.
func pruneCrashLogs(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if isCrashLog(e) {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove old crash log %s: %w", name, err)
		}
	}
	return nil
}
