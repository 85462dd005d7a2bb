// Package lockfile keeps two barkeep processes from sharing one state
// directory. The SQLite database, the WhatsApp session and the genai debug
// log all live there. The flock is dropped by the kernel when the process
// exits, so a crash never leaves the directory locked.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is created inside the state directory.
const LockFileName = "barkeep.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// LockError reports that another process holds the state directory.
type LockError struct {
	LockPath     string
	ExistingInfo string
	Cause        error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another barkeep instance is using this state directory (lock file %s)", e.LockPath)
	if e.ExistingInfo != "" {
		msg += ": " + e.ExistingInfo
	}
	return msg
}

func (e *LockError) Unwrap() error { return e.Cause }

// AcquireLock creates stateDir if needed and locks it without blocking.
// The lock file records the holder's PID and start time.
func AcquireLock(stateDir string) (*Lock, error) {
	path := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// Opened without O_TRUNC: the holder's record must survive a failed
	// attempt so the error can name it.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		holder := describeHolder(path)
		slog.Error("lockfile.AcquireLock: state directory already locked", "lock_path", path, "holder", holder, "error", err)
		return nil, &LockError{LockPath: path, ExistingInfo: holder, Cause: err}
	}

	if err := writeHolder(f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("failed to record lock holder in %s: %w", path, err)
	}

	slog.Info("lockfile.AcquireLock: state directory locked", "lock_path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

func writeHolder(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	record := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteAt([]byte(record), 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("lockfile.writeHolder: sync failed", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Lock.Release: unlock failed", "lock_path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("Lock.Release: close failed", "lock_path", l.path, "error", err)
	}
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: lock file left behind", "lock_path", l.path, "error", err)
	}
	slog.Info("Lock.Release: state directory unlocked", "lock_path", l.path)
	return nil
}

// describeHolder summarizes the record left by the process holding path.
func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unable to read lock file information"
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "lock file exists but contains no process information"
	}
	pid := extractPIDFromLockInfo(content)
	if pid <= 0 {
		return "process information: " + content
	}
	state := "not running, stale lock"
	if isProcessRunning(pid) {
		state = "running"
	}
	return fmt.Sprintf("PID %d (%s)", pid, state)
}

// extractPIDFromLockInfo returns the value of the first "pid=" line, or 0.
func extractPIDFromLockInfo(content string) int {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		v, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "pid=")
		if !ok {
			continue
		}
		if pid, err := strconv.Atoi(v); err == nil && pid > 0 {
			return pid
		}
		return 0
	}
	return 0
}

// isProcessRunning sends signal 0 to pid.
func isProcessRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
