// Package report writes the supervisor's final, four-line key/value
// summary of a sandboxed run.
package report

import (
	"fmt"
	"os"
)

// Report is the outcome of one supervised run.
type Report struct {
	// ExitCode is the payload's numeric exit status, or -1 if it did not
	// exit normally (killed by a signal or by the supervisor).
	ExitCode int64

	// TimeMs is CPU time consumed, in milliseconds.
	TimeMs int64

	// RealTimeMs is wall-clock time elapsed, in milliseconds.
	RealTimeMs int64

	// MemoryBytes is peak memory usage, in bytes, or the OOM sentinel
	// (memory_limit + 1024) if the kernel OOM-killer fired.
	MemoryBytes int64
}

// Write truncates (or creates, mode 0644) the file at path and writes the
// four report lines in fixed order: exit_code, time, real_time, memory.
func Write(path string, r Report) error {
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("report: open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	lines := fmt.Sprintf(
		"exit_code %d\ntime %d\nreal_time %d\nmemory %d\n",
		r.ExitCode, r.TimeMs, r.RealTimeMs, r.MemoryBytes,
	)
	if _, err := f.WriteString(lines); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}
