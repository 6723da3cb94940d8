//go:build linux

// Package runconfig parses the command line into an immutable RunRequest,
// the single struct every other package downstream of main reads from.
package runconfig

import (
	"fmt"
	"log/slog"

	"github.com/go-sandbox/microrun/logger"
	"github.com/google/uuid"
)

const (
	// FlagUsePeakMemory selects memory.peak over memory.current when the
	// supervisor tracks usage.
	FlagUsePeakMemory uint64 = 1 << 0
	// FlagEnforceCPULimit tells the cgroup controller to write cpu.max.
	FlagEnforceCPULimit uint64 = 1 << 1

	// DefaultPidsLimit mirrors cgroup.DefaultPidsLimit; kept independent so
	// this package does not need to import cgroup just for a constant.
	DefaultPidsLimit uint64 = 32
)

// RunRequest is the immutable, fully-resolved configuration for one
// supervised invocation. It is built once, in Parse, and never mutated
// afterward.
type RunRequest struct {
	UUID uuid.UUID

	// RunLabel is a human-readable tag for this invocation, used only in
	// log lines, never in the payload's own view.
	RunLabel string

	Rootfs          string
	OverlayLowerdir string
	OverlayUpperdir string
	OverlayWorkdir  string
	Workdir         string

	Env  EnvVars
	Argv []string

	CgroupPath      string
	TimeLimitMs     int64
	MemoryLimit     uint64
	CPULimitPercent uint64
	PidsLimit       uint64

	UsePeakMemory   bool
	EnforceCPULimit bool

	ReportPath  string
	HistoryPath string

	CapAdd  []string
	CapDrop []string

	LogLevel  slog.Level
	LogFormat logger.LogFormat
}

// defaultEnvironment mirrors the baseline environment every sandboxed
// payload starts with; --env entries override these by key.
var defaultEnvironment = map[string]string{
	"PATH": "/usr/bin:/bin:/usr/sbin:/sbin:/usr/local/bin",
	"HOME": "/root",
	"TERM": "xterm",
	"LANG": "C.UTF-8",
}

func validate(r *RunRequest) error {
	if r.Rootfs == "" {
		return fmt.Errorf("runconfig: --rootfs is required")
	}
	if r.OverlayLowerdir == "" || r.OverlayUpperdir == "" || r.OverlayWorkdir == "" {
		return fmt.Errorf("runconfig: --overlay-lowerdir, --overlay-upperdir and --overlay-workdir are all required")
	}
	if r.CgroupPath == "" {
		return fmt.Errorf("runconfig: --cgroup-path is required")
	}
	if r.TimeLimitMs <= 0 {
		return fmt.Errorf("runconfig: --time-limit must be > 0")
	}
	if r.MemoryLimit == 0 {
		return fmt.Errorf("runconfig: --memory-limit must be > 0")
	}
	if r.EnforceCPULimit && r.CPULimitPercent == 0 {
		return fmt.Errorf("runconfig: --cpu-limit is required when the enforce-cpu-limit flag bit is set")
	}
	if len(r.Argv) == 0 {
		return fmt.Errorf("runconfig: missing payload; usage: microrun [options] -- command [args...]")
	}
	if r.Workdir == "" {
		r.Workdir = "/"
	}
	if r.PidsLimit == 0 {
		r.PidsLimit = DefaultPidsLimit
	}
	return nil
}
