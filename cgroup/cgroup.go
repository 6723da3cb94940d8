//go:build linux

// Package cgroup manages the cgroup v2 hierarchy a sandboxed payload runs
// inside of: it writes the resource limit files before the payload exists,
// and reads back the usage counters the supervisor polls.
package cgroup

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	memoryMaxFile     = "memory.max"
	memorySwapMaxFile = "memory.swap.max"
	pidsMaxFile       = "pids.max"
	cpuMaxFile        = "cpu.max"
	memoryCurrentFile = "memory.current"
	memoryPeakFile    = "memory.peak"
	memoryEventsFile  = "memory.events"
	cpuStatFile       = "cpu.stat"

	// DefaultPidsLimit is used when the caller does not specify one.
	DefaultPidsLimit = 32

	cpuPeriodUs = 100000
)

// MemorySource selects which cgroup file ReadMemory reads from.
type MemorySource int

const (
	// MemoryCurrent reads memory.current, the live (and lagging) usage.
	MemoryCurrent MemorySource = iota
	// MemoryPeak reads memory.peak, the monotonic high-water mark.
	MemoryPeak
)

// Limits describes the resource ceilings to apply to a freshly prepared
// cgroup, before any task is attached to it.
type Limits struct {
	// Path is the absolute cgroup directory, created/reset by Prepare.
	Path string

	// MemoryLimit is the memory.max ceiling in bytes.
	MemoryLimit uint64

	// PidsLimit is the pids.max ceiling. Zero means DefaultPidsLimit.
	PidsLimit uint64

	// CPULimitPercent is the percentage of one CPU to allow, only written
	// when EnforceCPULimit is set.
	CPULimitPercent uint64

	// EnforceCPULimit controls whether cpu.max is written at all. When
	// unset, the cgroup has no CPU ceiling; the supervisor still enforces
	// the wall/CPU time limit independently via cpu.stat (see supervisor).
	EnforceCPULimit bool
}

// Handle is a prepared cgroup: its path, plus an open directory descriptor
// suitable for clone3's CLONE_INTO_CGROUP attachment.
type Handle struct {
	Path string
	fd   int
}

// FD returns the open path-only directory descriptor backing this handle.
func (h *Handle) FD() int {
	return h.fd
}

// Close releases the directory descriptor. Safe to call once, right after
// the clone succeeds; the path itself remains valid for later reads.
func (h *Handle) Close() error {
	if h.fd < 0 {
		return nil
	}
	fd := h.fd
	h.fd = -1
	return unix.Close(fd)
}

// Prepare creates (or resets) the cgroup directory named by limits.Path and
// writes every limit file before any process is attached to it. It returns
// an open handle usable with clone3's cgroup fd argument.
func Prepare(limits Limits) (*Handle, error) {
	if limits.Path == "" {
		return nil, errors.New("cgroup: empty path")
	}

	if err := os.Remove(limits.Path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("cgroup: rmdir %s: %w", limits.Path, err)
	}
	if err := os.Mkdir(limits.Path, 0o755); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("cgroup: mkdir %s: %w", limits.Path, err)
	}

	if err := writeDecimal(limits.Path, memoryMaxFile, limits.MemoryLimit); err != nil {
		return nil, err
	}
	if err := writeFile(limits.Path, memorySwapMaxFile, "0"); err != nil {
		return nil, err
	}

	pids := limits.PidsLimit
	if pids == 0 {
		pids = DefaultPidsLimit
	}
	if err := writeDecimal(limits.Path, pidsMaxFile, pids); err != nil {
		return nil, err
	}

	if limits.EnforceCPULimit {
		quota := limits.CPULimitPercent * cpuPeriodUs / 100
		line := fmt.Sprintf("%d %d", quota, cpuPeriodUs)
		if err := writeFile(limits.Path, cpuMaxFile, line); err != nil {
			return nil, err
		}
	}

	fd, err := unix.Open(limits.Path, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("cgroup: open %s: %w", limits.Path, err)
	}

	return &Handle{Path: limits.Path, fd: fd}, nil
}

func writeFile(dir, name, content string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("cgroup: write %s: %w", path, err)
	}
	return nil
}

func writeDecimal(dir, name string, value uint64) error {
	return writeFile(dir, name, strconv.FormatUint(value, 10))
}

// ReadMemory reads the memory.current or memory.peak file of the cgroup at
// path, depending on which, and returns its decimal value in bytes.
func ReadMemory(path string, which MemorySource) (uint64, error) {
	name := memoryCurrentFile
	if which == MemoryPeak {
		name = memoryPeakFile
	}
	return readDecimalFile(filepath.Join(path, name))
}

// ReadCPUUsageMicros reads cpu.stat and returns the usage_usec field.
func ReadCPUUsageMicros(path string) (uint64, error) {
	return readStatField(filepath.Join(path, cpuStatFile), "usage_usec")
}

// ReadOOMCount reads memory.events and returns the oom field: a non-zero
// value means the kernel's OOM killer fired inside this cgroup.
func ReadOOMCount(path string) (uint64, error) {
	return readStatField(filepath.Join(path, memoryEventsFile), "oom")
}

func readDecimalFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("cgroup: read %s: %w", path, err)
	}
	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0, fmt.Errorf("cgroup: %s: unexpected sentinel value %q", path, s)
	}
	value, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cgroup: %s: invalid value %q: %w", path, s, err)
	}
	return value, nil
}

func readStatField(path, field string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("cgroup: open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	prefix := field + " "
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		value, err := strconv.ParseUint(strings.TrimSpace(line[len(prefix):]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cgroup: %s: invalid %s value: %w", path, field, err)
		}
		return value, nil
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("cgroup: scan %s: %w", path, err)
	}
	return 0, fmt.Errorf("cgroup: %s: field %q not found", path, field)
}
