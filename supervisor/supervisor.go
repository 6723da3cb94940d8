//go:build linux

// Package supervisor implements the parent-side polling loop that watches
// a sandboxed payload's liveness, wall-clock, memory and CPU usage, kills
// it on violation, and reduces the observed outcome to a report.Report.
//
// The wall-clock budget is always twice the CPU-time budget, so that
// I/O-bound payloads are not punished for time spent off-CPU. A kill for
// any reason is followed by a blocking reap before counters are read, so
// the final figures always describe a finished task.
package supervisor

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-sandbox/microrun/cgroup"
	"github.com/go-sandbox/microrun/report"
	"golang.org/x/sys/unix"
)

// pollInterval is the fixed cadence at which the supervisor checks the
// child's liveness and resource usage.
const pollInterval = 5 * time.Millisecond

// oomSentinelPad is added to the memory limit to produce the reported
// memory figure when the kernel OOM-killer is found to have fired.
const oomSentinelPad = 1024

// KilledReason classifies why a run ended, mirroring the terminal states
// a supervised run can land in.
type KilledReason string

const (
	ReasonNone      KilledReason = "none"
	ReasonWallClock KilledReason = "wall_clock"
	ReasonMemory    KilledReason = "memory"
	ReasonCPUTime   KilledReason = "cpu_time"
	ReasonExternal  KilledReason = "external"
)

// Options carries everything the supervisor needs to watch one child.
type Options struct {
	PID             int
	CgroupPath      string
	TimeLimitMs     int64
	MemoryLimit     uint64
	UsePeakMemory   bool
	EnforceCPULimit bool
}

// Result is the supervisor's final verdict: the report plus why the run
// ended, for callers (e.g. the run journal) that want the richer reason
// the four-line report format has no room for.
type Result struct {
	Report report.Report
	Reason KilledReason
}

// Supervise blocks until the payload at opts.PID exits or is killed for a
// limit violation, then returns the reduced Report. It never returns an
// error for payload-side outcomes (crashes, kills, limit violations);
// those are all encoded in the returned Report.
// It returns an error only for supervisor-side syscall failures.
func Supervise(opts Options) (Result, error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	start := time.Now()
	realTimeLimitMs := 2 * opts.TimeLimitMs
	var peakMemory uint64
	var reason KilledReason
	var ws unix.WaitStatus

pollLoop:
	for {
		wpid, err := unix.Wait4(opts.PID, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Result{}, err
		}
		if wpid == opts.PID {
			break pollLoop
		}

		select {
		case <-sigCh:
			reason = ReasonExternal
			break pollLoop
		default:
		}

		elapsedMs := time.Since(start).Milliseconds()
		if elapsedMs > realTimeLimitMs {
			reason = ReasonWallClock
			break pollLoop
		}

		if !opts.UsePeakMemory {
			current, err := cgroup.ReadMemory(opts.CgroupPath, cgroup.MemoryCurrent)
			if err == nil && current > peakMemory {
				peakMemory = current
			}
			if peakMemory > opts.MemoryLimit {
				reason = ReasonMemory
				break pollLoop
			}
		}

		usageUsec, err := cgroup.ReadCPUUsageMicros(opts.CgroupPath)
		if err == nil && usageUsec > uint64(opts.TimeLimitMs)*1000 {
			reason = ReasonCPUTime
			break pollLoop
		}

		time.Sleep(pollInterval)
	}

	if reason != "" {
		_ = unix.Kill(opts.PID, unix.SIGKILL)
		for {
			_, err := unix.Wait4(opts.PID, &ws, 0, nil)
			if err == unix.EINTR {
				continue
			}
			break
		}
	}

	memorySource := cgroup.MemoryCurrent
	if opts.UsePeakMemory {
		memorySource = cgroup.MemoryPeak
	}
	finalMemory, err := cgroup.ReadMemory(opts.CgroupPath, memorySource)
	if err != nil {
		finalMemory = peakMemory
	}
	if opts.UsePeakMemory {
		peakMemory = finalMemory
	} else if finalMemory > peakMemory {
		peakMemory = finalMemory
	}

	cpuUsageUsec, err := cgroup.ReadCPUUsageMicros(opts.CgroupPath)
	if err != nil {
		cpuUsageUsec = 0
	}
	timeMs := int64(cpuUsageUsec / 1000)
	realTimeMs := time.Since(start).Milliseconds()

	var exitCode int64 = -1
	if ws.Exited() {
		exitCode = int64(ws.ExitStatus())
	}

	// A non-zero (or abnormal) exit may actually be the kernel's OOM
	// killer firing inside the cgroup; memory.events is the only way to
	// tell a natural crash from a reclaimed one.
	if exitCode != 0 {
		oomCount, err := cgroup.ReadOOMCount(opts.CgroupPath)
		if err == nil && oomCount > 0 {
			peakMemory = opts.MemoryLimit + oomSentinelPad
			if reason == "" {
				reason = ReasonMemory
			}
		}
	}

	// Clamp on the final values, not on why the loop broke: a payload that
	// exits naturally but whose post-exit cpu.stat or elapsed reads land
	// past the limit still reports the canonical sentinels. The reason
	// check covers a kill whose millisecond-truncated figure sits exactly
	// at the limit.
	if reason == ReasonWallClock || reason == ReasonCPUTime ||
		timeMs > opts.TimeLimitMs || realTimeMs > realTimeLimitMs {
		timeMs = opts.TimeLimitMs + 1
		realTimeMs = realTimeLimitMs + 1
		if reason == "" {
			reason = ReasonCPUTime
		}
	}

	if reason == "" {
		reason = ReasonNone
	}

	return Result{
		Report: report.Report{
			ExitCode:    exitCode,
			TimeMs:      timeMs,
			RealTimeMs:  realTimeMs,
			MemoryBytes: int64(peakMemory),
		},
		Reason: reason,
	}, nil
}
