//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/go-sandbox/microrun/capset"
	"github.com/go-sandbox/microrun/cgroup"
	"github.com/go-sandbox/microrun/clone"
	"github.com/go-sandbox/microrun/handshake"
	"github.com/go-sandbox/microrun/idmap"
	"github.com/go-sandbox/microrun/journal"
	"github.com/go-sandbox/microrun/logger"
	"github.com/go-sandbox/microrun/mount"
	"github.com/go-sandbox/microrun/report"
	"github.com/go-sandbox/microrun/runconfig"
	"github.com/go-sandbox/microrun/supervisor"
	"github.com/inhies/go-bytesize"
	"golang.org/x/sys/unix"
)

func main() {
	req, err := runconfig.Parse(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsing error:", err)
		os.Exit(1)
	} else if req == nil {
		// Help or version was printed.
		os.Exit(0)
	}

	log := logger.CreateLogger(&logger.LoggerOpts{
		LogLevel:  req.LogLevel,
		LogFormat: req.LogFormat,
	})
	log.Info("starting run",
		slog.String("uuid", req.UUID.String()),
		slog.String("label", req.RunLabel),
		slog.String("memory_limit", bytesize.New(float64(req.MemoryLimit)).String()),
		slog.Int64("time_limit_ms", req.TimeLimitMs),
	)

	if unix.Geteuid() != 0 {
		log.Error("microrun must be run as root or with sudo")
		os.Exit(1)
	}

	cgHandle, err := cgroup.Prepare(cgroup.Limits{
		Path:            req.CgroupPath,
		MemoryLimit:     req.MemoryLimit,
		PidsLimit:       req.PidsLimit,
		CPULimitPercent: req.CPULimitPercent,
		EnforceCPULimit: req.EnforceCPULimit,
	})
	if err != nil {
		log.Error("failed to prepare cgroup", slog.Any("err", err))
		os.Exit(1)
	}

	channels, err := handshake.New()
	if err != nil {
		log.Error("failed to create startup channels", slog.Any("err", err))
		os.Exit(1)
	}

	uid := unix.Getuid()
	gid := unix.Getgid()

	runtime.LockOSThread()
	result, err := clone.Into(cgHandle.FD())
	if err != nil {
		log.Error("failed to clone sandboxed task", slog.Any("err", err))
		os.Exit(1)
	}

	if result.PID == 0 {
		channels.CloseChildUnused()
		runChild(req, channels)
		// runChild never returns.
	}
	runtime.UnlockOSThread()
	channels.CloseParentUnused()

	if err := cgHandle.Close(); err != nil {
		log.Warn("failed to close cgroup directory descriptor", slog.Any("err", err))
	}

	if err := idmap.Write(result.PID, uid, gid); err != nil {
		log.Error("failed to write id mappings", slog.Any("err", err))
		_ = unix.Kill(result.PID, unix.SIGKILL)
		os.Exit(1)
	}
	if err := channels.SignalInitialize(); err != nil {
		log.Error("failed to signal initialize", slog.Any("err", err))
		os.Exit(1)
	}
	if err := channels.WaitFinalize(); err != nil {
		log.Error("failed waiting for finalize", slog.Any("err", err))
		os.Exit(1)
	}

	startedAt := time.Now().UTC()
	supResult, err := supervisor.Supervise(supervisor.Options{
		PID:             result.PID,
		CgroupPath:      req.CgroupPath,
		TimeLimitMs:     req.TimeLimitMs,
		MemoryLimit:     req.MemoryLimit,
		UsePeakMemory:   req.UsePeakMemory,
		EnforceCPULimit: req.EnforceCPULimit,
	})
	if err != nil {
		log.Error("supervisor failed", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("run finished",
		slog.String("uuid", req.UUID.String()),
		slog.Int64("exit_code", supResult.Report.ExitCode),
		slog.String("reason", string(supResult.Reason)),
		slog.String("peak_memory", bytesize.New(float64(supResult.Report.MemoryBytes)).String()),
	)

	if err := report.Write(req.ReportPath, supResult.Report); err != nil {
		log.Error("failed to write report", slog.Any("err", err))
		os.Exit(1)
	}

	if req.HistoryPath != "" {
		entry := journal.Entry{
			StartedAt:    startedAt,
			Argv0:        req.Argv[0],
			ExitCode:     supResult.Report.ExitCode,
			TimeMs:       supResult.Report.TimeMs,
			RealTimeMs:   supResult.Report.RealTimeMs,
			MemoryBytes:  supResult.Report.MemoryBytes,
			KilledReason: string(supResult.Reason),
		}
		if err := journal.Append(req.HistoryPath, req.UUID.String(), entry); err != nil {
			log.Warn("failed to append run journal entry", slog.Any("err", err))
		}
	}

	os.Exit(0)
}

// runChild runs entirely inside the freshly cloned task. It never returns:
// every exit path calls unix.Exit or execve.
func runChild(req *runconfig.RunRequest, channels *handshake.Channels) {
	if err := channels.WaitInitialize(); err != nil {
		unix.Exit(1)
	}

	if err := mount.Build(mount.Request{
		Rootfs: req.Rootfs,
		Overlay: mount.Overlay{
			Lowerdir: req.OverlayLowerdir,
			Upperdir: req.OverlayUpperdir,
			Workdir:  req.OverlayWorkdir,
		},
	}); err != nil {
		logger.Log.Error("failed to build mount namespace", slog.Any("err", err))
		unix.Exit(1)
	}

	if err := unix.Sethostname([]byte("sandbox")); err != nil {
		logger.Log.Error("failed to set sandbox hostname", slog.Any("err", err))
		unix.Exit(1)
	}

	if err := unix.Chdir(req.Workdir); err != nil {
		logger.Log.Error("failed to chdir into workdir", slog.Any("err", err))
		unix.Exit(1)
	}

	infinite := uint64(unix.RLIM_INFINITY)
	if err := unix.Setrlimit(unix.RLIMIT_STACK, &unix.Rlimit{Cur: infinite, Max: infinite}); err != nil {
		logger.Log.Error("failed to raise stack rlimit", slog.Any("err", err))
		unix.Exit(1)
	}

	if err := capset.Apply(req.CapAdd, req.CapDrop); err != nil {
		logger.Log.Error("failed to apply capabilities", slog.Any("err", err))
		unix.Exit(1)
	}

	if err := channels.SignalFinalize(); err != nil {
		unix.Exit(1)
	}

	path, err := lookPath(req.Argv[0], req.Env)
	if err != nil {
		logger.Log.Error("failed to resolve payload", slog.Any("err", err))
		unix.Exit(127)
	}

	err = unix.Exec(path, req.Argv, req.Env.ToStringArray())

	// Exec only returns on failure.
	logger.Log.Error("failed to execute payload", slog.Any("err", err))
	unix.Exit(127)
}
