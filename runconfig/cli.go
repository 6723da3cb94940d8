//go:build linux

package runconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sandbox/microrun/version"
	"github.com/google/uuid"
	"github.com/goombaio/namegenerator"
	"github.com/urfave/cli/v3"
)

// buildFromCLI assembles a RunRequest from a parsed cli.Command, the same
// shape the sandbox's own option builder uses: read every flag, parse the
// ones with a non-trivial wire format, then validate the whole.
func buildFromCLI(c *cli.Command, label string) (*RunRequest, error) {
	r := &RunRequest{
		UUID:            uuid.New(),
		RunLabel:        label,
		Rootfs:          c.String("rootfs"),
		OverlayLowerdir: c.String("overlay-lowerdir"),
		OverlayUpperdir: c.String("overlay-upperdir"),
		OverlayWorkdir:  c.String("overlay-workdir"),
		Workdir:         c.String("workdir"),
		CgroupPath:      c.String("cgroup-path"),
		TimeLimitMs:     c.Int64("time-limit"),
		MemoryLimit:     uint64(c.Int64("memory-limit")),
		CPULimitPercent: uint64(c.Int64("cpu-limit")),
		PidsLimit:       uint64(c.Int64("pids-limit")),
		ReportPath:      c.String("report"),
		HistoryPath:     c.String("history"),
		CapAdd:          c.StringSlice("cap-add"),
		CapDrop:         c.StringSlice("cap-drop"),
	}

	mask := uint64(c.Int64("flags"))
	r.UsePeakMemory = mask&FlagUsePeakMemory != 0
	r.EnforceCPULimit = mask&FlagEnforceCPULimit != 0

	logLevel, err := parseLogLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	r.LogLevel = logLevel

	logFormat, err := parseLogFormat(c.String("log-format"))
	if err != nil {
		return nil, err
	}
	r.LogFormat = logFormat

	var userEnv []EnvVar
	for _, e := range c.StringSlice("env") {
		ev, err := parseEnv(e)
		if err != nil {
			return nil, err
		}
		userEnv = append(userEnv, ev)
	}
	r.Env = mergeEnv(defaultEnvironment, userEnv)

	r.Argv = c.Args().Slice()

	if err := validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse builds the command's flag surface, parses args against it, and
// returns the resulting RunRequest. A nil result with a nil error means
// help or version was displayed and the caller should exit 0.
func Parse(ctx context.Context, args []string) (*RunRequest, error) {
	var result *RunRequest
	generator := namegenerator.NewNameGenerator(time.Now().UTC().UnixNano())
	label := generator.Generate()

	cmd := &cli.Command{
		Name:    "microrun",
		Usage:   "Supervise one sandboxed process under cgroup v2 and namespace isolation.",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rootfs", Usage: "Mountpoint that becomes the sandbox's root after pivot_root", Required: true},
			&cli.StringFlag{Name: "overlay-lowerdir", Usage: "Read-only base image directory", Required: true},
			&cli.StringFlag{Name: "overlay-upperdir", Usage: "Writable overlay upper directory", Required: true},
			&cli.StringFlag{Name: "overlay-workdir", Usage: "Overlay scratch work directory", Required: true},
			&cli.StringFlag{Name: "workdir", Value: "/", Usage: "Working directory inside the sandbox"},
			&cli.StringSliceFlag{Name: "env", Usage: "Sets an environment variable as KEY=VALUE in the sandbox"},
			&cli.StringFlag{Name: "cgroup-path", Usage: "Absolute cgroup v2 directory to create and attach the payload to", Required: true},
			&cli.Int64Flag{Name: "time-limit", Usage: "CPU time limit in milliseconds", Required: true},
			&cli.Int64Flag{Name: "memory-limit", Usage: "Memory limit in bytes", Required: true},
			&cli.Int64Flag{Name: "cpu-limit", Usage: "CPU limit as a percentage of one CPU (requires flags bit 2)"},
			&cli.Int64Flag{Name: "pids-limit", Value: int64(DefaultPidsLimit), Usage: "pids.max ceiling"},
			&cli.Int64Flag{Name: "flags", Usage: "Bitmask: bit 1 = use memory.peak, bit 2 = enforce cpu.max"},
			&cli.StringFlag{Name: "report", Usage: "Path to write the four-line report file"},
			&cli.StringFlag{Name: "history", Usage: "Path to an optional bbolt run journal"},
			&cli.StringSliceFlag{Name: "cap-add", Usage: "Add a capability to the sandbox (e.g., CAP_NET_ADMIN)"},
			&cli.StringSliceFlag{Name: "cap-drop", Usage: "Drop a capability from the sandbox (e.g., CAP_CHOWN)"},
			&cli.StringFlag{Name: "log-level", Value: "error", Usage: "Log verbosity (info|warn|error)"},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "Log format (text|json)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			built, err := buildFromCLI(c, label)
			if err != nil {
				return err
			}
			result = built
			return nil
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		_ = cli.ShowAppHelp(cmd)
		return nil, fmt.Errorf("runconfig: %w", err)
	}
	return result, nil
}
