//go:build linux

package runconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseValidRequest() *RunRequest {
	return &RunRequest{
		Rootfs:          "/sandboxes/1/rootfs",
		OverlayLowerdir: "/images/alpine",
		OverlayUpperdir: "/sandboxes/1/upper",
		OverlayWorkdir:  "/sandboxes/1/work",
		CgroupPath:      "/sys/fs/cgroup/microrun/1",
		TimeLimitMs:     1000,
		MemoryLimit:     64 * 1024 * 1024,
		Argv:            []string{"/bin/true"},
	}
}

func Test_Validate_FillsDefaults(t *testing.T) {
	r := baseValidRequest()
	require.NoError(t, validate(r))
	assert.Equal(t, "/", r.Workdir)
	assert.Equal(t, DefaultPidsLimit, r.PidsLimit)
}

func Test_Validate_PreservesExplicitPidsLimit(t *testing.T) {
	r := baseValidRequest()
	r.PidsLimit = 8
	require.NoError(t, validate(r))
	assert.Equal(t, uint64(8), r.PidsLimit)
}

func Test_Validate_RequiresRootfs(t *testing.T) {
	r := baseValidRequest()
	r.Rootfs = ""
	assert.Error(t, validate(r))
}

func Test_Validate_RequiresOverlayDirs(t *testing.T) {
	r := baseValidRequest()
	r.OverlayUpperdir = ""
	assert.Error(t, validate(r))
}

func Test_Validate_RequiresCgroupPath(t *testing.T) {
	r := baseValidRequest()
	r.CgroupPath = ""
	assert.Error(t, validate(r))
}

func Test_Validate_RequiresPositiveTimeLimit(t *testing.T) {
	r := baseValidRequest()
	r.TimeLimitMs = 0
	assert.Error(t, validate(r))
}

func Test_Validate_RequiresPositiveMemoryLimit(t *testing.T) {
	r := baseValidRequest()
	r.MemoryLimit = 0
	assert.Error(t, validate(r))
}

func Test_Validate_RequiresCPULimitWhenEnforced(t *testing.T) {
	r := baseValidRequest()
	r.EnforceCPULimit = true
	assert.Error(t, validate(r))

	r.CPULimitPercent = 50
	assert.NoError(t, validate(r))
}

func Test_Validate_RequiresArgv(t *testing.T) {
	r := baseValidRequest()
	r.Argv = nil
	assert.Error(t, validate(r))
}
