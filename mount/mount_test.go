//go:build linux

package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_IsDir(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, isDir(dir))

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.False(t, isDir(file))

	assert.False(t, isDir(filepath.Join(dir, "does-not-exist")))
}

func Test_MkdirAllTolerant_CreatesAndTolerates(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c")

	require.NoError(t, mkdirAllTolerant(target))
	assert.True(t, isDir(target))

	// Calling again on an existing directory must not error.
	require.NoError(t, mkdirAllTolerant(target))
}

func Test_EnsureTmp_CreatesStickyWorldWritable(t *testing.T) {
	rootfs := t.TempDir()
	require.NoError(t, ensureTmp(rootfs))

	fi, err := os.Stat(filepath.Join(rootfs, "tmp"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Equal(t, os.ModeSticky|os.FileMode(0o777), fi.Mode()&(os.ModeSticky|os.ModePerm))
}

func Test_CreatePlaceholder_ZeroMode(t *testing.T) {
	rootfs := t.TempDir()
	target := filepath.Join(rootfs, "dev", "null")

	require.NoError(t, createPlaceholder(target))

	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0), fi.Mode().Perm())
}

func Test_Build_RejectsEmptyRootfs(t *testing.T) {
	err := Build(Request{})
	assert.Error(t, err)
}

func Test_Build_RejectsNonDirectoryRootfs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	err := Build(Request{Rootfs: file})
	assert.Error(t, err)
}

func Test_MaskProcPaths_SkipsPathsThatDoNotExist(t *testing.T) {
	rootfs := t.TempDir()

	// None of maskedProcPaths exist under this fake rootfs, so every
	// Lstat fails and the loop must do nothing: no panic, no mutation.
	assert.NotPanics(t, func() { maskProcPaths(rootfs) })
}

func Test_MaskProcPaths_LeavesUnprivilegedFileInPlace(t *testing.T) {
	rootfs := t.TempDir()
	target := filepath.Join(rootfs, "proc", "interrupts")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("present"), 0o644))

	// Without CAP_SYS_ADMIN the bind mount onto /dev/null fails; the loop
	// must swallow that and leave the file exactly as it was rather than
	// treating it as fatal.
	maskProcPaths(rootfs)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "present", string(data))
}

func Test_LockdownProcPaths_SkipsPathsThatDoNotExist(t *testing.T) {
	rootfs := t.TempDir()
	assert.NotPanics(t, func() { lockdownProcPaths(rootfs) })
}

func Test_LockdownProcPaths_LeavesUnprivilegedDirInPlace(t *testing.T) {
	rootfs := t.TempDir()
	target := filepath.Join(rootfs, "proc", "sys")
	require.NoError(t, os.MkdirAll(target, 0o755))

	lockdownProcPaths(rootfs)

	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
