package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Write_ExactFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report")

	err := Write(path, Report{ExitCode: 0, TimeMs: 12, RealTimeMs: 20, MemoryBytes: 4096})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "exit_code 0\ntime 12\nreal_time 20\nmemory 4096\n", string(data))
}

func Test_Write_NegativeExitCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report")

	err := Write(path, Report{ExitCode: -1, TimeMs: 501, RealTimeMs: 1001, MemoryBytes: 1024})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "exit_code -1\ntime 501\nreal_time 1001\nmemory 1024\n", string(data))
}

func Test_Write_Truncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report")
	require.NoError(t, os.WriteFile(path, []byte("stale content that is much longer than the new report"), 0o644))

	require.NoError(t, Write(path, Report{ExitCode: 0, TimeMs: 1, RealTimeMs: 1, MemoryBytes: 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "exit_code 0\ntime 1\nreal_time 1\nmemory 1\n", string(data))
}

func Test_Write_EmptyPathIsNoop(t *testing.T) {
	assert.NoError(t, Write("", Report{}))
}
