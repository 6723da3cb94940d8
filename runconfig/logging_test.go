//go:build linux

package runconfig

import (
	"log/slog"
	"testing"

	"github.com/go-sandbox/microrun/logger"
	"github.com/stretchr/testify/assert"
)

func Test_ParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for s, want := range cases {
		got, err := parseLogLevel(s)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := parseLogLevel("verbose")
	assert.Error(t, err)
}

func Test_ParseLogFormat(t *testing.T) {
	got, err := parseLogFormat("text")
	assert.NoError(t, err)
	assert.Equal(t, logger.LogText, got)

	got, err = parseLogFormat("json")
	assert.NoError(t, err)
	assert.Equal(t, logger.LogJSON, got)

	_, err = parseLogFormat("xml")
	assert.Error(t, err)
}
