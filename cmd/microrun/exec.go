//go:build linux

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sandbox/microrun/runconfig"
)

// lookPath resolves argv0 to an executable path, searching the sandbox's
// own PATH environment variable when argv0 has no slash in it. It runs
// after pivot_root and chdir, so the search happens against the sandbox's
// filesystem view, not the host's.
func lookPath(argv0 string, env runconfig.EnvVars) (string, error) {
	if strings.Contains(argv0, "/") {
		if isExecutable(argv0) {
			return argv0, nil
		}
		return "", fmt.Errorf("exec: %s: not found or not executable", argv0)
	}

	pathVar := ""
	for _, e := range env {
		if e.Key == "PATH" {
			pathVar = e.Val
			break
		}
	}

	for _, dir := range strings.Split(pathVar, ":") {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, argv0)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("exec: %s: not found in PATH", argv0)
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Mode()&0o111 != 0
}
