// Package idmap writes the UID/GID mappings for a child created in a new
// user namespace, mapping uid/gid 0 inside the sandbox to the invoking
// process's real uid/gid outside of it.
package idmap

import (
	"fmt"
	"os"
)

// Write configures /proc/<pid>/{uid_map,setgroups,gid_map} for childPID,
// mapping the sandbox's uid 0 and gid 0 to the caller's real uid/gid. The
// three files are written in this exact order: uid_map, then setgroups
// ("deny", required before gid_map can be written in an unprivileged user
// namespace), then gid_map.
func Write(childPID, uid, gid int) error {
	if childPID <= 0 {
		return fmt.Errorf("idmap: invalid child pid %d", childPID)
	}

	uidMapPath := fmt.Sprintf("/proc/%d/uid_map", childPID)
	setgroupsPath := fmt.Sprintf("/proc/%d/setgroups", childPID)
	gidMapPath := fmt.Sprintf("/proc/%d/gid_map", childPID)

	if err := writeMap(uidMapPath, uid); err != nil {
		return fmt.Errorf("idmap: write uid_map: %w", err)
	}
	if err := os.WriteFile(setgroupsPath, []byte("deny\n"), 0o644); err != nil {
		return fmt.Errorf("idmap: write setgroups: %w", err)
	}
	if err := writeMap(gidMapPath, gid); err != nil {
		return fmt.Errorf("idmap: write gid_map: %w", err)
	}
	return nil
}

func writeMap(path string, outsideID int) error {
	line := fmt.Sprintf("0 %d 1\n", outsideID)
	return os.WriteFile(path, []byte(line), 0o644)
}
