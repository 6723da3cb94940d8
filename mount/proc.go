//go:build linux

package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// maskedProcPaths are masked with an empty read-only tmpfs (directories) or
// a bind of /dev/null (files): these expose host information or knobs that
// have no business being visible from inside an overlay sandbox. proc
// itself stays mounted as usual; /proc/1 is still the payload.
var maskedProcPaths = []string{
	"/proc/asound",
	"/proc/acpi",
	"/proc/interrupts",
	"/proc/kcore",
	"/proc/keys",
	"/proc/timer_list",
	"/proc/sched_debug",
	"/proc/scsi",
}

// readOnlyProcPaths are bind-remounted read-only in place.
var readOnlyProcPaths = []string{
	"/proc/sys",
	"/proc/sysrq-trigger",
	"/proc/irq",
	"/proc/bus",
}

func mountProc(rootfs string) error {
	target := filepath.Join(rootfs, "/proc")
	if err := mkdirAllTolerant(target); err != nil {
		return err
	}
	if err := unix.Mount("proc", target, "proc", unix.MS_NOEXEC|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return fmt.Errorf("mount: proc: %w", err)
	}

	maskProcPaths(rootfs)
	lockdownProcPaths(rootfs)
	return nil
}

func maskProcPaths(rootfs string) {
	for _, sub := range maskedProcPaths {
		t := filepath.Join(rootfs, sub)
		st, err := os.Lstat(t)
		if err != nil {
			continue
		}
		if st.IsDir() {
			_ = unix.Mount("tmpfs", t, "tmpfs", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV|unix.MS_RDONLY, "size=0")
			continue
		}
		if unix.Mount("/dev/null", t, "", unix.MS_BIND, "") != nil {
			continue
		}
		flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
		if unix.Mount("", t, "", flags, "") != nil {
			_ = unix.Unmount(t, unix.MNT_DETACH)
		}
	}
}

func lockdownProcPaths(rootfs string) {
	for _, sub := range readOnlyProcPaths {
		t := filepath.Join(rootfs, sub)
		if _, err := os.Lstat(t); err != nil {
			continue
		}
		if unix.Mount(t, t, "", unix.MS_BIND, "") != nil {
			continue
		}
		flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
		if unix.Mount("", t, "", flags, "") != nil {
			_ = unix.Unmount(t, unix.MNT_DETACH)
		}
	}
}
