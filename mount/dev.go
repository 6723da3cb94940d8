//go:build linux

package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// deviceAllowlist is the fixed set of host device nodes bind-mounted into
// every sandbox. Unlike a general container runtime, nothing else is
// exposed.
var deviceAllowlist = []string{
	"/dev/null",
	"/dev/random",
	"/dev/urandom",
}

func mountDev(rootfs string) error {
	dev := filepath.Join(rootfs, "/dev")
	if err := mkdirAllTolerant(dev); err != nil {
		return err
	}
	if err := unix.Mount("tmpfs", dev, "tmpfs", unix.MS_NOSUID|unix.MS_STRICTATIME, "mode=755,size=65536k"); err != nil {
		return fmt.Errorf("mount: /dev tmpfs: %w", err)
	}

	pts := filepath.Join(rootfs, "/dev/pts")
	if err := mkdirAllTolerant(pts); err != nil {
		return err
	}
	if err := unix.Mount("devpts", pts, "devpts", unix.MS_NOSUID|unix.MS_NOEXEC, "newinstance,ptmxmode=0666,mode=0620"); err != nil {
		return fmt.Errorf("mount: /dev/pts: %w", err)
	}

	shm := filepath.Join(rootfs, "/dev/shm")
	if err := mkdirAllTolerant(shm); err != nil {
		return err
	}
	if err := unix.Mount("tmpfs", shm, "tmpfs", unix.MS_NOEXEC|unix.MS_NOSUID|unix.MS_NODEV, "mode=1777,size=65536k"); err != nil {
		return fmt.Errorf("mount: /dev/shm: %w", err)
	}

	mqueue := filepath.Join(rootfs, "/dev/mqueue")
	if err := mkdirAllTolerant(mqueue); err != nil {
		return err
	}
	if err := unix.Mount("mqueue", mqueue, "mqueue", unix.MS_NOEXEC|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return fmt.Errorf("mount: /dev/mqueue: %w", err)
	}

	return nil
}

// bindDevices bind-mounts each entry of deviceAllowlist from the host onto
// the corresponding path under rootfs, creating an empty placeholder file
// first (mode 0000; the bind mount replaces its contents entirely).
func bindDevices(rootfs string) error {
	for _, dev := range deviceAllowlist {
		target := filepath.Join(rootfs, dev)
		if err := createPlaceholder(target); err != nil {
			return err
		}
		if err := unix.Mount(dev, target, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("mount: bind %s: %w", dev, err)
		}
	}
	return nil
}

func createPlaceholder(target string) error {
	if err := mkdirAllTolerant(filepath.Dir(target)); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE, 0o000)
	if err != nil {
		return fmt.Errorf("mount: create %s: %w", target, err)
	}
	return f.Close()
}
