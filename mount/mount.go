//go:build linux

// Package mount builds the isolated mount namespace a sandboxed payload
// runs inside of: a private root, an overlay rootfs, a minimal set of
// pseudo-filesystems and device nodes, and a pivot_root into the result.
//
// Every function here runs in the child task, after the startup
// coordinator's initialize gate has released it (see package handshake).
package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Overlay describes the three directories that make up the sandbox's
// overlay rootfs.
type Overlay struct {
	Lowerdir string
	Upperdir string
	Workdir  string
}

// Request carries everything Build needs to construct the new root.
type Request struct {
	// Rootfs is the mountpoint that becomes the sandbox's "/" after
	// pivot_root. It must exist and be a directory.
	Rootfs  string
	Overlay Overlay
}

// Build installs the full mount-namespace sequence described by the
// namespace builder component: private root, self-bind, overlay, pseudo
// filesystems, device nodes, and finally pivot_root. It does not chdir to
// the payload's working directory or set the hostname; callers sequence
// those themselves once Build returns.
func Build(req Request) error {
	if req.Rootfs == "" {
		return fmt.Errorf("mount: empty rootfs")
	}
	if !isDir(req.Rootfs) {
		return fmt.Errorf("mount: rootfs %q is not a directory", req.Rootfs)
	}

	// 1. Detach mount propagation so nothing we do here leaks to the host,
	// and nothing the host does later leaks into us.
	if err := unix.Mount("", "/", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("mount: remount / slave: %w", err)
	}
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("mount: remount / private: %w", err)
	}

	// 2. Bind the rootfs onto itself so it is a valid pivot_root target.
	if err := unix.Mount(req.Rootfs, req.Rootfs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("mount: self-bind rootfs: %w", err)
	}

	// 3. Mount the overlay directly onto the rootfs.
	if err := mountOverlay(req.Rootfs, req.Overlay); err != nil {
		return err
	}

	// The lower image may not carry a writable /tmp; ensure one exists
	// with the conventional sticky world-writable mode before anything
	// else mounts under the rootfs.
	if err := ensureTmp(req.Rootfs); err != nil {
		return err
	}

	// 4. Pseudo-filesystems.
	if err := mountSys(req.Rootfs); err != nil {
		return err
	}
	if err := mountProc(req.Rootfs); err != nil {
		return err
	}
	if err := mountDev(req.Rootfs); err != nil {
		return err
	}
	if err := mountCgroup(req.Rootfs); err != nil {
		return err
	}

	// 5. Device bind mounts.
	if err := bindDevices(req.Rootfs); err != nil {
		return err
	}

	// 6. pivot_root.
	if err := pivotTo(req.Rootfs); err != nil {
		return err
	}

	return nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func ensureTmp(rootfs string) error {
	tmp := filepath.Join(rootfs, "/tmp")
	if err := os.MkdirAll(tmp, 0o1777); err != nil {
		return fmt.Errorf("mount: mkdir /tmp: %w", err)
	}
	return os.Chmod(tmp, os.ModeSticky|0o777)
}

func mountOverlay(rootfs string, ov Overlay) error {
	data := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", ov.Lowerdir, ov.Upperdir, ov.Workdir)
	if err := unix.Mount("overlay", rootfs, "overlay", 0, data); err != nil {
		return fmt.Errorf("mount: overlay: %w", err)
	}
	return nil
}

func mountSys(rootfs string) error {
	target := filepath.Join(rootfs, "/sys")
	if err := mkdirAllTolerant(target); err != nil {
		return err
	}
	flags := uintptr(unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_RDONLY)
	if err := unix.Mount("sysfs", target, "sysfs", flags, ""); err != nil {
		return fmt.Errorf("mount: sysfs: %w", err)
	}
	return nil
}

func mountCgroup(rootfs string) error {
	target := filepath.Join(rootfs, "/sys/fs/cgroup")
	if err := mkdirAllTolerant(target); err != nil {
		return err
	}
	flags := uintptr(unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_RELATIME | unix.MS_RDONLY)
	if err := unix.Mount("cgroup", target, "cgroup2", flags, ""); err != nil {
		return fmt.Errorf("mount: cgroup2: %w", err)
	}
	return nil
}

// mkdirAllTolerant creates every missing component of path, tolerating
// pre-existing directories. Any other error is fatal, same as every mount
// step here.
func mkdirAllTolerant(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mount: mkdir %s: %w", path, err)
	}
	return nil
}

func pivotTo(newRoot string) error {
	oldroot, err := unix.Open("/", unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mount: open old root: %w", err)
	}
	newroot, err := unix.Open(newRoot, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		_ = unix.Close(oldroot)
		return fmt.Errorf("mount: open new root: %w", err)
	}

	if err := unix.Fchdir(newroot); err != nil {
		return fmt.Errorf("mount: chdir new root: %w", err)
	}
	_ = unix.Close(newroot)

	if err := unix.PivotRoot(".", "."); err != nil {
		return fmt.Errorf("mount: pivot_root: %w", err)
	}

	if err := unix.Fchdir(oldroot); err != nil {
		return fmt.Errorf("mount: chdir old root: %w", err)
	}
	_ = unix.Close(oldroot)

	if err := unix.Mount("", ".", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("mount: remount old root slave: %w", err)
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("mount: detach old root: %w", err)
	}

	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("mount: chdir /: %w", err)
	}
	return nil
}
