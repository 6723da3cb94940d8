//go:build linux

// Package clone wraps the clone3 syscall used to create the sandboxed
// payload's task: a single call that creates every namespace the sandbox
// needs and atomically attaches the new task to a pre-opened cgroup.
package clone

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Flags is the fixed set of namespace flags every sandbox clones with.
// The network namespace is always created (CLONE_NEWNET) and always left
// unconfigured; this tool does no network setup.
const Flags = unix.CLONE_NEWUSER |
	unix.CLONE_NEWPID |
	unix.CLONE_NEWNS |
	unix.CLONE_NEWNET |
	unix.CLONE_NEWIPC |
	unix.CLONE_NEWUTS |
	unix.CLONE_NEWCGROUP

// cloneArgs mirrors struct clone_args from uapi/linux/sched.h, the ABI
// clone3 expects.
type cloneArgs struct {
	Flags      uint64
	Pidfd      uint64
	ChildTid   uint64
	ParentTid  uint64
	ExitSignal uint64
	Stack      uint64
	StackSize  uint64
	TLS        uint64
	SetTid     uint64
	SetTidSize uint64
	Cgroup     uint64
}

// Result distinguishes which side of the clone a caller is running on.
type Result struct {
	// PID is the child's PID as seen from the parent. Zero in the child.
	PID int
}

// Into clones a new task into the given cgroup file descriptor, with the
// fixed namespace flag set plus CLONE_INTO_CGROUP. It returns twice, once
// in each task, exactly like fork(2): in the parent, PID is the child's
// pid; in the child, PID is 0.
//
// This relies on clone3 *not* setting CLONE_VM/CLONE_THREAD, so the new
// task gets its own copy-on-write address space, the same guarantee
// fork() makes. It must not be called from a goroutine that might migrate
// OS threads between the syscall and any subsequent child-side logic;
// callers should pin to the current OS thread first.
func Into(cgroupFD int) (Result, error) {
	args := cloneArgs{
		Flags:      uint64(Flags | unix.CLONE_INTO_CGROUP),
		ExitSignal: uint64(unix.SIGCHLD),
		Cgroup:     uint64(cgroupFD),
	}

	pid, _, errno := unix.Syscall(
		unix.SYS_CLONE3,
		uintptr(unsafe.Pointer(&args)),
		unsafe.Sizeof(args),
		0,
	)
	if errno != 0 {
		return Result{}, fmt.Errorf("clone: clone3: %w", errno)
	}
	return Result{PID: int(pid)}, nil
}
