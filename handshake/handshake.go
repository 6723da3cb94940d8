//go:build linux

// Package handshake implements the two one-shot, close-to-signal
// synchronisation channels that order the parent/child startup protocol:
// the child must not touch mounts before the parent has written its ID
// maps, and the parent must not start the wall clock before the child has
// finished isolating itself.
package handshake

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// channel is a unidirectional, one-shot close-to-signal pipe: the
// signalling side closes its write end, the observing side blocks on a
// zero-length read.
type channel struct {
	r, w int
}

func newChannel() (channel, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return channel{}, err
	}
	return channel{r: fds[0], w: fds[1]}, nil
}

// signal closes the write end, releasing whoever is blocked on wait.
func (c *channel) signal() error {
	if c.w < 0 {
		return nil
	}
	fd := c.w
	c.w = -1
	return unix.Close(fd)
}

// wait blocks until the signalling side closes its write end. Observing
// any actual byte on the pipe is a protocol violation.
func (c *channel) wait() error {
	if c.r < 0 {
		return nil
	}
	var one [1]byte
	n, err := unix.Read(c.r, one[:])
	fd := c.r
	c.r = -1
	closeErr := unix.Close(fd)
	if err != nil {
		return err
	}
	if n != 0 {
		return fmt.Errorf("handshake: protocol violation: unexpected byte on channel")
	}
	return closeErr
}

// Channels bundles the initialize and finalize one-shot channels created by
// the parent before clone.
type Channels struct {
	initialize channel
	finalize   channel
}

// New creates both channels. Must be called before clone so both ends
// survive into the child's copied file descriptor table.
func New() (*Channels, error) {
	initialize, err := newChannel()
	if err != nil {
		return nil, fmt.Errorf("handshake: create initialize channel: %w", err)
	}
	finalize, err := newChannel()
	if err != nil {
		_ = initialize.signal()
		_ = initialize.wait()
		return nil, fmt.Errorf("handshake: create finalize channel: %w", err)
	}
	return &Channels{initialize: initialize, finalize: finalize}, nil
}

// CloseParentUnused closes the ends of both channels the parent never
// uses: initialize's read end and finalize's write end. After clone() both
// processes hold copies of every end via the usual fork semantics, so each
// side must close the ends it doesn't own.
func (c *Channels) CloseParentUnused() {
	_ = unix.Close(c.initialize.r)
	_ = unix.Close(c.finalize.w)
	c.initialize.r = -1
	c.finalize.w = -1
}

// CloseChildUnused closes the ends the child doesn't own.
func (c *Channels) CloseChildUnused() {
	_ = unix.Close(c.initialize.w)
	_ = unix.Close(c.finalize.r)
	c.initialize.w = -1
	c.finalize.r = -1
}

// SignalInitialize is called by the parent once UID/GID mapping is
// complete, releasing the child to begin mount-namespace construction.
func (c *Channels) SignalInitialize() error {
	return c.initialize.signal()
}

// WaitInitialize is called by the child; it blocks until the parent has
// finished writing the UID/GID maps.
func (c *Channels) WaitInitialize() error {
	return c.initialize.wait()
}

// SignalFinalize is called by the child once mounts, pivot_root and chdir
// are complete, releasing the parent to start the wall clock.
func (c *Channels) SignalFinalize() error {
	return c.finalize.signal()
}

// WaitFinalize is called by the parent; it blocks until the child has
// finished isolating itself.
func (c *Channels) WaitFinalize() error {
	return c.finalize.wait()
}
