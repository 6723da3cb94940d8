//go:build linux

// Package capset resolves the sandboxed payload's effective Linux
// capability set and applies it to the current process immediately before
// execve. The floor is the Docker/runc default bounding set; callers widen
// or narrow it per invocation via --cap-add/--cap-drop.
package capset

import (
	"fmt"
	"strings"

	"github.com/moby/sys/capability"
)

// dockerDefaults is the bounding set every sandbox starts from, matching
// the Docker/runc default allow-list.
var dockerDefaults = []string{
	"chown", "dac_override", "fsetid", "fowner", "mknod", "net_raw",
	"setgid", "setuid", "setfcap", "setpcap", "net_bind_service",
	"sys_chroot", "kill", "audit_read", "audit_write",
}

var byName = buildNameIndex()

func buildNameIndex() map[string]capability.Cap {
	idx := make(map[string]capability.Cap)
	for _, c := range capability.ListKnown() {
		idx[c.String()] = c
	}
	return idx
}

// Lookup resolves a capability name, with or without a "CAP_" prefix and
// in any case, to its numeric ID.
func Lookup(name string) (capability.Cap, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "cap_")
	id, ok := byName[key]
	if !ok {
		return 0, fmt.Errorf("capset: unknown capability %q", name)
	}
	return id, nil
}

// Resolve computes the effective allow-list: the Docker defaults, with
// every name in drop removed and then every name in add inserted, so an
// explicit --cap-add always wins over an overlapping --cap-drop.
func Resolve(add, drop []string) ([]capability.Cap, error) {
	allowed := make(map[capability.Cap]bool, len(dockerDefaults))
	for _, name := range dockerDefaults {
		id, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		allowed[id] = true
	}

	for _, name := range drop {
		id, err := Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("--cap-drop: %w", err)
		}
		delete(allowed, id)
	}
	for _, name := range add {
		id, err := Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("--cap-add: %w", err)
		}
		allowed[id] = true
	}

	ids := make([]capability.Cap, 0, len(allowed))
	for id := range allowed {
		ids = append(ids, id)
	}
	return ids, nil
}

// Apply clamps the current process's bounding, permitted, effective and
// inheritable sets to Resolve(add, drop) and clears ambient capabilities.
// Must run in the child, after pivot_root and before execve.
func Apply(add, drop []string) error {
	ids, err := Resolve(add, drop)
	if err != nil {
		return err
	}

	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("capset: load process capabilities: %w", err)
	}

	caps.Clear(capability.BOUNDS)
	caps.Set(capability.BOUNDING, ids...)

	caps.Clear(capability.CAPS)
	caps.Set(capability.PERMITTED, ids...)
	caps.Set(capability.EFFECTIVE, ids...)
	caps.Set(capability.INHERITABLE, ids...)

	caps.Clear(capability.AMBIENT)

	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBIENT); err != nil {
		return fmt.Errorf("capset: apply: %w", err)
	}
	return nil
}
