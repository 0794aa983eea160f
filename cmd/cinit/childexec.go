// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cinit-dev/cinit/internal/launcher"
)

// These indirections exist solely so childexec_test.go can observe the
// ordering of privilege-dropping syscalls without a test process actually
// needing to be root, or actually losing its own privileges mid-test-run.
var (
	prctlFn     = unix.Prctl
	setgroupsFn = unix.Setgroups
	setgidFn    = unix.Setgid
	setuidFn    = unix.Setuid
	capsetFn    = unix.Capset
)

// childExecMain implements §4.4 step 4's child-side setup. It is invoked as
// `cinit __childexec`, re-exec'd by the parent's fork (see
// internal/launcher.Launch), and it never returns: every path either
// execve's the real target or os.Exit(127) after writing a one-line reason
// to stderr, which the parent observes as the child dying immediately.
//
// This body runs in a freshly exec'd cinit process, not between fork and
// exec, so ordinary Go code (JSON decoding, formatted errors) is safe here;
// the credential and capability changes themselves are raw syscalls.
func childExecMain() {
	spec, err := readChildSpec()
	if err != nil {
		failChild("spec: %v", err)
	}

	if err := dropPrivileges(spec); err != nil {
		failChild("%v", err)
	}

	if spec.Workdir != "" {
		if err := unix.Chdir(spec.Workdir); err != nil {
			failChild("chdir: %v", err)
		}
	}

	resetSignals()

	if err := syscall.Exec(spec.Path, spec.Args, spec.Env); err != nil {
		failChild("exec: %v", err)
	}
	// unreachable
}

// dropPrivileges performs the uid/gid/capability transition of §4.4 step 4
// in the order capabilities(7) requires: the bounding-set drop and
// PR_SET_KEEPCAPS happen while still root (PR_CAPBSET_DROP needs
// CAP_SETPCAP in the effective set, which setuid below takes away), then
// setgroups/setgid/setuid run, and only then are effective/ambient
// re-raised from what PR_SET_KEEPCAPS preserved in the permitted set --
// the UID change always clears the effective set outright, KEEP_CAPS or
// not, so skipping this last step silently leaves the child with none of
// its configured capabilities despite setuid having "succeeded".
func dropPrivileges(spec *launcher.ChildSpec) error {
	keep, err := capabilityKeepSet(spec.Capabilities)
	if err != nil {
		return fmt.Errorf("capabilities: %w", err)
	}

	if err := dropBoundingSet(keep); err != nil {
		return fmt.Errorf("capabilities (bounding set): %w", err)
	}
	if err := prctlFn(unix.PR_SET_KEEPCAPS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_KEEPCAPS): %w", err)
	}

	if len(spec.Groups) > 0 {
		if err := setgroupsFn(toIntSlice(spec.Groups)); err != nil {
			return fmt.Errorf("setgroups: %w", err)
		}
	} else {
		_ = setgroupsFn(nil)
	}
	if err := setgidFn(int(spec.GID)); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := setuidFn(int(spec.UID)); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}

	if err := raiseCapabilities(keep); err != nil {
		return fmt.Errorf("capabilities (raise): %w", err)
	}
	return nil
}

func readChildSpec() (*launcher.ChildSpec, error) {
	f := os.NewFile(uintptr(launcher.ChildSpecFD), "childspec")
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	var spec launcher.ChildSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// capabilityKeepSet resolves the configured capability names to their
// numeric bits, the shared input to dropBoundingSet and raiseCapabilities.
func capabilityKeepSet(names []string) (map[uint]bool, error) {
	keep := map[uint]bool{}
	for _, n := range names {
		bit, ok := launcher.CapBitOf(n)
		if !ok {
			return nil, fmt.Errorf("unknown capability %q", n)
		}
		keep[bit] = true
	}
	return keep, nil
}

// dropBoundingSet drops the bounding set to exactly keep. Must run while
// still root: PR_CAPBSET_DROP requires CAP_SETPCAP in the effective set,
// which setuid/setgid below take away.
func dropBoundingSet(keep map[uint]bool) error {
	// 40 covers every capability defined through Linux 6.x (CAP_CHECKPOINT_RESTORE
	// is 40); prctl(PR_CAPBSET_DROP) on a bit the running kernel doesn't know
	// about returns EINVAL, which is harmless to ignore below.
	const maxKnownCap = 40
	for bit := uint(0); bit <= maxKnownCap; bit++ {
		if keep[bit] {
			continue
		}
		if err := prctlFn(unix.PR_CAPBSET_DROP, uintptr(bit), 0, 0, 0); err != nil {
			if err == unix.EINVAL {
				continue
			}
			return err
		}
	}
	return nil
}

// raiseCapabilities sets the permitted/effective/inheritable sets to exactly
// keep and raises each into the ambient set, so the child keeps precisely
// what §3 invariant 6 granted it across the exec. Run after setuid/setgid:
// permitted survives the UID change (PR_SET_KEEPCAPS was set beforehand),
// but effective is cleared by the change regardless, so it must be raised
// again here from what PR_SET_KEEPCAPS preserved.
func raiseCapabilities(keep map[uint]bool) error {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	for bit := range keep {
		if bit < 32 {
			data[0].Effective |= 1 << bit
			data[0].Permitted |= 1 << bit
			data[0].Inheritable |= 1 << bit
		} else {
			data[1].Effective |= 1 << (bit - 32)
			data[1].Permitted |= 1 << (bit - 32)
			data[1].Inheritable |= 1 << (bit - 32)
		}
	}
	if err := capsetFn(&hdr, &data[0]); err != nil {
		return err
	}
	for bit := range keep {
		if err := prctlFn(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_RAISE, uintptr(bit), 0, 0); err != nil {
			return err
		}
	}
	return nil
}

// resetSignals restores default disposition for every signal that the
// supervisor may have set to SIG_IGN (ignored dispositions, unlike
// handlers, survive execve) and clears the blocked-signal mask that
// cinit's signalfd-based event loop held, so the exec'd program starts
// with the ordinary signal environment a directly-invoked process would
// have.
func resetSignals() {
	dfl := unix.Sigaction{Handler: unix.SIG_DFL}
	for sig := 1; sig < 32; sig++ {
		if sig == int(unix.SIGKILL) || sig == int(unix.SIGSTOP) {
			continue
		}
		_ = unix.Sigaction(sig, &dfl, nil)
	}
	var empty unix.Sigset_t
	_ = unix.PthreadSigmask(unix.SIG_SETMASK, &empty, nil)
}

func failChild(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cinit __childexec: "+format+"\n", args...)
	os.Exit(127)
}

func toIntSlice(in []uint32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
