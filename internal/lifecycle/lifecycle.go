// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package lifecycle implements §4.8: the top-level sequence from
// precondition checks through configuration loading, infrastructure setup,
// scheduler seeding, the event loop, and the final exit code.
package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cinit-dev/cinit/internal/config"
	"github.com/cinit-dev/cinit/internal/eventloop"
	"github.com/cinit-dev/cinit/internal/logger"
	"github.com/cinit-dev/cinit/internal/scheduler"
)

// Exit codes per §6.
const (
	ExitSuccess        = 0
	ExitConfigIO       = 1
	ExitConfigSemantic = 2
	ExitRuntimeSetup   = 3
	ExitChildStartup   = 4
	ExitPrecondition   = 5
	ExitCrashed        = 6
)

// minKernelMajor, minKernelMinor is the lowest (major, minor) this
// supervisor trusts to have a working signalfd/timerfd/epoll/capset ABI
// (all have been stable since well before this). Chosen generously rather
// than pinned to the exact kernel version each syscall was introduced in,
// since the real constraint in practice is "new enough that a container
// host built in the last decade satisfies it".
const minKernelMajor, minKernelMinor = 4, 0

// Options configures one supervisor run, gathered from the CLI (§6).
type Options struct {
	ConfigPath string
	SocketPath string
	Log        logger.Logger
}

// Run executes §4.8 end to end and returns the process exit code. It never
// panics intentionally; per §7, a panic anywhere aborts the process and is
// the container runtime's problem to notice.
func Run(opts Options) int {
	log := opts.Log

	if err := checkPreconditions(); err != nil {
		log.Errorf("precondition check failed: %v", err)
		return ExitPrecondition
	}

	records, graph, err := config.Load(opts.ConfigPath, config.HostResolver{})
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			log.Errorf("configuration error: %v", err)
			return ExitConfigIO
		}
		log.Errorf("configuration semantics error: %v", err)
		return ExitConfigSemantic
	}

	sched := scheduler.New(graph)

	selfExe, err := os.Executable()
	if err != nil {
		log.Errorf("could not resolve own executable path: %v", err)
		return ExitRuntimeSetup
	}

	loop, err := eventloop.New(sched, selfExe, os.Environ(), opts.SocketPath, log)
	if err != nil {
		log.Errorf("runtime setup failed: %v", err)
		return ExitRuntimeSetup
	}

	log.Infof("supervising %d programs", len(records))
	log.Tracef("programs:\n%s", config.SummaryTable(records))

	code, err := loop.Run()
	if err != nil {
		log.Errorf("event loop error: %v", err)
		return ExitRuntimeSetup
	}
	if code == ExitCrashed {
		return ExitCrashed
	}
	return code
}

// checkPreconditions implements §4.8 step 1: effective uid 0, a kernel new
// enough to have the syscalls this supervisor depends on, and (since this
// process itself is expected to already run with full capabilities as
// container PID 1) a non-empty effective capability set.
func checkPreconditions() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("must run as uid 0 (effective uid is %d)", os.Geteuid())
	}

	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return fmt.Errorf("uname: %w", err)
	}
	major, minor, err := parseKernelRelease(cstr(uname.Release[:]))
	if err != nil {
		return fmt.Errorf("unparseable kernel release: %w", err)
	}
	if major < minKernelMajor || (major == minKernelMajor && minor < minKernelMinor) {
		return fmt.Errorf("kernel %d.%d is older than the minimum supported %d.%d", major, minor, minKernelMajor, minKernelMinor)
	}

	if !hasAnyCapability() {
		return fmt.Errorf("process has an empty effective capability set")
	}
	return nil
}

func cstr(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func parseKernelRelease(release string) (major, minor int, err error) {
	core, _, _ := strings.Cut(release, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed release %q", release)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}

// hasAnyCapability reads the calling thread's effective capability set via
// capget(2) directly, avoiding a dependency on /proc being mounted (a
// container may start this supervisor before /proc is available).
func hasAnyCapability() bool {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false
	}
	return data[0].Effective != 0 || data[1].Effective != 0
}
