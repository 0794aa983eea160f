// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package eventloop implements §4.5: a single-threaded, epoll-driven
// cooperative loop fanning in a signalfd, every running child's
// stdout/stderr (or pty master), the status-socket listener, and a
// timerfd armed to the earliest Sleeping cronjob's scheduled_at.
package eventloop

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cinit-dev/cinit/internal/launcher"
	"github.com/cinit-dev/cinit/internal/logger"
	"github.com/cinit-dev/cinit/internal/program"
	"github.com/cinit-dev/cinit/internal/scheduler"
	"github.com/cinit-dev/cinit/internal/sock"
	"github.com/cinit-dev/cinit/internal/status"
)

// ptrAt returns a pointer to the byte at offset off in buf, for overlaying
// a fixed-size struct (signalfd_siginfo) onto a raw read buffer.
func ptrAt(buf []byte, off int) unsafe.Pointer {
	return unsafe.Pointer(&buf[off])
}

// RuntimeError wraps an epoll_wait failure inside Run (§7). EINTR/EAGAIN
// are retried transparently inside this package and never surface as a
// RuntimeError; other signalfd and wait4 read failures are logged and the
// loop carries on, while any other epoll_wait error is escalated to the
// caller, which maps it to exit code 3.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("eventloop: %s: %v", e.Op, e.Err) }
func (e *RuntimeError) Unwrap() error { return e.Err }

// child tracks one running program's launcher.Handle plus the line
// splitters needed to preserve partial lines across reads (§4.5 step 4).
type child struct {
	handle   *launcher.Handle
	pid      int
	stdoutFD int
	stderrFD int // 0 (unused) in pty mode
	outSplit launcher.LineSplitter
	errSplit launcher.LineSplitter
	outEOF   bool
	errEOF   bool // starts true in pty mode: there is no separate stderr fd
	exitCode *int
}

// Loop owns the epoll instance and every registered fd for one supervisor
// run. Construct with New, then call Run once.
type Loop struct {
	epfd      int
	sigfd     int
	timerfd   int
	sockFd    int
	sockSrv   *sock.Server
	sched     *scheduler.Scheduler
	selfExe   string
	superEnv  []string
	log       logger.Logger

	children map[int]*child // by stdout/master fd
	byPID    map[int]*child

	draining bool
}

// New installs the signal mask, creates the signalfd/epoll/timerfd
// instances, and binds the status socket (§4.8 step 3). Any failure here
// is returned as an ordinary error, which the caller maps to exit code 3.
func New(sched *scheduler.Scheduler, selfExe string, superEnv []string, socketPath string, log logger.Logger) (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	var set unix.Sigset_t
	for _, s := range []unix.Signal{unix.SIGCHLD, unix.SIGTERM, unix.SIGINT, unix.SIGHUP, unix.SIGQUIT} {
		sigsetAdd(&set, int(s))
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("pthread_sigmask: %w", err)
	}
	sigfd, err := unix.Signalfd(-1, &set, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("signalfd: %w", err)
	}

	timerfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		unix.Close(epfd)
		unix.Close(sigfd)
		return nil, fmt.Errorf("timerfd_create: %w", err)
	}

	l := &Loop{
		epfd: epfd, sigfd: sigfd, timerfd: timerfd,
		sched: sched, selfExe: selfExe, superEnv: superEnv, log: log,
		children: map[int]*child{}, byPID: map[int]*child{},
	}

	srv, err := sock.NewServer(socketPath, l.dumpStatus)
	if err != nil {
		l.closeFDs()
		return nil, err
	}
	l.sockSrv = srv
	sockFd, err := srv.Fd()
	if err != nil {
		l.closeFDs()
		return nil, err
	}
	l.sockFd = int(sockFd)

	for _, fd := range []int{sigfd, timerfd, l.sockFd} {
		if err := l.epollAdd(fd); err != nil {
			l.closeFDs()
			return nil, err
		}
	}

	return l, nil
}

// sigsetAdd sets the bit for signal sig (1-indexed, per POSIX) in set.
// unix.Sigset_t has no portable setter in x/sys/unix; this relies on the
// 64-bit-word layout ({Val [16]uint64}) that ztypes_linux_{amd64,arm64}.go
// share, which matches the only architectures this supervisor targets.
func sigsetAdd(set *unix.Sigset_t, sig int) {
	bit := uint(sig - 1)
	set.Val[bit/64] |= 1 << (bit % 64)
}

func (l *Loop) closeFDs() {
	for _, fd := range []int{l.epfd, l.sigfd, l.timerfd, l.sockFd} {
		if fd > 0 {
			_ = unix.Close(fd)
		}
	}
	if l.sockSrv != nil {
		_ = l.sockSrv.Close()
	}
}

func (l *Loop) epollAdd(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (l *Loop) epollDel(fd int) {
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (l *Loop) dumpStatus() ([]byte, error) {
	return status.Snapshot(l.sched.Graph().Records)
}

// launchOne performs §4.4 for one ready program and registers its fd(s)
// with epoll, or marks it Crashed with a synthetic exit code on a
// LaunchError (§7: fatal for the child, not for the engine).
func (l *Loop) launchOne(rec *program.Record, now time.Time) {
	h, err := launcher.Launch(rec, l.superEnv, l.selfExe)
	if err != nil {
		l.log.Error("launch failed", "program", rec.Name, "error", err)
		l.sched.MarkLaunchFailed(rec, now)
		return
	}
	for _, w := range h.Warnings {
		l.log.Warn("template forward reference", "program", rec.Name, "name", w)
	}

	c := &child{handle: h, pid: h.Cmd.Process.Pid, stdoutFD: int(h.Stdout.Fd())}
	if h.Stderr != nil {
		c.stderrFD = int(h.Stderr.Fd())
	} else {
		c.errEOF = true // pty mode: no separate stderr stream to wait on
	}

	if err := l.epollAdd(c.stdoutFD); err != nil {
		l.log.Error("epoll_ctl add failed", "program", rec.Name, "error", err)
	}
	l.children[c.stdoutFD] = c
	if c.stderrFD != 0 {
		if err := l.epollAdd(c.stderrFD); err != nil {
			l.log.Error("epoll_ctl add failed", "program", rec.Name, "error", err)
		}
		l.children[c.stderrFD] = c
	}
	l.byPID[c.pid] = c

	l.sched.MarkRunning(rec, c.pid)
}

// Run executes §4.5 until the scheduler reports Done (§4.8 step 6), or,
// after a termination signal, until every launched child has been reaped,
// and returns the process exit code to use.
func (l *Loop) Run() (int, error) {
	defer l.closeFDs()

	l.launchReady(time.Now())
	l.rearmTimer()

	events := make([]unix.EpollEvent, 16)
	for {
		if l.sched.Done() || (l.draining && len(l.byPID) == 0) {
			return l.sched.ExitCode(), nil
		}

		n, err := unix.EpollWait(l.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, &RuntimeError{Op: "epoll_wait", Err: err}
		}

		now := time.Now()
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case l.sigfd:
				l.handleSignals(now)
			case l.timerfd:
				l.drainTimer()
				l.wakeCron(now)
			case l.sockFd:
				if err := l.sockSrv.AcceptOne(); err != nil {
					l.log.Warn("status socket accept failed", "error", err)
				}
			default:
				l.handleChildIO(fd, now)
			}
		}

		if !l.draining {
			l.launchReady(now)
			l.rearmTimer()
		}
	}
}
