// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package eventloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// handleSignals drains every pending signalfd_siginfo (several signals may
// have coalesced since the last wakeup) and dispatches each.
func (l *Loop) handleSignals(now time.Time) {
	var buf [128]byte // room for one unix.SignalfdSiginfo per read; the loop reads until EAGAIN
	for {
		n, err := unix.Read(l.sigfd, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			l.log.Warn("signalfd read failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		const infoSize = 128 // sizeof(struct signalfd_siginfo)
		for off := 0; off+infoSize <= n; off += infoSize {
			info := (*unix.SignalfdSiginfo)(ptrAt(buf[:], off))
			l.dispatchSignal(unix.Signal(info.Signo), now)
		}
	}
}

func (l *Loop) dispatchSignal(sig unix.Signal, now time.Time) {
	switch sig {
	case unix.SIGCHLD:
		l.reapChildren(now)
	case unix.SIGTERM, unix.SIGINT, unix.SIGQUIT:
		l.enterDraining(now)
	case unix.SIGHUP:
		l.log.Info("SIGHUP received, ignored (no reload)")
	}
}

// reapChildren drains every exited child with a WNOHANG waitpid loop,
// including orphans the supervisor inherited but never launched (reaped
// silently, per §4.5 step 3).
func (l *Loop) reapChildren(now time.Time) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil {
			if err == unix.ECHILD {
				return
			}
			if err == unix.EINTR {
				continue
			}
			l.log.Warn("wait4 failed", "error", err)
			return
		}
		if pid <= 0 {
			return
		}

		c, ok := l.byPID[pid]
		if !ok {
			continue // orphan, not one of ours: reaped silently
		}

		code := exitCodeOf(ws)
		c.exitCode = &code
		l.finalizeIfReady(c, now)
	}
}

func exitCodeOf(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}

// finalizeIfReady transitions a child's program once both conditions named
// in §5 have been observed: its exit status is known AND its output
// stream(s) have reached EOF (either order is tolerated).
func (l *Loop) finalizeIfReady(c *child, now time.Time) {
	if c.exitCode == nil || !c.outEOF || !c.errEOF {
		return
	}
	l.sched.MarkExited(c.handle.Record, *c.exitCode, now)
	l.unregister(c)
}

func (l *Loop) unregister(c *child) {
	l.epollDel(c.stdoutFD)
	delete(l.children, c.stdoutFD)
	if c.stderrFD != 0 {
		l.epollDel(c.stderrFD)
		delete(l.children, c.stderrFD)
	}
	delete(l.byPID, c.pid)
	_ = c.handle.Stdout.Close()
	if c.handle.Stderr != nil {
		_ = c.handle.Stderr.Close()
	}
}

// drainTimer consumes the 8-byte expiry counter a level-triggered timerfd
// always has pending once it fires, so epoll stops reporting it ready.
func (l *Loop) drainTimer() {
	var buf [8]byte
	_, _ = unix.Read(l.timerfd, buf[:])
}

// wakeCron implements §4.5 step 6: move every due Sleeping cronjob into
// the launch path (WakeCandidates already reschedules a still-Running
// cronjob's next fire instead of returning it).
func (l *Loop) wakeCron(now time.Time) {
	if l.draining {
		return
	}
	for _, rec := range l.sched.WakeCandidates(now) {
		l.launchOne(rec, now)
	}
}

// launchReady implements §4.5 step 7 for the non-cron ready set, and seeds
// any newly-ready cronjob straight into Sleeping (§4.3's Blocked→Sleeping
// transition).
func (l *Loop) launchReady(now time.Time) {
	toLaunch, toSleep := l.sched.ReadySet(now)
	for _, rec := range toSleep {
		l.sched.MarkSleeping(rec, now)
	}
	for _, rec := range toLaunch {
		l.launchOne(rec, now)
	}
}

// rearmTimer implements §4.5 step 8.
func (l *Loop) rearmTimer() {
	earliest, ok := l.sched.EarliestScheduledAt()
	var spec unix.ItimerSpec
	if ok {
		d := time.Until(earliest)
		if d < 0 {
			d = 0
		}
		spec.Value.Sec = int64(d / time.Second)
		spec.Value.Nsec = int64(d % time.Second)
	}
	if err := unix.TimerfdSettime(l.timerfd, 0, &spec, nil); err != nil {
		l.log.Warn("timerfd_settime failed", "error", err)
	}
}

// enterDraining implements §4.5's cancellation mode: disarm the timer,
// stop launching, and forward SIGTERM to every Running child.
func (l *Loop) enterDraining(now time.Time) {
	if l.draining {
		return
	}
	l.draining = true
	var zero unix.ItimerSpec
	_ = unix.TimerfdSettime(l.timerfd, 0, &zero, nil)
	for pid := range l.byPID {
		_ = unix.Kill(pid, unix.SIGTERM)
	}
}

// handleChildIO implements §4.5 step 4: read available bytes, split into
// complete lines, log each, and remember the trailing partial line.
func (l *Loop) handleChildIO(fd int, now time.Time) {
	c, ok := l.children[fd]
	if !ok {
		return
	}

	isStdout := fd == c.stdoutFD
	var buf [4096]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n > 0 {
			lines := feed(c, isStdout, buf[:n])
			for _, line := range lines {
				l.log.ChildLine(c.handle.Record.Name, line)
			}
		}
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			// any other read error: treat like EOF for this stream
		}
		if n == 0 || err != nil {
			if rest := flush(c, isStdout); rest != "" {
				l.log.ChildLine(c.handle.Record.Name, rest)
			}
			markEOF(c, isStdout)
			l.finalizeIfReady(c, now)
			return
		}
	}
}

func feed(c *child, isStdout bool, p []byte) []string {
	if isStdout {
		return c.outSplit.Feed(p)
	}
	return c.errSplit.Feed(p)
}

func flush(c *child, isStdout bool) string {
	if isStdout {
		return c.outSplit.Flush()
	}
	return c.errSplit.Flush()
}

func markEOF(c *child, isStdout bool) {
	if isStdout {
		c.outEOF = true
	} else {
		c.errEOF = true
	}
}
