// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package launcher implements §4.4, the fork/exec pipeline that prepares
// one child's execution environment: credentials, capabilities, templated
// env/args, and either a pty or a pair of pipes for captured output.
//
// Go's runtime forks and execs in one guarded step (os/exec), so there is
// no window in which arbitrary Go code safely runs between fork and exec
// the way §4.4 step 4's pseudocode implies. To still perform the exact
// child-side sequence the spec describes -- set groups, setgid, setuid,
// chdir, trim the capability bounding set down to precisely the configured
// set, reset signal dispositions, then execve -- this package re-execs
// cinit itself as a tiny "__childexec" helper (see cmd/cinit/childexec.go)
// immediately after the fork, handing it a JSON-encoded ChildSpec over an
// inherited pipe fd. That helper runs as its own fresh Go process and never
// returns to cinit's normal command path; it either execve's the real
// target or exits with status 127, exactly matching step 4e.
package launcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/cinit-dev/cinit/internal/program"
	"github.com/cinit-dev/cinit/internal/template"
)

// LaunchErrorSub enumerates the failure points named in §4.4's LaunchError.
type LaunchErrorSub string

const (
	SubFork         LaunchErrorSub = "Fork"
	SubCapabilities LaunchErrorSub = "Capabilities"
	SubCredentials  LaunchErrorSub = "Credentials"
	SubPty          LaunchErrorSub = "Pty"
	SubPipe         LaunchErrorSub = "Pipe"
)

// LaunchError is fatal for the one child being launched but not for the
// engine (§7): the scheduler marks that program Crashed and continues.
type LaunchError struct {
	Sub LaunchErrorSub
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch error (%s): %v", e.Sub, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Handle is everything the event loop needs after a successful launch: the
// running *os.Process, the fd(s) to poll for output, and whether they're a
// combined pty stream or separate stdout/stderr pipes.
type Handle struct {
	Record *program.Record
	Cmd    *exec.Cmd

	PTY bool

	// Stdout is the sole readable fd for pty mode (combined stream), or
	// the stdout-only pipe read end otherwise.
	Stdout *os.File
	// Stderr is nil in pty mode.
	Stderr *os.File

	Warnings []string
}

// Launch performs the complete §4.4 sequence for one program and returns a
// Handle once the child has actually forked successfully. selfExe is the
// absolute path to the running cinit binary (os.Executable()), used for the
// "__childexec" self-reexec.
func Launch(rec *program.Record, supervisorEnv []string, selfExe string) (*Handle, error) {
	if err := ValidateCapabilities(rec.Capabilities); err != nil {
		return nil, &LaunchError{Sub: SubCapabilities, Err: err}
	}

	env, warnings, err := BuildEnv(rec, supervisorEnv)
	if err != nil {
		return nil, &LaunchError{Sub: SubCredentials, Err: err}
	}

	args, err := template.ExpandAll(rec.Args, toBindings(env), nil)
	if err != nil {
		return nil, &LaunchError{Sub: SubCredentials, Err: err}
	}

	spec := ChildSpec{
		Path:         rec.Path,
		Args:         append([]string{rec.Path}, args...),
		Env:          env,
		Workdir:      rec.Workdir,
		UID:          rec.UID,
		GID:          rec.GID,
		Groups:       rec.SupplementaryGroups,
		Capabilities: rec.Capabilities,
	}
	specBytes, err := json.Marshal(spec)
	if err != nil {
		return nil, &LaunchError{Sub: SubFork, Err: err}
	}

	specR, specW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Sub: SubPipe, Err: err}
	}
	defer specR.Close()
	if _, err := specW.Write(specBytes); err != nil {
		specW.Close()
		return nil, &LaunchError{Sub: SubPipe, Err: err}
	}
	specW.Close()

	h := &Handle{Record: rec, PTY: rec.Pty, Warnings: warnings}

	var master, slave, stdoutW, stderrW, devnull *os.File
	if rec.Pty {
		master, slave, err = openPTY()
		if err != nil {
			return nil, &LaunchError{Sub: SubPty, Err: err}
		}
		h.Stdout = master
	} else {
		var stdoutR, stderrR *os.File
		stdoutR, stdoutW, err = os.Pipe()
		if err != nil {
			return nil, &LaunchError{Sub: SubPipe, Err: err}
		}
		stderrR, stderrW, err = os.Pipe()
		if err != nil {
			stdoutR.Close()
			stdoutW.Close()
			return nil, &LaunchError{Sub: SubPipe, Err: err}
		}
		devnull, err = os.Open(os.DevNull)
		if err != nil {
			return nil, &LaunchError{Sub: SubPipe, Err: err}
		}
		h.Stdout, h.Stderr = stdoutR, stderrR
	}

	cmd := exec.Command(selfExe, "__childexec")
	cmd.ExtraFiles = []*os.File{specR}
	cmd.SysProcAttr = &syscall.SysProcAttr{}
	if rec.Pty {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = slave, slave, slave
		cmd.SysProcAttr.Setsid = true
	} else {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, stdoutW, stderrW
	}

	if err := cmd.Start(); err != nil {
		closeAll(master, slave, stdoutW, stderrW, devnull, h.Stdout, h.Stderr)
		return nil, &LaunchError{Sub: SubFork, Err: err}
	}

	// Close our copies of every fd now owned by the child (§4.4 step 5).
	closeAll(slave, stdoutW, stderrW, devnull)

	if err := setNonblocking(h.Stdout); err != nil {
		return nil, &LaunchError{Sub: SubPipe, Err: err}
	}
	if h.Stderr != nil {
		if err := setNonblocking(h.Stderr); err != nil {
			return nil, &LaunchError{Sub: SubPipe, Err: err}
		}
	}

	h.Cmd = cmd
	return h, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

func toBindings(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if i := bytes.IndexByte([]byte(kv), '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}
