// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package program implements the data model of §3: one ProgramRecord per
// configured program, the merge rules of §4.2 that fold multiple partial
// fragments carrying the same name into a single record, and the
// dependency DAG of §3's DependencyGraph.
package program

import (
	"time"

	"github.com/cinit-dev/cinit/internal/cronexpr"
)

// Kind is one of the three program kinds from the glossary.
type Kind int

const (
	Oneshot Kind = iota
	Cronjob
	Notify
)

func (k Kind) String() string {
	switch k {
	case Oneshot:
		return "oneshot"
	case Cronjob:
		return "cronjob"
	case Notify:
		return "notify"
	default:
		return "unknown"
	}
}

// State is a node in the per-program state machine of §4.3.
type State int

const (
	Blocked State = iota
	Sleeping
	Running
	Done
	Crashed
)

func (s State) String() string {
	switch s {
	case Blocked:
		return "blocked"
	case Sleeping:
		return "sleeping"
	case Running:
		return "running"
	case Done:
		return "done"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// EnvPair is one (key, value?) entry from the program's env list. A nil
// Value means "inherit from the supervisor environment if present, else
// drop" (§4.4 step 1).
type EnvPair struct {
	Key   string
	Value *string
}

// Record is one ProgramRecord (§3). It is created once at startup and never
// destroyed; only its State-related fields (State, PID, ExitCode,
// ScheduledAt) mutate during the run, and only the scheduler/event loop
// (single goroutine) touch them, so no locking is needed (§5).
type Record struct {
	ID   int // stable arena index, assigned by the graph builder
	Name string

	Path    string
	Args    []string
	Workdir string

	UID, GID             uint32
	SupplementaryGroups  []uint32
	Capabilities         []string

	Env     []EnvPair
	EnvFile string // supplemental: optional dotenv file, see SPEC_FULL.md

	Kind     Kind
	CronSpec *cronexpr.Spec

	Pty bool

	Before map[string]struct{}
	After  map[string]struct{}

	State       State
	PID         int
	ExitCode    *int
	ScheduledAt *time.Time
}

func newRecord(name string) *Record {
	return &Record{
		Name:   name,
		Before: map[string]struct{}{},
		After:  map[string]struct{}{},
	}
}

// IsTerminal reports whether the program has reached Done or Crashed.
func (r *Record) IsTerminal() bool {
	return r.State == Done || r.State == Crashed
}
