// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package status implements §4.6: rendering an immutable snapshot of every
// ProgramRecord as a human-readable YAML-shaped document, written once per
// status-socket connection.
package status

import (
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/cinit-dev/cinit/internal/program"
)

const timeLayout = "2006-01-02T15:04:05"

// Entry is the wire shape of one program in a snapshot.
type Entry struct {
	Name        string  `yaml:"name"`
	State       string  `yaml:"state"`
	Kind        string  `yaml:"kind"`
	PID         *int    `yaml:"pid,omitempty"`
	ExitCode    *int    `yaml:"exit_code,omitempty"`
	ScheduledAt *string `yaml:"scheduled_at,omitempty"`
}

// Document is the top-level snapshot, including a correlation id so two
// dumps pulled moments apart by an operator can be told apart in logs.
type Document struct {
	SnapshotID string  `yaml:"snapshot_id"`
	Programs   []Entry `yaml:"programs"`
}

// Snapshot renders the current state of every record. Called from the
// event-loop goroutine only (§5): no locking, since nothing else ever
// mutates records concurrently with this read.
func Snapshot(records []*program.Record) ([]byte, error) {
	doc := Document{
		SnapshotID: uuid.NewString(),
		Programs:   make([]Entry, 0, len(records)),
	}
	for _, r := range records {
		e := Entry{
			Name:  r.Name,
			State: r.State.String(),
			Kind:  r.Kind.String(),
		}
		if r.State == program.Running {
			pid := r.PID
			e.PID = &pid
		}
		if r.State == program.Done || r.State == program.Crashed {
			if r.ExitCode != nil {
				code := *r.ExitCode
				e.ExitCode = &code
			}
		}
		if r.Kind == program.Cronjob && r.State == program.Sleeping && r.ScheduledAt != nil {
			ts := r.ScheduledAt.Local().Format(timeLayout)
			e.ScheduledAt = &ts
		}
		doc.Programs = append(doc.Programs, e)
	}
	return yaml.Marshal(doc)
}

// Now exists so tests can format an expected timestamp the same way
// Snapshot does, without duplicating the layout constant.
func Now() string {
	return time.Now().Local().Format(timeLayout)
}
