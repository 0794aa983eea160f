// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package scheduler implements §4.3: the per-program state machine, the
// dependency-respecting ready-set computation, and cronjob re-entrancy.
// It owns no goroutines of its own -- the event loop (internal/eventloop)
// drives it, calling these methods once per iteration, which is what makes
// the "no locking" claim in §5 true: every mutation and read happens on the
// same goroutine.
package scheduler

import (
	"time"

	"github.com/cinit-dev/cinit/internal/program"
)

// Scheduler holds no mutable state of its own; it computes transitions over
// a *program.Graph whose Records carry the actual state (§3: "Ownership is
// exclusive to the engine").
type Scheduler struct {
	graph *program.Graph
}

func New(g *program.Graph) *Scheduler {
	return &Scheduler{graph: g}
}

func (s *Scheduler) Graph() *program.Graph { return s.graph }

// predecessorSatisfied implements open question #3 (SPEC_FULL.md): a Notify
// predecessor satisfies its dependents as soon as it is Running, not only
// once it reaches Done; every other kind requires Done.
func predecessorSatisfied(pred *program.Record) bool {
	if pred.Kind == program.Notify {
		return pred.State == program.Running || pred.State == program.Done
	}
	return pred.State == program.Done
}

func (s *Scheduler) allPredecessorsSatisfied(r *program.Record) bool {
	for _, p := range s.graph.Predecessors(r) {
		if !predecessorSatisfied(p) {
			return false
		}
	}
	return true
}

// Seed performs §4.8 step 4: cronjobs with no unmet deps go straight to
// Sleeping; other programs with no unmet deps become launch candidates.
// Everything else starts (and, per open question #1, may stay forever)
// Blocked.
func (s *Scheduler) Seed(now time.Time) (toLaunch []*program.Record, toSleep []*program.Record) {
	return s.ReadySet(now)
}

// ReadySet returns every Blocked program whose predecessors are all
// satisfied, split into those that should launch immediately
// (Oneshot/Notify) and those that should move to Sleeping awaiting their
// first cron fire. Calling this does not mutate state; callers apply the
// transition via MarkRunning/MarkSleeping once the launch actually
// succeeds (a cronjob's "launch" here just means arming its timer).
func (s *Scheduler) ReadySet(now time.Time) (toLaunch []*program.Record, toSleep []*program.Record) {
	for _, r := range s.graph.Records {
		if r.State != program.Blocked {
			continue
		}
		if !s.allPredecessorsSatisfied(r) {
			continue
		}
		if r.Kind == program.Cronjob {
			toSleep = append(toSleep, r)
		} else {
			toLaunch = append(toLaunch, r)
		}
	}
	return toLaunch, toSleep
}

// MarkSleeping transitions a Blocked or just-completed Cronjob into
// Sleeping, computing scheduled_at (§4.3: "Blocked -> Sleeping (cronjob):
// ... compute scheduled_at = next_fire(now)").
func (s *Scheduler) MarkSleeping(r *program.Record, now time.Time) {
	fire := r.CronSpec.NextFire(now)
	r.State = program.Sleeping
	r.ScheduledAt = &fire
	r.PID = 0
	r.ExitCode = nil
}

// WakeCandidates returns every Sleeping cronjob whose scheduled_at has
// arrived. A cronjob that is already Running (re-entrancy) is not
// returned; its wakeup is rescheduled to the next fire instant instead
// (§4.3: "If it is still Running, the wakeup is rescheduled to the
// subsequent fire instant").
func (s *Scheduler) WakeCandidates(now time.Time) []*program.Record {
	var out []*program.Record
	for _, r := range s.graph.Records {
		if r.Kind != program.Cronjob || r.ScheduledAt == nil {
			continue
		}
		if r.State != program.Sleeping && r.State != program.Running {
			continue
		}
		if r.ScheduledAt.After(now) {
			continue
		}
		if s.isCronRunning(r) {
			fire := r.CronSpec.NextFire(now)
			r.ScheduledAt = &fire
			continue
		}
		out = append(out, r)
	}
	return out
}

// isCronRunning reports whether any program sharing r's identity is in the
// Running state. Since a cronjob only ever has one Record, this is simply
// r.State == Running, but kept as a named predicate for clarity at the
// call site above, where a due cronjob that is still Running has its
// wakeup moved forward instead of being returned.
func (s *Scheduler) isCronRunning(r *program.Record) bool {
	return r.State == program.Running
}

// MarkRunning transitions a program into Running once the launcher has
// actually forked it successfully.
func (s *Scheduler) MarkRunning(r *program.Record, pid int) {
	r.State = program.Running
	r.PID = pid
	r.ExitCode = nil
}

// MarkExited transitions Running -> Done (exitCode == 0) or Running ->
// Crashed (anything else), per §4.3. For a Cronjob, completion
// immediately recomputes scheduled_at and returns to Sleeping rather than
// resting in Done/Crashed.
func (s *Scheduler) MarkExited(r *program.Record, exitCode int, now time.Time) {
	code := exitCode
	r.ExitCode = &code
	if exitCode == 0 {
		r.State = program.Done
	} else {
		r.State = program.Crashed
	}
	r.PID = 0

	if r.Kind == program.Cronjob {
		s.MarkSleeping(r, now)
	}
}

// MarkLaunchFailed records a launch-side failure (§4.4's LaunchError) as a
// synthetic non-zero exit, per §7: "Per-child launch failures mark the
// program Crashed with a synthetic non-zero exit code and let the schedule
// continue."
func (s *Scheduler) MarkLaunchFailed(r *program.Record, now time.Time) {
	const syntheticExitCode = 127
	s.MarkExited(r, syntheticExitCode, now)
}

// EarliestScheduledAt returns the smallest scheduled_at across every
// Sleeping cronjob, for the event loop to arm its timer fd with (§4.5 step
// 8). The second return value is false if no cronjob is Sleeping, meaning
// the timer should stay disarmed.
func (s *Scheduler) EarliestScheduledAt() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, r := range s.graph.Records {
		if r.State != program.Sleeping || r.ScheduledAt == nil {
			continue
		}
		if !found || r.ScheduledAt.Before(earliest) {
			earliest = *r.ScheduledAt
			found = true
		}
	}
	return earliest, found
}

// isStuck reports whether a Blocked program can never become ready. Each
// direct predecessor must either have reached a terminal state (Done or
// Crashed) or itself be a Blocked program that is stuck for the same
// reason -- a stuck predecessor propagates up the chain just as much as a
// Crashed one does, since neither can ever satisfy a dependent. memo caches
// results for the lifetime of one Done() pass so a long chain is walked
// once, not once per descendant; it also doubles as cycle protection,
// though the graph is acyclic by construction (program.Build rejects
// cycles) so that case never triggers in practice.
// The program's own State stays Blocked forever regardless (§8 scenario 2:
// "B never transitions out of Blocked") -- this only decides whether the
// *driver* has run out of progress to make, not whether the program itself
// changes state.
func (s *Scheduler) isStuck(r *program.Record, memo map[int]bool) bool {
	if v, ok := memo[r.ID]; ok {
		return v
	}
	memo[r.ID] = false // provisional, overwritten below; guards against a cycle
	allBlocking := true
	for _, p := range s.graph.Predecessors(r) {
		if p.IsTerminal() {
			continue
		}
		if p.State == program.Blocked && s.isStuck(p, memo) {
			continue
		}
		allBlocking = false
		break
	}
	stuck := allBlocking && !s.allPredecessorsSatisfied(r)
	memo[r.ID] = stuck
	return stuck
}

// Done reports the termination condition of §4.8 step 6: the driver keeps
// running while any program is Sleeping or Running, or while some Blocked
// program might still become ready. Once nothing Running/Sleeping remains
// and every remaining Blocked program is permanently stuck -- directly or
// transitively -- behind a Crashed predecessor, no further event will ever
// change anything, so the driver is done (§8 scenario 2 terminates with
// exit code 6 despite B never leaving Blocked). A config with at least one
// cronjob never reaches this state absent a signal, since a cronjob always
// cycles back to Sleeping.
func (s *Scheduler) Done() bool {
	memo := map[int]bool{}
	for _, r := range s.graph.Records {
		switch r.State {
		case program.Sleeping, program.Running:
			return false
		case program.Blocked:
			if !s.isStuck(r, memo) {
				return false
			}
		}
	}
	return true
}

// ExitCode computes the §4.8 step 6 process exit code from final program
// states: 0 if every program is Done, 6 if at least one is Crashed.
// Exit codes 1-5 are computed earlier in the lifecycle and never reach
// this function.
func (s *Scheduler) ExitCode() int {
	crashed := false
	for _, r := range s.graph.Records {
		if r.State == program.Crashed {
			crashed = true
		}
	}
	if crashed {
		return 6
	}
	return 0
}
