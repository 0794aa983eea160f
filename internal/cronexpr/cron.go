// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package cronexpr implements the five-field cron spec described in §4.1:
// each field is stored as the concrete set of matching integers rather than
// as a symbolic "*"/range/step, which means day-of-month and day-of-week
// combine by intersection instead of cron(5)'s traditional union. That
// deviation is deliberate and documented in DESIGN.md.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"

	robfigcron "github.com/robfig/cron/v3"
)

// field bounds, in spec order: minute, hour, day-of-month, month, day-of-week.
var bounds = [5][2]int{
	{0, 59},
	{0, 23},
	{1, 31},
	{1, 12},
	{0, 6},
}

// InvalidCron is returned for any syntactic or out-of-range token.
type InvalidCron struct {
	Spec string
	Err  error
}

func (e *InvalidCron) Error() string {
	return fmt.Sprintf("invalid cron spec %q: %v", e.Spec, e.Err)
}

func (e *InvalidCron) Unwrap() error { return e.Err }

// robfigValidator only checks that the five fields are syntactically valid
// cron(5) tokens; we deliberately do not use robfig/cron/v3's own
// Schedule/Next() because its SpecSchedule combines day-of-month and
// day-of-week with the traditional "union when exactly one is a star" rule,
// which contradicts the set-intersection semantics §4.1 requires. Reusing
// its Parser still buys real syntax/range validation (steps, ranges, unions,
// out-of-range numbers) instead of hand-rolling that from scratch.
var robfigValidator = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
)

// Spec is a parsed five-field cron expression, each field reduced to the
// concrete set of integers it matches.
type Spec struct {
	raw     string
	minute  fieldSet
	hour    fieldSet
	dom     fieldSet
	month   fieldSet
	dow     fieldSet
}

type fieldSet map[int]struct{}

func (s fieldSet) has(v int) bool {
	_, ok := s[v]
	return ok
}

func (s fieldSet) sorted() []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Parse parses a five-field "minute hour dom month dow" cron spec.
func Parse(spec string) (*Spec, error) {
	trimmed := strings.TrimSpace(spec)
	fields := strings.Fields(trimmed)
	if len(fields) != 5 {
		return nil, &InvalidCron{Spec: spec, Err: fmt.Errorf("expected 5 fields, got %d", len(fields))}
	}

	// Syntax/range validation is delegated to robfig/cron's parser (see
	// robfigValidator doc comment); we still build our own sets below.
	if _, err := robfigValidator.Parse(trimmed); err != nil {
		return nil, &InvalidCron{Spec: spec, Err: err}
	}

	s := &Spec{raw: trimmed}
	sets := [5]*fieldSet{&s.minute, &s.hour, &s.dom, &s.month, &s.dow}
	for i, tok := range fields {
		set, err := parseField(tok, bounds[i][0], bounds[i][1])
		if err != nil {
			return nil, &InvalidCron{Spec: spec, Err: fmt.Errorf("field %d (%q): %w", i+1, tok, err)}
		}
		*sets[i] = set
	}
	return s, nil
}

func parseField(tok string, lo, hi int) (fieldSet, error) {
	out := fieldSet{}
	for _, part := range strings.Split(tok, ",") {
		if err := parseListItem(part, lo, hi, out); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty field")
	}
	return out, nil
}

func parseListItem(part string, lo, hi int, out fieldSet) error {
	rangePart := part
	step := 1
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		rangePart = part[:idx]
		n, err := strconv.Atoi(part[idx+1:])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step %q", part[idx+1:])
		}
		step = n
	}

	var start, end int
	switch {
	case rangePart == "*":
		start, end = lo, hi
	case strings.Contains(rangePart, "-"):
		bits := strings.SplitN(rangePart, "-", 2)
		a, err1 := strconv.Atoi(bits[0])
		b, err2 := strconv.Atoi(bits[1])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("invalid range %q", rangePart)
		}
		start, end = a, b
	default:
		v, err := strconv.Atoi(rangePart)
		if err != nil {
			return fmt.Errorf("invalid token %q", rangePart)
		}
		start, end = v, v
	}

	if start < lo || start > hi || end < lo || end > hi || start > end {
		return fmt.Errorf("value out of range [%d,%d]: %q", lo, hi, rangePart)
	}
	for v := start; v <= end; v += step {
		out[v] = struct{}{}
	}
	return nil
}

// String reconstructs a canonical (but not necessarily byte-identical)
// rendering of the spec from its sets, used for the round-trip property in
// §8 ("a round-trip from canonical spec → sets → spec is stable").
func (s *Spec) String() string {
	render := func(set fieldSet, lo, hi int) string {
		vals := set.sorted()
		if len(vals) == hi-lo+1 {
			return "*"
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, ",")
	}
	return strings.Join([]string{
		render(s.minute, bounds[0][0], bounds[0][1]),
		render(s.hour, bounds[1][0], bounds[1][1]),
		render(s.dom, bounds[2][0], bounds[2][1]),
		render(s.month, bounds[3][0], bounds[3][1]),
		render(s.dow, bounds[4][0], bounds[4][1]),
	}, " ")
}
