// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package config implements §6's configuration loading: a single YAML file
// or a directory walked recursively for every regular file, decoded into
// program.RawProgram fragments, host-resolved, and folded through
// program.Merge into the final set of records and dependency graph.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/cinit-dev/cinit/internal/launcher"
	"github.com/cinit-dev/cinit/internal/program"
)

// ConfigError wraps any file I/O or YAML syntax failure (§7), mapped to
// exit code 1 by the lifecycle driver.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %v", e.Path, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// document is the top-level shape of one YAML configuration file.
type document struct {
	Defaults *rawYAML   `yaml:"defaults"`
	Programs []rawYAML  `yaml:"programs"`
}

// rawYAML mirrors program.RawProgram field-for-field but in the loosely
// typed shape YAML naturally decodes into (uid/gid may arrive as either a
// number or a user/group name string), so resolveID can do the
// normalization in one place (mapstructure.Decode for a number, a host
// lookup otherwise) instead of scattering type switches through the YAML
// tags themselves.
type rawYAML struct {
	Name string `yaml:"name"`

	Path    *string `yaml:"path"`
	Workdir *string `yaml:"workdir"`
	UID     any     `yaml:"uid"`
	GID     any     `yaml:"gid"`
	User    *string `yaml:"user"`
	Group   *string `yaml:"group"`

	Kind     *string `yaml:"kind"`
	CronSpec *string `yaml:"cron_spec"`

	Env     []envYAML `yaml:"env"`
	EnvFile *string   `yaml:"env_file"`
	Args    []string  `yaml:"args"`

	Before       []string `yaml:"before"`
	After        []string `yaml:"after"`
	Capabilities []string `yaml:"capabilities"`

	Pty *bool `yaml:"pty"`
}

type envYAML struct {
	Key   string  `yaml:"key"`
	Value *string `yaml:"value"`
}

// Load reads path, which may be a single file or a directory (walked
// recursively via doublestar for every regular file, concatenated in
// lexical order for determinism), decodes every "programs" fragment,
// resolves uid/gid/user/group against the host, and merges same-named
// fragments into the final program.Record set plus its dependency graph.
func Load(path string, hostUID HostResolver) ([]*program.Record, *program.Graph, error) {
	files, err := collectFiles(path)
	if err != nil {
		return nil, nil, &ConfigError{Path: path, Err: err}
	}

	fragmentsByName := map[string][]program.RawProgram{}
	var order []string

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, nil, &ConfigError{Path: f, Err: err}
		}
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, nil, &ConfigError{Path: f, Err: err}
		}

		var defaults *program.RawProgram
		if doc.Defaults != nil {
			d, err := decodeRaw(*doc.Defaults, hostUID)
			if err != nil {
				return nil, nil, &ConfigError{Path: f, Err: err}
			}
			defaults = &d
		}

		for _, ry := range doc.Programs {
			raw, err := decodeRaw(ry, hostUID)
			if err != nil {
				return nil, nil, &ConfigError{Path: f, Err: err}
			}
			if defaults != nil {
				merged, err := program.MergeDefaults(*defaults, raw)
				if err != nil {
					return nil, nil, &ConfigError{Path: f, Err: err}
				}
				raw = merged
			}
			if _, seen := fragmentsByName[raw.Name]; !seen {
				order = append(order, raw.Name)
			}
			fragmentsByName[raw.Name] = append(fragmentsByName[raw.Name], raw)
		}
	}

	records := make([]*program.Record, 0, len(order))
	for _, name := range order {
		rec, err := program.Merge(fragmentsByName[name])
		if err != nil {
			return nil, nil, err // already a program.DuplicateField or similar; exit code 2
		}
		if err := launcher.ValidateCapabilities(rec.Capabilities); err != nil {
			return nil, nil, fmt.Errorf("program %q: %w", name, err)
		}
		groups, err := hostUID.SupplementaryGroups(rec.UID)
		if err != nil {
			return nil, nil, fmt.Errorf("program %q: %w", name, err)
		}
		rec.SupplementaryGroups = groups
		records = append(records, rec)
	}

	graph, err := program.Build(records)
	if err != nil {
		return nil, nil, err
	}
	return records, graph, nil
}

func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = doublestar.GlobWalk(os.DirFS(path), "**/*", func(p string, d fs.DirEntry) error {
		if d.Type().IsRegular() {
			files = append(files, filepath.Join(path, p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// decodeRaw normalizes one YAML fragment into a program.RawProgram,
// resolving a "user"/"group" name (or a numeric/string uid/gid) against
// the host via hostUID.
func decodeRaw(ry rawYAML, host HostResolver) (program.RawProgram, error) {
	out := program.RawProgram{
		Name:         ry.Name,
		Path:         ry.Path,
		Workdir:      ry.Workdir,
		Kind:         ry.Kind,
		CronSpec:     ry.CronSpec,
		EnvFile:      ry.EnvFile,
		Args:         ry.Args,
		Before:       ry.Before,
		After:        ry.After,
		Capabilities: ry.Capabilities,
		Pty:          ry.Pty,
	}
	for _, e := range ry.Env {
		out.Env = append(out.Env, program.EnvPair{Key: e.Key, Value: e.Value})
	}

	uid, err := resolveID(ry.UID, ry.User, host.LookupUID)
	if err != nil {
		return program.RawProgram{}, fmt.Errorf("program %q: %w", ry.Name, err)
	}
	out.UID = uid

	gid, err := resolveID(ry.GID, ry.Group, host.LookupGID)
	if err != nil {
		return program.RawProgram{}, fmt.Errorf("program %q: %w", ry.Name, err)
	}
	out.GID = gid

	return out, nil
}

func resolveID(numericOrName any, name *string, lookup func(string) (uint32, error)) (*uint32, error) {
	if name != nil {
		v, err := lookup(*name)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
	if numericOrName == nil {
		return nil, nil
	}
	var v uint32
	if err := mapstructure.Decode(numericOrName, &v); err != nil {
		// Not a bare number: treat it as a name, matching the host-identity
		// "uid: www-data" shorthand some container images prefer.
		s := fmt.Sprintf("%v", numericOrName)
		resolved, lerr := lookup(s)
		if lerr != nil {
			return nil, fmt.Errorf("invalid uid/gid %v: %w", numericOrName, err)
		}
		return &resolved, nil
	}
	return &v, nil
}

// SummaryTable renders the loaded programs as a go-pretty table for
// startup diagnostics; lifecycle.Run logs it at TRACE level (-vv).
func SummaryTable(records []*program.Record) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"NAME", "KIND", "PATH", "UID", "GID", "PTY"})
	for _, r := range records {
		t.AppendRow(table.Row{r.Name, r.Kind.String(), r.Path, r.UID, r.GID, r.Pty})
	}
	return t.Render()
}
