// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"fmt"
	"os/user"
	"strconv"
)

// HostResolver looks up uid/gid by name against the running container's
// own /etc/passwd and /etc/group (§3 invariant 6). This is the one place
// in the codebase that talks to the host identity database directly; no
// library in the dependency set wraps getpwnam(3)/getgrnam(3), and os/user
// is the correct, minimal tool for it, so it is used unwrapped here rather
// than reached for a third-party alternative that doesn't exist in this
// ecosystem for a concern this narrow.
type HostResolver struct{}

func (HostResolver) LookupUID(name string) (uint32, error) {
	if n, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(n), nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, fmt.Errorf("unknown user %q: %w", name, err)
	}
	n, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("user %q has non-numeric uid %q", name, u.Uid)
	}
	return uint32(n), nil
}

func (HostResolver) LookupGID(name string) (uint32, error) {
	if n, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(n), nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("unknown group %q: %w", name, err)
	}
	n, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("group %q has non-numeric gid %q", name, g.Gid)
	}
	return uint32(n), nil
}

// SupplementaryGroups returns every group uid's account belongs to,
// populating program.Record.SupplementaryGroups per §3.
func (HostResolver) SupplementaryGroups(uid uint32) ([]uint32, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, fmt.Errorf("uid %d: %w", uid, err)
	}
	gids, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(gids))
	for _, g := range gids {
		n, err := strconv.ParseUint(g, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(n))
	}
	return out, nil
}
