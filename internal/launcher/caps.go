// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package launcher

import "fmt"

// capabilityBits maps capabilities(7) names to their numeric value. Only
// the commonly-needed subset is listed; ValidateCapabilities rejects
// anything else, and config.Load calls it for every program, so an unknown
// name fails configuration loading before any launch, per §3 invariant 6.
var capabilityBits = map[string]uint{
	"CAP_CHOWN":            0,
	"CAP_DAC_OVERRIDE":     1,
	"CAP_DAC_READ_SEARCH":  2,
	"CAP_FOWNER":           3,
	"CAP_FSETID":           4,
	"CAP_KILL":             5,
	"CAP_SETGID":           6,
	"CAP_SETUID":           7,
	"CAP_SETPCAP":          8,
	"CAP_NET_BIND_SERVICE": 10,
	"CAP_NET_RAW":          13,
	"CAP_SYS_CHROOT":       18,
	"CAP_SYS_PTRACE":       19,
	"CAP_SYS_ADMIN":        21,
	"CAP_SYS_RESOURCE":     24,
	"CAP_SYS_TIME":         25,
	"CAP_NET_ADMIN":        12,
	"CAP_AUDIT_WRITE":      29,
	"CAP_SETFCAP":          31,
}

// ValidateCapabilities rejects any capability name not in capabilityBits.
func ValidateCapabilities(names []string) error {
	for _, n := range names {
		if _, ok := capabilityBits[n]; !ok {
			return fmt.Errorf("unknown capability %q", n)
		}
	}
	return nil
}

// CapBitOf exposes the name-to-bit mapping to the "__childexec" helper in
// cmd/cinit, which needs it after the self-reexec in a different package.
func CapBitOf(name string) (uint, bool) {
	bit, ok := capabilityBits[name]
	return bit, ok
}
