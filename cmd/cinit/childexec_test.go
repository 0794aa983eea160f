package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cinit-dev/cinit/internal/launcher"
)

// recordingSyscalls swaps every privilege-dropping syscall indirection for a
// fake that appends a tag to order instead of touching real process
// credentials, so dropPrivileges's sequencing can be asserted without the
// test binary needing to run as root or actually losing its own privileges.
func recordingSyscalls(t *testing.T) *[]string {
	t.Helper()
	order := &[]string{}

	origPrctl, origSetgroups, origSetgid, origSetuid, origCapset :=
		prctlFn, setgroupsFn, setgidFn, setuidFn, capsetFn
	t.Cleanup(func() {
		prctlFn, setgroupsFn, setgidFn, setuidFn, capsetFn =
			origPrctl, origSetgroups, origSetgid, origSetuid, origCapset
	})

	prctlFn = func(option int, arg2, arg3, arg4, arg5 uintptr) error {
		switch option {
		case unix.PR_CAPBSET_DROP:
			*order = append(*order, "capbset_drop")
		case unix.PR_SET_KEEPCAPS:
			*order = append(*order, "keepcaps")
		case unix.PR_CAP_AMBIENT:
			if arg2 == unix.PR_CAP_AMBIENT_RAISE {
				*order = append(*order, "ambient_raise")
			}
		}
		return nil
	}
	setgroupsFn = func(gids []int) error {
		*order = append(*order, "setgroups")
		return nil
	}
	setgidFn = func(gid int) error {
		*order = append(*order, "setgid")
		return nil
	}
	setuidFn = func(uid int) error {
		*order = append(*order, "setuid")
		return nil
	}
	capsetFn = func(hdr *unix.CapUserHeader, data *unix.CapUserData) error {
		*order = append(*order, "capset")
		return nil
	}
	return order
}

// indexOf fails the test if tag never appears in order, same as require
// would, but returns a position usable for Less comparisons below.
func indexOf(t *testing.T, order []string, tag string) int {
	t.Helper()
	for i, v := range order {
		if v == tag {
			return i
		}
	}
	t.Fatalf("expected %q in call order %v", tag, order)
	return -1
}

// This is the exact bug the capabilities(7) ordering requires: CAP_SETPCAP
// (needed by PR_CAPBSET_DROP) and the permitted set PR_SET_KEEPCAPS
// preserves both only exist while still root, so both must run before
// setuid away from 0 -- and since the UID change unconditionally clears the
// effective set regardless of KEEP_CAPS, the capset/ambient-raise that puts
// capabilities back can only work if it runs after setuid, not before.
func TestDropPrivileges_NonRootUIDWithCapabilities(t *testing.T) {
	order := recordingSyscalls(t)

	spec := &launcher.ChildSpec{
		UID:          1000,
		GID:          1000,
		Capabilities: []string{"CAP_NET_BIND_SERVICE"},
	}
	require.NoError(t, dropPrivileges(spec))

	capbsetDrop := indexOf(t, *order, "capbset_drop")
	keepcaps := indexOf(t, *order, "keepcaps")
	setuid := indexOf(t, *order, "setuid")
	capset := indexOf(t, *order, "capset")
	ambientRaise := indexOf(t, *order, "ambient_raise")

	require.Less(t, capbsetDrop, setuid, "bounding-set drop must happen while still root")
	require.Less(t, keepcaps, setuid, "PR_SET_KEEPCAPS must be set before the uid switch or permitted is lost")
	require.Greater(t, capset, setuid, "effective capabilities must be re-raised after setuid, not before")
	require.Greater(t, ambientRaise, setuid, "ambient capabilities must be re-raised after setuid, not before")
	require.Less(t, capset, ambientRaise, "capset must land permitted/effective before the ambient raise needs them")
}

// A non-root uid with an empty capability list must still go through the
// same ordering -- dropPrivileges should not skip the bounding-set drop or
// the keepcaps/raise pair just because keep is empty, since the bounding
// set still needs dropping down to nothing.
func TestDropPrivileges_NonRootUIDNoCapabilities(t *testing.T) {
	order := recordingSyscalls(t)

	spec := &launcher.ChildSpec{UID: 1000, GID: 1000}
	require.NoError(t, dropPrivileges(spec))

	capbsetDrop := indexOf(t, *order, "capbset_drop")
	setuid := indexOf(t, *order, "setuid")
	require.Less(t, capbsetDrop, setuid)

	for _, tag := range *order {
		require.NotEqual(t, "ambient_raise", tag, "no capability bit to raise into ambient when none are configured")
	}
}

func TestDropPrivileges_UnknownCapabilityRejected(t *testing.T) {
	recordingSyscalls(t)

	spec := &launcher.ChildSpec{UID: 1000, GID: 1000, Capabilities: []string{"CAP_NOT_REAL"}}
	err := dropPrivileges(spec)
	require.Error(t, err)
}
