package launcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinit-dev/cinit/internal/program"
)

func strp(s string) *string { return &s }

func TestBuildEnv_InheritsFixedSet(t *testing.T) {
	rec := &program.Record{Name: "p"}
	supervisor := []string{"PATH=/usr/bin", "HOME=/root", "SECRET=do-not-copy"}

	env, warnings, err := BuildEnv(rec, supervisor)
	require.NoError(t, err)
	require.Empty(t, warnings)

	m := toMap(env)
	require.Equal(t, "/usr/bin", m["PATH"])
	_, hasSecret := m["SECRET"]
	require.False(t, hasSecret)
}

func TestBuildEnv_ScrubsRootPathsForNonRootUID(t *testing.T) {
	rec := &program.Record{Name: "p", UID: 1000}
	supervisor := []string{"HOME=/root"}

	env, _, err := BuildEnv(rec, supervisor)
	require.NoError(t, err)
	m := toMap(env)
	_, ok := m["HOME"]
	require.False(t, ok, "a root-rooted inherited value must be scrubbed for a non-root uid")
}

func TestBuildEnv_LeftToRightTemplateExpansion(t *testing.T) {
	rec := &program.Record{
		Name: "p",
		Env: []program.EnvPair{
			{Key: "BASE", Value: strp("hello")},
			{Key: "GREETING", Value: strp("{{ BASE }} world")},
		},
	}

	env, warnings, err := BuildEnv(rec, nil)
	require.NoError(t, err)
	require.Empty(t, warnings)
	m := toMap(env)
	require.Equal(t, "hello world", m["GREETING"])
}

func TestBuildEnv_AbsentValueInheritsOrDrops(t *testing.T) {
	rec := &program.Record{
		Name: "p",
		Env: []program.EnvPair{
			{Key: "PRESENT_IN_SUPERVISOR", Value: nil},
			{Key: "ABSENT_EVERYWHERE", Value: nil},
		},
	}
	supervisor := []string{"PRESENT_IN_SUPERVISOR=yes"}

	env, _, err := BuildEnv(rec, supervisor)
	require.NoError(t, err)
	m := toMap(env)
	require.Equal(t, "yes", m["PRESENT_IN_SUPERVISOR"])
	_, ok := m["ABSENT_EVERYWHERE"]
	require.False(t, ok)
}
