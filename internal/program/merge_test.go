package program

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestMerge_PathArgsOrder(t *testing.T) {
	rec, err := Merge([]RawProgram{
		{Name: "a", Args: []string{"--extra"}},
		{Name: "a", Path: strp("/bin/true"), Args: []string{"--first"}},
	})
	require.NoError(t, err)
	require.Equal(t, "/bin/true", rec.Path)
	require.Equal(t, []string{"--first", "--extra"}, rec.Args)
}

func TestMerge_DuplicatePath(t *testing.T) {
	_, err := Merge([]RawProgram{
		{Name: "a", Path: strp("/bin/true")},
		{Name: "a", Path: strp("/bin/false")},
	})
	require.Error(t, err)
	var dup *DuplicateField
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "path", dup.Field)
}

func TestMerge_SetUnionAndPtyOr(t *testing.T) {
	rec, err := Merge([]RawProgram{
		{Name: "a", Path: strp("/bin/true"), Before: []string{"b"}, Capabilities: []string{"CAP_NET_BIND_SERVICE"}},
		{Name: "a", Before: []string{"c"}, Capabilities: []string{"CAP_NET_BIND_SERVICE", "CAP_CHOWN"}, Pty: boolp(true)},
	})
	require.NoError(t, err)
	require.True(t, rec.Pty)
	_, hasB := rec.Before["b"]
	_, hasC := rec.Before["c"]
	require.True(t, hasB)
	require.True(t, hasC)
	require.ElementsMatch(t, []string{"CAP_CHOWN", "CAP_NET_BIND_SERVICE"}, rec.Capabilities)
}

func TestMerge_NoPathFragmentErrors(t *testing.T) {
	_, err := Merge([]RawProgram{{Name: "a", Args: []string{"x"}}})
	require.Error(t, err)
}

func TestMerge_CronjobRequiresSpec(t *testing.T) {
	_, err := Merge([]RawProgram{
		{Name: "a", Path: strp("/bin/true"), Kind: strp("cronjob")},
	})
	require.Error(t, err)
}

func TestMerge_CronjobWithSpec(t *testing.T) {
	rec, err := Merge([]RawProgram{
		{Name: "a", Path: strp("/bin/true"), Kind: strp("cronjob"), CronSpec: strp("*/15 * * * *")},
	})
	require.NoError(t, err)
	require.Equal(t, Cronjob, rec.Kind)
	require.NotNil(t, rec.CronSpec)
}
