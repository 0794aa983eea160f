package program

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func rec(name string, kind Kind, before, after []string) *Record {
	r := newRecord(name)
	r.Path = "/bin/true"
	r.Kind = kind
	for _, b := range before {
		r.Before[b] = struct{}{}
	}
	for _, a := range after {
		r.After[a] = struct{}{}
	}
	return r
}

func TestBuild_SimpleChain(t *testing.T) {
	a := rec("a", Oneshot, nil, nil)
	b := rec("b", Oneshot, nil, []string{"a"})
	g, err := Build([]*Record{a, b})
	require.NoError(t, err)
	preds := g.Predecessors(b)
	require.Len(t, preds, 1)
	require.Equal(t, "a", preds[0].Name)
}

func TestBuild_CycleRejected(t *testing.T) {
	a := rec("a", Oneshot, nil, []string{"b"})
	b := rec("b", Oneshot, nil, []string{"a"})
	_, err := Build([]*Record{a, b})
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestBuild_UnknownReference(t *testing.T) {
	a := rec("a", Oneshot, nil, []string{"ghost"})
	_, err := Build([]*Record{a})
	require.Error(t, err)
}

func TestBuild_OtherCannotDependOnCronjob(t *testing.T) {
	c := rec("c", Cronjob, nil, nil)
	a := rec("a", Oneshot, nil, []string{"c"})
	_, err := Build([]*Record{c, a})
	require.Error(t, err)
}

func TestBuild_CronjobCanDependOnOther(t *testing.T) {
	a := rec("a", Oneshot, nil, nil)
	c := rec("c", Cronjob, nil, []string{"a"})
	g, err := Build([]*Record{a, c})
	require.NoError(t, err)
	preds := g.Predecessors(c)
	require.Len(t, preds, 1)
	require.Equal(t, "a", preds[0].Name)
}

func TestBuild_DuplicateName(t *testing.T) {
	a1 := rec("a", Oneshot, nil, nil)
	a2 := rec("a", Oneshot, nil, nil)
	_, err := Build([]*Record{a1, a2})
	require.Error(t, err)
}
