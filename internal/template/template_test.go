package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpand_Basic(t *testing.T) {
	out, err := Expand("hi_{{ NAME }}", map[string]string{"NAME": "foo"}, nil)
	require.NoError(t, err)
	require.Equal(t, "hi_foo", out)
}

func TestExpand_WhitespaceTolerant(t *testing.T) {
	out, err := Expand("{{NAME}}-{{ NAME }}-{{  NAME  }}", map[string]string{"NAME": "x"}, nil)
	require.NoError(t, err)
	require.Equal(t, "x-x-x", out)
}

func TestExpand_ForwardReferenceLeavesLiteralOrWarns(t *testing.T) {
	var warned string
	out, err := Expand("hi_{{ NAME }}", map[string]string{}, func(name string) { warned = name })
	require.NoError(t, err)
	require.Equal(t, "NAME", warned)
	// Either the literal template or a substituted value is permitted; since
	// NAME was never bound here, we must at least not crash and must leave
	// something deterministic: the literal placeholder.
	require.Equal(t, "hi_{{ NAME }}", out)
}

func TestExpand_BuiltSoFarOrder(t *testing.T) {
	// Scenario 6 from §8: env [NAME: foo, GREET: "hi_{{ NAME }}"] -> GREET=hi_foo.
	bindings := map[string]string{}
	bindings["NAME"] = "foo"
	greet, err := Expand("hi_{{ NAME }}", bindings, nil)
	require.NoError(t, err)
	require.Equal(t, "hi_foo", greet)

	// Reversed order: GREET resolved before NAME is bound.
	reversed := map[string]string{}
	out, err := Expand("hi_{{ NAME }}", reversed, nil)
	require.NoError(t, err)
	require.Contains(t, []string{"hi_{{ NAME }}", "hi_"}, out)
}

func TestExpand_PassesThroughOtherConstructs(t *testing.T) {
	out, err := Expand("{{ .Foo | upper }}", map[string]string{}, nil)
	require.NoError(t, err)
	require.Equal(t, "{{ .Foo | upper }}", out)
}

func TestExpand_UnterminatedIsError(t *testing.T) {
	_, err := Expand("hi_{{ NAME", map[string]string{"NAME": "x"}, nil)
	require.Error(t, err)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
}

func TestExpand_EmptyPlaceholderIsError(t *testing.T) {
	_, err := Expand("{{ }}", nil, nil)
	require.Error(t, err)
}

func TestExpandAll(t *testing.T) {
	out, err := ExpandAll([]string{"{{ A }}", "literal", "{{ B }}"}, map[string]string{"A": "1", "B": "2"}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "literal", "2"}, out)
}
