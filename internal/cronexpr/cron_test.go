package cronexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, spec string) *Spec {
	t.Helper()
	s, err := Parse(spec)
	require.NoError(t, err)
	return s
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		"* * * *",          // too few fields
		"60 * * * *",       // minute out of range
		"* 24 * * *",       // hour out of range
		"* * 0 * *",        // dom out of range (min is 1)
		"* * * 13 *",       // month out of range
		"* * * * 7",        // dow out of range
		"@monthly",         // named shortcuts not accepted
		"a * * * *",        // garbage token
	}
	for _, c := range cases {
		_, err := Parse(c)
		require.Error(t, err, "expected error for %q", c)
		var ic *InvalidCron
		require.ErrorAs(t, err, &ic)
	}
}

func TestEveryFifteenMinutes(t *testing.T) {
	s := mustParse(t, "*/15 * * * *")
	base := time.Date(2026, 7, 30, 10, 3, 0, 0, time.UTC)
	next := s.NextFire(base)
	require.Equal(t, time.Date(2026, 7, 30, 10, 15, 0, 0, time.UTC), next)

	for _, start := range []int{0, 15, 30, 45} {
		from := time.Date(2026, 7, 30, 10, start, 0, 0, time.UTC)
		got := s.NextFire(from)
		require.Equal(t, (start+15)%60, got.Minute())
	}
}

func TestNextFireIdempotentOnNonMatching(t *testing.T) {
	s := mustParse(t, "0 0 1 1 *")
	t0 := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	n1 := s.NextFire(t0)
	n2 := s.NextFire(n1)
	require.True(t, n2.After(n1), "next_fire(next_fire(t)) must be > next_fire(t)")
}

func TestDomDowIntersection(t *testing.T) {
	// The 1st of the month AND a Monday: in July 2026 the 1st is a
	// Wednesday, so the only eligible day via intersection is whichever
	// Monday also happens to be the 1st -- here, none in July, so the
	// next fire should skip into a month where day 1 is a Monday.
	s := mustParse(t, "0 0 1 * 1")
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	next := s.NextFire(from)
	require.Equal(t, 1, next.Day())
	require.Equal(t, time.Monday, next.Weekday())
}

func TestDSTSpringForward(t *testing.T) {
	// America/New_York: on 2026-03-08 clocks jump from 02:00 to 03:00.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := mustParse(t, "30 2 * * *")
	from := time.Date(2026, 3, 7, 12, 0, 0, 0, loc)
	next := s.NextFire(from)
	require.Equal(t, 2026, next.Year())
	require.Equal(t, time.March, next.Month())
	require.Equal(t, 8, next.Day())
	require.GreaterOrEqual(t, next.Hour(), 3, "02:30 does not exist on the spring-forward day")
}

func TestRoundTripStable(t *testing.T) {
	s := mustParse(t, "*/15 * * * *")
	again, err := Parse(s.String())
	require.NoError(t, err)
	require.Equal(t, s.String(), again.String())
}

func TestNeverFiresReturnsZero(t *testing.T) {
	s := mustParse(t, "0 0 31 2 *") // Feb 31st never exists
	got := s.NextFire(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, got.IsZero())
}
