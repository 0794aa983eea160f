package cronexpr

import "time"

// maxSearchDays bounds the next-fire search so a schedule that can never
// fire (e.g. day-of-month 31 intersected with a 30-day month list) returns
// a zero time instead of looping forever.
const maxSearchDays = 8 * 366

// NextFire returns the smallest instant strictly after t whose minute, hour,
// day, month and weekday all belong to the spec's respective sets (§4.1).
// Day-of-month and day-of-week are combined by intersection (see package
// doc). If a matching wall time falls inside a DST gap, the returned
// instant is the first one that actually exists after the gap.
// Returns the zero Time if no instant matches within an 8-year search
// horizon (a schedule that can structurally never fire, e.g. Feb 30).
func (s *Spec) NextFire(t time.Time) time.Time {
	loc := t.Location()
	start := t.Truncate(time.Minute).Add(time.Minute)

	hours := s.hour.sorted()
	minutes := s.minute.sorted()

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for i := 0; i < maxSearchDays; i++ {
		if s.dayMatches(day) {
			for _, h := range hours {
				for _, m := range minutes {
					cand := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
					if cand.Hour() != h || cand.Minute() != m {
						// h:m does not exist that day (DST gap); time.Date
						// normalised it, so move to the end of the gap.
						if _, gapEnd := cand.ZoneBounds(); !gapEnd.IsZero() {
							cand = gapEnd
						}
					}
					if cand.Before(start) {
						continue
					}
					return cand
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

func (s *Spec) dayMatches(day time.Time) bool {
	return s.month.has(int(day.Month())) &&
		s.dom.has(day.Day()) &&
		s.dow.has(int(day.Weekday()))
}
