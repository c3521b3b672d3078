package scheduler

import (
	"iter"
	"time"
)

// Daily publication slot grid. Candidates are tried in this order within a
// day; the content-plan display uses a finer half-hour grid, but scheduling
// only ever assigns from this coarse set.
var slotTimes = []struct {
	hour   int
	minute int
}{
	{9, 0},
	{13, 0},
	{15, 0},
	{17, 0},
}

// horizonDays bounds the slot search to 30 calendar days inclusive of the
// start day.
const horizonDays = 30

// candidateSlots returns a lazy sequence of candidate publication instants:
// day by day from the start of `from`'s calendar day, Saturdays and Sundays
// skipped, each business day contributing the slot grid in order. Instants
// are built in `from`'s location with zero seconds and nanoseconds so that
// occupancy probes match stored timestamps exactly.
func candidateSlots(from time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		year, month, day := from.Date()
		dayStart := time.Date(year, month, day, 0, 0, 0, 0, from.Location())

		for offset := 0; offset < horizonDays; offset++ {
			d := dayStart.AddDate(0, 0, offset)
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			for _, slot := range slotTimes {
				candidate := time.Date(d.Year(), d.Month(), d.Day(), slot.hour, slot.minute, 0, 0, d.Location())
				if !yield(candidate) {
					return
				}
			}
		}
	}
}
