package session

import (
	"time"

	"github.com/trezcool/soma/core"
)

// DayPart is the share of a focus period falling on one local calendar day.
type DayPart struct {
	Day      core.Date
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// SplitByDay cuts segments on local midnights (in loc) and groups the pieces per day, in chronological order.
func SplitByDay(segments []Segment, loc *time.Location) []DayPart {
	var parts []DayPart
	add := func(start, end time.Time) {
		if !end.After(start) {
			return
		}
		day := core.DateOf(start.In(loc))
		if n := len(parts); n > 0 && parts[n-1].Day.Equal(day.Time) {
			parts[n-1].End = end
			parts[n-1].Duration += end.Sub(start)
			return
		}
		parts = append(parts, DayPart{Day: day, Start: start, End: end, Duration: end.Sub(start)})
	}

	for _, seg := range segments {
		start := seg.Start
		for start.Before(seg.End) {
			midnight := core.StartOfDay(start, loc).AddDate(0, 0, 1)
			end := seg.End
			if midnight.Before(end) {
				end = midnight
			}
			add(start, end)
			start = end
		}
	}
	return parts
}
