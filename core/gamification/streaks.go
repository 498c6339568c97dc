package gamification

import (
	"sort"

	"github.com/trezcool/soma/core"
)

// StreakMinSeconds is the focus time making a day active on its own.
const StreakMinSeconds = 60

// ConsistencyWindow is the default number of days consistency looks back on.
const ConsistencyWindow = 30

type Streak struct {
	Current     int     `json:"current"`
	Longest     int     `json:"longest"`
	Consistency float64 `json:"consistency"` // percent of active days over the window
	ActiveToday bool    `json:"active_today"`
	StartedOn   string  `json:"started_on,omitempty"`
}

// ActiveDays is a set of active calendar days.
type ActiveDays map[core.Date]bool

func (ad ActiveDays) sorted() []core.Date {
	days := make([]core.Date, 0, len(ad))
	for d, ok := range ad {
		if ok {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// Streaks counts consecutive active days. The current streak ends today, or yesterday
// when today is not active yet.
func (ad ActiveDays) Streaks(today core.Date) (current, longest int, startedOn core.Date) {
	days := ad.sorted()
	run := 0
	for i, d := range days {
		if i > 0 && days[i-1].AddDays(1).Equal(d.Time) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	end := today
	if !ad[today] {
		end = today.AddDays(-1)
	}
	for d := end; ad[d]; d = d.AddDays(-1) {
		current++
		startedOn = d
	}
	return current, longest, startedOn
}

// Consistency is the percent of active days over the last `window` days ending today,
// rounded to one decimal. The window never reaches back before the account was created.
func (ad ActiveDays) Consistency(today, since core.Date, window int) float64 {
	if window <= 0 {
		window = ConsistencyWindow
	}
	if age := since.DaysUntil(today) + 1; age < window {
		window = age
	}
	if window <= 0 {
		return 0
	}
	var active int
	for d, i := today, 0; i < window; d, i = d.AddDays(-1), i+1 {
		if ad[d] {
			active++
		}
	}
	return core.Round(float64(active)/float64(window)*100, 1)
}

// StreakMilestones are the current streak lengths worth celebrating.
var StreakMilestones = []int{3, 7, 14, 30, 50, 100, 200, 365}

func isStreakMilestone(n int) bool {
	for _, m := range StreakMilestones {
		if m == n {
			return true
		}
	}
	return false
}
