package analytics

import (
	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
)

// MaxCalendarDays bounds the range of one calendar request.
const MaxCalendarDays = 62

// UnassignedBucket groups focus time not linked to any node.
const UnassignedBucket = "unassigned"

type DayPoint struct {
	Day            core.Date `json:"day"`
	FocusSeconds   int       `json:"focus_seconds"`
	Sessions       int       `json:"sessions"`
	TasksCompleted int       `json:"tasks_completed"`
}

type NodeShare struct {
	NodeID       string    `json:"node_id"`
	Title        string    `json:"title"`
	Kind         plan.Kind `json:"kind,omitempty"`
	Color        string    `json:"color,omitempty"`
	FocusSeconds int       `json:"focus_seconds"`
	Percent      float64   `json:"percent"`
}

type Dashboard struct {
	From                  core.Date   `json:"from"`
	To                    core.Date   `json:"to"`
	GroupBy               plan.Kind   `json:"group_by"`
	TotalFocusSeconds     int         `json:"total_focus_seconds"`
	TotalFocus            string      `json:"total_focus"`
	Sessions              int         `json:"sessions"`
	AverageSessionSeconds int         `json:"average_session_seconds"`
	TasksCompleted        int         `json:"tasks_completed"`
	TasksDue              int         `json:"tasks_due"`
	CompletionRate        float64     `json:"completion_rate"`
	Daily                 []DayPoint  `json:"daily"`
	HourlyFocusSeconds    [24]int     `json:"hourly_focus_seconds"`
	ByNode                []NodeShare `json:"by_node"`
	BestDay               *DayPoint   `json:"best_day"`
	CurrentStreak         int         `json:"current_streak"`
	LongestStreak         int         `json:"longest_streak"`
	Consistency           float64     `json:"consistency"`
}

type Weekly struct {
	WeekStart              core.Date `json:"week_start"`
	WeekEnd                core.Date `json:"week_end"`
	FocusMinutes           int       `json:"focus_minutes"`
	PreviousFocusMinutes   int       `json:"previous_focus_minutes"`
	FocusDeltaPercent      float64   `json:"focus_delta_percent"`
	TasksCompleted         int       `json:"tasks_completed"`
	PreviousTasksCompleted int       `json:"previous_tasks_completed"`
	TasksDeltaPercent      float64   `json:"tasks_delta_percent"`
}

type TaskRef struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Status   plan.Status   `json:"status"`
	Priority plan.Priority `json:"priority"`
}

type CalendarDay struct {
	Day            core.Date `json:"day"`
	FocusSeconds   int       `json:"focus_seconds"`
	Sessions       int       `json:"sessions"`
	TasksDue       []TaskRef `json:"tasks_due"`
	TasksCompleted []TaskRef `json:"tasks_completed"`
}

// DeltaPercent is the change from prev to curr in percent, rounded to one decimal.
// Growing from nothing counts as +100%.
func DeltaPercent(prev, curr int) float64 {
	switch {
	case prev == 0 && curr == 0:
		return 0
	case prev == 0:
		return 100
	}
	return core.Round(float64(curr-prev)/float64(prev)*100, 1)
}
