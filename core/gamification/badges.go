package gamification

import "time"

// Snapshot holds the lifetime figures badges are earned on.
type Snapshot struct {
	Sessions       int
	TotalFocus     time.Duration
	LongestSession time.Duration
	Pomodoros      int
	TasksDone      int
	LongestStreak  int
	EarlyBird      bool
	NightOwl       bool
}

type Badge struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	XP          int    `json:"xp"`

	earned func(Snapshot) bool
}

// Early bird and night owl hours (local time).
const (
	earlyBirdFrom = 4
	earlyBirdTo   = 7
	nightOwlFrom  = 23
	nightOwlTo    = 4
	marathonFocus = 3 * time.Hour
)

// Badges is the fixed catalog, in display order.
var Badges = []Badge{
	{
		Key: "first_focus", Name: "First Focus", Description: "Record your first focus session", XP: 10,
		earned: func(s Snapshot) bool { return s.Sessions > 0 },
	},
	{
		Key: "focus_10h", Name: "Deep Diver", Description: "Focus for 10 hours in total", XP: 50,
		earned: func(s Snapshot) bool { return s.TotalFocus >= 10*time.Hour },
	},
	{
		Key: "focus_100h", Name: "Centurion", Description: "Focus for 100 hours in total", XP: 250,
		earned: func(s Snapshot) bool { return s.TotalFocus >= 100*time.Hour },
	},
	{
		Key: "streak_7", Name: "Week Warrior", Description: "Keep a 7 day streak", XP: 50,
		earned: func(s Snapshot) bool { return s.LongestStreak >= 7 },
	},
	{
		Key: "streak_30", Name: "Monthly Master", Description: "Keep a 30 day streak", XP: 150,
		earned: func(s Snapshot) bool { return s.LongestStreak >= 30 },
	},
	{
		Key: "streak_100", Name: "Unstoppable", Description: "Keep a 100 day streak", XP: 500,
		earned: func(s Snapshot) bool { return s.LongestStreak >= 100 },
	},
	{
		Key: "tasks_10", Name: "Getting Things Done", Description: "Complete 10 tasks", XP: 25,
		earned: func(s Snapshot) bool { return s.TasksDone >= 10 },
	},
	{
		Key: "tasks_100", Name: "Task Crusher", Description: "Complete 100 tasks", XP: 200,
		earned: func(s Snapshot) bool { return s.TasksDone >= 100 },
	},
	{
		Key: "early_bird", Name: "Early Bird", Description: "Start a focus session between 4 and 7 am", XP: 25,
		earned: func(s Snapshot) bool { return s.EarlyBird },
	},
	{
		Key: "night_owl", Name: "Night Owl", Description: "Focus between 11 pm and 4 am", XP: 25,
		earned: func(s Snapshot) bool { return s.NightOwl },
	},
	{
		Key: "marathon", Name: "Marathon", Description: "Focus for 3 hours in a single session", XP: 75,
		earned: func(s Snapshot) bool { return s.LongestSession >= marathonFocus },
	},
	{
		Key: "pomodoro_master", Name: "Pomodoro Master", Description: "Complete 100 pomodoros", XP: 150,
		earned: func(s Snapshot) bool { return s.Pomodoros >= 100 },
	},
}

func BadgeByKey(key string) (Badge, bool) {
	for _, b := range Badges {
		if b.Key == key {
			return b, true
		}
	}
	return Badge{}, false
}

type UnlockedBadge struct {
	UserID     string    `json:"-"`
	Badge      string    `json:"badge"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// BadgeStatus is a catalog badge along with the user's unlock.
type BadgeStatus struct {
	Badge
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at"`
}

func isEarlyBird(t time.Time) bool {
	return t.Hour() >= earlyBirdFrom && t.Hour() < earlyBirdTo
}

func isNightOwl(t time.Time) bool {
	return t.Hour() >= nightOwlFrom || t.Hour() < nightOwlTo
}
