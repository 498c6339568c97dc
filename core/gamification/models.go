package gamification

import "time"

// XP event reasons
const (
	ReasonFocus         = "focus"
	ReasonFocusReversal = "focus_reversal"
	ReasonTask          = "task"
	ReasonDailyGoal     = "daily_goal"
	ReasonBadge         = "badge"
	ReasonStreak        = "streak"
)

// Stats is the running XP total of a user.
type Stats struct {
	UserID    string    `json:"-"`
	XP        int       `json:"xp"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// XPEvent is one line of the XP ledger. Daily goal, badge and streak events are unique per (user, reason, ref).
type XPEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	RefID     string    `json:"ref_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IsUnique reports whether at most one event may exist per (user, reason, ref).
func (ev XPEvent) IsUnique() bool {
	switch ev.Reason {
	case ReasonDailyGoal, ReasonBadge, ReasonStreak:
		return true
	}
	return false
}

type CelebrationKind string

const (
	CelebrationLevelUp   CelebrationKind = "level_up"
	CelebrationBadge     CelebrationKind = "badge"
	CelebrationStreak    CelebrationKind = "streak"
	CelebrationDailyGoal CelebrationKind = "daily_goal"
)

// MaxCelebrations caps the pending celebrations kept per user; the oldest are dropped first.
const MaxCelebrations = 50

type Celebration struct {
	ID        string                 `json:"id"`
	Kind      CelebrationKind        `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Progress is the gamification summary of a user.
type Progress struct {
	LevelInfo
	Streak           Streak  `json:"streak"`
	TodayFocusSecs   int     `json:"today_focus_seconds"`
	DailyGoalSecs    int     `json:"daily_goal_seconds"`
	DailyGoalPercent float64 `json:"daily_goal_percent"`
	DailyGoalMet     bool    `json:"daily_goal_met"`
	BadgesUnlocked   int     `json:"badges_unlocked"`
	BadgesTotal      int     `json:"badges_total"`
	PendingCelebs    int     `json:"pending_celebrations"`
}
