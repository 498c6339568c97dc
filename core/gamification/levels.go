package gamification

import (
	"math"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
)

// XP rewards
const (
	XPPerFocusMinute = 1
	XPPerPomodoro    = 5
	XPOnTimeBonus    = 5
	XPDailyGoal      = 25
)

var TaskXP = map[plan.Priority]int{
	plan.PriorityLow:    5,
	plan.PriorityMedium: 10,
	plan.PriorityHigh:   20,
	plan.PriorityUrgent: 30,
}

// XPForLevel is the cumulative XP needed to reach `level`: 50·L·(L−1).
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return 50 * level * (level - 1)
}

// LevelForXP is the highest level whose threshold xp reaches.
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	// solve 50·L·(L−1) = xp
	level := int((1 + math.Sqrt(1+float64(xp)/12.5)) / 2)
	if level < 1 {
		level = 1
	}
	for XPForLevel(level+1) <= xp {
		level++
	}
	for level > 1 && XPForLevel(level) > xp {
		level--
	}
	return level
}

var levelTitles = []struct {
	minLevel int
	title    string
}{
	{35, "Master"},
	{20, "Expert"},
	{10, "Scholar"},
	{5, "Apprentice"},
	{1, "Novice"},
}

func LevelTitle(level int) string {
	for _, lt := range levelTitles {
		if level >= lt.minLevel {
			return lt.title
		}
	}
	return levelTitles[len(levelTitles)-1].title
}

type LevelInfo struct {
	Level           int     `json:"level"`
	Title           string  `json:"title"`
	XP              int     `json:"xp"`
	LevelXP         int     `json:"level_xp"`
	NextLevelXP     int     `json:"next_level_xp"`
	XPIntoLevel     int     `json:"xp_into_level"`
	XPToNextLevel   int     `json:"xp_to_next_level"`
	ProgressPercent float64 `json:"progress_percent"`
}

func LevelInfoFor(xp int) LevelInfo {
	if xp < 0 {
		xp = 0
	}
	level := LevelForXP(xp)
	start, next := XPForLevel(level), XPForLevel(level+1)
	return LevelInfo{
		Level:           level,
		Title:           LevelTitle(level),
		XP:              xp,
		LevelXP:         start,
		NextLevelXP:     next,
		XPIntoLevel:     xp - start,
		XPToNextLevel:   next - xp,
		ProgressPercent: core.Round(float64(xp-start)/float64(next-start)*100, 1),
	}
}
