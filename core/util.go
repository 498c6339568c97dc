package core

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // zoneinfo for user timezones
)

// NowFunc is mockable.
var NowFunc = time.Now

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the package being tested, so we walk up from there.
// Falls back to the current working directory, e.g. when running a deployed binary.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

// FormatDuration renders d for humans: "2h 05m", "12m 30s", "45s", "0s".
// Durations of an hour or more drop the seconds.
func FormatDuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	secs := int64(d / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60

	var out string
	switch {
	case h > 0:
		out = fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		if s == 0 {
			out = fmt.Sprintf("%dm", m)
		} else {
			out = fmt.Sprintf("%dm %02ds", m, s)
		}
	default:
		out = fmt.Sprintf("%ds", s)
	}
	if neg {
		return "-" + out
	}
	return out
}

// FormatClock renders seconds as a timer face: "1:02:03" or "25:00".
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// DateLayout is the wire format of calendar days.
const DateLayout = "2006-01-02"

// StartOfDay returns local midnight of the day t falls in.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayKey returns the calendar day of t in loc, formatted with DateLayout.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// StartOfWeek returns local midnight of the Monday starting the week t falls in.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7 // monday: 0
	return day.AddDate(0, 0, -offset)
}

// LoadLocation is time.LoadLocation falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StrPtr returns nil for empty strings.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrVal dereferences s, "" when nil.
func StrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Round rounds x half away from zero to `places` decimals.
func Round(x float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(x*pow) / pow
}
