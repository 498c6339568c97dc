package session

import (
	"time"

	"github.com/trezcool/soma/core"
)

type Source string

const (
	SourceTimer  Source = "timer"
	SourceManual Source = "manual"
)

// MinDuration is the shortest focus period worth recording.
const MinDuration = 60 * time.Second

// Session is the focus time of one user on one local calendar day.
type Session struct {
	ID              string    `json:"id"`
	UserID          string    `json:"-"`
	TaskID          string    `json:"task_id,omitempty"`
	NodeID          string    `json:"node_id,omitempty"`
	Mode            string    `json:"mode"`
	Source          Source    `json:"source"`
	Day             core.Date `json:"day"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Pomodoros       int       `json:"pomodoros"`
	XPAwarded       int       `json:"xp_awarded"`
	Note            string    `json:"note"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s Session) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// Segment is one uninterrupted running stretch.
type Segment struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (seg Segment) Duration() time.Duration {
	if seg.End.Before(seg.Start) {
		return 0
	}
	return seg.End.Sub(seg.Start)
}

// Recording is a focus period to be stored as one or more sessions.
type Recording struct {
	TaskID    string
	NodeID    string
	Mode      string
	Source    Source
	Segments  []Segment
	Pomodoros int
	Note      string
}

func (rec Recording) Duration() time.Duration {
	var total time.Duration
	for _, seg := range rec.Segments {
		total += seg.Duration()
	}
	return total
}

// ManualSession is focus time logged by hand.
type ManualSession struct {
	StartedAt       time.Time `json:"started_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1,max=720"`
	TaskID          string    `json:"task_id" validate:"omitempty,uuid"`
	NodeID          string    `json:"node_id" validate:"omitempty,uuid"`
	Note            string    `json:"note" validate:"max=1000"`
}

func (ms *ManualSession) Clean() {
	ms.TaskID = core.CleanString(ms.TaskID)
	ms.NodeID = core.CleanString(ms.NodeID)
	ms.Note = core.CleanString(ms.Note)
}

// Filter narrows List. Days are inclusive.
type Filter struct {
	From   *core.Date `query:"from"`
	To     *core.Date `query:"to"`
	NodeID string     `query:"node_id"`
	TaskID string     `query:"task_id"`
	Source Source     `query:"source"`
}

func (f *Filter) Match(s Session) bool {
	if f == nil {
		return true
	}
	if f.From != nil && s.Day.Before(*f.From) {
		return false
	}
	if f.To != nil && s.Day.After(*f.To) {
		return false
	}
	if f.NodeID != "" && s.NodeID != f.NodeID {
		return false
	}
	if f.TaskID != "" && s.TaskID != f.TaskID {
		return false
	}
	if f.Source != "" && s.Source != f.Source {
		return false
	}
	return true
}
