package main

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/timer"
)

type fakeClient struct {
	calls []string
	opts  timer.StartOptions
	view  timer.View
	err   error
}

func (c *fakeClient) record(name string) (timer.View, error) {
	c.calls = append(c.calls, name)
	return c.view, c.err
}

func (c *fakeClient) Timer(context.Context) (timer.View, error) { return c.record("timer") }
func (c *fakeClient) Start(_ context.Context, opts timer.StartOptions) (timer.View, error) {
	c.opts = opts
	return c.record("start")
}
func (c *fakeClient) Pause(context.Context) (timer.View, error)   { return c.record("pause") }
func (c *fakeClient) Resume(context.Context) (timer.View, error)  { return c.record("resume") }
func (c *fakeClient) Stop(context.Context) (timer.View, error)    { return c.record("stop") }
func (c *fakeClient) Skip(context.Context) (timer.View, error)    { return c.record("skip") }
func (c *fakeClient) Discard(context.Context) (timer.View, error) { return c.record("discard") }
func (c *fakeClient) Progress(context.Context) (gamification.Progress, error) {
	c.calls = append(c.calls, "progress")
	p := gamification.Progress{Streak: gamification.Streak{Current: 4}, TodayFocusSecs: 1800, DailyGoalSecs: 7200}
	p.Level, p.Title, p.XP, p.XPToNextLevel = 3, "Scholar", 320, 280
	return p, c.err
}

func key(k string) tea.KeyMsg {
	if k == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// press sends k and feeds the resulting message back into the model.
func press(t *testing.T, m *model, k string) {
	t.Helper()
	_, cmd := m.Update(key(k))
	require.NotNil(t, cmd, "key %q", k)
	m.Update(cmd())
}

func Test_model_keys(t *testing.T) {
	fc := &fakeClient{view: timer.View{Mode: timer.ModeCountdown, Status: timer.StatusRunning, TargetSeconds: 600, RemainingSeconds: 600, Clock: "10:00"}}
	m := newModel(fc, timer.ModeCountdown, 10)
	assert.Equal(t, timer.ModeCountdown, m.mode())

	press(t, m, "s")
	assert.Equal(t, []string{"start"}, fc.calls)
	assert.Equal(t, timer.StartOptions{Mode: timer.ModeCountdown, TargetMinutes: 10}, fc.opts)
	assert.Equal(t, timer.StatusRunning, m.view.Status)

	fc.view.Status = timer.StatusPaused
	press(t, m, "p")
	assert.Equal(t, "pause", fc.calls[len(fc.calls)-1])

	fc.view.Status = timer.StatusRunning
	press(t, m, " ")
	assert.Equal(t, "resume", fc.calls[len(fc.calls)-1])

	press(t, m, "n")
	press(t, m, "d")
	assert.Equal(t, []string{"start", "pause", "resume", "skip", "discard"}, fc.calls)

	// mode only cycles while idle
	m.Update(key("m"))
	assert.Equal(t, timer.ModeCountdown, m.mode())
	m.view.Status = timer.StatusIdle
	m.Update(key("m"))
	assert.Equal(t, timer.ModePomodoro, m.mode())

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	_, cmd = m.Update(key("ctrl+c"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func Test_model_tick(t *testing.T) {
	fc := &fakeClient{}
	m := newModel(fc, timer.ModePomodoro, 0)
	m.Update(viewMsg(timer.View{Mode: timer.ModePomodoro, Status: timer.StatusRunning, Phase: timer.PhaseFocus, Cycle: 1, TargetSeconds: 1500, RemainingSeconds: 2, Clock: "00:02"}))

	m.Update(tickMsg{})
	assert.EqualValues(t, 1, m.view.RemainingSeconds)
	assert.EqualValues(t, 1, m.view.ElapsedSeconds)
	assert.Equal(t, "00:01", m.view.Clock)
	assert.Empty(t, fc.calls)

	m.Update(tickMsg{})
	assert.EqualValues(t, 0, m.view.RemainingSeconds)
	assert.Equal(t, "00:00", m.view.Clock)

	// paused timers do not move
	m.view.Status = timer.StatusPaused
	m.Update(tickMsg{})
	assert.EqualValues(t, 2, m.view.ElapsedSeconds)
}

func Test_model_recorded(t *testing.T) {
	fc := &fakeClient{}
	m := newModel(fc, timer.ModeStopwatch, 0)

	_, cmd := m.Update(viewMsg(timer.View{Status: timer.StatusIdle, Clock: "00:00", Recorded: []session.Session{{DurationSeconds: 1500}}}))
	assert.Equal(t, "recorded 25:00 of focus", m.notice)
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Equal(t, []string{"progress"}, fc.calls)
	require.NotNil(t, m.progress)

	out := m.View()
	assert.Contains(t, out, "Level 3 Scholar · 320 XP (280 to next) · streak 4 day(s) · today 30:00 / 2:00:00")
	assert.Contains(t, out, "recorded 25:00 of focus")
	assert.Contains(t, out, "stopwatch")
}

func Test_model_error(t *testing.T) {
	fc := &fakeClient{err: errors.New("a timer is already active")}
	m := newModel(fc, timer.ModeStopwatch, 0)

	press(t, m, "s")
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "error: a timer is already active")

	fc.err = nil
	fc.view = timer.View{Mode: timer.ModeStopwatch, Status: timer.StatusRunning, Clock: "00:00"}
	press(t, m, "s")
	assert.NoError(t, m.err)
	assert.NotContains(t, m.View(), "error:")
}
