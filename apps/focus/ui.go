package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/timer"
)

const (
	tickInterval = time.Second
	syncEvery    = 15 // ticks between two fetches of the server state
	callTimeout  = 10 * time.Second
)

var modes = []timer.Mode{timer.ModePomodoro, timer.ModeStopwatch, timer.ModeCountdown}

type timerClient interface {
	Timer(ctx context.Context) (timer.View, error)
	Start(ctx context.Context, opts timer.StartOptions) (timer.View, error)
	Pause(ctx context.Context) (timer.View, error)
	Resume(ctx context.Context) (timer.View, error)
	Stop(ctx context.Context) (timer.View, error)
	Skip(ctx context.Context) (timer.View, error)
	Discard(ctx context.Context) (timer.View, error)
	Progress(ctx context.Context) (gamification.Progress, error)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ADD8"))
	clockStyle  = lipgloss.NewStyle().Bold(true).Padding(1, 4).Border(lipgloss.RoundedBorder())
	runningClr  = lipgloss.Color("#5AF78E")
	pausedClr   = lipgloss.Color("#F3F99D")
	idleClr     = lipgloss.Color("#686868")
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5AF78E"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5C57"))
)

type (
	tickMsg     time.Time
	viewMsg     timer.View
	progressMsg gamification.Progress
	errMsg      struct{ err error }
)

type model struct {
	client        timerClient
	modeIdx       int
	targetMinutes int
	view          timer.View
	progress      *gamification.Progress
	ticks         int
	notice        string
	err           error
}

func newModel(client timerClient, mode timer.Mode, targetMinutes int) *model {
	m := &model{client: client, targetMinutes: targetMinutes}
	for i, md := range modes {
		if md == mode {
			m.modeIdx = i
		}
	}
	m.view = timer.View{Status: timer.StatusIdle, Clock: core.FormatClock(0)}
	return m
}

func (m *model) mode() timer.Mode { return modes[m.modeIdx] }

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.fetchTimer(), m.fetchProgress(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// call runs fn against the API off the UI loop.
func (m *model) call(fn func(ctx context.Context) (timer.View, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		v, err := fn(ctx)
		if err != nil {
			return errMsg{err}
		}
		return viewMsg(v)
	}
}

func (m *model) fetchTimer() tea.Cmd { return m.call(m.client.Timer) }

func (m *model) fetchProgress() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		p, err := m.client.Progress(ctx)
		if err != nil {
			return errMsg{err}
		}
		return progressMsg(p)
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg.String())

	case tickMsg:
		m.ticks++
		cmds := []tea.Cmd{tick()}
		if m.view.Status == timer.StatusRunning {
			m.view.ElapsedSeconds++
			if m.view.TargetSeconds > 0 {
				m.view.RemainingSeconds--
				if m.view.RemainingSeconds <= 0 {
					// the server moves to the next phase or finishes the countdown
					m.view.RemainingSeconds = 0
					cmds = append(cmds, m.fetchTimer())
				}
			}
			m.view.Clock = clockOf(m.view)
		}
		if m.ticks%syncEvery == 0 {
			cmds = append(cmds, m.fetchTimer())
		}
		return m, tea.Batch(cmds...)

	case viewMsg:
		m.err = nil
		m.view = timer.View(msg)
		if n := len(m.view.Recorded); n > 0 {
			var secs int
			for _, s := range m.view.Recorded {
				secs += s.DurationSeconds
			}
			m.notice = fmt.Sprintf("recorded %s of focus", core.FormatClock(int64(secs)))
			return m, m.fetchProgress()
		}
		return m, nil

	case progressMsg:
		p := gamification.Progress(msg)
		m.progress = &p
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(key string) tea.Cmd {
	m.notice = ""
	switch key {
	case "ctrl+c", "q":
		return tea.Quit
	case "s":
		opts := timer.StartOptions{Mode: m.mode()}
		if opts.Mode == timer.ModeCountdown {
			opts.TargetMinutes = m.targetMinutes
		}
		return m.call(func(ctx context.Context) (timer.View, error) { return m.client.Start(ctx, opts) })
	case "p", " ":
		switch m.view.Status {
		case timer.StatusRunning:
			return m.call(m.client.Pause)
		case timer.StatusPaused:
			return m.call(m.client.Resume)
		}
	case "x":
		return m.call(m.client.Stop)
	case "n":
		return m.call(m.client.Skip)
	case "d":
		return m.call(m.client.Discard)
	case "m":
		if m.view.Status == timer.StatusIdle {
			m.modeIdx = (m.modeIdx + 1) % len(modes)
		}
	case "r":
		return tea.Batch(m.fetchTimer(), m.fetchProgress())
	}
	return nil
}

func clockOf(v timer.View) string {
	if v.TargetSeconds > 0 {
		return core.FormatClock(v.RemainingSeconds)
	}
	return core.FormatClock(v.ElapsedSeconds)
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("soma focus"))
	b.WriteString("\n\n")

	mode, clr := m.mode(), idleClr
	switch m.view.Status {
	case timer.StatusRunning:
		clr = runningClr
	case timer.StatusPaused:
		clr = pausedClr
	}
	if m.view.Status != timer.StatusIdle {
		mode = m.view.Mode
	}

	header := string(mode)
	if m.view.Phase != "" {
		header += " · " + strings.ReplaceAll(string(m.view.Phase), "_", " ")
		if m.view.Cycle > 0 {
			header += fmt.Sprintf(" #%d", m.view.Cycle)
		}
	}
	status := string(m.view.Status)
	if m.view.AutoPaused {
		status += " (auto)"
	}
	b.WriteString(fmt.Sprintf("%s  %s\n", header, lipgloss.NewStyle().Foreground(clr).Render(status)))
	b.WriteString(clockStyle.BorderForeground(clr).Render(m.view.Clock))
	b.WriteString("\n")

	if p := m.progress; p != nil {
		b.WriteString(fmt.Sprintf("Level %d %s · %d XP (%d to next) · streak %d day(s) · today %s / %s\n",
			p.Level, p.Title, p.XP, p.XPToNextLevel, p.Streak.Current,
			core.FormatClock(int64(p.TodayFocusSecs)), core.FormatClock(int64(p.DailyGoalSecs))))
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	if m.err != nil {
		b.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("s start · p pause/resume · x stop · n skip · d discard · m mode · r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}
