package timer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/user"
)

type (
	Mode   string
	Status string
	Phase  string
)

const (
	ModeStopwatch Mode = "stopwatch"
	ModeCountdown Mode = "countdown"
	ModePomodoro  Mode = "pomodoro"

	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"

	PhaseFocus      Phase = "focus"
	PhaseShortBreak Phase = "short_break"
	PhaseLongBreak  Phase = "long_break"
)

// MaxRunningStretch is the longest a timer keeps running without the user touching it.
const MaxRunningStretch = 12 * time.Hour

var (
	// errors
	ErrNoActiveTimer      = core.NewConflictError("no active timer")
	ErrTimerActive        = core.NewConflictError("a timer is already active")
	ErrInvalidTransition  = core.NewConflictError("invalid timer transition")
	ErrPomodoroOnly       = core.NewConflictError("only pomodoro timers have phases to skip")
	errCountdownNeedsTime = errors.New("a countdown needs a duration")
)

type PomodoroConfig struct {
	FocusMinutes          int  `json:"focus_minutes"`
	ShortBreakMinutes     int  `json:"short_break_minutes"`
	LongBreakMinutes      int  `json:"long_break_minutes"`
	CyclesBeforeLongBreak int  `json:"cycles_before_long_break"`
	AutoStartNext         bool `json:"auto_start_next"`
}

// PomodoroConfigFor builds the pomodoro settings of usr.
func PomodoroConfigFor(usr user.User) PomodoroConfig {
	prefs := usr.Pomodoro.WithDefaults()
	return PomodoroConfig{
		FocusMinutes:          prefs.FocusMinutes,
		ShortBreakMinutes:     prefs.ShortBreakMinutes,
		LongBreakMinutes:      prefs.LongBreakMinutes,
		CyclesBeforeLongBreak: prefs.CyclesBeforeLongBreak,
		AutoStartNext:         true,
	}
}

func (pc PomodoroConfig) phaseLength(p Phase) time.Duration {
	switch p {
	case PhaseShortBreak:
		return time.Duration(pc.ShortBreakMinutes) * time.Minute
	case PhaseLongBreak:
		return time.Duration(pc.LongBreakMinutes) * time.Minute
	default:
		return time.Duration(pc.FocusMinutes) * time.Minute
	}
}

// State is the persisted state of one user's timer.
// Elapsed time is derived from wall-clock deltas: Accumulated plus the running stretch since LastResumedAt.
type State struct {
	UserID         string            `json:"user_id"`
	Mode           Mode              `json:"mode"`
	Status         Status            `json:"status"`
	TaskID         string            `json:"task_id,omitempty"`
	NodeID         string            `json:"node_id,omitempty"`
	Phase          Phase             `json:"phase,omitempty"`
	Cycle          int               `json:"cycle,omitempty"`
	Target         time.Duration     `json:"target"`
	Accumulated    time.Duration     `json:"accumulated"`
	LastResumedAt  time.Time         `json:"last_resumed_at"`
	StretchStarted time.Time         `json:"stretch_started"`
	Segments       []session.Segment `json:"segments"`
	StartedAt      time.Time         `json:"started_at"`
	PausedAt       time.Time         `json:"paused_at"`
	AutoPaused     bool              `json:"auto_paused"`
	CompletedFocus int               `json:"completed_focus"`
	Pomodoro       PomodoroConfig    `json:"pomodoro"`
}

type StartOptions struct {
	Mode          Mode   `json:"mode" validate:"required,timermode"`
	TaskID        string `json:"task_id" validate:"omitempty,uuid"`
	NodeID        string `json:"node_id" validate:"omitempty,uuid"`
	TargetMinutes int    `json:"target_minutes" validate:"omitempty,min=1,max=720"`
	AutoStartNext *bool  `json:"auto_start_next"`
}

type EffectKind string

const (
	EffectPhaseCompleted EffectKind = "timer.phase_completed"
	EffectAutoPaused     EffectKind = "timer.auto_paused"
	EffectCompleted      EffectKind = "timer.completed"
)

// Effect is something that happened to a timer while time passed.
type Effect struct {
	Kind      EffectKind
	Phase     Phase
	NextPhase Phase
	At        time.Time
	Recording *session.Recording
}

// New starts a running timer at `now`.
func New(userID string, opts StartOptions, pomodoro PomodoroConfig, now time.Time) (*State, error) {
	st := &State{
		UserID:         userID,
		Mode:           opts.Mode,
		Status:         StatusRunning,
		TaskID:         opts.TaskID,
		NodeID:         opts.NodeID,
		LastResumedAt:  now,
		StretchStarted: now,
		StartedAt:      now,
		Pomodoro:       pomodoro,
	}
	if opts.AutoStartNext != nil {
		st.Pomodoro.AutoStartNext = *opts.AutoStartNext
	}
	switch opts.Mode {
	case ModeStopwatch:
	case ModeCountdown:
		if opts.TargetMinutes <= 0 {
			return nil, errCountdownNeedsTime
		}
		st.Target = time.Duration(opts.TargetMinutes) * time.Minute
	case ModePomodoro:
		st.Phase = PhaseFocus
		st.Cycle = 1
		st.Target = pomodoro.phaseLength(PhaseFocus)
	default:
		return nil, errors.Wrapf(ErrInvalidTransition, "unknown mode %q", opts.Mode)
	}
	return st, nil
}

// IsFocus reports whether the current phase counts as focus time.
func (st *State) IsFocus() bool {
	return st.Mode != ModePomodoro || st.Phase == PhaseFocus
}

// Elapsed is the time spent in the current phase at `now`.
func (st *State) Elapsed(now time.Time) time.Duration {
	elapsed := st.Accumulated
	if st.Status == StatusRunning {
		end := now
		if limit := st.StretchStarted.Add(MaxRunningStretch); end.After(limit) {
			end = limit
		}
		if end.After(st.LastResumedAt) {
			elapsed += end.Sub(st.LastResumedAt)
		}
	}
	return elapsed
}

// Remaining is the time left in the current phase, 0 without a target.
func (st *State) Remaining(now time.Time) time.Duration {
	if st.Target <= 0 {
		return 0
	}
	if rem := st.Target - st.Elapsed(now); rem > 0 {
		return rem
	}
	return 0
}

// Advance applies everything that happened up to `now`: completed phases (carrying the overflow
// into the next one) and the auto-pause of stretches running longer than MaxRunningStretch.
func (st *State) Advance(now time.Time) []Effect {
	var effects []Effect
	for st.Status == StatusRunning {
		limit := st.StretchStarted.Add(MaxRunningStretch)
		if st.Target > 0 {
			boundary := st.LastResumedAt.Add(st.Target - st.Accumulated)
			if !boundary.After(now) && !boundary.After(limit) {
				effects = append(effects, st.completePhase(boundary))
				continue
			}
		}
		if now.After(limit) {
			st.pauseAt(limit)
			st.AutoPaused = true
			effects = append(effects, Effect{Kind: EffectAutoPaused, Phase: st.Phase, At: limit})
		}
		break
	}
	return effects
}

func (st *State) completePhase(at time.Time) Effect {
	st.closeSegment(at)

	if st.Mode != ModePomodoro {
		rec := st.recording(0)
		st.reset()
		return Effect{Kind: EffectCompleted, At: at, Recording: rec}
	}

	ef := Effect{Kind: EffectPhaseCompleted, Phase: st.Phase, At: at}
	if st.Phase == PhaseFocus {
		ef.Recording = st.recording(1)
		st.CompletedFocus++
	}
	st.nextPhase(at)
	ef.NextPhase = st.Phase
	return ef
}

// nextPhase moves a pomodoro timer to the phase following the current one, starting at `at`.
func (st *State) nextPhase(at time.Time) {
	switch st.Phase {
	case PhaseFocus:
		cycles := st.Pomodoro.CyclesBeforeLongBreak
		if cycles > 0 && st.Cycle%cycles == 0 {
			st.Phase = PhaseLongBreak
		} else {
			st.Phase = PhaseShortBreak
		}
	case PhaseLongBreak:
		st.Phase = PhaseFocus
		st.Cycle = 1
	default:
		st.Phase = PhaseFocus
		st.Cycle++
	}
	st.Target = st.Pomodoro.phaseLength(st.Phase)
	st.Accumulated = 0
	st.Segments = nil

	if st.Pomodoro.AutoStartNext {
		st.Status = StatusRunning
		st.LastResumedAt = at
		st.PausedAt = time.Time{}
	} else {
		st.Status = StatusPaused
		st.LastResumedAt = time.Time{}
		st.PausedAt = at
	}
}

func (st *State) closeSegment(at time.Time) {
	if st.Status != StatusRunning || !at.After(st.LastResumedAt) {
		return
	}
	if st.IsFocus() {
		st.Segments = append(st.Segments, session.Segment{Start: st.LastResumedAt, End: at})
	}
	st.Accumulated += at.Sub(st.LastResumedAt)
}

func (st *State) pauseAt(at time.Time) {
	st.closeSegment(at)
	st.Status = StatusPaused
	st.PausedAt = at
	st.LastResumedAt = time.Time{}
}

// recording returns the focus period of the current phase, nil when there is none.
func (st *State) recording(pomodoros int) *session.Recording {
	if !st.IsFocus() || len(st.Segments) == 0 {
		return nil
	}
	segs := make([]session.Segment, len(st.Segments))
	copy(segs, st.Segments)
	return &session.Recording{
		TaskID:    st.TaskID,
		NodeID:    st.NodeID,
		Mode:      string(st.Mode),
		Source:    session.SourceTimer,
		Segments:  segs,
		Pomodoros: pomodoros,
	}
}

func (st *State) reset() {
	*st = State{UserID: st.UserID, Status: StatusIdle}
}

// Pause stops the clock. Call Advance first.
func (st *State) Pause(now time.Time) error {
	if st.Status != StatusRunning {
		return errors.Wrapf(ErrInvalidTransition, "cannot pause a %s timer", st.Status)
	}
	st.pauseAt(now)
	st.AutoPaused = false
	return nil
}

// Resume restarts a paused clock and opens a new running stretch.
func (st *State) Resume(now time.Time) error {
	if st.Status != StatusPaused {
		return errors.Wrapf(ErrInvalidTransition, "cannot resume a %s timer", st.Status)
	}
	st.Status = StatusRunning
	st.LastResumedAt = now
	st.StretchStarted = now
	st.PausedAt = time.Time{}
	st.AutoPaused = false
	return nil
}

// Stop ends the timer and returns the focus period to record, if any. Call Advance first.
func (st *State) Stop(now time.Time) (*session.Recording, error) {
	if st.Status != StatusRunning && st.Status != StatusPaused {
		return nil, errors.Wrapf(ErrInvalidTransition, "cannot stop a %s timer", st.Status)
	}
	st.closeSegment(now)
	rec := st.recording(0)
	st.reset()
	return rec, nil
}

// Discard ends the timer without recording anything.
func (st *State) Discard() {
	st.reset()
}

// Skip moves a pomodoro timer to its next phase. Skipped focus time is not recorded.
func (st *State) Skip(now time.Time) error {
	if st.Mode != ModePomodoro {
		return ErrPomodoroOnly
	}
	if st.Status != StatusRunning && st.Status != StatusPaused {
		return errors.Wrapf(ErrInvalidTransition, "cannot skip a %s timer", st.Status)
	}
	wasRunning := st.Status == StatusRunning
	st.nextPhase(now)
	if wasRunning {
		st.Status = StatusRunning
		st.LastResumedAt = now
		st.PausedAt = time.Time{}
	} else {
		st.Status = StatusPaused
		st.LastResumedAt = time.Time{}
		st.PausedAt = now
	}
	return nil
}
