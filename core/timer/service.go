package timer

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/user"
)

// EventUpdated is published with the new View after every user-driven change.
const EventUpdated = "timer.updated"

var (
	timerModeTag  = "timermode"
	timerModeText = "must be one of stopwatch, countdown or pomodoro"
)

// InitValidators registers the timer validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(timerModeTag, core.OneOfValidation(
		string(ModeStopwatch), string(ModeCountdown), string(ModePomodoro),
	))
	core.RegisterCustomTranslation(validate, translator, timerModeTag, timerModeText)
}

type (
	// StateStore keeps at most one timer per user.
	StateStore interface {
		// GetTimer returns nil when the user has no timer.
		GetTimer(ctx context.Context, userID string) (*State, error)
		SaveTimer(ctx context.Context, st *State) error
		DeleteTimer(ctx context.Context, userID string) error
		// TimerUsers lists the users owning a stored timer.
		TimerUsers(ctx context.Context) ([]string, error)
	}

	Recorder interface {
		Record(ctx context.Context, usr user.User, rec session.Recording) ([]session.Session, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		store     StateStore
		recorder  Recorder
		users     UserGetter
		publisher core.Publisher
		logger    core.Logger
		validate  *validator.Validate
		locks     [32]sync.Mutex
	}

	// View is the timer as shown to clients.
	View struct {
		Mode             Mode              `json:"mode,omitempty"`
		Status           Status            `json:"status"`
		Phase            Phase             `json:"phase,omitempty"`
		Cycle            int               `json:"cycle,omitempty"`
		TaskID           string            `json:"task_id,omitempty"`
		NodeID           string            `json:"node_id,omitempty"`
		ElapsedSeconds   int64             `json:"elapsed_seconds"`
		TargetSeconds    int64             `json:"target_seconds"`
		RemainingSeconds int64             `json:"remaining_seconds"`
		Clock            string            `json:"clock"`
		AutoPaused       bool              `json:"auto_paused"`
		CompletedFocus   int               `json:"completed_focus"`
		StartedAt        *time.Time        `json:"started_at"`
		PausedAt         *time.Time        `json:"paused_at"`
		Pomodoro         *PomodoroConfig   `json:"pomodoro,omitempty"`
		Recorded         []session.Session `json:"recorded,omitempty"`
	}
)

func NewService(
	store StateStore,
	recorder Recorder,
	users UserGetter,
	publisher core.Publisher,
	logger core.Logger,
	validate *validator.Validate,
) *Service {
	if publisher == nil {
		publisher = core.NopPublisher{}
	}
	return &Service{
		store:     store,
		recorder:  recorder,
		users:     users,
		publisher: publisher,
		logger:    logger,
		validate:  validate,
	}
}

// lock serializes the operations on one user's timer within this process.
func (svc *Service) lock(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &svc.locks[h.Sum32()%uint32(len(svc.locks))]
	mu.Lock()
	return mu.Unlock
}

func newView(st *State, now time.Time) View {
	if st == nil || st.Status == StatusIdle {
		return View{Status: StatusIdle, Clock: core.FormatClock(0)}
	}
	v := View{
		Mode:           st.Mode,
		Status:         st.Status,
		Phase:          st.Phase,
		Cycle:          st.Cycle,
		TaskID:         st.TaskID,
		NodeID:         st.NodeID,
		ElapsedSeconds: int64(st.Elapsed(now) / time.Second),
		TargetSeconds:  int64(st.Target / time.Second),
		AutoPaused:     st.AutoPaused,
		CompletedFocus: st.CompletedFocus,
	}
	if st.Target > 0 {
		v.RemainingSeconds = int64((st.Remaining(now) + time.Second - 1) / time.Second)
		v.Clock = core.FormatClock(v.RemainingSeconds)
	} else {
		v.Clock = core.FormatClock(v.ElapsedSeconds)
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		v.StartedAt = &started
	}
	if st.Status == StatusPaused && !st.PausedAt.IsZero() {
		paused := st.PausedAt
		v.PausedAt = &paused
	}
	if st.Mode == ModePomodoro {
		pc := st.Pomodoro
		v.Pomodoro = &pc
	}
	return v
}

// apply records the sessions produced by effects and publishes them. It returns the recorded sessions.
func (svc *Service) apply(ctx context.Context, usr user.User, effects []Effect) ([]session.Session, error) {
	var recorded []session.Session
	for _, ef := range effects {
		payload := map[string]interface{}{"at": ef.At}
		if ef.Phase != "" {
			payload["phase"] = ef.Phase
		}
		if ef.NextPhase != "" {
			payload["next_phase"] = ef.NextPhase
		}
		if ef.Recording != nil {
			sessions, err := svc.recorder.Record(ctx, usr, *ef.Recording)
			if err != nil {
				return recorded, errors.Wrap(err, "recording session")
			}
			recorded = append(recorded, sessions...)
			payload["sessions"] = sessions
		}
		svc.publisher.Publish(usr.ID, core.NewEvent(string(ef.Kind), payload))
	}
	return recorded, nil
}

// load returns the advanced timer of usr, nil when there is none.
func (svc *Service) load(ctx context.Context, usr user.User, now time.Time) (*State, []session.Session, error) {
	st, err := svc.store.GetTimer(ctx, usr.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "getting timer")
	}
	if st == nil {
		return nil, nil, nil
	}
	effects := st.Advance(now)
	if len(effects) == 0 {
		return st, nil, nil
	}
	// saved before recording: a failed save must not record the same focus twice
	if err = svc.save(ctx, st); err != nil {
		return nil, nil, err
	}
	recorded, err := svc.apply(ctx, usr, effects)
	if err != nil {
		return nil, nil, err
	}
	return st, recorded, nil
}

// save stores st, or deletes it once idle.
func (svc *Service) save(ctx context.Context, st *State) error {
	if st.Status == StatusIdle {
		return errors.Wrap(svc.store.DeleteTimer(ctx, st.UserID), "deleting timer")
	}
	return errors.Wrap(svc.store.SaveTimer(ctx, st), "saving timer")
}

func (svc *Service) Get(ctx context.Context, usr user.User) (View, error) {
	defer svc.lock(usr.ID)()

	now := core.NowFunc()
	st, recorded, err := svc.load(ctx, usr, now)
	if err != nil {
		return View{}, err
	}
	v := newView(st, now)
	v.Recorded = recorded
	return v, nil
}

func (svc *Service) Start(ctx context.Context, usr user.User, opts StartOptions) (View, error) {
	if err := svc.validate.Struct(opts); err != nil {
		return View{}, err
	}
	if opts.Mode == ModeCountdown && opts.TargetMinutes <= 0 {
		msg := errCountdownNeedsTime.Error()
		return View{}, core.NewValidationError(errCountdownNeedsTime, core.FieldError{Field: "target_minutes", Error: msg})
	}
	defer svc.lock(usr.ID)()

	now := core.NowFunc()
	current, recorded, err := svc.load(ctx, usr, now)
	if err != nil {
		return View{}, err
	}
	if current != nil && current.Status != StatusIdle {
		return View{}, ErrTimerActive
	}

	st, err := New(usr.ID, opts, PomodoroConfigFor(usr), now)
	if err != nil {
		return View{}, core.NewValidationError(err)
	}
	if err = svc.save(ctx, st); err != nil {
		return View{}, err
	}
	v := newView(st, now)
	svc.publisher.Publish(usr.ID, core.NewEvent(EventUpdated, v))
	v.Recorded = recorded
	return v, nil
}

// transition loads the active timer, applies op and saves the result.
func (svc *Service) transition(ctx context.Context, usr user.User, op func(st *State, now time.Time) (*session.Recording, error)) (View, error) {
	defer svc.lock(usr.ID)()

	now := core.NowFunc()
	st, recorded, err := svc.load(ctx, usr, now)
	if err != nil {
		return View{}, err
	}
	if st == nil || st.Status == StatusIdle {
		return View{}, ErrNoActiveTimer
	}

	rec, err := op(st, now)
	if err != nil {
		return View{}, err
	}
	if err = svc.save(ctx, st); err != nil {
		return View{}, err
	}
	if rec != nil {
		sessions, err := svc.recorder.Record(ctx, usr, *rec)
		if err != nil {
			return View{}, errors.Wrap(err, "recording session")
		}
		recorded = append(recorded, sessions...)
	}
	v := newView(st, now)
	svc.publisher.Publish(usr.ID, core.NewEvent(EventUpdated, v))
	v.Recorded = recorded
	return v, nil
}

// Pause is a no-op on a paused timer.
func (svc *Service) Pause(ctx context.Context, usr user.User) (View, error) {
	return svc.transition(ctx, usr, func(st *State, now time.Time) (*session.Recording, error) {
		if st.Status == StatusPaused {
			return nil, nil
		}
		return nil, st.Pause(now)
	})
}

func (svc *Service) Resume(ctx context.Context, usr user.User) (View, error) {
	return svc.transition(ctx, usr, func(st *State, now time.Time) (*session.Recording, error) {
		return nil, st.Resume(now)
	})
}

// Stop ends the timer and records its focus time.
func (svc *Service) Stop(ctx context.Context, usr user.User) (View, error) {
	return svc.transition(ctx, usr, func(st *State, now time.Time) (*session.Recording, error) {
		return st.Stop(now)
	})
}

func (svc *Service) Skip(ctx context.Context, usr user.User) (View, error) {
	return svc.transition(ctx, usr, func(st *State, now time.Time) (*session.Recording, error) {
		return nil, st.Skip(now)
	})
}

// Discard ends the timer without recording anything.
func (svc *Service) Discard(ctx context.Context, usr user.User) (View, error) {
	return svc.transition(ctx, usr, func(st *State, _ time.Time) (*session.Recording, error) {
		st.Discard()
		return nil, nil
	})
}

// SweepStale advances every stored timer so phases complete and long stretches auto-pause
// even when nobody is watching. It returns the number of timers that changed.
func (svc *Service) SweepStale(ctx context.Context) (int, error) {
	userIDs, err := svc.store.TimerUsers(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "listing timers")
	}

	var changed int
	for _, id := range userIDs {
		if err = ctx.Err(); err != nil {
			return changed, err
		}
		n, err := svc.sweepOne(ctx, id)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("sweeping timer of user %s: %v", id, err), err)
			continue
		}
		changed += n
	}
	return changed, nil
}

func (svc *Service) sweepOne(ctx context.Context, userID string) (int, error) {
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return 0, errors.Wrap(svc.store.DeleteTimer(ctx, userID), "deleting orphan timer")
		}
		return 0, errors.Wrap(err, "getting user")
	}

	defer svc.lock(userID)()
	st, err := svc.store.GetTimer(ctx, userID)
	if err != nil || st == nil {
		return 0, errors.Wrap(err, "getting timer")
	}
	effects := st.Advance(core.NowFunc())
	if len(effects) == 0 {
		return 0, nil
	}
	if err = svc.save(ctx, st); err != nil {
		return 0, err
	}
	if _, err = svc.apply(ctx, usr, effects); err != nil {
		return 0, err
	}
	return 1, nil
}

// RunSweeper calls SweepStale every `interval` until ctx is done.
func (svc *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := svc.SweepStale(ctx); err != nil && ctx.Err() == nil {
				svc.logger.Error(fmt.Sprintf("sweeping timers: %v", err), err)
			} else if n > 0 {
				svc.logger.Info(fmt.Sprintf("swept %d timer(s)", n))
			}
		}
	}
}
