package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/user"
)

type (
	Repository interface {
		// GetStats returns level 1 and no XP for users without stats yet.
		GetStats(ctx context.Context, userID string) (Stats, error)
		// AddXPEvent stores ev and adds its amount to the user's XP in one transaction.
		// It reports false, and changes nothing, when a unique event already exists.
		AddXPEvent(ctx context.Context, ev XPEvent) (Stats, bool, error)
		SetLevel(ctx context.Context, userID string, level int) error
		SaveStats(ctx context.Context, st Stats) error
		SumXP(ctx context.Context, userID string) (int, error)
		ListBadges(ctx context.Context, userID string) ([]UnlockedBadge, error)
		// UnlockBadge reports false when the badge was already unlocked.
		UnlockBadge(ctx context.Context, b UnlockedBadge) (bool, error)
	}

	// CelebrationQueue is a per-user FIFO capped at MaxCelebrations.
	CelebrationQueue interface {
		PushCelebration(ctx context.Context, userID string, c Celebration) error
		PendingCelebrations(ctx context.Context, userID string) ([]Celebration, error)
		// AckCelebrations drops the given celebrations, every one when no id is given.
		AckCelebrations(ctx context.Context, userID string, ids ...string) error
	}

	Service struct {
		repo      Repository
		planRepo  plan.Repository
		sessRepo  session.Repository
		queue     CelebrationQueue
		publisher core.Publisher
	}
)

var (
	_ plan.Rewarder    = (*Service)(nil)
	_ session.Rewarder = (*Service)(nil)
)

func NewService(
	repo Repository,
	planRepo plan.Repository,
	sessRepo session.Repository,
	queue CelebrationQueue,
	publisher core.Publisher,
) *Service {
	if publisher == nil {
		publisher = core.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		planRepo:  planRepo,
		sessRepo:  sessRepo,
		queue:     queue,
		publisher: publisher,
	}
}

// SessionXP prices a focus session: 1 XP per full minute plus a bonus per completed pomodoro.
func (svc *Service) SessionXP(s session.Session) int {
	return s.DurationSeconds/60*XPPerFocusMinute + s.Pomodoros*XPPerPomodoro
}

func (svc *Service) SessionsRecorded(ctx context.Context, usr user.User, sessions []session.Session) error {
	days := make(map[core.Date]bool)
	for _, s := range sessions {
		days[s.Day] = true
		if s.XPAwarded == 0 {
			continue
		}
		if _, err := svc.award(ctx, usr, ReasonFocus, s.ID, s.XPAwarded); err != nil {
			return err
		}
	}
	for day := range days {
		if err := svc.checkDailyGoal(ctx, usr, day); err != nil {
			return err
		}
	}
	return svc.evaluate(ctx, usr)
}

// SessionDeleted takes back the XP of s. Bonuses already granted are kept.
func (svc *Service) SessionDeleted(ctx context.Context, usr user.User, s session.Session) error {
	if s.XPAwarded == 0 {
		return nil
	}
	_, err := svc.award(ctx, usr, ReasonFocusReversal, s.ID, -s.XPAwarded)
	return err
}

func (svc *Service) TaskCompleted(ctx context.Context, usr user.User, t plan.Task) (int, error) {
	xp := TaskXP[t.Priority]
	if t.CompletedOnTime(usr.Location()) {
		xp += XPOnTimeBonus
	}
	if _, err := svc.award(ctx, usr, ReasonTask, t.ID, xp); err != nil {
		return 0, err
	}
	return xp, svc.evaluate(ctx, usr)
}

// award adds an XP event and levels the user up (or down) accordingly.
func (svc *Service) award(ctx context.Context, usr user.User, reason, refID string, amount int) (bool, error) {
	ev := XPEvent{
		ID:        uuid.New().String(),
		UserID:    usr.ID,
		Amount:    amount,
		Reason:    reason,
		RefID:     refID,
		CreatedAt: core.NowFunc().UTC(),
	}
	stats, added, err := svc.repo.AddXPEvent(ctx, ev)
	if err != nil {
		return false, errors.Wrap(err, "adding xp event")
	}
	if !added {
		return false, nil
	}

	level := LevelForXP(stats.XP)
	if level == stats.Level {
		return true, nil
	}
	if err = svc.repo.SetLevel(ctx, usr.ID, level); err != nil {
		return true, errors.Wrap(err, "setting level")
	}
	if level > stats.Level {
		err = svc.celebrate(ctx, usr, Celebration{
			Kind:    CelebrationLevelUp,
			Title:   fmt.Sprintf("Level %d!", level),
			Message: fmt.Sprintf("You reached level %d: %s.", level, LevelTitle(level)),
			Payload: map[string]interface{}{"level": level, "title": LevelTitle(level), "xp": stats.XP},
		})
	}
	return true, err
}

func (svc *Service) celebrate(ctx context.Context, usr user.User, c Celebration) error {
	c.ID = uuid.New().String()
	c.CreatedAt = core.NowFunc().UTC()
	if err := svc.queue.PushCelebration(ctx, usr.ID, c); err != nil {
		return errors.Wrap(err, "queueing celebration")
	}
	svc.publisher.Publish(usr.ID, core.NewEvent("celebration", c))
	return nil
}

func (svc *Service) dayFocus(ctx context.Context, usr user.User, day core.Date) (int, error) {
	sessions, err := svc.sessRepo.ListSessions(ctx, usr.ID, &session.Filter{From: &day, To: &day})
	if err != nil {
		return 0, errors.Wrap(err, "listing sessions")
	}
	var secs int
	for _, s := range sessions {
		secs += s.DurationSeconds
	}
	return secs, nil
}

// checkDailyGoal grants the daily goal bonus once per day.
func (svc *Service) checkDailyGoal(ctx context.Context, usr user.User, day core.Date) error {
	secs, err := svc.dayFocus(ctx, usr, day)
	if err != nil {
		return err
	}
	goal := usr.DailyGoal()
	if time.Duration(secs)*time.Second < goal {
		return nil
	}
	added, err := svc.award(ctx, usr, ReasonDailyGoal, day.String(), XPDailyGoal)
	if err != nil || !added {
		return err
	}
	return svc.celebrate(ctx, usr, Celebration{
		Kind:    CelebrationDailyGoal,
		Title:   "Daily goal reached",
		Message: fmt.Sprintf("You focused %s today. +%d XP", core.FormatDuration(time.Duration(secs)*time.Second), XPDailyGoal),
		Payload: map[string]interface{}{"day": day.String(), "focus_seconds": secs, "goal_seconds": int(goal / time.Second)},
	})
}

// activity loads what badges and streaks are computed on.
func (svc *Service) activity(ctx context.Context, usr user.User) (ActiveDays, Snapshot, error) {
	loc := usr.Location()
	sessions, err := svc.sessRepo.ListSessions(ctx, usr.ID, nil)
	if err != nil {
		return nil, Snapshot{}, errors.Wrap(err, "listing sessions")
	}
	tasks, err := svc.planRepo.ListTasks(ctx, usr.ID, &plan.TaskFilter{Status: plan.StatusDone, IncludeArchived: true}, nil)
	if err != nil {
		return nil, Snapshot{}, errors.Wrap(err, "listing tasks")
	}

	days := make(ActiveDays)
	focusByDay := make(map[core.Date]int)
	snap := Snapshot{Sessions: len(sessions), TasksDone: len(tasks)}
	for _, s := range sessions {
		focusByDay[s.Day] += s.DurationSeconds
		snap.TotalFocus += s.Duration()
		snap.Pomodoros += s.Pomodoros
		if s.Duration() > snap.LongestSession {
			snap.LongestSession = s.Duration()
		}
		start := s.StartedAt.In(loc)
		snap.EarlyBird = snap.EarlyBird || isEarlyBird(start)
		snap.NightOwl = snap.NightOwl || isNightOwl(start)
	}
	for day, secs := range focusByDay {
		if secs >= StreakMinSeconds {
			days[day] = true
		}
	}
	for _, t := range tasks {
		if t.CompletedAt != nil {
			days[core.DateOf(t.CompletedAt.In(loc))] = true
		}
	}
	_, snap.LongestStreak, _ = days.Streaks(core.Today(loc))
	return days, snap, nil
}

// StreakOf returns the streak figures of usr.
func (svc *Service) StreakOf(ctx context.Context, usr user.User) (Streak, error) {
	days, _, err := svc.activity(ctx, usr)
	if err != nil {
		return Streak{}, err
	}
	return streakFrom(days, usr), nil
}

func streakFrom(days ActiveDays, usr user.User) Streak {
	loc := usr.Location()
	today := core.Today(loc)
	since := today
	if !usr.CreatedAt.IsZero() {
		since = core.DateOf(usr.CreatedAt.In(loc))
	}
	current, longest, startedOn := days.Streaks(today)
	st := Streak{
		Current:     current,
		Longest:     longest,
		Consistency: days.Consistency(today, since, ConsistencyWindow),
		ActiveToday: days[today],
	}
	if current > 0 {
		st.StartedOn = startedOn.String()
	}
	return st
}

// evaluate unlocks newly earned badges and celebrates streak milestones.
func (svc *Service) evaluate(ctx context.Context, usr user.User) error {
	days, snap, err := svc.activity(ctx, usr)
	if err != nil {
		return err
	}
	unlocked, err := svc.unlockedBadges(ctx, usr)
	if err != nil {
		return err
	}

	now := core.NowFunc().UTC()
	for _, b := range Badges {
		if _, ok := unlocked[b.Key]; ok || !b.earned(snap) {
			continue
		}
		added, err := svc.repo.UnlockBadge(ctx, UnlockedBadge{UserID: usr.ID, Badge: b.Key, UnlockedAt: now})
		if err != nil {
			return errors.Wrap(err, "unlocking badge")
		}
		if !added {
			continue
		}
		if _, err = svc.award(ctx, usr, ReasonBadge, b.Key, b.XP); err != nil {
			return err
		}
		err = svc.celebrate(ctx, usr, Celebration{
			Kind:    CelebrationBadge,
			Title:   "Badge unlocked: " + b.Name,
			Message: fmt.Sprintf("%s. +%d XP", b.Description, b.XP),
			Payload: map[string]interface{}{"badge": b.Key, "xp": b.XP},
		})
		if err != nil {
			return err
		}
	}
	return svc.streakMilestone(ctx, usr, days)
}

// streakMilestone celebrates a milestone once per streak.
func (svc *Service) streakMilestone(ctx context.Context, usr user.User, days ActiveDays) error {
	current, _, startedOn := days.Streaks(core.Today(usr.Location()))
	if !isStreakMilestone(current) {
		return nil
	}
	added, err := svc.award(ctx, usr, ReasonStreak, fmt.Sprintf("%s:%d", startedOn, current), 0)
	if err != nil || !added {
		return err
	}
	return svc.celebrate(ctx, usr, Celebration{
		Kind:    CelebrationStreak,
		Title:   fmt.Sprintf("%d day streak!", current),
		Message: fmt.Sprintf("You have been studying %d days in a row.", current),
		Payload: map[string]interface{}{"streak": current},
	})
}

func (svc *Service) unlockedBadges(ctx context.Context, usr user.User) (map[string]UnlockedBadge, error) {
	badges, err := svc.repo.ListBadges(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing badges")
	}
	unlocked := make(map[string]UnlockedBadge, len(badges))
	for _, b := range badges {
		unlocked[b.Badge] = b
	}
	return unlocked, nil
}

// Badges returns the catalog with the unlocks of usr.
func (svc *Service) Badges(ctx context.Context, usr user.User) ([]BadgeStatus, error) {
	unlocked, err := svc.unlockedBadges(ctx, usr)
	if err != nil {
		return nil, err
	}
	statuses := make([]BadgeStatus, 0, len(Badges))
	for _, b := range Badges {
		bs := BadgeStatus{Badge: b}
		if ub, ok := unlocked[b.Key]; ok {
			at := ub.UnlockedAt
			bs.Unlocked = true
			bs.UnlockedAt = &at
		}
		statuses = append(statuses, bs)
	}
	return statuses, nil
}

func (svc *Service) Progress(ctx context.Context, usr user.User) (Progress, error) {
	stats, err := svc.repo.GetStats(ctx, usr.ID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "getting stats")
	}
	days, _, err := svc.activity(ctx, usr)
	if err != nil {
		return Progress{}, err
	}
	todaySecs, err := svc.dayFocus(ctx, usr, core.Today(usr.Location()))
	if err != nil {
		return Progress{}, err
	}
	unlocked, err := svc.unlockedBadges(ctx, usr)
	if err != nil {
		return Progress{}, err
	}
	pending, err := svc.queue.PendingCelebrations(ctx, usr.ID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "listing celebrations")
	}

	goalSecs := int(usr.DailyGoal() / time.Second)
	goalPct := float64(todaySecs) / float64(goalSecs) * 100
	if goalPct > 100 {
		goalPct = 100
	}
	return Progress{
		LevelInfo:        LevelInfoFor(stats.XP),
		Streak:           streakFrom(days, usr),
		TodayFocusSecs:   todaySecs,
		DailyGoalSecs:    goalSecs,
		DailyGoalPercent: core.Round(goalPct, 1),
		DailyGoalMet:     todaySecs >= goalSecs,
		BadgesUnlocked:   len(unlocked),
		BadgesTotal:      len(Badges),
		PendingCelebs:    len(pending),
	}, nil
}

func (svc *Service) Celebrations(ctx context.Context, usr user.User) ([]Celebration, error) {
	celebs, err := svc.queue.PendingCelebrations(ctx, usr.ID)
	return celebs, errors.Wrap(err, "listing celebrations")
}

func (svc *Service) AckCelebrations(ctx context.Context, usr user.User, ids ...string) error {
	return errors.Wrap(svc.queue.AckCelebrations(ctx, usr.ID, ids...), "acknowledging celebrations")
}

// RecomputeStats rebuilds the XP total and level of usr from the ledger.
func (svc *Service) RecomputeStats(ctx context.Context, usr user.User) (Stats, error) {
	xp, err := svc.repo.SumXP(ctx, usr.ID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "summing xp")
	}
	if xp < 0 {
		xp = 0
	}
	st := Stats{UserID: usr.ID, XP: xp, Level: LevelForXP(xp), UpdatedAt: core.NowFunc().UTC()}
	return st, errors.Wrap(svc.repo.SaveStats(ctx, st), "saving stats")
}

// Level returns the level figures of usr.
func (svc *Service) Level(ctx context.Context, usr user.User) (LevelInfo, error) {
	stats, err := svc.repo.GetStats(ctx, usr.ID)
	if err != nil {
		return LevelInfo{}, errors.Wrap(err, "getting stats")
	}
	return LevelInfoFor(stats.XP), nil
}
