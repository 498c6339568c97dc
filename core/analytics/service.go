package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/user"
)

// StreakSource provides streak figures.
type StreakSource interface {
	StreakOf(ctx context.Context, usr user.User) (gamification.Streak, error)
	Level(ctx context.Context, usr user.User) (gamification.LevelInfo, error)
}

type Service struct {
	planRepo plan.Repository
	sessRepo session.Repository
	streaks  StreakSource
	users    user.Repository
	mailSvc  core.EmailService
	logger   core.Logger
}

func NewService(
	planRepo plan.Repository,
	sessRepo session.Repository,
	streaks StreakSource,
	users user.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		planRepo: planRepo,
		sessRepo: sessRepo,
		streaks:  streaks,
		users:    users,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

// DashboardQuery defaults to the last 30 days grouped by goal.
type DashboardQuery struct {
	From    *core.Date `query:"from"`
	To      *core.Date `query:"to"`
	GroupBy plan.Kind  `query:"group_by"`
}

const (
	defaultDashboardDays = 30
	maxDashboardDays     = 366
)

func invalidRange(msg string) error {
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: "from", Error: msg})
}

// dateRange resolves optional bounds to an inclusive range of at most maxDays.
func dateRange(from, to *core.Date, loc *time.Location, defaultDays, maxDays int) (core.Date, core.Date, error) {
	end := core.Today(loc)
	if to != nil {
		end = *to
	}
	start := end.AddDays(-(defaultDays - 1))
	if from != nil {
		start = *from
	}
	if start.After(end) {
		return core.Date{}, core.Date{}, invalidRange("from must not be after to")
	}
	if days := start.DaysUntil(end) + 1; days > maxDays {
		return core.Date{}, core.Date{}, invalidRange(fmt.Sprintf("the range cannot exceed %d days", maxDays))
	}
	return start, end, nil
}

func (svc *Service) completedTasks(ctx context.Context, usr user.User, from, to core.Date) ([]plan.Task, error) {
	loc := usr.Location()
	tasks, err := svc.planRepo.ListTasks(ctx, usr.ID, &plan.TaskFilter{
		Status:          plan.StatusDone,
		IncludeArchived: true,
		CompletedFrom:   from.In(loc).UTC(),
		CompletedTo:     to.AddDays(1).In(loc).UTC(),
	}, nil)
	return tasks, errors.Wrap(err, "listing completed tasks")
}

func (svc *Service) Dashboard(ctx context.Context, usr user.User, q DashboardQuery) (Dashboard, error) {
	loc := usr.Location()
	from, to, err := dateRange(q.From, q.To, loc, defaultDashboardDays, maxDashboardDays)
	if err != nil {
		return Dashboard{}, err
	}
	if q.GroupBy == "" {
		q.GroupBy = plan.KindGoal
	}
	if !q.GroupBy.Valid() {
		msg := "unknown node kind"
		return Dashboard{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "group_by", Error: msg})
	}

	var (
		sessions []session.Session
		done     []plan.Task
		due      []plan.Task
		idx      *plan.Index
		streak   gamification.Streak
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = svc.sessRepo.ListSessions(gctx, usr.ID, &session.Filter{From: &from, To: &to})
		return errors.Wrap(err, "listing sessions")
	})
	g.Go(func() error {
		var err error
		done, err = svc.completedTasks(gctx, usr, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		due, err = svc.planRepo.ListTasks(gctx, usr.ID, &plan.TaskFilter{DueFrom: &from, DueTo: &to, IncludeArchived: true}, nil)
		return errors.Wrap(err, "listing due tasks")
	})
	g.Go(func() error {
		nodes, err := svc.planRepo.ListNodes(gctx, usr.ID, &plan.NodeFilter{IncludeArchived: true}, nil)
		if err != nil {
			return errors.Wrap(err, "listing nodes")
		}
		idx = plan.NewIndex(nodes)
		return nil
	})
	g.Go(func() error {
		var err error
		streak, err = svc.streaks.StreakOf(gctx, usr)
		return errors.Wrap(err, "computing streak")
	})
	if err = g.Wait(); err != nil {
		return Dashboard{}, err
	}

	dash := Dashboard{
		From:          from,
		To:            to,
		GroupBy:       q.GroupBy,
		Sessions:      len(sessions),
		CurrentStreak: streak.Current,
		LongestStreak: streak.Longest,
		Consistency:   streak.Consistency,
	}

	daily := zeroDays(from, to)
	pos := func(d core.Date) (int, bool) {
		i := from.DaysUntil(d)
		return i, i >= 0 && i < len(daily)
	}
	byNode := make(map[string]*NodeShare)
	for _, s := range sessions {
		dash.TotalFocusSeconds += s.DurationSeconds
		if i, ok := pos(s.Day); ok {
			daily[i].FocusSeconds += s.DurationSeconds
			daily[i].Sessions++
		}
		spreadOverHours(&dash.HourlyFocusSeconds, s, loc)

		key, share := UnassignedBucket, NodeShare{NodeID: "", Title: "Unassigned"}
		if n, ok := idx.AncestorOfKind(s.NodeID, q.GroupBy); ok {
			key, share = n.ID, NodeShare{NodeID: n.ID, Title: n.Title, Kind: n.Kind, Color: n.Color}
		}
		if _, ok := byNode[key]; !ok {
			byNode[key] = &share
		}
		byNode[key].FocusSeconds += s.DurationSeconds
	}
	for _, t := range done {
		if i, ok := pos(core.DateOf(t.CompletedAt.In(loc))); ok {
			daily[i].TasksCompleted++
		}
	}
	dash.TasksCompleted = len(done)
	dash.TasksDue = len(due)
	if len(due) > 0 {
		var dueDone int
		for _, t := range due {
			if t.Status == plan.StatusDone {
				dueDone++
			}
		}
		dash.CompletionRate = core.Round(float64(dueDone)/float64(len(due))*100, 1)
	}
	if len(sessions) > 0 {
		dash.AverageSessionSeconds = dash.TotalFocusSeconds / len(sessions)
	}
	dash.TotalFocus = core.FormatDuration(time.Duration(dash.TotalFocusSeconds) * time.Second)
	dash.Daily = daily

	for i := range daily {
		if daily[i].FocusSeconds > 0 && (dash.BestDay == nil || daily[i].FocusSeconds > dash.BestDay.FocusSeconds) {
			best := daily[i]
			dash.BestDay = &best
		}
	}

	dash.ByNode = make([]NodeShare, 0, len(byNode))
	for _, share := range byNode {
		if dash.TotalFocusSeconds > 0 {
			share.Percent = core.Round(float64(share.FocusSeconds)/float64(dash.TotalFocusSeconds)*100, 1)
		}
		dash.ByNode = append(dash.ByNode, *share)
	}
	sort.Slice(dash.ByNode, func(i, j int) bool {
		if dash.ByNode[i].FocusSeconds != dash.ByNode[j].FocusSeconds {
			return dash.ByNode[i].FocusSeconds > dash.ByNode[j].FocusSeconds
		}
		return dash.ByNode[i].Title < dash.ByNode[j].Title
	})
	return dash, nil
}

func zeroDays(from, to core.Date) []DayPoint {
	days := make([]DayPoint, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		days = append(days, DayPoint{Day: d})
	}
	return days
}

// spreadOverHours distributes the focus time of s over the local hours between its start and end.
func spreadOverHours(hours *[24]int, s session.Session, loc *time.Location) {
	start, end := s.StartedAt.In(loc), s.EndedAt.In(loc)
	span := end.Sub(start)
	if span <= 0 {
		hours[start.Hour()] += s.DurationSeconds
		return
	}
	var given int
	for cur := start; cur.Before(end); {
		next := time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour()+1, 0, 0, 0, loc)
		if !next.After(cur) {
			next = cur.Add(time.Hour)
		}
		if next.After(end) {
			next = end
		}
		share := int(float64(s.DurationSeconds) * float64(next.Sub(cur)) / float64(span))
		hours[cur.Hour()] += share
		given += share
		cur = next
	}
	hours[end.Add(-time.Nanosecond).Hour()] += s.DurationSeconds - given // rounding remainder
}

// Weekly compares the Monday-start week holding `date` with the previous one.
func (svc *Service) Weekly(ctx context.Context, usr user.User, date core.Date) (Weekly, error) {
	loc := usr.Location()
	weekStart := core.DateOf(core.StartOfWeek(date.In(loc), loc))
	prevStart := weekStart.AddDays(-7)
	weekEnd := weekStart.AddDays(6)

	var (
		sessions []session.Session
		done     []plan.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = svc.sessRepo.ListSessions(gctx, usr.ID, &session.Filter{From: &prevStart, To: &weekEnd})
		return errors.Wrap(err, "listing sessions")
	})
	g.Go(func() error {
		var err error
		done, err = svc.completedTasks(gctx, usr, prevStart, weekEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		return Weekly{}, err
	}

	var curSecs, prevSecs int
	w := Weekly{WeekStart: weekStart, WeekEnd: weekEnd}
	for _, s := range sessions {
		if s.Day.Before(weekStart) {
			prevSecs += s.DurationSeconds
		} else {
			curSecs += s.DurationSeconds
		}
	}
	for _, t := range done {
		if core.DateOf(t.CompletedAt.In(loc)).Before(weekStart) {
			w.PreviousTasksCompleted++
		} else {
			w.TasksCompleted++
		}
	}
	w.FocusMinutes = curSecs / 60
	w.PreviousFocusMinutes = prevSecs / 60
	w.FocusDeltaPercent = DeltaPercent(w.PreviousFocusMinutes, w.FocusMinutes)
	w.TasksDeltaPercent = DeltaPercent(w.PreviousTasksCompleted, w.TasksCompleted)
	return w, nil
}

// Calendar returns one entry per day between from and to (inclusive, at most MaxCalendarDays).
func (svc *Service) Calendar(ctx context.Context, usr user.User, from, to *core.Date) ([]CalendarDay, error) {
	loc := usr.Location()
	start, end, err := dateRange(from, to, loc, 7*5, MaxCalendarDays)
	if err != nil {
		return nil, err
	}

	var (
		sessions []session.Session
		done     []plan.Task
		due      []plan.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = svc.sessRepo.ListSessions(gctx, usr.ID, &session.Filter{From: &start, To: &end})
		return errors.Wrap(err, "listing sessions")
	})
	g.Go(func() error {
		var err error
		done, err = svc.completedTasks(gctx, usr, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		due, err = svc.planRepo.ListTasks(gctx, usr.ID, &plan.TaskFilter{DueFrom: &start, DueTo: &end}, nil)
		return errors.Wrap(err, "listing due tasks")
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}

	days := make([]CalendarDay, 0, start.DaysUntil(end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, CalendarDay{Day: d, TasksDue: []TaskRef{}, TasksCompleted: []TaskRef{}})
	}
	at := func(d core.Date) *CalendarDay {
		if i := start.DaysUntil(d); i >= 0 && i < len(days) {
			return &days[i]
		}
		return nil
	}
	for _, s := range sessions {
		if day := at(s.Day); day != nil {
			day.FocusSeconds += s.DurationSeconds
			day.Sessions++
		}
	}
	for _, t := range due {
		if day := at(*t.DueDate); day != nil {
			day.TasksDue = append(day.TasksDue, taskRef(t))
		}
	}
	for _, t := range done {
		if day := at(core.DateOf(t.CompletedAt.In(loc))); day != nil {
			day.TasksCompleted = append(day.TasksCompleted, taskRef(t))
		}
	}
	return days, nil
}

func taskRef(t plan.Task) TaskRef {
	return TaskRef{ID: t.ID, Title: t.Title, Status: t.Status, Priority: t.Priority}
}
