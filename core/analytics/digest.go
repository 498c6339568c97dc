package analytics

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/user"
)

// DigestData feeds the weekly_digest email template.
type DigestData struct {
	Name           string
	WeekStart      string
	WeekEnd        string
	Focus          string
	DeltaText      string
	TasksCompleted int
	CurrentStreak  int
	Level          int
	LevelTitle     string
	XP             int
}

// WeeklyDigest summarizes the last full week before `now` for usr.
func (svc *Service) WeeklyDigest(ctx context.Context, usr user.User, now time.Time) (DigestData, error) {
	lastWeek := core.DateOf(now.In(usr.Location())).AddDays(-7)
	week, err := svc.Weekly(ctx, usr, lastWeek)
	if err != nil {
		return DigestData{}, err
	}
	streak, err := svc.streaks.StreakOf(ctx, usr)
	if err != nil {
		return DigestData{}, errors.Wrap(err, "computing streak")
	}
	lvl, err := svc.streaks.Level(ctx, usr)
	if err != nil {
		return DigestData{}, err
	}

	name := usr.Name
	if name == "" {
		name = usr.Username
	}
	return DigestData{
		Name:           name,
		WeekStart:      week.WeekStart.String(),
		WeekEnd:        week.WeekEnd.String(),
		Focus:          core.FormatDuration(time.Duration(week.FocusMinutes) * time.Minute),
		DeltaText:      deltaText(week.FocusDeltaPercent),
		TasksCompleted: week.TasksCompleted,
		CurrentStreak:  streak.Current,
		Level:          lvl.Level,
		LevelTitle:     lvl.Title,
		XP:             lvl.XP,
	}, nil
}

func deltaText(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("+%.1f%%", pct)
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// SendWeeklyDigests emails the weekly digest to every active user who opted in, returning how many were queued.
// A failure for one user is logged and does not stop the others.
func (svc *Service) SendWeeklyDigests(ctx context.Context) (int, error) {
	active := true
	users, err := svc.users.QueryUsers(ctx, &user.QueryFilter{IsActive: &active}, nil)
	if err != nil {
		return 0, errors.Wrap(err, "querying users")
	}

	now := core.NowFunc()
	var msgs []*core.EmailMessage
	for _, usr := range users {
		if !usr.WeeklyDigest || usr.Email == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return len(msgs), err
		}
		data, err := svc.WeeklyDigest(ctx, usr, now)
		if err != nil {
			svc.logger.Error(err.Error(), err, usr)
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Your week in review",
			TemplateName: "weekly_digest",
			TemplateData: data,
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
	return len(msgs), nil
}
