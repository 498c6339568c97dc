package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/user"
	inmemdb "github.com/trezcool/soma/storage/database/inmem"
	"github.com/trezcool/soma/testutil"
)

type rewarderSpy struct {
	mu       sync.Mutex
	recorded [][]session.Session
	deleted  []string
}

func (r *rewarderSpy) SessionXP(s session.Session) int {
	return s.DurationSeconds / 60
}

func (r *rewarderSpy) SessionsRecorded(_ context.Context, _ user.User, sessions []session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, sessions)
	return nil
}

func (r *rewarderSpy) SessionDeleted(_ context.Context, _ user.User, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, s.ID)
	return nil
}

type fixture struct {
	svc      *session.Service
	planSvc  *plan.Service
	rewarder *rewarderSpy
	usr      user.User
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	validate, _ := testutil.NewValidator()
	planRepo := inmemdb.NewPlanRepository(db)
	rewarder := new(rewarderSpy)
	testutil.FreezeTime(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC))
	return fixture{
		svc:      session.NewService(inmemdb.NewSessionRepository(db), planRepo, rewarder, validate),
		planSvc:  plan.NewService(planRepo, nil, validate),
		rewarder: rewarder,
		usr:      testutil.CreateUser(t, inmemdb.NewUserRepository(db), "Ada", "ada", "ada@test.local", "", nil, true),
	}
}

func span(start time.Time, d time.Duration) []session.Segment {
	return []session.Segment{{Start: start, End: start.Add(d)}}
}

func TestService_Record(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	goal, err := f.planSvc.CreateNode(ctx, f.usr, plan.NewNode{Kind: plan.KindGoal, Title: "Maths"})
	require.NoError(t, err)
	tk, err := f.planSvc.CreateTask(ctx, f.usr, plan.NewTask{NodeID: goal.ID, Title: "Exercises"})
	require.NoError(t, err)

	t.Run("too short", func(t *testing.T) {
		sessions, err := f.svc.Record(ctx, f.usr, session.Recording{
			Segments: span(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), 59*time.Second),
		})
		require.NoError(t, err)
		assert.Empty(t, sessions)
		assert.Empty(t, f.rewarder.recorded)
	})

	t.Run("split across midnight", func(t *testing.T) {
		sessions, err := f.svc.Record(ctx, f.usr, session.Recording{
			TaskID:    tk.ID,
			Mode:      "pomodoro",
			Segments:  span(time.Date(2026, 3, 2, 23, 50, 0, 0, time.UTC), 25*time.Minute),
			Pomodoros: 1,
		})
		require.NoError(t, err)
		require.Len(t, sessions, 2)

		assert.Equal(t, core.NewDate(2026, 3, 2), sessions[0].Day)
		assert.Equal(t, 600, sessions[0].DurationSeconds)
		assert.Equal(t, 0, sessions[0].Pomodoros)
		assert.Equal(t, core.NewDate(2026, 3, 3), sessions[1].Day)
		assert.Equal(t, 900, sessions[1].DurationSeconds)
		assert.Equal(t, 1, sessions[1].Pomodoros)

		for _, s := range sessions {
			assert.Equal(t, session.SourceTimer, s.Source)
			assert.Equal(t, goal.ID, s.NodeID, "node taken from the task")
			assert.Equal(t, s.DurationSeconds/60, s.XPAwarded)
		}
		require.Len(t, f.rewarder.recorded, 1)
		assert.Len(t, f.rewarder.recorded[0], 2)
	})

	t.Run("vanished references are dropped", func(t *testing.T) {
		sessions, err := f.svc.Record(ctx, f.usr, session.Recording{
			TaskID:   "0b0b0b0b-0000-4000-8000-000000000000",
			Segments: span(time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), 5*time.Minute),
		})
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Empty(t, sessions[0].TaskID)
		assert.Empty(t, sessions[0].NodeID)
	})

	t.Run("list most recent first", func(t *testing.T) {
		day := core.NewDate(2026, 3, 3)
		sessions, err := f.svc.List(ctx, f.usr, &session.Filter{From: &day})
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.True(t, sessions[0].StartedAt.After(sessions[1].StartedAt))
	})
}

func TestService_LogManual(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sessions, err := f.svc.LogManual(ctx, f.usr, session.ManualSession{
		StartedAt:       time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC),
		DurationMinutes: 90,
		Note:            " library ",
	})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session.SourceManual, sessions[0].Source)
	assert.Equal(t, 5400, sessions[0].DurationSeconds)
	assert.Equal(t, "library", sessions[0].Note)

	t.Run("in the future", func(t *testing.T) {
		_, err := f.svc.LogManual(ctx, f.usr, session.ManualSession{
			StartedAt:       time.Date(2026, 3, 3, 11, 30, 0, 0, time.UTC),
			DurationMinutes: 60,
		})
		var verr *core.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := f.svc.LogManual(ctx, f.usr, session.ManualSession{
			StartedAt:       time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC),
			DurationMinutes: 30,
			TaskID:          "0b0b0b0b-0000-4000-8000-000000000000",
		})
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "task_id", verr.Fields[0].Field)
	})

	t.Run("out of bounds", func(t *testing.T) {
		_, err := f.svc.LogManual(ctx, f.usr, session.ManualSession{
			StartedAt:       time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
			DurationMinutes: 721,
		})
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, f.svc.Delete(ctx, f.usr, sessions[0].ID))
		assert.Equal(t, []string{sessions[0].ID}, f.rewarder.deleted)
		_, err := f.svc.Get(ctx, f.usr, sessions[0].ID)
		assert.Equal(t, session.ErrNotFound, err)
	})
}
