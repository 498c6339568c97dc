package plan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/user"
	inmemdb "github.com/trezcool/soma/storage/database/inmem"
	"github.com/trezcool/soma/testutil"
)

type rewarderSpy struct {
	mu    sync.Mutex
	tasks []string
}

func (r *rewarderSpy) TaskCompleted(_ context.Context, _ user.User, t plan.Task) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t.ID)
	return 10, nil
}

type fixture struct {
	svc      *plan.Service
	rewarder *rewarderSpy
	usr      user.User
	clock    *testutil.Clock
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	validate, _ := testutil.NewValidator()
	rewarder := new(rewarderSpy)
	return fixture{
		svc:      plan.NewService(inmemdb.NewPlanRepository(db), rewarder, validate),
		rewarder: rewarder,
		usr:      testutil.CreateUser(t, inmemdb.NewUserRepository(db), "Ada", "ada", "ada@test.local", "", nil, true),
		clock:    testutil.FreezeTime(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	}
}

func (f fixture) node(t *testing.T, kind plan.Kind, parentID, title string) plan.Node {
	t.Helper()
	n, err := f.svc.CreateNode(context.Background(), f.usr, plan.NewNode{Kind: kind, ParentID: parentID, Title: title})
	require.NoError(t, err)
	return n
}

func (f fixture) task(t *testing.T, nodeID, title string) plan.Task {
	t.Helper()
	tk, err := f.svc.CreateTask(context.Background(), f.usr, plan.NewTask{NodeID: nodeID, Title: title})
	require.NoError(t, err)
	return tk
}

func assertInvalidField(t *testing.T, err error, field string) {
	t.Helper()
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Fields)
	assert.Equal(t, field, verr.Fields[0].Field)
}

func TestService_CreateNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	project := f.node(t, plan.KindProject, "", "  Final exams ")
	assert.Equal(t, "Final exams", project.Title)
	goal := f.node(t, plan.KindGoal, project.ID, "Maths")
	f.node(t, plan.KindGoal, "", "Standalone goal")

	tests := []struct {
		name  string
		nn    plan.NewNode
		field string
	}{
		{"stream at root", plan.NewNode{Kind: plan.KindStream, Title: "x"}, "parent_id"},
		{"wrong parent kind", plan.NewNode{Kind: plan.KindSubject, ParentID: goal.ID, Title: "x"}, "parent_id"},
		{"project with parent", plan.NewNode{Kind: plan.KindProject, ParentID: goal.ID, Title: "x"}, "parent_id"},
		{"unknown parent", plan.NewNode{Kind: plan.KindStream, ParentID: "0b0b0b0b-0000-4000-8000-000000000000", Title: "x"}, "parent_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateNode(ctx, f.usr, tt.nn)
			assertInvalidField(t, err, tt.field)
		})
	}

	t.Run("invalid fields", func(t *testing.T) {
		_, err := f.svc.CreateNode(ctx, f.usr, plan.NewNode{Kind: "semester", Title: ""})
		assert.Error(t, err)
		_, err = f.svc.CreateNode(ctx, f.usr, plan.NewNode{Kind: plan.KindGoal, Title: "x", Color: "blue"})
		assert.Error(t, err)
	})

	t.Run("other users cannot see it", func(t *testing.T) {
		other := user.User{ID: "someone-else"}
		_, err := f.svc.GetNode(ctx, other, project.ID)
		assert.True(t, core.IsNotFound(err))
		_, err = f.svc.GetNode(ctx, f.usr, "not-a-uuid")
		assert.Equal(t, plan.ErrNodeNotFound, err)
	})
}

func TestService_UpdateNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	maths := f.node(t, plan.KindGoal, "", "Maths")
	physics := f.node(t, plan.KindGoal, "", "Physics")
	algebra := f.node(t, plan.KindStream, maths.ID, "Algebra")
	linear := f.node(t, plan.KindSubject, algebra.ID, "Linear algebra")

	title := "Algebra I"
	upd, err := f.svc.UpdateNode(ctx, f.usr, algebra.ID, plan.UpdateNode{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Algebra I", upd.Title)

	t.Run("move", func(t *testing.T) {
		upd, err := f.svc.UpdateNode(ctx, f.usr, algebra.ID, plan.UpdateNode{ParentID: &physics.ID})
		require.NoError(t, err)
		assert.Equal(t, physics.ID, upd.ParentID)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		_, err := f.svc.UpdateNode(ctx, f.usr, linear.ID, plan.UpdateNode{ParentID: &maths.ID})
		assertInvalidField(t, err, "parent_id")
	})

	t.Run("own parent", func(t *testing.T) {
		_, err := f.svc.UpdateNode(ctx, f.usr, algebra.ID, plan.UpdateNode{ParentID: &algebra.ID})
		assertInvalidField(t, err, "parent_id")
	})

	t.Run("clear target date", func(t *testing.T) {
		d := core.NewDate(2026, 6, 1)
		upd, err := f.svc.UpdateNode(ctx, f.usr, maths.ID, plan.UpdateNode{TargetDate: &d})
		require.NoError(t, err)
		require.NotNil(t, upd.TargetDate)
		upd, err = f.svc.UpdateNode(ctx, f.usr, maths.ID, plan.UpdateNode{ClearTargetDate: true})
		require.NoError(t, err)
		assert.Nil(t, upd.TargetDate)
	})
}

func TestService_ArchiveNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	maths := f.node(t, plan.KindGoal, "", "Maths")
	algebra := f.node(t, plan.KindStream, maths.ID, "Algebra")
	geometry := f.node(t, plan.KindStream, maths.ID, "Geometry")
	t1 := f.task(t, algebra.ID, "Exercises 1-10")
	t2 := f.task(t, geometry.ID, "Proofs")

	// archived on its own before the goal
	_, err := f.svc.ArchiveNode(ctx, f.usr, geometry.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	archived, err := f.svc.ArchiveNode(ctx, f.usr, maths.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)

	active, err := f.svc.ListNodes(ctx, f.usr, &plan.NodeFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, active)

	tk, err := f.svc.GetTask(ctx, f.usr, t1.ID)
	require.NoError(t, err)
	assert.True(t, tk.IsArchived)
	require.NotNil(t, tk.ArchivedAt)
	assert.True(t, tk.ArchivedAt.Equal(*archived.ArchivedAt))

	t.Run("idempotent", func(t *testing.T) {
		again, err := f.svc.ArchiveNode(ctx, f.usr, maths.ID)
		require.NoError(t, err)
		assert.True(t, again.ArchivedAt.Equal(*archived.ArchivedAt))
	})

	t.Run("no children under archived parent", func(t *testing.T) {
		_, err := f.svc.CreateNode(ctx, f.usr, plan.NewNode{Kind: plan.KindStream, ParentID: maths.ID, Title: "Calculus"})
		assertInvalidField(t, err, "parent_id")
		_, err = f.svc.CreateTask(ctx, f.usr, plan.NewTask{NodeID: algebra.ID, Title: "x"})
		assertInvalidField(t, err, "node_id")
	})

	t.Run("unarchive child of archived parent", func(t *testing.T) {
		_, err := f.svc.UnarchiveNode(ctx, f.usr, algebra.ID)
		var verr *core.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("unarchive restores what was archived together", func(t *testing.T) {
		restored, err := f.svc.UnarchiveNode(ctx, f.usr, maths.ID)
		require.NoError(t, err)
		assert.False(t, restored.IsArchived)

		n, err := f.svc.GetNode(ctx, f.usr, algebra.ID)
		require.NoError(t, err)
		assert.False(t, n.IsArchived)
		tk, err := f.svc.GetTask(ctx, f.usr, t1.ID)
		require.NoError(t, err)
		assert.False(t, tk.IsArchived)

		n, err = f.svc.GetNode(ctx, f.usr, geometry.ID)
		require.NoError(t, err)
		assert.True(t, n.IsArchived, "archived separately")
		tk, err = f.svc.GetTask(ctx, f.usr, t2.ID)
		require.NoError(t, err)
		assert.True(t, tk.IsArchived)
	})
}

func TestService_DeleteNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	maths := f.node(t, plan.KindGoal, "", "Maths")
	algebra := f.node(t, plan.KindStream, maths.ID, "Algebra")
	tk := f.task(t, algebra.ID, "Exercises")
	inbox := f.task(t, "", "Buy a calculator")

	require.NoError(t, f.svc.DeleteNode(ctx, f.usr, maths.ID))
	_, err := f.svc.GetNode(ctx, f.usr, algebra.ID)
	assert.Equal(t, plan.ErrNodeNotFound, err)
	_, err = f.svc.GetTask(ctx, f.usr, tk.ID)
	assert.Equal(t, plan.ErrTaskNotFound, err)
	_, err = f.svc.GetTask(ctx, f.usr, inbox.ID)
	assert.NoError(t, err)
}

func TestService_Tasks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	maths := f.node(t, plan.KindGoal, "", "Maths")
	algebra := f.node(t, plan.KindStream, maths.ID, "Algebra")
	tk := f.task(t, algebra.ID, "Exercises")
	assert.Equal(t, plan.StatusTodo, tk.Status)
	assert.Equal(t, plan.PriorityMedium, tk.Priority)

	t.Run("complete rewards once", func(t *testing.T) {
		done, err := f.svc.CompleteTask(ctx, f.usr, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, plan.StatusDone, done.Status)
		require.NotNil(t, done.CompletedAt)
		assert.True(t, done.XPAwarded)

		reopened, err := f.svc.ReopenTask(ctx, f.usr, tk.ID)
		require.NoError(t, err)
		assert.Nil(t, reopened.CompletedAt)

		_, err = f.svc.CompleteTask(ctx, f.usr, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{tk.ID}, f.rewarder.tasks)
	})

	t.Run("created done", func(t *testing.T) {
		created, err := f.svc.CreateTask(ctx, f.usr, plan.NewTask{Title: "Already done", Status: plan.StatusDone})
		require.NoError(t, err)
		assert.True(t, created.XPAwarded)
		assert.Len(t, f.rewarder.tasks, 2)
	})

	t.Run("list with descendants", func(t *testing.T) {
		f.task(t, maths.ID, "Revise")
		tasks, err := f.svc.ListTasks(ctx, f.usr, &plan.TaskFilter{NodeID: maths.ID, IncludeDescendants: true}, nil)
		require.NoError(t, err)
		assert.Len(t, tasks, 2)

		tasks, err = f.svc.ListTasks(ctx, f.usr, &plan.TaskFilter{NodeID: maths.ID}, nil)
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	})

	t.Run("overdue", func(t *testing.T) {
		yesterday := core.NewDate(2026, 3, 1)
		late := f.task(t, "", "Late")
		_, err := f.svc.UpdateTask(ctx, f.usr, late.ID, plan.UpdateTask{DueDate: &yesterday})
		require.NoError(t, err)

		tasks, err := f.svc.ListTasks(ctx, f.usr, &plan.TaskFilter{Overdue: true}, nil)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, late.ID, tasks[0].ID)
	})

	t.Run("unarchive under archived node", func(t *testing.T) {
		_, err := f.svc.ArchiveNode(ctx, f.usr, algebra.ID)
		require.NoError(t, err)
		_, err = f.svc.UnarchiveTask(ctx, f.usr, tk.ID)
		var verr *core.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestService_Tree(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	maths := f.node(t, plan.KindGoal, "", "Maths")
	algebra := f.node(t, plan.KindStream, maths.ID, "Algebra")
	f.task(t, algebra.ID, "a")
	done := f.task(t, algebra.ID, "b")
	_, err := f.svc.CompleteTask(ctx, f.usr, done.ID)
	require.NoError(t, err)

	tree, err := f.svc.Tree(ctx, f.usr, maths.ID, false)
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, 50.0, tree.Progress)
	assert.Equal(t, 2, tree.Children[0].TasksTotal)

	ancestors, err := f.svc.Ancestors(ctx, f.usr, algebra.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 1)
	assert.Equal(t, maths.ID, ancestors[0].ID)
}
