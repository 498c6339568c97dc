package syllabus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/syllabus"
	"github.com/trezcool/soma/core/user"
	appfs "github.com/trezcool/soma/fs"
	inmemdb "github.com/trezcool/soma/storage/database/inmem"
	"github.com/trezcool/soma/testutil"
)

const finals = `
project: School
goal:
  title: Finals
  target_date: "2026-06-01"
  children:
    - title: Science
      children:
        - title: Physics
          weightage: 60
          children:
            - title: Mechanics
            - title: Optics
        - title: Chemistry
          weightage: 40
`

func setup(t *testing.T) (*syllabus.Service, *plan.Service, user.User) {
	db := inmemdb.Open()
	validate, _ := testutil.NewValidator()
	testutil.FreezeTime(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	planSvc := plan.NewService(inmemdb.NewPlanRepository(db), nil, validate)
	svc, err := syllabus.NewService(planSvc, appfs.FS)
	require.NoError(t, err)
	usr := testutil.CreateUser(t, inmemdb.NewUserRepository(db), "Ada", "ada", "ada@test.local", "", nil, true)
	return svc, planSvc, usr
}

func TestService_Import(t *testing.T) {
	svc, planSvc, usr := setup(t)
	ctx := context.Background()

	t.Run("dry run", func(t *testing.T) {
		res, err := svc.Import(ctx, usr, []byte(finals), syllabus.FormatYAML, true)
		require.NoError(t, err)
		assert.True(t, res.DryRun)
		assert.Empty(t, res.GoalID)
		assert.Equal(t, map[plan.Kind]int{
			plan.KindProject: 1,
			plan.KindGoal:    1,
			plan.KindStream:  1,
			plan.KindSubject: 2,
			plan.KindChapter: 2,
		}, res.Counts)

		nodes, err := planSvc.ListNodes(ctx, usr, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})

	res, err := svc.Import(ctx, usr, []byte(finals), syllabus.FormatYAML, false)
	require.NoError(t, err)
	require.NotEmpty(t, res.GoalID)

	goal, err := planSvc.GetNode(ctx, usr, res.GoalID)
	require.NoError(t, err)
	assert.Equal(t, res.ProjectID, goal.ParentID)
	require.NotNil(t, goal.TargetDate)
	assert.Equal(t, "2026-06-01", goal.TargetDate.String())

	subjects, err := planSvc.ListNodes(ctx, usr, &plan.NodeFilter{Kind: plan.KindSubject}, []core.DBOrdering{{Field: "position", Ascending: true}})
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "Physics", subjects[0].Title)
	assert.Equal(t, 60.0, subjects[0].Weightage)
	assert.Equal(t, 1, subjects[1].Position)

	t.Run("reuses the project", func(t *testing.T) {
		again, err := svc.Import(ctx, usr, []byte(finals), syllabus.FormatYAML, false)
		require.NoError(t, err)
		assert.Equal(t, res.ProjectID, again.ProjectID)
		assert.Zero(t, again.Counts[plan.KindProject])
		assert.NotEqual(t, res.GoalID, again.GoalID)

		projects, err := planSvc.ListNodes(ctx, usr, &plan.NodeFilter{Kind: plan.KindProject}, nil)
		require.NoError(t, err)
		assert.Len(t, projects, 1)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := svc.Import(ctx, usr, []byte(`{"goal": {"title": "Finals", "children": [{"title": "A", "weightage": 50}]}}`), syllabus.FormatJSON, true)
		require.Error(t, err)
		verr, ok := err.(*core.ValidationError)
		require.True(t, ok)
		require.Len(t, verr.Fields, 1)
		assert.Equal(t, "goal.children", verr.Fields[0].Field)
	})
}

func TestService_Export(t *testing.T) {
	svc, planSvc, usr := setup(t)
	ctx := context.Background()

	res, err := svc.Import(ctx, usr, []byte(finals), syllabus.FormatYAML, false)
	require.NoError(t, err)

	optics, err := planSvc.ListNodes(ctx, usr, &plan.NodeFilter{Kind: plan.KindChapter, Search: "optics"}, nil)
	require.NoError(t, err)
	require.Len(t, optics, 1)
	_, err = planSvc.ArchiveNode(ctx, usr, optics[0].ID)
	require.NoError(t, err)

	for _, format := range []syllabus.Format{syllabus.FormatJSON, syllabus.FormatYAML, syllabus.FormatTOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := svc.Export(ctx, usr, res.GoalID, format)
			require.NoError(t, err)

			doc, err := svc.Validate(data, format)
			require.NoError(t, err)
			assert.Equal(t, syllabus.CurrentVersion, doc.Version)
			assert.Equal(t, "School", doc.Project)
			assert.Equal(t, "2026-06-01", doc.Goal.TargetDate)

			physics := doc.Goal.Children[0].Children[0]
			assert.Equal(t, 60.0, *physics.Weightage)
			require.Len(t, physics.Children, 1, "archived chapters are left out")
			assert.Equal(t, "Mechanics", physics.Children[0].Title)
			assert.Nil(t, physics.Children[0].Weightage)
		})
	}

	t.Run("goals only", func(t *testing.T) {
		_, err := svc.Export(ctx, usr, res.ProjectID, syllabus.FormatJSON)
		assert.IsType(t, &core.ValidationError{}, err)
	})
}
