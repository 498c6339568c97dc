package syllabus

import (
	"context"
	"io/fs"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/user"
)

type Service struct {
	plan   *plan.Service
	schema *jsonschema.Schema
}

func NewService(planSvc *plan.Service, fsys fs.FS) (*Service, error) {
	sch, err := CompileSchema(fsys)
	if err != nil {
		return nil, err
	}
	return &Service{plan: planSvc, schema: sch}, nil
}

// Result summarizes an import.
type Result struct {
	DryRun    bool              `json:"dry_run"`
	Counts    map[plan.Kind]int `json:"counts"`
	ProjectID string            `json:"project_id,omitempty"`
	GoalID    string            `json:"goal_id,omitempty"`
}

// Validate parses and checks a document without touching the store.
func (svc *Service) Validate(data []byte, format Format) (Document, error) {
	doc, issues, err := Parse(data, format, svc.schema)
	if err != nil {
		return Document{}, err
	}
	if len(issues) > 0 {
		return Document{}, IssuesError(issues)
	}
	return doc, nil
}

// Import creates the project (reusing an active one with the same title), the goal and its
// descendants in one transaction. A dry run only validates and counts.
func (svc *Service) Import(ctx context.Context, usr user.User, data []byte, format Format, dryRun bool) (Result, error) {
	doc, err := svc.Validate(data, format)
	if err != nil {
		return Result{}, err
	}
	res := Result{DryRun: dryRun, Counts: Counts(doc)}
	if dryRun {
		return res, nil
	}

	now := core.NowFunc().UTC()
	var nodes []plan.Node
	newNode := func(kind plan.Kind, parentID, title, desc string, position int) plan.Node {
		n := plan.Node{
			ID:          uuid.New().String(),
			UserID:      usr.ID,
			Kind:        kind,
			ParentID:    parentID,
			Title:       strings.TrimSpace(title),
			Description: strings.TrimSpace(desc),
			Position:    position,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return n
	}

	var parentID string
	if doc.Project != "" {
		project, found, err := svc.findProject(ctx, usr, doc.Project)
		if err != nil {
			return Result{}, err
		}
		if !found {
			project = newNode(plan.KindProject, "", doc.Project, "", 0)
			nodes = append(nodes, project)
		} else {
			res.Counts[plan.KindProject] = 0
		}
		parentID = project.ID
		res.ProjectID = project.ID
	}

	goal := newNode(plan.KindGoal, parentID, doc.Goal.Title, doc.Goal.Description, 0)
	goal.Color = strings.ToLower(doc.Goal.Color)
	if doc.Goal.TargetDate != "" {
		d, _ := core.ParseDate(doc.Goal.TargetDate) // checked by Validate
		goal.TargetDate = &d
	}
	nodes = append(nodes, goal)
	res.GoalID = goal.ID

	var walk func(parentID string, items []Item, depth int)
	walk = func(parentID string, items []Item, depth int) {
		for i, item := range items {
			n := newNode(itemKinds[depth-1], parentID, item.Title, item.Description, i)
			if item.Weightage != nil {
				n.Weightage = *item.Weightage
			}
			nodes = append(nodes, n)
			walk(n.ID, item.Children, depth+1)
		}
	}
	walk(goal.ID, doc.Goal.Children, 1)

	if err = svc.plan.Repository().CreateNodes(ctx, nodes...); err != nil {
		return Result{}, errors.Wrap(err, "creating nodes")
	}
	return res, nil
}

func (svc *Service) findProject(ctx context.Context, usr user.User, title string) (plan.Node, bool, error) {
	projects, err := svc.plan.ListNodes(ctx, usr, &plan.NodeFilter{Kind: plan.KindProject, RootOnly: true}, nil)
	if err != nil {
		return plan.Node{}, false, err
	}
	for _, p := range projects {
		if strings.EqualFold(p.Title, strings.TrimSpace(title)) {
			return p, true, nil
		}
	}
	return plan.Node{}, false, nil
}

// Export writes the active subtree of a goal as a document.
func (svc *Service) Export(ctx context.Context, usr user.User, goalID string, format Format) ([]byte, error) {
	goal, err := svc.plan.GetNode(ctx, usr, goalID)
	if err != nil {
		return nil, err
	}
	if goal.Kind != plan.KindGoal {
		msg := "only goals can be exported"
		return nil, core.NewValidationError(errors.New(msg))
	}
	idx, err := svc.plan.Index(ctx, usr)
	if err != nil {
		return nil, err
	}

	doc := Document{
		Version: CurrentVersion,
		Goal: Goal{
			Title:       goal.Title,
			Description: goal.Description,
			Color:       goal.Color,
		},
	}
	if goal.TargetDate != nil {
		doc.Goal.TargetDate = goal.TargetDate.String()
	}
	if project, ok := idx.Get(goal.ParentID); ok {
		doc.Project = project.Title
	}

	var items func(parentID string) []Item
	items = func(parentID string) []Item {
		var out []Item
		for _, n := range idx.Children(parentID) {
			if n.IsArchived {
				continue
			}
			item := Item{Title: n.Title, Description: n.Description, Children: items(n.ID)}
			if n.Weightage > 0 {
				w := n.Weightage
				item.Weightage = &w
			}
			out = append(out, item)
		}
		return out
	}
	doc.Goal.Children = items(goal.ID)
	return Encode(doc, format)
}
