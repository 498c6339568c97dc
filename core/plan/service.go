package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/user"
)

var (
	// errors
	ErrNodeNotFound = core.NewNotFoundError("node not found")
	ErrTaskNotFound = core.NewNotFoundError("task not found")
)

var (
	NodeOrderingColumns = map[string]string{
		"title":       "title",
		"kind":        "kind",
		"position":    "position",
		"weightage":   "weightage",
		"target_date": "target_date",
		"created_at":  "created_at",
		"updated_at":  "updated_at",
	}
	TaskOrderingColumns = map[string]string{
		"title":        "title",
		"status":       "status",
		"priority":     "priority",
		"due_date":     "due_date",
		"created_at":   "created_at",
		"updated_at":   "updated_at",
		"completed_at": "completed_at",
	}
)

type (
	// Repository scopes every read and write by user id.
	Repository interface {
		// CreateNodes inserts all nodes in one transaction.
		CreateNodes(ctx context.Context, nodes ...Node) error
		GetNode(ctx context.Context, userID, id string) (Node, error)
		ListNodes(ctx context.Context, userID string, filter *NodeFilter, ordering []core.DBOrdering) ([]Node, error)
		UpdateNode(ctx context.Context, n Node) (Node, error)
		// DeleteNodes removes the nodes and every task attached to them.
		DeleteNodes(ctx context.Context, userID string, ids ...string) error
		// SetArchived archives (at != nil) the active nodes and tasks attached to them in one transaction.
		// Unarchiving (at == nil) restores the nodes and tasks archived at the same instant as nodeIDs[0].
		SetArchived(ctx context.Context, userID string, nodeIDs []string, at *time.Time) error

		CreateTask(ctx context.Context, t Task) (Task, error)
		GetTask(ctx context.Context, userID, id string) (Task, error)
		ListTasks(ctx context.Context, userID string, filter *TaskFilter, ordering []core.DBOrdering) ([]Task, error)
		UpdateTask(ctx context.Context, t Task) (Task, error)
		DeleteTask(ctx context.Context, userID, id string) error
	}

	// Rewarder grants the task completion reward.
	Rewarder interface {
		TaskCompleted(ctx context.Context, usr user.User, t Task) (xp int, err error)
	}

	Service struct {
		repo     Repository
		rewarder Rewarder
		validate *validator.Validate
	}
)

func NewService(repo Repository, rewarder Rewarder, validate *validator.Validate) *Service {
	return &Service{
		repo:     repo,
		rewarder: rewarder,
		validate: validate,
	}
}

// Repository exposes the underlying store to the import service.
func (svc *Service) Repository() Repository {
	return svc.repo
}

func invalidField(field, msg string) error {
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: field, Error: msg})
}

// Nodes

// Index loads every node of usr, archived included.
func (svc *Service) Index(ctx context.Context, usr user.User) (*Index, error) {
	nodes, err := svc.repo.ListNodes(ctx, usr.ID, &NodeFilter{IncludeArchived: true}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing nodes")
	}
	return NewIndex(nodes), nil
}

// CheckParent applies the hierarchy rules to a node of kind `kind` attached to parentID.
func (svc *Service) CheckParent(ctx context.Context, usr user.User, kind Kind, parentID string) (*Node, error) {
	if parentID == "" {
		if !kind.CanBeRoot() {
			want, _ := kind.ParentKind()
			return nil, invalidField("parent_id", fmt.Sprintf("a %s must belong to a %s", kind, want))
		}
		return nil, nil
	}
	if kind == KindProject {
		return nil, invalidField("parent_id", "a project cannot have a parent")
	}

	parent, err := svc.GetNode(ctx, usr, parentID)
	if err != nil {
		if errors.Cause(err) == ErrNodeNotFound {
			return nil, invalidField("parent_id", "parent not found")
		}
		return nil, err
	}
	if want, _ := kind.ParentKind(); parent.Kind != want {
		return nil, invalidField("parent_id", fmt.Sprintf("a %s can only belong to a %s", kind, want))
	}
	if parent.IsArchived {
		return nil, invalidField("parent_id", fmt.Sprintf("the parent %s is archived", parent.Kind))
	}
	return &parent, nil
}

func (svc *Service) CreateNode(ctx context.Context, usr user.User, nn NewNode) (Node, error) {
	nn.Clean()
	if err := svc.validate.Struct(nn); err != nil {
		return Node{}, err
	}
	if _, err := svc.CheckParent(ctx, usr, nn.Kind, nn.ParentID); err != nil {
		return Node{}, err
	}

	now := core.NowFunc().UTC()
	n := Node{
		ID:          uuid.New().String(),
		UserID:      usr.ID,
		Kind:        nn.Kind,
		ParentID:    nn.ParentID,
		Title:       nn.Title,
		Description: nn.Description,
		Color:       nn.Color,
		Weightage:   nn.Weightage,
		TargetDate:  nn.TargetDate,
		Position:    nn.Position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := svc.repo.CreateNodes(ctx, n); err != nil {
		return Node{}, errors.Wrap(err, "creating node")
	}
	return n, nil
}

func (svc *Service) GetNode(ctx context.Context, usr user.User, id string) (Node, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Node{}, ErrNodeNotFound
	}
	return svc.repo.GetNode(ctx, usr.ID, id)
}

func (svc *Service) ListNodes(ctx context.Context, usr user.User, filter *NodeFilter, ordering []core.DBOrdering) ([]Node, error) {
	if filter != nil {
		filter.Clean()
	}
	ordering = core.AllowedOrderings(ordering, NodeOrderingColumns)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "position", Ascending: true}, {Field: "created_at", Ascending: true}}
	}
	nodes, err := svc.repo.ListNodes(ctx, usr.ID, filter, ordering)
	return nodes, errors.Wrap(err, "listing nodes")
}

func (svc *Service) UpdateNode(ctx context.Context, usr user.User, id string, un UpdateNode) (Node, error) {
	n, err := svc.GetNode(ctx, usr, id)
	if err != nil {
		return Node{}, err
	}
	if err = svc.validate.Struct(un); err != nil {
		return Node{}, err
	}

	oldParent := n.ParentID
	un.apply(&n)
	if n.ParentID != oldParent {
		if n.ParentID == n.ID {
			return Node{}, invalidField("parent_id", "a node cannot be its own parent")
		}
		if _, err = svc.CheckParent(ctx, usr, n.Kind, n.ParentID); err != nil {
			return Node{}, err
		}
		idx, err := svc.Index(ctx, usr)
		if err != nil {
			return Node{}, err
		}
		if idx.IsDescendant(n.ParentID, n.ID) {
			return Node{}, invalidField("parent_id", "a node cannot be moved under its own descendant")
		}
	}

	n.UpdatedAt = core.NowFunc().UTC()
	n, err = svc.repo.UpdateNode(ctx, n)
	return n, errors.Wrap(err, "updating node")
}

// DeleteNode removes the node, its subtree and every task attached to them.
func (svc *Service) DeleteNode(ctx context.Context, usr user.User, id string) error {
	if _, err := svc.GetNode(ctx, usr, id); err != nil {
		return err
	}
	idx, err := svc.Index(ctx, usr)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteNodes(ctx, usr.ID, idx.Subtree(id)...), "deleting nodes")
}

// ArchiveNode archives the node, its descendants and their tasks with the same timestamp.
// Archiving an archived node is a no-op.
func (svc *Service) ArchiveNode(ctx context.Context, usr user.User, id string) (Node, error) {
	n, err := svc.GetNode(ctx, usr, id)
	if err != nil {
		return Node{}, err
	}
	if n.IsArchived {
		return n, nil
	}
	idx, err := svc.Index(ctx, usr)
	if err != nil {
		return Node{}, err
	}

	now := core.NowFunc().UTC()
	if err = svc.repo.SetArchived(ctx, usr.ID, idx.Subtree(id), &now); err != nil {
		return Node{}, errors.Wrap(err, "archiving nodes")
	}
	n.IsArchived = true
	n.ArchivedAt = &now
	n.UpdatedAt = now
	return n, nil
}

// UnarchiveNode restores the same set ArchiveNode archived. It is refused while the parent is archived.
func (svc *Service) UnarchiveNode(ctx context.Context, usr user.User, id string) (Node, error) {
	n, err := svc.GetNode(ctx, usr, id)
	if err != nil {
		return Node{}, err
	}
	if !n.IsArchived {
		return n, nil
	}
	if n.ParentID != "" {
		parent, err := svc.GetNode(ctx, usr, n.ParentID)
		if err != nil {
			return Node{}, errors.Wrap(err, "getting parent")
		}
		if parent.IsArchived {
			msg := fmt.Sprintf("cannot unarchive: the parent %s %q is archived", parent.Kind, parent.Title)
			return Node{}, core.NewValidationError(errors.New(msg))
		}
	}
	idx, err := svc.Index(ctx, usr)
	if err != nil {
		return Node{}, err
	}

	if err = svc.repo.SetArchived(ctx, usr.ID, idx.Subtree(id), nil); err != nil {
		return Node{}, errors.Wrap(err, "unarchiving nodes")
	}
	n.IsArchived = false
	n.ArchivedAt = nil
	n.UpdatedAt = core.NowFunc().UTC()
	return n, nil
}

// Tree returns the subtree rooted at id with progress and weightage checks.
func (svc *Service) Tree(ctx context.Context, usr user.User, id string, includeArchived bool) (*TreeNode, error) {
	root, err := svc.GetNode(ctx, usr, id)
	if err != nil {
		return nil, err
	}
	idx, err := svc.Index(ctx, usr)
	if err != nil {
		return nil, err
	}
	tasks, err := svc.repo.ListTasks(ctx, usr.ID, &TaskFilter{IncludeArchived: true, NodeIDs: idx.Subtree(id)}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}
	return buildTree(idx, tasks, id, includeArchived || root.IsArchived), nil
}

// Ancestors returns the parents of id, root first.
func (svc *Service) Ancestors(ctx context.Context, usr user.User, id string) ([]Node, error) {
	if _, err := svc.GetNode(ctx, usr, id); err != nil {
		return nil, err
	}
	idx, err := svc.Index(ctx, usr)
	if err != nil {
		return nil, err
	}
	return idx.Ancestors(id), nil
}

// Tasks

func (svc *Service) checkTaskNode(ctx context.Context, usr user.User, nodeID string) error {
	if nodeID == "" {
		return nil
	}
	n, err := svc.GetNode(ctx, usr, nodeID)
	if err != nil {
		if errors.Cause(err) == ErrNodeNotFound {
			return invalidField("node_id", "node not found")
		}
		return err
	}
	if n.IsArchived {
		return invalidField("node_id", fmt.Sprintf("the %s is archived", n.Kind))
	}
	return nil
}

func (svc *Service) CreateTask(ctx context.Context, usr user.User, nt NewTask) (Task, error) {
	nt.Clean()
	if err := svc.validate.Struct(nt); err != nil {
		return Task{}, err
	}
	if err := svc.checkTaskNode(ctx, usr, nt.NodeID); err != nil {
		return Task{}, err
	}

	now := core.NowFunc().UTC()
	t := Task{
		ID:               uuid.New().String(),
		UserID:           usr.ID,
		NodeID:           nt.NodeID,
		Title:            nt.Title,
		Notes:            nt.Notes,
		Priority:         nt.Priority,
		DueDate:          nt.DueDate,
		EstimatedMinutes: nt.EstimatedMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	setStatus(&t, nt.Status, now)

	t, err := svc.repo.CreateTask(ctx, t)
	if err != nil {
		return Task{}, errors.Wrap(err, "creating task")
	}
	return svc.reward(ctx, usr, t)
}

func (svc *Service) GetTask(ctx context.Context, usr user.User, id string) (Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Task{}, ErrTaskNotFound
	}
	return svc.repo.GetTask(ctx, usr.ID, id)
}

func (svc *Service) ListTasks(ctx context.Context, usr user.User, filter *TaskFilter, ordering []core.DBOrdering) ([]Task, error) {
	if filter != nil {
		filter.Clean()
		if filter.IncludeDescendants && filter.NodeID != "" {
			idx, err := svc.Index(ctx, usr)
			if err != nil {
				return nil, err
			}
			filter.NodeIDs = idx.Subtree(filter.NodeID)
			if len(filter.NodeIDs) == 0 {
				return []Task{}, nil
			}
		}
		if filter.Overdue {
			today := core.Today(usr.Location())
			filter.OverdueAsOf = &today
		}
	}
	ordering = core.AllowedOrderings(ordering, TaskOrderingColumns)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	tasks, err := svc.repo.ListTasks(ctx, usr.ID, filter, ordering)
	return tasks, errors.Wrap(err, "listing tasks")
}

func (svc *Service) UpdateTask(ctx context.Context, usr user.User, id string, ut UpdateTask) (Task, error) {
	t, err := svc.GetTask(ctx, usr, id)
	if err != nil {
		return Task{}, err
	}
	if err = svc.validate.Struct(ut); err != nil {
		return Task{}, err
	}

	oldNode := t.NodeID
	ut.apply(&t)
	if t.NodeID != oldNode {
		if err = svc.checkTaskNode(ctx, usr, t.NodeID); err != nil {
			return Task{}, err
		}
	}
	now := core.NowFunc().UTC()
	if ut.Status != nil && *ut.Status != t.Status {
		setStatus(&t, *ut.Status, now)
	}
	t.UpdatedAt = now

	if t, err = svc.repo.UpdateTask(ctx, t); err != nil {
		return Task{}, errors.Wrap(err, "updating task")
	}
	return svc.reward(ctx, usr, t)
}

// CompleteTask marks the task done. The completion reward is only granted once per task.
func (svc *Service) CompleteTask(ctx context.Context, usr user.User, id string) (Task, error) {
	t, err := svc.GetTask(ctx, usr, id)
	if err != nil {
		return Task{}, err
	}
	if t.Status == StatusDone {
		return t, nil
	}
	now := core.NowFunc().UTC()
	setStatus(&t, StatusDone, now)
	t.UpdatedAt = now
	if t, err = svc.repo.UpdateTask(ctx, t); err != nil {
		return Task{}, errors.Wrap(err, "completing task")
	}
	return svc.reward(ctx, usr, t)
}

func (svc *Service) ReopenTask(ctx context.Context, usr user.User, id string) (Task, error) {
	t, err := svc.GetTask(ctx, usr, id)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusDone {
		return t, nil
	}
	now := core.NowFunc().UTC()
	setStatus(&t, StatusTodo, now)
	t.UpdatedAt = now
	t, err = svc.repo.UpdateTask(ctx, t)
	return t, errors.Wrap(err, "reopening task")
}

func (svc *Service) ArchiveTask(ctx context.Context, usr user.User, id string) (Task, error) {
	t, err := svc.GetTask(ctx, usr, id)
	if err != nil {
		return Task{}, err
	}
	if t.IsArchived {
		return t, nil
	}
	now := core.NowFunc().UTC()
	t.IsArchived = true
	t.ArchivedAt = &now
	t.UpdatedAt = now
	t, err = svc.repo.UpdateTask(ctx, t)
	return t, errors.Wrap(err, "archiving task")
}

// UnarchiveTask is refused while the task's node is archived.
func (svc *Service) UnarchiveTask(ctx context.Context, usr user.User, id string) (Task, error) {
	t, err := svc.GetTask(ctx, usr, id)
	if err != nil {
		return Task{}, err
	}
	if !t.IsArchived {
		return t, nil
	}
	if t.NodeID != "" {
		n, err := svc.GetNode(ctx, usr, t.NodeID)
		if err != nil {
			return Task{}, errors.Wrap(err, "getting node")
		}
		if n.IsArchived {
			msg := fmt.Sprintf("cannot unarchive: the %s %q is archived", n.Kind, n.Title)
			return Task{}, core.NewValidationError(errors.New(msg))
		}
	}
	t.IsArchived = false
	t.ArchivedAt = nil
	t.UpdatedAt = core.NowFunc().UTC()
	t, err = svc.repo.UpdateTask(ctx, t)
	return t, errors.Wrap(err, "unarchiving task")
}

func (svc *Service) DeleteTask(ctx context.Context, usr user.User, id string) error {
	if _, err := svc.GetTask(ctx, usr, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteTask(ctx, usr.ID, id), "deleting task")
}

func setStatus(t *Task, status Status, now time.Time) {
	t.Status = status
	if status == StatusDone {
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
}

// reward grants the completion reward of a done task that has not been rewarded yet.
func (svc *Service) reward(ctx context.Context, usr user.User, t Task) (Task, error) {
	if t.Status != StatusDone || t.XPAwarded || svc.rewarder == nil {
		return t, nil
	}
	t.XPAwarded = true
	t, err := svc.repo.UpdateTask(ctx, t)
	if err != nil {
		return Task{}, errors.Wrap(err, "flagging task reward")
	}
	if _, err = svc.rewarder.TaskCompleted(ctx, usr, t); err != nil {
		return Task{}, errors.Wrap(err, "rewarding task")
	}
	return t, nil
}
