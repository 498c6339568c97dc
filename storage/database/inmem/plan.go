package inmemdb

import (
	"context"
	"math"
	"time"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
)

type planRepository struct {
	db *DB
}

var _ plan.Repository = (*planRepository)(nil) // interface compliance check

func NewPlanRepository(db *DB) *planRepository {
	return &planRepository{db: db}
}

func (repo *planRepository) CreateNodes(_ context.Context, nodes ...plan.Node) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, n := range nodes {
		repo.db.nodes[n.ID] = n
	}
	return nil
}

func (repo *planRepository) GetNode(_ context.Context, userID, id string) (plan.Node, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if n, ok := repo.db.nodes[id]; ok && n.UserID == userID {
		return n, nil
	}
	return plan.Node{}, plan.ErrNodeNotFound
}

func (repo *planRepository) ListNodes(_ context.Context, userID string, filter *plan.NodeFilter, ordering []core.DBOrdering) ([]plan.Node, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	nodes := make([]plan.Node, 0)
	for _, n := range repo.db.nodes {
		if n.UserID == userID && filter.Match(n) {
			nodes = append(nodes, n)
		}
	}
	sortBy(nodes, ordering, func(n plan.Node, field string) interface{} {
		switch field {
		case "title":
			return n.Title
		case "kind":
			return string(n.Kind)
		case "position":
			return n.Position
		case "weightage":
			return n.Weightage
		case "target_date":
			return datePtrKey(n.TargetDate)
		case "updated_at":
			return timeKey(n.UpdatedAt)
		default:
			return timeKey(n.CreatedAt)
		}
	})
	return nodes, nil
}

func (repo *planRepository) UpdateNode(_ context.Context, n plan.Node) (plan.Node, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.nodes[n.ID]; !ok || orig.UserID != n.UserID {
		return plan.Node{}, plan.ErrNodeNotFound
	}
	repo.db.nodes[n.ID] = n
	return n, nil
}

func (repo *planRepository) DeleteNodes(_ context.Context, userID string, ids ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if n, ok := repo.db.nodes[id]; ok && n.UserID == userID {
			doomed[id] = true
			delete(repo.db.nodes, id)
		}
	}
	for id, t := range repo.db.tasks {
		if doomed[t.NodeID] {
			delete(repo.db.tasks, id)
		}
	}
	for id, s := range repo.db.sessions {
		if doomed[s.NodeID] {
			s.NodeID = ""
			repo.db.sessions[id] = s
		}
	}
	return nil
}

func (repo *planRepository) SetArchived(_ context.Context, userID string, nodeIDs []string, at *time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if len(nodeIDs) == 0 {
		return nil
	}
	// archiving leaves archived rows alone; unarchiving restores rows stamped like the first node
	var stamp *time.Time
	if at == nil {
		root, ok := repo.db.nodes[nodeIDs[0]]
		if !ok || root.ArchivedAt == nil {
			return nil
		}
		stamp = root.ArchivedAt
	}
	selected := func(isArchived bool, archivedAt *time.Time) bool {
		if at != nil {
			return !isArchived
		}
		return archivedAt != nil && archivedAt.Equal(*stamp)
	}

	now := core.NowFunc().UTC()
	targets := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		n, ok := repo.db.nodes[id]
		if !ok || n.UserID != userID {
			continue
		}
		targets[id] = true
		if !selected(n.IsArchived, n.ArchivedAt) {
			continue
		}
		n.IsArchived = at != nil
		n.ArchivedAt = at
		n.UpdatedAt = now
		repo.db.nodes[id] = n
	}
	for id, t := range repo.db.tasks {
		if t.NodeID == "" || !targets[t.NodeID] || !selected(t.IsArchived, t.ArchivedAt) {
			continue
		}
		t.IsArchived = at != nil
		t.ArchivedAt = at
		t.UpdatedAt = now
		repo.db.tasks[id] = t
	}
	return nil
}

func (repo *planRepository) CreateTask(_ context.Context, t plan.Task) (plan.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.tasks[t.ID] = t
	return t, nil
}

func (repo *planRepository) GetTask(_ context.Context, userID, id string) (plan.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.tasks[id]; ok && t.UserID == userID {
		return t, nil
	}
	return plan.Task{}, plan.ErrTaskNotFound
}

var priorityRank = map[plan.Priority]int{
	plan.PriorityLow:    0,
	plan.PriorityMedium: 1,
	plan.PriorityHigh:   2,
	plan.PriorityUrgent: 3,
}

func (repo *planRepository) ListTasks(_ context.Context, userID string, filter *plan.TaskFilter, ordering []core.DBOrdering) ([]plan.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tasks := make([]plan.Task, 0)
	for _, t := range repo.db.tasks {
		if t.UserID == userID && filter.Match(t) {
			tasks = append(tasks, t)
		}
	}
	sortBy(tasks, ordering, func(t plan.Task, field string) interface{} {
		switch field {
		case "title":
			return t.Title
		case "status":
			return string(t.Status)
		case "priority":
			return priorityRank[t.Priority]
		case "due_date":
			return datePtrKey(t.DueDate)
		case "completed_at":
			return timePtrKey(t.CompletedAt)
		case "updated_at":
			return timeKey(t.UpdatedAt)
		default:
			return timeKey(t.CreatedAt)
		}
	})
	return tasks, nil
}

func (repo *planRepository) UpdateTask(_ context.Context, t plan.Task) (plan.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.tasks[t.ID]; !ok || orig.UserID != t.UserID {
		return plan.Task{}, plan.ErrTaskNotFound
	}
	repo.db.tasks[t.ID] = t
	return t, nil
}

func (repo *planRepository) DeleteTask(_ context.Context, userID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if t, ok := repo.db.tasks[id]; !ok || t.UserID != userID {
		return plan.ErrTaskNotFound
	}
	delete(repo.db.tasks, id)
	for sid, s := range repo.db.sessions {
		if s.TaskID == id {
			s.TaskID = ""
			repo.db.sessions[sid] = s
		}
	}
	return nil
}

func datePtrKey(d *core.Date) int64 {
	if d == nil {
		return math.MinInt64
	}
	return d.Unix()
}
