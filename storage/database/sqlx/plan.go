package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
)

var (
	nodeColumns = []string{
		"id", "user_id", "kind", "parent_id", "title", "description", "color", "weightage", "target_date",
		"position", "is_archived", "archived_at", "created_at", "updated_at",
	}
	taskColumns = []string{
		"id", "user_id", "node_id", "title", "notes", "status", "priority", "due_date", "estimated_minutes",
		"completed_at", "xp_awarded", "is_archived", "archived_at", "created_at", "updated_at",
	}

	nullableNodeColumns = map[string]bool{"target_date": true}
	nullableTaskColumns = map[string]bool{"due_date": true, "completed_at": true}
	taskOrderExprs      = map[string]string{
		"priority": "CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2 WHEN 'urgent' THEN 3 END",
	}
)

type nodeRow struct {
	ID          string      `db:"id"`
	UserID      string      `db:"user_id"`
	Kind        string      `db:"kind"`
	ParentID    null.String `db:"parent_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Color       string      `db:"color"`
	Weightage   float64     `db:"weightage"`
	TargetDate  null.Time   `db:"target_date"`
	Position    int         `db:"position"`
	IsArchived  bool        `db:"is_archived"`
	ArchivedAt  null.Time   `db:"archived_at"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r nodeRow) node() plan.Node {
	return plan.Node{
		ID:          r.ID,
		UserID:      r.UserID,
		Kind:        plan.Kind(r.Kind),
		ParentID:    r.ParentID.String,
		Title:       r.Title,
		Description: r.Description,
		Color:       r.Color,
		Weightage:   r.Weightage,
		TargetDate:  datePtr(r.TargetDate),
		Position:    r.Position,
		IsArchived:  r.IsArchived,
		ArchivedAt:  timePtr(r.ArchivedAt),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func nodeValues(n plan.Node) []interface{} {
	return []interface{}{
		n.ID, n.UserID, string(n.Kind), nullString(n.ParentID), n.Title, n.Description, n.Color, n.Weightage,
		dateValue(n.TargetDate), n.Position, n.IsArchived, nullTime(n.ArchivedAt), n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
	}
}

type taskRow struct {
	ID               string      `db:"id"`
	UserID           string      `db:"user_id"`
	NodeID           null.String `db:"node_id"`
	Title            string      `db:"title"`
	Notes            string      `db:"notes"`
	Status           string      `db:"status"`
	Priority         string      `db:"priority"`
	DueDate          null.Time   `db:"due_date"`
	EstimatedMinutes int         `db:"estimated_minutes"`
	CompletedAt      null.Time   `db:"completed_at"`
	XPAwarded        bool        `db:"xp_awarded"`
	IsArchived       bool        `db:"is_archived"`
	ArchivedAt       null.Time   `db:"archived_at"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (r taskRow) task() plan.Task {
	return plan.Task{
		ID:               r.ID,
		UserID:           r.UserID,
		NodeID:           r.NodeID.String,
		Title:            r.Title,
		Notes:            r.Notes,
		Status:           plan.Status(r.Status),
		Priority:         plan.Priority(r.Priority),
		DueDate:          datePtr(r.DueDate),
		EstimatedMinutes: r.EstimatedMinutes,
		CompletedAt:      timePtr(r.CompletedAt),
		XPAwarded:        r.XPAwarded,
		IsArchived:       r.IsArchived,
		ArchivedAt:       timePtr(r.ArchivedAt),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func taskValues(t plan.Task) []interface{} {
	return []interface{}{
		t.ID, t.UserID, nullString(t.NodeID), t.Title, t.Notes, string(t.Status), string(t.Priority),
		dateValue(t.DueDate), t.EstimatedMinutes, nullTime(t.CompletedAt), t.XPAwarded, t.IsArchived,
		nullTime(t.ArchivedAt), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	}
}

// setMap pairs columns with values, leaving out the immutable ones.
func setMap(columns []string, values []interface{}) map[string]interface{} {
	set := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		switch col {
		case "id", "user_id", "created_at":
			continue
		}
		set[col] = values[i]
	}
	return set
}

type planRepository struct {
	db *sqlx.DB
}

var _ plan.Repository = (*planRepository)(nil) // interface compliance check

func NewPlanRepository(db *sqlx.DB) *planRepository {
	return &planRepository{db: db}
}

func (repo *planRepository) CreateNodes(ctx context.Context, nodes ...plan.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	// parents come before their children, so row-by-row inserts satisfy the parent FK
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, n := range nodes {
			if _, err := exec(ctx, tx, psql.Insert("plan_nodes").Columns(nodeColumns...).Values(nodeValues(n)...)); err != nil {
				return errors.Wrapf(err, "inserting node %s", n.ID)
			}
		}
		return nil
	})
}

func (repo *planRepository) GetNode(ctx context.Context, userID, id string) (plan.Node, error) {
	if !isUUID(id) {
		return plan.Node{}, plan.ErrNodeNotFound
	}
	var row nodeRow
	q := psql.Select(nodeColumns...).From("plan_nodes").Where(sq.Eq{"id": id, "user_id": userID})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return plan.Node{}, trapNoRows(err, plan.ErrNodeNotFound, "finding node")
	}
	return row.node(), nil
}

func (repo *planRepository) ListNodes(ctx context.Context, userID string, filter *plan.NodeFilter, ordering []core.DBOrdering) ([]plan.Node, error) {
	q := psql.Select(nodeColumns...).From("plan_nodes").Where(sq.Eq{"user_id": userID})
	if filter == nil {
		q = q.Where(sq.Eq{"is_archived": false})
	} else {
		q = q.Where(archivedCond(filter.Archived, filter.IncludeArchived))
		if filter.Kind != "" {
			q = q.Where(sq.Eq{"kind": string(filter.Kind)})
		}
		if filter.ParentID != "" {
			q = q.Where(sq.Eq{"parent_id": filter.ParentID})
		}
		if filter.RootOnly {
			q = q.Where(sq.Eq{"parent_id": nil})
		}
		if filter.Search != "" {
			val := ilike(filter.Search)
			q = q.Where(sq.Or{sq.ILike{"title": val}, sq.ILike{"description": val}})
		}
	}
	q = q.OrderBy(orderBy(ordering, nullableNodeColumns, nil)...)

	var rows []nodeRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing nodes")
	}
	nodes := make([]plan.Node, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, r.node())
	}
	return nodes, nil
}

func (repo *planRepository) UpdateNode(ctx context.Context, n plan.Node) (plan.Node, error) {
	q := psql.Update("plan_nodes").
		SetMap(setMap(nodeColumns, nodeValues(n))).
		Where(sq.Eq{"id": n.ID, "user_id": n.UserID})
	affected, err := exec(ctx, repo.db, q)
	if err != nil {
		return plan.Node{}, errors.Wrap(err, "updating node")
	}
	if affected == 0 {
		return plan.Node{}, plan.ErrNodeNotFound
	}
	return n, nil
}

// DeleteNodes relies on the foreign keys: descendants and tasks cascade, sessions are detached.
func (repo *planRepository) DeleteNodes(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := exec(ctx, repo.db, psql.Delete("plan_nodes").Where(sq.Eq{"user_id": userID, "id": ids}))
	return errors.Wrap(err, "deleting nodes")
}

func (repo *planRepository) SetArchived(ctx context.Context, userID string, nodeIDs []string, at *time.Time) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var selected sq.Sqlizer = sq.Eq{"is_archived": false}
		if at == nil {
			var stamp null.Time
			q := psql.Select("archived_at").From("plan_nodes").Where(sq.Eq{"id": nodeIDs[0], "user_id": userID})
			if err := get(ctx, tx, &stamp, q); err != nil {
				return trapNoRows(err, nil, "finding archive stamp")
			}
			if !stamp.Valid {
				return nil
			}
			selected = sq.Eq{"archived_at": stamp.Time}
		}

		set := map[string]interface{}{
			"is_archived": at != nil,
			"archived_at": nullTime(at),
			"updated_at":  core.NowFunc().UTC(),
		}
		nodes := psql.Update("plan_nodes").SetMap(set).
			Where(sq.Eq{"user_id": userID, "id": nodeIDs}).Where(selected)
		if _, err := exec(ctx, tx, nodes); err != nil {
			return errors.Wrap(err, "archiving nodes")
		}
		tasks := psql.Update("tasks").SetMap(set).
			Where(sq.Eq{"user_id": userID, "node_id": nodeIDs}).Where(selected)
		_, err := exec(ctx, tx, tasks)
		return errors.Wrap(err, "archiving tasks")
	})
}

func (repo *planRepository) CreateTask(ctx context.Context, t plan.Task) (plan.Task, error) {
	if _, err := exec(ctx, repo.db, psql.Insert("tasks").Columns(taskColumns...).Values(taskValues(t)...)); err != nil {
		return plan.Task{}, errors.Wrap(err, "inserting task")
	}
	return t, nil
}

func (repo *planRepository) GetTask(ctx context.Context, userID, id string) (plan.Task, error) {
	if !isUUID(id) {
		return plan.Task{}, plan.ErrTaskNotFound
	}
	var row taskRow
	q := psql.Select(taskColumns...).From("tasks").Where(sq.Eq{"id": id, "user_id": userID})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return plan.Task{}, trapNoRows(err, plan.ErrTaskNotFound, "finding task")
	}
	return row.task(), nil
}

func (repo *planRepository) ListTasks(ctx context.Context, userID string, filter *plan.TaskFilter, ordering []core.DBOrdering) ([]plan.Task, error) {
	q := psql.Select(taskColumns...).From("tasks").Where(sq.Eq{"user_id": userID})
	if filter == nil {
		q = q.Where(sq.Eq{"is_archived": false})
	} else {
		q = q.Where(archivedCond(filter.Archived, filter.IncludeArchived))
		if filter.Status != "" {
			q = q.Where(sq.Eq{"status": string(filter.Status)})
		}
		if len(filter.NodeIDs) > 0 {
			q = q.Where(sq.Eq{"node_id": filter.NodeIDs})
		} else if filter.NodeID != "" {
			q = q.Where(sq.Eq{"node_id": filter.NodeID})
		}
		if filter.DueFrom != nil {
			q = q.Where(sq.GtOrEq{"due_date": filter.DueFrom.String()})
		}
		if filter.DueTo != nil {
			q = q.Where(sq.LtOrEq{"due_date": filter.DueTo.String()})
		}
		if filter.OverdueAsOf != nil {
			q = q.Where(sq.NotEq{"status": string(plan.StatusDone)}).
				Where(sq.Lt{"due_date": filter.OverdueAsOf.String()})
		}
		if !filter.CompletedFrom.IsZero() {
			q = q.Where(sq.GtOrEq{"completed_at": filter.CompletedFrom.UTC()})
		}
		if !filter.CompletedTo.IsZero() {
			q = q.Where(sq.Lt{"completed_at": filter.CompletedTo.UTC()})
		}
		if filter.Search != "" {
			val := ilike(filter.Search)
			q = q.Where(sq.Or{sq.ILike{"title": val}, sq.ILike{"notes": val}})
		}
	}
	q = q.OrderBy(orderBy(ordering, nullableTaskColumns, taskOrderExprs)...)

	var rows []taskRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}
	tasks := make([]plan.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.task())
	}
	return tasks, nil
}

func (repo *planRepository) UpdateTask(ctx context.Context, t plan.Task) (plan.Task, error) {
	q := psql.Update("tasks").
		SetMap(setMap(taskColumns, taskValues(t))).
		Where(sq.Eq{"id": t.ID, "user_id": t.UserID})
	affected, err := exec(ctx, repo.db, q)
	if err != nil {
		return plan.Task{}, errors.Wrap(err, "updating task")
	}
	if affected == 0 {
		return plan.Task{}, plan.ErrTaskNotFound
	}
	return t, nil
}

func (repo *planRepository) DeleteTask(ctx context.Context, userID, id string) error {
	if !isUUID(id) {
		return plan.ErrTaskNotFound
	}
	affected, err := exec(ctx, repo.db, psql.Delete("tasks").Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return errors.Wrap(err, "deleting task")
	}
	if affected == 0 {
		return plan.ErrTaskNotFound
	}
	return nil
}
