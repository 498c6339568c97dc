package plan

import (
	"strings"
	"time"

	"github.com/trezcool/soma/core"
)

type Kind string

// Node kinds, in hierarchy order.
const (
	KindProject Kind = "project"
	KindGoal    Kind = "goal"
	KindStream  Kind = "stream"
	KindSubject Kind = "subject"
	KindChapter Kind = "chapter"
	KindTopic   Kind = "topic"
)

var Kinds = []Kind{KindProject, KindGoal, KindStream, KindSubject, KindChapter, KindTopic}

func (k Kind) Valid() bool {
	return k.index() >= 0
}

func (k Kind) index() int {
	for i, kind := range Kinds {
		if kind == k {
			return i
		}
	}
	return -1
}

// CanBeRoot reports whether nodes of kind k may live without a parent.
func (k Kind) CanBeRoot() bool {
	return k == KindProject || k == KindGoal
}

// ParentKind is the only kind a node of kind k may be attached to.
func (k Kind) ParentKind() (Kind, bool) {
	idx := k.index()
	if idx <= 0 {
		return "", false
	}
	return Kinds[idx-1], true
}

// ChildKind is the kind of the direct children of k.
func (k Kind) ChildKind() (Kind, bool) {
	idx := k.index()
	if idx < 0 || idx == len(Kinds)-1 {
		return "", false
	}
	return Kinds[idx+1], true
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// WeightageTolerance is how far a sibling group may drift from 100%.
const WeightageTolerance = 0.5

type Node struct {
	ID          string     `json:"id"`
	UserID      string     `json:"-"`
	Kind        Kind       `json:"kind"`
	ParentID    string     `json:"parent_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Weightage   float64    `json:"weightage"`
	TargetDate  *core.Date `json:"target_date"`
	Position    int        `json:"position"`
	IsArchived  bool       `json:"is_archived"`
	ArchivedAt  *time.Time `json:"archived_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type NewNode struct {
	Kind        Kind       `json:"kind" validate:"required,nodekind"`
	ParentID    string     `json:"parent_id" validate:"omitempty,uuid"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Color       string     `json:"color" validate:"omitempty,hexcolor"`
	Weightage   float64    `json:"weightage" validate:"min=0,max=100"`
	TargetDate  *core.Date `json:"target_date"`
	Position    int        `json:"position" validate:"min=0"`
}

func (nn *NewNode) Clean() {
	nn.Kind = Kind(core.CleanString(string(nn.Kind), true /* lower */))
	nn.ParentID = core.CleanString(nn.ParentID)
	nn.Title = core.CleanString(nn.Title)
	nn.Description = core.CleanString(nn.Description)
	nn.Color = core.CleanString(nn.Color, true /* lower */)
}

// UpdateNode holds the node fields that may change. Kind is immutable.
type UpdateNode struct {
	ParentID        *string    `json:"parent_id" validate:"omitempty"`
	Title           *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Description     *string    `json:"description" validate:"omitempty,max=2000"`
	Color           *string    `json:"color" validate:"omitempty,hexcolor"`
	Weightage       *float64   `json:"weightage" validate:"omitempty,min=0,max=100"`
	TargetDate      *core.Date `json:"target_date"`
	ClearTargetDate bool       `json:"clear_target_date"`
	Position        *int       `json:"position" validate:"omitempty,min=0"`
}

func (un UpdateNode) apply(n *Node) {
	if un.ParentID != nil {
		n.ParentID = core.CleanString(*un.ParentID)
	}
	if un.Title != nil {
		n.Title = core.CleanString(*un.Title)
	}
	if un.Description != nil {
		n.Description = core.CleanString(*un.Description)
	}
	if un.Color != nil {
		n.Color = core.CleanString(*un.Color, true /* lower */)
	}
	if un.Weightage != nil {
		n.Weightage = *un.Weightage
	}
	if un.ClearTargetDate {
		n.TargetDate = nil
	} else if un.TargetDate != nil {
		n.TargetDate = un.TargetDate
	}
	if un.Position != nil {
		n.Position = *un.Position
	}
}

// NodeFilter narrows ListNodes. Archived nodes are left out unless Archived or IncludeArchived says otherwise.
type NodeFilter struct {
	Kind            Kind   `query:"kind"`
	ParentID        string `query:"parent_id"`
	RootOnly        bool   `query:"root_only"`
	Archived        *bool  `query:"archived"`
	IncludeArchived bool   `query:"include_archived"`
	Search          string `query:"search"`
}

func (nf *NodeFilter) Clean() {
	nf.Kind = Kind(core.CleanString(string(nf.Kind), true /* lower */))
	nf.ParentID = core.CleanString(nf.ParentID)
	nf.Search = core.CleanString(nf.Search)
}

// Match reports whether n satisfies the filter.
func (nf *NodeFilter) Match(n Node) bool {
	if nf == nil {
		return !n.IsArchived
	}
	if !matchArchived(n.IsArchived, nf.Archived, nf.IncludeArchived) {
		return false
	}
	if nf.Kind != "" && n.Kind != nf.Kind {
		return false
	}
	if nf.ParentID != "" && n.ParentID != nf.ParentID {
		return false
	}
	if nf.RootOnly && n.ParentID != "" {
		return false
	}
	if nf.Search != "" && !containsFold(n.Title, nf.Search) && !containsFold(n.Description, nf.Search) {
		return false
	}
	return true
}

type Task struct {
	ID               string     `json:"id"`
	UserID           string     `json:"-"`
	NodeID           string     `json:"node_id,omitempty"`
	Title            string     `json:"title"`
	Notes            string     `json:"notes"`
	Status           Status     `json:"status"`
	Priority         Priority   `json:"priority"`
	DueDate          *core.Date `json:"due_date"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	CompletedAt      *time.Time `json:"completed_at"`
	XPAwarded        bool       `json:"xp_awarded"`
	IsArchived       bool       `json:"is_archived"`
	ArchivedAt       *time.Time `json:"archived_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsOverdue reports whether t is still open after its due date.
func (t Task) IsOverdue(today core.Date) bool {
	return t.Status != StatusDone && t.DueDate != nil && t.DueDate.Before(today)
}

// CompletedOnTime reports whether t was done on or before its due date (in loc).
func (t Task) CompletedOnTime(loc *time.Location) bool {
	if t.CompletedAt == nil || t.DueDate == nil {
		return false
	}
	return !core.DateOf(t.CompletedAt.In(loc)).After(*t.DueDate)
}

type NewTask struct {
	NodeID           string     `json:"node_id" validate:"omitempty,uuid"`
	Title            string     `json:"title" validate:"required,max=200"`
	Notes            string     `json:"notes" validate:"max=5000"`
	Status           Status     `json:"status" validate:"omitempty,taskstatus"`
	Priority         Priority   `json:"priority" validate:"omitempty,priority"`
	DueDate          *core.Date `json:"due_date"`
	EstimatedMinutes int        `json:"estimated_minutes" validate:"min=0,max=10000"`
}

func (nt *NewTask) Clean() {
	nt.NodeID = core.CleanString(nt.NodeID)
	nt.Title = core.CleanString(nt.Title)
	nt.Notes = core.CleanString(nt.Notes)
	nt.Status = Status(core.CleanString(string(nt.Status), true /* lower */))
	nt.Priority = Priority(core.CleanString(string(nt.Priority), true /* lower */))
	if nt.Status == "" {
		nt.Status = StatusTodo
	}
	if nt.Priority == "" {
		nt.Priority = PriorityMedium
	}
}

type UpdateTask struct {
	NodeID           *string    `json:"node_id"`
	Title            *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Notes            *string    `json:"notes" validate:"omitempty,max=5000"`
	Status           *Status    `json:"status" validate:"omitempty,taskstatus"`
	Priority         *Priority  `json:"priority" validate:"omitempty,priority"`
	DueDate          *core.Date `json:"due_date"`
	ClearDueDate     bool       `json:"clear_due_date"`
	EstimatedMinutes *int       `json:"estimated_minutes" validate:"omitempty,min=0,max=10000"`
}

func (ut UpdateTask) apply(t *Task) {
	if ut.NodeID != nil {
		t.NodeID = core.CleanString(*ut.NodeID)
	}
	if ut.Title != nil {
		t.Title = core.CleanString(*ut.Title)
	}
	if ut.Notes != nil {
		t.Notes = core.CleanString(*ut.Notes)
	}
	if ut.Priority != nil {
		t.Priority = *ut.Priority
	}
	if ut.ClearDueDate {
		t.DueDate = nil
	} else if ut.DueDate != nil {
		t.DueDate = ut.DueDate
	}
	if ut.EstimatedMinutes != nil {
		t.EstimatedMinutes = *ut.EstimatedMinutes
	}
}

// TaskFilter narrows ListTasks. NodeIDs, OverdueAsOf and the completion range are set by the service.
type TaskFilter struct {
	Status             Status     `query:"status"`
	NodeID             string     `query:"node_id"`
	IncludeDescendants bool       `query:"include_descendants"`
	DueFrom            *core.Date `query:"due_from"`
	DueTo              *core.Date `query:"due_to"`
	Archived           *bool      `query:"archived"`
	IncludeArchived    bool       `query:"include_archived"`
	Search             string     `query:"search"`
	Overdue            bool       `query:"overdue"`

	NodeIDs       []string   `query:"-"`
	OverdueAsOf   *core.Date `query:"-"`
	CompletedFrom time.Time  `query:"-"`
	CompletedTo   time.Time  `query:"-"`
}

func (tf *TaskFilter) Clean() {
	tf.Status = Status(core.CleanString(string(tf.Status), true /* lower */))
	tf.NodeID = core.CleanString(tf.NodeID)
	tf.Search = core.CleanString(tf.Search)
}

// Match reports whether t satisfies the filter.
func (tf *TaskFilter) Match(t Task) bool {
	if tf == nil {
		return !t.IsArchived
	}
	if !matchArchived(t.IsArchived, tf.Archived, tf.IncludeArchived) {
		return false
	}
	if tf.Status != "" && t.Status != tf.Status {
		return false
	}
	if len(tf.NodeIDs) > 0 {
		var found bool
		for _, id := range tf.NodeIDs {
			if t.NodeID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if tf.NodeID != "" && t.NodeID != tf.NodeID {
		return false
	}
	if tf.DueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*tf.DueFrom)) {
		return false
	}
	if tf.DueTo != nil && (t.DueDate == nil || t.DueDate.After(*tf.DueTo)) {
		return false
	}
	if tf.OverdueAsOf != nil && !t.IsOverdue(*tf.OverdueAsOf) {
		return false
	}
	if !tf.CompletedFrom.IsZero() && (t.CompletedAt == nil || t.CompletedAt.Before(tf.CompletedFrom)) {
		return false
	}
	if !tf.CompletedTo.IsZero() && (t.CompletedAt == nil || !t.CompletedAt.Before(tf.CompletedTo)) {
		return false
	}
	if tf.Search != "" && !containsFold(t.Title, tf.Search) && !containsFold(t.Notes, tf.Search) {
		return false
	}
	return true
}

func matchArchived(isArchived bool, archived *bool, includeArchived bool) bool {
	switch {
	case archived != nil:
		return isArchived == *archived
	case includeArchived:
		return true
	default:
		return !isArchived
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// TreeNode is a node with its descendants, progress and weightage check.
type TreeNode struct {
	Node
	Progress     float64     `json:"progress"` // percent
	TasksTotal   int         `json:"tasks_total"`
	TasksDone    int         `json:"tasks_done"`
	WeightageSum float64     `json:"weightage_sum"`
	WeightageOK  bool        `json:"weightage_ok"`
	Children     []*TreeNode `json:"children"`
}
