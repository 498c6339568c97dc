package session

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("session not found")
)

type (
	Repository interface {
		// CreateSessions inserts all sessions in one transaction.
		CreateSessions(ctx context.Context, sessions ...Session) error
		GetSession(ctx context.Context, userID, id string) (Session, error)
		// ListSessions returns matching sessions, most recent first.
		ListSessions(ctx context.Context, userID string, filter *Filter) ([]Session, error)
		DeleteSession(ctx context.Context, userID, id string) error
	}

	// Rewarder prices sessions and grants their rewards.
	Rewarder interface {
		SessionXP(s Session) int
		SessionsRecorded(ctx context.Context, usr user.User, sessions []Session) error
		SessionDeleted(ctx context.Context, usr user.User, s Session) error
	}

	Service struct {
		repo     Repository
		planRepo plan.Repository
		rewarder Rewarder
		validate *validator.Validate
	}
)

func NewService(repo Repository, planRepo plan.Repository, rewarder Rewarder, validate *validator.Validate) *Service {
	return &Service{
		repo:     repo,
		planRepo: planRepo,
		rewarder: rewarder,
		validate: validate,
	}
}

// resolveRefs checks that the task and node belong to usr. A task's node is used when no node is given.
func (svc *Service) resolveRefs(ctx context.Context, usr user.User, taskID, nodeID string) (string, string, error) {
	if taskID != "" {
		t, err := svc.planRepo.GetTask(ctx, usr.ID, taskID)
		if err != nil {
			if core.IsNotFound(err) {
				msg := "task not found"
				return "", "", core.NewValidationError(errors.New(msg), core.FieldError{Field: "task_id", Error: msg})
			}
			return "", "", errors.Wrap(err, "getting task")
		}
		if nodeID == "" {
			nodeID = t.NodeID
		}
	}
	if nodeID != "" {
		if _, err := svc.planRepo.GetNode(ctx, usr.ID, nodeID); err != nil {
			if core.IsNotFound(err) {
				msg := "node not found"
				return "", "", core.NewValidationError(errors.New(msg), core.FieldError{Field: "node_id", Error: msg})
			}
			return "", "", errors.Wrap(err, "getting node")
		}
	}
	return taskID, nodeID, nil
}

// Record stores a focus period as one session per local calendar day of usr.
// Periods shorter than MinDuration are dropped.
func (svc *Service) Record(ctx context.Context, usr user.User, rec Recording) ([]Session, error) {
	if rec.Duration() < MinDuration {
		return []Session{}, nil
	}
	taskID, nodeID, err := svc.resolveRefs(ctx, usr, rec.TaskID, rec.NodeID)
	if err != nil {
		if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
			return nil, err
		}
		// the task or node went away while the timer was running
		taskID, nodeID = "", ""
	}
	if rec.Source == "" {
		rec.Source = SourceTimer
	}

	now := core.NowFunc().UTC()
	parts := SplitByDay(rec.Segments, usr.Location())
	sessions := make([]Session, 0, len(parts))
	for i, part := range parts {
		s := Session{
			ID:              uuid.New().String(),
			UserID:          usr.ID,
			TaskID:          taskID,
			NodeID:          nodeID,
			Mode:            rec.Mode,
			Source:          rec.Source,
			Day:             part.Day,
			StartedAt:       part.Start.UTC(),
			EndedAt:         part.End.UTC(),
			DurationSeconds: int(part.Duration / time.Second),
			Note:            rec.Note,
			CreatedAt:       now,
		}
		if i == len(parts)-1 {
			s.Pomodoros = rec.Pomodoros
		}
		if svc.rewarder != nil {
			s.XPAwarded = svc.rewarder.SessionXP(s)
		}
		sessions = append(sessions, s)
	}

	if err = svc.repo.CreateSessions(ctx, sessions...); err != nil {
		return nil, errors.Wrap(err, "creating sessions")
	}
	if svc.rewarder != nil {
		if err = svc.rewarder.SessionsRecorded(ctx, usr, sessions); err != nil {
			return nil, errors.Wrap(err, "rewarding sessions")
		}
	}
	return sessions, nil
}

// LogManual records focus time entered by hand. It may not end in the future.
func (svc *Service) LogManual(ctx context.Context, usr user.User, ms ManualSession) ([]Session, error) {
	ms.Clean()
	if err := svc.validate.Struct(ms); err != nil {
		return nil, err
	}
	start := ms.StartedAt.UTC()
	end := start.Add(time.Duration(ms.DurationMinutes) * time.Minute)
	if end.After(core.NowFunc().Add(time.Minute)) {
		msg := "a session cannot end in the future"
		return nil, core.NewValidationError(errors.New(msg), core.FieldError{Field: "started_at", Error: msg})
	}
	taskID, nodeID, err := svc.resolveRefs(ctx, usr, ms.TaskID, ms.NodeID)
	if err != nil {
		return nil, err
	}
	return svc.Record(ctx, usr, Recording{
		TaskID:   taskID,
		NodeID:   nodeID,
		Mode:     "manual",
		Source:   SourceManual,
		Segments: []Segment{{Start: start, End: end}},
		Note:     ms.Note,
	})
}

func (svc *Service) Get(ctx context.Context, usr user.User, id string) (Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrNotFound
	}
	return svc.repo.GetSession(ctx, usr.ID, id)
}

func (svc *Service) List(ctx context.Context, usr user.User, filter *Filter) ([]Session, error) {
	sessions, err := svc.repo.ListSessions(ctx, usr.ID, filter)
	return sessions, errors.Wrap(err, "listing sessions")
}

// Delete removes the session and takes back the XP it earned.
func (svc *Service) Delete(ctx context.Context, usr user.User, id string) error {
	s, err := svc.Get(ctx, usr, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteSession(ctx, usr.ID, id); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	if svc.rewarder != nil {
		return errors.Wrap(svc.rewarder.SessionDeleted(ctx, usr, s), "reversing session reward")
	}
	return nil
}
