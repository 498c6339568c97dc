package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/session"
)

var sessionColumns = []string{
	"id", "user_id", "task_id", "node_id", "mode", "source", "day", "started_at", "ended_at",
	"duration_seconds", "pomodoros", "xp_awarded", "note", "created_at",
}

type sessionRow struct {
	ID              string      `db:"id"`
	UserID          string      `db:"user_id"`
	TaskID          null.String `db:"task_id"`
	NodeID          null.String `db:"node_id"`
	Mode            string      `db:"mode"`
	Source          string      `db:"source"`
	Day             time.Time   `db:"day"`
	StartedAt       time.Time   `db:"started_at"`
	EndedAt         time.Time   `db:"ended_at"`
	DurationSeconds int         `db:"duration_seconds"`
	Pomodoros       int         `db:"pomodoros"`
	XPAwarded       int         `db:"xp_awarded"`
	Note            string      `db:"note"`
	CreatedAt       time.Time   `db:"created_at"`
}

func (r sessionRow) session() session.Session {
	return session.Session{
		ID:              r.ID,
		UserID:          r.UserID,
		TaskID:          r.TaskID.String,
		NodeID:          r.NodeID.String,
		Mode:            r.Mode,
		Source:          session.Source(r.Source),
		Day:             core.DateOf(r.Day),
		StartedAt:       r.StartedAt.UTC(),
		EndedAt:         r.EndedAt.UTC(),
		DurationSeconds: r.DurationSeconds,
		Pomodoros:       r.Pomodoros,
		XPAwarded:       r.XPAwarded,
		Note:            r.Note,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSessions(ctx context.Context, sessions ...session.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	q := psql.Insert("study_sessions").Columns(sessionColumns...)
	for _, s := range sessions {
		q = q.Values(
			s.ID, s.UserID, nullString(s.TaskID), nullString(s.NodeID), s.Mode, string(s.Source), s.Day.String(),
			s.StartedAt.UTC(), s.EndedAt.UTC(), s.DurationSeconds, s.Pomodoros, s.XPAwarded, s.Note, s.CreatedAt.UTC(),
		)
	}
	// one statement is atomic on its own
	_, err := exec(ctx, repo.db, q)
	return errors.Wrap(err, "inserting sessions")
}

func (repo *sessionRepository) GetSession(ctx context.Context, userID, id string) (session.Session, error) {
	if !isUUID(id) {
		return session.Session{}, session.ErrNotFound
	}
	var row sessionRow
	q := psql.Select(sessionColumns...).From("study_sessions").Where(sq.Eq{"id": id, "user_id": userID})
	if err := get(ctx, repo.db, &row, q); err != nil {
		return session.Session{}, trapNoRows(err, session.ErrNotFound, "finding session")
	}
	return row.session(), nil
}

func (repo *sessionRepository) ListSessions(ctx context.Context, userID string, filter *session.Filter) ([]session.Session, error) {
	q := psql.Select(sessionColumns...).From("study_sessions").Where(sq.Eq{"user_id": userID})
	if filter != nil {
		if filter.From != nil {
			q = q.Where(sq.GtOrEq{"day": filter.From.String()})
		}
		if filter.To != nil {
			q = q.Where(sq.LtOrEq{"day": filter.To.String()})
		}
		if filter.NodeID != "" {
			q = q.Where(sq.Eq{"node_id": filter.NodeID})
		}
		if filter.TaskID != "" {
			q = q.Where(sq.Eq{"task_id": filter.TaskID})
		}
		if filter.Source != "" {
			q = q.Where(sq.Eq{"source": string(filter.Source)})
		}
	}
	q = q.OrderBy("started_at DESC", "id DESC")

	var rows []sessionRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing sessions")
	}
	sessions := make([]session.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions, nil
}

func (repo *sessionRepository) DeleteSession(ctx context.Context, userID, id string) error {
	if !isUUID(id) {
		return session.ErrNotFound
	}
	affected, err := exec(ctx, repo.db, psql.Delete("study_sessions").Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	if affected == 0 {
		return session.ErrNotFound
	}
	return nil
}
