package inmemdb

import (
	"context"

	"github.com/trezcool/soma/core/session"
)

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSessions(_ context.Context, sessions ...session.Session) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, s := range sessions {
		repo.db.sessions[s.ID] = s
	}
	return nil
}

func (repo *sessionRepository) GetSession(_ context.Context, userID, id string) (session.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.sessions[id]; ok && s.UserID == userID {
		return s, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) ListSessions(_ context.Context, userID string, filter *session.Filter) ([]session.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sessions := make([]session.Session, 0)
	for _, s := range repo.db.sessions {
		if s.UserID == userID && filter.Match(s) {
			sessions = append(sessions, s)
		}
	}
	sortBy(sessions, mostRecentFirst, func(s session.Session, field string) interface{} {
		if field == "id" {
			return s.ID
		}
		return timeKey(s.StartedAt)
	})
	return sessions, nil
}

func (repo *sessionRepository) DeleteSession(_ context.Context, userID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if s, ok := repo.db.sessions[id]; !ok || s.UserID != userID {
		return session.ErrNotFound
	}
	delete(repo.db.sessions, id)
	return nil
}
