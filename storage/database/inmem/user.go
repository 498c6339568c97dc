package inmemdb

import (
	"context"
	"math"
	"time"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, u := range repo.db.users {
		if (usr.Username != "" && u.Username == usr.Username) || (usr.Email != "" && u.Email == usr.Email) {
			return user.User{}, user.ErrUserExists
		}
	}
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter.Match(usr) {
			users = append(users, usr)
		}
	}
	sortBy(users, ordering, func(u user.User, field string) interface{} {
		switch field {
		case "name":
			return u.Name
		case "username":
			return u.Username
		case "email":
			return u.Email
		case "is_active":
			return u.IsActive
		case "updated_at":
			return timeKey(u.UpdatedAt)
		case "last_login":
			return timeKey(u.LastLogin)
		default:
			return timeKey(u.CreatedAt)
		}
	})
	return users, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if username == "" {
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.users {
		if usr.Username == username || usr.Email == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = usr
	return usr, nil
}

// DeleteUsersByID also drops every row owned by the deleted users.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
		delete(repo.db.stats, id)
		delete(repo.db.badges, id)
		for nid, n := range repo.db.nodes {
			if n.UserID == id {
				delete(repo.db.nodes, nid)
			}
		}
		for tid, t := range repo.db.tasks {
			if t.UserID == id {
				delete(repo.db.tasks, tid)
			}
		}
		for sid, s := range repo.db.sessions {
			if s.UserID == id {
				delete(repo.db.sessions, sid)
			}
		}
		events := repo.db.xpEvents[:0]
		for _, ev := range repo.db.xpEvents {
			if ev.UserID != id {
				events = append(events, ev)
			}
		}
		repo.db.xpEvents = events
	}
	return nil
}

func timeKey(t time.Time) int64 {
	return t.UnixMicro()
}

func timePtrKey(t *time.Time) int64 {
	if t == nil {
		return math.MinInt64
	}
	return t.UnixMicro()
}
