package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/user"
)

var userColumns = []string{
	"id", "name", "username", "email", "is_active", "roles", "password_hash", "timezone", "daily_goal_minutes",
	"pomodoro_focus", "pomodoro_short", "pomodoro_long", "pomodoro_cycles", "weekly_digest",
	"created_at", "updated_at", "last_login",
}

type userRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	Username         null.String    `db:"username"`
	Email            null.String    `db:"email"`
	IsActive         bool           `db:"is_active"`
	Roles            pq.StringArray `db:"roles"`
	PasswordHash     null.Bytes     `db:"password_hash"`
	Timezone         string         `db:"timezone"`
	DailyGoalMinutes int            `db:"daily_goal_minutes"`
	PomodoroFocus    int            `db:"pomodoro_focus"`
	PomodoroShort    int            `db:"pomodoro_short"`
	PomodoroLong     int            `db:"pomodoro_long"`
	PomodoroCycles   int            `db:"pomodoro_cycles"`
	WeeklyDigest     bool           `db:"weekly_digest"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	LastLogin        null.Time      `db:"last_login"`
}

func (r userRow) user() user.User {
	roles := []string(r.Roles)
	if roles == nil {
		roles = []string{}
	}
	return user.User{
		ID:               r.ID,
		Name:             r.Name,
		Username:         r.Username.String,
		Email:            r.Email.String,
		IsActive:         r.IsActive,
		Roles:            roles,
		PasswordHash:     r.PasswordHash.Bytes,
		Timezone:         r.Timezone,
		DailyGoalMinutes: r.DailyGoalMinutes,
		Pomodoro: user.PomodoroPrefs{
			FocusMinutes:          r.PomodoroFocus,
			ShortBreakMinutes:     r.PomodoroShort,
			LongBreakMinutes:      r.PomodoroLong,
			CyclesBeforeLongBreak: r.PomodoroCycles,
		},
		WeeklyDigest: r.WeeklyDigest,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

// values returns the columns of usr in userColumns order.
func userValues(usr user.User) []interface{} {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	lastLogin := null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero())
	return []interface{}{
		usr.ID, usr.Name, nullString(usr.Username), nullString(usr.Email), usr.IsActive, pq.StringArray(roles),
		null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0), usr.Timezone, usr.DailyGoalMinutes,
		usr.Pomodoro.FocusMinutes, usr.Pomodoro.ShortBreakMinutes, usr.Pomodoro.LongBreakMinutes,
		usr.Pomodoro.CyclesBeforeLongBreak, usr.WeeklyDigest,
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), lastLogin,
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	var match sq.Or
	if username != "" {
		match = append(match, sq.Eq{"username": username})
	}
	if email != "" {
		match = append(match, sq.Eq{"email": email})
	}
	if len(match) == 0 {
		return nil
	}
	q := psql.Select("username", "email").From("users").Where(match).Limit(1)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q = q.Where(sq.NotEq{"id": ids})
	}

	var found struct {
		Username null.String `db:"username"`
		Email    null.String `db:"email"`
	}
	if err := get(ctx, repo.db, &found, q); err != nil {
		return trapNoRows(err, nil, "checking user uniqueness")
	}
	if username != "" && found.Username.String == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	q := psql.Insert("users").Columns(userColumns...).Values(userValues(usr)...)
	if _, err := exec(ctx, repo.db, q); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	q := psql.Select(userColumns...).From("users")

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := ilike(filter.Search)
			q = q.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}})
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roles := make(sq.Or, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roles = append(roles, sq.Expr("EXISTS (SELECT 1 FROM UNNEST(roles) AS user_role WHERE user_role LIKE ?)", role+"%"))
			}
			q = q.Where(roles)
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.CreatedFrom.IsZero() {
			q = q.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			q = q.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}
	q = q.OrderBy(orderBy(ordering, map[string]bool{"last_login": true}, nil)...)

	var rows []userRow
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) getUser(ctx context.Context, cond sq.Sqlizer) (user.User, error) {
	var row userRow
	if err := get(ctx, repo.db, &row, psql.Select(userColumns...).From("users").Where(cond).Limit(1)); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "finding user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !isUUID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, sq.Eq{"id": id})
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	if username == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, sq.Or{sq.Eq{"username": username}, sq.Eq{"email": username}})
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	values := userValues(usr)
	set := make(map[string]interface{}, len(userColumns)-2)
	for i, col := range userColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		set[col] = values[i]
	}

	n, err := exec(ctx, repo.db, psql.Update("users").SetMap(set).Where(sq.Eq{"id": usr.ID}))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := exec(ctx, repo.db, psql.Delete("users").Where(sq.Eq{"id": ids}))
	return errors.Wrap(err, "deleting users")
}
