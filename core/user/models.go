package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/soma/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"

	// Member
	RoleMember = "member:"
)

var (
	AdminRoles  = []string{RoleAdmin, RoleAdminOwner}
	MemberRoles = []string{RoleMember}
	AllRoles    = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner: 30,
		RoleAdmin:      21,

		// Members: 10 - 1
		RoleMember: 1,
	}

	Roles = []Role{
		{Name: "Member", Value: RoleMember},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

// Profile defaults
const (
	DefaultTimezone         = "UTC"
	DefaultDailyGoalMinutes = 120
)

var DefaultPomodoro = PomodoroPrefs{
	FocusMinutes:          25,
	ShortBreakMinutes:     5,
	LongBreakMinutes:      15,
	CyclesBeforeLongBreak: 4,
}

func getAllRoles() []string {
	all := make([]string, 0, 3)
	all = append(all, AdminRoles...)
	all = append(all, MemberRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type PomodoroPrefs struct {
	FocusMinutes          int `json:"focus_minutes" validate:"omitempty,min=1,max=180"`
	ShortBreakMinutes     int `json:"short_break_minutes" validate:"omitempty,min=1,max=60"`
	LongBreakMinutes      int `json:"long_break_minutes" validate:"omitempty,min=1,max=120"`
	CyclesBeforeLongBreak int `json:"cycles_before_long_break" validate:"omitempty,min=1,max=12"`
}

// WithDefaults fills unset fields from DefaultPomodoro.
func (p PomodoroPrefs) WithDefaults() PomodoroPrefs {
	if p.FocusMinutes <= 0 {
		p.FocusMinutes = DefaultPomodoro.FocusMinutes
	}
	if p.ShortBreakMinutes <= 0 {
		p.ShortBreakMinutes = DefaultPomodoro.ShortBreakMinutes
	}
	if p.LongBreakMinutes <= 0 {
		p.LongBreakMinutes = DefaultPomodoro.LongBreakMinutes
	}
	if p.CyclesBeforeLongBreak <= 0 {
		p.CyclesBeforeLongBreak = DefaultPomodoro.CyclesBeforeLongBreak
	}
	return p
}

type User struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Username         string        `json:"username"`
	Email            string        `json:"email"`
	IsActive         bool          `json:"is_active"`
	Roles            []string      `json:"roles"`
	PasswordHash     []byte        `json:"-"`
	Timezone         string        `json:"timezone"`
	DailyGoalMinutes int           `json:"daily_goal_minutes"`
	Pomodoro         PomodoroPrefs `json:"pomodoro"`
	WeeklyDigest     bool          `json:"weekly_digest"`
	CreatedAt        time.Time     `json:"created_at"` // UTC
	UpdatedAt        time.Time     `json:"updated_at"` // UTC
	LastLogin        time.Time     `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsMember() bool {
	return u.RoleStartsWith(RoleMember)
}

// Location is the user's timezone, UTC when unset or unknown.
func (u *User) Location() *time.Location {
	return core.LoadLocation(u.Timezone)
}

// DailyGoal is the daily focus target.
func (u *User) DailyGoal() time.Duration {
	if u.DailyGoalMinutes <= 0 {
		return DefaultDailyGoalMinutes * time.Minute
	}
	return time.Duration(u.DailyGoalMinutes) * time.Minute
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Timezone        string   `json:"timezone" validate:"omitempty,timezone"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Timezone = core.CleanString(nu.Timezone)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Clean(origUsr User) {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
}

// UpdateProfile holds the personal settings a user may change on their own account.
type UpdateProfile struct {
	Name             *string        `json:"name" validate:"omitempty,notblank"`
	Timezone         *string        `json:"timezone" validate:"omitempty,timezone"`
	DailyGoalMinutes *int           `json:"daily_goal_minutes" validate:"omitempty,min=5,max=1440"`
	Pomodoro         *PomodoroPrefs `json:"pomodoro"`
	WeeklyDigest     *bool          `json:"weekly_digest"`
}

func (up UpdateProfile) apply(usr *User) {
	if up.Name != nil {
		usr.Name = core.CleanString(*up.Name)
	}
	if up.Timezone != nil {
		usr.Timezone = core.CleanString(*up.Timezone)
	}
	if up.DailyGoalMinutes != nil {
		usr.DailyGoalMinutes = *up.DailyGoalMinutes
	}
	if up.Pomodoro != nil {
		usr.Pomodoro = up.Pomodoro.WithDefaults()
	}
	if up.WeeklyDigest != nil {
		usr.WeeklyDigest = *up.WeeklyDigest
	}
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Match reports whether usr satisfies every set field of the filter.
// Search does a case-insensitive match on one of Name, Username or Email.
func (qf *QueryFilter) Match(usr User) bool {
	if qf == nil {
		return true
	}
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !(strings.Contains(strings.ToLower(usr.Username), s) ||
			strings.Contains(strings.ToLower(usr.Email), s) ||
			strings.Contains(strings.ToLower(usr.Name), s)) {
			return false
		}
	}
	if len(qf.Roles) > 0 {
		var found bool
		for _, r := range qf.Roles {
			if usr.RoleStartsWith(r) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.IsActive != nil && usr.IsActive != *qf.IsActive {
		return false
	}
	if !qf.CreatedFrom.IsZero() && usr.CreatedAt.Before(qf.CreatedFrom.UTC()) {
		return false
	}
	if !qf.CreatedTo.IsZero() && usr.CreatedAt.After(qf.CreatedTo.UTC()) {
		return false
	}
	return true
}
