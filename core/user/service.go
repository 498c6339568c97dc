package user

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user not found")
	ErrUserExists     = core.NewConflictError("a user with this username or email already exists")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

// OrderingColumns maps API ordering fields to columns.
var OrderingColumns = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user holds them.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		// GetUserByUsernameOrEmail matches `username` against both username and email.
		GetUserByUsernameOrEmail(ctx context.Context, username string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo     Repository
		mailSvc  core.EmailService
		validate *validator.Validate
		tokenGen tokenGenerator
	}
)

func NewService(repo Repository, mailSvc core.EmailService, validate *validator.Validate, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		mailSvc:  mailSvc,
		validate: validate,
		tokenGen: tokenGenerator{
			secretKey: []byte(conf.SecretKey),
			timeout:   conf.Server.PasswordResetTimeoutDelta,
		},
	}
}

// CheckUniqueness reports a username/email clash as a field ValidationError.
func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// ValidateNewUser cleans and validates nu, including uniqueness.
func (svc *Service) ValidateNewUser(ctx context.Context, nu *NewUser) error {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// ValidateUpdateUser cleans and validates uu against the user being updated.
func (svc *Service) ValidateUpdateUser(ctx context.Context, origUsr User, uu *UpdateUser) error {
	uu.Clean(origUsr)
	if err := svc.validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := core.NowFunc().UTC()
	usr := User{
		ID:               uuid.New().String(),
		Name:             nu.Name,
		Username:         nu.Username,
		Email:            nu.Email,
		IsActive:         true,
		Roles:            nu.Roles,
		Timezone:         nu.Timezone,
		DailyGoalMinutes: DefaultDailyGoalMinutes,
		Pomodoro:         DefaultPomodoro,
		WeeklyDigest:     true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if usr.Timezone == "" {
		usr.Timezone = DefaultTimezone
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

// Signup registers a member account and welcomes them.
func (svc *Service) Signup(ctx context.Context, nu NewUser) (User, error) {
	nu.Roles = []string{RoleMember}
	usr, err := svc.Create(ctx, nu)
	if err != nil {
		return User{}, err
	}
	if usr.Email != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Welcome!",
			TemplateName: "welcome",
			TemplateData: map[string]string{"Name": usr.Name},
		})
	}
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	ordering = core.AllowedOrderings(ordering, OrderingColumns)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	users, err := svc.repo.QueryUsers(ctx, filter, ordering)
	return users, errors.Wrap(err, "querying users")
}

// QueryAll returns every user, newest first.
func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.Query(ctx, nil, nil)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// UpdateProfile saves the personal settings of usr.
func (svc *Service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	if err := svc.validate.Struct(up); err != nil {
		return User{}, err
	}
	up.apply(&usr)
	usr.UpdatedAt = core.NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating profile")
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

// SetPassword replaces the password of the user identified by username or email (admin CLI).
func (svc *Service) SetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return errors.Wrap(svc.repo.DeleteUsersByID(ctx, ids...), "deleting users")
}

// RequestPasswordReset emails a password reset link to the active user owning `email`.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive || usr.Email == "" {
		return ErrNotFound
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *Service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": svc.tokenGen.makeToken(usr),
		},
	})
}

// ResetPassword sets a new password when the uid/token pair is valid.
func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalid := core.NewValidationError(errors.New("invalid token"))

	uid, err := decodeUID(data.UID)
	if err != nil {
		return invalid
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalid
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(err)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, fmt.Sprintf("resetting password of user %s", usr.ID))
}

// MakeResetToken exposes a fresh password reset token (used by tests and the admin CLI).
func (svc *Service) MakeResetToken(usr User) (uid, token string) {
	return EncodeUID(usr), svc.tokenGen.makeToken(usr)
}
