package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/user"
	"github.com/trezcool/soma/testutil"
)

const pwd = "Str0ng#Pass"

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	ada := testutil.CreateUser(t, app.usrRepo, "Ada", "ada", "ada@soma.io", pwd, []string{user.RoleMember}, true)
	testutil.CreateUser(t, app.usrRepo, "Bob", "bob", "bob@soma.io", pwd, []string{user.RoleMember}, false)

	login := func(uname, password string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: password})
	}
	failed := marchallObj(t, httpErr{Error: "authentication failed"})

	runHTTPTests(t, app, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/users/login", body: login("", ""),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"username": "this field is required",
				"password": "this field is required",
			}),
		},
		{name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: login("zed", pwd), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("ada", "nope"), wantCode: http.StatusBadRequest, wantData: failed},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("bob", pwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("by username or email", func(t *testing.T) {
		for _, uname := range []string{"ada", "ADA@soma.io"} {
			var res LoginResponse
			code := app.call(t, http.MethodPost, "/v1/users/login", "", LoginRequest{Username: uname, Password: pwd}, &res)
			require.Equal(t, http.StatusOK, code)

			claims, err := app.srv.auth.parseToken(res.Token)
			require.NoError(t, err)
			assert.Equal(t, ada.ID, claims.Subject)
			assert.Equal(t, "ada", claims.Username)
			assert.False(t, claims.IsAdmin)
			assert.Equal(t, claims.IssuedAt.Unix(), claims.OrigIssuedAt)
		}

		usr, err := app.usrRepo.GetUserByID(context.Background(), ada.ID)
		require.NoError(t, err)
		assert.False(t, usr.LastLogin.IsZero())
	})
}

func Test_userApi_loginRateLimit(t *testing.T) {
	testutil.FreezeTime(t, time.Now())
	app := setup(t, func(conf *core.Config) { conf.Server.LoginRateLimit = 2 })
	testutil.CreateUser(t, app.usrRepo, "Ada", "ada", "ada@soma.io", pwd, nil, true)

	body := marchallObj(t, LoginRequest{Username: "ada", Password: "wrong"})
	for i := 0; i < 2; i++ {
		rec := app.do(newRequest(http.MethodPost, "/v1/users/login", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := app.do(newRequest(http.MethodPost, "/v1/users/login", body))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// other endpoints keep their own window
	rec = app.do(newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, PasswordResetRequest{Email: "ada@soma.io"})))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_signup(t *testing.T) {
	newUser := func(uname string) user.NewUser {
		return user.NewUser{
			Name:            "Zoe",
			Username:        uname,
			Email:           uname + "@soma.io",
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           []string{user.RoleAdminOwner},
		}
	}

	t.Run("open", func(t *testing.T) {
		app := setup(t)

		var res SignupResponse
		code := app.call(t, http.MethodPost, "/v1/users/signup", "", newUser("zoe"), &res)
		require.Equal(t, http.StatusCreated, code)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "zoe", res.User.Username)
		assert.Equal(t, []string{user.RoleMember}, res.User.Roles)

		sent := app.mail.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "welcome", sent[0].TemplateName)

		rec := app.do(newRequest(http.MethodPost, "/v1/users/signup", marchallObj(t, newUser("zoe"))))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		}, rec)
	})

	t.Run("closed", func(t *testing.T) {
		app := setup(t, func(conf *core.Config) { conf.AllowSignup = false })
		rec := app.do(newRequest(http.MethodPost, "/v1/users/signup", marchallObj(t, newUser("zoe"))))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "signup is closed"}),
		}, rec)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t)
	ada := testutil.CreateUser(t, app.usrRepo, "Ada", "ada", "ada@soma.io", pwd, nil, true)

	for _, email := range []string{"ada@soma.io", "nobody@soma.io"} {
		rec := app.do(newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, PasswordResetRequest{Email: email})))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	sent := app.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "password_reset", sent[0].TemplateName)

	uid, token := app.deps.UserSvc.MakeResetToken(ada)
	newPwd := "An0ther#Secret"

	runHTTPTests(t, app, []httpTest{
		{
			name: "bad token", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body: marchallObj(t, user.ResetUserPassword{
				UID: uid, Token: "1-abc", Password: newPwd, PasswordConfirm: newPwd,
			}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "mismatch", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body: marchallObj(t, user.ResetUserPassword{
				UID: uid, Token: token, Password: newPwd, PasswordConfirm: "other",
			}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "ok", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body: marchallObj(t, user.ResetUserPassword{
				UID: uid, Token: token, Password: newPwd, PasswordConfirm: newPwd,
			}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	})

	code := app.call(t, http.MethodPost, "/v1/users/login", "", LoginRequest{Username: "ada", Password: newPwd}, nil)
	assert.Equal(t, http.StatusOK, code)
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	path := func(v url.Values) string {
		return "/v1/users?" + v.Encode()
	}
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	ada := testutil.CreateUser(t, app.usrRepo, "Ada Lovelace", "ada", "ada@soma.io", "", []string{user.RoleMember}, true, base.Add(time.Hour))
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@soma.io", "", []string{user.RoleAdmin}, true, base.Add(2*time.Hour))
	bob := testutil.CreateUser(t, app.usrRepo, "Bob", "bob", "bob@soma.io", "", []string{user.RoleMember}, false, base.Add(3*time.Hour))
	carl := testutil.CreateUser(t, app.usrRepo, "Carl", "carl", "carl@soma.io", "", []string{user.RoleMember}, true, base.Add(4*time.Hour))

	adminToken := getToken(t, app, admin)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingTokenBody)},
		{
			name: "admin required", path: "/v1/users", token: getToken(t, app, ada),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: "/v1/users", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, carl, bob, admin, ada)},
		{name: "search", path: path(url.Values{"search": {"AD"}}), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, admin, ada)},
		{name: "search (unknown)", path: path(url.Values{"search": {"lol"}}), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t)},
		{name: "role", path: path(url.Values{"role": {user.RoleMember}}), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, carl, bob, ada)},
		{name: "is_active", path: path(url.Values{"is_active": {"false"}}), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, bob)},
		{
			name: "created range", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, bob, admin),
			path: path(url.Values{
				"created_from": {base.Add(2 * time.Hour).Format(time.RFC3339)},
				"created_to":   {base.Add(3 * time.Hour).Format(time.RFC3339)},
			}),
		},
		{name: "order by name", path: path(url.Values{"ordering": {"name"}}), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, ada, admin, bob, carl)},
		{name: "order by -username", path: path(url.Values{"ordering": {"-username"}}), token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, carl, bob, admin, ada)},
		{
			name: "roles", path: "/v1/users/roles", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles),
		},
	})
}

func Test_userApi_detail(t *testing.T) {
	app := setup(t)
	ada := testutil.CreateUser(t, app.usrRepo, "Ada", "ada", "ada@soma.io", "", []string{user.RoleMember}, true)
	bob := testutil.CreateUser(t, app.usrRepo, "Bob", "bob", "bob@soma.io", "", []string{user.RoleMember}, true)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@soma.io", "", []string{user.RoleAdmin}, true)

	adaToken := getToken(t, app, ada)
	adminToken := getToken(t, app, admin)
	notFound := marchallObj(t, httpErr{Error: "not found"})
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	runHTTPTests(t, app, []httpTest{
		{name: "own account", path: "/v1/users/" + ada.ID, token: adaToken, wantCode: http.StatusOK, wantData: marchallObj(t, ada)},
		{name: "someone else", path: "/v1/users/" + bob.ID, token: adaToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin sees all", path: "/v1/users/" + bob.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, bob)},
		{name: "unknown id", path: "/v1/users/nope", token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "member cannot grant roles", method: http.MethodPut, path: "/v1/users/" + ada.ID, token: adaToken,
			body: marchallObj(t, map[string]interface{}{"roles": []string{user.RoleAdmin}}), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "admin cannot grant higher roles", method: http.MethodPut, path: "/v1/users/" + bob.ID, token: adminToken,
			body:     marchallObj(t, map[string]interface{}{"roles": []string{user.RoleAdminOwner}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
		{
			name: "admin cannot register higher roles", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: marchallObj(t, user.NewUser{
				Name: "Owner", Username: "owner", Password: pwd, PasswordConfirm: pwd, Roles: []string{user.RoleAdminOwner},
			}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
		{name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "cannot bulk delete self", method: http.MethodDelete, path: "/v1/users?id=" + bob.ID + "&id=" + admin.ID, token: adminToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "member cannot delete", method: http.MethodDelete, path: "/v1/users/" + bob.ID, token: adaToken, wantCode: http.StatusNotFound, wantData: notFound},
	})

	t.Run("update name", func(t *testing.T) {
		var got user.User
		code := app.call(t, http.MethodPut, "/v1/users/"+ada.ID, adaToken, map[string]string{"name": "Ada L."}, &got)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Ada L.", got.Name)
		assert.Equal(t, "ada", got.Username)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodDelete, "/v1/users/"+bob.ID, adminToken))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = app.do(newAuthRequest(http.MethodGet, "/v1/users/"+bob.ID, adminToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	ada := testutil.CreateUser(t, app.usrRepo, "Ada", "ada", "ada@soma.io", "", nil, true)
	token := getToken(t, app, ada)

	rec := app.do(newAuthRequest(http.MethodGet, "/v1/me", token))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, ada)}, rec)

	var got user.User
	code := app.call(t, http.MethodPut, "/v1/me", token, map[string]interface{}{
		"timezone":           "Africa/Kinshasa",
		"daily_goal_minutes": 90,
		"weekly_digest":      false,
	}, &got)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Africa/Kinshasa", got.Timezone)
	assert.Equal(t, 90, got.DailyGoalMinutes)
	assert.False(t, got.WeeklyDigest)

	code = app.call(t, http.MethodPut, "/v1/me", token, map[string]interface{}{"timezone": "Mars/Olympus"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// the account is gone: its token is worthless
	require.NoError(t, app.usrRepo.DeleteUsersByID(context.Background(), ada.ID))
	rec = app.do(newAuthRequest(http.MethodGet, "/v1/me", token))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusUnauthorized,
		wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
	}, rec)
}

func Test_userApi_refreshToken(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := testutil.FreezeTime(t, t0)
	app := setup(t)
	ada := testutil.CreateUser(t, app.usrRepo, "Ada", "ada", "ada@soma.io", "", nil, true)
	bob := testutil.CreateUser(t, app.usrRepo, "Bob", "bob", "bob@soma.io", "", nil, false)

	tooOld := t0.Add(-app.conf.Server.JWTRefreshExpirationDelta).Unix()

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/users/token-refresh", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingTokenBody)},
		{
			name: "refresh expired", method: http.MethodPost, path: "/v1/users/token-refresh", token: getToken(t, app, ada, tooOld),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/token-refresh", token: getToken(t, app, bob),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	token := getToken(t, app, ada)
	clock.Advance(30 * time.Minute)

	var res LoginResponse
	code := app.call(t, http.MethodPost, "/v1/users/token-refresh", token, nil, &res)
	require.Equal(t, http.StatusOK, code)
	claims, err := app.srv.auth.parseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, t0.Unix(), claims.OrigIssuedAt)
	assert.Equal(t, t0.Add(30*time.Minute).Unix(), claims.IssuedAt.Unix())

	// the old token expires after an hour
	clock.Advance(time.Hour)
	rec := app.do(newAuthRequest(http.MethodGet, "/v1/me", token))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusUnauthorized,
		wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
	}, rec)
}
