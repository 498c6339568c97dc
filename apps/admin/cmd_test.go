package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/analytics"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/syllabus"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/core/user"
	appfs "github.com/trezcool/soma/fs"
	inmemdb "github.com/trezcool/soma/storage/database/inmem"
	"github.com/trezcool/soma/storage/kv/memkv"
	"github.com/trezcool/soma/testutil"
)

type testCLI struct {
	*commandLine
	out      *bytes.Buffer
	usrRepo  user.Repository
	planSvc  *plan.Service
	timerSvc *timer.Service
	mail     *testutil.MailSpy
}

func setup(t *testing.T) *testCLI {
	t.Helper()

	conf := core.NewTestConfig()
	validate, translator := testutil.NewValidator()
	logger := new(testutil.Logger)
	mailSvc := new(testutil.MailSpy)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	planRepo := inmemdb.NewPlanRepository(db)
	sessRepo := inmemdb.NewSessionRepository(db)
	gameRepo := inmemdb.NewGamificationRepository(db)
	kv := memkv.New()

	// set up services
	usrSvc := user.NewService(usrRepo, mailSvc, validate, conf)
	gameSvc := gamification.NewService(gameRepo, planRepo, sessRepo, kv, nil)
	planSvc := plan.NewService(planRepo, gameSvc, validate)
	sessSvc := session.NewService(sessRepo, planRepo, gameSvc, validate)
	timerSvc := timer.NewService(kv, sessSvc, usrSvc, nil, logger, validate)
	sylSvc, err := syllabus.NewService(planSvc, appfs.FS)
	require.NoError(t, err)
	anaSvc := analytics.NewService(planRepo, sessRepo, gameSvc, usrRepo, mailSvc, logger)

	// start CLI
	out := new(bytes.Buffer)
	return &testCLI{
		commandLine: &commandLine{
			translator:  translator,
			usrSvc:      usrSvc,
			syllabusSvc: sylSvc,
			timerSvc:    timerSvc,
			gameSvc:     gameSvc,
			anaSvc:      anaSvc,
			out:         out,
		},
		out:      out,
		usrRepo:  usrRepo,
		planSvc:  planSvc,
		timerSvc: timerSvc,
		mail:     mailSvc,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_root(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	t.Run("memory engine", func(t *testing.T) {
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	cli.db = sqlx.NewDb(mockDB, "sqlmock")

	origRun := gooseRunFunc
	defer func() { gooseRunFunc = origRun }()
	gooseRunFunc = func(_ context.Context, _ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "badges", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	testutil.CreateUser(t, cli.usrRepo, "Ada", "ada", "ada@soma.io", "", []string{user.RoleMember}, true)

	origAsk := askFunc
	defer func() { askFunc = origAsk }()

	tests := []cliTest{
		{
			name:       "password mismatch",
			args:       []string{"adduser"},
			extra:      newUserAnswers{Name: "Grace", Username: "grace", Password: "Correct-Horse-7-Battery", PasswordConfirm: "nope"},
			wantErrStr: "password_confirm: ",
		},
		{
			name:       "username taken",
			args:       []string{"adduser"},
			extra:      newUserAnswers{Name: "Ada", Username: "ADA", Password: "Correct-Horse-7-Battery", PasswordConfirm: "Correct-Horse-7-Battery"},
			wantErrStr: "username: " + user.ErrUsernameExists.Error(),
		},
		{
			name:  "member",
			args:  []string{"adduser"},
			extra: newUserAnswers{Name: "Grace", Username: "grace", Email: "grace@soma.io", Password: "Correct-Horse-7-Battery", PasswordConfirm: "Correct-Horse-7-Battery"},
		},
		{
			name:  "admin",
			args:  []string{"adduser", "--admin"},
			extra: newUserAnswers{Name: "Linus", Username: "linus", Password: "Correct-Horse-7-Battery", PasswordConfirm: "Correct-Horse-7-Battery"},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		askFunc = func(_ []*survey.Question, response interface{}, _ ...survey.AskOpt) error {
			*response.(*newUserAnswers) = tt.extra.(newUserAnswers)
			return nil
		}

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	ctx := context.Background()
	grace, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "grace@soma.io")
	require.NoError(t, err)
	assert.Equal(t, user.MemberRoles, grace.Roles)
	assert.NoError(t, grace.CheckPassword("Correct-Horse-7-Battery"))

	linus, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "linus")
	require.NoError(t, err)
	assert.ElementsMatch(t, user.AllRoles, linus.Roles)
	assert.Contains(t, cli.out.String(), `user "linus" created`)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, cli.usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	origRead := readPasswordFunc
	defer func() { readPasswordFunc = origRead }()

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "--username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "--username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "--username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)

			refreshedUsr, err := cli.usrRepo.GetUserByID(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.NoError(t, refreshedUsr.CheckPassword(tt.extra.(extra).pwd))
		})
	}
}

const finalsYAML = `
project: School
goal:
  title: Finals
  children:
    - title: Science
      children:
        - title: Physics
          children:
            - title: Mechanics
            - title: Optics
        - title: Chemistry
`

func Test_commandLine_import(t *testing.T) {
	cli := setup(t)
	ada := testutil.CreateUser(t, cli.usrRepo, "Ada", "ada", "ada@soma.io", "", []string{user.RoleMember}, true)

	dir := t.TempDir()
	file := filepath.Join(dir, "finals.yml")
	require.NoError(t, os.WriteFile(file, []byte(finalsYAML), 0o600))
	badFile := filepath.Join(dir, "finals.txt")
	require.NoError(t, os.WriteFile(badFile, []byte(finalsYAML), 0o600))
	invalidFile := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalidFile, []byte("goal: {}\n"), 0o600))

	tests := []cliTest{
		{name: "no args", args: []string{"import"}, wantErr: errHelp},
		{name: "no file", args: []string{"import", "--user", "ada"}, wantErr: errHelp},
		{name: "unknown format", args: []string{"import", "--user", "ada", "--file", badFile}, wantErrStr: "unknown format"},
		{name: "missing file", args: []string{"import", "--user", "ada", "--file", filepath.Join(dir, "nope.json")}, wantErrStr: "reading syllabus"},
		{name: "unknown user", args: []string{"import", "--user", "bob", "--file", file}, wantErr: user.ErrNotFound},
		{name: "invalid document", args: []string{"import", "--user", "ada", "--file", invalidFile}, wantErrStr: "goal"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	ctx := context.Background()

	t.Run("dry run", func(t *testing.T) {
		cli.out.Reset()
		require.NoError(t, cli.run([]string{"admin", "import", "--user", "ada", "--file", file, "--dry-run"}))
		assert.Contains(t, cli.out.String(), "dry run: nothing was saved")
		assert.Regexp(t, `chapter\s+2`, cli.out.String())

		nodes, err := cli.planSvc.ListNodes(ctx, ada, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})

	t.Run("import", func(t *testing.T) {
		cli.out.Reset()
		require.NoError(t, cli.run([]string{"admin", "import", "--user", "ada@soma.io", "--file", file}))
		assert.Contains(t, cli.out.String(), "imported goal ")

		nodes, err := cli.planSvc.ListNodes(ctx, ada, nil, nil)
		require.NoError(t, err)
		var titles []string
		for _, n := range nodes {
			titles = append(titles, n.Title)
		}
		assert.ElementsMatch(t, []string{"School", "Finals", "Science", "Physics", "Mechanics", "Optics", "Chemistry"}, titles)
	})
}

func Test_commandLine_sweepTimers(t *testing.T) {
	clock := testutil.FreezeTime(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	cli := setup(t)
	ada := testutil.CreateUser(t, cli.usrRepo, "Ada", "ada", "ada@soma.io", "", []string{user.RoleMember}, true)

	require.NoError(t, cli.run([]string{"admin", "sweep-timers"}))
	assert.Contains(t, cli.out.String(), "0 timer(s) swept")

	_, err := cli.timerSvc.Start(context.Background(), ada, timer.StartOptions{Mode: timer.ModePomodoro})
	require.NoError(t, err)
	clock.Advance(26 * time.Minute)

	cli.out.Reset()
	require.NoError(t, cli.run([]string{"admin", "sweep-timers"}))
	assert.Contains(t, cli.out.String(), "1 timer(s) swept")

	v, err := cli.timerSvc.Get(context.Background(), ada)
	require.NoError(t, err)
	assert.Equal(t, timer.PhaseShortBreak, v.Phase)
}

func Test_commandLine_digest(t *testing.T) {
	cli := setup(t)
	testutil.CreateUser(t, cli.usrRepo, "Ada", "ada", "ada@soma.io", "", []string{user.RoleMember}, true)
	testutil.CreateUser(t, cli.usrRepo, "Bob", "bob", "bob@soma.io", "", []string{user.RoleMember}, false)
	testutil.CreateUser(t, cli.usrRepo, "Cy", "cy", "", "", []string{user.RoleMember}, true)

	require.NoError(t, cli.run([]string{"admin", "digest"}))
	assert.Contains(t, cli.out.String(), "1 digest(s) queued")

	sent := cli.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "weekly_digest", sent[0].TemplateName)
	assert.Equal(t, "ada@soma.io", sent[0].To[0].Address)
}

func Test_commandLine_recomputeStats(t *testing.T) {
	cli := setup(t)
	testutil.CreateUser(t, cli.usrRepo, "Ada", "ada", "ada@soma.io", "", []string{user.RoleMember}, true)
	testutil.CreateUser(t, cli.usrRepo, "Bob", "bob", "bob@soma.io", "", []string{user.RoleMember}, true)

	tests := []cliTest{
		{name: "unknown user", args: []string{"recompute-stats", "--user", "lol"}, wantErr: user.ErrNotFound},
		{name: "one user", args: []string{"recompute-stats", "--user", "ada"}},
		{name: "every user", args: []string{"recompute-stats"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			cli.out.Reset()
			tt.check(t, cli.run(args))
		})
	}
	assert.Contains(t, cli.out.String(), "ada: level 1, 0 XP")
	assert.Contains(t, cli.out.String(), "bob: level 1, 0 XP")
	assert.Contains(t, cli.out.String(), "2 user(s) recomputed")
}
