package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/analytics"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/syllabus"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/core/user"
	"github.com/trezcool/soma/storage/database"
)

var (
	// mockable
	readPasswordFunc = term.ReadPassword
	askFunc          = survey.Ask
	gooseRunFunc     = func(ctx context.Context, db *sql.DB, command string, args ...string) error {
		return database.RunMigrations(ctx, db, command, args...)
	}

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrations need the postgres engine")

	success = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
)

type commandLine struct {
	db          *sqlx.DB // nil with the memory engine
	translator  ut.Translator
	usrSvc      *user.Service
	syllabusSvc *syllabus.Service
	timerSvc    *timer.Service
	gameSvc     *gamification.Service
	anaSvc      *analytics.Service
	out         io.Writer
}

func (cli *commandLine) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Soma administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.importCmd(),
		cli.sweepTimersCmd(),
		cli.digestCmd(),
		cli.recomputeStatsCmd(),
	)
	return root
}

// run executes args (program name first).
func (cli *commandLine) run(args []string) error {
	root := cli.newRootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			if cli.db == nil {
				return errNoDatabase
			}
			if err := gooseRunFunc(cmd.Context(), cli.db.DB, args[0], args[1:]...); err != nil {
				return err
			}
			_, _ = success.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", strings.Join(args, " "))
			return nil
		},
	}
}

type newUserAnswers struct {
	Name            string `survey:"name"`
	Username        string `survey:"username"`
	Email           string `survey:"email"`
	Password        string `survey:"password"`
	PasswordConfirm string `survey:"password_confirm"`
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var isAdmin bool
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user (prompts for the details)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			qs := []*survey.Question{
				{Name: "name", Prompt: &survey.Input{Message: "Name:"}, Validate: survey.Required},
				{Name: "username", Prompt: &survey.Input{Message: "Username:"}},
				{Name: "email", Prompt: &survey.Input{Message: "Email:"}},
				{Name: "password", Prompt: &survey.Password{Message: "Password:"}, Validate: survey.Required},
				{Name: "password_confirm", Prompt: &survey.Password{Message: "Password (again):"}, Validate: survey.Required},
			}
			var ans newUserAnswers
			if err := askFunc(qs, &ans); err != nil {
				return err
			}

			nu := user.NewUser{
				Name:            ans.Name,
				Username:        ans.Username,
				Email:           ans.Email,
				Password:        ans.Password,
				PasswordConfirm: ans.PasswordConfirm,
				Roles:           user.MemberRoles,
			}
			if isAdmin {
				nu.Roles = user.AllRoles
			}
			return cli.addUser(cmd.Context(), cmd.OutOrStdout(), nu)
		},
	}
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant every role to the new user")
	return cmd
}

func (cli *commandLine) addUser(ctx context.Context, w io.Writer, nu user.NewUser) error {
	if err := cli.usrSvc.ValidateNewUser(ctx, &nu); err != nil {
		return cli.describe(err)
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	_, _ = success.Fprintf(w, "user %q created (%s)\n", displayName(usr), strings.Join(usr.Roles, ", "))
	return nil
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password (prompted next)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uname == "" {
				_ = cmd.Usage()
				return errHelp
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), "Enter password:")
			pwd, err := readPasswordFunc(int(syscall.Stdin))
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			if err = cli.usrSvc.SetPassword(cmd.Context(), uname, string(pwd)); err != nil {
				return err
			}
			_, _ = success.Fprintf(cmd.OutOrStdout(), "password of %q updated\n", uname)
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "the user's username or email")
	return cmd
}

func (cli *commandLine) importCmd() *cobra.Command {
	var (
		uname  string
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a syllabus document (json, yaml or toml) into a user's plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uname == "" || file == "" {
				_ = cmd.Usage()
				return errHelp
			}
			ctx := cmd.Context()
			format, err := syllabus.FormatFromFilename(filepath.Base(file))
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrap(err, "reading syllabus")
			}
			usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
			if err != nil {
				return err
			}

			res, err := cli.syllabusSvc.Import(ctx, usr, data, format, dryRun)
			if err != nil {
				return cli.describe(err)
			}

			w := cmd.OutOrStdout()
			if dryRun {
				_, _ = warning.Fprintln(w, "dry run: nothing was saved")
			} else {
				_, _ = success.Fprintf(w, "imported goal %s\n", res.GoalID)
			}
			for _, kind := range plan.Kinds {
				if n := res.Counts[kind]; n > 0 {
					_, _ = fmt.Fprintf(w, "  %-8s %d\n", kind, n)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "user", "", "username or email of the owner")
	cmd.Flags().StringVar(&file, "file", "", "path to the syllabus document")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without saving")
	return cmd
}

func (cli *commandLine) sweepTimersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-timers",
		Short: "Apply auto-pause and phase changes to every running timer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cli.timerSvc.SweepStale(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = success.Fprintf(cmd.OutOrStdout(), "%d timer(s) swept\n", n)
			return nil
		},
	}
}

func (cli *commandLine) digestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Email the weekly digest to every opted-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cli.anaSvc.SendWeeklyDigests(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = success.Fprintf(cmd.OutOrStdout(), "%d digest(s) queued\n", n)
			return nil
		},
	}
}

func (cli *commandLine) recomputeStatsCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "recompute-stats",
		Short: "Rebuild XP and level from the XP ledger (every user unless --user is given)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var users []user.User
			if uname != "" {
				usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
				if err != nil {
					return err
				}
				users = append(users, usr)
			} else {
				var err error
				if users, err = cli.usrSvc.QueryAll(ctx); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			for _, usr := range users {
				stats, err := cli.gameSvc.RecomputeStats(ctx, usr)
				if err != nil {
					return errors.Wrapf(err, "recomputing stats of %s", usr.ID)
				}
				_, _ = fmt.Fprintf(w, "  %s: level %d, %d XP\n", displayName(usr), stats.Level, stats.XP)
			}
			_, _ = success.Fprintf(w, "%d user(s) recomputed\n", len(users))
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "user", "", "username or email (default: every user)")
	return cmd
}

func displayName(usr user.User) string {
	if usr.Username != "" {
		return usr.Username
	}
	return usr.Email
}

// describe flattens validation errors into a readable, stable message.
func (cli *commandLine) describe(err error) error {
	var fields []string
	switch verr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fe := range verr {
			fields = append(fields, fmt.Sprintf("%s: %s", fe.Field(), fe.Translate(cli.translator)))
		}
	case *core.ValidationError:
		if len(verr.Fields) == 0 {
			return err
		}
		for _, f := range verr.Fields {
			fields = append(fields, fmt.Sprintf("%s: %s", f.Field, f.Error))
		}
	default:
		return err
	}
	sort.Strings(fields)
	return errors.New(strings.Join(fields, "; "))
}
