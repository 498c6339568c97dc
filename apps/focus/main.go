package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/soma/apps/focus/client"
	"github.com/trezcool/soma/core/timer"
)

var readPasswordFunc = term.ReadPassword // mockable

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		apiURL  string
		uname   string
		mode    string
		minutes int
	)
	cmd := &cobra.Command{
		Use:           "focus",
		Short:         "Terminal focus timer for Soma",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := timer.Mode(mode)
			switch m {
			case timer.ModePomodoro, timer.ModeStopwatch, timer.ModeCountdown:
			default:
				return errors.Errorf("unknown mode %q", mode)
			}

			c := client.New(apiURL, os.Getenv("SOMA_TOKEN"))
			if err := authenticate(cmd, c, uname); err != nil {
				return err
			}

			_, err := tea.NewProgram(newModel(c, m, minutes), tea.WithAltScreen()).Run()
			return err
		},
	}

	apiDefault := os.Getenv("SOMA_API_URL")
	if apiDefault == "" {
		apiDefault = "http://localhost:8000"
	}
	cmd.Flags().StringVar(&apiURL, "api", apiDefault, "base URL of the Soma API ($SOMA_API_URL)")
	cmd.Flags().StringVar(&uname, "username", "", "log in as this user when $SOMA_TOKEN is not set")
	cmd.Flags().StringVar(&mode, "mode", string(timer.ModePomodoro), "timer mode started with 's' (pomodoro, stopwatch, countdown)")
	cmd.Flags().IntVar(&minutes, "minutes", 30, "countdown duration")
	return cmd
}

// authenticate keeps a working token, or logs in with a prompted password.
func authenticate(cmd *cobra.Command, c *client.Client, uname string) error {
	ctx := context.Background()
	if c.Token() != "" {
		if _, err := c.Timer(ctx); err == nil || !client.IsUnauthorized(err) {
			return err
		}
	}
	if uname == "" {
		return errors.New("set $SOMA_TOKEN or pass --username")
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return errors.Wrap(err, "reading password")
	}
	return c.Login(ctx, uname, string(pwd))
}
