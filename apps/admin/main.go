package main

import (
	"log"
	"os"

	"github.com/fatih/color"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/soma/apps/api/di/dig"
	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/analytics"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/syllabus"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/core/user"
	"github.com/trezcool/soma/services/live"
)

type cliParams struct {
	dig.In
	Conf         *core.Config
	Logger       core.Logger
	Validate     *validator.Validate
	Translator   ut.Translator
	DB           *sqlx.DB
	MailSvc      core.EmailService
	Hub          *live.Hub
	UserSvc      *user.Service
	SyllabusSvc  *syllabus.Service
	TimerSvc     *timer.Service
	GameSvc      *gamification.Service
	AnalyticsSvc *analytics.Service
}

func main() {
	c := dig_container.New("ADMIN")

	code := 0
	err := c.Invoke(func(p cliParams) {
		dig_container.InitApp(p.Validate, p.Translator, p.Conf, p.Logger)
		defer p.Hub.Close()
		if p.DB != nil {
			defer p.DB.Close()
		}

		cli := commandLine{
			db:          p.DB,
			translator:  p.Translator,
			usrSvc:      p.UserSvc,
			syllabusSvc: p.SyllabusSvc,
			timerSvc:    p.TimerSvc,
			gameSvc:     p.GameSvc,
			anaSvc:      p.AnalyticsSvc,
			out:         os.Stdout,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "\nerror: %s\n", err)
			}
			code = 1
		}

		// let queued emails go out before exiting
		if w, ok := p.MailSvc.(interface{ Wait() }); ok {
			w.Wait()
		}
	})
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}
