package dig_container

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/soma/apps/api/echo"
	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/analytics"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/syllabus"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/core/user"
	appfs "github.com/trezcool/soma/fs"
	emailsvc "github.com/trezcool/soma/services/email"
	"github.com/trezcool/soma/services/live"
	logsvc "github.com/trezcool/soma/services/logger"
	"github.com/trezcool/soma/storage/database"
	inmemdb "github.com/trezcool/soma/storage/database/inmem"
	sqlxrepos "github.com/trezcool/soma/storage/database/sqlx"
	"github.com/trezcool/soma/storage/kv/memkv"
	"github.com/trezcool/soma/storage/kv/rediskv"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	SchedulerLoggerParam struct {
		dig.In
		Logger core.Logger `name:"schedulerLogger"`
	}

	// Storage holds the repositories of the configured engine. DB is nil with the memory engine.
	Storage struct {
		dig.Out
		DB       *sqlx.DB
		Users    user.Repository
		Plans    plan.Repository
		Sessions session.Repository
		Game     gamification.Repository
	}

	// KV holds the short-lived state stores. Redis is nil when no redis URL is configured.
	KV struct {
		dig.Out
		Redis        *rediskv.Store
		Timers       timer.StateStore
		Celebrations gamification.CelebrationQueue
		Limiter      core.RateLimiter
	}

	StorageParam struct {
		dig.In
		DB *sqlx.DB
	}

	KVParam struct {
		dig.In
		Redis *rediskv.Store
	}

	depsParam struct {
		dig.In
		Conf         *core.Config
		Logger       core.Logger
		Validate     *validator.Validate
		Translator   ut.Translator
		Limiter      core.RateLimiter
		Hub          *live.Hub
		UserSvc      *user.Service
		PlanSvc      *plan.Service
		SyllabusSvc  *syllabus.Service
		TimerSvc     *timer.Service
		SessionSvc   *session.Service
		GameSvc      *gamification.Service
		AnalyticsSvc *analytics.Service
	}
)

// New returns a new dependency injection dig.Container.
// `name` names the main logger (API, ADMIN...).
func New(name string) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewZap))
	must(c.Provide(namedLogger(name)))
	must(c.Provide(namedLogger("DB"), dig.Name("dbLogger")))
	must(c.Provide(namedLogger("SCHEDULER"), dig.Name("schedulerLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newKV))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(func() fs.FS { return appfs.FS }))
	must(c.Provide(live.NewHub))
	must(c.Provide(func(hub *live.Hub) core.Publisher { return hub }))

	must(c.Provide(user.NewService))
	must(c.Provide(gamification.NewService))
	must(c.Provide(func(svc *gamification.Service) plan.Rewarder { return svc }))
	must(c.Provide(func(svc *gamification.Service) session.Rewarder { return svc }))
	must(c.Provide(func(svc *gamification.Service) analytics.StreakSource { return svc }))
	must(c.Provide(plan.NewService))
	must(c.Provide(session.NewService))
	must(c.Provide(func(svc *session.Service) timer.Recorder { return svc }))
	must(c.Provide(func(svc *user.Service) timer.UserGetter { return svc }))
	must(c.Provide(timer.NewService))
	must(c.Provide(syllabus.NewService))
	must(c.Provide(analytics.NewService))

	must(c.Provide(newShutdownChannel))
	must(c.Provide(newDeps))
	must(c.Provide(newServer))

	return c
}

func namedLogger(name string) func(zl *zap.Logger, conf *core.Config) core.Logger {
	return func(zl *zap.Logger, conf *core.Config) core.Logger {
		return logsvc.NewRollbarLogger(zl, name, conf)
	}
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (Storage, error) {
	if conf.Database.InMemory() {
		loggerParam.Logger.Warn("using the in-memory database: data will not survive a restart")
		db := inmemdb.Open()
		return Storage{
			Users:    inmemdb.NewUserRepository(db),
			Plans:    inmemdb.NewPlanRepository(db),
			Sessions: inmemdb.NewSessionRepository(db),
			Game:     inmemdb.NewGamificationRepository(db),
		}, nil
	}

	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		return Storage{}, errors.Wrap(err, "setting up database")
	}
	loggerParam.Logger.Info(fmt.Sprintf("connected to %s", conf.Database.Address()))
	return Storage{
		DB:       db,
		Users:    sqlxrepos.NewUserRepository(db),
		Plans:    sqlxrepos.NewPlanRepository(db),
		Sessions: sqlxrepos.NewSessionRepository(db),
		Game:     sqlxrepos.NewGamificationRepository(db),
	}, nil
}

func newKV(conf *core.Config, logger core.Logger) (KV, error) {
	if conf.Redis.URL == "" {
		logger.Warn("no redis url configured: running timers are kept in memory")
		store := memkv.New()
		return KV{Timers: store, Celebrations: store, Limiter: store}, nil
	}

	store, err := rediskv.Open(conf.Redis.URL, conf.Redis.Prefix)
	if err != nil {
		return KV{}, errors.Wrap(err, "connecting to redis")
	}
	return KV{Redis: store, Timers: store, Celebrations: store, Limiter: store}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newShutdownChannel() chan os.Signal {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	return shutdown
}

func newDeps(p depsParam) *echoapi.Deps {
	return &echoapi.Deps{
		Conf:         p.Conf,
		Logger:       p.Logger,
		Validate:     p.Validate,
		Translator:   p.Translator,
		RateLimiter:  p.Limiter,
		Hub:          p.Hub,
		UserSvc:      p.UserSvc,
		PlanSvc:      p.PlanSvc,
		SyllabusSvc:  p.SyllabusSvc,
		TimerSvc:     p.TimerSvc,
		SessionSvc:   p.SessionSvc,
		GameSvc:      p.GameSvc,
		AnalyticsSvc: p.AnalyticsSvc,
	}
}

func newServer(conf *core.Config, shutdown chan os.Signal, deps *echoapi.Deps) *echoapi.Server {
	return echoapi.NewServer(conf.Server.Host, shutdown, deps)
}

// InitApp registers validators and loads the embedded templates and password list.
func InitApp(validate *validator.Validate, translator ut.Translator, conf *core.Config, logger core.Logger) {
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	plan.InitValidators(validate, translator)
	timer.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, conf, logger)
	user.LoadCommonPasswords(appfs.FS, logger)
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
