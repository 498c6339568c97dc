package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	dig_container "github.com/trezcool/soma/apps/api/di/dig"
	echoapi "github.com/trezcool/soma/apps/api/echo"
	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/services/live"
)

func main() {
	c := dig_container.New("API")

	err := c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		schedLoggerParam dig_container.SchedulerLoggerParam,
		storage dig_container.StorageParam,
		kv dig_container.KVParam,
		validate *validator.Validate,
		translator ut.Translator,
		hub *live.Hub,
		timerSvc *timer.Service,
		shutdown chan os.Signal,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		dig_container.InitApp(validate, translator, conf, apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if storage.DB == nil {
				return
			}
			if err := storage.DB.Close(); err != nil {
				dbLogger.Error(fmt.Sprintf("closing database: %v", err), err)
			}
		}()
		defer func() {
			if kv.Redis == nil {
				return
			}
			if err := kv.Redis.Close(); err != nil {
				apiLogger.Error(fmt.Sprintf("closing redis: %v", err), err)
			}
		}()
		defer hub.Close()
		defer apiLogger.Info("Application stopped")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		debugSrv := &http.Server{Addr: conf.Server.DebugHost, Handler: http.DefaultServeMux}
		go func() {
			if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
		defer debugSrv.Close()

		// =========================================================================
		// Start Timer Sweeper

		schedLogger := schedLoggerParam.Logger
		g.Go(func() error {
			schedLogger.Info(fmt.Sprintf("sweeping timers every %s", conf.Timer.SweepInterval))
			return timerSvc.RunSweeper(gctx, conf.Timer.SweepInterval)
		})

		// =========================================================================
		// Start API Service

		g.Go(func() error {
			apiLogger.Info(fmt.Sprintf("API listening on %s", conf.Server.Host))
			if err := server.Start(); err != nil {
				return errors.Wrap(err, "server error")
			}
			return nil
		})

		// =========================================================================
		// Shutdown

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-shutdown:
				apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
			}
			defer cancel()

			// give outstanding requests a deadline for completion
			sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer scancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(sctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					return errors.Wrap(err, "could not force stop server")
				}
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			apiLogger.Error(err.Error(), err)
			_ = server.Close()
		}
	})
	if err != nil {
		log.Fatal(err)
	}
}
