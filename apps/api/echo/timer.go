package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/core/user"
)

type timerApi struct {
	svc *timer.Service
}

func registerTimerAPI(g *echo.Group, deps *Deps) {
	api := timerApi{svc: deps.TimerSvc}

	g.GET("", api.retrieve)
	g.POST("/start", api.start)
	g.POST("/pause", api.transition((*timer.Service).Pause))
	g.POST("/resume", api.transition((*timer.Service).Resume))
	g.POST("/stop", api.transition((*timer.Service).Stop))
	g.POST("/skip", api.transition((*timer.Service).Skip))
	g.POST("/discard", api.transition((*timer.Service).Discard))
}

func (api *timerApi) retrieve(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	v, err := api.svc.Get(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting timer")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *timerApi) start(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data timer.StartOptions
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartOptions")
	}
	v, err := api.svc.Start(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "starting timer")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *timerApi) transition(op func(*timer.Service, context.Context, user.User) (timer.View, error)) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := contextUser(ctx)
		if err != nil {
			return err
		}
		v, err := op(api.svc, ctx.Request().Context(), usr)
		if err != nil {
			return errors.Wrap(err, "updating timer")
		}
		return ctx.JSON(http.StatusOK, v)
	}
}

type sessionApi struct {
	svc *session.Service
}

func registerSessionAPI(g *echo.Group, deps *Deps) {
	api := sessionApi{svc: deps.SessionSvc}

	g.GET("", api.list)
	g.POST("", api.create)
	g.DELETE("/:id", api.destroy)
}

func (api *sessionApi) list(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(session.Filter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to Filter")
	}
	sessions, err := api.svc.List(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "listing sessions")
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) create(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data session.ManualSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ManualSession")
	}
	sessions, err := api.svc.LogManual(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "logging session")
	}
	return ctx.JSON(http.StatusCreated, sessions)
}

func (api *sessionApi) destroy(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}
