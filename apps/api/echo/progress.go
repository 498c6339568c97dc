package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/analytics"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/services/live"
)

type progressApi struct {
	svc *gamification.Service
}

func registerProgressAPI(g *echo.Group, deps *Deps) {
	api := progressApi{svc: deps.GameSvc}

	g.GET("/progress", api.progress)
	g.GET("/badges", api.badges)
	g.GET("/celebrations", api.celebrations)
	g.DELETE("/celebrations", api.ackCelebrations)
}

func (api *progressApi) progress(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Progress(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *progressApi) badges(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	badges, err := api.svc.Badges(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing badges")
	}
	return ctx.JSON(http.StatusOK, badges)
}

func (api *progressApi) celebrations(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	celebs, err := api.svc.Celebrations(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing celebrations")
	}
	if celebs == nil {
		celebs = []gamification.Celebration{}
	}
	return ctx.JSON(http.StatusOK, celebs)
}

// ackCelebrations drops the `?id=` celebrations, every pending one when no id is given.
func (api *progressApi) ackCelebrations(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var query DestroyMultipleRequest
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if err = api.svc.AckCelebrations(ctx.Request().Context(), usr, query.IDs...); err != nil {
		return errors.Wrap(err, "acknowledging celebrations")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type analyticsApi struct {
	svc *analytics.Service
}

func registerAnalyticsAPI(g *echo.Group, deps *Deps) {
	api := analyticsApi{svc: deps.AnalyticsSvc}

	g.GET("/analytics/dashboard", api.dashboard)
	g.GET("/analytics/weekly", api.weekly)
	g.GET("/calendar", api.calendar)
}

func (api *analyticsApi) dashboard(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var query analytics.DashboardQuery
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DashboardQuery")
	}
	d, err := api.svc.Dashboard(ctx.Request().Context(), usr, query)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, d)
}

type WeeklyQuery struct {
	Date *core.Date `query:"date"`
}

// weekly reports the week holding `?date=`, the current one by default.
func (api *analyticsApi) weekly(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var query WeeklyQuery
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to WeeklyQuery")
	}
	date := core.Today(usr.Location())
	if query.Date != nil {
		date = *query.Date
	}
	w, err := api.svc.Weekly(ctx.Request().Context(), usr, date)
	if err != nil {
		return errors.Wrap(err, "building weekly report")
	}
	return ctx.JSON(http.StatusOK, w)
}

type CalendarQuery struct {
	From *core.Date `query:"from"`
	To   *core.Date `query:"to"`
}

func (api *analyticsApi) calendar(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var query CalendarQuery
	if err = ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to CalendarQuery")
	}
	days, err := api.svc.Calendar(ctx.Request().Context(), usr, query.From, query.To)
	if err != nil {
		return errors.Wrap(err, "building calendar")
	}
	return ctx.JSON(http.StatusOK, days)
}

type liveApi struct {
	hub    *live.Hub
	logger core.Logger
}

func registerLiveAPI(g *echo.Group, deps *Deps) {
	api := liveApi{hub: deps.Hub, logger: deps.Logger}
	g.GET("", api.serve)
}

func (api *liveApi) serve(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.hub.Serve(ctx.Response(), ctx.Request(), usr.ID); err != nil {
		// the upgrader has already replied
		api.logger.Warn(fmt.Sprintf("live connection of %s: %v", usr.ID, err), err)
	}
	return nil
}
