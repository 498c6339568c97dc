package echoapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/syllabus"
	"github.com/trezcool/soma/core/user"
)

const maxImportSize = 1 << 20

type planApi struct {
	svc      *plan.Service
	syllabus *syllabus.Service
}

func registerPlanAPI(g *echo.Group, deps *Deps) {
	api := planApi{
		svc:      deps.PlanSvc,
		syllabus: deps.SyllabusSvc,
	}

	ng := g.Group("/nodes")
	ng.GET("", api.listNodes)
	ng.POST("", api.createNode)
	ng.POST("/import", api.importSyllabus)
	ng.GET("/:id", api.retrieveNode)
	ng.PUT("/:id", api.updateNode)
	ng.DELETE("/:id", api.destroyNode)
	ng.POST("/:id/archive", api.archiveNode)
	ng.POST("/:id/unarchive", api.unarchiveNode)
	ng.GET("/:id/tree", api.tree)
	ng.GET("/:id/export", api.exportSyllabus)

	tg := g.Group("/tasks")
	tg.GET("", api.listTasks)
	tg.POST("", api.createTask)
	tg.GET("/:id", api.retrieveTask)
	tg.PUT("/:id", api.updateTask)
	tg.DELETE("/:id", api.destroyTask)
	tg.POST("/:id/complete", api.taskAction((*plan.Service).CompleteTask))
	tg.POST("/:id/reopen", api.taskAction((*plan.Service).ReopenTask))
	tg.POST("/:id/archive", api.taskAction((*plan.Service).ArchiveTask))
	tg.POST("/:id/unarchive", api.taskAction((*plan.Service).UnarchiveTask))
}

// Nodes

func (api *planApi) listNodes(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(plan.NodeFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to NodeFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	nodes, err := api.svc.ListNodes(ctx.Request().Context(), usr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing nodes")
	}
	if nodes == nil {
		nodes = []plan.Node{}
	}
	return ctx.JSON(http.StatusOK, nodes)
}

func (api *planApi) createNode(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data plan.NewNode
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNode")
	}
	n, err := api.svc.CreateNode(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating node")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *planApi) retrieveNode(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.GetNode(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting node")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *planApi) updateNode(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data plan.UpdateNode
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNode")
	}
	n, err := api.svc.UpdateNode(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating node")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *planApi) destroyNode(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteNode(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting node")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *planApi) archiveNode(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.ArchiveNode(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "archiving node")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *planApi) unarchiveNode(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.UnarchiveNode(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unarchiving node")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *planApi) tree(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	includeArchived, _ := strconv.ParseBool(ctx.QueryParam("include_archived"))
	tree, err := api.svc.Tree(ctx.Request().Context(), usr, ctx.Param("id"), includeArchived)
	if err != nil {
		return errors.Wrap(err, "building tree")
	}
	return ctx.JSON(http.StatusOK, tree)
}

// Syllabus

// importFormat picks the document format from `?format=`, then the content type, JSON by default.
func importFormat(ctx echo.Context, contentType string) (syllabus.Format, error) {
	if f := ctx.QueryParam("format"); f != "" {
		return syllabus.ParseFormat(f)
	}
	if f, ok := syllabus.FormatFromContentType(contentType); ok {
		return f, nil
	}
	return syllabus.FormatJSON, nil
}

func readImport(ctx echo.Context) ([]byte, syllabus.Format, error) {
	req := ctx.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := ctx.FormFile("file")
		if err != nil {
			return nil, "", core.NewValidationError(err, core.FieldError{Field: "file", Error: "this field is required"})
		}
		format, err := syllabus.FormatFromFilename(fh.Filename)
		if f := ctx.QueryParam("format"); f != "" {
			format, err = syllabus.ParseFormat(f)
		}
		if err != nil {
			return nil, "", core.NewValidationError(err, core.FieldError{Field: "format", Error: err.Error()})
		}
		file, err := fh.Open()
		if err != nil {
			return nil, "", errors.Wrap(err, "opening upload")
		}
		//goland:noinspection GoUnhandledErrorResult
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxImportSize))
		return data, format, errors.Wrap(err, "reading upload")
	}

	format, err := importFormat(ctx, req.Header.Get(echo.HeaderContentType))
	if err != nil {
		return nil, "", core.NewValidationError(err, core.FieldError{Field: "format", Error: err.Error()})
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, maxImportSize))
	return data, format, errors.Wrap(err, "reading body")
}

func (api *planApi) importSyllabus(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	data, format, err := readImport(ctx)
	if err != nil {
		return err
	}
	dryRun, _ := strconv.ParseBool(ctx.QueryParam("dry_run"))

	res, err := api.syllabus.Import(ctx.Request().Context(), usr, data, format, dryRun)
	if err != nil {
		return errors.Wrap(err, "importing syllabus")
	}
	code := http.StatusCreated
	if dryRun {
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}

func (api *planApi) exportSyllabus(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	format := syllabus.FormatJSON
	if f := ctx.QueryParam("format"); f != "" {
		if format, err = syllabus.ParseFormat(f); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "format", Error: err.Error()})
		}
	}

	data, err := api.syllabus.Export(ctx.Request().Context(), usr, ctx.Param("id"), format)
	if err != nil {
		return errors.Wrap(err, "exporting syllabus")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "syllabus."+string(format)))
	return ctx.Blob(http.StatusOK, format.ContentType(), data)
}

// Tasks

func (api *planApi) listTasks(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(plan.TaskFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to TaskFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tasks, err := api.svc.ListTasks(ctx.Request().Context(), usr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing tasks")
	}
	if tasks == nil {
		tasks = []plan.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *planApi) createTask(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data plan.NewTask
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	t, err := api.svc.CreateTask(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *planApi) retrieveTask(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.GetTask(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *planApi) updateTask(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data plan.UpdateTask
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	t, err := api.svc.UpdateTask(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *planApi) destroyTask(ctx echo.Context) error {
	usr, err := contextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTask(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// taskAction serves the status changes of a task (complete, reopen, archive, unarchive).
func (api *planApi) taskAction(action func(*plan.Service, context.Context, user.User, string) (plan.Task, error)) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := contextUser(ctx)
		if err != nil {
			return err
		}
		t, err := action(api.svc, ctx.Request().Context(), usr, ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "updating task")
		}
		return ctx.JSON(http.StatusOK, t)
	}
}
