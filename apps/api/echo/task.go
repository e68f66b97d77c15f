package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core/task"
)

type taskApi struct {
	ledger   *task.Ledger
	validate *validator.Validate
}

func registerTaskAPI(g *echo.Group, jwt echo.MiddlewareFunc, ledger *task.Ledger, validate *validator.Validate) {
	api := taskApi{ledger: ledger, validate: validate}

	tg := g.Group("/tasks", jwt)
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.GET("/archived", api.queryArchived)
	tg.POST("/:id/archive", api.archive)

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.queryNotifications)
	ng.POST("/:id/read", api.markRead)
}

// Handlers

func (api *taskApi) query(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	tasks, err := api.ledger.ListTasks(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) queryArchived(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	tasks, err := api.ledger.ListArchived(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tasks)
}

// create accepts a JSON NewTask, or a multipart form carrying the task fields & an attachment.
func (api *taskApi) create(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	var t task.Task
	if isMultipart(ctx) {
		file, err := formUpload(ctx)
		if err != nil {
			return err
		}
		defer file.Close()

		data := task.NewTask{
			Message:       ctx.FormValue("message"),
			AssignedEmail: ctx.FormValue("assignedEmail"),
		}
		t, err = api.ledger.CreateTaskWithFile(c, actor, data, file.Name, file, file.Size)
		if err != nil {
			return err
		}
	} else {
		var data task.NewTask
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewTask")
		}
		t, err = api.ledger.CreateTask(c, actor, data)
		if err != nil {
			return err
		}
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *taskApi) archive(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	t, err := api.ledger.ArchiveTask(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) queryNotifications(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	notifs, err := api.ledger.ListNotifications(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *taskApi) markRead(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	n, err := api.ledger.MarkNotificationRead(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, n)
}
