package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/quiz"
)

type quizApi struct {
	engine   *quiz.Engine
	validate *validator.Validate
}

func registerQuizAPI(g *echo.Group, jwt echo.MiddlewareFunc, engine *quiz.Engine, validate *validator.Validate) {
	api := quizApi{engine: engine, validate: validate}

	sg := g.Group("/courses/:course/subcourses/:sub", jwt)
	sg.GET("/submission", api.submission)

	ag := sg.Group("/attempt")
	ag.POST("", api.open)
	ag.GET("", api.retrieve)
	ag.POST("/play", api.play)
	ag.POST("/progress", api.progress)
	ag.POST("/seek", api.seek)
	ag.POST("/video-ended", api.videoEnded)
	ag.PUT("/answers/:q", api.answer)
	ag.POST("/submit", api.submit)
}

type (
	PositionRequest struct {
		Position float64 `json:"position" validate:"gte=0"`
	}

	VideoEndedRequest struct {
		Index int `json:"index" validate:"gte=0"`
	}

	// AnswerRequest sets the answer to a question; an empty answer clears it.
	AnswerRequest struct {
		Answer string `json:"answer"`
	}
)

func (data PositionRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(data)
}

func (data VideoEndedRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(data)
}

func (data AnswerRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(data)
}

// attemptHandler runs an engine call on the attempt of the context principal.
type attemptHandler func(ctx echo.Context, actor, courseID, subCourseID string) (*quiz.Attempt, error)

func (api *quizApi) handle(code int, fn attemptHandler) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := actorEmail(ctx)
		if err != nil {
			return err
		}
		a, err := fn(ctx, actor, ctx.Param("course"), ctx.Param("sub"))
		if err != nil {
			return err
		}
		return ctx.JSON(code, a)
	}
}

// Handlers

func (api *quizApi) open(ctx echo.Context) error {
	return api.handle(http.StatusCreated, func(ctx echo.Context, actor, courseID, subCourseID string) (*quiz.Attempt, error) {
		return api.engine.Open(ctx.Request().Context(), actor, courseID, subCourseID)
	})(ctx)
}

func (api *quizApi) retrieve(ctx echo.Context) error {
	return api.handle(http.StatusOK, func(ctx echo.Context, actor, courseID, subCourseID string) (*quiz.Attempt, error) {
		return api.engine.Get(ctx.Request().Context(), actor, courseID, subCourseID)
	})(ctx)
}

func (api *quizApi) play(ctx echo.Context) error {
	return api.handle(http.StatusOK, func(ctx echo.Context, actor, courseID, subCourseID string) (*quiz.Attempt, error) {
		return api.engine.Play(ctx.Request().Context(), actor, courseID, subCourseID)
	})(ctx)
}

func (api *quizApi) progress(ctx echo.Context) error {
	return api.handle(http.StatusOK, func(ctx echo.Context, actor, courseID, subCourseID string) (*quiz.Attempt, error) {
		var data PositionRequest
		if err := ctx.Bind(&data); err != nil {
			return nil, errors.Wrap(err, "binding to PositionRequest")
		}
		if err := data.Validate(api.validate); err != nil {
			return nil, err
		}
		return api.engine.Progress(ctx.Request().Context(), actor, courseID, subCourseID, data.Position)
	})(ctx)
}

func (api *quizApi) seek(ctx echo.Context) error {
	return api.handle(http.StatusOK, func(ctx echo.Context, actor, courseID, subCourseID string) (*quiz.Attempt, error) {
		var data PositionRequest
		if err := ctx.Bind(&data); err != nil {
			return nil, errors.Wrap(err, "binding to PositionRequest")
		}
		if err := data.Validate(api.validate); err != nil {
			return nil, err
		}
		return api.engine.Seek(ctx.Request().Context(), actor, courseID, subCourseID, data.Position)
	})(ctx)
}

func (api *quizApi) videoEnded(ctx echo.Context) error {
	return api.handle(http.StatusOK, func(ctx echo.Context, actor, courseID, subCourseID string) (*quiz.Attempt, error) {
		var data VideoEndedRequest
		if err := ctx.Bind(&data); err != nil {
			return nil, errors.Wrap(err, "binding to VideoEndedRequest")
		}
		if err := data.Validate(api.validate); err != nil {
			return nil, err
		}
		return api.engine.VideoEnded(ctx.Request().Context(), actor, courseID, subCourseID, data.Index)
	})(ctx)
}

func (api *quizApi) answer(ctx echo.Context) error {
	return api.handle(http.StatusOK, func(ctx echo.Context, actor, courseID, subCourseID string) (*quiz.Attempt, error) {
		qIdx, err := strconv.Atoi(ctx.Param("q"))
		if err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "question", Error: "must be a question index"})
		}
		var data AnswerRequest
		if err := ctx.Bind(&data); err != nil {
			return nil, errors.Wrap(err, "binding to AnswerRequest")
		}
		if err := data.Validate(api.validate); err != nil {
			return nil, err
		}
		return api.engine.Answer(ctx.Request().Context(), actor, courseID, subCourseID, qIdx, data.Answer)
	})(ctx)
}

func (api *quizApi) submit(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	sub, err := api.engine.Submit(ctx.Request().Context(), actor, ctx.Param("course"), ctx.Param("sub"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sub)
}

// submission returns the submission of the principal named by `?email=`, the context principal by default.
func (api *quizApi) submission(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	email := ctx.QueryParam("email")
	if email == "" {
		email = actor
	}
	sub, err := api.engine.GetSubmission(ctx.Request().Context(), actor, email, ctx.Param("sub"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}
