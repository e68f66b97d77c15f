package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
)

type courseApi struct {
	svc      *course.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *course.Service, validate *validator.Validate) {
	api := courseApi{svc: svc, validate: validate}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.GET("/:course", api.retrieve)
	cg.PUT("/:course", api.update)
	cg.DELETE("/:course", api.destroy)
	cg.POST("/:course/thumbnail", api.uploadThumbnail)

	sg := cg.Group("/:course/subcourses")
	sg.POST("", api.createSub)
	sg.GET("/:sub", api.retrieveSub)
	sg.PUT("/:sub", api.updateSub)
	sg.DELETE("/:sub", api.destroySub)
	sg.PUT("/:sub/questions", api.setQuestions)
	sg.POST("/:sub/questions", api.addQuestion)
	sg.POST("/:sub/media/:kind", api.addMedia)
	sg.DELETE("/:sub/media/:kind/:media", api.removeMedia)
}

type (
	QuestionsRequest struct {
		Questions []course.Question `json:"questions" validate:"dive"`
	}

	// MediaRequest references an already hosted file.
	// Uploaded files are sent as a multipart form instead.
	MediaRequest struct {
		URL      string  `json:"url" validate:"required,url"`
		Title    string  `json:"title"`
		Duration float64 `json:"duration" validate:"gte=0"`
	}
)

func (data QuestionsRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(data)
}

func (data MediaRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(data)
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	courses, err := api.svc.ListCourses(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	c, err := api.svc.CreateCourse(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.GetCourse(ctx.Request().Context(), actor, ctx.Param("course"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	c, err := api.svc.UpdateCourse(ctx.Request().Context(), actor, ctx.Param("course"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteCourse(ctx.Request().Context(), actor, ctx.Param("course")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) uploadThumbnail(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	file, err := formUpload(ctx)
	if err != nil {
		return err
	}
	defer file.Close()

	c, err := api.svc.UploadThumbnail(ctx.Request().Context(), actor, ctx.Param("course"), file.Name, file, file.Size)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) createSub(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data course.NewSubCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubCourse")
	}
	sc, err := api.svc.CreateSubCourse(ctx.Request().Context(), actor, ctx.Param("course"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sc)
}

func (api *courseApi) retrieveSub(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	sc, err := api.svc.GetSubCourse(ctx.Request().Context(), actor, ctx.Param("course"), ctx.Param("sub"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sc)
}

func (api *courseApi) updateSub(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateSubCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubCourse")
	}
	sc, err := api.svc.UpdateSubCourse(ctx.Request().Context(), actor, ctx.Param("course"), ctx.Param("sub"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sc)
}

func (api *courseApi) destroySub(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteSubCourse(ctx.Request().Context(), actor, ctx.Param("course"), ctx.Param("sub")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) setQuestions(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data QuestionsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuestionsRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sc, err := api.svc.SetQuestions(ctx.Request().Context(), actor, ctx.Param("course"), ctx.Param("sub"), data.Questions)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sc)
}

func (api *courseApi) addQuestion(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data course.Question
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Question")
	}
	sc, err := api.svc.AddQuestion(ctx.Request().Context(), actor, ctx.Param("course"), ctx.Param("sub"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sc)
}

func (api *courseApi) addMedia(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	kind, ok := course.ParseMediaKind(ctx.Param("kind"))
	if !ok {
		return core.ErrNotFound
	}

	c := ctx.Request().Context()
	courseID, subCourseID := ctx.Param("course"), ctx.Param("sub")

	var sc course.SubCourse
	if isMultipart(ctx) {
		file, err := formUpload(ctx)
		if err != nil {
			return err
		}
		defer file.Close()
		ref := course.MediaRef{Title: ctx.FormValue("title")}
		if d := ctx.FormValue("duration"); d != "" {
			if ref.Duration, err = strconv.ParseFloat(d, 64); err != nil || ref.Duration < 0 {
				return core.NewValidationError(nil, core.FieldError{Field: "duration", Error: "must be a number of seconds"})
			}
		}
		sc, err = api.svc.UploadMedia(c, actor, courseID, subCourseID, kind, ref, file.Name, file, file.Size)
		if err != nil {
			return err
		}
	} else {
		var data MediaRequest
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to MediaRequest")
		}
		if err := data.Validate(api.validate); err != nil {
			return err
		}
		sc, err = api.svc.AddMedia(c, actor, courseID, subCourseID, kind, course.MediaRef{URL: data.URL, Title: data.Title, Duration: data.Duration})
		if err != nil {
			return err
		}
	}
	return ctx.JSON(http.StatusCreated, sc)
}

func (api *courseApi) removeMedia(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	kind, ok := course.ParseMediaKind(ctx.Param("kind"))
	if !ok {
		return core.ErrNotFound
	}
	sc, err := api.svc.RemoveMedia(ctx.Request().Context(), actor, ctx.Param("course"), ctx.Param("sub"), kind, ctx.Param("media"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sc)
}
