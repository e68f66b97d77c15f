package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/edecs/academy/apps/api/echo"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/quiz"
	"github.com/edecs/academy/tests"
)

func Test_quizApi_attempt(t *testing.T) {
	app := setup(t)
	testutil.CreateCourse(t, app.store, "c1", "Safety",
		course.SubCourse{ID: "s1", Name: "Intro", Videos: testutil.Videos(2), Questions: testutil.Questions(2)},
		course.SubCourse{ID: "s2", Name: "Advanced"},
	)
	admin := testutil.CreatePrincipal(t, app.store, "admin@test.io", "Admin", identity.RoleAdmin, nil)
	alice := testutil.CreatePrincipal(t, app.store, "alice@test.io", "Alice", identity.RoleUser, testutil.SubCourseAccess("c1", "s1"))
	bob := testutil.CreatePrincipal(t, app.store, "bob@test.io", "Bob", identity.RoleUser, nil)
	token := app.token(t, alice)
	base := "/v1/courses/c1/subcourses/s1"

	app.run(t, []httpTest{
		{
			name:     "no access",
			method:   http.MethodPost,
			path:     base + "/attempt",
			token:    app.token(t, bob),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "other sub-course",
			method:   http.MethodPost,
			path:     "/v1/courses/c1/subcourses/s2/attempt",
			token:    token,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "not opened",
			method:   http.MethodGet,
			path:     base + "/attempt",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
	})

	step := func(method, path string, body []byte) quiz.Attempt {
		t.Helper()
		req, rec := newAuthRequest(method, base+path, token, body)
		app.do(req, rec)
		require.Less(t, rec.Code, 300, rec.Body.String())
		var a quiz.Attempt
		unmarshal(t, rec, &a)
		return a
	}

	a := step(http.MethodPost, "/attempt", nil)
	assert.Equal(t, quiz.StateNotStarted, a.State)
	assert.Equal(t, 2, a.VideoCount)

	app.run(t, []httpTest{
		{
			name:     "submit before watching",
			method:   http.MethodPost,
			path:     base + "/attempt/submit",
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "all videos must be watched before submitting"}),
		},
		{
			name:     "progress before playing",
			method:   http.MethodPost,
			path:     base + "/attempt/progress",
			body:     marchallObj(t, PositionRequest{Position: 3}),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "no video is playing"}),
		},
	})

	a = step(http.MethodPost, "/attempt/play", nil)
	assert.Equal(t, quiz.StatePlaying, a.State)

	a = step(http.MethodPost, "/attempt/progress", marchallObj(t, PositionRequest{Position: 30}))
	assert.Equal(t, 30.0, a.Furthest)

	// forward seeking is clamped to what was watched
	a = step(http.MethodPost, "/attempt/seek", marchallObj(t, PositionRequest{Position: 50}))
	assert.Equal(t, 30.0, a.Position)
	a = step(http.MethodPost, "/attempt/seek", marchallObj(t, PositionRequest{Position: 10}))
	assert.Equal(t, 10.0, a.Position)

	app.run(t, []httpTest{
		{
			name:     "negative seek",
			method:   http.MethodPost,
			path:     base + "/attempt/seek",
			body:     marchallObj(t, PositionRequest{Position: -1}),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "stale video",
			method:   http.MethodPost,
			path:     base + "/attempt/video-ended",
			body:     marchallObj(t, VideoEndedRequest{Index: 1}),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown question",
			method:   http.MethodPut,
			path:     base + "/attempt/answers/5",
			body:     marchallObj(t, AnswerRequest{Answer: "right"}),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question": "no such question"}),
		},
		{
			name:     "question index",
			method:   http.MethodPut,
			path:     base + "/attempt/answers/first",
			body:     marchallObj(t, AnswerRequest{Answer: "right"}),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question": "must be a question index"}),
		},
		{
			name:     "unknown answer",
			method:   http.MethodPut,
			path:     base + "/attempt/answers/0",
			body:     marchallObj(t, AnswerRequest{Answer: "maybe"}),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"answer": "no such answer"}),
		},
	})

	a = step(http.MethodPost, "/attempt/video-ended", marchallObj(t, VideoEndedRequest{Index: 0}))
	assert.Equal(t, 1, a.VideoIndex)
	step(http.MethodPut, "/attempt/answers/0", marchallObj(t, AnswerRequest{Answer: "right"}))
	a = step(http.MethodPost, "/attempt/video-ended", marchallObj(t, VideoEndedRequest{Index: 1}))
	assert.Equal(t, quiz.StateAllVideosWatched, a.State)
	a = step(http.MethodPut, "/attempt/answers/1", marchallObj(t, AnswerRequest{Answer: "right"}))
	assert.Equal(t, []string{"right", "right"}, a.Answers)
	a = step(http.MethodPut, "/attempt/answers/1", marchallObj(t, AnswerRequest{}))
	assert.Equal(t, []string{"right", ""}, a.Answers)
	a = step(http.MethodPut, "/attempt/answers/1", marchallObj(t, AnswerRequest{Answer: "wrong"}))
	assert.Equal(t, []string{"right", "wrong"}, a.Answers)

	req, rec := newAuthRequest(http.MethodPost, base+"/attempt/submit", token)
	app.do(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub quiz.Submission
	unmarshal(t, rec, &sub)
	assert.Equal(t, 50.0, sub.PercentageScore)
	assert.Equal(t, alice.Email, sub.Email)

	app.run(t, []httpTest{
		{
			name:     "own submission",
			method:   http.MethodGet,
			path:     base + "/submission",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, sub),
		},
		{
			name:     "someone else's submission",
			method:   http.MethodGet,
			path:     base + "/submission?email=alice@test.io",
			token:    app.token(t, bob),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "admin reads any submission",
			method:   http.MethodGet,
			path:     base + "/submission?email=alice@test.io",
			token:    app.token(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, sub),
		},
		{
			name:     "no submission",
			method:   http.MethodGet,
			path:     base + "/submission",
			token:    app.token(t, admin),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
	})
}
