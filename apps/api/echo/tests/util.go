package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/edecs/academy/apps/api/echo"
	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/quiz"
	"github.com/edecs/academy/core/report"
	"github.com/edecs/academy/core/task"
	"github.com/edecs/academy/services/auth"
	"github.com/edecs/academy/services/blob"
	"github.com/edecs/academy/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

type testApp struct {
	conf    *core.Config
	store   core.DataStore
	server  *Server
	ids     *identity.Service
	blobDir string
}

func setup(t *testing.T) *testApp {
	conf := core.NewTestConfig()
	store := testutil.NewStore()
	logger := testutil.NewLogger()
	validate, translator := testutil.NewValidator()

	blobDir := t.TempDir()
	blobs, err := blobsvc.NewLocalStore(blobDir, "http://localhost:8000/uploads")
	if err != nil {
		t.Fatalf("NewLocalStore() failed: %v", err)
	}

	// set up services
	ids := identity.NewService(store, validate, logger)
	provider := authsvc.NewLocalProvider(ids)
	stop := ids.Watch(provider)
	courses := course.NewService(store, ids, blobs, validate)
	engine := quiz.NewEngine(store, ids, courses)
	ledger := task.NewLedger(store, ids, blobs, validate, logger)
	reports := report.NewService(ids, courses, engine, ledger, conf.Report.Timeout)

	// set up server
	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Identity:       ids,
		Provider:       provider,
		Courses:        courses,
		Quiz:           engine,
		Tasks:          ledger,
		Reports:        reports,
		Validate:       validate,
		Translator:     translator,
		MediaDir:       blobDir,
		DisableReqLogs: true,
	})
	t.Cleanup(func() {
		stop()
		_ = server.Close()
	})
	return &testApp{conf: conf, store: store, server: server, ids: ids, blobDir: blobDir}
}

func (app *testApp) token(t *testing.T, usr identity.Principal) string {
	token, err := GenerateToken(app.conf, GetPrincipalClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (app *testApp) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.server.ServeHTTP(rec, req)
	return rec
}

// run executes table tests against the server.
func (app *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.do(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest sends content as the `file` field, along with fields.
func newMultipartRequest(
	t *testing.T,
	method, path, token, filename string,
	content []byte,
	fields map[string]string,
) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("newMultipartRequest() failed: %v", err)
		}
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("newMultipartRequest() failed: %v", err)
	}
	if _, err = fw.Write(content); err != nil {
		t.Fatalf("newMultipartRequest() failed: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("newMultipartRequest() failed: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	if _, ok := j2.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
