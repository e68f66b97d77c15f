package tests

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/report"
	"github.com/edecs/academy/tests"
)

func Test_reportApi_progress(t *testing.T) {
	app := setup(t)
	admin := testutil.CreatePrincipal(t, app.store, "admin@test.io", "Admin", identity.RoleAdmin, nil)
	alice := testutil.CreatePrincipal(t, app.store, "alice@test.io", "Alice", identity.RoleUser, nil)
	adminToken := app.token(t, admin)

	app.run(t, []httpTest{
		{
			name:     "not an admin",
			method:   http.MethodGet,
			path:     "/v1/reports/progress",
			token:    app.token(t, alice),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "unknown format",
			method:   http.MethodGet,
			path:     "/v1/reports/progress?format=pdf",
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"format": "must be one of json, csv, xlsx"}),
		},
	})

	t.Run("json", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/reports/progress", adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var rows []report.Row
		unmarshal(t, rec, &rows)
		assert.Len(t, rows, 2)
	})

	t.Run("search", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/reports/progress?search=ALICE", adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var rows []report.Row
		unmarshal(t, rec, &rows)
		require.Len(t, rows, 1)
		assert.Equal(t, alice.Email, rows[0].Email)
	})

	t.Run("csv", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/reports/progress?format=csv", adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

		lines, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
		require.NoError(t, err)
		require.Len(t, lines, 3)
		assert.Equal(t, report.Columns, lines[0])
	})

	t.Run("xlsx", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/reports/progress?format=xlsx", adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, report.ContentType(report.FormatXLSX), rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
	})
}
