package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/crosscheck-cli/internal/config"
	"github.com/veridata/crosscheck-cli/internal/model"
	"github.com/veridata/crosscheck-cli/internal/store"
)

func newTestAPI(t *testing.T) (*apiServer, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	api := &apiServer{
		store:    st,
		policies: config.ResilienceConfig{}.BuildPolicies(),
	}
	return api, st
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServeHealth(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doGet(t, api.routes(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeListRuns(t *testing.T) {
	api, st := newTestAPI(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRun(ctx, &model.ValidationRun{
		ID:        "run-x",
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
	}))

	rec := doGet(t, api.routes(), "/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []model.ValidationRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "run-x", body.Runs[0].ID)
}

func TestServeListRunsEmpty(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doGet(t, api.routes(), "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestServeListRunsBadLimit(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doGet(t, api.routes(), "/runs?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeGetRun(t *testing.T) {
	api, st := newTestAPI(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRun(ctx, &model.ValidationRun{
		ID:        "run-y",
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
	}))
	require.NoError(t, st.SaveRow(ctx, "run-y", model.RowResult{Index: 0, Status: model.RowSuccess}))

	rec := doGet(t, api.routes(), "/runs/run-y")
	require.Equal(t, http.StatusOK, rec.Code)

	var run model.ValidationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-y", run.ID)
	require.Len(t, run.Rows, 1)
}

func TestServeGetRunNotFound(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doGet(t, api.routes(), "/runs/run-nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeBreakers(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doGet(t, api.routes(), "/breakers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Breakers map[string]string `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Breakers, 4)
	for _, kind := range []string{"navigation", "dom", "ocr", "semantic"} {
		assert.Equal(t, "closed", body.Breakers[kind], kind)
	}
}
