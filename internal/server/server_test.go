// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/mltrack/internal/info"
	"github.com/mia-platform/mltrack/pkg/backend"
	"github.com/mia-platform/mltrack/pkg/backend/filestore"
	"github.com/mia-platform/mltrack/pkg/backend/rest"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	return newApp(t.Context(), &config{DisableStartupMessage: true, HTTPPort: 5000}, store)
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := app.Test(request)
	require.NoError(t, err)
	defer response.Body.Close()

	decoded := make(map[string]any)
	data, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	if len(data) > 0 && strings.HasPrefix(response.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &decoded))
	}
	return response.StatusCode, decoded
}

func TestNewServer(t *testing.T) {
	t.Run("invalid environment", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "0")
		store, err := filestore.New(t.TempDir())
		require.NoError(t, err)

		_, err = NewServer(t.Context(), store)
		assert.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})

	t.Run("starts and stops the server successfully", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := listener.Addr().(*net.TCPAddr).Port
		require.NoError(t, listener.Close())

		t.Setenv("HTTP_HOST", "127.0.0.1")
		t.Setenv("HTTP_PORT", strconv.Itoa(port))
		store, err := filestore.New(t.TempDir())
		require.NoError(t, err)

		srv, err := NewServer(t.Context(), store)
		require.NoError(t, err)
		srv.StartAsync(t.Context())

		require.Eventually(t, func() bool {
			response, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/-/healthz")
			if err != nil {
				return false
			}
			defer response.Body.Close()
			return response.StatusCode == http.StatusOK
		}, 5*time.Second, 50*time.Millisecond)

		require.NoError(t, srv.Stop())
	})
}

func TestStatusRoutes(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	for _, path := range []string{"/-/healthz", "/-/ready"} {
		status, body := doRequest(t, app, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, map[string]any{"status": "OK", "name": serviceName, "version": info.Version}, body)
	}
}

func TestTrackingRoutes(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	status, body := doRequest(t, app, http.MethodGet, apiPrefix+"/experiments/get-by-name?experiment_name=exp1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "RESOURCE_DOES_NOT_EXIST", body["error_code"])

	status, body = doRequest(t, app, http.MethodPost, apiPrefix+"/experiments/create", `{"name":"exp1"}`)
	require.Equal(t, http.StatusOK, status)
	experimentID, ok := body["experiment_id"].(string)
	require.True(t, ok)

	status, body = doRequest(t, app, http.MethodPost, apiPrefix+"/experiments/create", `{"name":"exp1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "RESOURCE_ALREADY_EXISTS", body["error_code"])

	status, body = doRequest(t, app, http.MethodPost, apiPrefix+"/runs/create", `{"experiment_id":"`+experimentID+`","start_time":1}`)
	require.Equal(t, http.StatusOK, status)
	runID := body["run"].(map[string]any)["info"].(map[string]any)["run_id"].(string)

	status, _ = doRequest(t, app, http.MethodPost, apiPrefix+"/runs/log-batch",
		`{"run_id":"`+runID+`","metrics":[{"key":"loss","value":0.5,"timestamp":2,"step":1}],"params":[{"key":"lr","value":"0.1"}]}`)
	require.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, app, http.MethodPost, apiPrefix+"/runs/log-batch",
		`{"run_id":"`+runID+`","params":[{"key":"lr","value":"0.2"}]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PARAMETER_VALUE", body["error_code"])

	status, body = doRequest(t, app, http.MethodGet, apiPrefix+"/runs/get?run_id="+runID, "")
	require.Equal(t, http.StatusOK, status)
	data := body["run"].(map[string]any)["data"].(map[string]any)
	assert.Len(t, data["metrics"], 1)

	status, body = doRequest(t, app, http.MethodPost, apiPrefix+"/runs/update", `{"run_id":"`+runID+`","status":"FINISHED","end_time":3}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "FINISHED", body["run_info"].(map[string]any)["status"])

	status, body = doRequest(t, app, http.MethodPost, apiPrefix+"/runs/search", `{"experiment_ids":["`+experimentID+`"]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["runs"], 1)

	status, body = doRequest(t, app, http.MethodGet, apiPrefix+"/runs/get?run_id=missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "RESOURCE_DOES_NOT_EXIST", body["error_code"])

	status, body = doRequest(t, app, http.MethodPost, apiPrefix+"/runs/create", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PARAMETER_VALUE", body["error_code"])

	status, body = doRequest(t, app, http.MethodGet, apiPrefix+"/unknown", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ENDPOINT_NOT_FOUND", body["error_code"])
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	doRequest(t, app, http.MethodGet, "/-/healthz", "")

	response, err := app.Test(httptest.NewRequest(http.MethodGet, "/-/metrics", nil))
	require.NoError(t, err)
	defer response.Body.Close()

	require.Equal(t, http.StatusOK, response.StatusCode)
	data, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `mltrack_http_requests_total{code="200",method="GET",route="/-/healthz"} 1`)
	assert.Contains(t, string(data), "go_goroutines")
}

func TestRESTStoreRoundTrip(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(listener)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	store, err := rest.New("http://" + listener.Addr().String())
	require.NoError(t, err)
	client := backend.NewClient(func(_ context.Context, _ string) (backend.Store, error) {
		return store, nil
	})

	ctx := t.Context()
	require.NoError(t, client.SetExperiment(ctx, "remote"))
	require.NoError(t, client.LogMetrics(ctx, map[string]float64{"loss": 0.25}, nil))
	run := client.ActiveRun()
	require.NotNil(t, run)
	require.NoError(t, client.EndRun(ctx))

	logged, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, backend.RunStatusFinished, logged.Info.Status)
	assert.Equal(t, map[string]float64{"loss": 0.25}, logged.Data.MetricsMap())

	_, err = store.CreateExperiment(ctx, "remote", "")
	assert.ErrorIs(t, err, backend.ErrExperimentAlreadyExists)
}
