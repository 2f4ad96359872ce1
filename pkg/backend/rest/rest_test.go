// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package rest

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/mltrack/internal/info"
	"github.com/mia-platform/mltrack/pkg/backend"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(body))
}

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := New(server.URL)
	require.NoError(t, err)
	return store
}

func TestNew(t *testing.T) {
	t.Run("rejects non http endpoints", func(t *testing.T) {
		store, err := New("file:///tmp/mlruns")
		assert.ErrorIs(t, err, backend.ErrUnsupportedEndpoint)
		assert.Nil(t, store)
	})

	t.Run("infers the auth endpoint", func(t *testing.T) {
		store, err := New("https://mlflow.example.com/prefix?x=1")
		require.NoError(t, err)
		assert.Equal(t, "https://mlflow.example.com/oauth/token", store.AuthEndpoint)
	})

	t.Run("client credentials need both values", func(t *testing.T) {
		t.Setenv("MLFLOW_CLIENT_ID", "client-id")
		_, err := New("https://mlflow.example.com")
		assert.ErrorIs(t, err, errMissingClientSecret)
	})

	t.Run("client secret without id", func(t *testing.T) {
		t.Setenv("MLFLOW_CLIENT_SECRET", "client-secret")
		_, err := New("https://mlflow.example.com")
		assert.ErrorIs(t, err, errMissingClientID)
	})

	t.Run("multiple auth methods", func(t *testing.T) {
		t.Setenv("MLFLOW_TRACKING_TOKEN", "token")
		t.Setenv("MLFLOW_TRACKING_USERNAME", "user")
		_, err := New("https://mlflow.example.com")
		assert.ErrorIs(t, err, errMultipleAuthMethods)
	})
}

func TestGetExperimentByName(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/2.0/mlflow/experiments/get-by-name", r.URL.Path)
		assert.Equal(t, info.UserAgent(), r.Header.Get("User-Agent"))

		switch r.URL.Query().Get("experiment_name") {
		case "exp1":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"experiment": map[string]any{
					"experiment_id":     "12",
					"name":              "exp1",
					"artifact_location": "s3://bucket/12",
					"lifecycle_stage":   "active",
				},
			})
		case "broken":
			writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{"message": "database down"})
		default:
			writeJSON(t, w, http.StatusNotFound, map[string]any{
				"error_code": "RESOURCE_DOES_NOT_EXIST",
				"message":    "Could not find experiment",
			})
		}
	})

	experiment, err := store.GetExperimentByName(t.Context(), "exp1")
	require.NoError(t, err)
	assert.Equal(t, &backend.Experiment{ID: "12", Name: "exp1", ArtifactLocation: "s3://bucket/12", LifecycleStage: "active"}, experiment)

	experiment, err = store.GetExperimentByName(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, experiment)

	_, err = store.GetExperimentByName(t.Context(), "broken")
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
	assert.EqualError(t, err, "tracking server answered 503: database down")
}

func TestCreateExperiment(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body := make(map[string]string)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["name"] == "taken" {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{
				"error_code": "RESOURCE_ALREADY_EXISTS",
				"message":    "Experiment 'taken' already exists.",
			})
			return
		}

		assert.Equal(t, map[string]string{"name": "exp1", "artifact_location": "s3://bucket"}, body)
		writeJSON(t, w, http.StatusOK, map[string]any{"experiment_id": "3"})
	})

	id, err := store.CreateExperiment(t.Context(), "exp1", "s3://bucket")
	require.NoError(t, err)
	assert.Equal(t, "3", id)

	_, err = store.CreateExperiment(t.Context(), "taken", "")
	assert.ErrorIs(t, err, backend.ErrExperimentAlreadyExists)
}

func TestRunCalls(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/mlflow/runs/create":
			body := make(map[string]any)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "1", body["experiment_id"])
			writeJSON(t, w, http.StatusOK, map[string]any{
				"run": map[string]any{"info": map[string]any{
					"run_id": "run-1", "experiment_id": "1", "status": "RUNNING", "start_time": 1000,
					"artifact_uri": "s3://bucket/1/run-1/artifacts",
				}},
			})
		case "/api/2.0/mlflow/runs/update":
			body := make(map[string]any)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "FINISHED", body["status"])
			writeJSON(t, w, http.StatusOK, map[string]any{
				"run_info": map[string]any{"run_id": "run-1", "status": "FINISHED", "end_time": 2000},
			})
		case "/api/2.0/mlflow/runs/log-batch":
			body := struct {
				RunID   string           `json:"run_id"`
				Metrics []backend.Metric `json:"metrics"`
				Params  []backend.Param  `json:"params"`
			}{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "run-1", body.RunID)
			assert.Equal(t, []backend.Metric{{Key: "loss", Value: 0.5, Timestamp: 10, Step: 2}}, body.Metrics)
			assert.Equal(t, []backend.Param{{Key: "lr", Value: "0.1"}}, body.Params)
			writeJSON(t, w, http.StatusOK, map[string]any{})
		case "/api/2.0/mlflow/runs/get":
			if r.URL.Query().Get("run_id") != "run-1" {
				writeJSON(t, w, http.StatusNotFound, map[string]any{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "no run"})
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{
				"run": map[string]any{
					"info": map[string]any{"run_id": "run-1", "experiment_id": "1", "status": "FINISHED"},
					"data": map[string]any{
						"metrics": []map[string]any{{"key": "loss", "value": 0.5, "timestamp": 10, "step": 2}},
						"params":  []map[string]any{{"key": "lr", "value": "0.1"}},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	})

	ctx := t.Context()
	info, err := store.CreateRun(ctx, "1", 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/1/run-1/artifacts", info.ArtifactURI)

	err = store.LogBatch(ctx, "run-1",
		[]backend.Metric{{Key: "loss", Value: 0.5, Timestamp: 10, Step: 2}},
		[]backend.Param{{Key: "lr", Value: "0.1"}},
		nil,
	)
	require.NoError(t, err)

	updated, err := store.UpdateRun(ctx, "run-1", backend.RunStatusFinished, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.EndTime)

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"loss": 0.5}, run.Data.MetricsMap())
	assert.Equal(t, map[string]string{"lr": "0.1"}, run.Data.ParamsMap())

	_, err = store.GetRun(ctx, "run-2")
	assert.ErrorIs(t, err, backend.ErrRunNotFound)
}

func TestLogBatchNonFiniteMetrics(t *testing.T) {
	t.Parallel()

	called := false
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/2.0/mlflow/runs/log-batch", r.URL.Path)

		body := struct {
			Metrics []map[string]any `json:"metrics"`
		}{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		values := make(map[string]any, len(body.Metrics))
		for _, metric := range body.Metrics {
			values[metric["key"].(string)] = metric["value"]
		}
		assert.Equal(t, map[string]any{"loss": "NaN", "grad": "Infinity", "reward": "-Infinity", "acc": 0.5}, values)
		writeJSON(t, w, http.StatusOK, map[string]any{})
	})

	err := store.LogBatch(t.Context(), "run-1", []backend.Metric{
		{Key: "loss", Value: math.NaN()},
		{Key: "grad", Value: math.Inf(1)},
		{Key: "reward", Value: math.Inf(-1)},
		{Key: "acc", Value: 0.5},
	}, nil, nil)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestSearchRunsFollowsPages(t *testing.T) {
	t.Parallel()

	calls := 0
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		body := make(map[string]any)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{"1"}, body["experiment_ids"])

		if body["page_token"] == nil {
			writeJSON(t, w, http.StatusOK, map[string]any{
				"runs":            []map[string]any{{"info": map[string]any{"run_id": "a"}}},
				"next_page_token": "next",
			})
			return
		}

		assert.Equal(t, "next", body["page_token"])
		writeJSON(t, w, http.StatusOK, map[string]any{
			"runs": []map[string]any{{"info": map[string]any{"run_id": "b"}}},
		})
	})

	runs, err := store.SearchRuns(t.Context(), []string{"1"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].Info.RunID)
	assert.Equal(t, "b", runs[1].Info.RunID)
	assert.Equal(t, 2, calls)
}

func TestAuthentication(t *testing.T) {
	t.Run("static token", func(t *testing.T) {
		t.Setenv("MLFLOW_TRACKING_TOKEN", "test-token")
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			writeJSON(t, w, http.StatusOK, map[string]any{})
		})
		require.NoError(t, store.LogBatch(t.Context(), "run", nil, nil, nil))
	})

	t.Run("basic auth", func(t *testing.T) {
		t.Setenv("MLFLOW_TRACKING_USERNAME", "user")
		t.Setenv("MLFLOW_TRACKING_PASSWORD", "password")
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "user", username)
			assert.Equal(t, "password", password)
			writeJSON(t, w, http.StatusOK, map[string]any{})
		})
		require.NoError(t, store.LogBatch(t.Context(), "run", nil, nil, nil))
	})

	t.Run("client credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/oauth/token" {
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
				writeJSON(t, w, http.StatusOK, map[string]any{
					"access_token": "generated-token",
					"token_type":   "Bearer",
					"expires_in":   3600,
				})
				return
			}

			assert.Equal(t, "Bearer generated-token", r.Header.Get("Authorization"))
			writeJSON(t, w, http.StatusOK, map[string]any{})
		}))
		defer server.Close()

		t.Setenv("MLFLOW_CLIENT_ID", "client-id")
		t.Setenv("MLFLOW_CLIENT_SECRET", "client-secret")
		store, err := New(server.URL)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()
		require.NoError(t, store.LogBatch(ctx, "run", nil, nil, nil))
	})
}

func TestUnreachableBackend(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	store, err := New(endpoint)
	require.NoError(t, err)

	_, err = store.GetExperimentByName(t.Context(), "exp1")
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
}

func TestContextCancelled(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "should not be called", http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := store.LogBatch(ctx, "run", nil, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
