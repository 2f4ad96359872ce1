// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package backend_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/mltrack/pkg/artifact"
	"github.com/mia-platform/mltrack/pkg/backend"
	"github.com/mia-platform/mltrack/pkg/backend/fake"
)

func fixedClock() time.Time {
	return time.UnixMilli(1000)
}

func TestSetTrackingEndpoint(t *testing.T) {
	t.Parallel()

	store := fake.NewFakeStore(t)
	var endpoints []string
	client := backend.NewClient(store.Opener(&endpoints))

	ctx := t.Context()
	require.NoError(t, client.SetTrackingEndpoint(ctx, "first"))
	require.NoError(t, client.SetTrackingEndpoint(ctx, "first"))
	assert.Equal(t, []string{"first"}, endpoints)

	require.NoError(t, client.SetExperiment(ctx, "exp1"))
	require.NoError(t, client.SetTrackingEndpoint(ctx, "second"))
	assert.Equal(t, []string{"first", "second"}, endpoints)
	assert.Equal(t, "second", client.Endpoint())
	assert.Nil(t, client.Experiment())
}

func TestSetTrackingEndpointFailure(t *testing.T) {
	t.Parallel()

	store := fake.NewFakeStore(t)
	store.Err = backend.ErrBackendUnavailable
	client := backend.NewClient(store.Opener(nil))

	err := client.SetTrackingEndpoint(t.Context(), "http://unreachable")
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)

	var backendErr *backend.Error
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "set tracking endpoint", backendErr.Op)
}

func TestLoggingStartsRunInDefaultExperiment(t *testing.T) {
	t.Parallel()

	store := fake.NewFakeStore(t)
	var endpoints []string
	client := backend.NewClient(store.Opener(&endpoints), backend.WithClock(fixedClock))

	ctx := t.Context()
	require.NoError(t, client.LogParams(ctx, map[string]any{"b": 9, "a": 8}))
	assert.Equal(t, []string{backend.DefaultTrackingEndpoint}, endpoints)

	run := client.ActiveRun()
	require.NotNil(t, run)
	assert.Equal(t, "0", run.ExperimentID)
	assert.Equal(t, int64(1000), run.StartTime)

	require.Len(t, store.Batches, 1)
	assert.Equal(t, []backend.Param{{Key: "a", Value: "8"}, {Key: "b", Value: "9"}}, store.Batches[0].Params)
}

func TestLogMetricsAndTags(t *testing.T) {
	t.Parallel()

	store := fake.NewFakeStore(t)
	client := backend.NewClient(store.Opener(nil), backend.WithClock(fixedClock))

	ctx := t.Context()
	require.NoError(t, client.SetExperiment(ctx, "exp1"))
	step := int64(7)
	require.NoError(t, client.LogMetrics(ctx, map[string]float64{"loss": 0.5}, &step))
	require.NoError(t, client.LogMetrics(ctx, map[string]float64{"acc": 0.9}, nil))
	require.NoError(t, client.SetTags(ctx, map[string]any{"team": "ml"}))
	require.NoError(t, client.LogMetrics(ctx, nil, nil))

	require.Len(t, store.Batches, 3)
	assert.Equal(t, []backend.Metric{{Key: "loss", Value: 0.5, Timestamp: 1000, Step: 7}}, store.Batches[0].Metrics)
	assert.Equal(t, []backend.Metric{{Key: "acc", Value: 0.9, Timestamp: 1000, Step: 0}}, store.Batches[1].Metrics)
	assert.Equal(t, []backend.Tag{{Key: "team", Value: "ml"}}, store.Batches[2].Tags)
}

func TestSetExperimentSwitchEndsRun(t *testing.T) {
	t.Parallel()

	store := fake.NewFakeStore(t)
	client := backend.NewClient(store.Opener(nil))

	ctx := t.Context()
	require.NoError(t, client.SetExperiment(ctx, "A"))
	require.NoError(t, client.LogParams(ctx, map[string]any{"x": 1}))
	runA := client.ActiveRun()
	require.NotNil(t, runA)

	require.NoError(t, client.SetExperiment(ctx, "A"))
	assert.Equal(t, runA.RunID, client.ActiveRun().RunID)

	require.NoError(t, client.SetExperiment(ctx, "B"))
	assert.Nil(t, client.ActiveRun())

	ended, err := store.GetRun(ctx, runA.RunID)
	require.NoError(t, err)
	assert.Equal(t, backend.RunStatusFinished, ended.Info.Status)

	require.NoError(t, client.LogParams(ctx, map[string]any{"x": 2}))
	assert.Equal(t, "B", client.Experiment().Name)
	assert.NotEqual(t, runA.RunID, client.ActiveRun().RunID)
	assert.Equal(t, []string{backend.DefaultExperimentName, "A", "B"}, store.Experiments())
}

func TestStartAndEndRun(t *testing.T) {
	t.Parallel()

	store := fake.NewFakeStore(t)
	client := backend.NewClient(store.Opener(nil))

	ctx := t.Context()
	require.NoError(t, client.StartRun(ctx, ""))
	first := client.ActiveRun()
	require.NotNil(t, first)
	require.NoError(t, client.EndRun(ctx))
	assert.Nil(t, client.ActiveRun())
	require.NoError(t, client.EndRun(ctx))

	require.NoError(t, client.StartRun(ctx, first.RunID))
	resumed := client.ActiveRun()
	require.NotNil(t, resumed)
	assert.Equal(t, first.RunID, resumed.RunID)
	assert.Equal(t, backend.RunStatusRunning, resumed.Status)

	err := client.StartRun(ctx, "missing")
	assert.ErrorIs(t, err, backend.ErrRunNotFound)
}

type recordingRepository struct {
	root    string
	uploads []string
}

func (r *recordingRepository) LogArtifact(_ context.Context, localPath, artifactPath string) error {
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	r.uploads = append(r.uploads, filepath.Join(artifactPath, filepath.Base(localPath)))
	return nil
}

func TestLogArtifact(t *testing.T) {
	t.Parallel()

	store := fake.NewFakeStore(t)
	repository := &recordingRepository{}
	var uris []string
	client := backend.NewClient(store.Opener(nil), backend.WithArtifactOpener(func(_ context.Context, uri string) (artifact.Repository, error) {
		uris = append(uris, uri)
		return repository, nil
	}))

	file := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(file, []byte("weights"), 0o600))

	ctx := t.Context()
	require.NoError(t, client.LogArtifact(ctx, file))
	require.NoError(t, client.LogArtifactTo(ctx, file, "checkpoints"))
	assert.Equal(t, []string{"model.bin", filepath.Join("checkpoints", "model.bin")}, repository.uploads)
	require.Len(t, uris, 2)
	assert.Equal(t, client.ActiveRun().ArtifactURI, uris[0])

	err := client.LogArtifact(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestErrorWrapping(t *testing.T) {
	t.Parallel()

	assert.NoError(t, backend.NewError("op", nil))

	err := backend.NewError("log params", backend.ErrBackendUnavailable)
	assert.EqualError(t, err, "backend log params: tracking backend unavailable")
	assert.True(t, errors.Is(err, backend.ErrBackendUnavailable))
}
