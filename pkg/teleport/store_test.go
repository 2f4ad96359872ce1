// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package teleport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/mltrack/pkg/backend"
	"github.com/mia-platform/mltrack/pkg/backend/fake"
)

func newTestStore(t *testing.T) (*Store, *fake.FakeStore, *[]string) {
	t.Helper()

	fakeStore := fake.NewFakeStore(t)
	endpoints := new([]string)
	return NewStore(backend.NewClient(fakeStore.Opener(endpoints))), fakeStore, endpoints
}

func TestGetBeforeSet(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	_, err := store.Get()
	assert.ErrorIs(t, err, ErrContextNotSet)
}

func TestSetSelectsExperiment(t *testing.T) {
	t.Parallel()

	store, fakeStore, endpoints := newTestStore(t)
	d := Destination{ExperimentName: "exp1", TrackingEndpoint: "remote", ArtifactLocation: "s3://bucket/exp1"}
	require.NoError(t, store.Set(t.Context(), d))

	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, []string{"remote"}, *endpoints)
	assert.Equal(t, "exp1", store.Client().Experiment().Name)
	assert.Equal(t, "s3://bucket/exp1", store.Client().Experiment().ArtifactLocation)

	require.NoError(t, store.Set(t.Context(), d))
	assert.Equal(t, []string{backend.DefaultExperimentName, "exp1"}, fakeStore.Experiments())
	assert.Equal(t, []string{"remote"}, *endpoints)
}

func TestSetWithoutEndpointKeepsCurrentOne(t *testing.T) {
	t.Parallel()

	store, _, endpoints := newTestStore(t)
	require.NoError(t, store.Set(t.Context(), Destination{ExperimentName: "exp1"}))
	assert.Equal(t, []string{backend.DefaultTrackingEndpoint}, *endpoints)
	assert.Equal(t, "exp1", store.Client().Experiment().Name)
}

func TestSetRejectsInvalidDestination(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	assert.ErrorIs(t, store.Set(t.Context(), Destination{}), ErrMissingExperimentName)

	_, err := store.Get()
	assert.ErrorIs(t, err, ErrContextNotSet)
}

func TestSetBackendUnavailable(t *testing.T) {
	t.Parallel()

	store, fakeStore, _ := newTestStore(t)
	fakeStore.Err = backend.ErrBackendUnavailable

	err := store.Set(t.Context(), Destination{ExperimentName: "exp1", TrackingEndpoint: "http://unreachable"})
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)

	_, err = store.Get()
	assert.ErrorIs(t, err, ErrContextNotSet)
}

func TestSetFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	store, fakeStore, _ := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, store.Set(ctx, Destination{ExperimentName: "reachable"}))

	fakeStore.Err = backend.ErrBackendUnavailable
	err := store.Set(ctx, Destination{ExperimentName: "lost", TrackingEndpoint: "http://unreachable"})
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)

	d, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "reachable", d.ExperimentName)

	resolved, err := store.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reachable", resolved.ExperimentName)
}

func TestReplaceSemantics(t *testing.T) {
	t.Parallel()

	store, fakeStore, _ := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, Destination{ExperimentName: "A"}))
	require.NoError(t, store.Set(ctx, Destination{ExperimentName: "B"}))

	d, err := store.Activate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", d.ExperimentName)

	require.NoError(t, store.Client().LogMetrics(ctx, map[string]float64{"loss": 1}, nil))
	run := store.Client().ActiveRun()
	require.NotNil(t, run)

	experiment, err := fakeStore.GetExperimentByName(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, experiment.ID, run.ExperimentID)
}

func TestUseRestoresPrevious(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	ctx := t.Context()

	restore, err := store.Use(ctx, Destination{ExperimentName: "scoped"})
	require.NoError(t, err)
	d, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "scoped", d.ExperimentName)
	restore()

	_, err = store.Get()
	assert.ErrorIs(t, err, ErrContextNotSet)

	require.NoError(t, store.Set(ctx, Destination{ExperimentName: "outer"}))
	restore, err = store.Use(ctx, Destination{ExperimentName: "inner"})
	require.NoError(t, err)
	restore()

	d, err = store.Get()
	require.NoError(t, err)
	assert.Equal(t, "outer", d.ExperimentName)
}

func TestUseFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	store, fakeStore, _ := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, store.Set(ctx, Destination{ExperimentName: "outer"}))

	fakeStore.Err = backend.ErrBackendUnavailable
	restore, err := store.Use(ctx, Destination{ExperimentName: "inner", TrackingEndpoint: "http://unreachable"})
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
	require.NotNil(t, restore)
	restore()

	d, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "outer", d.ExperimentName)
}

func TestResolveOrder(t *testing.T) {
	t.Setenv("MLFLOW_EXPERIMENT_NAME", "")
	store, _, _ := newTestStore(t)
	ctx := t.Context()

	_, err := store.Resolve(ctx)
	assert.ErrorIs(t, err, ErrContextNotSet)

	t.Setenv("MLFLOW_EXPERIMENT_NAME", "from-env")
	d, err := store.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-env", d.ExperimentName)

	require.NoError(t, store.Set(ctx, Destination{ExperimentName: "from-store"}))
	d, err = store.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-store", d.ExperimentName)

	d, err = store.Resolve(WithDestination(ctx, Destination{ExperimentName: "from-context"}))
	require.NoError(t, err)
	assert.Equal(t, "from-context", d.ExperimentName)
}

func TestPackageLevelFunctions(t *testing.T) {
	ctx := t.Context()
	root := t.TempDir()

	d := Destination{ExperimentName: "exp1", TrackingEndpoint: root}
	restore, err := Use(ctx, d)
	require.NoError(t, err)
	defer restore()

	got, err := GetDestination()
	require.NoError(t, err)
	assert.Equal(t, d, got)

	got, err = Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	require.NoError(t, SetDestination(ctx, d))
	assert.Equal(t, root, Default().Client().Endpoint())
	assert.Equal(t, "exp1", Default().Client().Experiment().Name)
}
