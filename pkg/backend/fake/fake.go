// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/mia-platform/mltrack/pkg/backend"
)

var _ backend.Store = &FakeStore{}

// Batch is a single LogBatch call received by the fake.
type Batch struct {
	RunID   string
	Metrics []backend.Metric
	Params  []backend.Param
	Tags    []backend.Tag
}

// FakeStore keeps everything in memory and records every batch it receives.
type FakeStore struct {
	tb testing.TB

	lock        sync.Mutex
	experiments map[string]*backend.Experiment
	runs        map[string]*backend.Run
	runOrder    []string

	// Err is returned by every call when set.
	Err     error
	Batches []Batch
	Calls   []string
}

// NewFakeStore returns an empty store holding only the default experiment.
func NewFakeStore(tb testing.TB) *FakeStore {
	tb.Helper()
	return &FakeStore{
		tb: tb,
		experiments: map[string]*backend.Experiment{
			"0": {ID: "0", Name: backend.DefaultExperimentName, LifecycleStage: backend.LifecycleActive},
		},
		runs: make(map[string]*backend.Run),
	}
}

// Opener returns a backend.Opener that always answers with the fake, recording the endpoints it was asked for.
func (f *FakeStore) Opener(endpoints *[]string) backend.Opener {
	return func(_ context.Context, endpoint string) (backend.Store, error) {
		if endpoints != nil {
			*endpoints = append(*endpoints, endpoint)
		}
		if f.Err != nil {
			return nil, f.Err
		}
		return f, nil
	}
}

func (f *FakeStore) GetExperimentByName(_ context.Context, name string) (*backend.Experiment, error) {
	f.tb.Helper()
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls = append(f.Calls, "GetExperimentByName")

	if f.Err != nil {
		return nil, f.Err
	}
	for _, experiment := range f.experiments {
		if experiment.Name == name {
			copied := *experiment
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *FakeStore) CreateExperiment(_ context.Context, name, artifactLocation string) (string, error) {
	f.tb.Helper()
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls = append(f.Calls, "CreateExperiment")

	if f.Err != nil {
		return "", f.Err
	}
	for _, experiment := range f.experiments {
		if experiment.Name == name {
			return "", fmt.Errorf("%w: %s", backend.ErrExperimentAlreadyExists, name)
		}
	}

	id := strconv.Itoa(len(f.experiments))
	f.experiments[id] = &backend.Experiment{ID: id, Name: name, ArtifactLocation: artifactLocation, LifecycleStage: backend.LifecycleActive}
	return id, nil
}

func (f *FakeStore) CreateRun(_ context.Context, experimentID string, startTime int64, tags []backend.Tag) (*backend.RunInfo, error) {
	f.tb.Helper()
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls = append(f.Calls, "CreateRun")

	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.experiments[experimentID]; !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrExperimentNotFound, experimentID)
	}

	runID := fmt.Sprintf("run-%d", len(f.runs)+1)
	run := &backend.Run{
		Info: backend.RunInfo{
			RunID:          runID,
			ExperimentID:   experimentID,
			Status:         backend.RunStatusRunning,
			StartTime:      startTime,
			ArtifactURI:    f.tb.TempDir(),
			LifecycleStage: backend.LifecycleActive,
		},
		Data: backend.RunData{Tags: slices.Clone(tags)},
	}
	f.runs[runID] = run
	f.runOrder = append(f.runOrder, runID)

	info := run.Info
	return &info, nil
}

func (f *FakeStore) UpdateRun(_ context.Context, runID string, status backend.RunStatus, endTime int64) (*backend.RunInfo, error) {
	f.tb.Helper()
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls = append(f.Calls, "UpdateRun")

	if f.Err != nil {
		return nil, f.Err
	}
	run, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrRunNotFound, runID)
	}

	run.Info.Status = status
	run.Info.EndTime = endTime
	info := run.Info
	return &info, nil
}

func (f *FakeStore) GetRun(_ context.Context, runID string) (*backend.Run, error) {
	f.tb.Helper()
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls = append(f.Calls, "GetRun")

	if f.Err != nil {
		return nil, f.Err
	}
	run, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrRunNotFound, runID)
	}
	return f.snapshot(run), nil
}

func (f *FakeStore) SearchRuns(_ context.Context, experimentIDs []string) ([]*backend.Run, error) {
	f.tb.Helper()
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls = append(f.Calls, "SearchRuns")

	if f.Err != nil {
		return nil, f.Err
	}

	runs := make([]*backend.Run, 0)
	for _, runID := range slices.Backward(f.runOrder) {
		run := f.runs[runID]
		if slices.Contains(experimentIDs, run.Info.ExperimentID) {
			runs = append(runs, f.snapshot(run))
		}
	}
	return runs, nil
}

func (f *FakeStore) LogBatch(_ context.Context, runID string, metrics []backend.Metric, params []backend.Param, tags []backend.Tag) error {
	f.tb.Helper()
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Calls = append(f.Calls, "LogBatch")

	if f.Err != nil {
		return f.Err
	}
	run, ok := f.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", backend.ErrRunNotFound, runID)
	}

	f.Batches = append(f.Batches, Batch{RunID: runID, Metrics: metrics, Params: params, Tags: tags})
	run.Data.Metrics = append(run.Data.Metrics, metrics...)
	run.Data.Params = append(run.Data.Params, params...)
	run.Data.Tags = append(run.Data.Tags, tags...)
	return nil
}

// Experiments returns the names of all known experiments, sorted.
func (f *FakeStore) Experiments() []string {
	f.lock.Lock()
	defer f.lock.Unlock()

	names := make([]string, 0, len(f.experiments))
	for _, id := range slices.Sorted(maps.Keys(f.experiments)) {
		names = append(names, f.experiments[id].Name)
	}
	return names
}

// snapshot keeps only the latest value of every metric, as tracking servers do.
func (f *FakeStore) snapshot(run *backend.Run) *backend.Run {
	latest := make(map[string]backend.Metric)
	keys := make([]string, 0)
	for _, metric := range run.Data.Metrics {
		current, ok := latest[metric.Key]
		if !ok {
			keys = append(keys, metric.Key)
		}
		if !ok || metric.Step >= current.Step {
			latest[metric.Key] = metric
		}
	}

	copied := &backend.Run{
		Info: run.Info,
		Data: backend.RunData{
			Params: slices.Clone(run.Data.Params),
			Tags:   slices.Clone(run.Data.Tags),
		},
	}
	for _, key := range keys {
		copied.Data.Metrics = append(copied.Data.Metrics, latest[key])
	}
	return copied
}
