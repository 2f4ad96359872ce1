// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package backend

import (
	"context"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusScheduled RunStatus = "SCHEDULED"
	RunStatusFinished  RunStatus = "FINISHED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusKilled    RunStatus = "KILLED"

	// LifecycleActive is the lifecycle stage of experiments and runs that are not deleted.
	LifecycleActive = "active"

	// DefaultExperimentName is the experiment used when a run is started before any experiment is selected.
	DefaultExperimentName = "Default"
)

// Experiment groups runs under a name and a default artifact location.
type Experiment struct {
	ID               string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
	LifecycleStage   string `json:"lifecycle_stage,omitempty"`
}

// RunInfo holds the metadata of a run.
type RunInfo struct {
	RunID          string    `json:"run_id"`
	ExperimentID   string    `json:"experiment_id"`
	Status         RunStatus `json:"status,omitempty"`
	StartTime      int64     `json:"start_time,omitempty"`
	EndTime        int64     `json:"end_time,omitempty"`
	ArtifactURI    string    `json:"artifact_uri,omitempty"`
	LifecycleStage string    `json:"lifecycle_stage,omitempty"`
}

// Metric is a single numeric observation of a run.
type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// Param is an immutable string parameter of a run.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Tag is a mutable string annotation of a run.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RunData holds everything logged to a run. Metrics contains the latest value of every key.
type RunData struct {
	Metrics []Metric `json:"metrics,omitempty"`
	Params  []Param  `json:"params,omitempty"`
	Tags    []Tag    `json:"tags,omitempty"`
}

// Run is a run with its data.
type Run struct {
	Info RunInfo `json:"info"`
	Data RunData `json:"data"`
}

// ParamsMap returns the run params keyed by name.
func (d RunData) ParamsMap() map[string]string {
	params := make(map[string]string, len(d.Params))
	for _, param := range d.Params {
		params[param.Key] = param.Value
	}
	return params
}

// MetricsMap returns the latest value of every metric keyed by name.
func (d RunData) MetricsMap() map[string]float64 {
	metrics := make(map[string]float64, len(d.Metrics))
	for _, metric := range d.Metrics {
		metrics[metric.Key] = metric.Value
	}
	return metrics
}

// TagsMap returns the run tags keyed by name.
func (d RunData) TagsMap() map[string]string {
	tags := make(map[string]string, len(d.Tags))
	for _, tag := range d.Tags {
		tags[tag.Key] = tag.Value
	}
	return tags
}

// Store is implemented by every tracking backend.
type Store interface {
	// GetExperimentByName returns nil and no error when no experiment has that name.
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)
	// CreateExperiment fails with ErrExperimentAlreadyExists if the name is taken.
	CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error)
	CreateRun(ctx context.Context, experimentID string, startTime int64, tags []Tag) (*RunInfo, error)
	UpdateRun(ctx context.Context, runID string, status RunStatus, endTime int64) (*RunInfo, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	SearchRuns(ctx context.Context, experimentIDs []string) ([]*Run, error)
	LogBatch(ctx context.Context, runID string, metrics []Metric, params []Param, tags []Tag) error
}

// Opener returns the Store serving a tracking endpoint.
type Opener func(ctx context.Context, endpoint string) (Store, error)
