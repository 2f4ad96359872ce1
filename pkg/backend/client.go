// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package backend

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mia-platform/mltrack/internal/logger"
	"github.com/mia-platform/mltrack/pkg/artifact"
)

const (
	loggerName = "mltrack:backend"

	// DefaultTrackingEndpoint is used when logging happens before any endpoint is set.
	DefaultTrackingEndpoint = "mlruns"
)

// ArtifactOpener returns the artifact repository rooted at uri.
type ArtifactOpener func(ctx context.Context, uri string) (artifact.Repository, error)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithArtifactOpener replaces the artifact repository constructor.
func WithArtifactOpener(opener ArtifactOpener) ClientOption {
	return func(c *Client) {
		c.artifacts = opener
	}
}

// WithClock replaces the time source used for run and metric timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// Client keeps the tracking endpoint, the current experiment and the active run
// of a process and forwards logging calls to the Store behind the endpoint.
// Logging without an active run starts a new run in the current experiment.
type Client struct {
	open      Opener
	artifacts ArtifactOpener
	now       func() time.Time

	lock       sync.Mutex
	endpoint   string
	store      Store
	experiment *Experiment
	run        *RunInfo
}

// NewClient returns a Client that opens stores with open.
func NewClient(open Opener, opts ...ClientOption) *Client {
	client := &Client{
		open:      open,
		artifacts: artifact.New,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Endpoint returns the tracking endpoint currently in use.
func (c *Client) Endpoint() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.endpoint
}

// Experiment returns a copy of the current experiment, nil when none is selected.
func (c *Client) Experiment() *Experiment {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.experiment == nil {
		return nil
	}
	experiment := *c.experiment
	return &experiment
}

// ActiveRun returns a copy of the active run, nil when none is started.
func (c *Client) ActiveRun() *RunInfo {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.run == nil {
		return nil
	}
	run := *c.run
	return &run
}

// Store returns the store behind the current endpoint, opening the default one if needed.
func (c *Client) Store(ctx context.Context) (Store, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.currentStore(ctx)
}

// SetTrackingEndpoint points the client to url. Setting the endpoint already in use is a no-op,
// switching endpoint forgets the current experiment and the active run.
func (c *Client) SetTrackingEndpoint(ctx context.Context, url string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.store != nil && c.endpoint == url {
		return nil
	}

	store, err := c.open(ctx, url)
	if err != nil {
		return NewError("set tracking endpoint", err)
	}

	logger.Named(ctx, loggerName).Debug("tracking endpoint set", "endpoint", url)
	c.endpoint = url
	c.store = store
	c.experiment = nil
	c.run = nil
	return nil
}

// GetExperimentByName returns nil and no error when the experiment does not exist.
func (c *Client) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	store, err := c.currentStore(ctx)
	if err != nil {
		return nil, err
	}

	experiment, err := store.GetExperimentByName(ctx, name)
	return experiment, NewError("get experiment", err)
}

// CreateExperiment creates a new experiment and returns its id.
func (c *Client) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	store, err := c.currentStore(ctx)
	if err != nil {
		return "", err
	}

	id, err := store.CreateExperiment(ctx, name, artifactLocation)
	if err != nil {
		return "", NewError("create experiment", err)
	}

	logger.Named(ctx, loggerName).Info("experiment created", "experiment", name, "experimentId", id)
	return id, nil
}

// SetExperiment selects the experiment called name, creating it when missing.
// Selecting a different experiment ends the active run.
func (c *Client) SetExperiment(ctx context.Context, name string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.setExperiment(ctx, name)
}

// StartRun resumes runID, or starts a new run in the current experiment when runID is empty.
// Resuming the run that is already active is a no-op.
func (c *Client) StartRun(ctx context.Context, runID string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.run != nil && runID != "" && c.run.RunID == runID {
		return nil
	}

	if c.run != nil {
		if err := c.endRun(ctx, RunStatusFinished); err != nil {
			return err
		}
	}

	if runID == "" {
		_, err := c.startRun(ctx)
		return err
	}

	store, err := c.currentStore(ctx)
	if err != nil {
		return err
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return NewError("resume run", err)
	}

	info, err := store.UpdateRun(ctx, runID, RunStatusRunning, 0)
	if err != nil {
		return NewError("resume run", err)
	}

	logger.Named(ctx, loggerName).Debug("run resumed", "runId", runID, "experimentId", run.Info.ExperimentID)
	c.run = info
	return nil
}

// EndRun marks the active run as finished, it does nothing when no run is active.
func (c *Client) EndRun(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.endRun(ctx, RunStatusFinished)
}

// LogParams logs params to the active run, values are formatted with fmt.
func (c *Client) LogParams(ctx context.Context, params map[string]any) error {
	if len(params) == 0 {
		return nil
	}

	batch := make([]Param, 0, len(params))
	for _, key := range slices.Sorted(maps.Keys(params)) {
		batch = append(batch, Param{Key: key, Value: fmt.Sprint(params[key])})
	}

	return c.logBatch(ctx, "log params", nil, batch, nil)
}

// LogMetrics logs metrics to the active run. A nil step logs at step 0.
func (c *Client) LogMetrics(ctx context.Context, metrics map[string]float64, step *int64) error {
	if len(metrics) == 0 {
		return nil
	}

	var metricStep int64
	if step != nil {
		metricStep = *step
	}

	timestamp := c.now().UnixMilli()
	batch := make([]Metric, 0, len(metrics))
	for _, key := range slices.Sorted(maps.Keys(metrics)) {
		batch = append(batch, Metric{Key: key, Value: metrics[key], Timestamp: timestamp, Step: metricStep})
	}

	return c.logBatch(ctx, "log metrics", batch, nil, nil)
}

// SetTags sets tags on the active run, values are formatted with fmt.
func (c *Client) SetTags(ctx context.Context, tags map[string]any) error {
	if len(tags) == 0 {
		return nil
	}

	batch := make([]Tag, 0, len(tags))
	for _, key := range slices.Sorted(maps.Keys(tags)) {
		batch = append(batch, Tag{Key: key, Value: fmt.Sprint(tags[key])})
	}

	return c.logBatch(ctx, "set tags", nil, nil, batch)
}

// LogArtifact uploads the file or directory at path to the root of the active run artifacts.
func (c *Client) LogArtifact(ctx context.Context, path string) error {
	return c.LogArtifactTo(ctx, path, "")
}

// LogArtifactTo uploads the file or directory at path under artifactPath in the active run artifacts.
func (c *Client) LogArtifactTo(ctx context.Context, path, artifactPath string) error {
	c.lock.Lock()
	run, err := c.activeRun(ctx)
	c.lock.Unlock()
	if err != nil {
		return err
	}

	repository, err := c.artifacts(ctx, run.ArtifactURI)
	if err != nil {
		return NewError("log artifact", err)
	}

	if err := repository.LogArtifact(ctx, path, artifactPath); err != nil {
		return NewError("log artifact", err)
	}

	logger.Named(ctx, loggerName).Debug("artifact logged", "runId", run.RunID, "path", path, "artifactPath", artifactPath)
	return nil
}

func (c *Client) logBatch(ctx context.Context, op string, metrics []Metric, params []Param, tags []Tag) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	run, err := c.activeRun(ctx)
	if err != nil {
		return err
	}

	if err := c.store.LogBatch(ctx, run.RunID, metrics, params, tags); err != nil {
		return NewError(op, err)
	}

	logger.Named(ctx, loggerName).Trace("batch logged",
		"op", op,
		"runId", run.RunID,
		"metrics", len(metrics),
		"params", len(params),
		"tags", len(tags),
	)
	return nil
}

// currentStore must be called with the lock held.
func (c *Client) currentStore(ctx context.Context) (Store, error) {
	if c.store != nil {
		return c.store, nil
	}

	store, err := c.open(ctx, DefaultTrackingEndpoint)
	if err != nil {
		return nil, NewError("open default endpoint", err)
	}

	c.endpoint = DefaultTrackingEndpoint
	c.store = store
	return store, nil
}

// setExperiment must be called with the lock held.
func (c *Client) setExperiment(ctx context.Context, name string) error {
	store, err := c.currentStore(ctx)
	if err != nil {
		return err
	}

	experiment, err := store.GetExperimentByName(ctx, name)
	if err != nil {
		return NewError("set experiment", err)
	}

	if experiment == nil {
		id, err := store.CreateExperiment(ctx, name, "")
		if err != nil && !errors.Is(err, ErrExperimentAlreadyExists) {
			return NewError("set experiment", err)
		}

		if experiment, err = store.GetExperimentByName(ctx, name); err != nil {
			return NewError("set experiment", err)
		}
		if experiment == nil {
			return NewError("set experiment", fmt.Errorf("%w: %s (%s)", ErrExperimentNotFound, name, id))
		}
	}

	if c.run != nil && c.run.ExperimentID != experiment.ID {
		if err := c.endRun(ctx, RunStatusFinished); err != nil {
			return err
		}
	}

	c.experiment = experiment
	return nil
}

// activeRun must be called with the lock held.
func (c *Client) activeRun(ctx context.Context) (*RunInfo, error) {
	if c.run != nil {
		return c.run, nil
	}
	return c.startRun(ctx)
}

// startRun must be called with the lock held.
func (c *Client) startRun(ctx context.Context) (*RunInfo, error) {
	if c.experiment == nil {
		if err := c.setExperiment(ctx, DefaultExperimentName); err != nil {
			return nil, err
		}
	}

	run, err := c.store.CreateRun(ctx, c.experiment.ID, c.now().UnixMilli(), nil)
	if err != nil {
		return nil, NewError("start run", err)
	}

	logger.Named(ctx, loggerName).Debug("run started", "runId", run.RunID, "experiment", c.experiment.Name)
	c.run = run
	return run, nil
}

// endRun must be called with the lock held.
func (c *Client) endRun(ctx context.Context, status RunStatus) error {
	if c.run == nil {
		return nil
	}

	runID := c.run.RunID
	if _, err := c.store.UpdateRun(ctx, runID, status, c.now().UnixMilli()); err != nil {
		return NewError("end run", err)
	}

	logger.Named(ctx, loggerName).Debug("run ended", "runId", runID, "status", status)
	c.run = nil
	return nil
}
