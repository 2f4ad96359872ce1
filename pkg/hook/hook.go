// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package hook

import (
	"context"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/mltrack/internal/info"
	"github.com/mia-platform/mltrack/internal/logger"
	"github.com/mia-platform/mltrack/internal/render"
	"github.com/mia-platform/mltrack/pkg/teleport"
)

const (
	loggerName = "mltrack:hook"

	modelArtifactPath = "models"
)

var configPatterns = []string{"*.py", "*.yaml"}

// RunMetadata describes the training run to the hook.
type RunMetadata struct {
	// Config is the training configuration as nested maps.
	Config    map[string]any
	MaxEpochs int
	MaxIters  int
	// WorkDir defaults to the work_dir key of Config.
	WorkDir string
	// ModelPath is where the loop saves the trained model, logged when LogModel is set.
	ModelPath string
}

type rankConfig struct {
	Rank      *int `env:"RANK"`
	LocalRank *int `env:"LOCAL_RANK"`
}

// Option customizes a Hook.
type Option func(*Hook)

// WithStore uses store instead of the process wide teleport store.
func WithStore(store *teleport.Store) Option {
	return func(h *Hook) {
		h.store = store
	}
}

// WithRank overrides the worker rank read from the environment.
func WithRank(rank int) Option {
	return func(h *Hook) {
		h.rank = rank
	}
}

// Hook logs a training run: params and tags at start, scalars at every logging
// step, artifacts at the end.
type Hook struct {
	options Options
	store   *teleport.Store
	rank    int
	tags    *render.Renderer

	metadata RunMetadata
}

// New returns a Hook for options. The worker rank is read from RANK, then LOCAL_RANK.
// Tag values are parsed as go templates rendered against the run metadata at start.
func New(options Options, opts ...Option) (*Hook, error) {
	ranks, err := env.ParseAs[rankConfig]()
	if err != nil {
		return nil, err
	}

	tags, err := render.New(options.Tags)
	if err != nil {
		return nil, err
	}

	if options.ExperimentName == "" {
		options.ExperimentName = DefaultExperimentName
	}

	hook := &Hook{options: options, tags: tags}
	switch {
	case ranks.Rank != nil:
		hook.rank = *ranks.Rank
	case ranks.LocalRank != nil:
		hook.rank = *ranks.LocalRank
	}

	for _, opt := range opts {
		opt(hook)
	}
	if hook.store == nil {
		hook.store = teleport.Default()
	}
	return hook, nil
}

// IsPrimary reports whether this worker talks to the backend.
func (h *Hook) IsPrimary() bool {
	return h.rank == 0
}

// Destination returns where the hook sends the run.
func (h *Hook) Destination() teleport.Destination {
	return teleport.Destination{
		ExperimentName:   h.options.ExperimentName,
		TrackingEndpoint: h.options.TrackingURI,
		ArtifactLocation: h.options.ArtifactLocation,
	}
}

// OnRunStart selects the experiment, resumes the configured run if any, and logs
// tags and the hyper parameters found in the training config. Calling it again with
// the same metadata logs to the same run.
func (h *Hook) OnRunStart(ctx context.Context, metadata RunMetadata) error {
	if !h.IsPrimary() {
		return nil
	}

	if err := h.store.Set(ctx, h.Destination()); err != nil {
		return err
	}

	client := h.store.Client()
	if h.options.RunID != "" {
		if err := client.StartRun(ctx, h.options.RunID); err != nil {
			return err
		}
	}

	h.metadata = metadata
	tags, err := h.runTags()
	if err != nil {
		return err
	}
	if err := client.SetTags(ctx, tags); err != nil {
		return err
	}

	params := extractParams(metadata)
	for key, value := range h.options.AdditionalParams {
		params[key] = value
	}
	if err := client.LogParams(ctx, params); err != nil {
		return err
	}

	logger.Named(ctx, loggerName).Info("training run started",
		"experiment", h.options.ExperimentName,
		"runId", client.ActiveRun().RunID,
	)
	return nil
}

// OnLogStep logs the scalars buffered by the loop at iteration.
func (h *Hook) OnLogStep(ctx context.Context, iteration int64, scalars map[string]float64) error {
	if !h.IsPrimary() || len(scalars) == 0 {
		return nil
	}

	return h.store.Client().LogMetrics(ctx, scalars, &iteration)
}

// OnRunEnd logs the model when requested, every artifact path and the first config
// file of the work dir, then ends the run.
func (h *Hook) OnRunEnd(ctx context.Context, artifactPaths ...string) error {
	if !h.IsPrimary() {
		return nil
	}

	log := logger.Named(ctx, loggerName)
	client := h.store.Client()
	if h.options.LogModel && h.metadata.ModelPath != "" {
		if err := client.LogArtifactTo(ctx, h.metadata.ModelPath, modelArtifactPath); err != nil {
			return err
		}
	}

	for _, path := range artifactPaths {
		if err := client.LogArtifact(ctx, path); err != nil {
			return err
		}
	}

	if configPath := findConfigFile(h.workDir()); configPath != "" {
		if err := client.LogArtifact(ctx, configPath); err != nil {
			return err
		}
	} else {
		log.Debug("no config file found in work dir", "workDir", h.workDir())
	}

	if err := client.EndRun(ctx); err != nil {
		return err
	}

	log.Info("training run ended", "experiment", h.options.ExperimentName)
	return nil
}

// runTags renders the user tags against the run metadata, the keys available to
// templates are experiment, rank, work_dir, max_epochs, max_iters and config.
func (h *Hook) runTags() (map[string]any, error) {
	rendered, err := h.tags.Render(map[string]any{
		"experiment": h.options.ExperimentName,
		"rank":       h.rank,
		"work_dir":   h.workDir(),
		"max_epochs": h.metadata.MaxEpochs,
		"max_iters":  h.metadata.MaxIters,
		"config":     h.metadata.Config,
	})
	if err != nil {
		return nil, err
	}

	tags := map[string]any{
		"mltrack": info.Version,
		"go":      runtime.Version(),
	}
	for key, value := range rendered {
		tags[key] = value
	}
	return tags, nil
}

func (h *Hook) workDir() string {
	if h.metadata.WorkDir != "" {
		return h.metadata.WorkDir
	}
	if workDir, ok := lookup(h.metadata.Config, "work_dir").(string); ok {
		return workDir
	}
	return ""
}

// extractParams picks the well known hyper parameters out of the training config,
// missing keys are skipped.
func extractParams(metadata RunMetadata) map[string]any {
	params := make(map[string]any)
	recordings := map[string][]string{
		"model_arch":      {"model", "type"},
		"backbone":        {"model", "backbone", "type"},
		"samples_per_gpu": {"data", "samples_per_gpu"},
		"optimizer":       {"optimizer", "type"},
		"init_lr":         {"optimizer", "lr"},
	}
	for name, path := range recordings {
		if value := lookup(metadata.Config, path...); value != nil {
			params[name] = value
		}
	}

	if metadata.MaxEpochs > 0 {
		params["num_epochs"] = metadata.MaxEpochs
	}
	if metadata.MaxIters > 0 {
		params["num_iters"] = metadata.MaxIters
	}
	return params
}

func lookup(config map[string]any, path ...string) any {
	var current any = config
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = node[key]; !ok {
			return nil
		}
	}
	return current
}

func findConfigFile(workDir string) string {
	if workDir == "" {
		return ""
	}

	for _, pattern := range configPatterns {
		matches, err := filepath.Glob(filepath.Join(workDir, pattern))
		if err != nil || len(matches) == 0 {
			continue
		}
		slices.Sort(matches)
		return matches[0]
	}
	return ""
}
