// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package hook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultExperimentName is the experiment used when the options do not name one.
const DefaultExperimentName = "default"

// Options configures a Hook.
type Options struct {
	ExperimentName   string            `yaml:"experiment_name" env:"MLFLOW_EXPERIMENT_NAME"`
	RunID            string            `yaml:"run_id" env:"MLFLOW_RUN_ID"`
	LogModel         bool              `yaml:"log_model" env:"MLTRACK_LOG_MODEL"`
	Tags             map[string]string `yaml:"tags"`
	AdditionalParams map[string]any    `yaml:"additional_params"`
	TrackingURI      string            `yaml:"tracking_uri" env:"MLFLOW_TRACKING_URI"`
	ArtifactLocation string            `yaml:"artifact_location" env:"MLFLOW_ARTIFACT_LOCATION"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{ExperimentName: DefaultExperimentName}
}

// OptionsFromEnv returns the default options overridden by the environment.
func OptionsFromEnv() (Options, error) {
	options := DefaultOptions()
	if err := env.Parse(&options); err != nil {
		return Options{}, err
	}
	return options, nil
}

// LoadOptions reads the yaml file at path on top of the defaults, the environment
// has the last word. Unknown keys are rejected.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}

	options, err := decodeOptions(data)
	if err != nil {
		return Options{}, fmt.Errorf("reading hook options %s: %w", path, err)
	}

	if err := env.Parse(&options); err != nil {
		return Options{}, err
	}
	return options, nil
}

func decodeOptions(data []byte) (Options, error) {
	options := DefaultOptions()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&options); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, err
	}

	if options.ExperimentName == "" {
		options.ExperimentName = DefaultExperimentName
	}
	return options, nil
}
