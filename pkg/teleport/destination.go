// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package teleport

import (
	"context"
	"errors"

	"github.com/caarlos0/env/v11"
)

var (
	// ErrContextNotSet is returned when a destination is needed but none was established.
	ErrContextNotSet = errors.New("tracking destination not set")
	// ErrMissingExperimentName is returned by Validate for destinations without an experiment.
	ErrMissingExperimentName = errors.New("destination experiment name is required")
)

// Destination identifies where tracked data is sent.
type Destination struct {
	ExperimentName   string `env:"MLFLOW_EXPERIMENT_NAME"`
	TrackingEndpoint string `env:"MLFLOW_TRACKING_URI"`
	ArtifactLocation string `env:"MLFLOW_ARTIFACT_LOCATION"`
}

// IsZero reports whether no field of d is set.
func (d Destination) IsZero() bool {
	return d == Destination{}
}

// Validate checks that d names an experiment.
func (d Destination) Validate() error {
	if d.ExperimentName == "" {
		return ErrMissingExperimentName
	}
	return nil
}

// FromEnv reads a destination from the MLFLOW_* environment variables, the result is
// zero when none of them is set.
func FromEnv() (Destination, error) {
	return env.ParseAs[Destination]()
}

type contextKeyType struct{}

var contextKey = contextKeyType{}

// WithDestination returns a copy of ctx carrying d, it takes precedence over the process wide destination.
func WithDestination(ctx context.Context, d Destination) context.Context {
	return context.WithValue(ctx, contextKey, d)
}

// FromContext returns the destination carried by ctx, if any.
func FromContext(ctx context.Context) (Destination, bool) {
	if ctx == nil {
		return Destination{}, false
	}
	d, ok := ctx.Value(contextKey).(Destination)
	return d, ok
}
