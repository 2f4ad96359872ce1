// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package teleport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationValidate(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		destination   Destination
		expectedError error
		expectedZero  bool
	}{
		"empty destination": {
			expectedError: ErrMissingExperimentName,
			expectedZero:  true,
		},
		"endpoint only": {
			destination:   Destination{TrackingEndpoint: "http://localhost:5000"},
			expectedError: ErrMissingExperimentName,
		},
		"experiment only": {
			destination: Destination{ExperimentName: "exp1"},
		},
		"complete destination": {
			destination: Destination{ExperimentName: "exp1", TrackingEndpoint: "mlruns", ArtifactLocation: "s3://bucket"},
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.ErrorIs(t, test.destination.Validate(), test.expectedError)
			assert.Equal(t, test.expectedZero, test.destination.IsZero())
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MLFLOW_EXPERIMENT_NAME", "exp1")
	t.Setenv("MLFLOW_TRACKING_URI", "http://localhost:5000")
	t.Setenv("MLFLOW_ARTIFACT_LOCATION", "gs://bucket/prefix")

	d, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Destination{
		ExperimentName:   "exp1",
		TrackingEndpoint: "http://localhost:5000",
		ArtifactLocation: "gs://bucket/prefix",
	}, d)
}

func TestContextPassing(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(t.Context())
	assert.False(t, ok)

	d := Destination{ExperimentName: "exp1"}
	got, ok := FromContext(WithDestination(t.Context(), d))
	assert.True(t, ok)
	assert.Equal(t, d, got)
}
