// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mia-platform/mltrack/pkg/teleport"
)

const (
	experimentFlagName  = "experiment"
	experimentFlagShort = "e"
	experimentFlagUsage = "experiment to log to, defaults to MLFLOW_EXPERIMENT_NAME"

	trackingURIFlagName  = "tracking-uri"
	trackingURIFlagUsage = "tracking server url or local directory, defaults to MLFLOW_TRACKING_URI or ./mlruns"

	artifactLocationFlagName  = "artifact-location"
	artifactLocationFlagUsage = "artifact location used when the experiment is created, defaults to MLFLOW_ARTIFACT_LOCATION"

	runIDFlagName  = "run-id"
	runIDFlagUsage = "resume the run with this id instead of starting a new one"

	endRunFlagName  = "end"
	endRunFlagUsage = "mark the run as finished after logging"

	stepFlagName  = "step"
	stepFlagUsage = "step of the logged metrics"

	artifactPathFlagName  = "artifact-path"
	artifactPathFlagUsage = "directory inside the run artifacts where the file is stored"

	rootFlagName  = "root"
	rootFlagUsage = "directory holding the tracking data"
	defaultRoot   = "mlruns"
)

// destinationFlags collects the flags selecting where data is logged.
type destinationFlags struct {
	experiment       string
	trackingURI      string
	artifactLocation string
}

// addFlags registers the destination flags as persistent flags of cmd.
func (f *destinationFlags) addFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&f.experiment, experimentFlagName, experimentFlagShort, "", experimentFlagUsage)
	flags.StringVar(&f.trackingURI, trackingURIFlagName, "", trackingURIFlagUsage)
	flags.StringVar(&f.artifactLocation, artifactLocationFlagName, "", artifactLocationFlagUsage)
}

// toDestination reads the destination from the environment and overrides it with the set flags.
func (f *destinationFlags) toDestination() (teleport.Destination, error) {
	destination, err := teleport.FromEnv()
	if err != nil {
		return teleport.Destination{}, err
	}

	if f.experiment != "" {
		destination.ExperimentName = f.experiment
	}
	if f.trackingURI != "" {
		destination.TrackingEndpoint = f.trackingURI
	}
	if f.artifactLocation != "" {
		destination.ArtifactLocation = f.artifactLocation
	}
	return destination, nil
}

// runFlags collects the flags selecting the run to log to.
type runFlags struct {
	runID  string
	endRun bool
}

func (f *runFlags) addFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.runID, runIDFlagName, "", runIDFlagUsage)
	flags.BoolVar(&f.endRun, endRunFlagName, false, endRunFlagUsage)
}
