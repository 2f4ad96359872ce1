// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mia-platform/mltrack/internal/server"
	"github.com/mia-platform/mltrack/pkg/backend"
	"github.com/mia-platform/mltrack/pkg/backend/filestore"
	"github.com/mia-platform/mltrack/pkg/backend/stores"
	"github.com/mia-platform/mltrack/pkg/teleport"
)

var (
	errNoArguments     = errors.New("no arguments provided")
	errInvalidKeyValue = errors.New("invalid key=value argument")
	errInvalidMetric   = errors.New("metric value is not a number")

	// storeGetter returns the teleport store used by the log commands.
	// It can be overridden for testing purposes.
	storeGetter = func() *teleport.Store {
		return teleport.NewStore(stores.NewClient())
	}

	// serverGetter returns the tracking server for the server command.
	// It can be overridden for testing purposes.
	serverGetter = func(ctx context.Context, root string) (server.Server, error) {
		store, err := filestore.New(root)
		if err != nil {
			return nil, err
		}
		return server.NewServer(ctx, store)
	}
)

// handleError will do custom print error handling based on the type of error received.
// it will return nil if the command must return 0 exit code, otherwise it will return
// the original error.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, errNoArguments):
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return nil
	case errors.Is(err, errInvalidKeyValue), errors.Is(err, teleport.ErrMissingExperimentName):
		cmd.PrintErrln(err)
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}

// parseKeyValues splits every key=value argument, the value may contain '='.
func parseKeyValues(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, errNoArguments
	}

	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidKeyValue, arg)
		}
		values[key] = value
	}
	return values, nil
}

func parseMetrics(args []string) (map[string]float64, error) {
	values, err := parseKeyValues(args)
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]float64, len(values))
	for key, value := range values {
		number, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%s", errInvalidMetric, key, value)
		}
		metrics[key] = number
	}
	return metrics, nil
}

func toAnyMap(values map[string]string) map[string]any {
	converted := make(map[string]any, len(values))
	for key, value := range values {
		converted[key] = value
	}
	return converted
}

// experimentOrNotFound converts a missing experiment into an error.
func experimentOrNotFound(experiment *backend.Experiment, name string) (*backend.Experiment, error) {
	if experiment == nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrExperimentNotFound, name)
	}
	return experiment, nil
}
