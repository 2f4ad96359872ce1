// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mia-platform/mltrack/internal/info"
	"github.com/mia-platform/mltrack/internal/logger"
	"github.com/mia-platform/mltrack/internal/server"
	"github.com/mia-platform/mltrack/pkg/backend"
	"github.com/mia-platform/mltrack/pkg/teleport"
)

const loggerName = "mltrack:cmd"

// logFunc logs something to the active run and returns a short description of what it did.
type logFunc func(ctx context.Context, client *backend.Client) (string, error)

// logOptions configures a single logging invocation.
type logOptions struct {
	destination teleport.Destination
	runID       string
	endRun      bool
	store       *teleport.Store
	out         io.Writer
}

func newLogOptions(destinationFlags *destinationFlags, runFlags *runFlags, out io.Writer) (*logOptions, error) {
	destination, err := destinationFlags.toDestination()
	if err != nil {
		return nil, err
	}
	if destination.ExperimentName == "" {
		destination.ExperimentName = backend.DefaultExperimentName
	}

	return &logOptions{
		destination: destination,
		runID:       runFlags.runID,
		endRun:      runFlags.endRun,
		store:       storeGetter(),
		out:         out,
	}, nil
}

// execute selects the destination and the run, then calls log.
func (o *logOptions) execute(ctx context.Context, log logFunc) error {
	if err := o.store.Set(ctx, o.destination); err != nil {
		return err
	}

	client := o.store.Client()
	if o.runID != "" {
		if err := client.StartRun(ctx, o.runID); err != nil {
			return err
		}
	}

	summary, err := log(ctx, client)
	if err != nil {
		return err
	}

	run := client.ActiveRun()
	if run == nil {
		return nil
	}

	if o.endRun {
		if err := client.EndRun(ctx); err != nil {
			return err
		}
	}

	logger.Named(ctx, loggerName).Debug("logging completed", "runId", run.RunID, "ended", o.endRun)
	fmt.Fprintf(o.out, "%s to run %s in experiment %q\n", summary, run.RunID, o.destination.ExperimentName)
	return nil
}

// experimentOptions configures the experiments commands.
type experimentOptions struct {
	destination teleport.Destination
	name        string
	store       *teleport.Store
	out         io.Writer
}

func newExperimentOptions(destinationFlags *destinationFlags, args []string, out io.Writer) (*experimentOptions, error) {
	if len(args) == 0 {
		return nil, errNoArguments
	}

	destination, err := destinationFlags.toDestination()
	if err != nil {
		return nil, err
	}

	return &experimentOptions{
		destination: destination,
		name:        args[0],
		store:       storeGetter(),
		out:         out,
	}, nil
}

func (o *experimentOptions) client(ctx context.Context) (*backend.Client, error) {
	client := o.store.Client()
	if o.destination.TrackingEndpoint != "" {
		if err := client.SetTrackingEndpoint(ctx, o.destination.TrackingEndpoint); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// get prints the experiment together with its runs.
func (o *experimentOptions) get(ctx context.Context) error {
	client, err := o.client(ctx)
	if err != nil {
		return err
	}

	experiment, err := client.GetExperimentByName(ctx, o.name)
	if err != nil {
		return err
	}
	if experiment, err = experimentOrNotFound(experiment, o.name); err != nil {
		return err
	}

	store, err := client.Store(ctx)
	if err != nil {
		return err
	}
	runs, err := store.SearchRuns(ctx, []string{experiment.ID})
	if err != nil {
		return err
	}

	printJSON(o.out, "Experiment", experiment)
	printJSON(o.out, "Runs", runs)
	return nil
}

// create creates the experiment and prints its id.
func (o *experimentOptions) create(ctx context.Context) error {
	client, err := o.client(ctx)
	if err != nil {
		return err
	}

	id, err := client.CreateExperiment(ctx, o.name, o.destination.ArtifactLocation)
	if err != nil {
		return err
	}

	fmt.Fprintf(o.out, "experiment %q created with id %s\n", o.name, id)
	return nil
}

// serverOptions configures the tracking server command.
type serverOptions struct {
	root string
}

// execute runs the server until it fails or the process is interrupted.
func (o *serverOptions) execute(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := serverGetter(ctx, o.root)
	if err != nil {
		return err
	}

	return o.executeWith(ctx, srv)
}

func (o *serverOptions) executeWith(ctx context.Context, srv server.Server) error {
	log := logger.Named(ctx, loggerName)
	log.Info("starting tracking server", "root", o.root, "version", info.VersionString())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		log.Info("stopping tracking server")
		return srv.Stop()
	}
}
