// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/mia-platform/mltrack/pkg/backend"
)

const (
	logCmdUsage = "log"
	logCmdShort = "log params, metrics, tags or artifacts to a run"
	logCmdLong  = `Log params, metrics, tags or artifacts to a run.
	The destination is read from the MLFLOW_EXPERIMENT_NAME, MLFLOW_TRACKING_URI and
	MLFLOW_ARTIFACT_LOCATION environment variables and can be overridden with flags.
	A new run is started unless --run-id is set.`

	logParamsCmdExample = `# Log two params to a new run of the "resnet" experiment
	mltrack log params lr=0.01 epochs=10 --experiment resnet`

	logMetricsCmdExample = `# Log the loss at step 100 and close the run
	mltrack log metrics loss=0.25 --step 100 --run-id 0123abcd --end`

	logTagsCmdExample = `# Tag a run
	mltrack log tags team=vision --run-id 0123abcd`

	logArtifactCmdExample = `# Store a checkpoint under the models directory of the run
	mltrack log artifact ./checkpoint.pth --artifact-path models --run-id 0123abcd`

	experimentsCmdUsage = "experiments"
	experimentsCmdShort = "inspect and create experiments"

	serverCmdUsage = "server"
	serverCmdShort = "start a local tracking server"
	serverCmdLong  = `Start a tracking server exposing the MLflow REST API on top of a local directory.
	The listening address is configured with the HTTP_HOST and HTTP_PORT environment variables.`
)

// LogCmd returns the "log" cli command and its subcommands.
func LogCmd() *cobra.Command {
	destinationFlags := &destinationFlags{}
	runFlags := &runFlags{}

	cmd := &cobra.Command{
		Use:   logCmdUsage,
		Short: heredoc.Doc(logCmdShort),
		Long:  heredoc.Doc(logCmdLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
	}

	destinationFlags.addFlags(cmd)
	runFlags.addFlags(cmd)

	newLogSubcommand := func(use, short, example string, parse func(cmd *cobra.Command, args []string) (logFunc, error)) *cobra.Command {
		return &cobra.Command{
			Use:     use,
			Short:   short,
			Example: heredoc.Doc(example),

			SilenceErrors: true,
			SilenceUsage:  true,

			RunE: func(cmd *cobra.Command, args []string) error {
				log, err := parse(cmd, args)
				if err != nil {
					return handleError(cmd, err)
				}

				opts, err := newLogOptions(destinationFlags, runFlags, cmd.OutOrStdout())
				if err != nil {
					return handleError(cmd, err)
				}

				if err := opts.execute(cmd.Context(), log); err != nil {
					return handleError(cmd, err)
				}
				return nil
			},
		}
	}

	paramsCmd := newLogSubcommand("params KEY=VALUE...", "log params to a run", logParamsCmdExample, func(_ *cobra.Command, args []string) (logFunc, error) {
		params, err := parseKeyValues(args)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, client *backend.Client) (string, error) {
			return fmt.Sprintf("logged %d params", len(params)), client.LogParams(ctx, toAnyMap(params))
		}, nil
	})

	var step int64
	metricsCmd := newLogSubcommand("metrics KEY=VALUE...", "log metrics to a run", logMetricsCmdExample, func(cmd *cobra.Command, args []string) (logFunc, error) {
		metrics, err := parseMetrics(args)
		if err != nil {
			return nil, err
		}

		var metricStep *int64
		if cmd.Flags().Changed(stepFlagName) {
			metricStep = &step
		}
		return func(ctx context.Context, client *backend.Client) (string, error) {
			return fmt.Sprintf("logged %d metrics", len(metrics)), client.LogMetrics(ctx, metrics, metricStep)
		}, nil
	})
	metricsCmd.Flags().Int64Var(&step, stepFlagName, 0, stepFlagUsage)

	tagsCmd := newLogSubcommand("tags KEY=VALUE...", "set tags on a run", logTagsCmdExample, func(_ *cobra.Command, args []string) (logFunc, error) {
		tags, err := parseKeyValues(args)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, client *backend.Client) (string, error) {
			return fmt.Sprintf("set %d tags", len(tags)), client.SetTags(ctx, toAnyMap(tags))
		}, nil
	})

	var artifactPath string
	artifactCmd := newLogSubcommand("artifact PATH", "store a file or directory in the run artifacts", logArtifactCmdExample, func(_ *cobra.Command, args []string) (logFunc, error) {
		if len(args) == 0 {
			return nil, errNoArguments
		}
		path := args[0]
		return func(ctx context.Context, client *backend.Client) (string, error) {
			return "logged artifact " + path, client.LogArtifactTo(ctx, path, artifactPath)
		}, nil
	})
	artifactCmd.Args = cobra.MaximumNArgs(1)
	artifactCmd.Flags().StringVar(&artifactPath, artifactPathFlagName, "", artifactPathFlagUsage)

	cmd.AddCommand(paramsCmd, metricsCmd, tagsCmd, artifactCmd)
	return cmd
}

// ExperimentsCmd returns the "experiments" cli command and its subcommands.
func ExperimentsCmd() *cobra.Command {
	destinationFlags := &destinationFlags{}

	cmd := &cobra.Command{
		Use:   experimentsCmdUsage,
		Short: heredoc.Doc(experimentsCmdShort),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
	}
	destinationFlags.addFlags(cmd)

	getCmd := &cobra.Command{
		Use:   "get NAME",
		Short: "print an experiment and its runs",

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := newExperimentOptions(destinationFlags, args, cmd.OutOrStdout())
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.get(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "create an experiment, using --artifact-location as its artifact root",

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := newExperimentOptions(destinationFlags, args, cmd.OutOrStdout())
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.create(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	cmd.AddCommand(getCmd, createCmd)
	return cmd
}

// ServerCmd returns the "server" cli command.
func ServerCmd() *cobra.Command {
	opts := &serverOptions{}

	cmd := &cobra.Command{
		Use:   serverCmdUsage,
		Short: heredoc.Doc(serverCmdShort),
		Long:  heredoc.Doc(serverCmdLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.execute(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.root, rootFlagName, defaultRoot, rootFlagUsage)
	return cmd
}
