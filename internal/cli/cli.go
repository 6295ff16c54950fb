// Package cli provides the fxv command line interface.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CageChen/fxv/internal/config"
	"github.com/CageChen/fxv/internal/logging"
)

const (
	rootUse              = "fxv"
	rootShortDescription = "file tree explorer service"
	rootLongDescription  = `fxv ingests directory trees, annotates them with change and conflict
states and serves them one directory at a time over HTTP.
Use serve to run the service, snapshot to write a tree as JSON and fetch to
query a directory out of a snapshot.`

	configFlagName    = "config"
	logLevelFlagName  = "log-level"
	logFormatFlagName = "log-format"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// loadConfig loads the configuration file and applies the logging flags on top of it.
func (o *globalOptions) loadConfig(command *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if command.Flags().Changed(logLevelFlagName) {
		cfg.Log.Level = o.logLevel
	}
	if command.Flags().Changed(logFormatFlagName) {
		cfg.Log.Format = o.logFormat
	}
	return cfg, nil
}

func (o *globalOptions) logger(cfg config.Log) (*zap.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Level, Format: cfg.Format})
}

// Execute runs the fxv application.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	flags := rootCommand.PersistentFlags()
	flags.StringVar(&opts.configPath, configFlagName, "", "path to the configuration file")
	flags.StringVar(&opts.logLevel, logLevelFlagName, "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, logFormatFlagName, "console", "log format (console, json)")

	rootCommand.AddCommand(
		newServeCommand(opts),
		newSnapshotCommand(opts),
		newFetchCommand(),
	)
	return rootCommand
}
