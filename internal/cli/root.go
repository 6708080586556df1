// Package cli implements guardctl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"guardattend/internal/bootstrap"
	"guardattend/internal/config"
	"guardattend/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Opener builds the application for one command invocation.
type Opener func(ctx context.Context, opts *RootOptions) (*bootstrap.App, error)

// DefaultOpener loads configuration from the environment and opts, then
// wires the configured backends.
func DefaultOpener(ctx context.Context, opts *RootOptions) (*bootstrap.App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	log, err := logging.New(cfg.Env, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build logger", err)
	}
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return app, nil
}

// NewRootCommand creates the guardctl root command.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = DefaultOpener
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "guardctl",
		Short:         "Guard attendance operator tool",
		Long:          "Manage registered guards and attendance records in the configured record store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newInitCommand(opts, open))
	cmd.AddCommand(newRegisterCommand(opts, open))
	cmd.AddCommand(newFindCommand(opts, open))
	cmd.AddCommand(newRecordCommand(opts, open))
	cmd.AddCommand(newQueryCommand(opts, open))
	cmd.AddCommand(newExportCommand(opts, open))
	cmd.AddCommand(newSampleQRCommand(opts, open))

	return cmd
}

// withApp opens the application, runs fn and closes it.
func withApp(cmd *cobra.Command, opts *RootOptions, open Opener, fn func(*bootstrap.App, *Output) error) error {
	app, err := open(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app, &Output{Format: opts.Format, Writer: cmd.OutOrStdout()})
}
