// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/tomtom215/trackersync/internal/logging"
)

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath string
	Server     string
	Output     string
	LogLevel   string

	// HTTPClient is used for --server requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Open overrides backend selection in tests.
	Open func(ctx context.Context) (Backend, error)
}

func (o *Options) backend(cmd *cobra.Command) (Backend, error) {
	if o.Open != nil {
		return o.Open(cmd.Context())
	}
	if o.Server != "" {
		return newRemote(o.Server, o.HTTPClient)
	}
	return openLocal(cmd.Context(), o.ConfigPath, cmd.ErrOrStderr())
}

func (o *Options) json() bool { return o.Output == "json" }

// withBackend opens the backend for one command and closes it afterwards.
func (o *Options) withBackend(cmd *cobra.Command, fn func(b Backend) error) (err error) {
	b, err := o.backend(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(b)
}

// NewRootCmd builds the syncctl command tree.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(version, &Options{})
}

func newRootCmd(version string, opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:     "syncctl",
		Short:   "Operate Trackersync sync runs",
		Version: version,
		Long: `syncctl starts, inspects, cancels and recovers issue tracker sync runs.

Without --server it opens the configured DuckDB database and checkpoint
store directly, which requires that no server holds them. With --server it
talks to a running server's HTTP API instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Output != "text" && opts.Output != "json" {
				return fmt.Errorf("unsupported output %q (text or json)", opts.Output)
			}
			logging.Init(logging.Config{
				Level:  opts.LogLevel,
				Format: "console",
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (environment variables still apply)")
	flags.StringVarP(&opts.Server, "server", "s", "", "server base URL, e.g. http://localhost:8480")
	flags.StringVarP(&opts.Output, "output", "o", "text", "output format: text or json")
	flags.StringVar(&opts.LogLevel, "log-level", "warn", "log level for local runs")

	root.AddCommand(RunCmd(opts))
	root.AddCommand(ResumeCmd(opts))
	root.AddCommand(StatusCmd(opts))
	root.AddCommand(CancelCmd(opts))
	root.AddCommand(RunsCmd(opts))
	root.AddCommand(StaleCmd(opts))
	root.AddCommand(PurgeCmd(opts))
	return root
}
