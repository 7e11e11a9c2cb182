// Package cli holds the cobra commands of the scfet client.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/scfet/notification-client/internal/alert"
	"github.com/scfet/notification-client/internal/app"
	"github.com/scfet/notification-client/internal/credential"
	"github.com/scfet/notification-client/internal/logging"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Factory builds the services a command runs against. extra, when set,
// receives every alert alongside the log. The returned func releases
// what the factory opened.
type Factory func(opts *RootOptions, extra alert.Notifier) (*app.Services, func(), error)

type runner struct {
	opts    *RootOptions
	factory Factory
}

func (r *runner) services(extra alert.Notifier) (*app.Services, func(), error) {
	svc, cleanup, err := r.factory(r.opts, extra)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "starting client", err)
	}
	return svc, cleanup, nil
}

func (r *runner) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: r.opts.Format, Writer: cmd.OutOrStdout()}
}

// NewRootCommand creates the root command. Without a subcommand it starts
// the TUI.
func NewRootCommand(factory Factory) *cobra.Command {
	if factory == nil {
		factory = DefaultFactory
	}
	r := &runner{opts: &RootOptions{}, factory: factory}

	cmd := &cobra.Command{
		Use:   "scfet",
		Short: "SCFET notification client",
		Long:  "Read, send and watch SCFET notifications from the terminal.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, r.opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", r.opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(r, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&r.opts.ConfigPath, "config", model.DefaultConfigPath(), "config file")
	cmd.PersistentFlags().BoolVarP(&r.opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&r.opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newLoginCommand(r))
	cmd.AddCommand(newLogoutCommand(r))
	cmd.AddCommand(newInboxCommand(r))
	cmd.AddCommand(newWatchCommand(r))
	cmd.AddCommand(newSentCommand(r))
	cmd.AddCommand(newSendCommand(r))
	cmd.AddCommand(newCacheCommand(r))
	cmd.AddCommand(newTUICommand(r))

	return cmd
}

// DefaultFactory reads the config file and opens the keyring, the local
// database and the log file it names.
func DefaultFactory(opts *RootOptions, extra alert.Notifier) (*app.Services, func(), error) {
	cfg, err := model.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	log, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Cache.DBPath), 0o755); err != nil {
		logCloser.Close()
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Cache.DBPath)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}

	var notifier alert.Notifier = alert.LogNotifier{Log: log}
	if extra != nil {
		notifier = alert.Multi{notifier, extra}
	}

	svc, err := app.NewServices(app.Deps{
		Config:      cfg,
		Credentials: credential.Open(cfg.Credentials.Backend),
		Store:       st,
		Notifier:    notifier,
		Log:         log,
	})
	if err != nil {
		st.Close()
		logCloser.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			log.WithError(err).Warn("closing store")
		}
		logCloser.Close()
	}
	return svc, cleanup, nil
}

// requireSession fails with ExitCommandError when nobody is signed in.
func requireSession(svc *app.Services) error {
	if !svc.Session.SignedIn() {
		return NewExitError(ExitCommandError, "not signed in; run `scfet login` first")
	}
	return nil
}
