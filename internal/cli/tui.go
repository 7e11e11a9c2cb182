package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/scfet/notification-client/internal/app"
)

func newTUICommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive client (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(r, cmd)
		},
	}
}

func runTUI(r *runner, cmd *cobra.Command) error {
	banner := app.NewBanner()
	svc, cleanup, err := r.services(banner)
	if err != nil {
		return err
	}
	defer cleanup()

	p := tea.NewProgram(app.New(svc, banner),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, runErr := p.Run()
	if err := svc.Push.Disconnect(context.WithoutCancel(cmd.Context())); err != nil {
		svc.Log.WithError(err).Debug("disconnecting")
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "running TUI", runErr)
	}
	return nil
}
