package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/scfet/notification-client/internal/api"
)

type loginOptions struct {
	email    string
	password string
}

func newLoginCommand(r *runner) *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with email and password. The token is kept in the configured
credential store until logout or expiry. Missing values are prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(r, opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.password, "password", "", "account password")
	return cmd
}

func runLogin(r *runner, opts *loginOptions, cmd *cobra.Command) error {
	if opts.email == "" || opts.password == "" {
		if err := promptCredentials(opts); err != nil {
			return WrapExitError(ExitCommandError, "reading credentials", err)
		}
	}

	svc, cleanup, err := r.services(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	u, err := svc.SignIn(cmd.Context(), strings.TrimSpace(opts.email), opts.password)
	if err != nil {
		if api.IsAuthError(err) {
			return WrapExitError(ExitFailure, "sign-in refused", err)
		}
		return WrapExitError(ExitFailure, "signing in", err)
	}
	return r.formatter(cmd).Message("Signed in as %s <%s> (%s)", u.FullName(), u.Email, u.Role)
}

func promptCredentials(opts *loginOptions) error {
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(&opts.email),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&opts.password),
	))
	if err := form.Run(); err != nil {
		return err
	}
	if opts.email == "" || opts.password == "" {
		return errors.New("email and password are required")
	}
	return nil
}

func newLogoutCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := r.services(nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.SignOut(context.WithoutCancel(cmd.Context())); err != nil {
				return WrapExitError(ExitFailure, "signing out", err)
			}
			return r.formatter(cmd).Message("Signed out")
		},
	}
}
