package cli

import (
	"github.com/spf13/cobra"

	"github.com/scfet/notification-client/internal/alert"
)

func newCacheCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear downloaded notification images",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "size",
		Short: "Show how much disk the image cache uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := r.presenter()
			if err != nil {
				return err
			}
			defer cleanup()

			size, err := p.CacheSize()
			if err != nil {
				return WrapExitError(ExitFailure, "measuring cache", err)
			}
			return r.formatter(cmd).Message("Image cache: %s in %s", alert.FormatSize(size), p.Dir())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := r.presenter()
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := p.PurgeCache(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "purging cache", err)
			}
			return r.formatter(cmd).Message("Removed %d cached images", n)
		},
	})
	return cmd
}

func (r *runner) presenter() (*alert.Presenter, func(), error) {
	svc, cleanup, err := r.services(nil)
	if err != nil {
		return nil, nil, err
	}
	if svc.Presenter == nil {
		cleanup()
		return nil, nil, NewExitError(ExitCommandError, "no image cache configured")
	}
	return svc.Presenter, cleanup, nil
}

