package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scfet/notification-client/internal/alert"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/push"
	"github.com/scfet/notification-client/internal/theme"
)

type inboxOptions struct {
	filter   filterFlags
	markRead string
}

// inboxResult is the JSON payload of the inbox command.
type inboxResult struct {
	Total         int                  `json:"total"`
	Unread        int                  `json:"unread"`
	Notifications []model.Notification `json:"notifications"`
}

func newInboxCommand(r *runner) *cobra.Command {
	opts := &inboxOptions{}

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List received notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInbox(r, opts, cmd)
		},
	}
	opts.filter.register(cmd)
	cmd.Flags().StringVar(&opts.markRead, "mark-read", "", "mark the notification with this id as read first")
	return cmd
}

func runInbox(r *runner, opts *inboxOptions, cmd *cobra.Command) error {
	svc, cleanup, err := r.services(nil)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := requireSession(svc); err != nil {
		return err
	}

	filter, err := opts.filter.build(svc.Defaults, time.Now())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := load(ctx, svc.Inbox, filter, opts.filter.all); err != nil {
		return WrapExitError(ExitFailure, "loading inbox", err)
	}

	if opts.markRead != "" {
		if _, ok := svc.Inbox.Find(opts.markRead); !ok {
			return NewExitError(ExitFailure, fmt.Sprintf("notification %s is not in the listed page", opts.markRead))
		}
		if err := svc.Inbox.MarkRead(ctx, opts.markRead); err != nil {
			return WrapExitError(ExitFailure, "marking as read", err)
		}
	}

	snap := svc.Inbox.Snapshot()
	res := inboxResult{
		Total:         snap.TotalCount,
		Unread:        svc.Inbox.UnreadCount(),
		Notifications: snap.Items,
	}
	return r.formatter(cmd).Emit(res, func(w io.Writer) error {
		return writeInbox(w, res)
	})
}

func writeInbox(w io.Writer, res inboxResult) error {
	fmt.Fprintf(w, "Inbox: %d shown of %d, %d unread\n", len(res.Notifications), res.Total, res.Unread)
	if len(res.Notifications) == 0 {
		_, err := fmt.Fprintln(w, "No notifications.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tTYPE\tTITLE\tFROM\tDATE\tIMAGE")
	for _, n := range res.Notifications {
		state := "new"
		if n.IsRead {
			state = "read"
		}
		image := ""
		if n.HasImage() {
			image = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			n.ID, state, theme.TypeLabel(n.Type), n.Title, n.SenderName, formatTime(n.CreatedAt), image)
	}
	return tw.Flush()
}

type watchOptions struct {
	count int
	bell  bool
}

func newWatchCommand(r *runner) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print notifications as they arrive",
		Long: `Connect to the notification hub and print every event. New notifications
raise an alert (terminal bell unless --bell=false) and images are cached.
Runs until interrupted or, with --count, until that many have arrived.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(r, opts, cmd)
		},
	}
	cmd.Flags().IntVar(&opts.count, "count", 0, "exit after this many new notifications")
	cmd.Flags().BoolVar(&opts.bell, "bell", true, "ring the terminal bell on new notifications")
	return cmd
}

func runWatch(r *runner, opts *watchOptions, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	var extra alert.Notifier
	if opts.bell {
		extra = alert.BellNotifier{W: out}
	}
	svc, cleanup, err := r.services(extra)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := requireSession(svc); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Inbox.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "loading inbox", err)
	}
	fmt.Fprintf(out, "%d unread\n", svc.Inbox.UnreadCount())

	if err := svc.Connect(ctx); err != nil {
		if errors.Is(err, push.ErrUnauthorized) {
			return WrapExitError(ExitFailure, "session rejected", err)
		}
		return WrapExitError(ExitFailure, "connecting", err)
	}
	defer func() {
		_ = svc.Push.Disconnect(context.WithoutCancel(ctx))
	}()

	received := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-svc.Unauthorized():
			return NewExitError(ExitFailure, "session expired; run `scfet login`")
		case ev := <-svc.Push.Events():
			if svc.Push.Stale(ev) {
				continue
			}
			svc.Inbox.Apply(ev)
			printEvent(out, ev)

			switch ev.Kind {
			case push.EventReceived:
				svc.Present(ctx, ev.Notification)
				received++
				if opts.count > 0 && received >= opts.count {
					return nil
				}
			case push.EventStateChanged:
				if ev.Err != nil && ev.State == push.Disconnected {
					return WrapExitError(ExitFailure, "connection lost", ev.Err)
				}
			}
		}
	}
}

func printEvent(w io.Writer, ev push.Event) {
	switch ev.Kind {
	case push.EventReceived, push.EventUpdated:
		n := ev.Notification
		fmt.Fprintf(w, "%s %s [%s] %s: %s\n", ev.Kind, n.ID, n.Type, n.SenderName, n.Title)
	case push.EventRemoved, push.EventReadStateChanged:
		fmt.Fprintf(w, "%s %s\n", ev.Kind, ev.ID)
	case push.EventStateChanged:
		fmt.Fprintf(w, "%s %s\n", ev.Kind, ev.State)
	}
}
