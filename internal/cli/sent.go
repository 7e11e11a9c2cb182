package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scfet/notification-client/internal/api"
	"github.com/scfet/notification-client/internal/app"
	"github.com/scfet/notification-client/internal/compose"
	"github.com/scfet/notification-client/internal/model"
	"github.com/scfet/notification-client/internal/theme"
)

type sentOptions struct {
	filter filterFlags
	delete string
}

type sentResult struct {
	Total         int                      `json:"total"`
	Notifications []model.SentNotification `json:"notifications"`
}

func newSentCommand(r *runner) *cobra.Command {
	opts := &sentOptions{}

	cmd := &cobra.Command{
		Use:   "sent",
		Short: "List notifications you sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSent(r, opts, cmd)
		},
	}
	opts.filter.register(cmd)
	cmd.Flags().StringVar(&opts.delete, "delete", "", "delete the sent notification with this id")
	return cmd
}

func runSent(r *runner, opts *sentOptions, cmd *cobra.Command) error {
	svc, cleanup, err := r.services(nil)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := requireSender(svc); err != nil {
		return err
	}
	ctx := cmd.Context()
	f := r.formatter(cmd)

	if opts.delete != "" {
		if err := svc.Outbox.Delete(ctx, opts.delete); err != nil {
			switch {
			case api.IsNotFound(err):
				return WrapExitError(ExitFailure, "no such notification", err)
			case api.IsRejected(err):
				return WrapExitError(ExitFailure, "delete refused", err)
			}
			return WrapExitError(ExitFailure, "deleting", err)
		}
		return f.Message("Deleted %s", opts.delete)
	}

	filter, err := opts.filter.build(svc.Defaults, time.Now())
	if err != nil {
		return err
	}
	if err := load(ctx, svc.Outbox, filter, opts.filter.all); err != nil {
		return WrapExitError(ExitFailure, "loading sent notifications", err)
	}

	snap := svc.Outbox.Snapshot()
	res := sentResult{Total: snap.TotalCount, Notifications: snap.Items}
	return f.Emit(res, func(w io.Writer) error {
		return writeSent(w, res)
	})
}

func writeSent(w io.Writer, res sentResult) error {
	fmt.Fprintf(w, "Sent: %d shown of %d\n", len(res.Notifications), res.Total)
	if len(res.Notifications) == 0 {
		_, err := fmt.Fprintln(w, "Nothing sent yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tDATE\tREAD")
	for _, n := range res.Notifications {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d (%.0f%%)\n",
			n.ID, theme.TypeLabel(n.Type), n.Title, formatTime(n.CreatedAt),
			n.ReadReceivers, n.TotalReceivers, n.ReadPercentage())
	}
	return tw.Flush()
}

type sendOptions struct {
	title    string
	message  string
	typ      string
	to       string
	group    string
	user     string
	image    string
	edit     string
	audience bool
}

func newSendCommand(r *runner) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a notification",
		Long: `Send a notification to everyone, to a role, to a group or to one user.

  scfet send --title "Exam moved" --message "Room 204" --to students
  scfet send --title "Hi" --message "..." --to group --group g-12
  scfet send --edit s-3 --title "Fixed title" --message "..." --to all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(r, opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.title, "title", "", "notification title")
	cmd.Flags().StringVar(&opts.message, "message", "", "notification text")
	cmd.Flags().StringVar(&opts.typ, "type", string(model.NotificationInfo), "Info, Warning, Urgent or Event")
	cmd.Flags().StringVar(&opts.to, "to", string(compose.AudienceAll), "all, students, teachers, administrators, group or specific")
	cmd.Flags().StringVar(&opts.group, "group", "", "group id for --to group")
	cmd.Flags().StringVar(&opts.user, "user", "", "user id for --to specific")
	cmd.Flags().StringVar(&opts.image, "image", "", "image file to attach")
	cmd.Flags().StringVar(&opts.edit, "edit", "", "replace the sent notification with this id")
	cmd.Flags().BoolVar(&opts.audience, "list-recipients", false, "print the groups and users you can address and exit")
	return cmd
}

func runSend(r *runner, opts *sendOptions, cmd *cobra.Command) error {
	svc, cleanup, err := r.services(nil)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := requireSender(svc); err != nil {
		return err
	}
	ctx := cmd.Context()
	f := r.formatter(cmd)

	dir, err := svc.Directory(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "loading recipients", err)
	}
	if opts.audience {
		return f.Emit(dir, func(w io.Writer) error { return writeDirectory(w, dir) })
	}

	draft, err := opts.draft(svc.Session.Info().Role, dir)
	if err != nil {
		return err
	}
	if err := svc.Submit(ctx, draft, dir, opts.edit); err != nil {
		if compose.IsValidationError(err) || errors.Is(err, compose.ErrNoRecipients) || errors.Is(err, compose.ErrEmptyGroup) {
			return WrapExitError(ExitCommandError, "invalid notification", err)
		}
		return WrapExitError(ExitFailure, "sending", err)
	}
	if opts.edit != "" {
		return f.Message("Updated %s", opts.edit)
	}
	return f.Message("Sent %q to %s", strings.TrimSpace(draft.Title), describeAudience(draft.Selection))
}

// draft turns the flags into a compose draft, resolving ids against dir.
func (o *sendOptions) draft(role model.Role, dir *compose.Directory) (compose.Draft, error) {
	sel := compose.NewSelection(role)
	if err := sel.SetAudience(compose.Audience(strings.ToLower(o.to))); err != nil {
		return compose.Draft{}, WrapExitError(ExitCommandError, "invalid --to", err)
	}
	switch sel.Audience {
	case compose.AudienceGroup:
		g, ok := dir.Group(o.group)
		if !ok {
			return compose.Draft{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown group %q", o.group))
		}
		if err := sel.SelectGroup(g); err != nil {
			return compose.Draft{}, WrapExitError(ExitCommandError, "invalid --group", err)
		}
	case compose.AudienceSpecific:
		u, ok := dir.User(o.user)
		if !ok {
			return compose.Draft{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown user %q", o.user))
		}
		sel.SelectUser(u)
	}

	d := compose.Draft{
		Title:     o.title,
		Message:   o.message,
		Type:      model.ParseNotificationType(o.typ),
		Selection: sel,
	}
	if o.image != "" {
		img, err := compose.ReadImage(o.image)
		if err != nil {
			return compose.Draft{}, WrapExitError(ExitCommandError, "reading image", err)
		}
		d.Image = img
	}
	return d, nil
}

func describeAudience(sel compose.Selection) string {
	switch {
	case sel.Group != nil:
		return "group " + sel.Group.Name
	case sel.User != nil:
		return sel.User.FullName()
	default:
		return strings.ToLower(sel.Audience.Label())
	}
}

func writeDirectory(w io.Writer, dir *compose.Directory) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tNAME\tSTUDENTS")
	for _, g := range dir.Groups {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", g.ID, g.Name, g.StudentCount)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "USER\tNAME\tROLE\tEMAIL")
	for _, u := range dir.Users() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.UserID, u.FullName(), u.Role, u.Email)
	}
	return tw.Flush()
}

func requireSender(svc *app.Services) error {
	if err := requireSession(svc); err != nil {
		return err
	}
	if !svc.Session.Info().Role.CanSend() {
		return NewExitError(ExitCommandError, "only teachers and administrators send notifications")
	}
	return nil
}
