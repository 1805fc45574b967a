package command

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/service"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/tui"
)

func (a *App) notificationsCommand() *Command {
	return &Command{
		Name:    "notifications",
		Summary: "Read and follow your notifications",
		Subcommands: []*Command{
			a.notificationsListCommand(),
			a.notificationsUnreadCommand(),
			a.notificationsReadCommand(),
			a.notificationsReadAllCommand(),
			a.notificationsWatchCommand(),
		},
	}
}

func (a *App) notificationsListCommand() *Command {
	var (
		page   int
		size   int
		asJSON bool
	)

	return &Command{
		Name:    "list",
		Summary: "List notifications, newest first",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
			fs.IntVar(&page, "page", 0, "page number, starting at 0")
			fs.IntVar(&size, "size", 20, "notifications per page")
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			if page < 0 || size <= 0 {
				return fmt.Errorf("%w: --page must be >= 0 and --size > 0", ErrUsage)
			}
			c, err := a.requireSession(ctx)
			if err != nil {
				return err
			}
			resp, err := c.API.ListNotifications(ctx, page, size)
			if err != nil {
				return err
			}
			items := resp.Items()
			if asJSON {
				return a.printJSON(items)
			}
			if len(items) == 0 {
				a.printf("No notifications\n")
				return nil
			}

			tw := tabwriter.NewWriter(a.Out, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, " \tWHEN\tTYPE\tMESSAGE\tID\n")
			for _, n := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", unreadMark(n), humanize.Time(n.CreatedAt), n.Type, n.Message, n.ID)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if resp.TotalPages > page+1 {
				a.printf("\nPage %d of %d. Next: eventflow notifications list --page %d\n", page+1, resp.TotalPages, page+1)
			}
			return nil
		},
	}
}

func unreadMark(n domain.NotificationEvent) string {
	if n.Read {
		return " "
	}
	return "*"
}

func (a *App) notificationsUnreadCommand() *Command {
	return &Command{
		Name:    "unread",
		Summary: "Show the number of unread notifications",
		Run: func(ctx context.Context, args []string) error {
			c, err := a.requireSession(ctx)
			if err != nil {
				return err
			}
			n, err := c.API.UnreadCount(ctx)
			if err != nil {
				return err
			}
			a.printf("%d\n", n)
			return nil
		},
	}
}

func (a *App) notificationsReadCommand() *Command {
	cmd := &Command{
		Name:    "read",
		Summary: "Mark a notification as read",
		Usage:   "<notification-id>",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.requireSession(ctx)
		if err != nil {
			return err
		}
		return c.API.MarkNotificationRead(ctx, args[0])
	}
	return cmd
}

func (a *App) notificationsReadAllCommand() *Command {
	return &Command{
		Name:    "read-all",
		Summary: "Mark every notification as read",
		Run: func(ctx context.Context, args []string) error {
			c, err := a.requireSession(ctx)
			if err != nil {
				return err
			}
			n, err := c.API.MarkAllNotificationsRead(ctx)
			if err != nil {
				return err
			}
			a.printf("Marked %d notifications as read\n", n)
			return nil
		},
	}
}

func (a *App) notificationsWatchCommand() *Command {
	var (
		poll  bool
		plain bool
	)

	return &Command{
		Name:    "watch",
		Summary: "Follow notifications live",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			fs.BoolVar(&poll, "poll", false, "poll instead of opening the live stream")
			fs.BoolVar(&plain, "plain", false, "print notifications as lines instead of the full-screen view")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			c, err := a.requireSession(ctx)
			if err != nil {
				return err
			}
			feed := c.NewNotificationFeed()
			defer feed.Close()

			if poll {
				feed.EnablePolling()
			} else if err := feed.EnablePush(ctx); err != nil {
				// the feed already fell back and carries a notice
				c.Log.Warn("live stream unavailable", zap.Error(err))
			}

			if !plain && a.interactive() {
				return tui.RunFeed(ctx, feed, a.In, a.Out)
			}
			return a.watchPlain(ctx, feed)
		},
	}
}

// interactive reports whether the full-screen view can take over the terminal
func (a *App) interactive() bool {
	in, ok := a.In.(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return false
	}
	out, ok := a.Out.(*os.File)
	return ok && term.IsTerminal(int(out.Fd()))
}

// watchPlain prints each notification once as it arrives until ctx ends
func (a *App) watchPlain(ctx context.Context, feed *service.NotificationFeed) error {
	// snapshots are cumulative, so only the newest one matters
	states := make(chan service.FeedState, 1)
	unsubscribe := feed.Subscribe(func(s service.FeedState) {
		for {
			select {
			case states <- s:
				return
			default:
			}
			select {
			case <-states:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := feed.Refresh(ctx); err != nil {
		a.notef("%v\n", err)
	}

	seen := make(map[string]bool)
	var (
		lastMode   domain.FeedMode
		lastNotice string
	)
	show := func(s service.FeedState) {
		if s.Mode != lastMode {
			a.notef("[%s]\n", s.Mode)
			lastMode = s.Mode
		}
		if s.Notice != "" && s.Notice != lastNotice {
			a.notef("%s\n", s.Notice)
		}
		lastNotice = s.Notice
		// items are newest first
		for i := len(s.Items) - 1; i >= 0; i-- {
			n := s.Items[i]
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			a.printf("%s %s %s\n", unreadMark(n), n.CreatedAt.Local().Format(dateLayout), n.Message)
		}
	}

	show(feed.State())
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-states:
			show(s)
		}
	}
}
