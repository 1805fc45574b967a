package command

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

const dateLayout = "2006-01-02 15:04"

func (a *App) eventsCommand() *Command {
	return &Command{
		Name:    "events",
		Summary: "Browse, register for and manage events",
		Subcommands: []*Command{
			a.eventsListCommand(),
			a.eventsMineCommand(),
			a.eventsShowCommand(),
			a.eventsWeatherCommand(),
			a.eventsRegisterCommand(),
			a.eventsUnregisterCommand(),
			a.eventsStatusCommand(),
			a.eventsAttendeesCommand(),
			a.eventsCreateCommand(),
			a.eventsUpdateCommand(),
			a.eventsDeleteCommand(),
		},
	}
}

func (a *App) eventsListCommand() *Command {
	var (
		city   string
		status string
		from   string
		to     string
		asJSON bool
	)

	return &Command{
		Name:    "list",
		Summary: "List public events",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
			fs.StringVar(&city, "city", "", "only events in this city")
			fs.StringVar(&status, "status", "", "PLANNED, ONGOING, FINISHED or CANCELLED")
			fs.StringVar(&from, "from", "", "earliest start date (YYYY-MM-DD)")
			fs.StringVar(&to, "to", "", "latest start date (YYYY-MM-DD)")
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			filter := &dto.EventFilter{City: city, Status: domain.EventStatus(strings.ToUpper(status))}
			var err error
			if filter.DateFrom, err = optionalTime(from); err != nil {
				return err
			}
			if filter.DateTo, err = optionalTime(to); err != nil {
				return err
			}

			c, err := a.connect(ctx)
			if err != nil {
				return err
			}
			events, err := c.API.ListEvents(ctx, filter)
			if err != nil {
				return err
			}
			return a.printEvents(events, asJSON)
		},
	}
}

func (a *App) eventsMineCommand() *Command {
	var asJSON bool

	return &Command{
		Name:    "mine",
		Summary: "List events you organize",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("mine", pflag.ContinueOnError)
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			c, err := a.requireSession(ctx)
			if err != nil {
				return err
			}
			events, err := c.API.MyEvents(ctx)
			if err != nil {
				return err
			}
			return a.printEvents(events, asJSON)
		},
	}
}

func (a *App) eventsShowCommand() *Command {
	var asJSON bool

	cmd := &Command{
		Name:    "show",
		Summary: "Show one event",
		Usage:   "<event-id>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.connect(ctx)
		if err != nil {
			return err
		}
		ev, err := c.API.GetEvent(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return a.printJSON(ev)
		}

		tw := tabwriter.NewWriter(a.Out, 2, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Title\t%s\n", ev.Title)
		fmt.Fprintf(tw, "Status\t%s\n", ev.Status)
		fmt.Fprintf(tw, "When\t%s - %s\n", ev.StartAt.Local().Format(dateLayout), ev.EndAt.Local().Format(dateLayout))
		fmt.Fprintf(tw, "Where\t%s\n", joinNonEmpty(", ", ev.Address, ev.City))
		fmt.Fprintf(tw, "Spots\t%d of %d left\n", ev.AvailableSpots, ev.Capacity)
		if ev.Description != "" {
			fmt.Fprintf(tw, "About\t%s\n", ev.Description)
		}
		return tw.Flush()
	}
	return cmd
}

func (a *App) eventsWeatherCommand() *Command {
	cmd := &Command{
		Name:    "weather",
		Summary: "Show the forecast for an event",
		Usage:   "<event-id>",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.connect(ctx)
		if err != nil {
			return err
		}
		w, err := c.API.EventWeather(ctx, args[0])
		if err != nil {
			return err
		}

		kind := "Current weather"
		if w.Forecast {
			kind = "Forecast"
		}
		a.printf("%s: %s", kind, w.Condition)
		switch {
		case w.TemperatureMin != nil && w.TemperatureMax != nil:
			a.printf(", %.1f to %.1f °C", *w.TemperatureMin, *w.TemperatureMax)
		case w.Temperature != nil:
			a.printf(", %.1f °C", *w.Temperature)
		}
		if w.WindSpeed != nil {
			a.printf(", wind %.1f km/h", *w.WindSpeed)
		}
		if w.Precipitation != nil {
			a.printf(", precipitation %.1f mm", *w.Precipitation)
		}
		a.printf("\n")
		return nil
	}
	return cmd
}

func (a *App) eventsRegisterCommand() *Command {
	cmd := &Command{
		Name:    "register",
		Summary: "Register for an event",
		Usage:   "<event-id>",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.requireSession(ctx)
		if err != nil {
			return err
		}
		if _, err := c.API.RegisterForEvent(ctx, args[0]); err != nil {
			return err
		}
		a.printf("Registered for event %s\n", args[0])
		return nil
	}
	return cmd
}

func (a *App) eventsUnregisterCommand() *Command {
	cmd := &Command{
		Name:    "unregister",
		Summary: "Cancel your registration",
		Usage:   "<event-id>",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.requireSession(ctx)
		if err != nil {
			return err
		}
		if err := c.API.UnregisterFromEvent(ctx, args[0]); err != nil {
			return err
		}
		a.printf("Registration cancelled\n")
		return nil
	}
	return cmd
}

func (a *App) eventsStatusCommand() *Command {
	cmd := &Command{
		Name:    "status",
		Summary: "Check whether you are registered",
		Usage:   "<event-id>",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.requireSession(ctx)
		if err != nil {
			return err
		}
		registered, err := c.API.IsRegistered(ctx, args[0])
		if err != nil {
			return err
		}
		if registered {
			a.printf("Registered\n")
		} else {
			a.printf("Not registered\n")
		}
		return nil
	}
	return cmd
}

func (a *App) eventsAttendeesCommand() *Command {
	var asJSON bool

	cmd := &Command{
		Name:    "attendees",
		Summary: "List the attendees of an event you manage",
		Usage:   "<event-id>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("attendees", pflag.ContinueOnError)
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.requireRole(ctx, domain.RoleOrganizer, domain.RoleAdmin)
		if err != nil {
			return err
		}
		regs, err := c.API.ListRegistrations(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			if regs == nil {
				regs = []*domain.Registration{}
			}
			return a.printJSON(regs)
		}
		if len(regs) == 0 {
			a.printf("No attendees yet\n")
			return nil
		}

		tw := tabwriter.NewWriter(a.Out, 2, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "USERNAME\tEMAIL\tSTATUS\tREGISTERED\n")
		for _, r := range regs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Username, r.Email, r.Status, r.CreatedAt.Local().Format(dateLayout))
		}
		return tw.Flush()
	}
	return cmd
}

// eventFlags binds the fields shared by create and update
type eventFlags struct {
	title       string
	description string
	start       string
	end         string
	address     string
	city        string
	capacity    int
	status      string
}

func (f *eventFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.title, "title", "", "event title")
	fs.StringVar(&f.description, "description", "", "event description")
	fs.StringVar(&f.start, "start", "", "start time (RFC 3339 or YYYY-MM-DDTHH:MM)")
	fs.StringVar(&f.end, "end", "", "end time (RFC 3339 or YYYY-MM-DDTHH:MM)")
	fs.StringVar(&f.address, "address", "", "street address")
	fs.StringVar(&f.city, "city", "", "city")
	fs.IntVar(&f.capacity, "capacity", 0, "number of spots")
}

// request builds the payload, starting from base when updating
func (f *eventFlags) request(base *domain.Event) (*dto.EventRequest, error) {
	req := &dto.EventRequest{}
	if base != nil {
		req = &dto.EventRequest{
			Title:       base.Title,
			Description: base.Description,
			StartAt:     dto.NewTimestamp(base.StartAt),
			EndAt:       dto.NewTimestamp(base.EndAt),
			Address:     base.Address,
			City:        base.City,
			Capacity:    base.Capacity,
			Status:      string(base.Status),
		}
	}

	if f.title != "" {
		req.Title = f.title
	}
	if f.description != "" {
		req.Description = f.description
	}
	if f.address != "" {
		req.Address = f.address
	}
	if f.city != "" {
		req.City = f.city
	}
	if f.capacity > 0 {
		req.Capacity = f.capacity
	}
	if f.status != "" {
		req.Status = strings.ToUpper(f.status)
	}
	for _, field := range []struct {
		raw string
		dst *dto.Timestamp
	}{{f.start, &req.StartAt}, {f.end, &req.EndAt}} {
		if field.raw == "" {
			continue
		}
		t, err := dto.ParseTimestamp(field.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
		}
		*field.dst = dto.NewTimestamp(t)
	}

	if ok, msg := req.Validate(); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	}
	return req, nil
}

func (a *App) eventsCreateCommand() *Command {
	var flags eventFlags

	return &Command{
		Name:    "create",
		Summary: "Create an event (organizers)",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
			flags.bind(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			req, err := flags.request(nil)
			if err != nil {
				return err
			}
			c, err := a.requireRole(ctx, domain.RoleOrganizer, domain.RoleAdmin)
			if err != nil {
				return err
			}
			ev, err := c.API.CreateEvent(ctx, req)
			if err != nil {
				return err
			}
			a.printf("Created event %s (%s)\n", ev.ID, ev.Title)
			return nil
		},
	}
}

func (a *App) eventsUpdateCommand() *Command {
	var flags eventFlags

	cmd := &Command{
		Name:    "update",
		Summary: "Update an event you manage; unset flags keep their value",
		Usage:   "<event-id> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("update", pflag.ContinueOnError)
			flags.bind(fs)
			fs.StringVar(&flags.status, "status", "", "new status, e.g. CANCELLED")
			return fs
		},
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.requireRole(ctx, domain.RoleOrganizer, domain.RoleAdmin)
		if err != nil {
			return err
		}
		current, err := c.API.GetEvent(ctx, args[0])
		if err != nil {
			return err
		}
		req, err := flags.request(current)
		if err != nil {
			return err
		}
		ev, err := c.API.UpdateEvent(ctx, args[0], req)
		if err != nil {
			return err
		}
		a.printf("Updated event %s (%s)\n", ev.ID, ev.Status)
		return nil
	}
	return cmd
}

func (a *App) eventsDeleteCommand() *Command {
	cmd := &Command{
		Name:    "delete",
		Summary: "Delete an event you manage",
		Usage:   "<event-id>",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.requireRole(ctx, domain.RoleOrganizer, domain.RoleAdmin)
		if err != nil {
			return err
		}
		if err := c.API.DeleteEvent(ctx, args[0]); err != nil {
			return err
		}
		a.printf("Deleted event %s\n", args[0])
		return nil
	}
	return cmd
}

func (a *App) printEvents(events []*domain.Event, asJSON bool) error {
	if asJSON {
		if events == nil {
			events = []*domain.Event{}
		}
		return a.printJSON(events)
	}
	if len(events) == 0 {
		a.printf("No events found\n")
		return nil
	}

	tw := tabwriter.NewWriter(a.Out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "ID\tTITLE\tSTART\tCITY\tSTATUS\tSPOTS\n")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
			ev.ID, ev.Title, ev.StartAt.Local().Format(dateLayout), ev.City, ev.Status, ev.AvailableSpots, ev.Capacity)
	}
	return tw.Flush()
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := dto.ParseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	return &t, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
