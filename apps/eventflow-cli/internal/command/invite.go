package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/service"
)

// outcomeError carries the user-facing message of a failed invitation
type outcomeError struct {
	message string
	err     error
}

func (e *outcomeError) Error() string { return e.message }

func (e *outcomeError) Unwrap() error { return e.err }

func (a *App) inviteCommand() *Command {
	return &Command{
		Name:    "invite",
		Summary: "Send, accept and decline event invitations",
		Subcommands: []*Command{
			a.inviteSendCommand(),
			a.inviteListCommand(),
			a.inviteAcceptCommand(),
			a.inviteDeclineCommand(),
		},
	}
}

func (a *App) inviteSendCommand() *Command {
	cmd := &Command{
		Name:    "send",
		Summary: "Invite someone to an event you manage",
		Usage:   "<event-id> <email>",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 2); err != nil {
			return err
		}
		c, err := a.requireRole(ctx, domain.RoleOrganizer, domain.RoleAdmin)
		if err != nil {
			return err
		}
		inv, err := c.API.CreateInvitation(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		a.printf("Invitation sent to %s, valid until %s\n", inv.InviteeEmail, inv.ExpiresAt.Local().Format(dateLayout))
		return nil
	}
	return cmd
}

func (a *App) inviteListCommand() *Command {
	var asJSON bool

	cmd := &Command{
		Name:    "list",
		Summary: "List the invitations of an event you manage",
		Usage:   "<event-id>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
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
		invs, err := c.API.ListInvitations(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			if invs == nil {
				invs = []*domain.Invitation{}
			}
			return a.printJSON(invs)
		}
		if len(invs) == 0 {
			a.printf("No invitations yet\n")
			return nil
		}

		tw := tabwriter.NewWriter(a.Out, 2, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "EMAIL\tSTATUS\tSENT\tEXPIRES\n")
		for _, inv := range invs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inv.InviteeEmail, inv.Status,
				inv.CreatedAt.Local().Format(dateLayout), inv.ExpiresAt.Local().Format(dateLayout))
		}
		return tw.Flush()
	}
	return cmd
}

func (a *App) inviteAcceptCommand() *Command {
	var (
		passwordStdin bool
		noWait        bool
	)

	cmd := &Command{
		Name:    "accept",
		Summary: "Accept an invitation and register for its event",
		Usage:   "<invitation-link-or-token>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("accept", pflag.ContinueOnError)
			fs.BoolVar(&passwordStdin, "password-stdin", false, "read passwords from stdin")
			fs.BoolVar(&noWait, "no-wait", false, "skip the redirect countdown")
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

		flow := c.NewInvitationFlow()
		defer flow.Close()

		changed := make(chan struct{}, 1)
		var (
			mu   sync.Mutex
			last service.InvitationState
		)
		unsubscribe := flow.Subscribe(func(s service.InvitationState) {
			mu.Lock()
			defer mu.Unlock()
			if s.Phase != last.Phase || s.Message != last.Message || s.Countdown != last.Countdown {
				a.renderInvitation(last, s)
				last = s
			}
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		flow.Start(ctx, args[0])
		for {
			s := flow.State()
			switch {
			case s.Phase == service.PhaseLoginRequired:
				if err := a.acceptLogin(ctx, flow, s, passwordStdin); err != nil {
					return err
				}
			case s.Phase == service.PhaseRegisterRequired:
				if err := a.acceptRegister(ctx, flow, s, passwordStdin); err != nil {
					return err
				}
			case s.Phase.Redirecting():
				if s.Navigated {
					a.printf("Next: eventflow events show %s\n", s.Outcome.EventID)
					return nil
				}
				if noWait {
					flow.GoNow()
					continue
				}
				if err := waitChange(ctx, changed); err != nil {
					return err
				}
			case s.Phase == service.PhaseFailed, s.Phase == service.PhaseError:
				return &outcomeError{message: s.Message, err: s.Reason}
			default:
				if err := waitChange(ctx, changed); err != nil {
					return err
				}
			}
		}
	}
	return cmd
}

// acceptLogin collects credentials for the invitee's existing account
func (a *App) acceptLogin(ctx context.Context, flow *service.InvitationFlow, s service.InvitationState, fromStdin bool) error {
	username, err := a.prompt(fmt.Sprintf("Username for %s (or 'register'): ", s.Context.InviteeEmail))
	if err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(username), "register") {
		flow.ShowRegister()
		return nil
	}
	password, err := a.secret("Password: ", fromStdin)
	if err != nil {
		return err
	}
	if err := flow.SubmitLogin(ctx, username, password); err != nil && !isFormError(err) {
		return err
	}
	return nil
}

// acceptRegister creates the invitee's account; its email is fixed by the invitation
func (a *App) acceptRegister(ctx context.Context, flow *service.InvitationFlow, s service.InvitationState, fromStdin bool) error {
	username, err := a.prompt(fmt.Sprintf("Choose a username for %s (or 'login'): ", s.Context.InviteeEmail))
	if err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(username), "login") {
		flow.ShowLogin()
		return nil
	}
	password, err := a.secret("Password: ", fromStdin)
	if err != nil {
		return err
	}
	req := &dto.RegisterRequest{Username: strings.TrimSpace(username), Email: s.Context.InviteeEmail, Password: password}
	if err := flow.SubmitRegistration(ctx, req); err != nil && !isFormError(err) {
		return err
	}
	return nil
}

// isFormError reports whether err was already shown as a form message
func isFormError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrAuthenticationInvalid) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrDecodeFailure)
}

func (a *App) renderInvitation(prev, s service.InvitationState) {
	if s.Phase != prev.Phase {
		switch s.Phase {
		case service.PhaseVerifying:
			a.notef("Checking invitation...\n")
		case service.PhaseLoginRequired, service.PhaseRegisterRequired:
			if prev.Phase == service.PhaseVerifying || prev.Phase == "" {
				a.describeInvitation(s.Context)
			}
		case service.PhaseSwitchingIdentity:
			a.notef("Switching account...\n")
		case service.PhaseRegistering:
			a.notef("Registering...\n")
		}
	}
	if s.Message != "" && s.Message != prev.Message {
		a.notef("%s\n", s.Message)
	}
	if s.Phase.Redirecting() && !s.Navigated && s.Countdown > 0 && s.Countdown != prev.Countdown {
		a.notef("Opening the event in %d...\n", s.Countdown)
	}
}

func (a *App) describeInvitation(ic *domain.InvitationContext) {
	if ic == nil {
		return
	}
	a.printf("You are invited to %s\n", ic.EventTitle)
	if ic.EventDate != nil {
		a.printf("  When:  %s\n", ic.EventDate.Local().Format(dateLayout))
	}
	if ic.EventAddress != "" {
		a.printf("  Where: %s\n", ic.EventAddress)
	}
	if ic.AvailableSpots != nil {
		a.printf("  Spots: %d left\n", *ic.AvailableSpots)
	}
	a.printf("  For:   %s\n", ic.InviteeEmail)
}

func (a *App) inviteDeclineCommand() *Command {
	cmd := &Command{
		Name:    "decline",
		Summary: "Decline an invitation",
		Usage:   "<invitation-link-or-token>",
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.exactArgs(args, 1); err != nil {
			return err
		}
		c, err := a.connect(ctx)
		if err != nil {
			return err
		}
		outcome, err := c.Decline.Decline(ctx, args[0])
		if err != nil {
			return err
		}
		a.printf("%s\n", outcome.Message)
		if outcome.Kind == domain.DeclineAlreadyAccepted {
			a.printf("To leave the event, run: eventflow events unregister <event-id>\n")
		}
		return nil
	}
	return cmd
}

func waitChange(ctx context.Context, changed <-chan struct{}) error {
	select {
	case <-changed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// printNavigator reports route changes on the error stream
type printNavigator struct {
	app *App
}

func (n printNavigator) Navigate(to string) {
	if to == routepath.LoginExpired() {
		n.app.notef("Your session has expired. Run 'eventflow login' to sign in again.\n")
		return
	}
	n.app.notef("-> %s\n", to)
}

// Navigator returns the navigator commands report routes through
func (a *App) Navigator() routepath.Navigator {
	return printNavigator{app: a}
}
