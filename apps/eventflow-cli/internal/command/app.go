package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/di"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// Connector builds the dependency container on first use
type Connector func(ctx context.Context) (*di.Container, error)

// App is the eventflow command line
type App struct {
	Out io.Writer
	Err io.Writer
	In  io.Reader
	// Connect builds the container; it runs at most once per App
	Connect Connector
	// ReadSecret reads a secret without echo. Nil uses the terminal on stdin.
	ReadSecret func(prompt string) (string, error)

	container *di.Container
	lines     *bufio.Reader
}

// Run executes args against the command tree and releases the container
func (a *App) Run(ctx context.Context, args []string) error {
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.Err == nil {
		a.Err = os.Stderr
	}
	if a.In == nil {
		a.In = os.Stdin
	}
	defer func() {
		if a.container != nil {
			a.container.Close(context.WithoutCancel(ctx))
			a.container = nil
		}
	}()
	return a.Root().Execute(ctx, a.Out, args)
}

// Root returns the command tree
func (a *App) Root() *Command {
	return &Command{
		Name:    "eventflow",
		Summary: "EventFlow client: events, invitations and live notifications",
		Subcommands: []*Command{
			a.loginCommand(),
			a.registerCommand(),
			a.logoutCommand(),
			a.whoamiCommand(),
			a.eventsCommand(),
			a.inviteCommand(),
			a.notificationsCommand(),
			a.healthCommand(),
		},
	}
}

func (a *App) connect(ctx context.Context) (*di.Container, error) {
	if a.container != nil {
		return a.container, nil
	}
	if a.Connect == nil {
		return nil, errors.New("no connector configured")
	}
	c, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	a.container = c
	return c, nil
}

// requireSession connects and fails fast when nobody is signed in
func (a *App) requireSession(ctx context.Context) (*di.Container, error) {
	c, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	if !c.Session.IsAuthenticated() {
		return nil, fmt.Errorf("%w: run 'eventflow login' first", domain.ErrNotAuthenticated)
	}
	return c, nil
}

// requireRole additionally checks the signed-in role
func (a *App) requireRole(ctx context.Context, roles ...domain.Role) (*di.Container, error) {
	c, err := a.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if !c.Session.HasRole(roles...) {
		return nil, domain.ErrAuthorizationDenied
	}
	return c, nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

func (a *App) notef(format string, args ...any) {
	fmt.Fprintf(a.Err, format, args...)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// prompt reads one line from In after writing label to Err
func (a *App) prompt(label string) (string, error) {
	if a.lines == nil {
		a.lines = bufio.NewReader(a.In)
	}
	fmt.Fprint(a.Err, label)
	line, err := a.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secret reads a password, from In when fromStdin is set
func (a *App) secret(label string, fromStdin bool) (string, error) {
	if fromStdin {
		return a.prompt("")
	}
	if a.ReadSecret != nil {
		return a.ReadSecret(label)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: no terminal available for the password prompt (use --password-stdin)", ErrUsage)
	}
	fmt.Fprint(a.Err, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(a.Err)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
