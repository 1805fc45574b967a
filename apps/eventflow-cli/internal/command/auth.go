package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

func (a *App) loginCommand() *Command {
	var (
		username      string
		passwordStdin bool
	)

	cmd := &Command{
		Name:    "login",
		Summary: "Sign in and store the session",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
			fs.StringVarP(&username, "username", "u", "", "account username")
			fs.BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
			return fs
		},
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		c, err := a.connect(ctx)
		if err != nil {
			return err
		}

		if username == "" {
			if username, err = a.prompt("Username: "); err != nil {
				return err
			}
		}
		password, err := a.secret("Password: ", passwordStdin)
		if err != nil {
			return err
		}

		req := &dto.LoginRequest{Username: strings.TrimSpace(username), Password: password}
		if ok, msg := req.Validate(); !ok {
			return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
		}
		resp, err := c.API.Login(ctx, req)
		if err != nil {
			return err
		}
		session, err := c.Session.Login(ctx, resp)
		if err != nil {
			return err
		}

		a.printf("Logged in as %s (%s)\n", session.Identity.Username, session.Identity.Role)
		return nil
	}
	return cmd
}

func (a *App) registerCommand() *Command {
	var (
		username      string
		email         string
		role          string
		passwordStdin bool
	)

	cmd := &Command{
		Name:    "register",
		Summary: "Create an account and sign in",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
			fs.StringVarP(&username, "username", "u", "", "account username")
			fs.StringVarP(&email, "email", "e", "", "account email")
			fs.StringVar(&role, "role", string(domain.RoleUser), "USER or ORGANIZER")
			fs.BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
			return fs
		},
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		c, err := a.connect(ctx)
		if err != nil {
			return err
		}

		if username == "" {
			if username, err = a.prompt("Username: "); err != nil {
				return err
			}
		}
		if email == "" {
			if email, err = a.prompt("Email: "); err != nil {
				return err
			}
		}
		req := &dto.RegisterRequest{
			Username: strings.TrimSpace(username),
			Email:    strings.TrimSpace(email),
			Role:     strings.ToUpper(role),
		}
		if ok, msg := req.ValidateAccount(); !ok {
			return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
		}
		if req.Password, err = a.secret("Password: ", passwordStdin); err != nil {
			return err
		}
		if ok, msg := req.Validate(); !ok {
			return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
		}
		resp, err := c.API.Register(ctx, req)
		if err != nil {
			return err
		}
		session, err := c.Session.Register(ctx, resp)
		if err != nil {
			return err
		}

		a.printf("Account created. Logged in as %s (%s)\n", session.Identity.Username, session.Identity.Role)
		return nil
	}
	return cmd
}

func (a *App) logoutCommand() *Command {
	return &Command{
		Name:    "logout",
		Summary: "Sign out and forget the stored session",
		Run: func(ctx context.Context, args []string) error {
			c, err := a.connect(ctx)
			if err != nil {
				return err
			}
			if err := c.Session.Logout(ctx); err != nil {
				return err
			}
			a.printf("Logged out\n")
			return nil
		},
	}
}

func (a *App) whoamiCommand() *Command {
	var asJSON bool

	return &Command{
		Name:    "whoami",
		Summary: "Show the signed-in identity",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			c, err := a.connect(ctx)
			if err != nil {
				return err
			}
			current := c.Session.Current()
			if current == nil {
				a.printf("Not logged in\n")
				return nil
			}
			if asJSON {
				return a.printJSON(struct {
					domain.Identity
					ExpiresAt string `json:"expires_at"`
				}{current.Identity, current.ExpiresAt.Format(time.RFC3339)})
			}
			a.printf("%s <%s> %s, session valid until %s\n",
				current.Identity.Username, current.Identity.Email, current.Identity.Role,
				current.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}
