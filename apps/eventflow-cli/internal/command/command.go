package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// ErrUsage is returned when arguments do not match a command's usage
var ErrUsage = errors.New("invalid usage")

// Command is a CLI command or a group of subcommands
type Command struct {
	// Name is the command name as typed by the user
	Name string
	// Summary is shown in the parent's help listing
	Summary string
	// Usage overrides the synthesized usage line
	Usage string
	// Flags returns the command's flag set. Called once per execution.
	Flags func() *pflag.FlagSet
	// Subcommands are dispatched by the first positional argument
	Subcommands []*Command
	// Run executes the command with the arguments left after flag parsing
	Run func(ctx context.Context, args []string) error

	parent *Command
}

// Execute parses args and dispatches to a subcommand or Run
func (c *Command) Execute(ctx context.Context, out io.Writer, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(out)
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		for _, sub := range c.Subcommands {
			if sub.Name == args[0] {
				sub.parent = c
				return sub.Execute(ctx, out, args[1:])
			}
		}
		return fmt.Errorf("%w: unknown command %q\n\nRun '%s --help' for usage.", ErrUsage, args[0], c.fullName())
	}

	if len(c.Subcommands) > 0 && c.Run == nil {
		c.PrintHelp(out)
		return fmt.Errorf("%w: subcommand required", ErrUsage)
	}

	if c.Flags != nil {
		fs := c.Flags()
		fs.SetOutput(io.Discard)
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				c.PrintHelp(out)
				return nil
			}
			return fmt.Errorf("%w: %s\n\nRun '%s --help' for usage.", ErrUsage, err, c.fullName())
		}
		args = fs.Args()
	}

	return c.Run(ctx, args)
}

// PrintHelp writes the command's help to w
func (c *Command) PrintHelp(w io.Writer) {
	if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	switch {
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s %s\n", c.fullName(), c.Usage)
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", c.fullName())
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", c.fullName())
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		var sb strings.Builder
		fs := c.Flags()
		fs.SetOutput(&sb)
		fs.PrintDefaults()
		if sb.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", sb.String())
		}
	}
}

func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

// exactArgs checks the positional argument count
func (c *Command) exactArgs(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: expected %d argument(s), got %d\n\nUsage: %s %s", ErrUsage, n, len(args), c.fullName(), c.Usage)
	}
	return nil
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
