package command

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// errUnhealthy is returned when at least one service probe fails
var errUnhealthy = errors.New("some services are unavailable")

func (a *App) healthCommand() *Command {
	return &Command{
		Name:    "health",
		Summary: "Check that the backend services respond",
		Run: func(ctx context.Context, args []string) error {
			c, err := a.connect(ctx)
			if err != nil {
				return err
			}

			checks := c.API.CheckServices(ctx)
			a.printf("Gateway: %s\n\n", c.API.BaseURL())

			tw := tabwriter.NewWriter(a.Out, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "SERVICE\tSTATUS\tLATENCY\tDETAIL\n")
			healthy := true
			for _, check := range checks {
				status, detail := "up", ""
				switch {
				case check.Healthy():
				case errors.Is(check.Err, domain.ErrNotAuthenticated):
					// refused locally, the service was never contacted
					status, detail = "skipped", "sign in to check"
				default:
					status, detail = "down", check.Err.Error()
					healthy = false
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", check.Name, status, check.Latency.Round(time.Millisecond), detail)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if !healthy {
				return errUnhealthy
			}
			return nil
		},
	}
}
