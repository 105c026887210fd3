package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"github.com/webitel/im-support-service/infra/client/dashboard"
	"github.com/webitel/im-support-service/internal/domain/model"
)

func snapshotCmd() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Print the current dashboard snapshot once",
		Flags: append(viewerFlags(), &cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable colored output",
		}),
		Action: func(c *cli.Context) error {
			viewer, err := viewerOf(c)
			if err != nil {
				return err
			}
			if c.Bool("no-color") {
				color.NoColor = true
			}

			snap, err := dashboard.New(c.String("addr"), viewer).Snapshot(c.Context)
			if err != nil {
				if dashboard.IsForbidden(err) {
					return cli.Exit("dashboard requires a LISTENER or ADMIN identity", 3)
				}
				return err
			}

			view := newDashboardView()
			view.applySnapshot(snap)
			printSnapshot(os.Stdout, view, time.Now())
			return nil
		},
	}
}

func printSnapshot(w io.Writer, v *dashboardView, now time.Time) {
	header := color.New(color.FgYellow, color.Bold)
	count := color.New(color.FgGreen)

	header.Fprintln(w, "PRESENCE")
	for _, r := range model.Roles {
		fmt.Fprintf(w, "  %-9s %s\n", r.String(), count.Sprint(v.online[r]))
	}

	fmt.Fprintln(w)
	header.Fprintln(w, "SESSIONS")
	rows := v.rows(now)
	if len(rows) == 1 {
		color.New(color.Faint).Fprintln(w, "  none")
	}
	for i, row := range rows {
		line := fmt.Sprintf("  %-9s %-10s %-10s %-7s %s", row[0], row[1], row[2], row[3], row[4])
		if i == 0 {
			color.New(color.Bold).Fprintln(w, line)
			continue
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	header.Fprintln(w, "SUMMARY")
	fmt.Fprintln(w, v.summary())
}
