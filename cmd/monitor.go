package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
	"github.com/webitel/im-support-service/infra/client/dashboard"
	"golang.org/x/sync/errgroup"
)

func monitorCmd() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"m"},
		Usage:   "Live terminal dashboard of presence and sessions",
		Flags:   viewerFlags(),
		Action: func(c *cli.Context) error {
			viewer, err := viewerOf(c)
			if err != nil {
				return err
			}
			return runMonitor(c.Context, dashboard.New(c.String("addr"), viewer))
		},
	}
}

func runMonitor(parent context.Context, client *dashboard.Client) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// first paint comes from the snapshot, the stream keeps it fresh
	snap, err := client.Snapshot(ctx)
	if err != nil {
		return err
	}

	if err := ui.Init(); err != nil {
		return fmt.Errorf("monitor: terminal: %w", err)
	}
	defer ui.Close()

	view := newDashboardView()
	view.applySnapshot(snap)

	screen := newMonitorScreen()
	screen.resize(ui.TerminalDimensions())
	screen.render(view)

	updates := make(chan dashboard.Update, 16)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(updates)
		return client.Stream(gctx, func(u dashboard.Update) error {
			select {
			case updates <- u:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	events := ui.PollEvents()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				break loop
			case "<Resize>":
				r := e.Payload.(ui.Resize)
				screen.resize(r.Width, r.Height)
				ui.Clear()
				screen.render(view)
			}
		case u, ok := <-updates:
			if !ok {
				break loop
			}
			view.apply(u)
			screen.render(view)
		case <-ticker.C:
			// session ages move even without updates
			screen.render(view)
		}
	}

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type monitorScreen struct {
	grid     *ui.Grid
	bars     *widgets.BarChart
	sessions *widgets.Table
	summary  *widgets.Paragraph
}

func newMonitorScreen() *monitorScreen {
	s := &monitorScreen{
		grid:     ui.NewGrid(),
		bars:     widgets.NewBarChart(),
		sessions: widgets.NewTable(),
		summary:  widgets.NewParagraph(),
	}

	s.bars.Title = " Online by role "
	s.bars.BarWidth = 10
	s.bars.BarColors = []ui.Color{ui.ColorGreen, ui.ColorCyan, ui.ColorMagenta}
	s.bars.NumStyles = []ui.Style{ui.NewStyle(ui.ColorBlack)}

	s.sessions.Title = " Active sessions "
	s.sessions.RowSeparator = false
	s.sessions.TextStyle = ui.NewStyle(ui.ColorWhite)
	s.sessions.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)

	s.summary.Title = " Summary (q to quit) "

	s.grid.Set(
		ui.NewRow(0.4,
			ui.NewCol(0.6, s.bars),
			ui.NewCol(0.4, s.summary),
		),
		ui.NewRow(0.6, s.sessions),
	)
	return s
}

func (s *monitorScreen) resize(width, height int) {
	s.grid.SetRect(0, 0, width, height)
}

func (s *monitorScreen) render(v *dashboardView) {
	s.bars.Labels, s.bars.Data = v.counts()
	s.sessions.Rows = v.rows(time.Now())
	s.summary.Text = v.summary()
	ui.Render(s.grid)
}
