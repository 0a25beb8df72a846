package main

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/names"
	"github.com/h0rv/issuepulse/internal/notify"
	"github.com/h0rv/issuepulse/internal/progress"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/h0rv/issuepulse/internal/schedule"
	"github.com/h0rv/issuepulse/internal/seen"
	"github.com/h0rv/issuepulse/internal/tui"
	"github.com/h0rv/issuepulse/internal/window"
	"github.com/spf13/cobra"
)

func runProgress(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	userID, err := e.user()
	if err != nil {
		return err
	}
	filter, err := e.filter()
	if err != nil {
		return err
	}
	agg := e.aggregator()

	if onceFlag {
		return printProgress(ctx, cmd.OutOrStdout(), agg, userID, projectFlag, filter, e.loc)
	}

	app := tui.NewAppModel(ctx, agg, tui.Options{
		UserID:     userID,
		Filter:     filter,
		ProjectID:  projectFlag,
		ProjectURL: e.cfg.ProjectURL,
		Location:   e.loc,
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}

// printProgress writes the first complete progress snapshot and, without a
// focused project, the per-project breakdown.
func printProgress(ctx context.Context, w io.Writer, agg *progress.Aggregator, userID, projectID string, filter domain.Filter, loc *time.Location) error {
	p, err := reactive.First(ctx, func(ctx context.Context) <-chan reactive.Event[domain.IssueProgress] {
		if projectID != "" {
			return agg.ForProject(ctx, userID, projectID, filter)
		}
		return agg.ForUser(ctx, userID, filter)
	})
	if err != nil {
		return err
	}

	scope := "all projects"
	if projectID != "" {
		scope = "project " + projectID
	}
	fmt.Fprintf(w, "%s, %s: %s\n", filter.Label(), scope, p)
	if projectID != "" {
		return nil
	}

	entries, err := agg.Breakdown(ctx, userID, filter)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Fprintf(w, "  %-24s %s\n", entry.Project.Name, entry.Progress)
	}
	return nil
}

func runNotify(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	userID, err := e.user()
	if err != nil {
		return err
	}

	db, err := seen.Open(e.cfg.SeenDB, userID)
	if err != nil {
		return fmt.Errorf("failed to open seen store: %w", err)
	}
	defer db.Close()

	sink := notify.Multi{
		notify.NewTerminalSink(cmd.OutOrStdout(), e.cfg.NotifyWidth),
		notify.LogSink{Log: e.log},
	}
	n := notify.New(e.repo, e.repo, db, sink,
		notify.WithLocation(e.loc),
		notify.WithLogger(e.log),
		notify.WithNames(names.NewCache(e.names)),
	)

	if !scheduleFlag {
		report, err := n.Run(ctx, userID)
		if err != nil {
			return err
		}
		if report.Total() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to report.")
		}
		return nil
	}

	s := schedule.New(e.loc, e.log, 5*time.Minute)
	if err := s.Add("notify", e.cfg.NotifyCron, func(ctx context.Context) error {
		_, err := n.Run(ctx, userID)
		return err
	}); err != nil {
		return err
	}
	if next, err := schedule.Next(e.cfg.NotifyCron, time.Now(), e.loc); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Next scan at %s. Press Ctrl+C to stop.\n", next.Format(time.RFC1123))
	}
	s.Run(ctx)
	return nil
}

func runWindow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	filter := cfg.DefaultFilter()
	if filterFlag != "" {
		if filter, err = domain.ParseFilter(filterFlag); err != nil {
			return fmt.Errorf("invalid --filter: %w", err)
		}
	}
	printWindow(cmd.OutOrStdout(), filter, time.Now(), loc)
	return nil
}

func printWindow(w io.Writer, filter domain.Filter, now time.Time, loc *time.Location) {
	rng := window.Resolve(filter, now, loc)
	if rng == window.All {
		fmt.Fprintf(w, "%s: every deadline\n", filter.Label())
		return
	}
	from, to := rng.Bounds(loc)
	fmt.Fprintf(w, "%s (%s)\n  from %s\n  to   %s\n", filter.Label(), loc,
		from.Format("Mon 2006-01-02 15:04:05.000"), to.Format("Mon 2006-01-02 15:04:05.000"))
}

func runState(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	if e.client == nil {
		return fmt.Errorf("state changes need a backend; fixtures are read-only (edit %s instead)", e.cfg.Fixture)
	}
	state := domain.IssueState(args[1])
	if err := e.client.SetIssueState(ctx, args[0], state); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Issue %s is now %s.\n", args[0], state)
	return nil
}
