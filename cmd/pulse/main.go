package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	fixtureFlag string
	userFlag    string

	// progress flags
	projectFlag string
	filterFlag  string
	onceFlag    bool

	// notify flags
	scheduleFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Live issue progress and deadline reminders",
		Long: `pulse tracks how many of your issues are done inside a time window
and reminds you of upcoming deadlines and new assignments.

Data source (one of):
  1. --fixture path   YAML snapshot, reloaded when the file changes
  2. PULSE_BACKEND_URL with PULSE_TOKEN (or PULSE_TOKEN_FILE) for the GraphQL API

Identity: --user, user_id in PULSE_CONFIG, or PULSE_USER_ID.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&fixtureFlag, "fixture", "", "YAML fixture to load instead of the backend.")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "User ID to act as. Overrides PULSE_USER_ID.")

	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Show live completion progress",
		Args:  cobra.NoArgs,
		RunE:  runProgress,
	}
	progressCmd.Flags().StringVar(&projectFlag, "project", "", "Focus a single project ID.")
	progressCmd.Flags().StringVar(&filterFlag, "filter", "", "Time window: all, year, month or week. Defaults to the configured filter.")
	progressCmd.Flags().BoolVar(&onceFlag, "once", false, "Print the current progress and exit instead of opening the dashboard.")

	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Send deadline and assignment reminders",
		Args:  cobra.NoArgs,
		RunE:  runNotify,
	}
	notifyCmd.Flags().BoolVar(&scheduleFlag, "schedule", false, "Keep running and scan on PULSE_NOTIFY_CRON.")

	windowCmd := &cobra.Command{
		Use:   "window",
		Short: "Print the bounds of a time window",
		Args:  cobra.NoArgs,
		RunE:  runWindow,
	}
	windowCmd.Flags().StringVar(&filterFlag, "filter", "", "Time window: all, year, month or week.")

	stateCmd := &cobra.Command{
		Use:   "state ISSUE_ID NEW|ONGOING|DONE",
		Short: "Move an issue to another state on the backend",
		Args:  cobra.ExactArgs(2),
		RunE:  runState,
	}

	rootCmd.AddCommand(progressCmd, notifyCmd, windowCmd, stateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
