package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"memecat/internal/daemonctl"
	"memecat/internal/daemonrun"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 45 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the memecat daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, ctx.launchOptions(), startWaitTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the memecat daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not stop in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	var runLimit int
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, catalog, and recent sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue(), runLimit)
			if err != nil {
				return err
			}
			return ctx.emit(cmd, snap, func(out io.Writer) error {
				renderStatus(out, snap, shouldColorize(out))
				return nil
			})
		},
	}
	statusCmd.Flags().IntVar(&runLimit, "runs", 5, "Number of recent sync runs to show")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the memecat daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}

func (c *commandContext) launchOptions() daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{ConfigPath: c.configPath}
}

func renderStatus(out io.Writer, snap *daemonctl.Snapshot, colorize bool) {
	var daemonLines []string
	if snap.Daemon == nil {
		daemonLines = append(daemonLines, renderStatusLine("Daemon", statusWarn, "not running (catalog read directly)", colorize))
	} else {
		d := snap.Daemon
		state := "running (pid " + strconv.Itoa(d.PID) + ")"
		if d.Workflow.Syncing {
			state += ", sync in progress"
		}
		daemonLines = append(daemonLines,
			renderStatusLine("Daemon", statusOK, state, colorize),
			renderStatusLine("Catalog", statusInfo, d.CatalogPath, colorize),
			renderStatusLine("Threshold", statusInfo, strconv.Itoa(d.Threshold), colorize),
			renderStatusLine("Describer", statusInfo, d.Features.Describer, colorize),
			renderStatusLine("Listing export", statusInfo, yesNo(d.Features.Export), colorize),
		)
		if d.Workflow.LastError != "" {
			daemonLines = append(daemonLines, renderStatusLine("Last error", statusError, d.Workflow.LastError, colorize))
		}
		ready, degraded := daemonctl.ComponentLines(d.Workflow)
		for _, c := range ready {
			daemonLines = append(daemonLines, renderStatusLine(c.Name, statusOK, c.Detail, colorize))
		}
		for _, c := range degraded {
			daemonLines = append(daemonLines, renderStatusLine(c.Name, statusWarn, c.Detail, colorize))
		}
	}
	printSection(out, "Daemon", colorize, daemonLines)

	s := snap.Stats
	rows := [][]string{
		{"Items", strconv.Itoa(s.Items)},
		{"Processed", strconv.Itoa(s.Processed)},
		{"Fingerprinted", strconv.Itoa(s.Fingerprinted)},
		{"Unsupported", strconv.Itoa(s.Unsupported)},
		{"Pending removal", strconv.Itoa(s.PendingRemoval)},
		{"Duplicate groups", strconv.Itoa(s.Groups)},
		{"Grouped items", strconv.Itoa(s.Grouped)},
		{"Pair exceptions", strconv.Itoa(s.PairExceptions)},
	}
	printSection(out, "Catalog", colorize, nil)
	fmt.Fprint(out, renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintln(out)

	printSection(out, "Recent Syncs", colorize, nil)
	if len(snap.Runs) == 0 {
		fmt.Fprintln(out, "No sync runs recorded")
		return
	}
	fmt.Fprint(out, renderRunsTable(snap.Runs))
}
