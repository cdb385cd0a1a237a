package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"memecat/internal/catalog"
	"memecat/internal/ipc"
)

func newSyncCommands(ctx *commandContext) []*cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Queue an immediate reconciliation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TriggerSync()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(out io.Writer) error {
					fmt.Fprintln(out, "Sync queued")
					return nil
				})
			})
		},
	}

	var limit int
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncRuns(limit)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Runs, func(out io.Writer) error {
					if len(resp.Runs) == 0 {
						fmt.Fprintln(out, "No sync runs recorded")
						return nil
					}
					fmt.Fprint(out, renderRunsTable(resp.Runs))
					return nil
				})
			})
		},
	}
	runsCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Upload the listing document to the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Export()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(out io.Writer) error {
					fmt.Fprintf(out, "Exported %d entries\n", resp.Entries)
					return nil
				})
			})
		},
	}

	return []*cobra.Command{syncCmd, runsCmd, exportCmd}
}

func renderRunsTable(runs []*catalog.SyncRun) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runDuration(run),
			string(run.Status),
			strconv.Itoa(run.Added),
			strconv.Itoa(run.Updated),
			strconv.Itoa(run.Removed),
			strconv.Itoa(run.PendingRemoval),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Skipped),
			truncate(run.Error, 40),
		})
	}
	aligns := []columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
	return renderTable([]string{"Started", "Took", "Status", "Added", "Updated", "Removed", "Pending", "Failed", "Skipped", "Error"}, rows, aligns)
}

func runDuration(run *catalog.SyncRun) string {
	if run.EndedAt == nil {
		return "-"
	}
	return run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
