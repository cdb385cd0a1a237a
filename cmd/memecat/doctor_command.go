package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"memecat/internal/logging"
	"memecat/internal/preflight"
	"memecat/internal/services/webdav"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, remote store, description provider, and tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var remote preflight.Pinger
			if client, err := webdav.New(cfg.Remote, logging.NewNop()); err == nil {
				remote = client
			}
			results := preflight.RunAll(cmd.Context(), cfg, remote)
			failed := preflight.Failed(results)

			if err := ctx.emit(cmd, results, func(out io.Writer) error {
				colorize := shouldColorize(out)
				lines := make([]string, 0, len(results))
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
				printSection(out, "Preflight", colorize, lines)
				return nil
			}); err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}
