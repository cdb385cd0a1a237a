package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"memecat/internal/catalog"
	"memecat/internal/ipc"
)

func newDuplicateCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDupesCommand(ctx),
		newGroupsCommand(ctx),
		newMergeCommand(ctx),
		newNotDuplicateCommand(ctx),
		newPairsCommand(ctx),
	}
}

func newDupesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dupes <filename>",
		Short: "Show an item's duplicate group ordered by distance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Duplicates(args[0])
				if err != nil {
					return err
				}
				hood := resp.Neighborhood
				return ctx.emit(cmd, hood, func(out io.Writer) error {
					if hood == nil || len(hood.Neighbors) == 0 {
						fmt.Fprintf(out, "%s has no duplicates\n", args[0])
						return nil
					}
					fmt.Fprintf(out, "%s (group %s)\n", hood.Primary.Filename, hood.Primary.GroupID)
					rows := make([][]string, 0, len(hood.Neighbors))
					for _, n := range hood.Neighbors {
						rows = append(rows, []string{
							n.Item.Filename,
							strconv.Itoa(n.Distance),
							n.Item.Category,
							truncate(n.Item.Description, 48),
						})
					}
					fmt.Fprint(out, renderTable([]string{"Filename", "Distance", "Category", "Description"}, rows,
						[]columnAlignment{alignLeft, alignRight}))
					return nil
				})
			})
		},
	}
}

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List duplicate groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Groups()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Groups, func(out io.Writer) error {
					if len(resp.Groups) == 0 {
						fmt.Fprintln(out, "No duplicate groups")
						return nil
					}
					rows := make([][]string, 0, len(resp.Groups))
					for _, g := range resp.Groups {
						rows = append(rows, []string{g.GroupID, strconv.Itoa(g.Count), strings.Join(g.Members, ", ")})
					}
					fmt.Fprint(out, renderTable([]string{"Group", "Count", "Members"}, rows,
						[]columnAlignment{alignLeft, alignRight}))
					return nil
				})
			})
		},
	}
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var metadataFrom []string
	cmd := &cobra.Command{
		Use:   "merge <primary> <duplicate>...",
		Short: "Keep the primary, fold in metadata, and delete the duplicates",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.MergeRequest{
				Primary:         args[0],
				Duplicates:      args[1:],
				MetadataSources: metadataFrom,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Merge(req)
				if err != nil {
					return err
				}
				result := resp.Result
				return ctx.emit(cmd, result, func(out io.Writer) error {
					colorize := shouldColorize(out)
					fmt.Fprintf(out, "Kept %s\n", result.Primary.Filename)
					for _, name := range result.Deleted {
						fmt.Fprintf(out, "Deleted %s\n", name)
					}
					for _, g := range result.Dissolved {
						fmt.Fprintf(out, "Dissolved group %s\n", g)
					}
					for _, re := range result.RemoteErrors {
						fmt.Fprintln(out, paint(color.FgYellow, fmt.Sprintf("Remote delete failed for %s: %s", re.RemotePath, re.Error), colorize))
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&metadataFrom, "metadata-from", nil, "Items whose metadata is folded into the primary (default: the duplicates)")
	return cmd
}

func newNotDuplicateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "not-dup <filename>",
		Short: "Mark an item as never a duplicate and remove it from its group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MarkNotDuplicate(args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Item, func(out io.Writer) error {
					fmt.Fprintf(out, "%s marked as not a duplicate\n", resp.Item.Filename)
					return nil
				})
			})
		},
	}
}

func newPairsCommand(ctx *commandContext) *cobra.Command {
	pairsCmd := &cobra.Command{
		Use:   "pairs",
		Short: "Manage pairs that must never share a group",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pair exceptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PairExceptions()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Pairs, func(out io.Writer) error {
					fmt.Fprint(out, renderPairsTable(resp.Pairs))
					return nil
				})
			})
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <a> <b>",
		Short: "Record that two items are not duplicates of each other",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AddPairException(args[0], args[1])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(out io.Writer) error {
					fmt.Fprintf(out, "%s and %s will not be grouped\n", args[0], args[1])
					return nil
				})
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <a> <b>",
		Short: "Forget a pair exception",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RemovePairException(args[0], args[1])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(out io.Writer) error {
					if !resp.Changed {
						fmt.Fprintf(out, "No exception for %s and %s\n", args[0], args[1])
						return nil
					}
					fmt.Fprintf(out, "Removed exception for %s and %s\n", args[0], args[1])
					return nil
				})
			})
		},
	}

	pairsCmd.AddCommand(listCmd, addCmd, removeCmd)
	return pairsCmd
}

func renderPairsTable(pairs []catalog.PairException) string {
	if len(pairs) == 0 {
		return "No pair exceptions\n"
	}
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{p.FilenameA, p.FilenameB, p.CreatedAt.Local().Format("2006-01-02 15:04")})
	}
	return renderTable([]string{"A", "B", "Added"}, rows, nil)
}
