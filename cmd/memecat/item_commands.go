package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"memecat/internal/catalog"
	"memecat/internal/fingerprint"
	"memecat/internal/ipc"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item"},
		Short:   "Inspect and edit catalog items",
	}
	itemsCmd.AddCommand(
		newItemsListCommand(ctx),
		newItemShowCommand(ctx),
		newItemEditCommand(ctx),
		newItemDeleteCommand(ctx),
		newItemRecomputeCommand(ctx),
	)
	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var req ipc.ItemListRequest
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListItems(req)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Items, func(out io.Writer) error {
					if len(resp.Items) == 0 {
						fmt.Fprintln(out, "No items")
						return nil
					}
					fmt.Fprint(out, renderItemsTable(resp.Items))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.Category, "category", "", "Only items in this category")
	cmd.Flags().BoolVar(&req.Unprocessed, "unprocessed", false, "Only items still awaiting processing")
	cmd.Flags().BoolVar(&req.GroupedOnly, "grouped", false, "Only items in a duplicate group")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum number of items (0 for all)")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "Skip this many items")
	return cmd
}

func newItemShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <filename>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.GetItem(args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Item, func(out io.Writer) error {
					printItem(out, resp.Item)
					return nil
				})
			})
		},
	}
}

func newItemEditCommand(ctx *commandContext) *cobra.Command {
	var description, category, text string
	var keywords []string
	cmd := &cobra.Command{
		Use:   "edit <filename>",
		Short: "Edit descriptive metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch catalog.ItemPatch
			flags := cmd.Flags()
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("category") {
				patch.Category = &category
			}
			if flags.Changed("text") {
				patch.TextInImage = &text
			}
			if flags.Changed("keywords") {
				patch.Keywords = &keywords
			}
			if patch.Empty() {
				return fmt.Errorf("nothing to change: pass --description, --category, --keywords, or --text")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UpdateItem(args[0], patch)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp.Item, func(out io.Writer) error {
					printItem(out, resp.Item)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&category, "category", "", "New category")
	cmd.Flags().StringVar(&text, "text", "", "New text-in-image transcription")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "Replacement keywords (comma separated)")
	return cmd
}

func newItemDeleteCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete an item from the remote store and the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DeleteItem(args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(out io.Writer) error {
					fmt.Fprintf(out, "Deleted %s\n", args[0])
					for _, g := range resp.Dissolved {
						fmt.Fprintf(out, "Dissolved group %s\n", g)
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}

func newItemRecomputeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <filename>",
		Short: "Recompute an item's fingerprint, bypassing the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Recompute(args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func(out io.Writer) error {
					fmt.Fprintf(out, "%s fingerprint %s\n", args[0], resp.Fingerprint)
					return nil
				})
			})
		},
	}
}

func renderItemsTable(items []*catalog.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.Filename,
			item.Category,
			string(item.Status),
			item.GroupID,
			truncate(item.Description, 48),
		})
	}
	return renderTable([]string{"Filename", "Category", "Status", "Group", "Description"}, rows, nil)
}

func printItem(out io.Writer, item *catalog.Item) {
	fp := "-"
	if item.Fingerprint != nil {
		fp = fingerprint.Fingerprint(*item.Fingerprint).String()
	}
	rows := [][]string{
		{"Filename", item.Filename},
		{"Remote path", item.RemotePath},
		{"Size", strconv.FormatInt(item.Size, 10)},
		{"Status", string(item.Status)},
		{"Processed", yesNo(item.Processed)},
		{"Fingerprint", fp},
		{"Group", item.GroupID},
		{"Not a duplicate", yesNo(item.IsFalsePositive)},
		{"Category", item.Category},
		{"Keywords", strings.Join(item.Keywords, ", ")},
		{"Description", item.Description},
		{"Text in image", item.TextInImage},
	}
	if item.LastError != "" {
		rows = append(rows, []string{"Last error", item.LastError}, []string{"Attempts", strconv.Itoa(item.Attempts)})
	}
	fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, nil))
}
