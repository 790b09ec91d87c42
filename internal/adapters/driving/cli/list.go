package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Manage shopping lists",
	Long:  `Create, show and remove shopping lists. Without a subcommand, shows all lists.`,
	RunE:  runListShow,
}

var listShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all shopping lists",
	RunE:  runListShow,
}

var listAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create a shopping list",
	Args:  cobra.ExactArgs(1),
	RunE:  runListAdd,
}

var listRenameCmd = &cobra.Command{
	Use:   "rename [list-id] [title]",
	Short: "Rename a shopping list",
	Args:  cobra.ExactArgs(2),
	RunE:  runListRename,
}

var listRmCmd = &cobra.Command{
	Use:   "rm [list-id]",
	Short: "Remove a shopping list and all its items",
	Args:  cobra.ExactArgs(1),
	RunE:  runListRm,
}

// listPlace is a flag for the add command.
var listPlace string

func init() {
	listAddCmd.Flags().StringVarP(&listPlace, "place", "p", "", "Where the shopping happens (e.g. a store name)")

	listCmd.AddCommand(listShowCmd)
	listCmd.AddCommand(listAddCmd)
	listCmd.AddCommand(listRenameCmd)
	listCmd.AddCommand(listRmCmd)
	rootCmd.AddCommand(listCmd)
}

func runListShow(cmd *cobra.Command, _ []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	lists, err := m.Lists(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading lists: %w", err)
	}
	if len(lists) == 0 {
		cmd.Println("No shopping lists yet. Create one with 'cartloop list add'.")
		return nil
	}

	sort.Slice(lists, func(i, j int) bool { return lists[i].CreatedAt < lists[j].CreatedAt })
	for _, l := range lists {
		cmd.Printf("%s  %s  %s\n", checkbox(l.Checked), l.ID, l.Title)
		if l.Place != nil && l.Place.Title != "" {
			cmd.Printf("      at %s\n", l.Place.Title)
		}
	}
	return nil
}

func runListAdd(cmd *cobra.Command, args []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	req := domain.NewList{Title: args[0]}
	if listPlace != "" {
		req.Place = &domain.Place{Title: listPlace}
	}

	res, err := m.Save(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("creating list: %w", err)
	}

	cmd.Printf("Created %s\n", res.ID)
	return nil
}

func runListRename(cmd *cobra.Command, args []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	doc, err := m.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading list: %w", err)
	}

	doc.Title = args[1]
	if _, err := m.Save(cmd.Context(), domain.Existing{Doc: *doc}); err != nil {
		return fmt.Errorf("renaming list: %w", err)
	}

	cmd.Printf("Renamed %s to %q\n", doc.ID, args[1])
	return nil
}

func runListRm(cmd *cobra.Command, args []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	if err := m.Remove(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("removing list: %w", err)
	}

	cmd.Printf("Removed %s\n", args[0])
	return nil
}

func checkbox(checked bool) string {
	if checked {
		return "[x]"
	}
	return "[ ]"
}
