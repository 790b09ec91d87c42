package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage items on a shopping list",
}

var itemLsCmd = &cobra.Command{
	Use:   "ls [list-id]",
	Short: "Show the items of a list",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemLs,
}

var itemAddCmd = &cobra.Command{
	Use:   "add [list-id] [title]",
	Short: "Add an item to a list",
	Args:  cobra.ExactArgs(2),
	RunE:  runItemAdd,
}

var itemCheckCmd = &cobra.Command{
	Use:   "check [item-id]",
	Short: "Mark an item as bought",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemCheck,
}

var itemUncheckCmd = &cobra.Command{
	Use:   "uncheck [item-id]",
	Short: "Mark an item as not bought",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemUncheck,
}

var itemRmCmd = &cobra.Command{
	Use:   "rm [item-id]",
	Short: "Remove an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemRm,
}

func init() {
	itemCmd.AddCommand(itemLsCmd)
	itemCmd.AddCommand(itemAddCmd)
	itemCmd.AddCommand(itemCheckCmd)
	itemCmd.AddCommand(itemUncheckCmd)
	itemCmd.AddCommand(itemRmCmd)
	rootCmd.AddCommand(itemCmd)
}

func runItemLs(cmd *cobra.Command, args []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	items, err := m.Items(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading items: %w", err)
	}
	if len(items) == 0 {
		cmd.Println("No items on this list.")
		return nil
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })
	for _, it := range items {
		cmd.Printf("%s  %s  %s\n", checkbox(it.Checked), it.ID, it.Title)
	}
	return nil
}

func runItemAdd(cmd *cobra.Command, args []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	res, err := m.Save(cmd.Context(), domain.NewItem{List: args[0], Title: args[1]})
	if err != nil {
		return fmt.Errorf("adding item: %w", err)
	}

	cmd.Printf("Added %s\n", res.ID)
	return nil
}

func runItemCheck(cmd *cobra.Command, args []string) error {
	return setItemChecked(cmd, args[0], true)
}

func runItemUncheck(cmd *cobra.Command, args []string) error {
	return setItemChecked(cmd, args[0], false)
}

func setItemChecked(cmd *cobra.Command, id string, checked bool) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	doc, err := m.GetDocument(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("loading item: %w", err)
	}

	doc.Checked = checked
	if _, err := m.Save(cmd.Context(), domain.Existing{Doc: *doc}); err != nil {
		return fmt.Errorf("updating item: %w", err)
	}

	cmd.Printf("%s  %s\n", checkbox(checked), doc.Title)
	return nil
}

func runItemRm(cmd *cobra.Command, args []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	if err := m.Remove(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("removing item: %w", err)
	}

	cmd.Printf("Removed %s\n", args[0])
	return nil
}
