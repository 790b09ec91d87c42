package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change settings stored alongside the documents. Settings
never replicate; each device keeps its own.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsRemoteCmd = &cobra.Command{
	Use:   "remote [url]",
	Short: "Set the remote database URL",
	Long: `Set the remote peer this device replicates with, e.g.
http://peer.local:5984/db. An empty URL switches back to local-only mode.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsRemote,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsRemoteCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	settings, err := m.Settings(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	if settings.RemoteDB == "" {
		cmd.Println("  Remote DB: (not set, local-only)")
	} else {
		cmd.Printf("  Remote DB: %s\n", settings.RemoteDB)
	}
	return nil
}

func runSettingsRemote(cmd *cobra.Command, args []string) error {
	m, err := ensureModel(cmd.Context())
	if err != nil {
		return err
	}

	settings, err := m.Settings(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	settings.RemoteDB = args[0]
	if err := m.SaveSettings(cmd.Context(), *settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	if settings.RemoteDB == "" {
		cmd.Println("Remote DB cleared; running local-only.")
	} else {
		cmd.Printf("Remote DB set to %s\n", settings.RemoteDB)
	}
	return nil
}
