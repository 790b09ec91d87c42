// Package cli implements the cobra command tree driving the shopping list
// model. Commands share one lazily initialised model; the store and remote
// dialer are wired here and nowhere else.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/config/file"
	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/remote/httpsync"
	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/storage/sqlite"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driving"
	"github.com/cartloop-labs/cartloop-cli/internal/core/services"
	"github.com/cartloop-labs/cartloop-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	dataDir     string
	configDir   string
	verboseFlag bool

	// model is the shared driving port instance. Tests replace it.
	model driving.Model

	// config is the TOML-backed config store, opened on first use.
	config driven.ConfigStore
)

var rootCmd = &cobra.Command{
	Use:   "cartloop",
	Short: "Local-first shopping lists with replication",
	Long: `Cartloop keeps shopping lists in a local document store and
replicates them to a remote peer when one is configured. All commands work
offline; run 'cartloop sync' to catch up with the remote.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.cartloop/data)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.cartloop)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ensureModel opens the document store and initialises the model on first
// use, so commands that never touch documents (version, serve) stay cheap.
func ensureModel(ctx context.Context) (driving.Model, error) {
	if model != nil {
		return model, nil
	}

	m := services.NewModel(sqlite.Opener(dataDir), httpsync.NewDialer(nil))
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialising model: %w", err)
	}
	model = m
	return model, nil
}

// ensureConfig opens the config store on first use.
func ensureConfig() (driven.ConfigStore, error) {
	if config != nil {
		return config, nil
	}

	c, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	config = c
	return config, nil
}
