package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driving"
	"github.com/cartloop-labs/cartloop-cli/internal/logger"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replicate with the remote database",
	Long: `Catches up with the configured remote peer in both directions.
With --watch, stays running afterwards and replicates continuously,
printing inbound changes as they arrive.

The remote URL comes from 'cartloop settings remote', or from the
sync.remote_db key of the config file when no setting is stored.`,
	RunE: runSync,
}

// syncWatch is a flag for the sync command.
var syncWatch bool

func init() {
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "keep replicating after the initial catch-up")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m, err := ensureModel(ctx)
	if err != nil {
		return err
	}

	remote, err := resolveRemote(ctx, m)
	if err != nil {
		return err
	}
	if remote == "" {
		cmd.Println("No remote database configured; nothing to replicate.")
		cmd.Println("Set one with 'cartloop settings remote <url>'.")
		return nil
	}

	cmd.Printf("Synchronising with %s...\n", remote)

	done := make(chan error, 1)
	onComplete := func(err error, info *driving.SyncInfo) {
		if err == nil && info != nil {
			cmd.Printf("Caught up: pulled %d, pushed %d.\n", info.DocsPulled, info.DocsPushed)
		}
		done <- err
	}
	onChange := func(err error, docs []domain.Document) {
		if err != nil {
			logger.Warn("replication: %v", err)
			return
		}
		for _, doc := range docs {
			if doc.Deleted {
				cmd.Printf("<- removed %s\n", doc.ID)
			} else {
				cmd.Printf("<- %s  %s\n", doc.ID, doc.Title)
			}
		}
	}

	if err := m.Synchronize(ctx, remote, onComplete, onChange); err != nil {
		return fmt.Errorf("starting sync: %w", err)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if !syncWatch {
		return nil
	}

	cmd.Println("Watching for changes. Press Ctrl+C to stop.")

	// A config file edit can repoint the session at a new remote without
	// restarting the watch.
	if cfg, err := ensureConfig(); err == nil {
		current := remote
		stopWatch, err := cfg.Watch(func() {
			next, err := resolveRemote(ctx, m)
			if err != nil || next == "" || next == current {
				return
			}
			current = next
			cmd.Printf("Remote changed, synchronising with %s...\n", next)
			if err := m.Synchronize(ctx, next, nil, onChange); err != nil {
				logger.Warn("restarting sync: %v", err)
			}
		})
		if err != nil {
			logger.Warn("watching config: %v", err)
		} else {
			defer stopWatch()
		}
	}

	watchCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-watchCtx.Done()
	cmd.Println("Stopped.")
	return nil
}

// resolveRemote prefers the settings document; the config file is the
// fallback so a remote can be provisioned before first run.
func resolveRemote(ctx context.Context, m driving.Model) (string, error) {
	settings, err := m.Settings(ctx)
	if err != nil {
		return "", fmt.Errorf("loading settings: %w", err)
	}
	if settings.RemoteDB != "" {
		return settings.RemoteDB, nil
	}

	cfg, err := ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.GetString("sync.remote_db"), nil
}
