package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/storage/sqlite"
	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driving/peer"
	"github.com/cartloop-labs/cartloop-cli/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve this device's database to other replicas",
	Long: `Exposes the local document store over HTTP so other devices can
replicate with it. Point their remote URL at http://<host><addr>/db.`,
	RunE: runServe,
}

// serveAddr is a flag for the serve command.
var serveAddr string

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":5984", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           peer.NewServer(store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		cmd.Printf("Serving %s at %s\n", store.Path(), serveAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down peer server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down: %w", err)
	}
	cmd.Println("Stopped.")
	return nil
}
