package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"echopulse/pkg/logging"
)

// shutdownTimeout bounds the graceful shutdown sequence.
const shutdownTimeout = 15 * time.Second

// runServe starts all services and blocks until ctx is done or the process
// receives SIGINT or SIGTERM.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
func runServe(ctx context.Context, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := services.Start(ctx); err != nil {
		logging.Error("CLI", err, "Failed to start services")
		_ = services.Repository.Close()
		return err
	}

	logging.Info("CLI", "echopulse is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	logging.Info("CLI", "--- Shutting down ---")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := services.Stop(shutdownCtx); err != nil {
		logging.Error("CLI", err, "Shutdown finished with errors")
		return err
	}
	logging.Info("CLI", "Shutdown complete")
	return nil
}
