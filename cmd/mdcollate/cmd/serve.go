package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/mdcollate/internal/core/api"
	"github.com/solatis/mdcollate/internal/core/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC aggregation service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	runner, err := newRunner()
	if err != nil {
		return err
	}

	// Persistence is optional; without a store GetRun answers Unimplemented.
	var store api.RunRecorder
	if cfg.Store.DBURL != "" {
		runStore, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		store = runStore
	}

	service, err := api.NewAggregationService(runner, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg, service, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting mdcollate aggregation service",
		"version", Version, "addr", cfg.Addr(), "persistence", store != nil)

	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		return grpcServer.Shutdown(context.Background())
	}
}
