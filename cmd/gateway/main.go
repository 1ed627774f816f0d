package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexops/gateway/pkg/config"
	"github.com/cortexops/gateway/pkg/gateway"
	"github.com/cortexops/gateway/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Gateway - service mesh entry point and control plane",
	Long: `Gateway is the single entry point for a backend service mesh:
it registers service instances, health-checks them, balances load,
verifies credentials, and proxies buffered and streaming requests.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Gateway version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Run the gateway server. Configuration comes from environment
variables; JWT_SECRET_KEY and INTERNAL_SECRET_KEY are required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})

		srv, err := gateway.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to build gateway: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.WithComponent("main").Info().Str("signal", sig.String()).Msg("signal received")
		case err := <-errCh:
			if err != nil {
				return err
			}
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}
