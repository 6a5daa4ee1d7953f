package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	deliveryHttp "chainhealth/internal/adapter/delivery/http"
	"chainhealth/internal/config"
	"chainhealth/internal/domain"
	"chainhealth/internal/domain/entity"
	"chainhealth/internal/logger"

	"github.com/fasthttp/router"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:          "chainhealth",
		Short:        "chainhealth selects live endpoints for cosmos chains",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "configs", "directory containing config.yaml")

	rootCmd.AddCommand(
		newServeCmd(&cfgPath),
		newSelectCmd(&cfgPath),
		newChainsCmd(&cfgPath),
	)
	return rootCmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			lg, err := logger.NewLogger(cfg.Logger)
			if err != nil {
				log.Fatalf("Failed to setup logger: %v", err)
			}
			defer func() { _ = lg.Sync() }()
			lg.Info("Logger initialized", zap.Any("config", cfg.Logger))

			rootCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, lg)
			if err != nil {
				return err
			}
			if err := a.prepareRegistry(rootCtx); err != nil {
				return err
			}

			go a.unhealthy.Run(rootCtx)
			go a.syncer.Run(rootCtx)

			r := router.New()
			handler := deliveryHttp.NewChainHandler(a.service, lg)
			deliveryHttp.RegisterRoutes(r, handler, a.metrics.Handler(), lg)

			server := &fasthttp.Server{
				Handler: deliveryHttp.LoggingMiddleware(r.Handler, lg),
				Name:    cfg.App.Name,
			}
			serverAddr := ":" + cfg.Server.Port

			errCh := make(chan error, 1)
			go func() {
				lg.Info("Starting HTTP server", zap.String("address", serverAddr))
				errCh <- server.ListenAndServe(serverAddr)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server stopped: %w", err)
			case <-rootCtx.Done():
				lg.Info("Shutting down HTTP server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.ShutdownWithContext(shutdownCtx)
			}
		},
	}
}

func newSelectCmd(cfgPath *string) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "select <chain> [kind]",
		Short: "Print the selected endpoints of a chain",
		Long:  "Without a kind, prints the rpc, rest and grpc endpoints of the chain. With a kind, runs a fresh selection for that kind.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setupOneShot(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			chain := args[0]

			if len(args) == 2 {
				kind, err := entity.ParseKind(args[1])
				if err != nil {
					return err
				}
				endpoint, err := a.service.Select(cmd.Context(), chain, kind)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, endpoint.String())
				if strict && endpoint.IsUnknown() {
					return fmt.Errorf("%w: %s %s", domain.ErrNoHealthyEndpoint, chain, kind)
				}
				return nil
			}

			entry, err := a.service.GetOrSelect(cmd.Context(), chain)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "rpc:  %s\nrest: %s\ngrpc: %s\n", entry.RPC, entry.REST, entry.GRPC)
			if strict && (entry.RPC.IsUnknown() || entry.REST.IsUnknown()) {
				return fmt.Errorf("%w: %s", domain.ErrNoHealthyEndpoint, chain)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when an endpoint is Unknown")
	return cmd
}

func newChainsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the chains declared in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := setupOneShot(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()

			chains, err := a.service.ListChains(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(chains, "\n"))
			return nil
		},
	}
}

// setupOneShot wires the app for a single command, logging to stderr.
func setupOneShot(cmd *cobra.Command, cfgPath string) (*app, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	lg, err := logger.NewLoggerTo(cfg.Logger, zapcore.Lock(os.Stderr))
	if err != nil {
		return nil, nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	cmd.SetContext(ctx)

	a, err := newApp(cfg, lg)
	if err != nil {
		stop()
		return nil, nil, err
	}
	if err := a.prepareRegistry(ctx); err != nil {
		stop()
		return nil, nil, err
	}

	return a, func() {
		stop()
		_ = lg.Sync()
	}, nil
}
