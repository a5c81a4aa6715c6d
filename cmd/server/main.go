package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omochice/framed-duplex/internal/chat"
	"github.com/omochice/framed-duplex/internal/config"
	"github.com/omochice/framed-duplex/internal/observability"
	"github.com/omochice/framed-duplex/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath    string
		listen        string
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Chat server accepting framed TCP and WebSocket clients on one port",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}
			if cmd.Flags().Changed("metrics-listen") {
				cfg.Server.MetricsListen = metricsListen
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on for both TCP and WebSocket (e.g. :8080)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Address for the Prometheus /metrics endpoint (disabled when empty)")
	return cmd
}

func run(cfg config.Config) error {
	logger := observability.InitLogger("duplex-server", cfg.Log.Level, cfg.Log.Format)
	observability.RegisterMetrics()

	var metrics *http.Server
	if cfg.Server.MetricsListen != "" {
		metrics = observability.MetricsServer(cfg.Server.MetricsListen)
		go func() {
			logger.Info().Str("addr", metrics.Addr).Msg("metrics endpoint started")
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	hub := chat.NewHub(logger)
	srv := server.New(cfg.Server.Listen, hub, cfg.Transport.Duplex(), logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
	case sig := <-sigChan:
		logger.Info().Stringer("signal", sig).Msg("shutting down")
		srv.Stop()
	}

	if metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(ctx)
	}
	return serveErr
}
