package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/squarefid/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for marker detection",
	Long: `Start an HTTP server that decodes markers from uploaded images.

The server provides the following endpoints:
  POST /v1/detect - multipart upload: "image" file plus "quads" JSON
  GET  /ws/detect - WebSocket streaming of detect requests
  GET  /health    - Health check endpoint
  GET  /metrics   - Prometheus metrics

Examples:
  squarefid serve
  squarefid serve --port 8080
  squarefid serve --host 0.0.0.0 --port 3000 --intrinsics camera.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyMarkerFlags(cmd, cfg)
		applyDetectorFlags(cmd, cfg)
		overrideString(cmd, "host", &cfg.Server.Host)
		overrideInt(cmd, "port", &cfg.Server.Port)
		overrideString(cmd, "cors-origin", &cfg.Server.CORSOrigin)
		overrideInt(cmd, "max-upload-size", &cfg.Server.MaxUploadMB)
		overrideInt(cmd, "timeout", &cfg.Server.TimeoutSec)
		overrideInt(cmd, "shutdown-timeout", &cfg.Server.ShutdownTimeout)
		overrideInt(cmd, "rate-limit", &cfg.Server.RateLimit)
		if err := cfg.Validate(); err != nil {
			return err
		}

		dcfg, err := cfg.ToDetectorConfig()
		if err != nil {
			return err
		}
		srv, err := server.NewServer(server.Config{
			Host:              cfg.Server.Host,
			Port:              cfg.Server.Port,
			CORSOrigin:        cfg.Server.CORSOrigin,
			MaxUploadMB:       int64(cfg.Server.MaxUploadMB),
			TimeoutSec:        cfg.Server.TimeoutSec,
			RequestsPerMinute: cfg.Server.RateLimit,
			Detector:          dcfg,
			Logger:            slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		mux := http.NewServeMux()
		srv.SetupRoutes(mux)

		timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout,
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go func() {
			slog.Info("Starting marker server", "host", cfg.Server.Host, "port", cfg.Server.Port, "pose", dcfg.Intrinsics != nil)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			return err
		}
		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addMarkerFlags(serveCmd)
	addDetectorFlags(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Int("rate-limit", 0, "maximum detect requests per minute per client (0 = unlimited)")
}
