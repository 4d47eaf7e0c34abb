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

	"github.com/MeKo-Tech/homest/internal/config"
	"github.com/MeKo-Tech/homest/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the homography API",
	Long: `Start an HTTP server that provides REST and WebSocket endpoints for
homography estimation.

The server provides the following endpoints:
  POST /homography/estimate - Estimate H from correspondences
  POST /homography/apply    - Map points through a homography
  GET  /ws/estimate         - Streaming estimation over WebSocket
  GET  /health              - Health check endpoint
  GET  /metrics             - Prometheus metrics

Examples:
  homest serve
  homest serve --port 8080
  homest serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		serverConfig, err := configToServerConfig(cfg, cmd)
		if err != nil {
			return err
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		homServer, err := server.NewServer(serverConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		mux := http.NewServeMux()
		homServer.SetupRoutes(mux)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(serverConfig.TimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(serverConfig.TimeoutSec) * time.Second,
		}

		go func() {
			slog.Info("Starting homography server", "host", serverConfig.Host, "port", serverConfig.Port)
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

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		if err := homServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// configToServerConfig maps centralized configuration and flag overrides to server.Config.
func configToServerConfig(cfg *config.Config, cmd *cobra.Command) (server.Config, error) {
	host := cfg.Server.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}

	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	if port < 1 || port > 65535 {
		return server.Config{}, fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	corsOrigin := cfg.Server.CORSOrigin
	if cmd.Flags().Changed("cors-origin") {
		corsOrigin, _ = cmd.Flags().GetString("cors-origin")
	}

	maxBodyKB := cfg.Server.MaxBodyKB
	if cmd.Flags().Changed("max-body-kb") {
		maxBodyKB, _ = cmd.Flags().GetInt("max-body-kb")
	}

	maxPoints := cfg.Server.MaxPoints
	if cmd.Flags().Changed("max-points") {
		maxPoints, _ = cmd.Flags().GetInt("max-points")
	}

	timeout := cfg.Server.TimeoutSec
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetInt("timeout")
	}

	rateLimitEnabled := cfg.Server.RateLimitEnabled
	if cmd.Flags().Changed("rate-limit-enabled") {
		rateLimitEnabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
	}

	requestsPerSecond := cfg.Server.RequestsPerSecond
	if cmd.Flags().Changed("requests-per-second") {
		requestsPerSecond, _ = cmd.Flags().GetFloat64("requests-per-second")
	}

	burst := cfg.Server.Burst
	if cmd.Flags().Changed("burst") {
		burst, _ = cmd.Flags().GetInt("burst")
	}

	estimation, err := estimationConfig(cfg, cmd)
	if err != nil {
		return server.Config{}, err
	}

	return server.Config{
		Host:       host,
		Port:       port,
		CORSOrigin: corsOrigin,
		MaxBodyKB:  int64(maxBodyKB),
		MaxPoints:  maxPoints,
		TimeoutSec: timeout,
		Estimation: estimation,
		RateLimit: server.RateLimitConfig{
			Enabled:           rateLimitEnabled,
			RequestsPerSecond: requestsPerSecond,
			Burst:             burst,
		},
	}, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-body-kb", 1024, "maximum request body size in KB")
	serveCmd.Flags().Int("max-points", 10000, "maximum number of points per request")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable per-client rate limiting")
	serveCmd.Flags().Float64("requests-per-second", 20, "sustained requests per second per client")
	serveCmd.Flags().Int("burst", 40, "burst size per client")
	addEstimationFlags(serveCmd)
}
