package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/candyshare/candyshare/internal/config"
	"github.com/candyshare/candyshare/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "candyshare",
		Short: "CandyShare - Simple expiring file sharing",
		Long: `CandyShare is a file sharing service that hands out presigned
upload and download URLs so file bytes go straight to object storage.
Shares expire on a schedule set by the uploader's tier.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:    runServer,
	}

	// Add configuration flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "./data", "Data directory path")
	rootCmd.PersistentFlags().StringP("listen", "l", ":8080", "Listen address")
	rootCmd.PersistentFlags().StringP("public-url", "", "http://localhost:8080", "Public base URL used in share links")
	rootCmd.PersistentFlags().StringP("log-level", "", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("enable-tls", "", false, "Enable TLS")
	rootCmd.PersistentFlags().StringP("tls-cert", "", "", "TLS certificate file")
	rootCmd.PersistentFlags().StringP("tls-key", "", "", "TLS key file")

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)

	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}).Info("Starting CandyShare")

	// Create server
	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logrus.Info("Received shutdown signal")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logrus.Info("CandyShare stopped")
	return nil
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
