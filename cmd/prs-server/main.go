package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cornelgit/415-ASG3/internal/config"
	"github.com/cornelgit/415-ASG3/internal/metrics"
	"github.com/cornelgit/415-ASG3/internal/registry"
	"github.com/cornelgit/415-ASG3/internal/server"
)

const (
	serviceName    = "prs-server"
	serviceVersion = "1.0.0"
)

// options holds command line values that override the configuration file
type options struct {
	configPath  string
	servicePort int
	startPort   int
	endPort     int
	timeout     int
	httpEnabled bool
	logLevel    string
	logFormat   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error! %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Port reservation service",
		Long: `prs-server hands out ports from a fixed pool to named services over UDP.
Reservations expire unless renewed with KEEP_ALIVE within the timeout.`,
		Version:       serviceVersion,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cfg, opts.configPath)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to YAML configuration file")
	flags.IntVarP(&opts.servicePort, "port", "p", config.DefaultServicePort, "UDP port the registry listens on")
	flags.IntVarP(&opts.startPort, "start", "s", config.DefaultStartPort, "First client port in the pool")
	flags.IntVarP(&opts.endPort, "end", "e", config.DefaultEndPort, "Last client port in the pool")
	flags.IntVarP(&opts.timeout, "timeout", "t", config.DefaultKeepAliveTimeout, "Keep-alive timeout in seconds")
	flags.BoolVar(&opts.httpEnabled, "http", false, "Enable the HTTP monitoring API")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")

	return cmd
}

// loadConfig reads the optional file and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.UDPPort = opts.servicePort
	}
	if flags.Changed("start") {
		cfg.Registry.StartPort = opts.startPort
	}
	if flags.Changed("end") {
		cfg.Registry.EndPort = opts.endPort
	}
	if flags.Changed("timeout") {
		cfg.Registry.KeepAliveTimeout = opts.timeout
	}
	if flags.Changed("http") {
		cfg.HTTP.Enabled = opts.httpEnabled
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config, configPath string) error {
	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("start_port", cfg.Registry.StartPort),
		slog.Int("end_port", cfg.Registry.EndPort),
		slog.Int("keep_alive_timeout", cfg.Registry.KeepAliveTimeout),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(promReg)

	reg, err := registry.New(registry.Config{
		StartPort:        uint16(cfg.Registry.StartPort),
		EndPort:          uint16(cfg.Registry.EndPort),
		KeepAliveTimeout: cfg.Registry.GetKeepAliveTimeoutDuration(),
	}, registry.WithLogger(logger), registry.WithObserver(appMetrics))
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	logger.Info("Registry initialized", slog.Int("ports", reg.Stats().TotalPorts))

	udpServer := server.NewUDPServer(&cfg.Server, logger, reg, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, reg, udpServer, appMetrics, promReg)
	}

	if err := udpServer.Start(); err != nil {
		return fmt.Errorf("failed to start UDP server: %w", err)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			udpServer.Stop()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Service started successfully, waiting for requests...",
		slog.String("udp_address", cfg.Server.GetUDPAddress()),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-udpServer.Done():
		logger.Info("Registry stopped by client, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	stats := reg.Stats()
	logger.Info("Service stopped",
		slog.Int("reserved_ports", stats.ReservedPorts),
		slog.Uint64("datagrams_received", udpServer.GetStatistics().DatagramsReceived),
	)

	return nil
}

// initLogger creates the structured logger and a function closing its output
func initLogger(cfg config.LoggingConfig) (*slog.Logger, func()) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output io.Writer
	closeFn := func() {}
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		if cfg.Rotation.Enabled {
			rotator := &lumberjack.Logger{
				Filename:   cfg.Output,
				MaxSize:    cfg.Rotation.MaxSizeMB,
				MaxBackups: cfg.Rotation.MaxBackups,
				MaxAge:     cfg.Rotation.MaxAgeDays,
				Compress:   cfg.Rotation.Compress,
			}
			output = rotator
			closeFn = func() { rotator.Close() }
			break
		}

		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
			closeFn = func() { file.Close() }
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), closeFn
}
