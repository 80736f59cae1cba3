package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beau-wood/Network-Ops-MCP/internal/collectors"
	cfgpkg "github.com/beau-wood/Network-Ops-MCP/internal/config"
	"github.com/beau-wood/Network-Ops-MCP/internal/httpserver"
	"github.com/beau-wood/Network-Ops-MCP/internal/mcpserver"
	netmetrics "github.com/beau-wood/Network-Ops-MCP/internal/metrics"
	"github.com/beau-wood/Network-Ops-MCP/internal/netinfo"
	"github.com/beau-wood/Network-Ops-MCP/internal/scanner"
	"github.com/beau-wood/Network-Ops-MCP/internal/sloglogger"
	trackerpkg "github.com/beau-wood/Network-Ops-MCP/internal/tracker"
)

const (
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultMetricsPath       = "/metrics"
	defaultListenPort        = "9919"
	defaultAddress           = "localhost"
	defaultConfigPath        = "config.yaml"
	defaultWatchConfig       = false
	defaultMCPStdio          = true
	defaultEnableGoCollector = false
	defaultEnableBuildInfo   = true
)

var settings collectors.Settings

var rootCmd = &cobra.Command{
	Use:   "network-ops-mcp",
	Short: "MCP tool server for TCP port scanning and local network configuration",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateSettings()
	},
	RunE: func(cmd *cobra.Command, args []string) error { return run() },
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	// ENV defaults
	viper.AutomaticEnv()
	viper.SetDefault("LOG_LEVEL", defaultLogLevel)
	viper.SetDefault("LOG_FORMAT", defaultLogFormat)
	viper.SetDefault("METRICS_PATH", defaultMetricsPath)
	viper.SetDefault("LISTEN_PORT", defaultListenPort)
	viper.SetDefault("ADDRESS", defaultAddress)
	viper.SetDefault("CONFIG_PATH", defaultConfigPath)
	viper.SetDefault("CONFIG_WATCH", defaultWatchConfig)
	viper.SetDefault("MCP_STDIO", defaultMCPStdio)
	viper.SetDefault("ENABLE_GO_COLLECTOR", defaultEnableGoCollector)
	viper.SetDefault("ENABLE_BUILD_INFO", defaultEnableBuildInfo)

	// Flags
	rootCmd.Flags().StringVar(&settings.LogLevel, "log.level", defaultLogLevel, "Log level (debug|info|warn|error)")
	_ = viper.BindPFlag("LOG_LEVEL", rootCmd.Flags().Lookup("log.level"))

	rootCmd.Flags().StringVar(&settings.LogFormat, "log.format", defaultLogFormat, "Log format (text|json)")
	_ = viper.BindPFlag("LOG_FORMAT", rootCmd.Flags().Lookup("log.format"))

	rootCmd.Flags().StringVar(&settings.MetricsPath, "metrics.path", defaultMetricsPath, "Path to expose metrics")
	_ = viper.BindPFlag("METRICS_PATH", rootCmd.Flags().Lookup("metrics.path"))

	rootCmd.Flags().StringVar(&settings.ListenPort, "listen.port", defaultListenPort, "Port for the HTTP API and metrics")
	_ = viper.BindPFlag("LISTEN_PORT", rootCmd.Flags().Lookup("listen.port"))

	rootCmd.Flags().StringVar(
		&settings.Address,
		"address",
		defaultAddress,
		"Address to bind the HTTP API on",
	)
	_ = viper.BindPFlag("ADDRESS", rootCmd.Flags().Lookup("address"))

	rootCmd.Flags().StringVar(&settings.ConfigPath, "config.path", defaultConfigPath, "Path to YAML config file")
	_ = viper.BindPFlag("CONFIG_PATH", rootCmd.Flags().Lookup("config.path"))

	rootCmd.Flags().BoolVar(
		&settings.WatchConfig,
		"config.watch",
		defaultWatchConfig,
		"Reload the config file automatically when it changes",
	)
	_ = viper.BindPFlag("CONFIG_WATCH", rootCmd.Flags().Lookup("config.watch"))

	rootCmd.Flags().BoolVar(
		&settings.MCPStdio,
		"mcp.stdio",
		defaultMCPStdio,
		"Serve MCP tools on stdin/stdout",
	)
	_ = viper.BindPFlag("MCP_STDIO", rootCmd.Flags().Lookup("mcp.stdio"))

	rootCmd.Flags().BoolVar(
		&settings.EnableGoCollector,
		"collector.go",
		defaultEnableGoCollector,
		"Enable Go runtime metrics collector",
	)
	_ = viper.BindPFlag("ENABLE_GO_COLLECTOR", rootCmd.Flags().Lookup("collector.go"))

	rootCmd.Flags().BoolVar(
		&settings.EnableBuildInfo,
		"collector.build_info",
		defaultEnableBuildInfo,
		"Enable build_info collector",
	)
	_ = viper.BindPFlag("ENABLE_BUILD_INFO", rootCmd.Flags().Lookup("collector.build_info"))

	// Snapshot the effective values from viper
	settings.LogLevel = viper.GetString("LOG_LEVEL")
	settings.LogFormat = viper.GetString("LOG_FORMAT")
	settings.MetricsPath = viper.GetString("METRICS_PATH")
	settings.ListenPort = viper.GetString("LISTEN_PORT")
	settings.Address = viper.GetString("ADDRESS")
	settings.ConfigPath = viper.GetString("CONFIG_PATH")
	settings.WatchConfig = viper.GetBool("CONFIG_WATCH")
	settings.MCPStdio = viper.GetBool("MCP_STDIO")
	settings.EnableGoCollector = viper.GetBool("ENABLE_GO_COLLECTOR")
	settings.EnableBuildInfo = viper.GetBool("ENABLE_BUILD_INFO")
}

func validateSettings() error {
	if settings.LogLevel == "" {
		return fmt.Errorf("missing LOG_LEVEL")
	}
	return nil
}

func run() error {
	// Logger. Writes to stderr so stdout stays clean for MCP frames.
	logger, _ := sloglogger.NewLogger(settings.LogLevel, settings.LogFormat)
	logger.Info("starting network-ops-mcp", "version", version.Info())

	// Config. A missing file at the default path is fine; an explicitly
	// requested path must exist.
	cfg, err := cfgpkg.LoadConfig(settings.ConfigPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && settings.ConfigPath == defaultConfigPath {
			logger.Info("no config file found, using defaults", "path", settings.ConfigPath)
			cfg = cfgpkg.Default()
		} else {
			return fmt.Errorf("load config: %w", err)
		}
	}
	mgr := cfgpkg.NewManager(cfg, settings.ConfigPath)
	mc := netmetrics.NewMetricsCollector()
	exporter := collectors.NewExporter(mc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup sweeper with TTL calculation
	mc.StartSweeper(ctx, mgr.GetTTL())

	// Configure callback for configuration reloads
	mgr.SetOnReload(func(old, newCfg *cfgpkg.Config) {
		oldTTL := cfgpkg.TTLForConfig(old)
		newTTL := cfgpkg.TTLForConfig(newCfg)

		if newTTL != oldTTL {
			mc.SetSweeperTTL(newTTL)
			logger.Info("sweeper TTL updated", "old_ttl", oldTTL.String(), "new_ttl", newTTL.String())
		}

		logger.Info("configuration reloaded",
			"baseline_entries", len(newCfg.Baseline),
			"ttl", newTTL.String())
	})

	tracker := trackerpkg.New()

	// Periodic GC of finished scan records
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c := mgr.Get()
				tracker.GC(c.Scan.HistoryMax, c.Scan.HistoryMaxAgeDuration())
			}
		}
	}()

	sc := scanner.New(logger, mc, tracker, mgr)
	ni := netinfo.NewService(logger, mc)

	srv := httpserver.NewServer(exporter, &settings, mgr, tracker, sc, ni, mc)

	if settings.WatchConfig {
		if err := cfgpkg.WatchFile(ctx, mgr, logger); err != nil {
			logger.Warn("config watch unavailable", "error", err)
		}
	}

	// MCP stdio transport. EOF on stdin means the client hung up, which
	// shuts the whole process down.
	if settings.MCPStdio {
		mcps := mcpserver.New(logger, mc, sc, ni, version.Version)
		go func() {
			err := mcps.ServeStdio(ctx)
			switch {
			case err == nil || errors.Is(err, context.Canceled):
				logger.Info("mcp stdio closed, shutting down")
			default:
				logger.Error("mcp stdio server exited", "error", err)
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
			cancel()
		}()
	}

	// Signals: graceful stop + SIGHUP reload
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				logger.Info("SIGHUP received, reloading configuration")
				if err := mgr.Reload(); err != nil {
					logger.Error("SIGHUP reload failed", "error", err)
					continue
				}
				// The reload callback will handle TTL updates and logging
			default:
				logger.Info("shutdown signal received", "signal", sig.String())
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer shutdownCancel()
				_ = srv.Shutdown(shutdownCtx)
				cancel()
				return
			}
		}
	}()

	logger.Info("listening", "addr", srv.Addr, "metrics", settings.MetricsPath, "mcp_stdio", settings.MCPStdio)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("server gracefully stopped")
	return nil
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("cmd execute: %w", err)
	}
	return nil
}
