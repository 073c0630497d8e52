package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavesync/syncd/internal/clock"
	"github.com/wavesync/syncd/internal/config"
	"github.com/wavesync/syncd/internal/filecleanup"
	"github.com/wavesync/syncd/internal/httpapi"
	"github.com/wavesync/syncd/internal/registry"
	"github.com/wavesync/syncd/internal/router"
	"github.com/wavesync/syncd/internal/samplelib"
	"github.com/wavesync/syncd/internal/session"
	"github.com/wavesync/syncd/internal/store"
	"github.com/wavesync/syncd/internal/syncsvc"
	"github.com/wavesync/syncd/internal/telemetry"
	"github.com/wavesync/syncd/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	version   = "dev"
	cfgPath   string
	logLevel  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "syncd",
		Short:         "Synchronized audio playback session server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level (debug|info|warn|error)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newConfigInitCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config-init",
		Short: "Write a default config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = "syncd.yaml"
			}
			if err := config.WriteDefault(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default syncd.yaml)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var useTLS bool
	var tlsHostname string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			configureLogging(cfg.LogLevel)

			var tlsConfig *tls.Config
			if useTLS {
				generated, fingerprint, err := generateTLSConfig(90*24*time.Hour, tlsHostname)
				if err != nil {
					return fmt.Errorf("generate tls config: %w", err)
				}
				slog.Info("tls enabled with self-signed certificate", "fingerprint_sha256", fingerprint)
				tlsConfig = generated
			}
			return runServe(cmd.Context(), cfg, tlsConfig)
		},
	}
	cmd.Flags().BoolVar(&useTLS, "tls", false, "serve over HTTPS with a self-signed certificate")
	cmd.Flags().StringVar(&tlsHostname, "tls-hostname", "", "common name / SAN for the self-signed certificate (default localhost)")
	return cmd
}

func configureLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func runServe(ctx context.Context, cfg config.Config, tlsConfig *tls.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var auditSink registry.AuditSink
	if cfg.AuditDBPath != "" {
		st, err := store.Open(cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer st.Close()
		auditSink = st
	}

	reg := registry.New(auditSink,
		registry.WithSessionTTL(cfg.SessionTTL),
		registry.WithControllerRequestTTL(cfg.ControllerRequestTTL),
	)

	metricsReg := prometheus.DefaultRegisterer
	metrics := telemetry.New(metricsReg)

	clk := clock.NewSystem()
	var lib session.SampleLibrary
	if cfg.SampleLibraryDir != "" {
		lib = samplelib.New(cfg.SampleLibraryDir, session.SamplePrefix)
	}
	var cleanup session.FileCleanup
	if cfg.UploadBaseDir != "" {
		cleanup = filecleanup.New(cfg.UploadBaseDir, session.UploadPrefix)
	}

	rtr := router.New(reg, lib, cleanup, clk, metrics, router.WithChatLimit(cfg.ChatLimit, cfg.ChatWindow))
	wsHandler := ws.New(rtr, metrics)
	httpSrv := httpapi.New(reg, wsHandler)

	broadcaster := syncsvc.New(reg, clk, cfg.BaseTickInterval, cfg.HighDriftTickInterval, cfg.DriftThreshold, cfg.DriftWindow, metrics.BroadcastsSent)

	go broadcaster.Run(ctx)
	go runReaper(ctx, reg, cleanup, metrics)
	go runSweeper(ctx, reg)
	go telemetry.RunSummaryLog(ctx, 30*time.Second, reg.Count, metrics.ConnectionCount)

	slog.Info("syncd serving", "addr", cfg.ListenAddr, "version", version, "tls", tlsConfig != nil)
	return httpSrv.Run(ctx, cfg.ListenAddr, tlsConfig)
}

// runReaper expires sessions whose TTL has lapsed, per spec.md §4.1. Once a
// second comfortably bounds worst-case staleness to a second past the TTL.
// Also keeps the sessions_active gauge current, since this loop already
// touches the registry at a steady cadence.
func runReaper(ctx context.Context, reg *registry.Registry, cleanup session.FileCleanup, metrics *telemetry.Metrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Reap(time.Now(), cleanup)
			if metrics != nil {
				metrics.SessionsActive.Set(float64(reg.Count()))
			}
		}
	}
}

// runSweeper expires pending controller requests and stale drift samples
// across every live session, per spec.md §4.5/§4.6.
func runSweeper(ctx context.Context, reg *registry.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			reg.SweepControllerRequests(now)
			reg.SweepDrift(now)
		}
	}
}
