package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oktsec/signdata/internal/config"
	"github.com/oktsec/signdata/internal/server"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the signdata verification server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg.Server.LogLevel)

			shutdownTracing, err := server.SetupTracing(cfg.Telemetry.Tracing, os.Stdout)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					logger.Warn("tracing shutdown failed", "error", err)
				}
			}()

			// Graceful shutdown on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.NewServer(ctx, cfg, cfgFile, logger)
			if err != nil {
				return err
			}

			printBanner(cmd.OutOrStdout(), cfg)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	return cmd
}

func printBanner(w io.Writer, cfg *config.Config) {
	bindAddr := cfg.Server.Bind
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	base := fmt.Sprintf("http://%s:%d", bindAddr, cfg.Server.Port)

	domains := "any"
	if n := len(cfg.Verify.AllowedDomains); n > 0 {
		domains = fmt.Sprint(n)
	}

	line := func(format string, a ...any) {
		fmt.Fprintf(w, format+"\n", a...) //nolint:errcheck // CLI output
	}

	line("")
	line("  signdata verifier")
	line("  ────────────────────────────────────────")
	line("  Verify:   %s/v1/verify", base)
	line("  DNS:      %s/v1/dns/encode", base)
	if cfg.Signer.Enabled {
		line("  Sign:     %s/v1/sign  (development)", base)
	}
	line("  Audit:    %s/v1/audit", base)
	line("  Metrics:  %s/metrics", base)
	line("  Health:   %s/health", base)
	line("  ────────────────────────────────────────")
	line("  Replay: %s  |  Max age: %ds  |  Domains: %s", cfg.Verify.Replay.Backend, cfg.Verify.MaxAgeSeconds, domains)
	line("  Press Ctrl+C to stop.")
	line("")
}
