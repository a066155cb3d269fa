package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shellgate/internal/executor"
	"shellgate/internal/gateway"
	"shellgate/internal/logging"
	"shellgate/internal/policy"
	"shellgate/internal/ratelimit"
	"shellgate/internal/server"
	"shellgate/internal/session"
	"shellgate/pkg/config"
	"shellgate/pkg/env"
	"shellgate/pkg/version"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "shellgate",
		Short: "Policy-gated remote command execution gateway",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.shellgate/config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := logging.New(cfg.Log.Level, cfg.Log.Format)

			filter := policy.NewFilter(cfg.Exec.AllowedCommands)
			limiter := ratelimit.NewLimiter(cfg.Rate.PerMinute)
			sessions := session.NewStore(
				time.Duration(cfg.Session.TimeoutSeconds)*time.Second,
				cfg.Session.HistoryLimit,
			)
			engine := &executor.Engine{
				Timeout:   time.Duration(cfg.Exec.TimeoutSeconds) * time.Second,
				MaxOutput: cfg.Exec.MaxOutputBytes,
				WorkDir:   cfg.Exec.WorkDir,
			}

			gw := gateway.New(limiter, sessions, filter, engine, gateway.Snapshot{
				TimeoutSeconds: cfg.Exec.TimeoutSeconds,
				MaxOutputBytes: cfg.Exec.MaxOutputBytes,
			})
			gw.SetLogger(logger)

			srv, err := server.New(gw, cfg.Server.AuthToken)
			if err != nil {
				return err
			}
			srv.SetLogger(logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go limiter.SweepLoop(ctx, ratelimit.Window)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Run(ctx, addrOrDefault(addr, cfg))
			}()

			mode := "RESTRICTED"
			if filter.Unrestricted() {
				mode = "UNRESTRICTED"
			}
			logger.Info("shellgate_started", "mode", mode, "addr", addrOrDefault(addr, cfg))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sigCh:
				logger.Info("shutdown_signal_received")
				cancel()
				return <-errCh
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config host/port)")
	return cmd
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate the configuration and print effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("listen address:   %s\n", cfg.ListenAddr())
			if cfg.Unrestricted() {
				fmt.Println("allowed commands: * (unrestricted)")
			} else {
				fmt.Printf("allowed commands: %s\n", strings.Join(cfg.Exec.AllowedCommands, ", "))
			}
			fmt.Printf("command timeout:  %ds\n", cfg.Exec.TimeoutSeconds)
			fmt.Printf("max output size:  %d bytes\n", cfg.Exec.MaxOutputBytes)
			fmt.Printf("rate limit:       %d/min\n", cfg.Rate.PerMinute)
			fmt.Printf("session timeout:  %ds\n", cfg.Session.TimeoutSeconds)
			fmt.Printf("history limit:    %d\n", cfg.Session.HistoryLimit)
			fmt.Printf("workdir:          %s\n", cfg.Exec.WorkDir)
			fmt.Printf("auth token:       %s\n", presence(cfg.Server.AuthToken))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}

func loadConfig() (*config.Config, error) {
	// .env next to the config file feeds the SHELLGATE_* overrides.
	if err := env.LoadFromDir(filepath.Dir(config.DefaultConfigPath())); err != nil {
		return nil, err
	}
	path := cfgFile
	if path == "" {
		if candidate := config.DefaultConfigPath(); fileExists(candidate) {
			path = candidate
		}
	}
	return config.LoadConfig(path)
}

func addrOrDefault(addr string, cfg *config.Config) string {
	if addr != "" {
		return addr
	}
	return cfg.ListenAddr()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func presence(s string) string {
	if s == "" {
		return "disabled"
	}
	return "enabled"
}
