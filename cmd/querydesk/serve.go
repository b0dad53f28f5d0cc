package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/querydesk"
	"pkt.systems/querydesk/httpapi"
	"pkt.systems/querydesk/internal/appconfig"
	"pkt.systems/querydesk/internal/version"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			components, err := querydesk.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := components.Close(); err != nil {
					logger.Warn("component close failed", "err", err)
				}
			}()
			logger.Info("components ready",
				"embedding", cfg.Embedding.Provider,
				"vector", cfg.Vector.Backend,
				"policy", cfg.Policy.Engine,
				"issues", components.Tracker != nil,
			)

			server, err := querydesk.New(querydesk.ServerConfig{HTTP: toHTTPConfig(cfg)}, components.ServerDeps())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			logger.Info("http server listening", "addr", server.Addr())
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "override http.addr")
	return cmd
}

func toHTTPConfig(cfg appconfig.Config) httpapi.Config {
	return httpapi.Config{
		Addr:            cfg.HTTP.Addr,
		SessionCookie:   cfg.HTTP.SessionCookie,
		SessionTTLHours: cfg.HTTP.SessionTTLHours,
		SessionsPath:    filepath.Join(cfg.StateDir, "sessions.json"),
		BasePath:        cfg.HTTP.BasePath,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		Tenant:          cfg.Policy.Tenant,
		Version:         version.Current(),
	}
}
