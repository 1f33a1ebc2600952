package main

import (
	"github.com/spf13/cobra"

	"freightflow/internal/logging"
	"freightflow/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the internal HTTP server",
	Long: `Serves /healthz, the ranked /attention board, and Prometheus
/metrics. Endpoints other than /healthz require the INTERNAL_API_KEY
credential unless BYPASS_AUTH=true.

When a seed directory is configured, rule YAML files are watched and
hot-reloaded into the running process.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: FREIGHTFLOW_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.SeedDir != "" {
		if err := a.store.SeedRules(ctx, a.cfg.SeedDir); err != nil {
			return err
		}
		go func() {
			err := a.store.WatchSeeds(ctx, a.cfg.SeedDir, func() {
				a.provider.Invalidate()
				a.matcher.Reload()
			})
			if err != nil && ctx.Err() == nil {
				logging.L(logging.CategoryBoot).Warnw("seed watcher stopped", "error", err)
			}
		}()
	}

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.ListenAddr
	}
	srv := server.New(server.Options{
		APIKey:     a.cfg.InternalAPIKey,
		BypassAuth: a.cfg.BypassAuth,
		Addr:       addr,
	}, a.store, a.engine, a.registry)
	err = srv.ListenAndServe(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
