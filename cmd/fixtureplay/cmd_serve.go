package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/app"
)

var (
	serveAddr      string
	serveStaticDir string
)

// serveCmd runs the UI server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the UI server",
	Long: `Serves the HTTP API, the renderer websocket at /renderer, /metrics and
the /live and /ready health checks until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveStaticDir, "static-dir", "", "UI assets directory (overrides server.static_dir)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveStaticDir != "" {
		cfg.Server.StaticDir = serveStaticDir
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = findWebDir()
	}
	if cfg.Server.StaticDir != "" {
		logger.Info("serving static files", zap.String("dir", cfg.Server.StaticDir))
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("shut down")
	return nil
}
