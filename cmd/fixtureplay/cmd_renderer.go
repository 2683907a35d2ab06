package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/renderer"
	"github.com/ayusman/fixtureplay/internal/transport"
)

var (
	rendererUI       string
	rendererFixtures string
	rendererLazy     bool
)

// rendererCmd runs a headless renderer
var rendererCmd = &cobra.Command{
	Use:   "renderer",
	Short: "Run a headless renderer for a fixture manifest",
	Long: `Connects to a UI server and serves the fixtures of a YAML manifest. The
renderer answers selections with the fixture's initial state and logs what
it renders. It reconnects with backoff and comes back under a fresh id.

Example:
  fixtureplay renderer --fixtures fixtures.yaml --ui ws://localhost:5000/renderer`,
	RunE: runRenderer,
}

func init() {
	rendererCmd.Flags().StringVar(&rendererUI, "ui", "", "UI websocket URL (default: derived from server.addr)")
	rendererCmd.Flags().StringVarP(&rendererFixtures, "fixtures", "f", "", "Fixture manifest (YAML)")
	rendererCmd.Flags().BoolVar(&rendererLazy, "lazy", false, "Announce fixtures only after the first ping")
	_ = rendererCmd.MarkFlagRequired("fixtures")
}

func runRenderer(cmd *cobra.Command, args []string) error {
	fixtures, err := renderer.LoadFixtures(rendererFixtures)
	if err != nil {
		return err
	}

	url := rendererUI
	if url == "" {
		url = "ws://" + strings.TrimPrefix(cfg.Server.Addr, "http://") + "/renderer"
	}

	policy := renderer.Eager
	if rendererLazy {
		policy = renderer.Lazy
	}

	client := transport.NewClient(transport.ClientConfig{URL: url, Logger: logger})
	r := renderer.New(client, fixtures, renderer.Config{
		Policy: policy,
		Logger: logger,
		OnRender: func(rd renderer.Rendering) {
			switch {
			case rd.FixtureID == nil:
				logger.Info("rendering nothing")
			case rd.NotFound:
				logger.Warn("fixture not found", zap.String("fixture", rd.FixtureID.String()))
			default:
				logger.Info("rendering", zap.String("fixture", rd.FixtureID.String()), zap.Strings("state", rd.State.Fragments()))
			}
		},
	})
	logger.Info("renderer starting",
		zap.String("id", string(r.ID())),
		zap.String("ui", url),
		zap.Stringer("policy", policy),
		zap.Int("fixtures", len(fixtures)))

	ctx, cancel := signalContext()
	defer cancel()

	err = client.Run(ctx, r.Receive, func(first bool) {
		// The UI may have pruned the old id while we were away.
		start := r.Start
		if !first {
			start = r.Reload
		}
		if err := start(); err != nil {
			logger.Warn("announce fixtures", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	logger.Info("renderer stopped", zap.String("id", string(r.ID())))
	return nil
}
