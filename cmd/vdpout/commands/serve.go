package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/vdpout/internal/api"
	"github.com/bryanchriswhite/vdpout/internal/logger"
	"github.com/bryanchriswhite/vdpout/internal/outputpad"
	"github.com/bryanchriswhite/vdpout/internal/pipeline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline and the HTTP server",
	Long: `Start the test-pattern source, the output pad and the configured sink,
together with the HTTP API.

The server exposes the pad status, its caps and a websocket stream of
negotiation events. With the mjpeg renderer the output can be watched in a
browser at the server root.`,
	Example: `  # Start on the default port (8080)
  vdpout serve

  # Start on a custom port
  vdpout serve --port 9090

  # Stop after 300 frames
  vdpout serve --frames 300

  # Start with debug logging
  vdpout serve --log-level debug`,
	RunE: runServe,
}

var serveFrames uint64

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Uint64Var(&serveFrames, "frames", 0, "stop the source after this many frames (0 runs until interrupted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("frames") {
		cfg.Source.Frames = serveFrames
	}
	log := logger.WithComponent("serve")

	hub := api.NewHub()
	p, err := pipeline.Build(cfg, outputpad.WithObserver(hub.Publish))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer p.Close()

	server := api.NewServer(p.Pad, p.Sink, p.MJPEG, configMgr, hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, cfg.ServerPort)
	})
	g.Go(func() error {
		if err := p.Run(gctx); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		log.Info().Msg("Source finished, server keeps running until interrupted")
		return nil
	})

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("caps_backend", string(cfg.CapsBackend)).
		Str("renderer", cfg.Sink.Renderer).
		Int("port", cfg.ServerPort).
		Msg("vdpout is running, press Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shut down gracefully")
	return nil
}
