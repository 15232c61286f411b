package commands

import (
	"fmt"

	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/outputpad"
	"github.com/bryanchriswhite/vdpout/internal/pipeline"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var negotiateCmd = &cobra.Command{
	Use:   "negotiate",
	Short: "Negotiate once and print the result",
	Long: `Build the configured pipeline, run a single negotiation from the source
caps (or --upstream) and print the chosen output contract.`,
	Example: `  # Negotiate with the configured source and sink
  vdpout negotiate

  # Try a specific upstream format against a surface-only consumer
  vdpout negotiate --sink-caps video/x-vdpau-output --device-alloc \
    --upstream "video/x-vdpau-video, chroma-type=(int)0, width=(int)720, height=(int)576, pixel-aspect-ratio=(fraction)16/15"`,
	RunE: runNegotiate,
}

var (
	negotiateUpstream    string
	negotiateSinkCaps    string
	negotiateDeviceAlloc bool
)

func init() {
	rootCmd.AddCommand(negotiateCmd)
	negotiateCmd.Flags().StringVar(&negotiateUpstream, "upstream", "", "upstream caps (default is the source caps)")
	negotiateCmd.Flags().StringVar(&negotiateSinkCaps, "sink-caps", "", "override the sink caps")
	negotiateCmd.Flags().BoolVar(&negotiateDeviceAlloc, "device-alloc", false, "let the sink allocate device surfaces")
}

func runNegotiate(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("sink-caps") {
		cfg.Sink.Caps = negotiateSinkCaps
	}
	if cmd.Flags().Changed("device-alloc") {
		cfg.Sink.DeviceAlloc = negotiateDeviceAlloc
	}
	cfg.Sink.Renderer = "none"

	var reason string
	p, err := pipeline.Build(cfg, outputpad.WithObserver(func(e outputpad.Event) {
		if e.Type == outputpad.EventNegotiationFailed {
			reason = e.Reason
		}
	}))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer p.Close()

	upstream := p.Source.Caps()
	if negotiateUpstream != "" {
		if upstream, err = caps.Parse(negotiateUpstream); err != nil {
			return fmt.Errorf("invalid upstream caps: %w", err)
		}
	}

	pterm.Printf("%s %s\n", pterm.LightCyan("Upstream:"), upstream)
	pterm.Printf("%s %s\n", pterm.LightCyan("Consumer:"), p.Sink.Caps())

	if !p.Pad.Negotiate(upstream) {
		pterm.Printf("%s %s\n", pterm.Red("✗ Negotiation failed:"), reason)
		return fmt.Errorf("negotiation failed: %s", reason)
	}

	neg, _ := p.Pad.Negotiated()
	pterm.Printf("%s\n\n", pterm.LightGreen("✓ Negotiated"))
	return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Field", "Value"},
		{"mode", neg.Output.String()},
		{"rgba-format", neg.Output.RGBAFormat().String()},
		{"size", fmt.Sprintf("%dx%d", neg.Width, neg.Height)},
		{"contract", neg.Contract.String()},
	}).Render()
}
