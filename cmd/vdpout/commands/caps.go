package commands

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/pipeline"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Show the formats the output pad can produce",
	Long: `Print the static template caps, or with --device the caps the configured
software device actually supports. --upstream shows the output candidates
derived from an upstream video format instead.`,
	Example: `  # Everything the pad can ever produce
  vdpout caps

  # What the configured device allows
  vdpout caps --device

  # Output candidates for an upstream format
  vdpout caps --upstream "video/x-vdpau-video, chroma-type=(int)0, width=(int)1280, height=(int)720"`,
	RunE: runCaps,
}

var (
	capsDevice   bool
	capsUpstream string
)

func init() {
	rootCmd.AddCommand(capsCmd)
	capsCmd.Flags().BoolVarP(&capsDevice, "device", "d", false, "show device-filtered caps")
	capsCmd.Flags().StringVar(&capsUpstream, "upstream", "", "show output candidates for these upstream caps")
}

func runCaps(cmd *cobra.Command, args []string) error {
	var c *caps.Caps
	switch {
	case capsUpstream != "":
		upstream, err := caps.Parse(capsUpstream)
		if err != nil {
			return fmt.Errorf("invalid upstream caps: %w", err)
		}
		c = vdp.VideoToOutputCaps(upstream)

	case capsDevice:
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Sink.Renderer = "none"
		p, err := pipeline.Build(cfg)
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		defer p.Close()
		c = p.Pad.Caps()

	default:
		c = vdp.TemplateCaps()
	}

	printCaps(c)
	return nil
}

func printCaps(c *caps.Caps) {
	if c.IsAny() || c.IsEmpty() {
		pterm.Println(c.String())
		return
	}
	for i := 0; i < c.Size(); i++ {
		st := c.Structure(i)
		parts := strings.SplitN(st.String(), ", ", 2)
		fields := ""
		if len(parts) == 2 {
			fields = parts[1]
		}
		pterm.Printf("%s %s\n  %s\n", pterm.Gray(fmt.Sprintf("%2d", i)), pterm.Yellow(st.Name()), fields)
	}
}
