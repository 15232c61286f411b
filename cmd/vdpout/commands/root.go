package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/vdpout/internal/config"
	"github.com/bryanchriswhite/vdpout/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "vdpout",
		Short: "vdpout - hardware video output stage with format negotiation",
		Long: `vdpout runs the output stage of a hardware video pipeline against a
software device: a test-pattern source negotiates an output format with a
consumer and pushes rendered surfaces to it, either as device surfaces or
downloaded into host memory.

Features:
  • Caps negotiation between device surfaces and raw RGB
  • Native or GStreamer caps algebra
  • MJPEG browser stream or X11 window output
  • Live pad status over REST and websocket
  • Persistent configuration`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/vdpout/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", true, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.SetEnvPrefix("VDPOUT")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	logger.Init(viper.GetString("log_level"), viper.GetBool("pretty"))
}

// loadConfig opens the config manager and applies flag overrides in memory
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			cfg.ServerPort = port
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg.LogLevel = level
		}
	}
	logger.Init(cfg.LogLevel, viper.GetBool("pretty"))
	return configMgr, cfg, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
