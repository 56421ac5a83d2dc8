package commands

import (
	"fmt"

	"github.com/eachlabs/modimui/internal/config"
	"github.com/eachlabs/modimui/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "modimui",
	Short: "modimui - control panel for MODIM robot servers",
	Long: `modimui mirrors a MODIM robot's interaction UI in the terminal.

It connects to the robot's websocket server, renders the text, image,
attention score and buttons the robot sends, and sends button clicks back.

  modimui connect        Open the control panel
  modimui serve          Run a mock MODIM server
  modimui parse <frame>  Decode display frames
  modimui config         Manage configuration`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.modimui/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute(ver string) error {
	version = ver
	return rootCmd.Execute()
}

var version string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("modimui %s\n", version)
	},
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigPath()
}

// newLogger builds the logger for a command. tui keeps logs off the terminal.
func newLogger(cfg *config.Config, tui bool) (*zap.Logger, error) {
	lc := cfg.Logging
	if verbose {
		lc.Level = "debug"
	}
	if tui {
		return logging.ForTUI(lc)
	}
	return logging.New(lc)
}
