package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eachlabs/modimui/internal/channel"
	"github.com/eachlabs/modimui/internal/console"
	"github.com/eachlabs/modimui/internal/dispatch"
	"github.com/eachlabs/modimui/internal/panel"
	"github.com/eachlabs/modimui/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	connectHost   string
	connectPort   int
	connectSimple bool
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open the control panel",
	Long: `Connect to a MODIM server and show its interaction UI.

The panel shows the connection status, the text elements, the current
image, the attention score and the buttons the robot created. Selecting a
button sends its id back to the robot.

Examples:
  modimui connect                         # Server from config
  modimui connect --host 10.0.0.5 --port 9100
  modimui connect --simple                # Line mode, no alt screen`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectHost, "host", "", "MODIM server host")
	connectCmd.Flags().IntVarP(&connectPort, "port", "p", 0, "MODIM server port")
	connectCmd.Flags().BoolVar(&connectSimple, "simple", false, "line mode instead of the full-screen panel")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = connectHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = connectPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	simple := cfg.UI.Simple || connectSimple

	logger, err := newLogger(cfg, !simple)
	if err != nil {
		return err
	}
	defer logger.Sync()

	p := panel.New(cfg.UI.Elements...)
	d := dispatch.New(p,
		dispatch.WithAttentionHook(p.SetAttention),
		dispatch.WithLogger(logger),
		dispatch.WithPath(cfg.Server.Path),
	)
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Initialize(ctx, cfg.Server.Host, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	url := channel.URL(cfg.Server.Host, cfg.Server.Port, cfg.Server.Path)
	logger.Info("panel started", zap.String("url", url), zap.Bool("simple", simple))

	if simple {
		return console.New(p, d, os.Stdout, logger).Run(ctx, url)
	}
	return tui.Run(p, d, tui.Options{
		URL:                url,
		AttentionThreshold: cfg.UI.AttentionThreshold,
	})
}
