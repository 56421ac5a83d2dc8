package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/eachlabs/modimui/internal/config"
	"github.com/eachlabs/modimui/internal/protocol"
	"github.com/eachlabs/modimui/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveListen string
	serveScript string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a mock MODIM server",
	Long: `Run a websocket server that speaks the MODIM display protocol.

Without --script, every line typed is broadcast to the connected panels
as a frame and button clicks are printed as they arrive. With --script,
the script is played once a panel connects.

Examples:
  modimui serve
  modimui serve --listen :9100
  modimui serve --script ~/.modimui/scripts/lesson.modim`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on")
	serveCmd.Flags().StringVar(&serveScript, "script", "", "script to play")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Serve.Listen = serveListen
	}
	if cmd.Flags().Changed("script") {
		cfg.Serve.Script = serveScript
	}

	var steps []server.Step
	if cfg.Serve.Script != "" {
		steps, err = server.LoadScript(cfg.Serve.Script)
		if err != nil {
			return err
		}
	}

	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv := server.New(server.Config{Listen: cfg.Serve.Listen, Path: cfg.Server.Path}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	var runErr error
	if steps != nil {
		runErr = playScript(ctx, srv, steps)
	} else {
		runErr = broadcastStdin(ctx, srv)
	}

	cancel()
	if err := <-errCh; err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func playScript(ctx context.Context, srv *server.Server, steps []server.Step) error {
	fmt.Println("Waiting for a panel to connect...")
	if err := srv.WaitForClient(ctx); err != nil {
		return err
	}

	err := srv.Play(ctx, steps, func(step server.Step, click server.Click, err error) {
		if err != nil {
			fmt.Printf("line %d: %v\n", step.Line, err)
			return
		}
		fmt.Printf("line %d: clicked %s\n", step.Line, click.ID)
	})
	if err != nil {
		return err
	}
	fmt.Println("Script finished.")
	return nil
}

func broadcastStdin(ctx context.Context, srv *server.Server) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "frame> ",
		HistoryFile:     filepath.Join(config.StateDir(), "serve_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start readline: %w", err)
	}
	defer rl.Close()

	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-srv.Clicks():
				fmt.Fprintf(rl.Stdout(), "← %s clicked %s\n", shortID(c.ClientID), c.ID)
			}
		}
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if _, err := protocol.Parse(line); err != nil {
			fmt.Fprintf(rl.Stdout(), "not sent: %v\n", err)
			continue
		}
		n := srv.Broadcast(line)
		fmt.Fprintf(rl.Stdout(), "→ sent to %d panel(s)\n", n)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
