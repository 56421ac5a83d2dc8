package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eachlabs/modimui/internal/config"
	"github.com/eachlabs/modimui/internal/server"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize modimui state directory",
	Long: `Initialize the modimui state directory with default files.

Creates:
  ~/.modimui/config.toml          Configuration file
  ~/.modimui/logs/                Panel logs
  ~/.modimui/scripts/lesson.modim Sample mock server script`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := config.EnsureDirs(); err != nil {
		return err
	}

	cfg, err := config.ReadFile(configPath())
	if err != nil {
		return err
	}

	script := filepath.Join(config.ScriptsDir(), "lesson.modim")
	if _, err := os.Stat(script); os.IsNotExist(err) {
		if err := os.WriteFile(script, []byte(server.SampleScript), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", script, err)
		}
		fmt.Printf("Created %s\n", script)
	} else {
		fmt.Printf("Exists: %s\n", script)
	}

	if err := cfg.SaveFile(configPath()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Config: %s\n", configPath())

	fmt.Println("\nmodimui initialized!")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Start a mock server:")
	fmt.Printf("     modimui serve --script %s\n", script)
	fmt.Println("  2. Open the panel in another terminal:")
	fmt.Println("     modimui connect")

	return nil
}
