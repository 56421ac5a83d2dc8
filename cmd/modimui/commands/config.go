package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/eachlabs/modimui/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage modimui configuration.

Subcommands:
  get [key]              Show configuration value(s)
  set <key> <value>      Set a configuration value
  path                   Show config file path`,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show configuration",
	Long: `Show configuration values.

Examples:
  modimui config get                 # Show all config
  modimui config get server.host
  modimui config get ui.elements`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			return toml.NewEncoder(os.Stdout).Encode(cfg)
		}

		key := args[0]
		value := getConfigValue(cfg, key)
		if value == nil {
			return fmt.Errorf("key not found: %s", key)
		}

		if jsonOut {
			return json.NewEncoder(os.Stdout).Encode(value)
		}
		fmt.Printf("%v\n", value)
		return nil
	},
}

func getConfigValue(cfg *config.Config, key string) interface{} {
	parts := strings.Split(key, ".")

	switch parts[0] {
	case "server":
		if len(parts) == 1 {
			return cfg.Server
		}
		switch parts[1] {
		case "host":
			return cfg.Server.Host
		case "port":
			return cfg.Server.Port
		case "path":
			return cfg.Server.Path
		}

	case "ui":
		if len(parts) == 1 {
			return cfg.UI
		}
		switch parts[1] {
		case "elements":
			return cfg.UI.Elements
		case "attention_threshold":
			return cfg.UI.AttentionThreshold
		case "simple":
			return cfg.UI.Simple
		}

	case "serve":
		if len(parts) == 1 {
			return cfg.Serve
		}
		switch parts[1] {
		case "listen":
			return cfg.Serve.Listen
		case "script":
			return cfg.Serve.Script
		}

	case "logging":
		if len(parts) == 1 {
			return cfg.Logging
		}
		switch parts[1] {
		case "level":
			return cfg.Logging.Level
		case "file":
			return cfg.Logging.File
		}
	}

	return nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Examples:
  modimui config set server.host 10.0.0.5
  modimui config set server.port 9100
  modimui config set ui.elements text_default,text_title`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := setConfigFile(configPath(), key, value); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

// setConfigFile edits the file alone so that environment overrides and
// expanded paths are not written back.
func setConfigFile(path, key, value string) error {
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveFile(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func setConfigValue(cfg *config.Config, key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return fmt.Errorf("invalid key: %s (use <section>.<field>)", key)
	}

	switch parts[0] {
	case "server":
		switch parts[1] {
		case "host":
			cfg.Server.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", value, err)
			}
			cfg.Server.Port = port
		case "path":
			cfg.Server.Path = value
		default:
			return fmt.Errorf("unknown field: %s", parts[1])
		}

	case "ui":
		switch parts[1] {
		case "elements":
			var elements []string
			for _, e := range strings.Split(value, ",") {
				if e = strings.TrimSpace(e); e != "" {
					elements = append(elements, e)
				}
			}
			cfg.UI.Elements = elements
		case "attention_threshold":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid threshold %q: %w", value, err)
			}
			cfg.UI.AttentionThreshold = n
		case "simple":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid bool %q: %w", value, err)
			}
			cfg.UI.Simple = b
		default:
			return fmt.Errorf("unknown field: %s", parts[1])
		}

	case "serve":
		switch parts[1] {
		case "listen":
			cfg.Serve.Listen = value
		case "script":
			cfg.Serve.Script = value
		default:
			return fmt.Errorf("unknown field: %s", parts[1])
		}

	case "logging":
		switch parts[1] {
		case "level":
			cfg.Logging.Level = value
		case "file":
			cfg.Logging.File = value
		default:
			return fmt.Errorf("unknown field: %s", parts[1])
		}

	default:
		return fmt.Errorf("unknown section: %s", parts[0])
	}
	return nil
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(configPath())
	},
}
