// Package config handles configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config represents the modimui configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	UI      UIConfig      `toml:"ui"`
	Serve   ServeConfig   `toml:"serve"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig is the MODIM server the panel connects to.
type ServerConfig struct {
	Host string `toml:"host" env:"HOST"`
	Port int    `toml:"port" env:"PORT"`
	Path string `toml:"path" env:"PATH"`
}

// UIConfig holds panel settings.
type UIConfig struct {
	// Elements are the text element ids that exist on the panel.
	Elements           []string `toml:"elements" env:"ELEMENTS" envSeparator:","`
	AttentionThreshold int      `toml:"attention_threshold" env:"ATTENTION_THRESHOLD"`
	Simple             bool     `toml:"simple" env:"SIMPLE"`
}

// ServeConfig holds mock server settings.
type ServeConfig struct {
	Listen string `toml:"listen" env:"LISTEN"`
	Script string `toml:"script" env:"SCRIPT"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `toml:"level" env:"LOG_LEVEL"`
	File  string `toml:"file" env:"LOG_FILE"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile reads configuration from path, if it exists, then applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile reads only the file at path over the defaults. Environment
// overrides and path expansion are not applied, so the result can be edited
// and saved back without baking them into the file.
func ReadFile(path string) (*Config, error) {
	return readFile(path)
}

func readFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if p := os.Getenv("MODIMUI_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(StateDir(), "config.toml")
}

// StateDir returns the modimui state directory.
func StateDir() string {
	if p := os.Getenv("MODIMUI_STATE_DIR"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".modimui")
}

// LogsDir returns the logs directory.
func LogsDir() string {
	return filepath.Join(StateDir(), "logs")
}

// ScriptsDir returns the directory for mock server scripts.
func ScriptsDir() string {
	return filepath.Join(StateDir(), "scripts")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 9100,
			Path: "/modimwebsocketserver",
		},
		UI: UIConfig{
			Elements:           []string{"text_default"},
			AttentionThreshold: 60,
		},
		Serve: ServeConfig{
			Listen: "127.0.0.1:9100",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func (c *Config) applyEnv() error {
	return env.ParseWithOptions(c, env.Options{Prefix: "MODIMUI_"})
}

func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()

	expand := func(p string) string {
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		if strings.HasPrefix(p, "$HOME/") {
			return filepath.Join(home, p[6:])
		}
		return p
	}

	c.Logging.File = expand(c.Logging.File)
	c.Serve.Script = expand(c.Serve.Script)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is empty"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Path != "" && !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path %q must start with /", c.Server.Path))
	}
	if c.UI.AttentionThreshold < 0 || c.UI.AttentionThreshold > 100 {
		errs = append(errs, fmt.Errorf("ui.attention_threshold %d out of range 0-100", c.UI.AttentionThreshold))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	return c.SaveFile(ConfigPath())
}

// SaveFile writes the config to path.
func (c *Config) SaveFile(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// EnsureDirs creates necessary directories.
func EnsureDirs() error {
	dirs := []string{
		StateDir(),
		LogsDir(),
		ScriptsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return nil
}
