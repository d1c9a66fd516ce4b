package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"strudelwatch/internal/logging"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const APP_NAME = "strudel-watch" // application name used for config directory and file

// Config holds the runtime settings shared by strudel-watch and strudelctl.
type Config struct {
	// NodePath is the executable used to launch the remote peer process.
	NodePath string `mapstructure:"node_path"`
	// ServerPath is the peer's entry module, passed as the first argument.
	ServerPath string `mapstructure:"server_path"`
	// CallTimeout bounds every remote tool call. Zero means unbounded.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// ShutdownTimeout bounds the wait for an in-flight call on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// SettleDelay is applied after the initial scan before the first load.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// Debounce is the window in which further events fold into one forward.
	Debounce time.Duration `mapstructure:"debounce"`
	// ClientName identifies this process to the peer during the MCP handshake.
	ClientName string `mapstructure:"client_name"`

	// ConfigFile is the config file that was read, empty when none was found.
	ConfigFile string `mapstructure:"-"`
}

// DefaultConfig values
var DefaultConfig = Config{
	NodePath:        "node",
	ServerPath:      "./mcp-server/dist/index.js",
	CallTimeout:     60 * time.Second,
	ShutdownTimeout: 5 * time.Second,
	SettleDelay:     100 * time.Millisecond,
	Debounce:        50 * time.Millisecond,
	ClientName:      "strudelplay-watcher",
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"node_path":        "NODE_PATH",
	"server_path":      "STRUDEL_MCP_PATH",
	"call_timeout":     "STRUDEL_CALL_TIMEOUT",
	"shutdown_timeout": "STRUDEL_SHUTDOWN_TIMEOUT",
	"settle_delay":     "STRUDEL_SETTLE_DELAY",
	"debounce":         "STRUDEL_DEBOUNCE",
	"client_name":      "STRUDEL_CLIENT_NAME",
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, APP_NAME)
}

// Load resolves configuration for a process working in dir.
//
// Precedence, highest first: process environment, a .env file in dir (never
// overriding variables that are already set), strudel-watch.yaml in dir or in
// ConfigDir(), then DefaultConfig.
func Load(dir string) (*Config, error) {
	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	v.SetConfigName(APP_NAME)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(ConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logging.Debug("No config file found, using defaults and environment")
	}

	cfg := &Config{
		NodePath:        v.GetString("node_path"),
		ServerPath:      v.GetString("server_path"),
		CallTimeout:     v.GetDuration("call_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		SettleDelay:     v.GetDuration("settle_delay"),
		Debounce:        v.GetDuration("debounce"),
		ClientName:      v.GetString("client_name"),
		ConfigFile:      v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Debug("Configuration resolved",
		"node", cfg.NodePath,
		"server", cfg.ServerPath,
		"config_file", cfg.ConfigFile,
	)
	return cfg, nil
}

// Validate rejects settings the watcher cannot run with.
func (c *Config) Validate() error {
	if c.NodePath == "" {
		return fmt.Errorf("node_path must not be empty")
	}
	if c.ServerPath == "" {
		return fmt.Errorf("server_path must not be empty")
	}
	durations := map[string]time.Duration{
		"call_timeout":     c.CallTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
		"settle_delay":     c.SettleDelay,
		"debounce":         c.Debounce,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", key, d)
		}
	}
	return nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	logging.Debug("Loaded environment file", "path", path)
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_path", DefaultConfig.NodePath)
	v.SetDefault("server_path", DefaultConfig.ServerPath)
	v.SetDefault("call_timeout", DefaultConfig.CallTimeout)
	v.SetDefault("shutdown_timeout", DefaultConfig.ShutdownTimeout)
	v.SetDefault("settle_delay", DefaultConfig.SettleDelay)
	v.SetDefault("debounce", DefaultConfig.Debounce)
	v.SetDefault("client_name", DefaultConfig.ClientName)
}

func bindEnv(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}
