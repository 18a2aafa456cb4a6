// Package config loads the gridfall YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ghthor/gridfall/gridsim"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFallInterval = 500 * time.Millisecond

	DefaultHostname    = "gridfall"
	DefaultSSHPort     = 23234
	DefaultHTTPPort    = 28080
	DefaultHostKeyPath = ".ssh/id_ed25519"

	// LogFormatEnv picks the log format when the config leaves it unset.
	LogFormatEnv = "LIPGLOSS_LOG_FORMAT"
)

type Config struct {
	Board        Board         `yaml:"board"`
	FallInterval time.Duration `yaml:"fall_interval"`
	Log          Log           `yaml:"log"`
	Server       Server        `yaml:"server"`
}

type Board struct {
	Rows    int `yaml:"rows"`
	Columns int `yaml:"columns"`
}

type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, logfmt
}

type Server struct {
	Hostname    string `yaml:"hostname"`
	SSHPort     int    `yaml:"ssh_port"`
	HTTPPort    int    `yaml:"http_port"`
	HostKeyPath string `yaml:"host_key_path"`

	// Bind is the interface plain TCP listeners use. Empty means all.
	Bind string `yaml:"bind"`

	// Tailscale serves on a tsnet node instead of plain TCP and uses WhoIs
	// for player names.
	Tailscale bool `yaml:"tailscale"`
}

func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

// Load reads a config file. Missing fields take their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Board.Rows == 0 {
		c.Board.Rows = gridsim.DefaultRows
	}
	if c.Board.Columns == 0 {
		c.Board.Columns = gridsim.DefaultColumns
	}
	if c.FallInterval == 0 {
		c.FallInterval = DefaultFallInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat()
	}

	if c.Server.Hostname == "" {
		c.Server.Hostname = DefaultHostname
	}
	if c.Server.SSHPort == 0 {
		c.Server.SSHPort = DefaultSSHPort
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}
	if c.Server.HostKeyPath == "" {
		c.Server.HostKeyPath = DefaultHostKeyPath
	}
}

// defaultLogFormat is the format named by LogFormatEnv when it is one we
// know, text otherwise.
func defaultLogFormat() string {
	switch f := os.Getenv(LogFormatEnv); f {
	case "text", "json", "logfmt":
		return f
	default:
		return "text"
	}
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := gridsim.New(c.SimOptions()...); err != nil {
		errs = append(errs, fmt.Errorf("board: %w", err))
	}
	if c.FallInterval < 0 {
		errs = append(errs, fmt.Errorf("fall_interval must be positive, got %s", c.FallInterval))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := c.Log.Formatter(); err != nil {
		errs = append(errs, err)
	}
	for name, port := range map[string]int{"ssh_port": c.Server.SSHPort, "http_port": c.Server.HTTPPort} {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("server.%s out of range: %d", name, port))
		}
	}

	return errors.Join(errs...)
}

func (l Log) Formatter() (log.Formatter, error) {
	switch l.Format {
	case "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return log.TextFormatter, fmt.Errorf("log.format must be one of text, json, logfmt, got %q", l.Format)
	}
}

// Apply configures the default charmbracelet logger.
func (l Log) Apply() error {
	lvl, err := log.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	f, err := l.Formatter()
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetFormatter(f)
	return nil
}

// SimOptions returns the gridsim options for the configured board.
func (c *Config) SimOptions() []gridsim.Option {
	return []gridsim.Option{
		gridsim.WithSize(c.Board.Rows, c.Board.Columns),
	}
}
