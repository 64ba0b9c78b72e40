// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     config
// Description: Configuration loading (TOML or YAML) for the lifecycle core
// Author:      Mike Stoffels
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	mserror "github.com/msto63/mSYS/foundation/core/error"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "MSYS_CONFIG"

// Config holds the complete configuration of the lifecycle core
type Config struct {
	System     SystemConfig     `toml:"system" yaml:"system"`
	Timeouts   TimeoutsConfig   `toml:"timeouts" yaml:"timeouts"`
	Whitelists WhitelistsConfig `toml:"whitelists" yaml:"whitelists"`
	Names      NamesConfig      `toml:"names" yaml:"names"`
	Storage    StorageConfig    `toml:"storage" yaml:"storage"`
	Control    ControlConfig    `toml:"control" yaml:"control"`
	Services   []ServiceConfig  `toml:"services" yaml:"services"`
}

// SystemConfig holds general settings
type SystemConfig struct {
	Name      string `toml:"name" yaml:"name"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
}

// TimeoutsConfig holds every timing constant of the lifecycle core
type TimeoutsConfig struct {
	PreShutdown     Duration `toml:"pre_shutdown" yaml:"pre_shutdown"`
	LowBattery      Duration `toml:"low_battery" yaml:"low_battery"`
	CPUStatsInitial Duration `toml:"cpu_stats_initial" yaml:"cpu_stats_initial"`
	CPUStatsPeriod  Duration `toml:"cpu_stats_period" yaml:"cpu_stats_period"`
	ServiceStart    Duration `toml:"service_start" yaml:"service_start"`
	ServiceClose    Duration `toml:"service_close" yaml:"service_close"`
	PowerModeSwitch Duration `toml:"power_mode_switch" yaml:"power_mode_switch"`
	Restore         Duration `toml:"restore" yaml:"restore"`
}

// WhitelistsConfig names the services kept alive per close scenario
type WhitelistsConfig struct {
	Update       []string `toml:"update" yaml:"update"`
	Restore      []string `toml:"restore" yaml:"restore"`
	RegularClose []string `toml:"regular_close" yaml:"regular_close"`
}

// NamesConfig holds the names of the collaborating well-known services
type NamesConfig struct {
	EventManager       string `toml:"event_manager" yaml:"event_manager"`
	ApplicationManager string `toml:"application_manager" yaml:"application_manager"`
	Desktop            string `toml:"desktop" yaml:"desktop"`
	GUI                string `toml:"gui" yaml:"gui"`
	DB                 string `toml:"db" yaml:"db"`
	Eink               string `toml:"eink" yaml:"eink"`
	Cellular           string `toml:"cellular" yaml:"cellular"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	// DeviceDB is the SQLite path of the device registry. Empty keeps
	// registrations in memory.
	DeviceDB string `toml:"device_db" yaml:"device_db"`
}

// ControlConfig holds the optional observation endpoints
type ControlConfig struct {
	GRPCAddress    string `toml:"grpc_address" yaml:"grpc_address"`
	MetricsAddress string `toml:"metrics_address" yaml:"metrics_address"`
}

// ServiceConfig describes one system service or application
type ServiceConfig struct {
	Name         string   `toml:"name" yaml:"name"`
	Dependencies []string `toml:"dependencies" yaml:"dependencies"`
	StartTimeout Duration `toml:"start_timeout" yaml:"start_timeout"`
	CloseTimeout Duration `toml:"close_timeout" yaml:"close_timeout"`
	Application  bool     `toml:"application" yaml:"application"`
	// Simulate selects the behavior of the simulated service used by
	// "msys run": "", "silent" (never acknowledges a close notice),
	// "stuck" (never answers an exit request) or "fail_start".
	Simulate string `toml:"simulate" yaml:"simulate"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Load reads a configuration file. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by MSYS_CONFIG, or the defaults if unset
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return Load(path)
	}
	return Default(), nil
}

// Default returns the built-in configuration of a simulated device
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Services = DefaultServices(cfg.Names)
	cfg.applyDefaults()
	return cfg
}

// DefaultServices returns the standard system service set and its
// dependency edges.
func DefaultServices(n NamesConfig) []ServiceConfig {
	return []ServiceConfig{
		{Name: n.EventManager},
		{Name: n.DB, Dependencies: []string{n.EventManager}},
		{Name: n.Eink, Dependencies: []string{n.EventManager}},
		{Name: n.GUI, Dependencies: []string{n.Eink}},
		{Name: n.Cellular, Dependencies: []string{n.EventManager, n.DB}},
		{Name: n.Desktop, Dependencies: []string{n.DB}},
		{Name: n.ApplicationManager, Dependencies: []string{n.GUI, n.DB, n.EventManager}},
	}
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.System.Name == "" {
		c.System.Name = "msys"
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "info"
	}
	if c.System.LogFormat == "" {
		c.System.LogFormat = "text"
	}

	t := &c.Timeouts
	setDefault(&t.PreShutdown, 1500*time.Millisecond)
	setDefault(&t.LowBattery, 5*time.Second)
	setDefault(&t.CPUStatsInitial, 30*time.Second)
	setDefault(&t.CPUStatsPeriod, 100*time.Millisecond)
	setDefault(&t.ServiceStart, 5*time.Second)
	setDefault(&t.ServiceClose, 1*time.Second)
	setDefault(&t.PowerModeSwitch, 1*time.Second)
	setDefault(&t.Restore, 1*time.Second)

	n := &c.Names
	setName(&n.EventManager, "EventManager")
	setName(&n.ApplicationManager, "ApplicationManager")
	setName(&n.Desktop, "ServiceDesktop")
	setName(&n.GUI, "ServiceGUI")
	setName(&n.DB, "ServiceDB")
	setName(&n.Eink, "ServiceEink")
	setName(&n.Cellular, "ServiceCellular")

	w := &c.Whitelists
	if w.Update == nil {
		w.Update = []string{n.Desktop, n.EventManager, n.GUI, n.DB, n.Eink, n.ApplicationManager}
	}
	if w.Restore == nil {
		w.Restore = []string{n.Desktop, n.EventManager, n.GUI, n.Eink, n.ApplicationManager}
	}
	if w.RegularClose == nil {
		w.RegularClose = []string{n.EventManager}
	}

	for i := range c.Services {
		setDefault(&c.Services[i].StartTimeout, t.ServiceStart.Duration)
		setDefault(&c.Services[i].CloseTimeout, t.ServiceClose.Duration)
	}
}

func setDefault(d *Duration, v time.Duration) {
	if d.Duration == 0 {
		d.Duration = v
	}
}

func setName(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

// expandEnvVars expands ${VAR} references in path-like fields
func (c *Config) expandEnvVars() {
	c.Storage.DeviceDB = os.ExpandEnv(c.Storage.DeviceDB)
	c.Control.GRPCAddress = os.ExpandEnv(c.Control.GRPCAddress)
	c.Control.MetricsAddress = os.ExpandEnv(c.Control.MetricsAddress)
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	invalid := func(msg string, kv ...interface{}) error {
		err := mserror.New(msg).WithCode(mserror.CodeConfigInvalid).WithOperation("config.validate")
		for i := 0; i+1 < len(kv); i += 2 {
			err = err.WithDetail(fmt.Sprint(kv[i]), kv[i+1])
		}
		return err
	}

	seen := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if strings.TrimSpace(s.Name) == "" {
			return invalid("service name is required", "index", i)
		}
		if seen[s.Name] {
			return invalid("service declared twice", "service", s.Name)
		}
		seen[s.Name] = true
		switch s.Simulate {
		case "", "silent", "stuck", "fail_start":
		default:
			return invalid("unknown simulate mode", "service", s.Name, "mode", s.Simulate)
		}
	}

	durations := map[string]Duration{
		"pre_shutdown":      c.Timeouts.PreShutdown,
		"low_battery":       c.Timeouts.LowBattery,
		"cpu_stats_initial": c.Timeouts.CPUStatsInitial,
		"cpu_stats_period":  c.Timeouts.CPUStatsPeriod,
		"service_start":     c.Timeouts.ServiceStart,
		"service_close":     c.Timeouts.ServiceClose,
		"power_mode_switch": c.Timeouts.PowerModeSwitch,
		"restore":           c.Timeouts.Restore,
	}
	for name, d := range durations {
		if d.Duration <= 0 {
			return invalid("timeout must be positive", "timeout", name)
		}
	}

	switch strings.ToLower(c.System.LogFormat) {
	case "json", "text":
	default:
		return invalid("unknown log format", "format", c.System.LogFormat)
	}
	return nil
}

// ServiceNames returns the declared service names in order
func (c *Config) ServiceNames() []string {
	names := make([]string, len(c.Services))
	for i, s := range c.Services {
		names[i] = s.Name
	}
	return names
}
