package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	mserror "github.com/msto63/mSYS/foundation/core/error"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"milliseconds", "1500ms", 1500 * time.Millisecond, false},
		{"complex", "1m30s", 90 * time.Second, false},
		{"invalid", "invalid", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))

			if (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && d.Duration != tt.expected {
				t.Errorf("UnmarshalText() = %v, want %v", d.Duration, tt.expected)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Timeouts.PreShutdown.Duration != 1500*time.Millisecond {
		t.Errorf("PreShutdown = %v, want 1.5s", cfg.Timeouts.PreShutdown.Duration)
	}
	if cfg.Timeouts.LowBattery.Duration != 5*time.Second {
		t.Errorf("LowBattery = %v, want 5s", cfg.Timeouts.LowBattery.Duration)
	}
	if got := cfg.Whitelists.RegularClose; len(got) != 1 || got[0] != "EventManager" {
		t.Errorf("RegularClose = %v, want [EventManager]", got)
	}
	if len(cfg.Whitelists.Update) != 6 {
		t.Errorf("Update whitelist = %v, want 6 entries", cfg.Whitelists.Update)
	}
	for _, name := range cfg.Whitelists.Restore {
		if name == "ServiceDB" {
			t.Error("Restore whitelist must not keep the database")
		}
	}
	if len(cfg.Services) != 7 {
		t.Errorf("Services = %d, want 7", len(cfg.Services))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "msys.toml", `
[system]
log_level = "debug"

[timeouts]
pre_shutdown = "2s"

[whitelists]
regular_close = ["svcA"]

[[services]]
name = "svcA"

[[services]]
name = "svcB"
dependencies = ["svcA"]
close_timeout = "250ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.System.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.System.LogLevel)
	}
	if cfg.Timeouts.PreShutdown.Duration != 2*time.Second {
		t.Errorf("PreShutdown = %v, want 2s", cfg.Timeouts.PreShutdown.Duration)
	}
	if cfg.Timeouts.LowBattery.Duration != 5*time.Second {
		t.Errorf("LowBattery default not applied: %v", cfg.Timeouts.LowBattery.Duration)
	}
	if len(cfg.Services) != 2 || cfg.Services[1].Dependencies[0] != "svcA" {
		t.Fatalf("Services = %+v", cfg.Services)
	}
	if cfg.Services[1].CloseTimeout.Duration != 250*time.Millisecond {
		t.Errorf("svcB close timeout = %v", cfg.Services[1].CloseTimeout.Duration)
	}
	if cfg.Services[0].StartTimeout.Duration != 5*time.Second {
		t.Errorf("svcA start timeout default = %v", cfg.Services[0].StartTimeout.Duration)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "msys.yaml", `
system:
  log_format: json
timeouts:
  low_battery: 3s
services:
  - name: svcA
  - name: svcB
    dependencies: [svcA]
    simulate: silent
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timeouts.LowBattery.Duration != 3*time.Second {
		t.Errorf("LowBattery = %v, want 3s", cfg.Timeouts.LowBattery.Duration)
	}
	if cfg.Services[1].Simulate != "silent" {
		t.Errorf("Simulate = %q, want silent", cfg.Services[1].Simulate)
	}
}

func TestLoad_NotFound(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"duplicate service", func(c *Config) { c.Services = append(c.Services, ServiceConfig{Name: "EventManager"}) }},
		{"empty name", func(c *Config) { c.Services = append(c.Services, ServiceConfig{}) }},
		{"zero timeout", func(c *Config) { c.Timeouts.PreShutdown.Duration = 0 }},
		{"bad simulate", func(c *Config) { c.Services[0].Simulate = "flaky" }},
		{"bad format", func(c *Config) { c.System.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !mserror.HasCode(err, mserror.CodeConfigInvalid) {
				t.Errorf("Validate() = %v, want CONFIG_INVALID", err)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := writeFile(t, "env.toml", "[system]\nname = \"bench\"\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.System.Name != "bench" {
		t.Errorf("Name = %q, want bench", cfg.System.Name)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MSYS_DATA", "/var/lib/msys")
	path := writeFile(t, "paths.toml", "[storage]\ndevice_db = \"${MSYS_DATA}/devices.db\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.DeviceDB != "/var/lib/msys/devices.db" {
		t.Errorf("DeviceDB = %q", cfg.Storage.DeviceDB)
	}
}
