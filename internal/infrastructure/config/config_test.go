package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
mcu:
  bus: 3
  address: "0x34"
thresholds:
  min_pwm: 10
  max_pwm: 90
  default_brightness: 40
  check_interval: 60
daemon:
  pidfile: /tmp/mcuctrl-test.pid
logging:
  level: warning
  output: stderr
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MCU.Bus != 3 {
		t.Errorf("MCU.Bus = %d, want 3", cfg.MCU.Bus)
	}
	if cfg.MCU.Address != 0x34 {
		t.Errorf("MCU.Address = %v, want 0x34", cfg.MCU.Address)
	}
	if cfg.Thresholds.MinPWM != 10 || cfg.Thresholds.MaxPWM != 90 {
		t.Errorf("Thresholds = %+v, want min 10 max 90", cfg.Thresholds)
	}
	if got := cfg.Thresholds.Interval(); got != time.Minute {
		t.Errorf("Interval() = %v, want %v", got, time.Minute)
	}
	if cfg.Daemon.PIDFile != "/tmp/mcuctrl-test.pid" {
		t.Errorf("Daemon.PIDFile = %q, want %q", cfg.Daemon.PIDFile, "/tmp/mcuctrl-test.pid")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"mcu.bus", cfg.MCU.Bus, 0},
		{"mcu.address", cfg.MCU.Address, Address(0)},
		{"thresholds.min_pwm", cfg.Thresholds.MinPWM, 0},
		{"thresholds.max_pwm", cfg.Thresholds.MaxPWM, 100},
		{"thresholds.default_brightness", cfg.Thresholds.DefaultBrightness, 20},
		{"thresholds.check_interval", cfg.Thresholds.CheckInterval, 300},
		{"daemon.pidfile", cfg.Daemon.PIDFile, "/var/run/mcuctrl.pid"},
		{"logging.file.path", cfg.Logging.File.Path, "/var/log/mcuctrl.log"},
		{"logging.file.max_backups", cfg.Logging.File.MaxBackups, 5},
		{"logging.file.max_size", cfg.Logging.File.MaxSize, int64(102400)},
		{"logging.level", cfg.Logging.Level, "error"},
		{"mqtt.enabled", cfg.MQTT.Enabled, false},
		{"api.enabled", cfg.API.Enabled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_AddressForms(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    Address
		wantErr bool
	}{
		{"hex string", `"0x2a"`, 0x2a, false},
		{"decimal int", "42", 42, false},
		{"decimal string", `"42"`, 42, false},
		{"garbage", `"zz"`, 0, true},
		{"too large", "300", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "mcu:\n  address: "+tt.value+"\n"))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Load() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.MCU.Address != tt.want {
				t.Errorf("MCU.Address = %v, want %v", cfg.MCU.Address, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if !errors.Is(err, ErrLoad) {
		t.Errorf("Load() error = %v, want ErrLoad", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if !errors.Is(err, ErrLoad) {
		t.Errorf("Load() error = %v, want ErrLoad", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MCUCTRL_MCU_BUS", "7")
	t.Setenv("MCUCTRL_MCU_ADDRESS", "0x50")
	t.Setenv("MCUCTRL_PIDFILE", "/run/override.pid")
	t.Setenv("MCUCTRL_LOG_LEVEL", "debug")
	t.Setenv("MCUCTRL_API_SECRET", "s3cret")

	cfg, err := Load(writeConfig(t, "mcu:\n  bus: 1\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MCU.Bus != 7 {
		t.Errorf("MCU.Bus = %d, want 7", cfg.MCU.Bus)
	}
	if cfg.MCU.Address != 0x50 {
		t.Errorf("MCU.Address = %v, want 0x50", cfg.MCU.Address)
	}
	if cfg.Daemon.PIDFile != "/run/override.pid" {
		t.Errorf("Daemon.PIDFile = %q, want %q", cfg.Daemon.PIDFile, "/run/override.pid")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.API.Auth.Secret != "s3cret" {
		t.Errorf("API.Auth.Secret = %q, want %q", cfg.API.Auth.Secret, "s3cret")
	}
}

func TestLoad_InvalidEnvOverride(t *testing.T) {
	t.Setenv("MCUCTRL_MCU_BUS", "one")

	_, err := Load(writeConfig(t, "{}\n"))
	if !errors.Is(err, ErrLoad) {
		t.Errorf("Load() error = %v, want ErrLoad", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"min above max", func(c *Config) { c.Thresholds.MinPWM = 80; c.Thresholds.MaxPWM = 20 }, "must not exceed"},
		{"max out of range", func(c *Config) { c.Thresholds.MaxPWM = 256 }, "thresholds.max_pwm"},
		{"negative min", func(c *Config) { c.Thresholds.MinPWM = -1 }, "thresholds.min_pwm"},
		{"brightness out of range", func(c *Config) { c.Thresholds.DefaultBrightness = 300 }, "default_brightness"},
		{"zero interval", func(c *Config) { c.Thresholds.CheckInterval = 0 }, "check_interval"},
		{"negative bus", func(c *Config) { c.MCU.Bus = -1 }, "mcu.bus"},
		{"highest 7-bit address", func(c *Config) { c.MCU.Address = 0x7f }, ""},
		{"8-bit address", func(c *Config) { c.MCU.Address = 0x80 }, "mcu.address"},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"critical level", func(c *Config) { c.Logging.Level = "CRITICAL" }, ""},
		{"empty pidfile", func(c *Config) { c.Daemon.PIDFile = "" }, "daemon.pidfile"},
		{"mqtt enabled without host", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker.Host = "" }, "mqtt.broker.host"},
		{"influx enabled without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.CheckInterval = 0
	cfg.Daemon.PIDFile = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if got := strings.Count(err.Error(), "; "); got != 1 {
		t.Errorf("Validate() joined %d separators, want 1: %v", got, err)
	}
}
