package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the daemon configuration, loaded from an optional YAML file
// with CLI flags overriding individual fields.
type Config struct {
	DataDir     string   `yaml:"data_dir"`
	DeviceName  string   `yaml:"device_name"`
	IdleTimeout Duration `yaml:"idle_timeout"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"metrics"`

	Sync struct {
		ScanTimeout     Duration `yaml:"scan_timeout"`
		PairingTimeout  Duration `yaml:"pairing_timeout"`
		ChunkAckTimeout Duration `yaml:"chunk_ack_timeout"`
		SessionTimeout  Duration `yaml:"session_timeout"`
	} `yaml:"sync"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{
		DeviceName:  defaultDeviceName(),
		IdleTimeout: Duration(10 * time.Minute),
	}
	cfg.Log.Level = "info"
	cfg.Metrics.Listen = "127.0.0.1:9465"
	cfg.Sync.ScanTimeout = Duration(30 * time.Second)
	cfg.Sync.PairingTimeout = Duration(60 * time.Second)
	cfg.Sync.ChunkAckTimeout = Duration(5 * time.Second)
	cfg.Sync.SessionTimeout = Duration(2 * time.Minute)

	if dir, err := os.UserConfigDir(); err == nil {
		cfg.DataDir = filepath.Join(dir, "vibevault")
	} else {
		cfg.DataDir = ".vibevault"
	}
	return cfg
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func defaultDeviceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "vibevault-desktop"
}
