package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

type RuntimeConfig struct {
	Image string `mapstructure:"image"`
}

// SandboxConfig holds the resource ceilings applied at sandbox creation.
type SandboxConfig struct {
	MemoryMB     int    `mapstructure:"memory_mb"`
	CPUShares    int    `mapstructure:"cpu_shares"`
	Network      string `mapstructure:"network"`
	Workdir      string `mapstructure:"workdir"`
	StopGraceSec int    `mapstructure:"stop_grace_sec"`
}

type ExecConfig struct {
	TimeoutSec int `mapstructure:"timeout_sec"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Exec    ExecConfig    `mapstructure:"exec"`
}

// Load reads codeon.yaml from the working directory or ~/.codeon,
// falling back to defaults when no config file exists.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("codeon")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.codeon")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("runtime.image", "codeon/runtime:latest")
	v.SetDefault("sandbox.memory_mb", 512)
	v.SetDefault("sandbox.cpu_shares", 512)
	v.SetDefault("sandbox.network", "bridge")
	v.SetDefault("sandbox.workdir", "/workspace")
	v.SetDefault("sandbox.stop_grace_sec", 5)
	v.SetDefault("exec.timeout_sec", 30)
}

func (c *Config) validate() error {
	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got %d", c.Sandbox.MemoryMB)
	}
	if c.Sandbox.CPUShares <= 0 {
		return fmt.Errorf("sandbox.cpu_shares must be positive, got %d", c.Sandbox.CPUShares)
	}
	if c.Sandbox.Workdir == "" {
		return fmt.Errorf("sandbox.workdir must not be empty")
	}
	switch c.Sandbox.Network {
	case "bridge", "none", "host":
	default:
		return fmt.Errorf("unsupported sandbox.network: %s", c.Sandbox.Network)
	}
	if c.Exec.TimeoutSec <= 0 {
		return fmt.Errorf("exec.timeout_sec must be positive, got %d", c.Exec.TimeoutSec)
	}
	return nil
}

// ExecTimeout returns the execution bound as a duration.
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.Exec.TimeoutSec) * time.Second
}

// StopGrace returns the bounded grace period for sandbox teardown.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Sandbox.StopGraceSec) * time.Second
}
