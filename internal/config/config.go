package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/p-arndt/leethack/internal/challenge"
)

type DockerConfig struct {
	// MemoryLimit is a human-readable size such as "512m".
	MemoryLimit string `yaml:"memory_limit"`
	CPUShares   int64  `yaml:"cpu_shares"`
	// HostIP is the address sandbox ports are published on.
	HostIP string `yaml:"host_ip"`
}

type SessionConfig struct {
	MaxIdleSeconds       int `yaml:"max_idle_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type Config struct {
	Listen        string             `yaml:"listen"`
	CORSOrigin    string             `yaml:"cors_origin"`
	LogLevel      string             `yaml:"log_level"`
	DefaultImage  string             `yaml:"default_image"`
	HistoryDBPath string             `yaml:"history_db_path"`
	Docker        DockerConfig       `yaml:"docker"`
	Session       SessionConfig      `yaml:"session"`
	Challenges    []challenge.Config `yaml:"challenges"`
}

// Default returns the settings used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Listen:        "127.0.0.1:3001",
		CORSOrigin:    "http://localhost:3000",
		LogLevel:      "info",
		DefaultImage:  "leethack-vm:latest",
		HistoryDBPath: ":memory:",
		Docker: DockerConfig{
			MemoryLimit: "512m",
			CPUShares:   512,
			HostIP:      "127.0.0.1",
		},
		Session: SessionConfig{
			MaxIdleSeconds:       1800,
			SweepIntervalSeconds: 600,
		},
	}
}

func Load(yamlPath string) (*Config, error) {
	cfg := Default()
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if _, err := units.RAMInBytes(c.Docker.MemoryLimit); err != nil {
		return fmt.Errorf("docker.memory_limit: %w", err)
	}
	if c.Docker.CPUShares < 0 {
		return fmt.Errorf("docker.cpu_shares must be non-negative")
	}
	if c.Session.MaxIdleSeconds <= 0 {
		return fmt.Errorf("session.max_idle_seconds must be positive")
	}
	if c.Session.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("session.sweep_interval_seconds must be positive")
	}
	if c.DefaultImage == "" {
		return fmt.Errorf("default_image is required")
	}
	return nil
}

// MemoryLimitBytes returns the parsed sandbox memory ceiling.
func (c *Config) MemoryLimitBytes() int64 {
	n, err := units.RAMInBytes(c.Docker.MemoryLimit)
	if err != nil {
		return 512 * units.MiB
	}
	return n
}

func applyEnvOverrides(cfg *Config) {
	// LEETHACK_HOST and LEETHACK_PORT patch the listen address piecewise.
	if v := os.Getenv("LEETHACK_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if host, port := os.Getenv("LEETHACK_HOST"), os.Getenv("LEETHACK_PORT"); host != "" || port != "" {
		h, p, err := net.SplitHostPort(cfg.Listen)
		if err != nil {
			h, p = "127.0.0.1", "3001"
		}
		if host != "" {
			h = host
		}
		if port != "" {
			if _, err := strconv.Atoi(port); err == nil {
				p = port
			}
		}
		cfg.Listen = net.JoinHostPort(h, p)
	}
	if v := os.Getenv("LEETHACK_CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = v
	}
	if v := os.Getenv("LEETHACK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LEETHACK_DOCKER_IMAGE"); v != "" {
		cfg.DefaultImage = v
	}
	if v := os.Getenv("LEETHACK_HISTORY_DB_PATH"); v != "" {
		cfg.HistoryDBPath = v
	}
	if v := os.Getenv("LEETHACK_MEMORY_LIMIT"); v != "" {
		if _, err := units.RAMInBytes(v); err == nil {
			cfg.Docker.MemoryLimit = v
		}
	}
	if v := os.Getenv("LEETHACK_CPU_SHARES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Docker.CPUShares = n
		}
	}
	if v := os.Getenv("LEETHACK_HOST_IP"); v != "" {
		cfg.Docker.HostIP = v
	}
	if v := os.Getenv("LEETHACK_MAX_IDLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxIdleSeconds = n
		}
	}
	if v := os.Getenv("LEETHACK_SWEEP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.SweepIntervalSeconds = n
		}
	}
}
