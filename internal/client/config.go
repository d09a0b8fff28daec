package client

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

const (
	// ModeLive talks to a real backend; ModeMock serves canned data.
	ModeLive = "live"
	ModeMock = "mock"

	DefaultServer = "http://localhost:8000"
)

// Config holds the information needed to connect to the copy-paste backend.
type Config struct {
	Service Service `json:"service"`

	// Mode selects mock vs live behavior.
	Mode string `json:"mode,omitempty"`

	// RequestTimeoutSeconds bounds every single backend call.
	RequestTimeoutSeconds int `json:"request-timeout-seconds,omitempty"`
}

// Service describes how to reach the backend.
type Service struct {
	// Server is the base URL of the backend (the part before /api/v1/...).
	Server string `json:"server"`
}

func NewDefault() *Config {
	return &Config{
		Service: Service{Server: DefaultServer},
		Mode:    ModeLive,
	}
}

func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ParseConfigFile reads and validates a YAML client config file.
func ParseConfigFile(filename string) (*Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config := NewDefault()
	if err := yaml.Unmarshal(contents, config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Mode != ModeLive && c.Mode != ModeMock {
		return fmt.Errorf("invalid mode %q: must be %q or %q", c.Mode, ModeLive, ModeMock)
	}
	if len(c.Service.Server) == 0 {
		return fmt.Errorf("no server found")
	}
	u, err := url.Parse(c.Service.Server)
	if err != nil {
		return fmt.Errorf("invalid server format %q: %w", c.Service.Server, err)
	}
	if len(u.Hostname()) == 0 {
		return fmt.Errorf("invalid server format %q: no hostname", c.Service.Server)
	}
	return nil
}
