package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

// Config is the process-level configuration, read once from the environment.
// Per-run choices (production mode, input) are caller-supplied, not
// environment-fixed.
type Config struct {
	Service *svcConfig
}

type svcConfig struct {
	BaseURL               string `envconfig:"COPY_PASTE_API_BASE_URL" default:"http://localhost:8000"`
	Mode                  string `envconfig:"COPY_PASTE_MODE" default:"live"`
	LogLevel              string `envconfig:"COPY_PASTE_LOG_LEVEL" default:"info"`
	RequestTimeoutSeconds int    `envconfig:"COPY_PASTE_REQUEST_TIMEOUT_SECONDS" default:"30"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}
