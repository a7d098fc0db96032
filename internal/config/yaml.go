// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	applog "beatscope/internal/log"

	"gopkg.in/yaml.v3"
)

// searchPaths are tried in order when LoadConfig receives an empty path.
var searchPaths = []string{
	"beatscope.yaml",
	"config.yaml",
}

// LoadConfig loads configuration from the YAML file at path. If path is
// empty it searches the default locations and falls back to built-in
// defaults when none exist. Environment overrides are applied after the
// file and the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("config: loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies ENV_* variables on top of file values. Values
// that fail to parse are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("config: overriding log_level from env: %s", val)
	}

	// ENV_{SAMPLE_RATE,BUFFER_SIZE,EXTENDED} shape the analysis.
	envInt("ENV_SAMPLE_RATE", &c.Audio.SampleRate)
	envInt("ENV_BUFFER_SIZE", &c.Audio.BufferSize)
	envBool("ENV_EXTENDED", &c.Analysis.Extended)

	// ENV_UDP_* and ENV_WS_* are specific to the transport layer.
	envBool("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Debugf("config: overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
		} else {
			applog.Warnf("config: ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketEnabled = true
		c.Transport.WebSocketAddress = val
	}
}

func envInt(name string, dst *int) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		applog.Warnf("config: ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = n
}

func envBool(name string, dst *bool) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		applog.Warnf("config: ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = b
}
