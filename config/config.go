// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the daemon's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roleward/roleward/platform"
)

// Config is the top-level configuration for the roleward daemon.
type Config struct {
	// ListenAddress is the TCP address the daemon's HTTP server
	// binds to. It serves the gateway webhook, the uptime ping, and
	// Prometheus metrics. Defaults to 127.0.0.1:8750.
	ListenAddress string `yaml:"listen_address"`

	// DatabasePath is the SQLite policy database file. The parent
	// directory must exist. Required.
	DatabasePath string `yaml:"database_path"`

	// BlacklistPath is the JSONC community blacklist file. Optional;
	// a missing file means nothing is blacklisted.
	BlacklistPath string `yaml:"blacklist_path"`

	// Platform configures the chat-platform API client.
	Platform PlatformConfig `yaml:"platform"`

	// WebhookSecretFile holds the shared secret for verifying
	// gateway webhook signatures, as a file path so the secret stays
	// out of the config file. Required.
	WebhookSecretFile string `yaml:"webhook_secret_file"`

	// Operators lists user ids that pass every capability check in
	// every community.
	Operators []platform.UserID `yaml:"operators"`

	// Sweeps overrides the background sweep intervals. Zero fields
	// keep their defaults.
	Sweeps SweepConfig `yaml:"sweeps"`
}

// PlatformConfig holds the chat-platform API client settings.
type PlatformConfig struct {
	// BaseURL is the platform's REST API root. Required.
	BaseURL string `yaml:"base_url"`

	// TokenFile holds the bot token, as a file path. Required.
	TokenFile string `yaml:"token_file"`

	// BotUserID is the bot's own user id on the platform. Required.
	BotUserID platform.UserID `yaml:"bot_user_id"`
}

// SweepConfig holds the background sweep intervals.
type SweepConfig struct {
	// SetupReminder nags unconfigured communities. Default 24h.
	SetupReminder time.Duration `yaml:"setup_reminder"`

	// Blacklist re-reads the blacklist file and leaves listed
	// communities. Default 60s.
	Blacklist time.Duration `yaml:"blacklist"`

	// TempRoles revokes expired temporary grants. Default 60s.
	TempRoles time.Duration `yaml:"temp_roles"`

	// BotRoleDiscovery records the platform-managed bot role in
	// communities that lack a record. Default 24h.
	BotRoleDiscovery time.Duration `yaml:"bot_role_discovery"`
}

// Load reads and validates a configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = "127.0.0.1:8750"
	}
	if c.Sweeps.SetupReminder == 0 {
		c.Sweeps.SetupReminder = 24 * time.Hour
	}
	if c.Sweeps.Blacklist == 0 {
		c.Sweeps.Blacklist = time.Minute
	}
	if c.Sweeps.TempRoles == 0 {
		c.Sweeps.TempRoles = time.Minute
	}
	if c.Sweeps.BotRoleDiscovery == 0 {
		c.Sweeps.BotRoleDiscovery = 24 * time.Hour
	}
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.WebhookSecretFile == "" {
		return fmt.Errorf("webhook_secret_file is required")
	}
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if c.Platform.TokenFile == "" {
		return fmt.Errorf("platform.token_file is required")
	}
	if c.Platform.BotUserID == "" {
		return fmt.Errorf("platform.bot_user_id is required")
	}
	return nil
}

// ReadSecretFile reads a secret from a file, trimming trailing
// whitespace so a newline added by an editor does not corrupt it.
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}
