// Package config loads the atlas service configuration from an optional YAML
// file and ATLAS_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"atlas-overwatch/db"
	"atlas-overwatch/pkg/services/atlas"
	embeddednats "atlas-overwatch/pkg/services/embedded-nats"
	"atlas-overwatch/pkg/services/remote"
	"atlas-overwatch/pkg/services/transport"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Remote        RemoteConfig        `yaml:"remote"`
	Transport     TransportConfig     `yaml:"transport"`
	Database      DatabaseConfig      `yaml:"database"`
	NATS          NATSConfig          `yaml:"nats"`
	Engine        EngineConfig        `yaml:"engine"`
	StalePolicies []StalePolicyConfig `yaml:"stale_policies"`
}

type ServerConfig struct {
	Port     string `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

type RemoteConfig struct {
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
}

type TransportConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Connection       string        `yaml:"connection"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port      int    `yaml:"port"`
	DataDir   string `yaml:"data_dir"`
	InProcess bool   `yaml:"in_process"`
}

type EngineConfig struct {
	DiffInterval   time.Duration `yaml:"diff_interval"`
	BeaconInterval time.Duration `yaml:"beacon_interval"`
	StalePolicy    string        `yaml:"stale_policy"`
	// Icons lists the icon names the renderer knows. Empty accepts any icon.
	Icons []string `yaml:"icons"`
}

// StalePolicyConfig is one entry of the display-stale enumeration.
type StalePolicyConfig struct {
	Name  string        `yaml:"name"`
	Grace time.Duration `yaml:"grace"`
	Never bool          `yaml:"never"`
}

func DefaultConfig() *Config {
	engine := atlas.DefaultConfig()
	rc := remote.DefaultConfig()
	ts := transport.DefaultSettings()
	nc := embeddednats.DefaultConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     "8080",
			APIToken: "atlas-dev-token",
		},
		Remote: RemoteConfig{
			Timeout:   rc.Timeout,
			RateLimit: rc.RateLimit,
			Burst:     rc.Burst,
		},
		Transport: TransportConfig{
			Connection:       "atlas",
			ReconnectTimeout: ts.ReconnectTimeout,
			ReadTimeout:      ts.ReadTimeout,
			WriteTimeout:     ts.WriteTimeout,
		},
		Database: DatabaseConfig{
			Path: db.DefaultConfig().DBPath,
		},
		NATS: NATSConfig{
			Port:    nc.Port,
			DataDir: nc.DataDir,
		},
		Engine: EngineConfig{
			DiffInterval:   engine.DiffInterval,
			BeaconInterval: engine.BeaconInterval,
			StalePolicy:    engine.StalePolicy,
		},
	}
	for _, name := range []string{"Immediate", "10 Minutes", "30 Minutes", "1 Hour", "Never"} {
		p := engine.StalePolicies[name]
		cfg.StalePolicies = append(cfg.StalePolicies, StalePolicyConfig{Name: p.Name, Grace: p.Grace, Never: p.Never})
	}
	return cfg
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"ATLAS_PORT":         &c.Server.Port,
		"ATLAS_API_TOKEN":    &c.Server.APIToken,
		"ATLAS_REMOTE_URL":   &c.Remote.URL,
		"ATLAS_REMOTE_TOKEN": &c.Remote.Token,
		"ATLAS_CONNECTION":   &c.Transport.Connection,
		"ATLAS_DB_PATH":      &c.Database.Path,
		"ATLAS_NATS_DIR":     &c.NATS.DataDir,
		"ATLAS_STALE_POLICY": &c.Engine.StalePolicy,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ATLAS_DIFF_INTERVAL":   &c.Engine.DiffInterval,
		"ATLAS_BEACON_INTERVAL": &c.Engine.BeaconInterval,
		"ATLAS_REMOTE_TIMEOUT":  &c.Remote.Timeout,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := getenv("ATLAS_NATS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ATLAS_NATS_PORT: %w", err)
		}
		c.NATS.Port = port
	}
	if v := getenv("ATLAS_TRANSPORT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ATLAS_TRANSPORT_ENABLED: %w", err)
		}
		c.Transport.Enabled = enabled
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Engine.DiffInterval <= 0 {
		return fmt.Errorf("engine diff_interval must be positive")
	}
	if c.Engine.BeaconInterval <= 0 {
		return fmt.Errorf("engine beacon_interval must be positive")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Transport.Enabled {
		if strings.TrimSpace(c.Remote.URL) == "" {
			return fmt.Errorf("remote url is required when transport is enabled")
		}
		if strings.TrimSpace(c.Transport.Connection) == "" {
			return fmt.Errorf("transport connection is required when enabled")
		}
	}
	if len(c.StalePolicies) == 0 {
		return fmt.Errorf("at least one stale policy is required")
	}

	seen := make(map[string]struct{})
	for i, p := range c.StalePolicies {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("stale policy %d name is required", i)
		}
		if p.Grace < 0 {
			return fmt.Errorf("stale policy %s grace must not be negative", p.Name)
		}
		if _, exists := seen[p.Name]; exists {
			return fmt.Errorf("duplicate stale policy: %s", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	if _, ok := seen[c.Engine.StalePolicy]; !ok {
		return fmt.Errorf("engine stale_policy %q is not a configured stale policy", c.Engine.StalePolicy)
	}

	return nil
}

// AtlasConfig converts the engine section for atlas.New.
func (c *Config) AtlasConfig(version string) *atlas.Config {
	policies := make(atlas.StalePolicies, len(c.StalePolicies))
	for _, p := range c.StalePolicies {
		policies[p.Name] = atlas.StalePolicy{Name: p.Name, Grace: p.Grace, Never: p.Never}
	}
	return &atlas.Config{
		DiffInterval:   c.Engine.DiffInterval,
		BeaconInterval: c.Engine.BeaconInterval,
		StalePolicy:    c.Engine.StalePolicy,
		StalePolicies:  policies,
		Version:        version,
	}
}

func (c *Config) RemoteConfig() *remote.Config {
	return &remote.Config{
		BaseURL:   c.Remote.URL,
		Token:     c.Remote.Token,
		Timeout:   c.Remote.Timeout,
		RateLimit: c.Remote.RateLimit,
		Burst:     c.Remote.Burst,
	}
}

func (c *Config) TransportSettings() *transport.Settings {
	s := transport.DefaultSettings()
	if c.Transport.ReconnectTimeout > 0 {
		s.ReconnectTimeout = c.Transport.ReconnectTimeout
	}
	if c.Transport.ReadTimeout > 0 {
		s.ReadTimeout = c.Transport.ReadTimeout
	}
	if c.Transport.WriteTimeout > 0 {
		s.WriteTimeout = c.Transport.WriteTimeout
	}
	return s
}

func (c *Config) DatabaseConfig() *db.Config {
	cfg := db.DefaultConfig()
	cfg.DBPath = c.Database.Path
	return cfg
}

func (c *Config) NATSConfig() *embeddednats.Config {
	cfg := embeddednats.DefaultConfig()
	cfg.Port = c.NATS.Port
	cfg.DataDir = c.NATS.DataDir
	cfg.DontListen = c.NATS.InProcess
	return cfg
}

// IconSet returns the configured icon names, nil when none are listed.
func (c *Config) IconSet() atlas.IconSet {
	if len(c.Engine.Icons) == 0 {
		return nil
	}
	return atlas.NewStaticIcons(c.Engine.Icons...)
}
