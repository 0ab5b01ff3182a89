// Package config loads server configuration from a YAML file with
// environment variable overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Session    SessionConfig    `yaml:"session"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Geo        GeoConfig        `yaml:"geo"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type ExtractionConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

type SessionConfig struct {
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type SimilarityConfig struct {
	// Backend selects the vector index implementation: "bruteforce",
	// "hnsw", or "keyword".
	Backend  string `yaml:"backend"`
	Dims     int    `yaml:"dims"`
	M        int    `yaml:"m"`
	EfSearch int    `yaml:"ef_search"`
}

type GeoConfig struct {
	NominatimURL string   `yaml:"nominatim_url"`
	UserAgent    string   `yaml:"user_agent"`
	RadiusKm     float64  `yaml:"radius_km"`
	RateDelay    Duration `yaml:"rate_delay"`
}

type ArchiveConfig struct {
	// Path to the SQLite archive database. Empty disables archiving.
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8001",
		},
		Extraction: ExtractionConfig{
			Model:   "claude-3-5-sonnet-20241022",
			Timeout: Duration(30 * time.Second),
		},
		Session: SessionConfig{
			TTL:           Duration(30 * time.Minute),
			SweepInterval: Duration(5 * time.Minute),
		},
		Similarity: SimilarityConfig{
			Backend:  "bruteforce",
			Dims:     384,
			M:        16,
			EfSearch: 100,
		},
		Geo: GeoConfig{
			UserAgent: "AgentAid-DisasterResponse/1.0",
			RadiusKm:  10,
			RateDelay: Duration(time.Second),
		},
	}
}

// Load reads configuration from path, layered over Default. An empty
// path returns the defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AGENTAID_API_KEY"); v != "" {
		c.Extraction.APIKey = v
	}
	if v := os.Getenv("AGENTAID_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("AGENTAID_ARCHIVE_PATH"); v != "" {
		c.Archive.Path = v
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Similarity.Backend {
	case "bruteforce", "hnsw", "keyword":
	default:
		return fmt.Errorf("unknown similarity backend %q", c.Similarity.Backend)
	}
	if c.Similarity.Dims <= 0 {
		return fmt.Errorf("similarity dims must be positive, got %d", c.Similarity.Dims)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.Session.TTL.Std())
	}
	if c.Geo.RadiusKm <= 0 {
		return fmt.Errorf("geo radius must be positive, got %g", c.Geo.RadiusKm)
	}
	return nil
}
