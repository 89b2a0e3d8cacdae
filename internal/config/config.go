package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Log         LogConfig
	Scoring     ScoringConfig
	Ollama      OllamaConfig
	Gear        GearConfig
	Sources     SourcesConfig
	Pipeline    PipelineConfig
	Maintenance MaintenanceConfig
	Telemetry   TelemetryConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ScoringConfig struct {
	// Strategy is "lexical" or "semantic".
	Strategy       string
	ModelMaxAge    time.Duration
	MinModelDocs   int
	EmbedCacheSize int
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type GearConfig struct {
	// TaxonomyFile overrides the built-in gear taxonomy when set.
	TaxonomyFile string
}

// SourcesConfig lists the external listing sources. An empty value disables
// that source.
type SourcesConfig struct {
	BoardURL     string
	FeedURL      string
	BulletinPath string
}

type PipelineConfig struct {
	Interval time.Duration
}

type MaintenanceConfig struct {
	Interval        time.Duration
	CurveMaxAgeDays int
}

type TelemetryConfig struct {
	Enabled bool
}

const (
	StrategyLexical  = "lexical"
	StrategySemantic = "semantic"
)

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Scoring: ScoringConfig{
			Strategy:       StrategyLexical,
			ModelMaxAge:    7 * 24 * time.Hour,
			MinModelDocs:   5,
			EmbedCacheSize: 512,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Sources: SourcesConfig{
			BoardURL: "https://lasvegas.craigslist.org/search/ggg",
			FeedURL:  "https://www.reddit.com/r/forhire/new.json",
		},
		Pipeline: PipelineConfig{Interval: 30 * time.Minute},
		Maintenance: MaintenanceConfig{
			Interval:        24 * time.Hour,
			CurveMaxAgeDays: 30,
		},
	}
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/questboard/config.toml, then applies QUESTBOARD_*
// environment overrides. A missing file is not an error.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Scoring.Strategy {
	case StrategyLexical, StrategySemantic:
	default:
		return fmt.Errorf("invalid scoring.strategy %q: want %q or %q", c.Scoring.Strategy, StrategyLexical, StrategySemantic)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// RequireAPIToken fails when no bearer token is configured. The HTTP API
// refuses to start without one.
func (c Config) RequireAPIToken() error {
	if c.Server.APIToken == "" {
		return fmt.Errorf("missing required config: API token. Set it via environment variable QUESTBOARD_API_TOKEN")
	}
	return nil
}

// SlogLevel maps log.level onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "questboard-data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "questboard")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "questboard", "config.toml")
}
