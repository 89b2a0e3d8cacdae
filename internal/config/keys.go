package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "QUESTBOARD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "QUESTBOARD_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "QUESTBOARD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "QUESTBOARD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "scoring.strategy", typ: kString, env: "QUESTBOARD_SCORING_STRATEGY",
		apply:   func(cfg *Config, v any) { cfg.Scoring.Strategy = v.(string) },
		extract: func(cfg Config) any { return cfg.Scoring.Strategy },
	},
	{
		key: "scoring.model_max_age", typ: kDuration, env: "QUESTBOARD_SCORING_MODEL_MAX_AGE",
		apply:   func(cfg *Config, v any) { cfg.Scoring.ModelMaxAge = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Scoring.ModelMaxAge },
	},
	{
		key: "scoring.min_model_docs", typ: kInt, env: "QUESTBOARD_SCORING_MIN_MODEL_DOCS",
		apply:   func(cfg *Config, v any) { cfg.Scoring.MinModelDocs = v.(int) },
		extract: func(cfg Config) any { return cfg.Scoring.MinModelDocs },
	},
	{
		key: "scoring.embed_cache_size", typ: kInt, env: "QUESTBOARD_SCORING_EMBED_CACHE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Scoring.EmbedCacheSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Scoring.EmbedCacheSize },
	},
	{
		key: "ollama.base_url", typ: kString, env: "QUESTBOARD_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "QUESTBOARD_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "gear.taxonomy_file", typ: kString, env: "QUESTBOARD_GEAR_TAXONOMY_FILE",
		apply:   func(cfg *Config, v any) { cfg.Gear.TaxonomyFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Gear.TaxonomyFile },
	},
	{
		key: "sources.board_url", typ: kString, env: "QUESTBOARD_SOURCES_BOARD_URL",
		apply:   func(cfg *Config, v any) { cfg.Sources.BoardURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.BoardURL },
	},
	{
		key: "sources.feed_url", typ: kString, env: "QUESTBOARD_SOURCES_FEED_URL",
		apply:   func(cfg *Config, v any) { cfg.Sources.FeedURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.FeedURL },
	},
	{
		key: "sources.bulletin_path", typ: kString, env: "QUESTBOARD_SOURCES_BULLETIN_PATH",
		apply:   func(cfg *Config, v any) { cfg.Sources.BulletinPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.BulletinPath },
	},
	{
		key: "pipeline.interval", typ: kDuration, env: "QUESTBOARD_PIPELINE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pipeline.Interval },
	},
	{
		key: "maintenance.interval", typ: kDuration, env: "QUESTBOARD_MAINTENANCE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Maintenance.Interval },
	},
	{
		key: "maintenance.curve_max_age_days", typ: kInt, env: "QUESTBOARD_MAINTENANCE_CURVE_MAX_AGE_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.CurveMaxAgeDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Maintenance.CurveMaxAgeDays },
	},
	{
		key: "telemetry.enabled", typ: kBool, env: "QUESTBOARD_TELEMETRY_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Telemetry.Enabled },
	},
}

// parseValue converts raw text into the Go type of s. Ints are handled by the
// callers because the file backend stores them natively.
func (s keySpec) parseValue(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kDuration:
		return "duration"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typ, s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typ, s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
