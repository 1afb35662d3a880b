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
	kFloat
	kDuration
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kFloat:
		return "number"
	case kDuration:
		return "duration"
	default:
		return "string"
	}
}

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
		key: "server.host", typ: kString, env: "JOBRELAY_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "JOBRELAY_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "JOBRELAY_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "apify.base_url", typ: kString, env: "JOBRELAY_APIFY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Apify.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Apify.BaseURL },
	},
	{
		key: "apify.token", typ: kString, env: "JOBRELAY_APIFY_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Apify.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Apify.Token },
	},
	{
		key: "apify.rate_limit", typ: kFloat, env: "JOBRELAY_APIFY_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Apify.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Apify.RateLimit },
	},
	{
		key: "apify.rate_burst", typ: kInt, env: "JOBRELAY_APIFY_RATE_BURST",
		apply:   func(cfg *Config, v any) { cfg.Apify.RateBurst = v.(int) },
		extract: func(cfg Config) any { return cfg.Apify.RateBurst },
	},
	{
		key: "apify.request_timeout", typ: kDuration, env: "JOBRELAY_APIFY_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Apify.RequestTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Apify.RequestTimeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "JOBRELAY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "queue.poll_interval", typ: kDuration, env: "JOBRELAY_QUEUE_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Queue.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Queue.PollInterval },
	},
	{
		key: "log.level", typ: kString, env: "JOBRELAY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "JOBRELAY_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "log.file", typ: kString, env: "JOBRELAY_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts a raw string into the Go type of typ.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
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
		v, err := parseValue(s.typ, raw)
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
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typ, s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
