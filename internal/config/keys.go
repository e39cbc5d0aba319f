package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

const (
	envGenAIKey   = "SUPPORTQA_GENAI_API_KEY"
	envAdminToken = "SUPPORTQA_ADMIN_TOKEN"
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
		key: "server.port", typ: kInt, env: "SUPPORTQA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.admin_token", typ: kString, env: envAdminToken,
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "server.session_cookies", typ: kBool, env: "SUPPORTQA_SERVER_SESSION_COOKIES",
		apply:   func(cfg *Config, v any) { cfg.Server.SessionCookies = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.SessionCookies },
	},
	{
		key: "engine.provider", typ: kString, env: "SUPPORTQA_ENGINE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Engine.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Provider },
	},
	{
		key: "engine.primary_model", typ: kString, env: "SUPPORTQA_ENGINE_PRIMARY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.PrimaryModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.PrimaryModel },
	},
	{
		key: "engine.fallback_model", typ: kString, env: "SUPPORTQA_ENGINE_FALLBACK_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.FallbackModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.FallbackModel },
	},
	{
		key: "engine.embed_model", typ: kString, env: "SUPPORTQA_ENGINE_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.EmbedModel },
	},
	{
		key: "genai.api_key", typ: kString, env: envGenAIKey,
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.GenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.GenAI.APIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SUPPORTQA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "corpus.path", typ: kString, env: "SUPPORTQA_CORPUS_PATH",
		apply:   func(cfg *Config, v any) { cfg.Corpus.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.Path },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SUPPORTQA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "redis.addr", typ: kString, env: "SUPPORTQA_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Redis.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Addr },
	},
	{
		key: "redis.password", typ: kString, env: "SUPPORTQA_REDIS_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Redis.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Password },
	},
	{
		key: "redis.db", typ: kInt, env: "SUPPORTQA_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Redis.DB = v.(int) },
		extract: func(cfg Config) any { return cfg.Redis.DB },
	},
	{
		key: "session.ttl", typ: kDuration, env: "SUPPORTQA_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Session.TTL },
	},
	{
		key: "memory.history_turns", typ: kInt, env: "SUPPORTQA_MEMORY_HISTORY_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Memory.HistoryTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.HistoryTurns },
	},
	{
		key: "memory.facts_in_prompt", typ: kInt, env: "SUPPORTQA_MEMORY_FACTS_IN_PROMPT",
		apply:   func(cfg *Config, v any) { cfg.Memory.FactsInPrompt = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.FactsInPrompt },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "SUPPORTQA_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.hybrid_bonus", typ: kFloat, env: "SUPPORTQA_RETRIEVAL_HYBRID_BONUS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.HybridBonus = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.HybridBonus },
	},
	{
		key: "retrieval.min_ok_score", typ: kFloat, env: "SUPPORTQA_RETRIEVAL_MIN_OK_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinOKScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinOKScore },
	},
	{
		key: "retrieval.margin", typ: kFloat, env: "SUPPORTQA_RETRIEVAL_MARGIN",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.Margin = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.Margin },
	},
	{
		key: "retrieval.brand_prefixes", typ: kString, env: "SUPPORTQA_RETRIEVAL_BRAND_PREFIXES",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.BrandPrefixes = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrieval.BrandPrefixes },
	},
	{
		key: "contact.email", typ: kString, env: "SUPPORTQA_CONTACT_EMAIL",
		apply:   func(cfg *Config, v any) { cfg.Contact.Email = v.(string) },
		extract: func(cfg Config) any { return cfg.Contact.Email },
	},
	{
		key: "contact.phone", typ: kString, env: "SUPPORTQA_CONTACT_PHONE",
		apply:   func(cfg *Config, v any) { cfg.Contact.Phone = v.(string) },
		extract: func(cfg Config) any { return cfg.Contact.Phone },
	},
	{
		key: "contact.address", typ: kString, env: "SUPPORTQA_CONTACT_ADDRESS",
		apply:   func(cfg *Config, v any) { cfg.Contact.Address = v.(string) },
		extract: func(cfg Config) any { return cfg.Contact.Address },
	},
	{
		key: "generation.max_retries", typ: kInt, env: "SUPPORTQA_GENERATION_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxRetries },
	},
	{
		key: "generation.initial_backoff", typ: kDuration, env: "SUPPORTQA_GENERATION_INITIAL_BACKOFF",
		apply:   func(cfg *Config, v any) { cfg.Generation.InitialBackoff = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.InitialBackoff },
	},
	{
		key: "log.level", typ: kString, env: "SUPPORTQA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parse converts raw text to the key's type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

// coerce converts a value decoded from the config file to the key's type.
// Numbers and bools are accepted in their JSON form or as text.
func (s keySpec) coerce(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return s.parse(val)
	case int:
		if s.typ == kInt {
			return val, nil
		}
	case float64:
		switch s.typ {
		case kInt:
			if val != math.Trunc(val) || val < math.MinInt32 || val > math.MaxInt32 {
				return nil, fmt.Errorf("%v is not an integer", val)
			}
			return int(val), nil
		case kFloat:
			return val, nil
		case kString:
			return strconv.FormatFloat(val, 'f', -1, 64), nil
		}
	case bool:
		switch s.typ {
		case kBool:
			return val, nil
		case kString:
			return strconv.FormatBool(val), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T", v)
}

// stored is the form setKey persists: JSON numbers and bools where the type
// has one, text otherwise.
func (s keySpec) stored(v any) any {
	if d, ok := v.(time.Duration); ok {
		return d.String()
	}
	return v
}

func applyBackend(cfg *Config, b ConfigBackend) {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok := b.Get(s.key)
		if !ok || raw == nil || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.coerce(raw)
		if err != nil {
			slog.Warn("could not parse config key, using default", "key", s.key, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
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
		v, err := s.parse(raw)
		if err != nil {
			// Secrets are never echoed.
			if s.secret {
				raw = "***"
			}
			slog.Warn("could not parse env var, using default", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
